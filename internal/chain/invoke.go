package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// =============================================================================
// Receipt Polling
// =============================================================================

// DefaultTxWaitTimeout is the default timeout for waiting for a receipt.
const DefaultTxWaitTimeout = 2 * time.Minute

// DefaultPollInterval is the default interval for polling receipts.
const DefaultPollInterval = 2 * time.Second

// WaitForReceipt polls for a transaction receipt until it is available or ctx is done.
// A missing receipt is treated as "not mined yet" and retried until the context expires.
// The transaction itself is never resubmitted.
func WaitForReceipt(ctx context.Context, r ReceiptReader, hash common.Hash, pollInterval time.Duration) (*Receipt, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := r.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ErrReceiptNotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SendAndWait broadcasts a signed transaction and waits for its receipt.
// If waitTimeout is 0, DefaultTxWaitTimeout is used.
func SendAndWait(ctx context.Context, c Caller, raw []byte, pollInterval, waitTimeout time.Duration) (common.Hash, *Receipt, error) {
	hash, err := c.SendRawTransaction(ctx, raw)
	if err != nil {
		return common.Hash{}, nil, err
	}

	if waitTimeout <= 0 {
		waitTimeout = DefaultTxWaitTimeout
	}

	wctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	receipt, err := WaitForReceipt(wctx, c, hash, pollInterval)
	return hash, receipt, err
}
