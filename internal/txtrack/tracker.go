package txtrack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/vault_portal/internal/chain"
	svcerrors "github.com/R3E-Network/vault_portal/internal/errors"
	"github.com/R3E-Network/vault_portal/internal/logging"
	"github.com/R3E-Network/vault_portal/internal/metrics"
)

// ErrTransactionReverted is recorded when a mined transaction has a failed receipt.
var ErrTransactionReverted = errors.New("transaction reverted")

// Config configures a Tracker.
type Config struct {
	ChainID        int64
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
}

// Tracker moves records through pending_signature, pending_confirmation and a
// terminal state. Receipts are awaited in the background.
type Tracker struct {
	store   Store
	caller  chain.Caller
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	watching map[string]bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewTracker creates a tracker.
func NewTracker(store Store, caller chain.Caller, cfg Config, logger *logging.Logger, m *metrics.Metrics) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = chain.DefaultPollInterval
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = chain.DefaultTxWaitTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		store:    store,
		caller:   caller,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		watching: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Resume starts receipt watchers for records left pending_confirmation by a previous run.
func (t *Tracker) Resume(ctx context.Context) error {
	pending, err := t.store.ListByStatus(ctx, StatusPendingConfirmation)
	if err != nil {
		return fmt.Errorf("list pending transactions: %w", err)
	}
	for _, rec := range pending {
		t.watch(rec)
	}
	if len(pending) > 0 {
		t.logger.WithField("count", len(pending)).Info("resumed receipt watchers")
	}
	return nil
}

// Close stops every receipt watcher and waits for them to exit.
func (t *Tracker) Close() {
	t.cancel()
	t.wg.Wait()
}

// Prepare records an unsigned transaction for account.
func (t *Tracker) Prepare(ctx context.Context, account string, kind Kind, req TxRequest) (Record, error) {
	if !common.IsHexAddress(account) {
		return Record{}, svcerrors.BadRequest("invalid account address")
	}
	if !common.IsHexAddress(req.To) {
		return Record{}, svcerrors.BadRequest("invalid contract address")
	}
	if _, err := hexutil.Decode(req.Data); err != nil {
		return Record{}, svcerrors.BadRequest("invalid calldata")
	}
	value := req.Value
	if value == "" {
		value = "0"
	}
	if v, ok := new(big.Int).SetString(value, 10); !ok || v.Sign() < 0 {
		return Record{}, svcerrors.BadRequest("invalid value")
	}

	now := t.now()
	rec := Record{
		ID:        uuid.NewString(),
		Account:   strings.ToLower(account),
		Kind:      kind,
		Contract:  strings.ToLower(req.To),
		Calldata:  strings.ToLower(req.Data),
		Value:     value,
		ChainID:   t.cfg.ChainID,
		Status:    StatusPendingSignature,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.Create(ctx, rec); err != nil {
		return Record{}, svcerrors.Internal("failed to record transaction", err)
	}
	t.metrics.RecordTxTransition(string(StatusPendingSignature))
	t.logger.WithContext(ctx).WithFields(logrus.Fields{
		"tx_id":   rec.ID,
		"kind":    kind,
		"account": rec.Account,
	}).Info("transaction prepared")
	return rec, nil
}

// Get returns the record with id owned by account.
func (t *Tracker) Get(ctx context.Context, id, account string) (Record, error) {
	rec, err := t.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Record{}, svcerrors.NotFound("transaction")
	}
	if err != nil {
		return Record{}, svcerrors.Internal("failed to load transaction", err)
	}
	if rec.Account != strings.ToLower(account) {
		return Record{}, svcerrors.NotFound("transaction")
	}
	if rec.Status == StatusPendingConfirmation && !t.isWatching(rec.ID) {
		rec = t.checkReceipt(ctx, rec)
	}
	return rec, nil
}

// ListByAccount returns the newest records of account.
func (t *Tracker) ListByAccount(ctx context.Context, account string, limit int) ([]Record, error) {
	recs, err := t.store.ListByAccount(ctx, strings.ToLower(account), limit)
	if err != nil {
		return nil, svcerrors.Internal("failed to list transactions", err)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// Submit verifies that raw is the prepared transaction signed by account and
// broadcasts it. The record is claimed (pending_signature to pending_confirmation)
// before broadcasting, so concurrent submits of one record broadcast at most once.
// A rejected broadcast marks the record failed with the node's message.
func (t *Tracker) Submit(ctx context.Context, id, account string, raw []byte) (Record, error) {
	rec, err := t.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Record{}, svcerrors.NotFound("transaction")
	}
	if err != nil {
		return Record{}, svcerrors.Internal("failed to load transaction", err)
	}
	if rec.Account != strings.ToLower(account) {
		return Record{}, svcerrors.NotFound("transaction")
	}
	if rec.Status != StatusPendingSignature {
		return rec, notAwaitingSignature(rec)
	}
	tx, err := verifyRaw(rec, raw)
	if err != nil {
		t.logger.LogSecurityEvent(ctx, "tx_mismatch", map[string]interface{}{
			"tx_id":   rec.ID,
			"account": rec.Account,
			"reason":  err.Error(),
		})
		return rec, svcerrors.BadRequest(err.Error())
	}

	entry := t.logger.WithContext(ctx).WithField("tx_id", rec.ID)

	claimed := rec
	claimed.Status = StatusPendingConfirmation
	claimed.TxHash = tx.Hash().Hex()
	claimed.UpdatedAt = t.now()
	if err := t.store.Transition(ctx, claimed, StatusPendingSignature); err != nil {
		if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrNotFound) {
			current, getErr := t.store.Get(ctx, id)
			if getErr != nil {
				current = rec
			}
			entry.WithField("status", current.Status).Warn("duplicate submit ignored")
			return current, notAwaitingSignature(current)
		}
		return rec, svcerrors.Internal("failed to record transaction", err)
	}
	rec = claimed

	hash, err := t.caller.SendRawTransaction(ctx, raw)
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		rec.UpdatedAt = t.now()
		t.save(ctx, rec, StatusPendingConfirmation)
		entry.WithError(err).Warn("transaction rejected")
		return rec, svcerrors.Transaction(err)
	}

	if hash.Hex() != rec.TxHash {
		entry.WithFields(logrus.Fields{"local": rec.TxHash, "node": hash.Hex()}).Warn("node returned a different transaction hash")
		next := rec
		next.TxHash = hash.Hex()
		next.UpdatedAt = t.now()
		if err := t.store.Transition(ctx, next, StatusPendingConfirmation); err == nil {
			rec = next
		}
	}
	t.metrics.RecordTxTransition(string(StatusPendingConfirmation))
	entry.WithField("tx_hash", rec.TxHash).Info("transaction broadcast")

	t.watch(rec)
	return rec, nil
}

func notAwaitingSignature(rec Record) error {
	return svcerrors.BadRequest("transaction is not awaiting a signature").
		WithDetail("status", rec.Status)
}

func verifyRaw(rec Record, raw []byte) (*types.Transaction, error) {
	tx, from, err := chain.TransactionSender(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid signed transaction: %w", err)
	}
	if !strings.EqualFold(from.Hex(), rec.Account) {
		return nil, fmt.Errorf("transaction signed by %s, expected %s", strings.ToLower(from.Hex()), rec.Account)
	}
	if tx.To() == nil || !strings.EqualFold(tx.To().Hex(), rec.Contract) {
		return nil, errors.New("transaction target does not match the prepared contract")
	}
	want, err := rec.calldata()
	if err != nil {
		return nil, fmt.Errorf("stored calldata: %w", err)
	}
	if !bytes.Equal(tx.Data(), want) {
		return nil, errors.New("transaction calldata does not match the prepared calldata")
	}
	if tx.Value().String() != rec.Value {
		return nil, errors.New("transaction value does not match the prepared value")
	}
	if tx.Protected() && tx.ChainId().Int64() != rec.ChainID {
		return nil, fmt.Errorf("transaction chain id %s, expected %d", tx.ChainId(), rec.ChainID)
	}
	return tx, nil
}

func (t *Tracker) watch(rec Record) {
	t.mu.Lock()
	if t.watching[rec.ID] {
		t.mu.Unlock()
		return
	}
	t.watching[rec.ID] = true
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			t.mu.Lock()
			delete(t.watching, rec.ID)
			t.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(t.ctx, t.cfg.ReceiptTimeout)
		defer cancel()

		receipt, err := chain.WaitForReceipt(ctx, t.caller, common.HexToHash(rec.TxHash), t.cfg.PollInterval)
		if err != nil {
			// The transaction may still be mined; Get re-checks on demand.
			t.logger.WithError(err).WithFields(logrus.Fields{
				"tx_id":   rec.ID,
				"tx_hash": rec.TxHash,
			}).Warn("stopped waiting for receipt")
			return
		}
		t.settle(context.Background(), rec, receipt)
	}()
}

func (t *Tracker) isWatching(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watching[id]
}

func (t *Tracker) checkReceipt(ctx context.Context, rec Record) Record {
	receipt, err := t.caller.TransactionReceipt(ctx, common.HexToHash(rec.TxHash))
	if err != nil {
		if !errors.Is(err, chain.ErrReceiptNotFound) {
			t.logger.WithContext(ctx).WithError(err).WithField("tx_hash", rec.TxHash).Debug("receipt lookup failed")
		}
		return rec
	}
	return t.settle(ctx, rec, receipt)
}

func (t *Tracker) settle(ctx context.Context, rec Record, receipt *chain.Receipt) Record {
	if receipt.BlockNumber != nil {
		rec.BlockNumber = receipt.BlockNumber.ToInt().Int64()
	}
	if receipt.Succeeded() {
		rec.Status = StatusConfirmed
	} else {
		rec.Status = StatusFailed
		rec.Error = ErrTransactionReverted.Error()
	}
	rec.UpdatedAt = t.now()
	if !t.save(ctx, rec, StatusPendingConfirmation) {
		if current, err := t.store.Get(ctx, rec.ID); err == nil {
			return current
		}
		return rec
	}

	t.logger.WithFields(logrus.Fields{
		"tx_id":   rec.ID,
		"tx_hash": rec.TxHash,
		"status":  rec.Status,
		"block":   rec.BlockNumber,
	}).Info("transaction settled")
	return rec
}

// save moves rec out of status from. A record that already left from is not overwritten.
func (t *Tracker) save(ctx context.Context, rec Record, from Status) bool {
	err := t.store.Transition(ctx, rec, from)
	if errors.Is(err, ErrStatusConflict) {
		t.logger.WithField("tx_id", rec.ID).WithField("status", rec.Status).Debug("transaction already settled")
		return false
	}
	if err != nil {
		t.logger.WithError(err).WithField("tx_id", rec.ID).Error("failed to persist transaction status")
		return false
	}
	t.metrics.RecordTxTransition(string(rec.Status))
	return true
}
