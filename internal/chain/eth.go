package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// =============================================================================
// Capabilities
// =============================================================================

// Reader is the read side of the contract boundary.
type Reader interface {
	Read(ctx context.Context, msg CallMsg) ([]byte, error)
	BatchRead(ctx context.Context, msgs []CallMsg) []CallResult
}

// ReceiptReader looks up transaction receipts.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// Caller is the full contract boundary used by the portal.
type Caller interface {
	Reader
	ReceiptReader
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
}

// TxBackend is what a Wallet needs to build and broadcast transactions.
type TxBackend interface {
	ChainID() *big.Int
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg CallMsg, value *big.Int) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
}

var (
	_ Caller    = (*Client)(nil)
	_ TxBackend = (*Client)(nil)
)

func toCallArg(msg CallMsg) map[string]interface{} {
	arg := map[string]interface{}{
		"to":   msg.To,
		"data": hexutil.Bytes(msg.Data),
	}
	if msg.From != nil {
		arg["from"] = *msg.From
	}
	return arg
}

// =============================================================================
// Read Methods
// =============================================================================

// Read performs eth_call against the latest block.
func (c *Client) Read(ctx context.Context, msg CallMsg) ([]byte, error) {
	result, err := c.Call(ctx, "eth_call", []interface{}{toCallArg(msg), "latest"})
	if err != nil {
		return nil, asCallError(err)
	}

	var out hexutil.Bytes
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decode eth_call result: %w", err)
	}
	return out, nil
}

// BatchRead performs every call in a single JSON-RPC batch.
func (c *Client) BatchRead(ctx context.Context, msgs []CallMsg) []CallResult {
	results := make([]CallResult, len(msgs))
	if len(msgs) == 0 {
		return results
	}

	elems := make([]BatchElem, len(msgs))
	for i, msg := range msgs {
		elems[i] = BatchElem{Method: "eth_call", Params: []interface{}{toCallArg(msg), "latest"}}
	}

	// Per-element errors are inspected below; a transport error is copied into each element.
	_ = c.BatchCall(ctx, elems)

	for i, e := range elems {
		if e.Error != nil {
			results[i].Err = asCallError(e.Error)
			continue
		}
		var out hexutil.Bytes
		if err := json.Unmarshal(e.Result, &out); err != nil {
			results[i].Err = fmt.Errorf("decode eth_call result: %w", err)
			continue
		}
		results[i].Data = out
	}
	return results
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	var n hexutil.Uint64
	if err := json.Unmarshal(result, &n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// =============================================================================
// Transaction Methods
// =============================================================================

// SendRawTransaction broadcasts a signed transaction.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	result, err := c.Call(ctx, "eth_sendRawTransaction", []interface{}{hexutil.Bytes(raw)})
	if err != nil {
		return common.Hash{}, err
	}

	var hash common.Hash
	if err := json.Unmarshal(result, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("decode tx hash: %w", err)
	}
	return hash, nil
}

// TransactionReceipt returns the receipt, or ErrReceiptNotFound while pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", []interface{}{hash})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, ErrReceiptNotFound
	}

	var receipt Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &receipt, nil
}

// PendingNonceAt returns the next nonce for addr including pending transactions.
func (c *Client) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	result, err := c.Call(ctx, "eth_getTransactionCount", []interface{}{addr, "pending"})
	if err != nil {
		return 0, err
	}
	var n hexutil.Uint64
	if err := json.Unmarshal(result, &n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// GasPrice returns the node's suggested gas price.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return nil, err
	}
	var p hexutil.Big
	if err := json.Unmarshal(result, &p); err != nil {
		return nil, err
	}
	return p.ToInt(), nil
}

// EstimateGas estimates the gas needed for a call. A revert surfaces as *RevertError.
func (c *Client) EstimateGas(ctx context.Context, msg CallMsg, value *big.Int) (uint64, error) {
	arg := toCallArg(msg)
	if value != nil && value.Sign() > 0 {
		arg["value"] = (*hexutil.Big)(value)
	}
	result, err := c.Call(ctx, "eth_estimateGas", []interface{}{arg})
	if err != nil {
		return 0, asCallError(err)
	}
	var n hexutil.Uint64
	if err := json.Unmarshal(result, &n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}
