package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RPCRequest is a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

// RPCResponse is a JSON-RPC response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// CallMsg is a read-only contract call.
type CallMsg struct {
	From *common.Address
	To   common.Address
	Data []byte
}

// CallResult is the outcome of one call in a batch read.
type CallResult struct {
	Data []byte
	Err  error
}

// Receipt is the subset of a transaction receipt the portal needs.
type Receipt struct {
	TxHash      common.Hash     `json:"transactionHash"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	Status      hexutil.Uint64  `json:"status"`
	GasUsed     hexutil.Uint64  `json:"gasUsed"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// =============================================================================
// Errors
// =============================================================================

// ErrReceiptNotFound is returned while a transaction is not yet mined.
var ErrReceiptNotFound = errors.New("receipt not found")

// RevertError is a contract call that reverted.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason != "" {
		return "execution reverted: " + e.Reason
	}
	return "execution reverted"
}

// IsRevert reports whether err is a contract revert.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}

// asCallError turns a node error for eth_call/eth_estimateGas into a RevertError when
// the node signals a revert, leaving transport and other RPC errors untouched.
func asCallError(err error) error {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	if rpcErr.Code != 3 && !strings.Contains(strings.ToLower(rpcErr.Message), "revert") {
		return err
	}

	re := &RevertError{}
	var hexData string
	if len(rpcErr.Data) > 0 && json.Unmarshal(rpcErr.Data, &hexData) == nil {
		if data, decErr := hexutil.Decode(hexData); decErr == nil {
			re.Data = data
			if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
				re.Reason = reason
			}
		}
	}
	if re.Reason == "" {
		re.Reason = strings.TrimSpace(strings.TrimPrefix(rpcErr.Message, "execution reverted:"))
		if re.Reason == "execution reverted" {
			re.Reason = ""
		}
	}
	return re
}
