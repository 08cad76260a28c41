// Package chaintest provides an in-process JSON-RPC node for tests.
package chaintest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallHandler answers an eth_call. Returning a *Revert error makes the node answer
// with a revert carrying the encoded reason.
type CallHandler func(data []byte) ([]byte, error)

// Revert is returned by a CallHandler to simulate a contract revert.
type Revert struct {
	Reason string
}

func (r *Revert) Error() string { return "execution reverted: " + r.Reason }

type callKey struct {
	to       common.Address
	selector string
}

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Node is a fake EVM JSON-RPC endpoint.
type Node struct {
	server *httptest.Server

	mu        sync.Mutex
	calls     map[callKey]CallHandler
	receipts  map[common.Hash]map[string]interface{}
	sent      []*types.Transaction
	failSend  string
	failAll   bool
	autoMine  bool
	mineFails bool
	methods   map[string]int
	batches   int
}

// NewNode starts a fake node. Call Close when done.
func NewNode() *Node {
	n := &Node{
		calls:    make(map[callKey]CallHandler),
		receipts: make(map[common.Hash]map[string]interface{}),
		methods:  make(map[string]int),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	return n
}

// URL returns the RPC endpoint.
func (n *Node) URL() string { return n.server.URL }

// Close stops the node.
func (n *Node) Close() { n.server.Close() }

// HandleCall registers a handler for calls to `to` whose calldata starts with selector.
func (n *Node) HandleCall(to common.Address, selector []byte, h CallHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[callKey{to: to, selector: hex.EncodeToString(selector)}] = h
}

// HandleMethod registers a handler using the ABI method's selector.
func (n *Node) HandleMethod(to common.Address, contractABI abi.ABI, method string, h CallHandler) {
	n.HandleCall(to, contractABI.Methods[method].ID, h)
}

// Returns registers a method that always returns the ABI-encoded outputs.
func (n *Node) Returns(to common.Address, contractABI abi.ABI, method string, outputs ...interface{}) {
	m := contractABI.Methods[method]
	encoded, err := m.Outputs.Pack(outputs...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: pack outputs of %s: %v", method, err))
	}
	n.HandleCall(to, m.ID, func([]byte) ([]byte, error) { return encoded, nil })
}

// Reverts registers a method that always reverts with reason.
func (n *Node) Reverts(to common.Address, contractABI abi.ABI, method, reason string) {
	n.HandleMethod(to, contractABI, method, func([]byte) ([]byte, error) {
		return nil, &Revert{Reason: reason}
	})
}

// FailAll makes every request fail at the HTTP level.
func (n *Node) FailAll(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failAll = fail
}

// FailSend makes eth_sendRawTransaction answer with an RPC error.
func (n *Node) FailSend(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failSend = message
}

// AutoMine makes every broadcast transaction immediately receive a receipt.
func (n *Node) AutoMine(enabled, reverted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.autoMine = enabled
	n.mineFails = reverted
}

// Mine records a receipt for hash.
func (n *Node) Mine(hash common.Hash, success bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mineLocked(hash, success)
}

func (n *Node) mineLocked(hash common.Hash, success bool) {
	status := "0x0"
	if success {
		status = "0x1"
	}
	n.receipts[hash] = map[string]interface{}{
		"transactionHash": hash,
		"blockNumber":     "0x10",
		"status":          status,
		"gasUsed":         "0x5208",
		"from":            common.Address{},
	}
}

// Sent returns the transactions broadcast so far.
func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*types.Transaction, len(n.sent))
	copy(out, n.sent)
	return out
}

// MethodCount returns how many times method was requested.
func (n *Node) MethodCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.methods[method]
}

// BatchCount returns how many batch requests were received.
func (n *Node) BatchCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.batches
}

func (n *Node) serveHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	failAll := n.failAll
	n.mu.Unlock()
	if failAll {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var reqs []request
		if err := json.Unmarshal(body, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n.mu.Lock()
		n.batches++
		n.mu.Unlock()
		resps := make([]response, len(reqs))
		for i, req := range reqs {
			resps[i] = n.handle(req)
		}
		_ = json.NewEncoder(w).Encode(resps)
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(n.handle(req))
}

func (n *Node) handle(req request) response {
	n.mu.Lock()
	n.methods[req.Method]++
	n.mu.Unlock()

	resp := response{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "eth_call":
		result, rerr := n.ethCall(req.Params)
		resp.Result, resp.Error = result, rerr
	case "eth_estimateGas":
		resp.Result = "0x5208"
	case "eth_gasPrice":
		resp.Result = "0x3b9aca00"
	case "eth_getTransactionCount":
		resp.Result = "0x0"
	case "eth_blockNumber":
		resp.Result = "0x10"
	case "eth_chainId":
		resp.Result = "0x1"
	case "eth_sendRawTransaction":
		result, rerr := n.sendRaw(req.Params)
		resp.Result, resp.Error = result, rerr
	case "eth_getTransactionReceipt":
		resp.Result = n.receipt(req.Params)
	default:
		resp.Error = &rpcError{Code: -32601, Message: "method not found"}
	}
	return resp
}

func (n *Node) ethCall(params []json.RawMessage) (interface{}, *rpcError) {
	if len(params) == 0 {
		return nil, &rpcError{Code: -32602, Message: "missing params"}
	}
	var arg struct {
		To   common.Address `json:"to"`
		Data hexutil.Bytes  `json:"data"`
	}
	if err := json.Unmarshal(params[0], &arg); err != nil {
		return nil, &rpcError{Code: -32602, Message: err.Error()}
	}
	if len(arg.Data) < 4 {
		return "0x", nil
	}

	n.mu.Lock()
	h, ok := n.calls[callKey{to: arg.To, selector: hex.EncodeToString(arg.Data[:4])}]
	n.mu.Unlock()
	if !ok {
		return nil, &rpcError{Code: 3, Message: "execution reverted"}
	}

	out, err := h(arg.Data)
	if err != nil {
		if rev, isRevert := err.(*Revert); isRevert {
			return nil, &rpcError{Code: 3, Message: rev.Error(), Data: hexutil.Encode(encodeRevert(rev.Reason))}
		}
		return nil, &rpcError{Code: -32000, Message: err.Error()}
	}
	return hexutil.Encode(out), nil
}

func (n *Node) sendRaw(params []json.RawMessage) (interface{}, *rpcError) {
	var raw hexutil.Bytes
	if len(params) == 0 || json.Unmarshal(params[0], &raw) != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid raw transaction"}
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, &rpcError{Code: -32602, Message: err.Error()}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failSend != "" {
		return nil, &rpcError{Code: -32000, Message: n.failSend}
	}
	n.sent = append(n.sent, tx)
	if n.autoMine {
		n.mineLocked(tx.Hash(), !n.mineFails)
	}
	return tx.Hash(), nil
}

func (n *Node) receipt(params []json.RawMessage) interface{} {
	var hash common.Hash
	if len(params) == 0 || json.Unmarshal(params[0], &hash) != nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if r, ok := n.receipts[hash]; ok {
		return r
	}
	return nil
}

// encodeRevert encodes reason as Error(string) revert data.
func encodeRevert(reason string) []byte {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	selector := []byte{0x08, 0xc3, 0x79, 0xa0}
	return append(selector, packed...)
}
