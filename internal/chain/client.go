// Package chain provides EVM JSON-RPC access for the vault portal.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"
)

// Client provides EVM JSON-RPC client functionality.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	chainID    *big.Int
	nextID     atomic.Uint64
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	ChainID int64 // 1 mainnet, 8453 base, 84532 base-sepolia, ...
	Timeout time.Duration
}

// NewClient creates a new JSON-RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	if cfg.ChainID <= 0 {
		return nil, fmt.Errorf("chain ID required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		chainID: big.NewInt(cfg.ChainID),
	}, nil
}

// ChainID returns the configured chain ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// =============================================================================
// Core RPC Methods
// =============================================================================

// Call makes a single RPC call.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}

	respBody, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// BatchElem is one call of a JSON-RPC batch.
type BatchElem struct {
	Method string
	Params []interface{}
	Result json.RawMessage
	Error  error
}

// BatchCall sends every element in one HTTP round trip. Per-element failures are
// stored in elem.Error; the returned error is only set when the whole batch failed,
// in which case every element carries that error too.
func (c *Client) BatchCall(ctx context.Context, elems []BatchElem) error {
	if len(elems) == 0 {
		return nil
	}

	reqs := make([]RPCRequest, len(elems))
	byID := make(map[uint64]int, len(elems))
	for i, e := range elems {
		params := e.Params
		if params == nil {
			params = []interface{}{}
		}
		id := c.nextID.Add(1)
		reqs[i] = RPCRequest{JSONRPC: "2.0", Method: e.Method, Params: params, ID: id}
		byID[id] = i
	}

	fail := func(err error) error {
		for i := range elems {
			elems[i].Error = err
		}
		return err
	}

	respBody, err := c.post(ctx, reqs)
	if err != nil {
		return fail(err)
	}

	var resps []RPCResponse
	if err := json.Unmarshal(respBody, &resps); err != nil {
		// Some nodes answer a batch with a single error object.
		var single RPCResponse
		if json.Unmarshal(respBody, &single) == nil && single.Error != nil {
			return fail(single.Error)
		}
		return fail(fmt.Errorf("unmarshal batch response: %w", err))
	}

	seen := make([]bool, len(elems))
	for _, r := range resps {
		i, ok := byID[r.ID]
		if !ok {
			continue
		}
		seen[i] = true
		if r.Error != nil {
			elems[i].Error = r.Error
			continue
		}
		elems[i].Result = r.Result
	}
	for i, ok := range seen {
		if !ok {
			elems[i].Error = fmt.Errorf("missing response for %s", elems[i].Method)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 && len(respBody) == 0 {
		return nil, fmt.Errorf("rpc http status %d", resp.StatusCode)
	}
	return respBody, nil
}
