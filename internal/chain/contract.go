package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// =============================================================================
// Bound Contract
// =============================================================================

// BoundContract pairs a deployed address with its ABI.
type BoundContract struct {
	Address common.Address
	ABI     abi.ABI
}

// ParseABI parses a JSON ABI definition.
func ParseABI(definition string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	return parsed, nil
}

// NewBoundContract creates a contract handle.
func NewBoundContract(address common.Address, contractABI abi.ABI) *BoundContract {
	return &BoundContract{Address: address, ABI: contractABI}
}

// Pack encodes a method call.
func (b *BoundContract) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := b.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// Unpack decodes the return values of a method.
func (b *BoundContract) Unpack(method string, data []byte) ([]interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("unpack %s: empty return data", method)
	}
	out, err := b.ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// CallMsg builds a read call for method.
func (b *BoundContract) CallMsg(method string, args ...interface{}) (CallMsg, error) {
	data, err := b.Pack(method, args...)
	if err != nil {
		return CallMsg{}, err
	}
	return CallMsg{To: b.Address, Data: data}, nil
}

// Call performs a read call and returns the decoded outputs.
func (b *BoundContract) Call(ctx context.Context, r Reader, method string, args ...interface{}) ([]interface{}, error) {
	msg, err := b.CallMsg(method, args...)
	if err != nil {
		return nil, err
	}
	data, err := r.Read(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return b.Unpack(method, data)
}

// MethodBySelector returns the method whose 4-byte selector prefixes data.
func (b *BoundContract) MethodBySelector(data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}
	return b.ABI.MethodById(data[:4])
}
