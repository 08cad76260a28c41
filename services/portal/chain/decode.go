package portalchain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// =============================================================================
// Output Parsers
// =============================================================================

func single(out []interface{}) (interface{}, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("no result")
	}
	return out[0], nil
}

// ParseBigInt extracts a uint256 output.
func ParseBigInt(out []interface{}) (*big.Int, error) {
	v, err := single(out)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected uint256, got %T", v)
	}
	return n, nil
}

// ParseString extracts a string output.
func ParseString(out []interface{}) (string, error) {
	v, err := single(out)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

// ParseAddress extracts an address output.
func ParseAddress(out []interface{}) (common.Address, error) {
	v, err := single(out)
	if err != nil {
		return common.Address{}, err
	}
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("expected address, got %T", v)
	}
	return a, nil
}

// ParseUint8 extracts a uint8 output.
func ParseUint8(out []interface{}) (uint8, error) {
	v, err := single(out)
	if err != nil {
		return 0, err
	}
	n, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("expected uint8, got %T", v)
	}
	return n, nil
}

// ParseBigIntArray extracts a uint256[] output.
func ParseBigIntArray(out []interface{}) ([]*big.Int, error) {
	v, err := single(out)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected uint256[], got %T", v)
	}
	return arr, nil
}

// ParseAddressArray extracts an address[] output.
func ParseAddressArray(out []interface{}) ([]common.Address, error) {
	v, err := single(out)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]common.Address)
	if !ok {
		return nil, fmt.Errorf("expected address[], got %T", v)
	}
	return arr, nil
}

func bigAt(out []interface{}, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("missing output %d", i)
	}
	n, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d: expected uint256, got %T", i, out[i])
	}
	return n, nil
}
