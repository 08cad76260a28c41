package portalchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/vault_portal/internal/chain"
)

// TokenContract reads an ERC-20 vault asset.
type TokenContract struct {
	bound  *chain.BoundContract
	reader chain.Reader
}

// NewTokenContract creates a token handle.
func NewTokenContract(reader chain.Reader, address common.Address) *TokenContract {
	return &TokenContract{
		bound:  chain.NewBoundContract(address, ERC20ABI),
		reader: reader,
	}
}

// Allowance returns how much spender may pull from owner.
func (t *TokenContract) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := t.bound.Call(ctx, t.reader, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return ParseBigInt(out)
}

// Symbol returns the token symbol.
func (t *TokenContract) Symbol(ctx context.Context) (string, error) {
	out, err := t.bound.Call(ctx, t.reader, "symbol")
	if err != nil {
		return "", err
	}
	return ParseString(out)
}

// Decimals returns the token decimals.
func (t *TokenContract) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.bound.Call(ctx, t.reader, "decimals")
	if err != nil {
		return 0, err
	}
	return ParseUint8(out)
}
