package portalchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/vault_portal/internal/chain"
)

// FactoryContract provides interaction with the vault factory contract.
type FactoryContract struct {
	bound  *chain.BoundContract
	reader chain.Reader
}

// NewFactoryContract creates a new vault factory interface.
func NewFactoryContract(reader chain.Reader, address common.Address) *FactoryContract {
	return &FactoryContract{
		bound:  chain.NewBoundContract(address, FactoryABI),
		reader: reader,
	}
}

// Address returns the factory address.
func (f *FactoryContract) Address() common.Address {
	return f.bound.Address
}

// AllVaults returns every vault created by the factory.
func (f *FactoryContract) AllVaults(ctx context.Context) ([]common.Address, error) {
	out, err := f.bound.Call(ctx, f.reader, "getAllVaults")
	if err != nil {
		return nil, err
	}
	return ParseAddressArray(out)
}

// PackCreateVault encodes createVault(name, asset, bufferBps, feeBps).
func PackCreateVault(name string, asset common.Address, bufferBps, feeBps *big.Int) ([]byte, error) {
	return FactoryABI.Pack("createVault", name, asset, orZero(bufferBps), orZero(feeBps))
}
