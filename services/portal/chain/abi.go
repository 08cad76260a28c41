// Package portalchain provides typed bindings for the vault, policy registry and
// vault factory contracts.
package portalchain

import (
	_ "embed"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/R3E-Network/vault_portal/internal/chain"
)

var (
	//go:embed abi/vault.json
	vaultABIJSON string
	//go:embed abi/registry.json
	registryABIJSON string
	//go:embed abi/factory.json
	factoryABIJSON string
	//go:embed abi/erc20.json
	erc20ABIJSON string
)

// Parsed contract ABIs.
var (
	VaultABI    = mustParse(vaultABIJSON)
	RegistryABI = mustParse(registryABIJSON)
	FactoryABI  = mustParse(factoryABIJSON)
	ERC20ABI    = mustParse(erc20ABIJSON)
)

func mustParse(definition string) abi.ABI {
	parsed, err := chain.ParseABI(definition)
	if err != nil {
		panic(err)
	}
	return parsed
}
