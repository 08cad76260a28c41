// Command vaultctl inspects and operates insurance vaults from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/R3E-Network/vault_portal/internal/chain"
	"github.com/R3E-Network/vault_portal/internal/config"
	"github.com/R3E-Network/vault_portal/internal/logging"
	"github.com/R3E-Network/vault_portal/internal/vaults"
	portalchain "github.com/R3E-Network/vault_portal/services/portal/chain"
)

// keyEnv names the variable holding the operator key for write commands.
const keyEnv = "VAULTCTL_PRIVATE_KEY"

// app carries state shared by every command.
type app struct {
	configPath string
	cfg        *config.Config
	client     *chain.Client
	logger     *logging.Logger
	out        io.Writer
}

func main() {
	a := &app{out: os.Stdout}
	if err := a.rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "vaultctl",
		Short:        "Inspect and operate insurance vaults",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the portal config file")

	root.AddCommand(
		a.roleCmd(),
		a.vaultCmd(),
		a.policyCmd(),
		a.depositCmd(),
		a.withdrawCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	client, err := chain.NewClient(chain.Config{
		RPCURL:  cfg.Chain.RPCURL,
		ChainID: cfg.Chain.ChainID,
		Timeout: cfg.Chain.Timeout,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.client = client
	a.logger = logging.New("vaultctl", cfg.Logging)
	return nil
}

func (a *app) aggregator() *vaults.Aggregator {
	var opts []vaults.Option
	if addr, err := parseAddress("factory", a.cfg.Chain.Contracts.Factory); err == nil {
		opts = append(opts, vaults.WithFactory(portalchain.NewFactoryContract(a.client, addr)))
	}
	if addr, err := parseAddress("registry", a.cfg.Chain.Contracts.Registry); err == nil {
		opts = append(opts, vaults.WithRegistry(portalchain.NewRegistryContract(a.client, addr)))
	}
	fallback, _ := a.cfg.Vaults.FallbackPrice()
	return vaults.NewAggregator(a.client, vaults.Config{
		FallbackSharePrice: fallback,
		KnownVaults:        a.cfg.KnownVaults(),
		Concurrency:        a.cfg.Vaults.Concurrency,
	}, a.logger, opts...)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// transact signs data to `to` with the operator key and waits for the receipt.
func (a *app) transact(ctx context.Context, to common.Address, data []byte) error {
	key := os.Getenv(keyEnv)
	if key == "" {
		return fmt.Errorf("%s is not set", keyEnv)
	}
	wallet, err := chain.NewWallet(key, a.client)
	if err != nil {
		return err
	}
	hash, err := wallet.Transact(ctx, to, data, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "submitted %s from %s\n", hash.Hex(), wallet.Address().Hex())

	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.Chain.ReceiptTimeout)
	defer cancel()
	receipt, err := chain.WaitForReceipt(waitCtx, a.client, hash, a.cfg.Chain.PollInterval)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", hash.Hex(), err)
	}
	if !receipt.Succeeded() {
		return fmt.Errorf("transaction %s reverted in block %s", hash.Hex(), blockString(receipt))
	}
	fmt.Fprintf(a.out, "confirmed in block %s\n", blockString(receipt))
	return nil
}

// parseAddress rejects malformed and zero addresses.
func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: zero address", field)
	}
	return addr, nil
}

// parseAmount parses a non-negative base-unit integer.
func parseAmount(field, raw string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	return n, nil
}

func parseBps(field, raw string) (*big.Int, error) {
	n, err := parseAmount(field, raw)
	if err != nil {
		return nil, err
	}
	if n.Cmp(big.NewInt(10000)) > 0 {
		return nil, fmt.Errorf("%s: must be at most 10000 basis points", field)
	}
	return n, nil
}

func blockString(r *chain.Receipt) string {
	if r.BlockNumber == nil {
		return "unknown"
	}
	return r.BlockNumber.ToInt().String()
}
