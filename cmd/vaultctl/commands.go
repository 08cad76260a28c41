package main

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/vault_portal/internal/roles"
	"github.com/R3E-Network/vault_portal/internal/vaults"
	portalchain "github.com/R3E-Network/vault_portal/services/portal/chain"
)

func (a *app) roleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role [address]",
		Short: "Resolve the role of a wallet address from the configured whitelist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := parseAddress("address", args[0]); err != nil {
				return err
			}
			resolver := roles.NewResolver(a.cfg.Whitelist())
			fmt.Fprintln(a.out, resolver.Resolve(args[0]))
			return nil
		},
	}
}

// =============================================================================
// Vault Commands
// =============================================================================

func (a *app) vaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Read and manage vaults",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every vault summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.printJSON(a.aggregator().List(cmd.Context()))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [vault]",
		Short: "Show one vault summary and its buffer note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress("vault", args[0])
			if err != nil {
				return err
			}
			summary := a.aggregator().Summary(cmd.Context(), addr)
			return a.printJSON(struct {
				Summary vaults.Summary    `json:"summary"`
				Buffer  vaults.BufferNote `json:"buffer"`
			}{summary, vaults.NewBufferNote(summary)})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "policies [vault]",
		Short: "List the policies a vault backs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress("vault", args[0])
			if err != nil {
				return err
			}
			policies, err := a.aggregator().Policies(cmd.Context(), addr)
			if err != nil {
				return err
			}
			return a.printJSON(policies)
		},
	})

	var bufferBps, feeBps string
	create := &cobra.Command{
		Use:   "create [name] [asset]",
		Short: "Create a vault through the factory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			factory, err := parseAddress("factory", a.cfg.Chain.Contracts.Factory)
			if err != nil {
				return err
			}
			asset, err := parseAddress("asset", args[1])
			if err != nil {
				return err
			}
			buffer, err := parseBps("buffer-bps", bufferBps)
			if err != nil {
				return err
			}
			fee, err := parseBps("fee-bps", feeBps)
			if err != nil {
				return err
			}
			data, err := portalchain.PackCreateVault(args[0], asset, buffer, fee)
			if err != nil {
				return err
			}
			return a.transact(cmd.Context(), factory, data)
		},
	}
	create.Flags().StringVar(&bufferBps, "buffer-bps", "2000", "buffer ratio in basis points")
	create.Flags().StringVar(&feeBps, "fee-bps", "100", "management fee in basis points")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "set-buffer [vault] [bps]",
		Short: "Change the buffer ratio of a vault",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress("vault", args[0])
			if err != nil {
				return err
			}
			bps, err := parseBps("bps", args[1])
			if err != nil {
				return err
			}
			if err := a.aggregator().ValidateBufferChange(cmd.Context(), addr, bps.Int64()); err != nil {
				return err
			}
			data, err := portalchain.PackSetBufferRatio(bps)
			if err != nil {
				return err
			}
			return a.transact(cmd.Context(), addr, data)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add-policy [vault] [policy-id] [weight-bps]",
		Short: "Back a registry policy with a vault",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress("vault", args[0])
			if err != nil {
				return err
			}
			id, err := parseAmount("policy-id", args[1])
			if err != nil {
				return err
			}
			weight, err := parseBps("weight-bps", args[2])
			if err != nil {
				return err
			}
			data, err := portalchain.PackAddPolicy(id, weight)
			if err != nil {
				return err
			}
			return a.transact(cmd.Context(), addr, data)
		},
	})

	return cmd
}

// =============================================================================
// Policy Commands
// =============================================================================

func (a *app) policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Read and register registry policies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Show a registry policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAmount("id", args[0])
			if err != nil {
				return err
			}
			policy, err := a.aggregator().Policy(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printJSON(policy)
		},
	})

	var (
		verification string
		coverage     string
		premium      string
		duration     string
		threshold    string
	)
	register := &cobra.Command{
		Use:   "register [name]",
		Short: "Register a policy with the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := parseAddress("registry", a.cfg.Chain.Contracts.Registry)
			if err != nil {
				return err
			}
			vt, err := portalchain.ParseVerificationType(verification)
			if err != nil {
				return err
			}
			params := portalchain.PolicyParams{Name: args[0], VerificationType: vt}
			for _, f := range []struct {
				name string
				raw  string
				dst  **big.Int
			}{
				{"coverage", coverage, &params.CoverageAmount},
				{"premium", premium, &params.PremiumAmount},
				{"duration", duration, &params.Duration},
				{"threshold", threshold, &params.TriggerThreshold},
			} {
				if *f.dst, err = parseAmount(f.name, f.raw); err != nil {
					return err
				}
			}
			if params.CoverageAmount.Sign() == 0 || params.Duration.Sign() == 0 {
				return fmt.Errorf("coverage and duration must be positive")
			}
			data, err := portalchain.PackRegisterPolicy(params)
			if err != nil {
				return err
			}
			return a.transact(cmd.Context(), registry, data)
		},
	}
	register.Flags().StringVar(&verification, "verification", "oracle", "permissionless, oracle or admin")
	register.Flags().StringVar(&coverage, "coverage", "0", "coverage amount in base units")
	register.Flags().StringVar(&premium, "premium", "0", "premium amount in base units")
	register.Flags().StringVar(&duration, "duration", "0", "duration in seconds")
	register.Flags().StringVar(&threshold, "threshold", "0", "trigger threshold")
	cmd.AddCommand(register)

	return cmd
}

// =============================================================================
// Investor Commands
// =============================================================================

func (a *app) depositCmd() *cobra.Command {
	var approve bool
	cmd := &cobra.Command{
		Use:   "deposit [vault] [amount] [receiver]",
		Short: "Deposit assets (base units) into a vault",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress("vault", args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount("amount", args[1])
			if err != nil {
				return err
			}
			receiver, err := parseAddress("receiver", args[2])
			if err != nil {
				return err
			}
			if approve {
				asset, err := portalchain.NewVaultContract(a.client, addr).Asset(cmd.Context())
				if err != nil {
					return err
				}
				data, err := portalchain.PackApprove(addr, amount)
				if err != nil {
					return err
				}
				if err := a.transact(cmd.Context(), asset, data); err != nil {
					return err
				}
			}
			data, err := portalchain.PackDeposit(amount, receiver)
			if err != nil {
				return err
			}
			return a.transact(cmd.Context(), addr, data)
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", true, "approve the vault to pull the asset first")
	return cmd
}

func (a *app) withdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw [vault] [shares] [receiver] [owner]",
		Short: "Redeem vault shares (base units)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress("vault", args[0])
			if err != nil {
				return err
			}
			shares, err := parseAmount("shares", args[1])
			if err != nil {
				return err
			}
			receiver, err := parseAddress("receiver", args[2])
			if err != nil {
				return err
			}
			owner, err := parseAddress("owner", args[3])
			if err != nil {
				return err
			}
			data, err := portalchain.PackWithdraw(shares, receiver, owner)
			if err != nil {
				return err
			}
			return a.transact(cmd.Context(), addr, data)
		},
	}
}
