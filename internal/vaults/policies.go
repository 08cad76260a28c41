package vaults

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/vault_portal/internal/chain"
	svcerrors "github.com/R3E-Network/vault_portal/internal/errors"
	portalchain "github.com/R3E-Network/vault_portal/services/portal/chain"
)

// PolicyView is the display projection of a registry policy.
type PolicyView struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	VerificationType string          `json:"verification_type"`
	CoverageAmount   decimal.Decimal `json:"coverage_amount"`
	PremiumAmount    decimal.Decimal `json:"premium_amount"`
	DurationSeconds  int64           `json:"duration_seconds"`
	Insurer          string          `json:"insurer"`
	InsurerName      string          `json:"insurer_name,omitempty"`
	TriggerThreshold decimal.Decimal `json:"trigger_threshold"`
	Status           string          `json:"status"`
	WeightBps        *int64          `json:"weight_bps,omitempty"`
}

func newPolicyView(p *portalchain.Policy) PolicyView {
	return PolicyView{
		ID:               p.ID.String(),
		Name:             p.Name,
		VerificationType: p.VerificationType.String(),
		CoverageAmount:   amount(p.CoverageAmount),
		PremiumAmount:    amount(p.PremiumAmount),
		DurationSeconds:  clampInt64(p.Duration),
		Insurer:          p.Insurer.Hex(),
		TriggerThreshold: amount(p.TriggerThreshold),
		Status:           p.Status.String(),
	}
}

// Policy returns a registry policy by id.
func (a *Aggregator) Policy(ctx context.Context, id *big.Int) (PolicyView, error) {
	if a.registry == nil {
		return PolicyView{}, svcerrors.Internal("policy registry not configured", nil)
	}
	p, err := a.registry.GetPolicy(ctx, id)
	if err != nil {
		if chain.IsRevert(err) {
			return PolicyView{}, svcerrors.NotFound("policy")
		}
		return PolicyView{}, svcerrors.ContractRead(err)
	}
	view := newPolicyView(p)
	if a.names != nil {
		if name, ok := a.names.Lookup(ctx, p.Insurer); ok {
			view.InsurerName = name
		}
	}
	return view, nil
}

// Policies returns the policies backed by a vault with their allocation weights.
func (a *Aggregator) Policies(ctx context.Context, vaultAddr common.Address) ([]PolicyView, error) {
	vault := portalchain.NewVaultContract(a.reader, vaultAddr)
	ids, err := vault.PolicyIDs(ctx)
	if err != nil {
		return nil, svcerrors.ContractRead(err)
	}

	out := make([]PolicyView, 0, len(ids))
	for _, id := range ids {
		weight, err := vault.PolicyWeightBps(ctx, id)
		if err != nil {
			return nil, svcerrors.ContractRead(fmt.Errorf("policy %s weight: %w", id, err))
		}
		w := clampInt64(weight)

		view := PolicyView{ID: id.String(), WeightBps: &w}
		if a.registry != nil {
			p, err := a.registry.GetPolicy(ctx, id)
			if err != nil {
				a.logger.WithContext(ctx).WithError(err).
					WithField("vault", vaultAddr.Hex()).
					WithField("policy", id.String()).
					Warn("policy details unavailable")
			} else {
				view = newPolicyView(p)
				view.WeightBps = &w
			}
		}
		out = append(out, view)
	}
	return out, nil
}

// PolicyWeightTotal sums the policy weights of a vault. A weight outside 0..MaxBps or a
// running total above MaxBps is an error, so the sum never overflows.
func PolicyWeightTotal(policies []PolicyView) (int64, error) {
	var total int64
	for _, p := range policies {
		if p.WeightBps == nil {
			continue
		}
		w := *p.WeightBps
		if w < 0 || w > MaxBps {
			return 0, svcerrors.BadRequest("vault reports an out-of-range policy weight").
				WithDetail("policy_id", p.ID).
				WithDetail("weight_bps", w)
		}
		total += w
		if total > MaxBps {
			return 0, svcerrors.BadRequest("vault policy weights already exceed 10000 bps").
				WithDetail("policy_weight_bps", total)
		}
	}
	return total, nil
}

// ValidateBufferChange checks that newBps plus the vault's policy weights stays within
// 10000 basis points.
func (a *Aggregator) ValidateBufferChange(ctx context.Context, vaultAddr common.Address, newBps int64) error {
	if newBps < 0 || newBps > MaxBps {
		return svcerrors.BadRequest("buffer_bps must be between 0 and 10000")
	}

	policies, err := a.Policies(ctx, vaultAddr)
	if err != nil {
		return err
	}

	weights, err := PolicyWeightTotal(policies)
	if err != nil {
		return err
	}
	if newBps+weights > MaxBps {
		return svcerrors.BadRequest("buffer ratio plus policy weights exceeds 10000 bps").
			WithDetail("buffer_bps", newBps).
			WithDetail("policy_weight_bps", weights).
			WithDetail("max_buffer_bps", MaxBps-weights)
	}
	return nil
}
