// Package vaults aggregates on-chain vault state into display summaries, falling back
// to per-field reads when the consolidated read fails.
package vaults

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Source names the read path that produced a summary.
type Source string

const (
	SourcePrimary     Source = "primary"
	SourceFallback    Source = "fallback"
	SourcePlaceholder Source = "placeholder"
)

const (
	// MaxBps is 100% in basis points.
	MaxBps = 10000
	// PriceDecimals is the fixed-point precision of share prices.
	PriceDecimals = 18
	// placeholderName labels vaults whose state could not be read at all.
	placeholderName = "Unavailable vault"
)

var (
	bpsScale = big.NewInt(MaxBps)
	oneShare = new(big.Int).Exp(big.NewInt(10), big.NewInt(PriceDecimals), nil)
)

// DefaultFallbackSharePrice is 1.0 in 18-decimal fixed point.
func DefaultFallbackSharePrice() *big.Int {
	return new(big.Int).Set(oneShare)
}

// Summary is the display projection of a vault.
type Summary struct {
	Address            string          `json:"address"`
	Name               string          `json:"name"`
	Manager            string          `json:"manager"`
	ManagerName        string          `json:"manager_name,omitempty"`
	Asset              string          `json:"asset"`
	Decimals           uint8           `json:"decimals"`
	TotalAssets        decimal.Decimal `json:"total_assets"`
	TotalAssetsDisplay string          `json:"total_assets_display"`
	TotalShares        decimal.Decimal `json:"total_shares"`
	SharePrice         decimal.Decimal `json:"share_price"`
	SharePriceDisplay  string          `json:"share_price_display"`
	BufferBps          int64           `json:"buffer_bps"`
	FeeBps             int64           `json:"fee_bps"`
	AvailableBuffer    decimal.Decimal `json:"available_buffer"`
	DeployedCapital    decimal.Decimal `json:"deployed_capital"`
	PendingClaims      decimal.Decimal `json:"pending_claims"`
	PolicyCount        int64           `json:"policy_count"`
	Source             Source          `json:"source"`
	FallbackUsed       bool            `json:"fallback_used"`
	MissingFields      []string        `json:"missing_fields,omitempty"`
	Error              string          `json:"error,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// SharePrice returns totalAssets scaled to 18 decimals per share, or a copy of fallback
// when there are no shares.
func SharePrice(totalAssets, totalShares, fallback *big.Int) *big.Int {
	if totalShares == nil || totalShares.Sign() <= 0 {
		if fallback == nil {
			return DefaultFallbackSharePrice()
		}
		return new(big.Int).Set(fallback)
	}
	if totalAssets == nil {
		return new(big.Int)
	}
	price := new(big.Int).Mul(totalAssets, oneShare)
	return price.Quo(price, totalShares)
}

// AvailableBuffer returns assets - deployed - pendingClaims, floored at zero.
func AvailableBuffer(totalAssets, deployed, pendingClaims *big.Int) *big.Int {
	out := new(big.Int)
	if totalAssets != nil {
		out.Set(totalAssets)
	}
	if deployed != nil {
		out.Sub(out, deployed)
	}
	if pendingClaims != nil {
		out.Sub(out, pendingClaims)
	}
	if out.Sign() < 0 {
		return out.SetInt64(0)
	}
	return out
}

// BufferNote is the allocation headroom shown next to risk parameters.
type BufferNote struct {
	BufferBps              int64 `json:"buffer_bps"`
	MaxAllocationBps       int64 `json:"max_allocation_bps"`
	CurrentAllocationBps   int64 `json:"current_allocation_bps"`
	RemainingAllocationBps int64 `json:"remaining_allocation_bps"`
}

// NewBufferNote derives the buffer note of a summary.
func NewBufferNote(s Summary) BufferNote {
	return ComputeBufferNote(s.TotalAssets.BigInt(), s.DeployedCapital.BigInt(), s.BufferBps)
}

// ComputeBufferNote derives the allocation headroom from raw values.
func ComputeBufferNote(totalAssets, deployed *big.Int, bufferBps int64) BufferNote {
	note := BufferNote{BufferBps: bufferBps}

	note.MaxAllocationBps = MaxBps - bufferBps
	if note.MaxAllocationBps < 0 {
		note.MaxAllocationBps = 0
	}

	if totalAssets != nil && totalAssets.Sign() > 0 && deployed != nil {
		current := new(big.Int).Mul(deployed, bpsScale)
		current.Quo(current, totalAssets)
		note.CurrentAllocationBps = clampInt64(current)
	}

	note.RemainingAllocationBps = note.MaxAllocationBps - note.CurrentAllocationBps
	if note.RemainingAllocationBps < 0 {
		note.RemainingAllocationBps = 0
	}
	return note
}

func clampInt64(n *big.Int) int64 {
	if n == nil || n.Sign() <= 0 {
		return 0
	}
	if !n.IsInt64() {
		return 1<<63 - 1
	}
	return n.Int64()
}

func amount(n *big.Int) decimal.Decimal {
	if n == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n, 0)
}

func display(n *big.Int, decimals uint8, places int32) string {
	if n == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(n, -int32(decimals)).StringFixed(places)
}
