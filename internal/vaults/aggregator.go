package vaults

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/vault_portal/internal/chain"
	"github.com/R3E-Network/vault_portal/internal/logging"
	"github.com/R3E-Network/vault_portal/internal/metrics"
	portalchain "github.com/R3E-Network/vault_portal/services/portal/chain"
)

// NameLookup resolves display names for addresses on a best-effort basis.
type NameLookup interface {
	Lookup(ctx context.Context, addr common.Address) (string, bool)
}

// VaultLister enumerates deployed vaults.
type VaultLister interface {
	AllVaults(ctx context.Context) ([]common.Address, error)
}

// Config configures an Aggregator.
type Config struct {
	// FallbackSharePrice is used when a vault has no shares. Defaults to 1e18.
	FallbackSharePrice *big.Int
	// KnownVaults are always listed and used when the factory cannot be read.
	KnownVaults []common.Address
	// Concurrency bounds parallel vault reads in List. Defaults to 8.
	Concurrency int
}

// Aggregator builds vault summaries from chain reads.
type Aggregator struct {
	reader   chain.Reader
	factory  VaultLister
	registry *portalchain.RegistryContract
	names    NameLookup
	cfg      Config
	logger   *logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithFactory sets the vault factory used by List.
func WithFactory(f VaultLister) Option {
	return func(a *Aggregator) { a.factory = f }
}

// WithRegistry sets the policy registry used by Policies.
func WithRegistry(r *portalchain.RegistryContract) Option {
	return func(a *Aggregator) { a.registry = r }
}

// WithNames sets the name resolver for manager display names.
func WithNames(n NameLookup) Option {
	return func(a *Aggregator) { a.names = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator creates an aggregator reading through reader.
func NewAggregator(reader chain.Reader, cfg Config, logger *logging.Logger, opts ...Option) *Aggregator {
	if cfg.FallbackSharePrice == nil || cfg.FallbackSharePrice.Sign() <= 0 {
		cfg.FallbackSharePrice = DefaultFallbackSharePrice()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &Aggregator{
		reader: reader,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summary returns the summary of the vault at addr. It never fails: a vault whose
// consolidated read fails is rebuilt from per-field reads, and one that cannot be read
// at all yields a placeholder.
func (a *Aggregator) Summary(ctx context.Context, addr common.Address) Summary {
	vault := portalchain.NewVaultContract(a.reader, addr)
	log := a.logger.WithContext(ctx).WithField("vault", addr.Hex())

	info, err := vault.GetVaultInfo(ctx)
	if err == nil {
		s := a.fromPrimary(addr, info)
		// Decimals are not part of getVaultInfo.
		if d, derr := vault.Decimals(ctx); derr == nil {
			s.Decimals = d
			a.fillDisplay(&s, info.TotalAssets)
		}
		a.attachManagerName(ctx, &s)
		a.metrics.RecordVaultRead(string(s.Source))
		return s
	}

	log.WithError(err).Warn("getVaultInfo failed, falling back to per-field reads")
	primaryErr := describeReadError(err)

	partial, failed := vault.ReadFields(ctx)
	if len(failed) == len(portalchain.Fields()) {
		log.WithField("fields", len(failed)).Error("vault state unavailable")
		s := a.placeholder(addr, primaryErr)
		a.metrics.RecordVaultRead(string(s.Source))
		return s
	}

	s := a.fromFields(addr, partial, failed, primaryErr)
	if len(failed) > 0 {
		log.WithFields(logrus.Fields{"missing_fields": s.MissingFields}).Warn("vault summary rebuilt with missing fields")
	}
	a.attachManagerName(ctx, &s)
	a.metrics.RecordVaultRead(string(s.Source))
	return s
}

func (a *Aggregator) fromPrimary(addr common.Address, info *portalchain.VaultInfo) Summary {
	sharePrice := info.SharePrice
	if sharePrice == nil || sharePrice.Sign() == 0 || info.TotalShares == nil || info.TotalShares.Sign() == 0 {
		sharePrice = SharePrice(info.TotalAssets, info.TotalShares, a.cfg.FallbackSharePrice)
	}

	s := Summary{
		Address:         strings.ToLower(addr.Hex()),
		Name:            info.Name,
		Manager:         info.Manager.Hex(),
		Asset:           info.Asset.Hex(),
		Decimals:        PriceDecimals,
		TotalAssets:     amount(info.TotalAssets),
		TotalShares:     amount(info.TotalShares),
		SharePrice:      amount(sharePrice),
		BufferBps:       clampInt64(info.BufferRatioBps),
		FeeBps:          clampInt64(info.FeeBps),
		AvailableBuffer: amount(info.AvailableBuffer),
		DeployedCapital: amount(info.DeployedCapital),
		PendingClaims:   amount(info.PendingClaims),
		PolicyCount:     clampInt64(info.PolicyCount),
		Source:          SourcePrimary,
		UpdatedAt:       a.now(),
	}
	s.SharePriceDisplay = display(sharePrice, PriceDecimals, 4)
	a.fillDisplay(&s, info.TotalAssets)
	return s
}

func (a *Aggregator) fromFields(addr common.Address, info *portalchain.VaultInfo, failed map[portalchain.Field]error, primaryErr string) Summary {
	decimals := info.Decimals
	if _, missing := failed[portalchain.FieldDecimals]; missing {
		decimals = PriceDecimals
	}

	sharePrice := SharePrice(info.TotalAssets, info.TotalShares, a.cfg.FallbackSharePrice)
	available := AvailableBuffer(info.TotalAssets, info.DeployedCapital, info.PendingClaims)

	missing := make([]string, 0, len(failed))
	for f := range failed {
		missing = append(missing, string(f))
	}
	sort.Strings(missing)

	s := Summary{
		Address:         strings.ToLower(addr.Hex()),
		Name:            info.Name,
		Manager:         info.Manager.Hex(),
		Asset:           info.Asset.Hex(),
		Decimals:        decimals,
		TotalAssets:     amount(info.TotalAssets),
		TotalShares:     amount(info.TotalShares),
		SharePrice:      amount(sharePrice),
		BufferBps:       clampInt64(info.BufferRatioBps),
		FeeBps:          clampInt64(info.FeeBps),
		AvailableBuffer: amount(available),
		DeployedCapital: amount(info.DeployedCapital),
		PendingClaims:   amount(info.PendingClaims),
		PolicyCount:     clampInt64(info.PolicyCount),
		Source:          SourceFallback,
		FallbackUsed:    true,
		MissingFields:   missing,
		Error:           primaryErr,
		UpdatedAt:       a.now(),
	}
	s.SharePriceDisplay = display(sharePrice, PriceDecimals, 4)
	a.fillDisplay(&s, info.TotalAssets)
	return s
}

func (a *Aggregator) placeholder(addr common.Address, primaryErr string) Summary {
	missing := make([]string, 0, len(portalchain.Fields()))
	for _, f := range portalchain.Fields() {
		missing = append(missing, string(f))
	}
	sort.Strings(missing)

	errMsg := "vault state unavailable"
	if primaryErr != "" {
		errMsg += ": " + primaryErr
	}

	s := Summary{
		Address:         strings.ToLower(addr.Hex()),
		Name:            placeholderName,
		Manager:         common.Address{}.Hex(),
		Asset:           common.Address{}.Hex(),
		Decimals:        PriceDecimals,
		TotalAssets:     decimal.Zero,
		TotalShares:     decimal.Zero,
		SharePrice:      amount(a.cfg.FallbackSharePrice),
		AvailableBuffer: decimal.Zero,
		DeployedCapital: decimal.Zero,
		PendingClaims:   decimal.Zero,
		Source:          SourcePlaceholder,
		FallbackUsed:    true,
		MissingFields:   missing,
		Error:           errMsg,
		UpdatedAt:       a.now(),
	}
	s.SharePriceDisplay = display(a.cfg.FallbackSharePrice, PriceDecimals, 4)
	s.TotalAssetsDisplay = display(nil, PriceDecimals, 2)
	return s
}

func (a *Aggregator) fillDisplay(s *Summary, totalAssets *big.Int) {
	s.TotalAssetsDisplay = display(totalAssets, s.Decimals, 2)
}

func (a *Aggregator) attachManagerName(ctx context.Context, s *Summary) {
	if a.names == nil || s.Manager == (common.Address{}).Hex() {
		return
	}
	if name, ok := a.names.Lookup(ctx, common.HexToAddress(s.Manager)); ok {
		s.ManagerName = name
	}
}

func describeReadError(err error) string {
	if err == nil {
		return ""
	}
	if chain.IsRevert(err) {
		return "getVaultInfo reverted"
	}
	return "getVaultInfo unavailable"
}

// Addresses returns the vaults to list: factory vaults followed by configured known
// vaults, deduplicated. A factory failure leaves only the known vaults.
func (a *Aggregator) Addresses(ctx context.Context) []common.Address {
	seen := make(map[common.Address]struct{})
	var out []common.Address
	add := func(addrs []common.Address) {
		for _, addr := range addrs {
			if addr == (common.Address{}) {
				continue
			}
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}

	if a.factory != nil {
		vaults, err := a.factory.AllVaults(ctx)
		if err != nil {
			a.logger.WithContext(ctx).WithError(err).Warn("vault factory unavailable, using known vaults")
		} else {
			add(vaults)
		}
	}
	add(a.cfg.KnownVaults)
	return out
}

// List returns summaries for every vault, read concurrently. Order follows Addresses.
func (a *Aggregator) List(ctx context.Context) []Summary {
	addrs := a.Addresses(ctx)
	out := make([]Summary, len(addrs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			out[i] = a.Summary(gctx, addr)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
