package vaults

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/vault_portal/internal/logging"
	"github.com/R3E-Network/vault_portal/internal/metrics"
)

// Directory serves summaries from a cache and refreshes it from the aggregator.
// Cache failures degrade to direct reads.
type Directory struct {
	agg     *Aggregator
	cache   Cache
	logger  *logging.Logger
	metrics *metrics.Metrics

	refreshMu sync.Mutex
}

// NewDirectory creates a directory. A nil cache reads through on every call.
func NewDirectory(agg *Aggregator, cache Cache, logger *logging.Logger, m *metrics.Metrics) *Directory {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Directory{agg: agg, cache: cache, logger: logger, metrics: m}
}

// Aggregator returns the underlying aggregator.
func (d *Directory) Aggregator() *Aggregator {
	return d.agg
}

// Summary returns the summary of addr, from cache when fresh.
func (d *Directory) Summary(ctx context.Context, addr common.Address) Summary {
	if d.cache != nil {
		s, ok, err := d.cache.Get(ctx, addr.Hex())
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("vault cache read failed")
		} else if ok {
			return s
		}
	}
	return d.agg.Summary(ctx, addr)
}

// List returns every vault summary, from cache when fresh, otherwise refreshing it.
func (d *Directory) List(ctx context.Context) []Summary {
	if d.cache != nil {
		list, ok, err := d.cache.List(ctx)
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("vault cache read failed")
		} else if ok {
			return list
		}
	}
	return d.Refresh(ctx, "on_demand")
}

// Refresh recomputes every summary and stores them in the cache. Concurrent refreshes
// are serialized.
func (d *Directory) Refresh(ctx context.Context, trigger string) []Summary {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	summaries := d.agg.List(ctx)
	d.metrics.RecordVaultRefresh(trigger)

	if d.cache != nil {
		if err := d.cache.Put(ctx, summaries); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("vault cache write failed")
		}
	}

	fallbacks := 0
	for _, s := range summaries {
		if s.FallbackUsed {
			fallbacks++
		}
	}
	d.logger.WithContext(ctx).
		WithField("trigger", trigger).
		WithField("vaults", len(summaries)).
		WithField("fallbacks", fallbacks).
		Debug("vault summaries refreshed")
	return summaries
}
