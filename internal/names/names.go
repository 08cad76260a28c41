// Package names resolves human-readable names for addresses. Lookups are best-effort:
// they never fail the caller and never block past their timeout.
package names

import (
	"context"
	_ "embed"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/R3E-Network/vault_portal/internal/chain"
	"github.com/R3E-Network/vault_portal/internal/logging"
	"github.com/R3E-Network/vault_portal/internal/metrics"
)

// Resolver maps an address to a display name.
type Resolver interface {
	Lookup(ctx context.Context, addr common.Address) (string, bool)
}

// Static resolves from a fixed map. Keys are matched case-insensitively.
type Static map[string]string

// Lookup returns the configured name of addr.
func (s Static) Lookup(_ context.Context, addr common.Address) (string, bool) {
	for k, v := range s {
		if strings.EqualFold(k, addr.Hex()) {
			return v, true
		}
	}
	return "", false
}

// Noop never resolves a name.
type Noop struct{}

// Lookup always misses.
func (Noop) Lookup(context.Context, common.Address) (string, bool) { return "", false }

//go:embed ens_abi.json
var ensABIJSON string

// Namehash implements the ENS name hashing algorithm.
func Namehash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		node = common.BytesToHash(crypto.Keccak256(node.Bytes(), labelHash))
	}
	return node
}

// ReverseNode returns the namehash of <addr>.addr.reverse.
func ReverseNode(addr common.Address) common.Hash {
	return Namehash(strings.ToLower(strings.TrimPrefix(addr.Hex(), "0x")) + ".addr.reverse")
}

type cachedName struct {
	name  string
	found bool
}

// ENSConfig configures an ENSResolver.
type ENSConfig struct {
	Registry  common.Address
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// ENSResolver performs ENS reverse resolution with an expiring LRU cache. Misses are
// cached as well.
type ENSResolver struct {
	reader   chain.Reader
	registry *chain.BoundContract
	timeout  time.Duration
	cache    *expirable.LRU[common.Address, cachedName]
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewENSResolver creates an ENS reverse resolver.
func NewENSResolver(reader chain.Reader, cfg ENSConfig, logger *logging.Logger, m *metrics.Metrics) (*ENSResolver, error) {
	parsed, err := chain.ParseABI(ensABIJSON)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 750 * time.Millisecond
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ENSResolver{
		reader:   reader,
		registry: chain.NewBoundContract(cfg.Registry, parsed),
		timeout:  cfg.Timeout,
		cache:    expirable.NewLRU[common.Address, cachedName](cfg.CacheSize, nil, cfg.CacheTTL),
		logger:   logger,
		metrics:  m,
	}, nil
}

// Lookup returns the primary ENS name of addr.
func (r *ENSResolver) Lookup(ctx context.Context, addr common.Address) (string, bool) {
	if cached, ok := r.cache.Get(addr); ok {
		r.metrics.RecordNameLookup("cached")
		return cached.name, cached.found
	}

	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	name, err := r.reverse(lctx, addr)
	if err != nil {
		// Transient failures are not cached so the next view retries.
		r.metrics.RecordNameLookup("error")
		r.logger.WithContext(ctx).WithError(err).WithField("address", addr.Hex()).Debug("name lookup failed")
		return "", false
	}

	found := name != ""
	r.cache.Add(addr, cachedName{name: name, found: found})
	if found {
		r.metrics.RecordNameLookup("hit")
	} else {
		r.metrics.RecordNameLookup("miss")
	}
	return name, found
}

func (r *ENSResolver) reverse(ctx context.Context, addr common.Address) (string, error) {
	node := ReverseNode(addr)

	out, err := r.registry.Call(ctx, r.reader, "resolver", node)
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", nil
	}
	resolverAddr, ok := out[0].(common.Address)
	if !ok || resolverAddr == (common.Address{}) {
		return "", nil
	}

	resolver := chain.NewBoundContract(resolverAddr, r.registry.ABI)
	out, err = resolver.Call(ctx, r.reader, "name", node)
	if err != nil {
		if chain.IsRevert(err) {
			return "", nil
		}
		return "", err
	}
	if len(out) == 0 {
		return "", nil
	}
	name, _ := out[0].(string)
	return name, nil
}

// Len returns the number of cached entries.
func (r *ENSResolver) Len() int {
	return r.cache.Len()
}
