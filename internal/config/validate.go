package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/vault_portal/internal/roles"
)

// ParseAddress validates a single configured address. Mixed-case input must carry a
// valid EIP-55 checksum; all-lower and all-upper input is accepted as is.
func ParseAddress(raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, fmt.Errorf("address %q must start with 0x", raw)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("address %q is not a 20-byte hex address", raw)
	}
	addr := common.HexToAddress(s)
	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && addr.Hex() != s {
		return common.Address{}, fmt.Errorf("address %q has an invalid checksum", raw)
	}
	return addr, nil
}

// ParseAddressList validates every entry of a named list and rejects duplicates.
func ParseAddressList(name string, entries []string) ([]common.Address, error) {
	seen := make(map[common.Address]struct{}, len(entries))
	out := make([]common.Address, 0, len(entries))
	for i, entry := range entries {
		addr, err := ParseAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("%s[%d]: duplicate address %s", name, i, strings.ToLower(addr.Hex()))
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}

func optionalAddress(name, raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := ParseAddress(raw); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Whitelist returns the role lists for a roles.Resolver.
func (c *Config) Whitelist() roles.Whitelist {
	return roles.Whitelist{
		Admin:     c.Roles.Admin,
		Insurance: c.Roles.Insurance,
		Syndicate: c.Roles.Syndicate,
	}
}

// RoleOverlaps reports addresses listed under more than one role.
func (c *Config) RoleOverlaps() []roles.Overlap {
	return roles.NewResolver(c.Whitelist()).Overlaps()
}

// KnownVaults returns the parsed known vault addresses.
func (c *Config) KnownVaults() []common.Address {
	out, err := ParseAddressList("chain.contracts.known_vaults", c.Chain.Contracts.KnownVaults)
	if err != nil {
		return nil
	}
	return out
}

// Validate checks the configuration. Overlapping role lists are an error only when
// roles.strict_disjoint is set.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if u, err := url.Parse(c.Chain.RPCURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("chain.rpc_url %q is not a valid URL", c.Chain.RPCURL)
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id must be positive")
	}
	if err := optionalAddress("chain.contracts.factory", c.Chain.Contracts.Factory); err != nil {
		return err
	}
	if err := optionalAddress("chain.contracts.registry", c.Chain.Contracts.Registry); err != nil {
		return err
	}
	if err := optionalAddress("chain.contracts.ens_registry", c.Chain.Contracts.ENSRegistry); err != nil {
		return err
	}
	if _, err := ParseAddressList("chain.contracts.known_vaults", c.Chain.Contracts.KnownVaults); err != nil {
		return err
	}
	if c.Chain.Contracts.Factory == "" && len(c.Chain.Contracts.KnownVaults) == 0 {
		return fmt.Errorf("chain.contracts.factory or chain.contracts.known_vaults is required")
	}

	for name, list := range map[string][]string{
		"roles.admin":     c.Roles.Admin,
		"roles.insurance": c.Roles.Insurance,
		"roles.syndicate": c.Roles.Syndicate,
	} {
		if _, err := ParseAddressList(name, list); err != nil {
			return err
		}
	}
	if overlaps := c.RoleOverlaps(); c.Roles.StrictDisjoint && len(overlaps) > 0 {
		return fmt.Errorf("roles: %s is listed under %v while strict_disjoint is set", overlaps[0].Address, overlaps[0].Lists)
	}

	if _, err := cron.ParseStandard(c.Vaults.RefreshSchedule); err != nil {
		return fmt.Errorf("vaults.refresh_schedule: %w", err)
	}
	if _, err := c.Vaults.FallbackPrice(); err != nil {
		return err
	}

	if c.Names.Enabled && c.Chain.Contracts.ENSRegistry == "" {
		return fmt.Errorf("names.enabled requires chain.contracts.ens_registry")
	}

	switch c.Email.Provider {
	case "", EmailProviderHTTP, EmailProviderSMTP:
	default:
		return fmt.Errorf("email.provider must be %q or %q", EmailProviderHTTP, EmailProviderSMTP)
	}

	if len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth.secret must be at least 32 bytes")
	}
	return nil
}
