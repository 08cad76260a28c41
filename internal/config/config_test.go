package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminAddr     = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	insuranceAddr = "0x00000000000000000000000000000000000000b1"
	syndicateAddr = "0x00000000000000000000000000000000000000c1"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Chain.RPCURL = "http://localhost:8545"
	cfg.Chain.Contracts.Factory = "0x00000000000000000000000000000000000000f1"
	cfg.Roles.Admin = []string{"0x00000000000000000000000000000000000000a1"}
	cfg.Auth.Secret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"lower", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"upper", "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", false},
		{"checksummed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"bad checksum", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", true},
		{"no prefix", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", true},
		{"short", "0x1234", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseAddressList_Duplicates(t *testing.T) {
	_, err := ParseAddressList("roles.admin", []string{
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc", func(c *Config) { c.Chain.RPCURL = "" }},
		{"bad rpc", func(c *Config) { c.Chain.RPCURL = "localhost" }},
		{"no vault source", func(c *Config) { c.Chain.Contracts.Factory = "" }},
		{"bad role entry", func(c *Config) { c.Roles.Syndicate = []string{"0xnope"} }},
		{"bad schedule", func(c *Config) { c.Vaults.RefreshSchedule = "sometimes" }},
		{"bad fallback price", func(c *Config) { c.Vaults.FallbackSharePrice = "0" }},
		{"short secret", func(c *Config) { c.Auth.Secret = "x" }},
		{"names without registry", func(c *Config) { c.Names.Enabled = true }},
		{"bad email provider", func(c *Config) { c.Email.Provider = "pigeon" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_Overlaps(t *testing.T) {
	cfg := validConfig()
	cfg.Roles.Insurance = []string{insuranceAddr}
	cfg.Roles.Syndicate = []string{insuranceAddr, syndicateAddr}

	require.NoError(t, cfg.Validate())
	overlaps := cfg.RoleOverlaps()
	require.Len(t, overlaps, 1)
	assert.Equal(t, "insurance", string(overlaps[0].ResolvesTo))

	cfg.Roles.StrictDisjoint = true
	assert.Error(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, "portal.yaml", `
server:
  port: 9090
chain:
  rpc_url: http://node:8545
  chain_id: 8453
  poll_interval: 500ms
  contracts:
    factory: "0x00000000000000000000000000000000000000f1"
roles:
  admin:
    - "`+adminAddr+`"
auth:
  secret: "0123456789abcdef0123456789abcdef"
`)
	t.Setenv("PORTAL_PORT", "9191")
	t.Setenv("PORTAL_ROLES_SYNDICATE", syndicateAddr)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, int64(8453), cfg.Chain.ChainID)
	assert.Equal(t, 500*time.Millisecond, cfg.Chain.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Chain.ReceiptTimeout)
	assert.Equal(t, []string{adminAddr}, cfg.Roles.Admin)
	assert.Equal(t, []string{syndicateAddr}, cfg.Roles.Syndicate)
	assert.Equal(t, "@every 30s", cfg.Vaults.RefreshSchedule)
	assert.Equal(t, 1024, cfg.Names.CacheSize)

	price, err := cfg.Vaults.FallbackPrice()
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", price.String())
}

func TestLoad_PortalConfigEnv(t *testing.T) {
	path := writeFile(t, "custom.yaml", `
chain:
  rpc_url: http://node:8545
  contracts:
    known_vaults: ["0x00000000000000000000000000000000000000e1"]
auth:
  secret: "0123456789abcdef0123456789abcdef"
`)
	t.Setenv("PORTAL_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Len(t, cfg.KnownVaults(), 1)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "explicit missing file")

	_, err = Load(writeFile(t, "bad.yaml", "server: [unterminated"))
	assert.Error(t, err)
}
