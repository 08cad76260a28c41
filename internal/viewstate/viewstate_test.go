package viewstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vault_portal/internal/roles"
)

const (
	adminAddr    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	investorAddr = "0x9999999999999999999999999999999999999999"
)

func newTestStore() (*Store, *roles.Resolver) {
	resolver := roles.NewResolver(roles.Whitelist{Admin: []string{adminAddr}})
	return NewStore(resolver), resolver
}

func TestGet_DefaultsToResolvedRole(t *testing.T) {
	s, _ := newTestStore()
	assert.Equal(t, roles.Admin, s.Get(adminAddr))
	assert.Equal(t, roles.Investor, s.Get(investorAddr))
}

func TestSetAndClear(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Set("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", roles.Syndicate))
	assert.Equal(t, roles.Syndicate, s.Get(adminAddr))

	s.Clear(adminAddr)
	assert.Equal(t, roles.Admin, s.Get(adminAddr))

	assert.ErrorIs(t, s.Set(adminAddr, roles.Role("root")), ErrInvalidRole)
}

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	s, _ := newTestStore()

	var got []string
	unsubA := s.Subscribe(adminAddr, func(r roles.Role) { got = append(got, "a:"+string(r)) })
	s.Subscribe(adminAddr, func(r roles.Role) { got = append(got, "b:"+string(r)) })

	require.NoError(t, s.Set(adminAddr, roles.Insurance))
	assert.Equal(t, []string{"a:insurance", "b:insurance"}, got)

	unsubA()
	unsubA()
	got = nil
	require.NoError(t, s.Set(adminAddr, roles.Investor))
	assert.Equal(t, []string{"b:investor"}, got)
	assert.Equal(t, 1, s.Subscribers(adminAddr))
}

func TestSubscribe_UnsubscribeDuringNotify(t *testing.T) {
	s, _ := newTestStore()

	var calls []string
	var unsubSecond func()
	unsubFirst := s.Subscribe(adminAddr, func(roles.Role) {
		calls = append(calls, "first")
		unsubSecond()
	})
	unsubSecond = s.Subscribe(adminAddr, func(roles.Role) { calls = append(calls, "second") })
	defer unsubFirst()

	require.NoError(t, s.Set(adminAddr, roles.Syndicate))
	assert.Equal(t, []string{"first"}, calls)
}

func TestSubscribe_SelfUnsubscribe(t *testing.T) {
	s, _ := newTestStore()

	count := 0
	var unsub func()
	unsub = s.Subscribe(adminAddr, func(roles.Role) {
		count++
		unsub()
	})

	require.NoError(t, s.Set(adminAddr, roles.Syndicate))
	require.NoError(t, s.Set(adminAddr, roles.Insurance))
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, s.Subscribers(adminAddr))
}

func TestSwitch(t *testing.T) {
	s, resolver := newTestStore()

	admin := resolver.ResolveSession(adminAddr, true)
	require.NoError(t, s.Switch(admin, roles.Insurance))
	assert.Equal(t, roles.Insurance, s.Get(adminAddr))
	assert.True(t, roles.Allowed(admin, roles.ActionSwitchViewRole), "view role must not change permissions")

	investor := resolver.ResolveSession(investorAddr, true)
	assert.ErrorIs(t, s.Switch(investor, roles.Admin), ErrNotPermitted)
	assert.NoError(t, s.Switch(investor, roles.Investor))

	assert.ErrorIs(t, s.Switch(resolver.ResolveSession("", false), roles.Investor), ErrDisconnected)
}

func TestSessionsAreIsolated(t *testing.T) {
	s, _ := newTestStore()
	notified := false
	s.Subscribe(investorAddr, func(roles.Role) { notified = true })

	require.NoError(t, s.Set(adminAddr, roles.Syndicate))
	assert.False(t, notified)
	assert.Equal(t, roles.Investor, s.Get(investorAddr))
}
