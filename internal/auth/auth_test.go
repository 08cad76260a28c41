package auth

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vault_portal/internal/chain"
	svcerrors "github.com/R3E-Network/vault_portal/internal/errors"
	"github.com/R3E-Network/vault_portal/internal/logging"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{Secret: testSecret}, NewMemoryNonceStore(), logging.NewNop())
	require.NoError(t, err)
	return svc
}

func newTestWallet(t *testing.T) *chain.Wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return chain.NewWalletFromKey(key, nil)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Config{Secret: "short"}, NewMemoryNonceStore(), nil)
	assert.Error(t, err)

	_, err = NewService(Config{Secret: testSecret}, nil, nil)
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	wallet := newTestWallet(t)
	ctx := context.Background()

	challenge, err := svc.IssueNonce(ctx, wallet.Address().Hex())
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(wallet.Address().Hex()), challenge.Address)
	assert.Contains(t, challenge.Message, challenge.Nonce)

	sig, err := wallet.SignMessage([]byte(challenge.Message))
	require.NoError(t, err)

	token, err := svc.Verify(ctx, wallet.Address().Hex(), hexutil.Encode(sig))
	require.NoError(t, err)
	assert.Equal(t, challenge.Address, token.Address)

	addr, err := svc.ParseToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, challenge.Address, addr)

	// The nonce is single-use.
	_, err = svc.Verify(ctx, wallet.Address().Hex(), hexutil.Encode(sig))
	assert.True(t, svcerrors.Is(err, svcerrors.CodeUnauthorized))
}

func TestVerify_WrongSigner(t *testing.T) {
	svc := newTestService(t)
	wallet := newTestWallet(t)
	other := newTestWallet(t)
	ctx := context.Background()

	challenge, err := svc.IssueNonce(ctx, wallet.Address().Hex())
	require.NoError(t, err)
	sig, err := other.SignMessage([]byte(challenge.Message))
	require.NoError(t, err)

	_, err = svc.Verify(ctx, wallet.Address().Hex(), hexutil.Encode(sig))
	assert.True(t, svcerrors.Is(err, svcerrors.CodeUnauthorized))
}

func TestVerify_BadInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.IssueNonce(ctx, "not-an-address")
	assert.True(t, svcerrors.Is(err, svcerrors.CodeBadRequest))

	wallet := newTestWallet(t)
	_, err = svc.Verify(ctx, wallet.Address().Hex(), "zz")
	assert.True(t, svcerrors.Is(err, svcerrors.CodeBadRequest))

	_, err = svc.Verify(ctx, wallet.Address().Hex(), "0x00")
	assert.True(t, svcerrors.Is(err, svcerrors.CodeUnauthorized), "no nonce issued")
}

func TestNonceExpiry(t *testing.T) {
	store := NewMemoryNonceStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", "n1", time.Minute))
	now = now.Add(2 * time.Minute)
	_, err := store.Take(ctx, "a")
	assert.ErrorIs(t, err, ErrNonceNotFound)

	require.NoError(t, store.Put(ctx, "a", "n2", time.Minute))
	require.NoError(t, store.Put(ctx, "a", "n3", time.Minute))
	nonce, err := store.Take(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "n3", nonce)
}

func TestParseToken_Rejects(t *testing.T) {
	svc := newTestService(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "0x00000000000000000000000000000000000000aa",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	expiredString, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "0x00000000000000000000000000000000000000aa",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	foreignString, err := foreign.SignedString([]byte("another-secret-another-secret-xx"))
	require.NoError(t, err)

	notAddress := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	notAddressString, err := notAddress.SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"expired":     expiredString,
		"foreign key": foreignString,
		"subject":     notAddressString,
		"garbage":     "a.b.c",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ParseToken(tok)
			assert.True(t, svcerrors.Is(err, svcerrors.CodeUnauthorized))
		})
	}
}

func TestRedisNonceStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store := NewRedisNonceStore(client, "vault_portal_test:")
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "0xabc", "n1", time.Minute))

	nonce, err := store.Take(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "n1", nonce)

	_, err = store.Take(ctx, "0xabc")
	assert.ErrorIs(t, err, ErrNonceNotFound)
}
