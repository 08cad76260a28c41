// Package auth implements wallet sign-in: a single-use nonce, an EIP-191 signature
// over a login message, and an HS256 session token whose subject is the address.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/R3E-Network/vault_portal/internal/chain"
	svcerrors "github.com/R3E-Network/vault_portal/internal/errors"
	"github.com/R3E-Network/vault_portal/internal/logging"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	DefaultNonceTTL = 5 * time.Minute
	issuer          = "vault-portal"
)

// Config configures a Service.
type Config struct {
	Secret   string
	TokenTTL time.Duration
	NonceTTL time.Duration
}

// Challenge is what a wallet must sign to log in.
type Challenge struct {
	Address   string    `json:"address"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token is an issued session token.
type Token struct {
	Token     string    `json:"token"`
	Address   string    `json:"address"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims are the session token claims.
type Claims struct {
	jwt.RegisteredClaims
}

// Service issues challenges and session tokens.
type Service struct {
	secret   []byte
	tokenTTL time.Duration
	nonceTTL time.Duration
	nonces   NonceStore
	logger   *logging.Logger
	now      func() time.Time
}

// NewService creates an auth service. The secret must be at least 32 bytes.
func NewService(cfg Config, nonces NonceStore, logger *logging.Logger) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("auth secret must be at least 32 bytes")
	}
	if nonces == nil {
		return nil, errors.New("nonce store required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = DefaultNonceTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		secret:   []byte(cfg.Secret),
		tokenTTL: cfg.TokenTTL,
		nonceTTL: cfg.NonceTTL,
		nonces:   nonces,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// LoginMessage is the text a wallet signs for nonce.
func LoginMessage(address, nonce string) string {
	return fmt.Sprintf("Sign in to the vault portal\n\nAddress: %s\nNonce: %s", strings.ToLower(address), nonce)
}

// IssueNonce creates a fresh nonce for address, replacing any previous one.
func (s *Service) IssueNonce(ctx context.Context, address string) (Challenge, error) {
	if !common.IsHexAddress(address) {
		return Challenge{}, svcerrors.BadRequest("invalid address")
	}
	addr := strings.ToLower(address)
	nonce := uuid.NewString()
	if err := s.nonces.Put(ctx, addr, nonce, s.nonceTTL); err != nil {
		return Challenge{}, svcerrors.Internal("failed to issue nonce", err)
	}
	return Challenge{
		Address:   addr,
		Nonce:     nonce,
		Message:   LoginMessage(addr, nonce),
		ExpiresAt: s.now().Add(s.nonceTTL).UTC(),
	}, nil
}

// Verify checks signature against the outstanding nonce of address and issues a token.
// The nonce is consumed whether or not the signature is valid.
func (s *Service) Verify(ctx context.Context, address, signature string) (Token, error) {
	if !common.IsHexAddress(address) {
		return Token{}, svcerrors.BadRequest("invalid address")
	}
	addr := strings.ToLower(address)

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return Token{}, svcerrors.BadRequest("invalid signature encoding")
	}

	nonce, err := s.nonces.Take(ctx, addr)
	if errors.Is(err, ErrNonceNotFound) {
		return Token{}, svcerrors.Unauthorized("nonce expired or not issued")
	}
	if err != nil {
		return Token{}, svcerrors.Internal("failed to load nonce", err)
	}

	signer, err := chain.RecoverMessageSigner([]byte(LoginMessage(addr, nonce)), sig)
	if err != nil || !strings.EqualFold(signer.Hex(), addr) {
		s.logger.LogSecurityEvent(ctx, "login_signature_rejected", map[string]interface{}{
			"address": addr,
		})
		return Token{}, svcerrors.Unauthorized("signature does not match address")
	}

	return s.issueToken(addr)
}

func (s *Service) issueToken(addr string) (Token, error) {
	now := s.now()
	expires := now.Add(s.tokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, svcerrors.Internal("failed to sign token", err)
	}
	return Token{Token: signed, Address: addr, ExpiresAt: expires.UTC()}, nil
}

// ParseToken validates a session token and returns the lower-cased address.
func (s *Service) ParseToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", svcerrors.Unauthorized("invalid session token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !common.IsHexAddress(claims.Subject) {
		return "", svcerrors.Unauthorized("invalid session token")
	}
	return strings.ToLower(claims.Subject), nil
}
