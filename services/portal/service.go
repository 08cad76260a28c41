// Package portal serves the insurance vault portal API: role-gated vault views,
// transaction preparation and tracking, wallet sessions and the newsletter signup.
//
// Flow for a write:
//  1. The client asks a prepare endpoint (deposit, create vault, ...) for a transaction.
//  2. The portal checks the session's role, builds calldata and records it as
//     pending_signature.
//  3. The wallet signs the returned request; the client posts the raw transaction to
//     /tx/{id}/submit.
//  4. The portal verifies it matches what was prepared, broadcasts it and tracks the
//     receipt until confirmed or failed.
//
// The portal never holds user keys and never retries a failed transaction.
package portal

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/R3E-Network/vault_portal/internal/auth"
	"github.com/R3E-Network/vault_portal/internal/chain"
	"github.com/R3E-Network/vault_portal/internal/logging"
	"github.com/R3E-Network/vault_portal/internal/metrics"
	"github.com/R3E-Network/vault_portal/internal/middleware"
	"github.com/R3E-Network/vault_portal/internal/names"
	"github.com/R3E-Network/vault_portal/internal/roles"
	"github.com/R3E-Network/vault_portal/internal/txtrack"
	"github.com/R3E-Network/vault_portal/internal/vaults"
	"github.com/R3E-Network/vault_portal/internal/viewstate"
	commonservice "github.com/R3E-Network/vault_portal/services/common/service"
)

const (
	ServiceID   = "portal"
	ServiceName = "Vault Portal"
	Version     = "1.0.0"

	// defaultTxListLimit caps GET /tx.
	defaultTxListLimit = 50
	maxTxListLimit     = 200

	limiterIdle = 10 * time.Minute
)

// Subscriber adds an email address to the newsletter list.
type Subscriber interface {
	Subscribe(ctx context.Context, email string) error
}

// Welcomer sends the welcome email after a subscription.
type Welcomer interface {
	SendWelcome(ctx context.Context, email, name string) error
}

// heightReader is implemented by chain clients that can report the head block.
type heightReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config wires the portal's dependencies.
type Config struct {
	Logger  *logging.Logger
	Metrics *metrics.Metrics

	Reader  chain.Reader
	Roles   *roles.Resolver
	Views   *viewstate.Store
	Vaults  *vaults.Directory
	Poller  *vaults.Poller
	Names   names.Resolver
	Tracker *txtrack.Tracker
	Auth    *auth.Service

	// Mailing and Welcome are optional; without Mailing the newsletter endpoint
	// reports a submission failure.
	Mailing Subscriber
	Welcome Welcomer

	// Factory and Registry are the targets of create-vault and register-policy
	// transactions. A zero address disables the endpoint.
	Factory  common.Address
	Registry common.Address

	AllowedOrigins []string
	RateLimit      int
	RateBurst      int
}

// Service implements the portal API.
type Service struct {
	*commonservice.BaseService

	reader   chain.Reader
	roles    *roles.Resolver
	views    *viewstate.Store
	vaults   *vaults.Directory
	names    names.Resolver
	tracker  *txtrack.Tracker
	auth     *auth.Service
	mailing  Subscriber
	welcome  Welcomer
	factory  common.Address
	registry common.Address
	metrics  *metrics.Metrics

	limiter  *middleware.RateLimiter
	cors     *middleware.CORSMiddleware
	tracing  *middleware.TracingMiddleware
	upgrader websocket.Upgrader
}

// New creates the portal service and registers its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Reader == nil || cfg.Roles == nil || cfg.Views == nil || cfg.Vaults == nil {
		return nil, errors.New("portal: chain reader, roles, view store and vault directory are required")
	}
	if cfg.Tracker == nil || cfg.Auth == nil {
		return nil, errors.New("portal: transaction tracker and auth service are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	nameResolver := cfg.Names
	if nameResolver == nil {
		nameResolver = names.Noop{}
	}

	base := commonservice.NewBase(commonservice.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Logger:  logger,
	})

	s := &Service{
		BaseService: base,
		reader:      cfg.Reader,
		roles:       cfg.Roles,
		views:       cfg.Views,
		vaults:      cfg.Vaults,
		names:       nameResolver,
		tracker:     cfg.Tracker,
		auth:        cfg.Auth,
		mailing:     cfg.Mailing,
		welcome:     cfg.Welcome,
		factory:     cfg.Factory,
		registry:    cfg.Registry,
		metrics:     cfg.Metrics,
		limiter:     middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, logger),
		cors:        middleware.NewCORSMiddleware(cfg.AllowedOrigins),
		tracing:     middleware.NewTracingMiddleware(logger, "/health", "/metrics"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	if hr, ok := cfg.Reader.(heightReader); ok {
		base.WithHealthCheck("chain", true, func(ctx context.Context) error {
			_, err := hr.BlockNumber(ctx)
			return err
		})
	}
	base.WithStats(s.stats)

	base.AddTickerWorker("ratelimit-cleanup", time.Minute, func(context.Context) error {
		s.limiter.Cleanup(limiterIdle)
		return nil
	})
	base.AddTickerWorker("health", 30*time.Second, func(ctx context.Context) error {
		base.CheckHealth(ctx)
		return nil
	})
	if cfg.Poller != nil {
		poller := cfg.Poller
		base.AddWorker(func(ctx context.Context) {
			poller.Start(ctx)
			select {
			case <-ctx.Done():
			case <-base.StopChan():
			}
			poller.Stop()
		})
	}

	base.RegisterStandardRoutes()
	s.registerRoutes()
	return s, nil
}

// registerRoutes registers the portal routes and the router-level middleware.
func (s *Service) registerRoutes() {
	router := s.Router()
	router.Use(
		middleware.MetricsMiddleware(ServiceID, s.metrics),
		middleware.NewSessionMiddleware(s.auth, s.Logger()).Handler,
		s.limiter.Handler,
	)

	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	// Sessions
	router.HandleFunc("/auth/nonce", s.handleAuthNonce).Methods(http.MethodGet)
	router.HandleFunc("/auth/verify", s.handleAuthVerify).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout", s.handleAuthLogout).Methods(http.MethodPost)
	router.HandleFunc("/roles/me", s.handleRolesMe).Methods(http.MethodGet)
	router.HandleFunc("/session/view-role", s.handleGetViewRole).Methods(http.MethodGet)
	router.HandleFunc("/session/view-role", s.handleSetViewRole).Methods(http.MethodPut)
	router.HandleFunc("/session/view-role/ws", s.handleViewRoleStream).Methods(http.MethodGet)

	// Vaults
	router.HandleFunc("/vaults", s.handleListVaults).Methods(http.MethodGet)
	router.HandleFunc("/vaults", s.handleCreateVault).Methods(http.MethodPost)
	router.HandleFunc("/vaults/refresh", s.handleRefreshVaults).Methods(http.MethodPost)
	router.HandleFunc("/vaults/{address}", s.handleGetVault).Methods(http.MethodGet)
	router.HandleFunc("/vaults/{address}/buffer-note", s.handleBufferNote).Methods(http.MethodGet)
	router.HandleFunc("/vaults/{address}/policies", s.handleVaultPolicies).Methods(http.MethodGet)
	router.HandleFunc("/vaults/{address}/policies", s.handleAddPolicy).Methods(http.MethodPost)
	router.HandleFunc("/vaults/{address}/deposit", s.handleDeposit).Methods(http.MethodPost)
	router.HandleFunc("/vaults/{address}/withdraw", s.handleWithdraw).Methods(http.MethodPost)
	router.HandleFunc("/vaults/{address}/risk", s.handleAdjustRisk).Methods(http.MethodPut)

	// Policies and names
	router.HandleFunc("/policies", s.handleRegisterPolicy).Methods(http.MethodPost)
	router.HandleFunc("/policies/{id}", s.handleGetPolicy).Methods(http.MethodGet)
	router.HandleFunc("/names/{address}", s.handleLookupName).Methods(http.MethodGet)

	// Transactions
	router.HandleFunc("/tx", s.handleListTx).Methods(http.MethodGet)
	router.HandleFunc("/tx/{id}", s.handleGetTx).Methods(http.MethodGet)
	router.HandleFunc("/tx/{id}/submit", s.handleSubmitTx).Methods(http.MethodPost)

	// Newsletter
	router.HandleFunc("/newsletter", s.handleNewsletter).Methods(http.MethodPost)
}

// Handler returns the full HTTP handler. Tracing and CORS wrap the router so that
// preflight requests are answered before route matching.
func (s *Service) Handler() http.Handler {
	return s.tracing.Handler(s.cors.Handler(s.Router()))
}

// Stop stops the workers and the receipt watchers.
func (s *Service) Stop() error {
	err := s.BaseService.Stop()
	s.tracker.Close()
	return err
}

func (s *Service) stats() map[string]any {
	return map[string]any{
		"rate_limited_clients": s.limiter.Size(),
		"role_counts":          s.roles.Counts(),
		"role_overlaps":        s.roles.Overlaps(),
	}
}
