// Command portal serves the vault portal API.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/vault_portal/internal/auth"
	"github.com/R3E-Network/vault_portal/internal/chain"
	"github.com/R3E-Network/vault_portal/internal/config"
	"github.com/R3E-Network/vault_portal/internal/logging"
	"github.com/R3E-Network/vault_portal/internal/metrics"
	"github.com/R3E-Network/vault_portal/internal/names"
	"github.com/R3E-Network/vault_portal/internal/notify"
	"github.com/R3E-Network/vault_portal/internal/roles"
	"github.com/R3E-Network/vault_portal/internal/txtrack"
	"github.com/R3E-Network/vault_portal/internal/vaults"
	"github.com/R3E-Network/vault_portal/internal/viewstate"
	"github.com/R3E-Network/vault_portal/services/portal"
	portalchain "github.com/R3E-Network/vault_portal/services/portal/chain"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(portal.ServiceID, cfg.Logging)
	m := metrics.New("vault_portal")

	client, err := chain.NewClient(chain.Config{
		RPCURL:  cfg.Chain.RPCURL,
		ChainID: cfg.Chain.ChainID,
		Timeout: cfg.Chain.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to create chain client: %v", err)
	}

	var (
		cache  vaults.Cache
		nonces auth.NonceStore
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		cache = vaults.NewRedisCache(rdb, cfg.Redis.Prefix, cfg.Vaults.CacheTTL)
		nonces = auth.NewRedisNonceStore(rdb, cfg.Redis.Prefix)
		logger.WithField("addr", cfg.Redis.Addr).Info("Using redis for vault cache and login nonces")
	} else {
		cache = vaults.NewMemoryCache(cfg.Vaults.CacheTTL)
		nonces = auth.NewMemoryNonceStore()
	}

	var store txtrack.Store
	if cfg.Database.DSN != "" {
		db, err := txtrack.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if cfg.Database.RunMigrations {
			if err := txtrack.Migrate(db.DB); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}
		store = txtrack.NewPostgresStore(db)
	} else {
		logger.Warn("No database configured, transaction records are kept in memory")
		store = txtrack.NewMemoryStore()
	}

	for _, o := range cfg.RoleOverlaps() {
		logger.WithFields(map[string]interface{}{
			"address":     o.Address,
			"lists":       o.Lists,
			"resolves_to": o.ResolvesTo,
		}).Warn("Address listed under more than one role")
	}
	resolver := roles.NewResolver(cfg.Whitelist())
	views := viewstate.NewStore(resolver)

	var resolverNames names.Resolver = names.Noop{}
	if cfg.Names.Enabled {
		ens, err := names.NewENSResolver(client, names.ENSConfig{
			Registry:  common.HexToAddress(cfg.Chain.Contracts.ENSRegistry),
			Timeout:   cfg.Names.Timeout,
			CacheSize: cfg.Names.CacheSize,
			CacheTTL:  cfg.Names.CacheTTL,
		}, logger, m)
		if err != nil {
			log.Fatalf("Failed to create name resolver: %v", err)
		}
		resolverNames = ens
	}

	fallback, err := cfg.Vaults.FallbackPrice()
	if err != nil {
		log.Fatalf("Invalid vault config: %v", err)
	}
	factory := addressOrZero(cfg.Chain.Contracts.Factory)
	registry := addressOrZero(cfg.Chain.Contracts.Registry)

	opts := []vaults.Option{vaults.WithNames(resolverNames), vaults.WithMetrics(m)}
	if factory != (common.Address{}) {
		opts = append(opts, vaults.WithFactory(portalchain.NewFactoryContract(client, factory)))
	}
	if registry != (common.Address{}) {
		opts = append(opts, vaults.WithRegistry(portalchain.NewRegistryContract(client, registry)))
	}
	agg := vaults.NewAggregator(client, vaults.Config{
		FallbackSharePrice: fallback,
		KnownVaults:        cfg.KnownVaults(),
		Concurrency:        cfg.Vaults.Concurrency,
	}, logger, opts...)
	directory := vaults.NewDirectory(agg, cache, logger, m)
	poller, err := vaults.NewPoller(directory, cfg.Vaults.RefreshSchedule, cfg.Vaults.RefreshTimeout, logger)
	if err != nil {
		log.Fatalf("Failed to create vault poller: %v", err)
	}

	mailing, welcome := setupNotify(cfg, logger, m)

	tracker := txtrack.NewTracker(store, client, txtrack.Config{
		ChainID:        cfg.Chain.ChainID,
		PollInterval:   cfg.Chain.PollInterval,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout,
	}, logger, m)
	if err := tracker.Resume(ctx); err != nil {
		logger.WithError(err).Warn("Failed to resume pending transactions")
	}

	authSvc, err := auth.NewService(auth.Config{
		Secret:   cfg.Auth.Secret,
		TokenTTL: cfg.Auth.TokenTTL,
		NonceTTL: cfg.Auth.NonceTTL,
	}, nonces, logger)
	if err != nil {
		log.Fatalf("Failed to create auth service: %v", err)
	}

	svc, err := portal.New(portal.Config{
		Logger:         logger,
		Metrics:        m,
		Reader:         client,
		Roles:          resolver,
		Views:          views,
		Vaults:         directory,
		Poller:         poller,
		Names:          resolverNames,
		Tracker:        tracker,
		Auth:           authSvc,
		Mailing:        mailing,
		Welcome:        welcome,
		Factory:        factory,
		Registry:       registry,
		AllowedOrigins: cfg.Server.CORSOrigins,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
	})
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	if err := svc.Start(ctx); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Vault portal listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server shutdown error")
	}
	if err := svc.Stop(); err != nil {
		logger.WithError(err).Warn("Service stop error")
	}

	logger.Info("Vault portal stopped")
}

// setupNotify builds the newsletter list and welcome sender. Either may be nil when
// unconfigured.
func setupNotify(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (portal.Subscriber, portal.Welcomer) {
	var (
		mailing portal.Subscriber
		welcome portal.Welcomer
	)

	if cfg.Mailing.Enabled() {
		list, err := notify.NewMailingList(notify.MailingConfig{
			BaseURL: cfg.Mailing.BaseURL,
			ListID:  cfg.Mailing.ListID,
			APIKey:  cfg.Mailing.APIKey,
			Timeout: cfg.Mailing.Timeout,
		}, logger, m)
		if err != nil {
			log.Fatalf("Failed to create mailing list client: %v", err)
		}
		mailing = list
	}

	if cfg.Email.Enabled() {
		var sender notify.EmailSender
		if cfg.Email.Provider == config.EmailProviderSMTP {
			sender = notify.NewSMTPSender(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPassword)
		} else {
			sender = notify.NewHTTPEmailSender(cfg.Email.BaseURL, cfg.Email.Path, cfg.Email.APIKey, cfg.Email.Timeout)
		}

		var tmpl string
		if cfg.Email.TemplatePath != "" {
			data, err := os.ReadFile(cfg.Email.TemplatePath)
			if err != nil {
				log.Fatalf("Failed to read welcome template: %v", err)
			}
			tmpl = string(data)
		}

		ws, err := notify.NewWelcomeSender(sender, notify.WelcomeConfig{
			From:     cfg.Email.From,
			Subject:  cfg.Email.Subject,
			Template: tmpl,
		}, logger, m)
		if err != nil {
			log.Fatalf("Failed to create welcome sender: %v", err)
		}
		welcome = ws
	}

	return mailing, welcome
}

func addressOrZero(raw string) common.Address {
	if !common.IsHexAddress(raw) {
		return common.Address{}
	}
	return common.HexToAddress(raw)
}
