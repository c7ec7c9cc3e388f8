package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"storefront.org/internal/audit"
	"storefront.org/internal/auth"
	"storefront.org/internal/authz"
	"storefront.org/internal/catalog"
	"storefront.org/internal/config"
	"storefront.org/internal/httpapi"
	"storefront.org/internal/jobs"
	"storefront.org/internal/kv"
	"storefront.org/internal/migrate"
	"storefront.org/internal/obs"
	"storefront.org/internal/ratelimit"
	"storefront.org/internal/respcache"
	"storefront.org/internal/store/memory"
	"storefront.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().WithError(err).Fatal("load config")
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	obs.SetLogger(obs.NewLogger(level, os.Stdout))
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		obs.Logger().WithError(err).Fatal("storefront-api stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := obs.Logger()

	var (
		principals auth.PrincipalStore
		refresh    auth.RefreshTokenStore
		probe      httpapi.ReadyProbe
	)
	if cfg.Database.DSN != "" {
		pool := pg.DefaultPool()
		pool.MaxOpenConns = cfg.Database.MaxOpenConns
		pool.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		store, err := pg.Open(cfg.Database.DSN, pool)
		if err != nil {
			return err
		}
		defer store.Close()
		applied, err := migrate.NewManager(store.DB(), migrate.Migrations()).Up(ctx)
		if err != nil {
			return err
		}
		log.WithField("applied", len(applied)).Info("database ready")
		principals, refresh, probe.DB = store.Principals(), store.RefreshTokens(), store.DB()
	} else {
		log.Warn("STOREFRONT_PG_DSN not set, using in-memory stores")
		principals, refresh = memory.NewPrincipals(), memory.NewRefreshTokens()
	}

	var (
		counter kv.Counter
		cache   kv.Cache
		sweep   jobs.Task
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		counter, cache = kv.NewRedisStores(rdb, cfg.Redis.Prefix, time.Now)
		probe.Redis = rdb
	} else {
		mc := kv.NewMemoryCounter(time.Now)
		counter, sweep = mc, mc.Sweep
		cache = kv.NewMemoryCache(cfg.Cache.Size, time.Hour, time.Now)
	}

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), refresh, principals,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAudience(cfg.Auth.Audience),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(principals, tokens, auth.WithPasswordCost(cfg.Auth.BcryptCost))
	if err != nil {
		return err
	}
	if cfg.Auth.AdminEmail != "" {
		p, created, err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
		if err != nil {
			return err
		}
		if created {
			_ = audit.LogEvent(ctx, audit.EventPrincipalSeed, map[string]any{"principal_id": p.ID})
		}
	}

	shop := catalog.NewInMemory()
	if !cfg.Production() {
		if err := catalog.Seed(ctx, shop); err != nil {
			return err
		}
	}

	var responses *respcache.Cache
	if cfg.Cache.Enabled {
		responses = respcache.New(cache)
	}
	api, err := httpapi.New(httpapi.Deps{
		Auth:    authSvc,
		Catalog: shop,
		Policy:  authz.DefaultPolicy(),
		Limits: httpapi.Limits{
			General: ratelimit.New(ratelimit.General, counter),
			Auth:    ratelimit.New(ratelimit.Auth, counter),
			Upload:  ratelimit.New(ratelimit.Upload, counter),
			Tiers:   ratelimit.NewTiered(ratelimit.DefaultTiers(), counter),
		},
		Cache:        responses,
		Probe:        probe,
		Version:      version,
		Production:   cfg.Production(),
		TrustProxy:   cfg.Server.TrustProxy,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		SlowRequest:  cfg.Server.SlowRequest,
		CORS:         httpapi.CORSOptions{AllowedOrigins: cfg.CORS.AllowedOrigins, AllowCredentials: cfg.CORS.AllowCredentials},
	})
	if err != nil {
		return err
	}

	scheduler := jobs.NewScheduler(time.Minute)
	if err := scheduler.Add("refresh_token_cleanup", cfg.Jobs.TokenCleanup, tokens.CleanupExpired); err != nil {
		return err
	}
	if sweep != nil {
		if err := scheduler.Add("ratelimit_sweep", cfg.Jobs.CounterSweep, sweep); err != nil {
			return err
		}
	}
	scheduler.Start()

	health := httpapi.NewHealthService(probe)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	go health.Run(ctx, 10*time.Second)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 2)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "version": version}).Info("starting storefront-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			log.WithField("addr", cfg.Server.GRPCAddr).Info("starting grpc health")
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errc <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	grpcServer.GracefulStop()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("scheduler shutdown")
	}
	log.Info("stopped")
	return runErr
}
