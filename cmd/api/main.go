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

	"google.golang.org/grpc"

	"taskdeck.io/internal/auth"
	"taskdeck.io/internal/authz"
	"taskdeck.io/internal/config"
	"taskdeck.io/internal/httpapi"
	"taskdeck.io/internal/migrate"
	"taskdeck.io/internal/obs"
	"taskdeck.io/internal/store/pg"
	"taskdeck.io/internal/sweep"
	"taskdeck.io/internal/task"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().Error("taskdeck-api stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := obs.Logger()
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.InitTracing(ctx, cfg.OTLPEndpoint, "taskdeck-api", version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	var (
		authStore auth.Store
		taskStore task.Store
		ready     httpapi.ReadinessChecker = httpapi.ReadyProbe{}
	)
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil {
				return err
			}
			log.Info("migrations applied")
		}
		db, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		authStore, taskStore = db.Auth(), db.Tasks()
		ready = httpapi.ReadyProbe{DB: db.SQL()}
	} else {
		log.Warn("DATABASE_URL is empty; using in-memory stores")
		authStore, taskStore = auth.NewMemoryStore(), task.NewInMemory()
	}

	keys, err := loadKeys(cfg)
	if err != nil {
		return err
	}
	codec, err := auth.NewCodec(keys, auth.WithIssuer(cfg.JWTIssuer), auth.WithAccessTTL(cfg.AccessTTL()))
	if err != nil {
		return err
	}
	refresh, err := auth.NewRefreshManager(authStore,
		auth.WithRefreshTTL(cfg.RefreshTTL()),
		auth.WithTokenLength(cfg.RefreshTokenLength),
		auth.WithDigest(cfg.RefreshTokenHash),
	)
	if err != nil {
		return err
	}
	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	policy, err := authz.NewPolicy(ctx)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(authStore, codec, refresh, hasher)

	api := httpapi.New(httpapi.Options{
		Auth:    authSvc,
		Gate:    auth.NewGate(codec, authStore),
		Policy:  policy,
		Tasks:   task.NewService(taskStore),
		Codec:   codec,
		Ready:   ready,
		Version: version,
		Cookie: httpapi.CookieConfig{
			Name:     cfg.CookieName,
			Secure:   cfg.CookieSecure,
			SameSite: httpapi.ParseSameSite(cfg.CookieSameSite),
			MaxAge:   cfg.CookieMaxAge,
		},
		Origins:       cfg.AllowedOrigins(),
		RateBurst:     cfg.RateLimitBurst,
		RatePerSecond: cfg.RateLimitPerSecond,
		TrustProxy:    cfg.TrustProxyHeaders,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(ready, version).Register(grpcSrv)
		go func() {
			log.Info("grpc listening", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweep.New(authSvc.Refresh(), cfg.SweepEvery()).Run(sweepCtx)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server failed", "error", err.Error())
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopSweep()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}

// loadKeys reads the configured keypair or, outside production, generates one.
func loadKeys(cfg *config.Config) (auth.KeyPair, error) {
	if cfg.JWTPrivateKey == "" {
		obs.Logger().Warn("no JWT keys configured; generating an ephemeral keypair")
		return auth.GenerateKeyPair(cfg.JWTKeyID, 2048)
	}
	private, err := config.LoadPEM(cfg.JWTPrivateKey)
	if err != nil {
		return auth.KeyPair{}, err
	}
	public, err := config.LoadPEM(cfg.JWTPublicKey)
	if err != nil {
		return auth.KeyPair{}, err
	}
	return auth.ParseKeyPair(cfg.JWTKeyID, private, public)
}
