package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/clientevip/api/handler"
	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/internal/config"
	"github.com/fastygo/clientevip/internal/infrastructure/buffer"
	"github.com/fastygo/clientevip/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/clientevip/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/clientevip/internal/infrastructure/redis"
	"github.com/fastygo/clientevip/internal/infrastructure/tracing"
	"github.com/fastygo/clientevip/internal/middleware"
	"github.com/fastygo/clientevip/internal/router"
	"github.com/fastygo/clientevip/internal/services"
	"github.com/fastygo/clientevip/internal/services/lifecycle"
	"github.com/fastygo/clientevip/pkg/httpcontext"
	"github.com/fastygo/clientevip/pkg/token"
	"github.com/fastygo/clientevip/repository"
	"github.com/fastygo/clientevip/repository/memory"
	"github.com/fastygo/clientevip/repository/postgres"
	redisRepo "github.com/fastygo/clientevip/repository/redis"
	"github.com/fastygo/clientevip/usecase"
	authUC "github.com/fastygo/clientevip/usecase/auth"
	benefitUC "github.com/fastygo/clientevip/usecase/benefit"
	membershipUC "github.com/fastygo/clientevip/usecase/membership"
	redemptionUC "github.com/fastygo/clientevip/usecase/redemption"
)

// stores bundles the repositories selected by STORAGE_DRIVER.
type stores struct {
	memberships repository.MembershipRepository
	benefits    repository.BenefitRepository
	redemptions repository.RedemptionRepository
	accounts    repository.AccountRepository
}

// app is the wired server. Every component it started has a hook on manager.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	manager *lifecycle.Manager
	server  *fasthttp.Server
}

// run serves until ctx is cancelled, a termination signal arrives or the listener
// fails, then stops every component.
func run(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, cfg, zapLogger)
	if err != nil {
		return err
	}
	a.manager.Listen(cancel)

	serveErr := make(chan error, 1)
	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("storage", cfg.Storage.Driver))
		serveErr <- a.server.ListenAndServe(cfg.Address())
	}()

	var listenErr error
	select {
	case <-ctx.Done():
	case listenErr = <-serveErr:
		if listenErr != nil {
			zapLogger.Error("server crashed", zap.Error(listenErr))
		}
	}

	return errors.Join(listenErr, a.manager.Shutdown(context.Background()))
}

// newApp builds the server for cfg. On failure the components already started are
// stopped before the error is returned.
func newApp(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (_ *app, err error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	defer func() {
		if err != nil {
			_ = manager.Shutdown(context.Background())
		}
	}()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, zapLogger)
	if err != nil {
		return nil, err
	}
	manager.Register("tracing", shutdownTracing)

	redisClient, err := redisInfra.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	var (
		codeCache   repository.CodeCache
		redisPinger monitor.Pinger
	)
	if redisClient != nil {
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
		codeCache = redisRepo.NewCodeCache(redisClient, cfg.VIP.CodeCacheTTL)
		redisPinger = monitor.RedisPinger(redisClient)
	}

	var (
		repos       stores
		statusCache usecase.StatusCache
		mon         *monitor.Monitor
	)
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		zapLogger.Warn("using in-memory storage; data is lost on restart")
		store := memory.NewStore()
		repos = stores{
			memberships: store.Memberships(),
			benefits:    store.Benefits(),
			redemptions: store.Redemptions(),
			accounts:    store.Accounts(),
		}
		mon = monitor.New(cfg.Storage.Driver, nil, redisPinger, nil, 10*time.Second, zapLogger)
	default:
		repos, statusCache, mon, err = openPostgres(ctx, cfg, manager, redisPinger, zapLogger)
		if err != nil {
			return nil, err
		}
	}

	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	secret := cfg.JWT.Secret
	if secret == "" && cfg.IsDevelopment() {
		secret = uuid.NewString()
		zapLogger.Warn("JWT_SECRET unset; using an ephemeral development secret")
	}
	issuer, err := token.NewIssuer(secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	membershipUseCase := membershipUC.New(
		repos.memberships,
		codeCache,
		statusCache,
		membershipUC.Config{
			ExpiringWindow:  cfg.VIP.ExpiringWindow,
			Term:            cfg.VIP.MembershipTerm,
			CodeRetryBudget: cfg.VIP.CodeRetryBudget,
		},
		zapLogger,
	)
	benefitUseCase := benefitUC.New(repos.benefits, membershipUseCase, zapLogger)
	redemptionUseCase := redemptionUC.New(
		membershipUseCase,
		repos.benefits,
		repos.redemptions,
		redemptionUC.Config{ExpiringWindow: cfg.VIP.ExpiringWindow},
		zapLogger,
	)
	authUseCase := authUC.New(repos.accounts, issuer, zapLogger)
	bootstrapAdmin(ctx, cfg.Bootstrap, repos.accounts, authUseCase, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth:       apiHandler.NewAuthHandler(authUseCase, ctxAdapter, zapLogger),
		Membership: apiHandler.NewMembershipHandler(membershipUseCase, ctxAdapter, zapLogger),
		Benefit:    apiHandler.NewBenefitHandler(benefitUseCase, ctxAdapter, zapLogger),
		Redemption: apiHandler.NewRedemptionHandler(redemptionUseCase, ctxAdapter, zapLogger),
		Health:     apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	limiter := middleware.NewRateLimiter(cfg.VIP.RedeemRate, cfg.VIP.RedeemBurst, zapLogger)
	r := router.New(handlers, router.Options{
		Auth:          middleware.JWTAuth(issuer, zapLogger),
		RedeemLimit:   limiter.Middleware,
		EnableMetrics: cfg.HTTP.EnableMetrics,
	})

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	return &app{cfg: cfg, logger: zapLogger, manager: manager, server: server}, nil
}

// bootstrapAdmin registers the configured mall administrator unless the email is
// already taken.
func bootstrapAdmin(
	ctx context.Context,
	cfg config.BootstrapConfig,
	accounts repository.AccountRepository,
	uc *authUC.UseCase,
	zapLogger *zap.Logger,
) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}
	if _, err := accounts.GetByEmail(ctx, cfg.AdminEmail); err == nil {
		return
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		zapLogger.Error("admin bootstrap lookup failed", zap.Error(err))
		return
	}
	if _, err := uc.Register(ctx, authUC.RegisterInput{
		Email:    cfg.AdminEmail,
		Name:     "Administrator",
		Password: cfg.AdminPassword,
		Role:     domain.RoleAdmin,
	}); err != nil {
		zapLogger.Error("admin bootstrap failed", zap.Error(err))
	}
}

// openPostgres runs migrations, opens the pool and starts the status write-behind
// buffer. Every component it starts registers its own shutdown hook.
func openPostgres(
	ctx context.Context,
	cfg *config.Config,
	manager *lifecycle.Manager,
	redisPinger monitor.Pinger,
	zapLogger *zap.Logger,
) (stores, usecase.StatusCache, *monitor.Monitor, error) {
	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		return stores{}, nil, nil, fmt.Errorf("migrations: %w", err)
	}

	pool, err := pgInfra.NewPool(ctx, cfg.Database, zapLogger)
	if err != nil {
		return stores{}, nil, nil, fmt.Errorf("postgres: %w", err)
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pgInfra.Close(pool, zapLogger)
		return nil
	})

	bufferStore, err := buffer.Open(cfg.Buffer.Path, "status")
	if err != nil {
		return stores{}, nil, nil, fmt.Errorf("buffer store: %w", err)
	}
	manager.Register("buffer", func(ctx context.Context) error {
		return bufferStore.Close()
	})

	mon := monitor.New(cfg.Storage.Driver, pool, redisPinger, bufferStore, 10*time.Second, zapLogger)

	repos := stores{
		memberships: postgres.NewMembershipRepository(pool),
		benefits:    postgres.NewBenefitRepository(pool),
		redemptions: postgres.NewRedemptionRepository(pool),
		accounts:    postgres.NewAccountRepository(pool),
	}

	processor := services.NewBufferProcessor(
		bufferStore,
		mon,
		repos.memberships,
		zapLogger,
		services.ProcessorConfig{
			Interval:   cfg.Buffer.SyncInterval,
			BatchSize:  50,
			MaxRetries: cfg.Buffer.MaxRetry,
		},
	)
	processor.Start()
	manager.Register("buffer_processor", func(ctx context.Context) error {
		processor.Stop(ctx)
		return nil
	})

	return repos, services.NewBufferBridge(processor), mon, nil
}
