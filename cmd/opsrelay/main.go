package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/opsrelay/opsrelay/internal/access"
	"github.com/opsrelay/opsrelay/internal/app"
	"github.com/opsrelay/opsrelay/internal/audit"
	"github.com/opsrelay/opsrelay/internal/auth"
	"github.com/opsrelay/opsrelay/internal/groups"
	"github.com/opsrelay/opsrelay/internal/observability"
	"github.com/opsrelay/opsrelay/internal/platform/cache"
	"github.com/opsrelay/opsrelay/internal/platform/db"
	"github.com/opsrelay/opsrelay/internal/roles"
	"github.com/opsrelay/opsrelay/internal/shared"
	"github.com/opsrelay/opsrelay/internal/users"
	"github.com/opsrelay/opsrelay/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "opsrelay_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	auditSink := audit.NewPGSink(pool)
	auditor := audit.NewEmitter(auditSink, logger)
	auditHandler := audit.NewHandler(logger, auditSink)

	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo, auditor, logger)
	usersHandler := users.NewHandler(logger, userService)

	roleRepo := roles.NewRepository(pool)
	roleService := roles.NewService(roleRepo, auditor, logger)
	rolesHandler := roles.NewHandler(logger, roleService)

	groupRepo := groups.NewRepository(pool)
	synchronizer := groups.NewSynchronizer(groupRepo, userRepo, logger)
	groupService := groups.NewService(groupRepo, synchronizer, auditor, logger)
	groupsHandler := groups.NewHandler(logger, groupService)

	resolver := access.NewResolver(userRepo, groupRepo, roleService, logger)
	matrixCache := access.NewMatrixCache(redisClient, cfg.MatrixCacheTTL, logger)
	accessHandler := access.NewHandler(logger, resolver, matrixCache, groupService, metrics)

	asynqRedis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(asynqRedis)
	if err != nil {
		logger.Error("connect job queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(asynq.NewInspector(asynqRedis), jobClient, logger)

	authService := auth.NewService(userService, resolver, auditor, logger)
	authHandler := auth.NewHandler(logger, authService, userService, sessionManager, csrfManager)

	if err := roleService.SeedSystemRoles(ctx); err != nil {
		logger.Error("seed system roles", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.BootstrapEnabled() {
		if err := authService.Bootstrap(ctx, auth.BootstrapParams{
			UserRef:  cfg.BootstrapAdminRef,
			Email:    cfg.BootstrapAdminEmail,
			Name:     cfg.BootstrapAdminName,
			Password: cfg.BootstrapAdminPassword,
		}); err != nil {
			logger.Error("bootstrap administrator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		UsersHandler:   usersHandler,
		RolesHandler:   rolesHandler,
		GroupsHandler:  groupsHandler,
		AccessHandler:  accessHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
