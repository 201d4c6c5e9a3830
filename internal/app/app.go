package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	_ "authportal/docs"
	"authportal/internal/config"
	"authportal/internal/handlers"
	"authportal/internal/replica"
	"authportal/internal/repositories"
	"authportal/internal/routes"
	"authportal/internal/services"
)

const shutdownTimeout = 10 * time.Second

func Run() {
	cfg := config.LoadConfig()
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("[app] stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// === Store ===
	accountRepo, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	closers = append(closers, closeStore)

	// === Replica ===
	replicaClient, closeReplica, err := openReplica(cfg.Replica)
	if err != nil {
		return err
	}
	closers = append(closers, closeReplica)

	// === Services ===
	authService := services.NewAuthService(cfg.Security.BcryptCost)
	emailService := services.NewEmailService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.FromEmail,
		cfg.Email.DryRun,
	)
	verificationService := services.NewVerificationService(accountRepo, services.VerificationConfig{
		OTPTTL:   cfg.Security.OTPTTL,
		ResetTTL: cfg.Security.ResetTTL,
	})
	replicaSync := services.NewReplicaSynchronizer(replicaClient, cfg.Replica.Timeout)
	credentialService := services.NewCredentialService(
		accountRepo,
		verificationService,
		replicaSync,
		emailService,
		authService,
		services.CredentialOptions{NotifyOnLogin: cfg.Security.NotifyOnLogin},
	)

	// === Handlers ===
	jwtSecret := []byte(cfg.Security.JWTSecret)
	authHandler := handlers.NewAuthHandler(credentialService, jwtSecret, cfg.Security.AccessTTL)

	// === Gin ===
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	routes.SetupRoutes(router, authHandler, jwtSecret)

	// === Run ===
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("[app] server listening", "addr", srv.Addr,
			"store", cfg.Database.Driver, "replica", cfg.Replica.Driver, "email_dry_run", cfg.Email.DryRun)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("[app] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (repositories.AccountRepository, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	switch cfg.Driver {
	case "mongo":
		client, err := repositories.ConnectMongo(ctx, cfg.MongoURI, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				slog.Warn("[app] mongo disconnect", "error", err)
			}
		}
		db := client.Database(cfg.MongoDB)
		if err := repositories.EnsureMongoIndexes(ctx, db); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return repositories.NewMongoAccountRepository(db, cfg.Timeout), closeFn, nil
	default:
		db, err := repositories.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		closeFn := func() {
			if err := db.Close(); err != nil {
				slog.Warn("[app] postgres close", "error", err)
			}
		}
		return repositories.NewAccountRepository(db), closeFn, nil
	}
}

func openReplica(cfg config.ReplicaConfig) (replica.Client, func(), error) {
	switch cfg.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				slog.Warn("[app] redis close", "error", err)
			}
		}
		return replica.NewRedisClient(rdb, cfg.RedisPrefix), closeFn, nil
	case "http":
		return replica.NewHTTPClient(cfg.URL, cfg.Timeout), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown replica driver %q", cfg.Driver)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
