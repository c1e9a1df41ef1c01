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

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/plant-identifier/internal/auth"
	"github.com/example/plant-identifier/internal/config"
	"github.com/example/plant-identifier/internal/handlers"
	"github.com/example/plant-identifier/internal/logging"
	"github.com/example/plant-identifier/internal/ratelimit"
	"github.com/example/plant-identifier/internal/repository"
	"github.com/example/plant-identifier/internal/upload"
	"github.com/example/plant-identifier/internal/usecase"
	"github.com/example/plant-identifier/internal/visualsearch"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo usecase.IdentificationRepository
	if cfg.Database.DSN != "" {
		db := initDatabase(ctx, cfg.Database.DSN, logger)
		identificationRepo := repository.NewIdentificationRepository(db, logger)
		if err := identificationRepo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		repo = identificationRepo
	} else {
		logger.Info("DATABASE_DSN not set, identification audit log disabled")
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		if cfg.RateLimit.Backend == "redis" {
			redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
			redisClient := initRedis(redisCtx, cfg.RateLimit.RedisAddr, logger)
			redisCancel()
			defer redisClient.Close()
			limiter = ratelimit.NewRedisLimiter(ratelimit.NewRedisCounter(redisClient),
				cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.Window)
		} else {
			limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		}
	}

	r := newRouter(cfg, repo, limiter, logger)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	logger.Info("plant identifier listening",
		zap.String("addr", cfg.Server.Addr),
		zap.Bool("cloudinary_configured", cfg.Cloudinary.CloudName != "" && cfg.Cloudinary.APIKey != "" && cfg.Cloudinary.APISecret != ""),
		zap.Bool("serpapi_configured", cfg.SerpAPI.APIKey != ""),
	)
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, repo usecase.IdentificationRepository, limiter ratelimit.Limiter, logger *zap.Logger) *gin.Engine {
	uploader := upload.NewCloudinaryClient(upload.CloudinaryOptions{
		CloudName: cfg.Cloudinary.CloudName,
		APIKey:    cfg.Cloudinary.APIKey,
		APISecret: cfg.Cloudinary.APISecret,
		Folder:    cfg.Cloudinary.Folder,
		BaseURL:   cfg.Cloudinary.BaseURL,
		Timeout:   cfg.Upstream.Timeout,
	}, logger)
	searcher := visualsearch.NewSerpAPIClient(visualsearch.SerpAPIOptions{
		APIKey:  cfg.SerpAPI.APIKey,
		Engine:  cfg.SerpAPI.Engine,
		BaseURL: cfg.SerpAPI.BaseURL,
		Timeout: cfg.Upstream.Timeout,
	}, logger)

	uc := usecase.NewIdentificationUseCase(uploader, searcher, repo, logger)

	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger))

	handlers.RegisterRoutes(r, uc, handlers.Options{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Auth:         auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Audience),
		Limiter:      limiter,
		Logger:       logger,
	})
	return r
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err), zap.String("addr", addr))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
