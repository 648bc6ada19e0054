package rest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/invoice-anomaly-backend/internal/api/websocket"
	"github.com/davidleathers/invoice-anomaly-backend/internal/infrastructure/cache"
	"github.com/davidleathers/invoice-anomaly-backend/internal/infrastructure/config"
	"github.com/davidleathers/invoice-anomaly-backend/internal/infrastructure/database"
	"github.com/davidleathers/invoice-anomaly-backend/internal/infrastructure/erpnext"
	"github.com/davidleathers/invoice-anomaly-backend/internal/infrastructure/repository"
	"github.com/davidleathers/invoice-anomaly-backend/internal/service/detection"
	invoiceservice "github.com/davidleathers/invoice-anomaly-backend/internal/service/invoice"
)

// Server owns the HTTP listener and every dependency behind it
type Server struct {
	config     *config.Config
	httpServer *http.Server
	logger     *zap.Logger
	pool       *pgxpool.Pool
	sqlDB      *sql.DB
	redis      *redis.Client
	hub        *websocket.Hub
	hubCancel  context.CancelFunc
}

// NewServer wires the full dependency graph from configuration. Redis and
// ERPNext are optional; without Redis the service runs uncached with local
// rate limiting, without ERPNext the ERP endpoints return a business error.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// slog carries the request-scoped logging in the HTTP layer
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel(cfg.LogLevel),
	})))

	pool, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB := database.OpenSQL(pool)

	var redisClient *redis.Client
	var historyCache invoiceservice.HistoryCache
	var distributedLimiter cache.RateLimiter
	if cfg.Redis.URL != "" {
		redisClient, err = cache.NewClient(&cfg.Redis, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		historyCache = cache.NewHistoryCache(redisClient, cfg.Redis.HistoryTTL, logger)
		distributedLimiter = cache.NewRedisRateLimiter(redisClient, logger)
	} else {
		logger.Warn("redis not configured, vendor history caching disabled")
	}

	var erpClient invoiceservice.ERPClient
	if cfg.ERPNext.IsConfigured() {
		client, err := erpnext.NewClient(&cfg.ERPNext, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create erpnext client: %w", err)
		}
		erpClient = client
	} else {
		logger.Info("erpnext integration not configured")
	}

	hub := websocket.NewHub(logger)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	repo := repository.NewInvoiceRepository(sqlDB)
	engine := detection.NewEngine(cfg.Detection.Thresholds)
	service := invoiceservice.NewService(repo, historyCache, engine, erpClient, hub, cfg.Detection.HistoryWindow, logger)

	health := NewHealthService()
	health.Register("database", DatabaseChecker(sqlDB))
	if redisClient != nil {
		health.Register("redis", RedisChecker(redisClient))
	}

	auth := NewAuthMiddleware(&cfg.Security)
	handler := NewHandler(service, auth, health, hub)

	mux := http.NewServeMux()
	handler.Routes(mux)

	chain := chainMiddleware(mux,
		requestIDMiddleware,
		loggingMiddleware,
		metricsMiddleware,
		recoveryMiddleware,
		securityHeadersMiddleware,
		rateLimitMiddleware(distributedLimiter, cfg.Security.RateLimit.RequestsPerSecond, cfg.Security.RateLimit.BurstSize),
		timeoutMiddleware(cfg.Server.WriteTimeout),
		auth.Middleware(),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		logger:     logger,
		pool:       pool,
		sqlDB:      sqlDB,
		redis:      redisClient,
		hub:        hub,
		hubCancel:  hubCancel,
	}, nil
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Start serves HTTP until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("api server listening",
		zap.String("addr", s.httpServer.Addr),
		zap.String("environment", s.config.Environment))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes every dependency
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)

	s.hubCancel()
	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil {
			s.logger.Warn("failed to close redis client", zap.Error(cerr))
		}
	}
	if cerr := s.sqlDB.Close(); cerr != nil {
		s.logger.Warn("failed to close sql handle", zap.Error(cerr))
	}
	s.pool.Close()

	if err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}

	s.logger.Info("api server stopped")
	return nil
}
