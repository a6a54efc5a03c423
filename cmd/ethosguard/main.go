package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/ethosguard/internal/api/handler"
	"github.com/jmerrifield20/ethosguard/internal/auditledger"
	"github.com/jmerrifield20/ethosguard/internal/auditor"
	"github.com/jmerrifield20/ethosguard/internal/config"
	"github.com/jmerrifield20/ethosguard/internal/decision"
	"github.com/jmerrifield20/ethosguard/internal/identity"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load(config.New())
	if err != nil {
		fmt.Fprintln(os.Stderr, "ethosguard:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ethosguard: build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ethosguard exited with error", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.LogDevelopment {
		zcfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	if cfg.ConfigFile == "" {
		logger.Warn("no config file found, using defaults and env vars")
	} else {
		logger.Info("config loaded", zap.String("file", cfg.ConfigFile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Audit Ledger ──────────────────────────────────────────────────────────
	ledger, closeLedger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	res, err := ledger.Verify(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("verify ledger: %w", err)
	case !res.Valid:
		logger.Warn("audit ledger integrity check FAILED",
			zap.String("reason", string(res.Reason)),
			zap.Int("position", res.Position),
		)
	default:
		root, _ := ledger.Root(ctx)
		logger.Info("audit ledger verified",
			zap.Int("entries", res.Entries),
			zap.String("root", root),
		)
	}
	handler.RecordVerification(res.Valid)
	handler.SetLedgerLength(res.Entries)

	var aud *auditor.Auditor
	if cfg.AuditInterval > 0 {
		aud = auditor.New(ledger, auditor.Config{Interval: cfg.AuditInterval}, logger)
		aud.SetResultCallback(func(r auditledger.Result) {
			handler.RecordVerification(r.Valid)
			handler.SetLedgerLength(r.Entries)
		})
		go aud.Start(ctx)
	}

	// ── Producer tokens ───────────────────────────────────────────────────────
	var tokens *identity.TokenIssuer
	if cfg.AuthEnabled() {
		tokens, err = identity.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.Issuer, cfg.TokenTTL)
		if err != nil {
			return fmt.Errorf("token issuer: %w", err)
		}
		logger.Info("producer authentication enabled", zap.String("issuer", cfg.Issuer))
	} else {
		logger.Warn("auth.token_secret not set, decision writes are unauthenticated")
	}

	recorder := decision.NewRecorder(ledger, logger)
	recorder.SetMetricsRecorder(handler.RecordLedgerAppend)

	ledgerHandler := handler.NewLedgerHandler(ledger, logger)
	decisionHandler := handler.NewDecisionHandler(recorder, tokens, logger)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(cfg.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if cfg.RateLimitRPS > 0 {
		router.Use(handler.RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitRPS*2))
	}
	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	ledgerHandler.Register(v1)
	decisionHandler.Register(v1)
	if aud != nil {
		handler.NewAuditHandler(aud).Register(v1)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("ethosguard HTTP listening",
			zap.Int("port", cfg.Port),
			zap.String("backend", cfg.Backend),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case err := <-errc:
		return fmt.Errorf("HTTP listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down ethosguard...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("ethosguard stopped")
	return nil
}

// openLedger builds the configured backend. The returned func releases it.
func openLedger(ctx context.Context, cfg config.Config, logger *zap.Logger) (auditledger.Ledger, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		l, err := auditledger.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sqlite ledger opened", zap.String("path", cfg.SQLitePath))
		return l, func() { l.Close() }, nil //nolint:errcheck

	case config.BackendPostgres:
		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		l := auditledger.NewPostgresLedger(db, logger)
		if err := l.Init(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return l, db.Close, nil

	default:
		logger.Warn("using in-memory ledger, entries are lost on restart")
		return auditledger.New(), func() {}, nil
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
