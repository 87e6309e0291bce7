package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"workclock/internal/attendance"
	"workclock/internal/audit"
	"workclock/internal/config"
	"workclock/internal/credential"
	"workclock/internal/enrollment"
	"workclock/internal/faceclient"
	"workclock/internal/handler"
	"workclock/internal/httpmiddleware"
	"workclock/internal/logger"
	"workclock/internal/metrics"
	"workclock/internal/store"
	"workclock/internal/store/memory"
)

// backend is everything the services need from storage.
type backend interface {
	enrollment.UserStore
	attendance.Repository
	audit.Store
}

func main() {
	cfg := config.Load()

	log, err := logger.Init(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	for _, w := range cfg.Warnings {
		log.Warn("config", zap.String("detail", w))
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx := context.Background()
	checks := map[string]handler.HealthCheck{}

	var repo backend
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory store, data is lost on restart")
		repo = memory.New()
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if err := store.Migrate(ctx, db.Client); err != nil {
			return err
		}
		repo = store.NewRepository(db.Client)
		checks["db"] = db.Healthy
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		redisClient := store.NewRedis(cfg.RedisAddr, "", 0)
		defer func() { _ = redisClient.Close() }()
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
		checks["redis"] = redisClient.Healthy
	}

	var matcher attendance.PhotoMatcher = attendance.ExactMatcher{}
	if cfg.PhotoMatchPolicy == "face" {
		face := faceclient.New(cfg.FaceServiceURL, cfg.FaceServiceTimeout)
		matcher = attendance.NewFaceServiceMatcher(face)
		checks["face"] = func(ctx context.Context) bool { return face.Health(ctx) == nil }
		log.Info("photo matching delegated to face service", zap.String("url", cfg.FaceServiceURL))
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	auditLog := audit.NewLogger(repo, logger.Stderr(), cfg.AuditWriteTimeout, m)

	h := handler.New(handler.Deps{
		Credentials: credential.NewService(repo),
		Enrollment:  enrollment.NewService(repo),
		Attendance:  attendance.NewService(repo, matcher, cfg.EnforceTransitions),
		Audit:       auditLog,
		Metrics:     m,
		Tokens: handler.TokenConfig{
			Issuer:     cfg.JWTIssuer,
			SigningKey: cfg.JWTSigningKey,
			TTL:        cfg.AccessTTL,
			Required:   cfg.RequireToken,
		},
		Checks: checks,
		Log:    log,
	})

	r := gin.New()
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.Recovery(auditLog, log))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter, log))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}

	log.Info("server exited")
	return nil
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
