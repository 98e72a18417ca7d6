package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"smartid-backend/internal/attendance"
	"smartid-backend/internal/checkpoint"
	"smartid-backend/internal/people"
	"smartid-backend/internal/platform/apidoc"
	"smartid-backend/internal/platform/auth"
	"smartid-backend/internal/platform/config"
	"smartid-backend/internal/platform/db"
	"smartid-backend/internal/platform/httpx"
	"smartid-backend/internal/platform/logging"
	"smartid-backend/internal/report"
)

func main() {
	// 設定読み込み（-c / -config で上書き可）
	cfg, err := config.LoadConfig(config.PathFromArgs(os.Args[1:]))
	if err != nil {
		log.Fatalf("[FATAL] config: %v", err)
	}

	logger := logging.New(cfg.Mode)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info(ctx, "starting", "mode", cfg.Mode, "driver", cfg.DB.Driver, "version", cfg.Version)

	conn, err := db.Open(ctx, cfg.DB)
	if err != nil {
		logger.Error(ctx, "db open failed", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn, cfg.DB.Driver); err != nil {
		logger.Error(ctx, "migration failed", "err", err)
		os.Exit(1)
	}

	r, err := buildRouter(ctx, cfg, conn, logger)
	if err != nil {
		logger.Error(ctx, "router setup failed", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.Certificate.Cert != "" && cfg.Certificate.Key != "" {
			// 証明書は config/tls/<mode>/ に置く
			certFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Certificate.Cert)
			keyFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Certificate.Key)
			logger.Info(ctx, "listening (TLS)", "addr", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logger.Warn(ctx, "listening without TLS", "addr", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server stopped", "err", err)
			stop()
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info(context.Background(), "shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "shutdown failed", "err", err)
	}
}

// buildRouter: サービスを組み立ててルーティングする
func buildRouter(ctx context.Context, cfg *config.Config, conn *sql.DB, logger logging.Logger) (*gin.Engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("ledger.timezone: %w", err)
	}

	if cfg.Mode == config.ModeRelease {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), httpx.RequestID())
	_ = r.SetTrustedProxies(nil)

	// ポータルとキオスクは別オリジン
	if len(cfg.CORS.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", httpx.HeaderRequestID},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", httpx.HeaderRequestID},
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", healthz(conn))
	apidoc.RegisterRoutes(r)

	ledger := attendance.NewService(attendance.NewSQLStore(conn), attendance.Options{
		Location:       loc,
		ClockSkew:      cfg.Ledger.ClockSkew,
		DefaultMethod:  cfg.Checkpoint.DefaultMethod,
		DefaultStation: cfg.Checkpoint.DefaultStation,
		Logger:         logger.With("module", "attendance"),
	})
	directory := people.NewService(conn, ledger, logger.With("module", "people"))

	authSvc := auth.NewService(auth.NewStore(conn), []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, logger.With("module", "auth"))
	admin := cfg.Auth.BootstrapAdmin
	if _, err := authSvc.EnsureAccount(ctx, admin.ID, admin.Password, auth.RoleAdmin); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	cp, err := checkpoint.New(
		cfg.Checkpoint.CodePattern,
		directory,
		checkpoint.ThresholdGate{Min: cfg.Checkpoint.MinConfidence},
		ledger,
		logger.With("module", "checkpoint"),
	)
	if err != nil {
		return nil, err
	}

	// /api/v1
	api := r.Group("/api/v1")
	adminAPI := api.Group("", auth.RequireAuth(authSvc.Secret()), auth.RequireRole(auth.RoleAdmin))

	auth.RegisterRoutes(api, adminAPI, authSvc)
	attendance.RegisterRoutes(api, adminAPI, ledger)
	people.RegisterRoutes(api, adminAPI, directory)
	checkpoint.RegisterRoutes(api, cp, loc)
	report.RegisterRoutes(adminAPI, ledger)

	return r, nil
}

func healthz(conn *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := conn.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
