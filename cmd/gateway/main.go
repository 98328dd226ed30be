package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xela07ax/tenant-admin-gateway/internal/access"
	"github.com/xela07ax/tenant-admin-gateway/internal/api/handler"
	"github.com/xela07ax/tenant-admin-gateway/internal/api/server"
	"github.com/xela07ax/tenant-admin-gateway/internal/audit"
	"github.com/xela07ax/tenant-admin-gateway/internal/breaker"
	"github.com/xela07ax/tenant-admin-gateway/internal/gateway"
	"github.com/xela07ax/tenant-admin-gateway/internal/infra"
	"github.com/xela07ax/tenant-admin-gateway/internal/infra/auth"
	"github.com/xela07ax/tenant-admin-gateway/internal/registry"
	"github.com/xela07ax/tenant-admin-gateway/internal/repository/postgres"
	"github.com/xela07ax/tenant-admin-gateway/internal/vault"

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура: Postgres, Redis, Vault
	if cfg.Database.URL == "" {
		logger.Fatal("database.url (or DATABASE_URL) is required")
	}
	repo, err := postgres.NewRepo(cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer repo.Close()

	// Ждем базу с бэкоффом: при старте в оркестраторе она может подниматься
	// позже шлюза
	r := retry.New(retry.Context(appCtx), retry.Attempts(10))
	err = r.Do(func() error {
		pingCtx, pingCancel := context.WithTimeout(appCtx, 3*time.Second)
		defer pingCancel()
		return repo.Ping(pingCtx)
	})
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	credVault, err := vault.New(cfg.Vault.MasterKey, vault.PurposeAdminKey)
	if err != nil {
		logger.Fatal("vault init failed", zap.Error(err))
	}

	// 3. Метрики
	promReg := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(promReg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics listener started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	// 4. Ядро: реестр поверхностей, предохранители, шлюз, аудит
	surfaceRegistry := registry.NewService(repo, credVault, rdb, logger)
	go surfaceRegistry.StartListener(appCtx)

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
	}, logger, metrics.ObserveBreakerState)

	trail := audit.NewTrail(repo, logger, metrics.AuditBufferFill)
	trail.Start()

	gw := gateway.New(
		surfaceRegistry,
		credVault,
		breakers,
		&http.Client{},
		gateway.Options{
			RequestTimeout:   cfg.Gateway.RequestTimeout,
			MaxResponseBytes: cfg.Gateway.MaxResponseBytes,
			RatePerSecond:    cfg.Gateway.RatePerSecond,
			RateBurst:        cfg.Gateway.RateBurst,
		},
		metrics,
		logger,
	)

	resolver := access.NewResolver(repo, repo, logger)

	// 5. HTTP-слой
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("auth public key parse failed", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)

	srv := server.NewServer(cfg, logger,
		validator,
		handler.NewSurfaceHandler(surfaceRegistry, resolver, breakers, logger),
		handler.NewProxyHandler(gw, resolver, trail, logger),
		handler.NewAuditHandler(repo, logger),
	)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("tenant admin gateway started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("gateway stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Останавливаем фоновые горутины и дописываем буфер аудита
	cancel()
	trail.Stop()

	logger.Info("gateway exited properly")
}
