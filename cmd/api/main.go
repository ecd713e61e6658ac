package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sms-panel/internal/auth"
	"sms-panel/internal/config"
	"sms-panel/internal/dispatch"
	"sms-panel/internal/gateway"
	"sms-panel/internal/httpapi"
	"sms-panel/internal/ledger"
	"sms-panel/internal/metrics"
	"sms-panel/internal/notify"
	"sms-panel/internal/policy"
	"sms-panel/internal/topup"
	"sms-panel/pkg/logger"
	"sms-panel/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.Registry("sms_panel")

	keys := auth.NewAPIKeyStore(db)
	balances := ledger.NewService(db)
	terms := policy.NewCachedTermSource(policy.NewSQLTermSource(db), rdb, log)
	filter := policy.NewFilter(terms)
	carrier := gateway.New(gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		AuthToken: cfg.Gateway.AuthToken,
		Timeout:   cfg.Gateway.Timeout,
	}, log, m)
	notifier := notify.NewTelegram(notify.Config{
		Token:   cfg.Telegram.BotToken,
		ChatID:  cfg.Telegram.ChatID,
		Timeout: cfg.Telegram.Timeout,
	}, log, m)

	dispatcher := dispatch.NewService(balances, filter, carrier, dispatch.NewRecordStore(db), notifier, log, m)
	topups := topup.NewService(balances, topup.NewSQLRequestStore(db), notifier, log, m)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Dispatcher: dispatcher,
		Balances:   balances,
		Topups:     topups,
		Tokens:     authManager,
		Keys:       keys,
		Notifier:   notifier,
		TokenTTL:   cfg.Auth.AccessTokenTTL,
		DB:         db,
		Redis:      rdb,
		Logger:     log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           server.Router(auth.RequireCredential(authManager, keys)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
