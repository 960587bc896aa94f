package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/gate-sso/gate-wireguard/config"
	"github.com/gate-sso/gate-wireguard/internal/admin"
	"github.com/gate-sso/gate-wireguard/internal/controller"
	"github.com/gate-sso/gate-wireguard/internal/db"
	"github.com/gate-sso/gate-wireguard/internal/health"
	"github.com/gate-sso/gate-wireguard/internal/logs"
	"github.com/gate-sso/gate-wireguard/internal/metrics"
	"github.com/gate-sso/gate-wireguard/internal/middleware"
	"github.com/gate-sso/gate-wireguard/internal/publish"
	"github.com/gate-sso/gate-wireguard/internal/repo"
	"github.com/gate-sso/gate-wireguard/internal/vpn/wireguard"
)

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	Router     *mux.Router
	Service    *controller.Service
	httpServer *http.Server
	syncer     *wireguard.Syncer

	ctx    context.Context
	cancel context.CancelFunc
}

// InitLogs настраивает глобальный логгер из конфига.
func InitLogs(cfg *config.Config) {
	logs.Init(logs.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
}

// OpenDB подключает БД и применяет миграции.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	d, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Migrate(d); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return d, nil
}

// NewService собирает сервис поверх БД. Syncer возвращается отдельно,
// его нужно закрыть по завершении (nil, если синхронизация выключена или недоступна).
func NewService(cfg *config.Config, d *gorm.DB) (*controller.Service, *wireguard.Syncer, error) {
	keys, err := wireguard.NewKeyGenerator(cfg.WireGuard.KeyGen, cfg.WireGuard.WGBinary)
	if err != nil {
		return nil, nil, err
	}
	svc := &controller.Service{
		Configs:   repo.NewConfigStore(d, keys),
		Devices:   repo.NewDeviceStore(d, repo.NewAllocator(d)),
		Users:     repo.NewUserStore(d),
		Keys:      keys,
		Publisher: publish.New(cfg.WireGuard.ConfigDir),
	}

	var syncer *wireguard.Syncer
	if cfg.WireGuard.SyncDevice {
		syncer, err = wireguard.NewSyncer()
		if err != nil {
			// конфиг на диск пишем всё равно
			logs.For("server").WithError(err).Warn("live interface sync disabled")
		} else {
			svc.Syncer = syncer
		}
	}
	return svc, syncer, nil
}

func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	/* 1) Логи и метрики */
	InitLogs(cfg)
	metrics.Init(prometheus.DefaultRegisterer)
	log := logs.For("server")

	/* 2) DB */
	d, err := OpenDB(cfg)
	if err != nil {
		return err
	}
	a.db = d

	/* 3) Сервис */
	svc, syncer, err := NewService(cfg, d)
	if err != nil {
		return err
	}
	a.Service, a.syncer = svc, syncer

	// конфигурация создаётся при первом старте, конфиг на диске пересобирается
	if _, err := svc.Reconcile(context.Background()); err != nil {
		log.WithError(err).Error("initial publish failed")
	}

	/* 4) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)

	/* 5) Health + metrics */
	health.RegisterRoutesWithChecks(a.Router, map[string]health.Check{
		"db":         health.DBCheck(a.db),
		"config_dir": health.DirCheck(cfg.WireGuard.ConfigDir),
	})
	a.Router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	/* 6) Admin API */
	admin.Attach(a.Router, admin.Dependencies{
		SVC:        svc,
		US:         repo.NewUserStore(d),
		AdminToken: cfg.Auth.AdminToken,
	})

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		log.Debugf("route: %-6v %s", methods, path)
		return nil
	})
	return nil
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}
	log := logs.For("server")

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		log.Infof("shutdown signal: %s", s)
		a.cancel()
	}()

	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-a.ctx.Done():
	case runErr = <-errCh:
		log.WithError(runErr).Error("http server error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Errorf("http shutdown: %v", err)
	}
	if a.syncer != nil {
		_ = a.syncer.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return runErr
}
