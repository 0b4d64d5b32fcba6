package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OnAirFM/cache"
	"OnAirFM/config"
	"OnAirFM/core/audio"
	"OnAirFM/core/auth"
	"OnAirFM/core/importer"
	"OnAirFM/core/radio"
	"OnAirFM/db"
	"OnAirFM/logger"
	"OnAirFM/repository"
	"OnAirFM/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Deps 路由依赖
type Deps struct {
	Radio          RadioService
	Tracks         repository.TrackRepository
	Users          repository.UserRepository
	Tokens         *auth.TokenIssuer
	Media          MediaStore // 可为 nil
	Prober         audio.Prober
	AllowedOrigins []string
	MaxUploadBytes int64
}

// NewRouter 组装全部路由
func NewRouter(d Deps) http.Handler {
	router := mux.NewRouter()

	authHandler := NewAuthHandler(d.Users, d.Tokens)
	router.HandleFunc("/api/auth/login", authHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", authHandler.RegisterHandler).Methods(http.MethodPost)

	NewRadioHandler(d.Radio, d.Tracks, d.Media, d.Prober, d.MaxUploadBytes).RegisterRoutes(router, authHandler)
	NewWSHandler(d.Radio, d.AllowedOrigins).RegisterRoutes(router)
	NewMediaHandler(d.Media).RegisterRoutes(router)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	}).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions, http.MethodHead},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Range"},
		ExposedHeaders:   []string{"Content-Length", "Content-Range"},
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	})
	return c.Handler(router)
}

// Start 连接依赖、启动调度器和 HTTP 服务，收到退出信号后优雅关闭
func Start(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.ConnectGormDB(cfg); err != nil {
		return err
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrateModels(); err != nil {
		return err
	}

	trackRepo := repository.NewGormTrackRepository(db.GormDB)
	userRepo := repository.NewGormUserRepository(db.GormDB)

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}

	radio.RegisterMetrics()
	scheduler := radio.NewScheduler(trackRepo, radio.OptionsFromConfig(cfg))

	// Redis 镜像，连接失败不影响播出
	if cfg.EnableRedisSync {
		if err := db.ConnectRedis(cfg); err != nil {
			logger.Warn("Redis unavailable, status mirror disabled", logger.ErrorField(err))
		} else {
			defer db.CloseRedis()
			statusCache := cache.NewStatusCache(db.RedisClient, cfg)
			sub, snapshot := scheduler.Subscribe()
			go cache.Mirror(ctx, statusCache, sub, snapshot)
			logger.Info("status mirror enabled", logger.String("key", cfg.StatusCacheKey))
		}
	}

	deps := Deps{
		Radio:          scheduler,
		Tracks:         trackRepo,
		Users:          userRepo,
		Tokens:         tokens,
		Prober:         audio.NewFFmpegProcessor(cfg.FFmpegPath),
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	if cfg.EnableMinio {
		store, err := storage.NewMediaStore(cfg)
		if err != nil {
			return err
		}
		bctx, bcancel := context.WithTimeout(ctx, 5*time.Second)
		err = store.EnsureBucket(bctx)
		bcancel()
		if err != nil {
			logger.Warn("MinIO unavailable, uploads disabled", logger.ErrorField(err))
		} else {
			deps.Media = store
		}
	}

	if err := scheduler.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize radio scheduler: %w", err)
	}

	if cfg.ImportDir != "" {
		watcher := importer.NewWatcher(cfg.ImportDir, scheduler)
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("import watcher stopped", logger.ErrorField(err))
			}
		}()
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
		logger.Info("Shutting down server...")
	case err := <-serveErr:
		stopScheduler(scheduler, shutdownTimeout)
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// 先关闭调度器，WebSocket 连接随订阅关闭
	stopScheduler(scheduler, shutdownTimeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

const shutdownTimeout = 5 * time.Second

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// stopScheduler 在 timeout 内关闭调度器，超时只记录日志
func stopScheduler(s shutdowner, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Warn("scheduler shutdown incomplete", logger.ErrorField(err))
	}
	return err
}
