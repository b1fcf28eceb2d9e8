package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/msomdec/gallery-manager/internal/config"
	"github.com/msomdec/gallery-manager/internal/handler"
	"github.com/msomdec/gallery-manager/internal/lock"
	"github.com/msomdec/gallery-manager/internal/repository/disk"
	"github.com/msomdec/gallery-manager/internal/repository/sqlite"
	"github.com/msomdec/gallery-manager/internal/service"
)

func main() {
	logOpts := &slog.HandlerOptions{Level: slog.LevelInfo}
	logger := slog.New(slog.NewMultiHandler(
		slog.NewTextHandler(os.Stdout, logOpts),
		slog.NewJSONHandler(os.Stderr, logOpts),
	))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.Galleries) == 0 {
		slog.Error("GALLERY_TYPES must name at least one gallery type")
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations applied")

	images, err := db.GalleryImages(cfg.Table)
	if err != nil {
		slog.Error("invalid gallery table", "table", cfg.Table, "error", err)
		os.Exit(1)
	}

	// Drop rows left behind by uploads that died between reserve and complete.
	purged, err := images.PurgePending(context.Background(), cfg.PendingMaxAge)
	if err != nil {
		slog.Error("failed to purge pending gallery images", "error", err)
		os.Exit(1)
	}
	slog.Info("pending gallery images purged", "count", purged)

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		locker = lock.NewRedis(rdb, cfg.LockTTL)
		slog.Info("using redis gallery locks", "addr", cfg.RedisAddr)
	}

	files := disk.NewFileStore(cfg.Directory, cfg.URL)
	keys := service.NewKeyResolver(cfg.PKGlue)

	galleries := make([]*service.GalleryService, 0, len(cfg.Galleries))
	for _, gt := range cfg.Galleries {
		galleries = append(galleries, service.NewGalleryService(gt, images, files, db.Owners(), keys,
			service.WithLocker(locker)))
		slog.Info("gallery type registered", "type", gt.Name, "owner_table", gt.OwnerTable)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var limiter *service.UploadLimiter
	if cfg.UploadRate > 0 {
		limiter = service.NewUploadLimiter(ctx, cfg.UploadRate, float64(cfg.UploadBurst))
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.NewGalleryHandler(galleries...), limiter)
	if publicPath := strings.TrimRight(cfg.URL, "/"); strings.HasPrefix(publicPath, "/") {
		mux.Handle("GET "+publicPath+"/", http.StripPrefix(publicPath, http.FileServer(http.Dir(cfg.Directory))))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.SecurityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
