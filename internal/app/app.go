// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/kzcard/internal/binding"
	"github.com/hitoshi/kzcard/internal/config"
	"github.com/hitoshi/kzcard/internal/database"
	"github.com/hitoshi/kzcard/internal/handler"
	"github.com/hitoshi/kzcard/internal/logger"
	"github.com/hitoshi/kzcard/internal/metrics"
	"github.com/hitoshi/kzcard/internal/middleware"
	"github.com/hitoshi/kzcard/internal/render"
	"github.com/hitoshi/kzcard/internal/repository"
	"github.com/hitoshi/kzcard/internal/security"
	"github.com/hitoshi/kzcard/internal/stats"
	"github.com/hitoshi/kzcard/internal/steamid"
	"github.com/hitoshi/kzcard/internal/tier"
	"github.com/hitoshi/kzcard/internal/worker/tiersync"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSyncTiers:
		return runSyncTiers(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	bindingRepo := repository.NewPostgresBindingRepo(db)
	tierRepo := repository.NewPostgresMapTierRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	scrubber := security.NewTextSanitizer()

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	resolver := steamid.NewResolver(
		cfg.SteamIDLookupBaseURL, ssrfGuard, slog.Default(),
		cfg.FetchTimeout, cfg.FetchMaxSize,
	)
	bindingService := binding.NewService(bindingRepo, resolver, slog.Default())

	kzgoAdapter := stats.NewKzgoAdapter(
		cfg.KzgoBaseURL, ssrfGuard, scrubber, slog.Default(),
		cfg.FetchTimeout, cfg.FetchMaxSize,
	)
	globalAdapter := stats.NewGlobalAPIAdapter(
		cfg.GlobalAPIBaseURL, cfg.VnlProfileBaseURL, ssrfGuard, slog.Default(),
		cfg.FetchTimeout, cfg.FetchMaxSize,
	)
	statsService := stats.NewService(kzgoAdapter, globalAdapter, collector, slog.Default())

	enricher := tier.NewEnricher(tierRepo, slog.Default())
	renderer := render.NewCardRenderer(
		cfg.FontPaths, ssrfGuard, slog.Default(),
		cfg.FetchTimeout, cfg.FetchMaxSize,
	)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitBind),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:      slog.Default(),
		RateLimiter: rateLimiter,

		BindingService: bindingService,

		StatsService:  statsService,
		TierEnricher:  enricher,
		CardRenderer:  renderer,
		RenderMetrics: collector,

		Gatherer:    registry,
		HealthCheck: db.Ping,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runSyncTiers はマップティア参照テーブルの同期を実行する。
// Global APIのマップ一覧を全ページ取得し、テーブルを置き換える。
func runSyncTiers(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	tierRepo := repository.NewPostgresMapTierRepo(db)
	ssrfGuard := security.NewSSRFGuard()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	syncer := tiersync.NewSyncer(
		tierRepo, ssrfGuard, collector, slog.Default(),
		cfg.GlobalAPIBaseURL, cfg.TierSyncPageSize,
		cfg.FetchTimeout, cfg.FetchMaxSize,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := syncer.Sync(ctx); err != nil {
		return fmt.Errorf("tier sync failed: %w", err)
	}

	count, err := tierRepo.Count(ctx)
	if err == nil {
		slog.Info("tier reference table updated", slog.Int("rows", count))
	}

	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
