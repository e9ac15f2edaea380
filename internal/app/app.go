// Package app はアプリケーションの起動とDIワイヤリングを提供する。
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
	"golang.org/x/time/rate"

	"github.com/hitoshi/pcosync/internal/config"
	"github.com/hitoshi/pcosync/internal/database"
	"github.com/hitoshi/pcosync/internal/endpoint"
	"github.com/hitoshi/pcosync/internal/handler"
	"github.com/hitoshi/pcosync/internal/logger"
	"github.com/hitoshi/pcosync/internal/metrics"
	"github.com/hitoshi/pcosync/internal/normalize"
	"github.com/hitoshi/pcosync/internal/pco"
	"github.com/hitoshi/pcosync/internal/schema"
	"github.com/hitoshi/pcosync/internal/security"
	"github.com/hitoshi/pcosync/internal/store"
	"github.com/hitoshi/pcosync/internal/syncer"
	"github.com/hitoshi/pcosync/internal/worker/syncjob"
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
	case CommandWorker:
		return runWorker(cfg)
	case CommandSync:
		return runSync(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// deps は同期パイプラインのワイヤリング済み依存一式。
type deps struct {
	runner         *syncer.Runner
	metricsHandler http.Handler
	close          func()
}

// buildDeps はDB接続から同期ランナーまでの全依存関係をワイヤリングする。
// baseCtxは非同期起動された同期実行の寿命を制御する。
func buildDeps(baseCtx context.Context, cfg *config.Config) (*deps, error) {
	// 1. クライアント構成の読み込み
	clients, err := cfg.LoadClients()
	if err != nil {
		return nil, fmt.Errorf("failed to load client configuration: %w", err)
	}

	// 2. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.Int("clients", len(clients)),
	)

	// 3. セキュリティサービスの初期化
	apiGuard := security.NewAPIGuard()
	sanitizer := security.NewFieldSanitizer()

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. PCO APIクライアントの初期化
	limiter := rate.NewLimiter(rate.Limit(cfg.APIRate), cfg.APIBurst)
	pcoClient := pco.NewClient(
		apiGuard.NewSafeClient(cfg.FetchTimeout),
		apiGuard,
		limiter,
		collector,
		slog.Default(),
		cfg.PageSize,
	)

	// 6. 同期エンジンとランナーの初期化
	pgStore := store.NewPostgresStore(db)
	normalizer := normalize.NewNormalizer(sanitizer, schema.NullStringEmpty)
	engine := syncer.NewEngine(
		pcoClient, pgStore, normalizer, collector,
		slog.Default(), endpoint.All(), cfg.BatchSize,
	)
	runner := syncer.NewRunner(baseCtx, engine, clients, pgStore, slog.Default())

	return &deps{
		runner:         runner,
		metricsHandler: metrics.SetupMetricsRoute(registry),
		close:          func() { db.Close() },
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := buildDeps(baseCtx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	router := handler.NewRouter(&handler.RouterDeps{
		Runner:         d.runner,
		Logger:         slog.Default(),
		MetricsHandler: d.metricsHandler,
	})

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
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はスケジューラワーカーモードで起動する。
// 設定された間隔で同期を定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	scheduler := syncjob.NewScheduler(d.runner, slog.Default(), cfg.SyncInterval)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runSync は同期を1回実行して終了する。
// cronなどの外部スケジューラからの起動を想定している。
func runSync(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	report, err := d.runner.RunSync(ctx)
	if err != nil {
		return fmt.Errorf("sync run failed: %w", err)
	}

	failures := report.Failures()
	slog.Info("sync run finished",
		slog.String("run_id", report.RunID),
		slog.Int("fetched", report.TotalFetched()),
		slog.Int("inserted", report.TotalInserted()),
		slog.Int("updated", report.TotalUpdated()),
		slog.Int("failures", len(failures)),
	)

	if len(failures) > 0 {
		return fmt.Errorf("sync run completed with %d failed pairs", len(failures))
	}
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

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
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
