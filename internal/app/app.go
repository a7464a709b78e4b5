package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/skillstack/internal/ai"
	"github.com/hitoshi/skillstack/internal/auth"
	"github.com/hitoshi/skillstack/internal/config"
	"github.com/hitoshi/skillstack/internal/database"
	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/handler"
	"github.com/hitoshi/skillstack/internal/logger"
	"github.com/hitoshi/skillstack/internal/metrics"
	"github.com/hitoshi/skillstack/internal/middleware"
	"github.com/hitoshi/skillstack/internal/repository"
	"github.com/hitoshi/skillstack/internal/resource"
	"github.com/hitoshi/skillstack/internal/security"
	"github.com/hitoshi/skillstack/internal/source"
	"github.com/hitoshi/skillstack/internal/user"
	fetchpkg "github.com/hitoshi/skillstack/internal/worker/fetch"
)

const (
	shutdownTimeout = 30 * time.Second
	pingTimeout     = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数を読み込み、LOG_LEVEL に合わせてロガーを再設定する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. 設定読み込み中の警告を出せるよう、先に info レベルで初期化する
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
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
		return runHealthcheck(fmt.Sprintf("http://localhost:%s/health", port))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.AppEnv),
		slog.String("database_url", logger.MaskDatabaseURL(cfg.DatabaseURL)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateAction(args))
	default:
		return runServe(ctx, cfg)
	}
}

// openStore はDB接続を開いて疎通を確認し、Storeを返す。
func openStore(ctx context.Context, databaseURL string) (*sqlx.DB, *datastore.Store, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, datastore.New(db, datastore.DefaultRegistry), nil
}

// newRegistry はプロセス共通のメトリクスレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// buildRouter は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// 戻り値の関数はバックグラウンド処理（レート制限のクリーンアップ）を停止する。
func buildRouter(cfg *config.Config, store *datastore.Store, reg *prometheus.Registry) (http.Handler, func(), error) {
	collector := metrics.NewCollector(reg)

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(store)
	resourceRepo := repository.NewPostgresResourceRepo(store)
	typeRepo := repository.NewPostgresResourceTypeRepo(store)
	platformRepo := repository.NewPostgresResourcePlatformRepo(store)
	sourceRepo := repository.NewPostgresSourceRepo(store)

	// 2. 認証サービスの初期化
	tokens, err := auth.NewTokenIssuer(cfg.SecretKey, auth.WithTTL(cfg.AccessTokenTTL, cfg.RefreshTokenTTL))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	authService, err := auth.NewService(userRepo, auth.NewPasswordHasher(auth.DefaultBcryptCost), tokens, collector)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	// 3. ドメインサービスの初期化
	resourceService := resource.NewService(resourceRepo, typeRepo, platformRepo)
	typeService := resource.NewTypeService(typeRepo, resourceRepo)
	platformService := resource.NewPlatformService(platformRepo, resourceRepo)
	sourceService := source.NewService(sourceRepo, typeRepo, source.NewDiscoverer(security.NewGuard()))
	userService := user.NewService(userRepo)

	// 4. AIクライアントは最初の呼び出しまで構築しない
	gemini := ai.NewLazyClient(func() (ai.Generator, error) {
		return ai.NewClient(&http.Client{Timeout: cfg.GeminiTimeout}, slog.Default(), ai.ClientConfig{
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.GeminiModel,
			Endpoint: cfg.GeminiEndpoint,
		})
	})
	aiService := ai.NewService(gemini, resourceService, typeRepo, platformRepo, collector, cfg.GeminiTimeout, slog.Default())

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitAI))

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		MetricsHandler:    metrics.Handler(reg),

		AuthService:     authService,
		UserService:     userService,
		ResourceService: resourceService,
		TypeService:     typeService,
		PlatformService: platformService,
		SourceService:   sourceService,
		AIService:       aiService,
	})
	return router, rateLimiter.Stop, nil
}

// runServe はAPIサーバーモードで起動する。
// ctx がキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, store, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	router, stopBackground, err := buildRouter(cfg, store, newRegistry())
	if err != nil {
		return err
	}
	defer stopBackground()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// AI呼び出しはモデルのタイムアウトまで待つため、書き込み側に余裕を持たせる
		WriteTimeout: cfg.GeminiTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("API server starting", slog.String("addr", server.Addr))
	return serveUntilDone(ctx, server)
}

// serveUntilDone は ctx が終了するまでサーバーを動かし、その後シャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...", slog.String("addr", server.Addr))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully", slog.String("addr", server.Addr))
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限の来たソースを定期的に取得し、/metrics を METRICS_PORT で公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, store, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	sourceRepo := repository.NewPostgresSourceRepo(store)
	resourceRepo := repository.NewPostgresResourceRepo(store)

	fetcher := fetchpkg.NewFetcher(
		sourceRepo, resourceRepo, security.NewGuard(), collector,
		fetchpkg.Policy{Interval: cfg.FetchInterval},
		slog.Default(),
	)
	scheduler := fetchpkg.NewScheduler(sourceRepo, fetcher, slog.Default(), cfg.FetchConcurrency)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsDone := make(chan error, 1)
	go func() { metricsDone <- serveUntilDone(ctx, metricsServer) }()

	slog.Info("worker starting",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Duration("poll_interval", cfg.FetchPollInterval),
		slog.Int("concurrency", cfg.FetchConcurrency),
		slog.String("metrics_addr", metricsServer.Addr),
	)

	// フェッチスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.FetchPollInterval)

	if err := <-metricsDone; err != nil {
		slog.Error("metrics server error", slog.String("error", err.Error()))
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// up は未適用のマイグレーションをすべて適用し、down は直近の1つを取り消す。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", logger.MaskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case MigrateVersion:
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(url string) error {
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
