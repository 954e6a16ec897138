package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/kzcard/internal/metrics"
	"github.com/hitoshi/kzcard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	// 紐付け
	BindingService BindingServiceInterface

	// 統計カード
	StatsService  StatsFetcher
	TierEnricher  TierEnricher
	CardRenderer  CardRendererInterface
	RenderMetrics RenderMetricsRecorder

	// 運用
	Gatherer    prometheus.Gatherer
	HealthCheck func() error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	LoggingMiddleware → RecoveryMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 運用系ルート（/healthz、/metrics）はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	bindingHandler := NewBindingHandler(deps.BindingService)
	statsHandler := NewStatsHandler(
		deps.BindingService,
		deps.StatsService,
		deps.TierEnricher,
		deps.CardRenderer,
		deps.RenderMetrics,
	)

	// --- 運用系ルート ---

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 紐付け管理
		r.Route("/api/bindings", func(r chi.Router) {
			// POST /api/bindings - 紐付け登録（登録専用レート制限を追加）
			r.With(deps.RateLimiter.BindMiddleware()).Post("/", bindingHandler.Bind)

			r.Route("/{chatUserID}", func(r chi.Router) {
				r.Get("/", bindingHandler.Get)
				r.Delete("/", bindingHandler.Unbind)
			})
		})

		// 統計カード
		r.Get("/api/stats/{chatUserID}/card", statsHandler.Card)
	})

	return r
}
