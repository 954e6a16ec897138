package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/kzcard/internal/metrics"
	"github.com/hitoshi/kzcard/internal/middleware"
	"github.com/hitoshi/kzcard/internal/model"
)

func newTestRouterDeps() *RouterDeps {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	return &RouterDeps{
		Logger:         slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})),
		RateLimiter:    middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		BindingService: &mockBindingService{},
		StatsService:   &mockStatsFetcher{},
		TierEnricher:   &mockEnricher{},
		CardRenderer:   &mockRenderer{},
		RenderMetrics:  collector,
		Gatherer:       reg,
		HealthCheck:    func() error { return nil },
	}
}

// TestRouter_Healthz はヘルスチェックエンドポイントを検証する。
func TestRouter_Healthz(t *testing.T) {
	router := NewRouter(newTestRouterDeps())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestRouter_Healthz_Unhealthy はヘルスチェック失敗時に503が返ることを検証する。
func TestRouter_Healthz_Unhealthy(t *testing.T) {
	deps := newTestRouterDeps()
	deps.HealthCheck = func() error { return context.DeadlineExceeded }
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusServiceUnavailable)
	}
}

// TestRouter_Metrics はメトリクスエンドポイントがPrometheus形式で返すことを検証する。
func TestRouter_Metrics(t *testing.T) {
	router := NewRouter(newTestRouterDeps())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestRouter_BindingRoutes_Reachable は紐付けルートがルーター経由で到達可能なことを検証する。
func TestRouter_BindingRoutes_Reachable(t *testing.T) {
	deps := newTestRouterDeps()
	deps.BindingService = &mockBindingService{
		bindFn: func(ctx context.Context, chatUserID, rawSteamID string, mode model.Mode) (*model.Binding, error) {
			return &model.Binding{ChatUserID: chatUserID, DefaultMode: mode}, nil
		},
		getFn: func(ctx context.Context, chatUserID string) (*model.Binding, error) {
			return &model.Binding{ChatUserID: chatUserID}, nil
		},
		unbindFn: func(ctx context.Context, chatUserID string) (bool, error) {
			return true, nil
		},
	}
	router := NewRouter(deps)

	tests := []struct {
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{http.MethodPost, "/api/bindings", `{"chat_user_id":"chat-1","steam_id":"x"}`, http.StatusCreated},
		{http.MethodGet, "/api/bindings/chat-1", "", http.StatusOK},
		{http.MethodDelete, "/api/bindings/chat-1", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		var req *http.Request
		if tt.body != "" {
			req = httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
		} else {
			req = httptest.NewRequest(tt.method, tt.path, nil)
		}
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Result().StatusCode != tt.wantStatus {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, w.Result().StatusCode, tt.wantStatus)
		}
	}
}

// TestRouter_RequestIDHeaderSet は全ルートでX-Request-IDが付与されることを検証する。
func TestRouter_RequestIDHeaderSet(t *testing.T) {
	router := NewRouter(newTestRouterDeps())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-IDヘッダーが設定されるべき")
	}
}

// TestRouter_PanicRecovered はハンドラーのpanicが500に変換されることを検証する。
func TestRouter_PanicRecovered(t *testing.T) {
	deps := newTestRouterDeps()
	deps.BindingService = &mockBindingService{
		getFn: func(ctx context.Context, chatUserID string) (*model.Binding, error) {
			panic("unexpected")
		},
	}
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/bindings/chat-1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}

// TestRouter_StatsCardRoute_Reachable は統計カードルートが到達可能なことを検証する。
func TestRouter_StatsCardRoute_Reachable(t *testing.T) {
	deps := newTestRouterDeps()
	deps.BindingService = boundService(model.ModeKZT)
	router := NewRouter(deps)

	// 統計取得モックはnilを返すため502になる（ルート到達の確認）
	req := httptest.NewRequest(http.MethodGet, "/api/stats/chat-1/card", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadGateway)
	}
}
