package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/kzcard/internal/model"
)

// StatsFetcher は統計取得のインターフェース。
// 取得失敗時はnilを返す（エラーは返さない）。
type StatsFetcher interface {
	Fetch(ctx context.Context, steamID64 string, mode model.Mode) *model.PlayerStats
}

// TierEnricher はティア情報付与のインターフェース。
type TierEnricher interface {
	Enrich(ctx context.Context, stats *model.PlayerStats)
}

// CardRendererInterface はカード描画のインターフェース。
// 描画失敗時はnilを返す（エラーは返さない）。
type CardRendererInterface interface {
	Render(ctx context.Context, stats *model.PlayerStats) []byte
}

// RenderMetricsRecorder はカード描画のメトリクス収集インターフェース。
type RenderMetricsRecorder interface {
	RecordRenderFailure()
	RecordRenderLatency(duration time.Duration)
}

// StatsHandler は統計カード生成のHTTPハンドラー。
type StatsHandler struct {
	bindings BindingServiceInterface
	stats    StatsFetcher
	enricher TierEnricher
	renderer CardRendererInterface
	metrics  RenderMetricsRecorder
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(
	bindings BindingServiceInterface,
	stats StatsFetcher,
	enricher TierEnricher,
	renderer CardRendererInterface,
	metrics RenderMetricsRecorder,
) *StatsHandler {
	return &StatsHandler{
		bindings: bindings,
		stats:    stats,
		enricher: enricher,
		renderer: renderer,
		metrics:  metrics,
	}
}

// Card は統計カード画像を生成して返す。
// GET /api/stats/:chatUserID/card?mode=kzt|skz|vnl
//
// 処理の流れ: 紐付け取得 → モード決定（クエリで上書き可） →
// 統計取得 → ティア付与（vnlのみ） → PNG描画。
func (h *StatsHandler) Card(w http.ResponseWriter, r *http.Request) {
	chatUserID := chi.URLParam(r, "chatUserID")

	b, err := h.bindings.Get(r.Context(), chatUserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if b == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewBindingNotFoundError(chatUserID))
		return
	}

	// デフォルトは紐付け時のモード。クエリパラメータで上書きできる。
	mode := b.DefaultMode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		parsed, ok := model.ParseMode(raw)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidModeError(raw))
			return
		}
		mode = parsed
	}

	stats := h.stats.Fetch(r.Context(), b.SteamID64, mode)
	if stats == nil {
		source := string(model.SourceKzgo)
		if mode.UsesGlobalAPI() {
			source = string(model.SourceGlobalAPI)
		}
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewUpstreamUnavailableError(source))
		return
	}

	h.enricher.Enrich(r.Context(), stats)

	start := time.Now()
	png := h.renderer.Render(r.Context(), stats)
	h.metrics.RecordRenderLatency(time.Since(start))

	if png == nil {
		h.metrics.RecordRenderFailure()
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewRenderFailedError())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
