// Package stats は上流サービスからの統計取得と正規化を提供する。
// モードごとに異なる上流表現（HTMLスクレイピング / JSON複合API）を
// 1つの正規化済みPlayerStatsレコードへ変換する2つのアダプタを含む。
package stats

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/kzcard/internal/model"
)

// Adapter は統計取得アダプタの共通契約。
// 取得失敗・未検出・上流障害はすべてnilに集約する（エラーは返さない）。
// 呼び出しごとに上限付きタイムアウトを適用し、リトライは行わない。
type Adapter interface {
	Fetch(ctx context.Context, steamID64 string, mode model.Mode) *model.PlayerStats
}

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// TextScrubber はスクレイピング由来テキストのスクラブインターフェース。
type TextScrubber interface {
	Scrub(raw string) string
}

// MetricsRecorder は統計取得のメトリクス収集インターフェース。
type MetricsRecorder interface {
	RecordFetchSuccess(source string)
	RecordFetchFailure(source string)
	RecordFetchLatency(duration time.Duration)
}

// Service はモードに応じたアダプタ選択と計測を行う。
type Service struct {
	kzgo      Adapter
	globalAPI Adapter
	metrics   MetricsRecorder
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(kzgo, globalAPI Adapter, metrics MetricsRecorder, logger *slog.Logger) *Service {
	return &Service{
		kzgo:      kzgo,
		globalAPI: globalAPI,
		metrics:   metrics,
		logger:    logger,
	}
}

// Fetch はモードに対応するアダプタで統計を取得する。
// vnlはGlobal API複合アダプタ、kzt/skzはkzgo.euスクレイピングアダプタを使う。
func (s *Service) Fetch(ctx context.Context, steamID64 string, mode model.Mode) *model.PlayerStats {
	adapter := s.kzgo
	source := model.SourceKzgo
	if mode.UsesGlobalAPI() {
		adapter = s.globalAPI
		source = model.SourceGlobalAPI
	}

	start := time.Now()
	result := adapter.Fetch(ctx, steamID64, mode)
	s.metrics.RecordFetchLatency(time.Since(start))

	if result == nil {
		s.metrics.RecordFetchFailure(string(source))
		s.logger.Warn("統計取得に失敗しました",
			slog.String("steam_id64", steamID64),
			slog.String("mode", string(mode)),
			slog.String("source", string(source)),
		)
		return nil
	}

	s.metrics.RecordFetchSuccess(string(source))
	return result
}
