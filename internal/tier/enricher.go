// Package tier はマップID群からのティア分布付与を提供する。
package tier

import (
	"context"
	"log/slog"

	"github.com/hitoshi/kzcard/internal/model"
	"github.com/hitoshi/kzcard/internal/repository"
)

// Enricher はGlobal API由来の統計レコードにティア分布を付与する。
type Enricher struct {
	tierRepo repository.MapTierRepository
	logger   *slog.Logger
}

// NewEnricher はEnricherの新しいインスタンスを生成する。
func NewEnricher(tierRepo repository.MapTierRepository, logger *slog.Logger) *Enricher {
	return &Enricher{
		tierRepo: tierRepo,
		logger:   logger,
	}
}

// Enrich はstatsのMapIDsを参照テーブルと突き合わせ、ティア→件数の
// ヒストグラムをTierCountsへ格納する。
//   - Global API由来以外の統計には何もしない
//   - 参照テーブルに存在しないマップIDは黙って除外する（エラーにしない）
//   - MapIDsが空、一致ゼロ、参照クエリ失敗のいずれも空のマップになる
//     （nilでもエラーでもない）
func (e *Enricher) Enrich(ctx context.Context, stats *model.PlayerStats) {
	if stats == nil || stats.Source != model.SourceGlobalAPI {
		return
	}

	stats.TierCounts = make(map[int]int)
	if len(stats.MapIDs) == 0 {
		return
	}

	tiers, err := e.tierRepo.TiersByMapIDs(ctx, stats.MapIDs)
	if err != nil {
		// 参照テーブルの障害でクエリ全体を失敗させない
		e.logger.Warn("ティア付与: 参照テーブルの照会に失敗しました（空の分布で継続）",
			slog.Int("map_count", len(stats.MapIDs)),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, mapID := range stats.MapIDs {
		if t, ok := tiers[mapID]; ok {
			stats.TierCounts[t]++
		}
	}
}
