package tier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/kzcard/internal/model"
)

// mockTierRepo はMapTierRepositoryのテスト用モック。
type mockTierRepo struct {
	tiersFn func(ctx context.Context, mapIDs []int) (map[int]int, error)
}

func (m *mockTierRepo) TiersByMapIDs(ctx context.Context, mapIDs []int) (map[int]int, error) {
	if m.tiersFn != nil {
		return m.tiersFn(ctx, mapIDs)
	}
	return map[int]int{}, nil
}

func (m *mockTierRepo) ReplaceAll(ctx context.Context, tiers []model.MapTier) error { return nil }
func (m *mockTierRepo) Count(ctx context.Context) (int, error)                      { return 0, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// 一致したマップだけが集計され、未知のIDは黙って除外されることを検証
func TestEnrich_CountsMatchedTiersOnly(t *testing.T) {
	repo := &mockTierRepo{tiersFn: func(_ context.Context, _ []int) (map[int]int, error) {
		return map[int]int{101: 1, 202: 1, 303: 3}, nil
	}}
	e := NewEnricher(repo, testLogger())

	stats := &model.PlayerStats{
		Source: model.SourceGlobalAPI,
		MapIDs: []int{101, 202, 303, 999}, // 999は参照テーブルに存在しない
	}
	e.Enrich(context.Background(), stats)

	if stats.TierCounts == nil {
		t.Fatal("TierCounts should not be nil")
	}
	if stats.TierCounts[1] != 2 || stats.TierCounts[3] != 1 {
		t.Errorf("TierCounts = %v, want map[1:2 3:1]", stats.TierCounts)
	}

	// 集計合計は入力ID数を超えない
	total := 0
	for _, c := range stats.TierCounts {
		total += c
	}
	if total > len(stats.MapIDs) {
		t.Errorf("counted %d > input %d", total, len(stats.MapIDs))
	}
}

// 空のMapIDsは常に空のTierCountsになることを検証（照会は発生しない）
func TestEnrich_EmptyMapIDs_YieldsEmptyCounts(t *testing.T) {
	queried := false
	repo := &mockTierRepo{tiersFn: func(_ context.Context, _ []int) (map[int]int, error) {
		queried = true
		return map[int]int{}, nil
	}}
	e := NewEnricher(repo, testLogger())

	stats := &model.PlayerStats{Source: model.SourceGlobalAPI}
	e.Enrich(context.Background(), stats)

	if stats.TierCounts == nil || len(stats.TierCounts) != 0 {
		t.Errorf("TierCounts = %v, want empty non-nil map", stats.TierCounts)
	}
	if queried {
		t.Error("repository must not be queried for empty MapIDs")
	}
}

// 参照テーブル障害は空の分布へ degrade しエラーにならないことを検証
func TestEnrich_RepositoryError_DegradesToEmpty(t *testing.T) {
	repo := &mockTierRepo{tiersFn: func(_ context.Context, _ []int) (map[int]int, error) {
		return nil, errors.New("connection refused")
	}}
	e := NewEnricher(repo, testLogger())

	stats := &model.PlayerStats{
		Source: model.SourceGlobalAPI,
		MapIDs: []int{101},
	}
	e.Enrich(context.Background(), stats)

	if stats.TierCounts == nil || len(stats.TierCounts) != 0 {
		t.Errorf("TierCounts = %v, want empty non-nil map", stats.TierCounts)
	}
}

// kzgo.eu由来の統計には何もしないことを検証
func TestEnrich_ScrapedSource_Untouched(t *testing.T) {
	e := NewEnricher(&mockTierRepo{}, testLogger())

	stats := &model.PlayerStats{Source: model.SourceKzgo}
	e.Enrich(context.Background(), stats)

	if stats.TierCounts != nil {
		t.Errorf("TierCounts = %v, want nil for scraped source", stats.TierCounts)
	}
}

// nil statsで panic しないことを検証
func TestEnrich_NilStats_NoPanic(t *testing.T) {
	e := NewEnricher(&mockTierRepo{}, testLogger())
	e.Enrich(context.Background(), nil)
}
