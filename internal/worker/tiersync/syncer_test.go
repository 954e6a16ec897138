package tiersync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/kzcard/internal/model"
)

// mockSSRFGuard はテスト用のSSRF検証モック。
// httptestのループバックアドレスへ接続できるよう素のクライアントを返す。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) ValidateURL(rawURL string) error {
	return m.validateErr
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

// mockTierRepo はテスト用のティアリポジトリモック。
type mockTierRepo struct {
	replaceFn func(ctx context.Context, tiers []model.MapTier) error
	replaced  []model.MapTier
	called    bool
}

func (m *mockTierRepo) TiersByMapIDs(ctx context.Context, mapIDs []int) (map[int]int, error) {
	return map[int]int{}, nil
}

func (m *mockTierRepo) ReplaceAll(ctx context.Context, tiers []model.MapTier) error {
	m.called = true
	m.replaced = tiers
	if m.replaceFn != nil {
		return m.replaceFn(ctx, tiers)
	}
	return nil
}

func (m *mockTierRepo) Count(ctx context.Context) (int, error) {
	return len(m.replaced), nil
}

// mockMetrics はテスト用のメトリクスモック。
type mockMetrics struct {
	statuses []int
	synced   int
}

func (m *mockMetrics) RecordUpstreamStatus(statusCode int) { m.statuses = append(m.statuses, statusCode) }
func (m *mockMetrics) RecordTierRowsSynced(count int)      { m.synced += count }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newTestSyncer(repo *mockTierRepo, metrics *mockMetrics, baseURL string, pageSize int) *Syncer {
	return NewSyncer(repo, &mockSSRFGuard{}, metrics, testLogger(), baseURL, pageSize, 2*time.Second, 1<<20)
}

// mapsServer はページングに応答するマップ一覧スタブを返す。
func mapsServer(t *testing.T, total int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps" {
			http.NotFound(w, r)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var page []map[string]interface{}
		for i := offset; i < total && i < offset+limit; i++ {
			page = append(page, map[string]interface{}{
				"id":         i + 1,
				"name":       fmt.Sprintf("kz_map_%d", i+1),
				"difficulty": (i % 7) + 1,
			})
		}
		if page == nil {
			page = []map[string]interface{}{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(server.Close)
	return server
}

// TestSync_SinglePage は1ページで完結する同期を検証する。
func TestSync_SinglePage(t *testing.T) {
	server := mapsServer(t, 3)
	repo := &mockTierRepo{}
	metrics := &mockMetrics{}
	syncer := newTestSyncer(repo, metrics, server.URL, 10)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.replaced) != 3 {
		t.Fatalf("replaced rows = %d, want 3", len(repo.replaced))
	}
	if repo.replaced[0].MapID != 1 || repo.replaced[0].Name != "kz_map_1" {
		t.Errorf("先頭行 = %+v, want kz_map_1", repo.replaced[0])
	}
	if metrics.synced != 3 {
		t.Errorf("synced = %d, want 3", metrics.synced)
	}
}

// TestSync_MultiplePages は複数ページにまたがる同期を検証する。
func TestSync_MultiplePages(t *testing.T) {
	server := mapsServer(t, 25)
	repo := &mockTierRepo{}
	metrics := &mockMetrics{}
	syncer := newTestSyncer(repo, metrics, server.URL, 10)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.replaced) != 25 {
		t.Errorf("replaced rows = %d, want 25", len(repo.replaced))
	}
	// 10 + 10 + 5 の3ページ分のステータスが記録される
	if len(metrics.statuses) != 3 {
		t.Errorf("記録されたステータス数 = %d, want 3", len(metrics.statuses))
	}
}

// TestSync_UpstreamError_DoesNotTouchTable は上流エラー時にテーブルが変更されないことを検証する。
func TestSync_UpstreamError_DoesNotTouchTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	repo := &mockTierRepo{}
	syncer := newTestSyncer(repo, &mockMetrics{}, server.URL, 10)

	if err := syncer.Sync(context.Background()); err == nil {
		t.Fatal("上流エラー時はエラーを返すべき")
	}
	if repo.called {
		t.Error("上流エラー時はReplaceAllを呼ばないべき")
	}
}

// TestSync_InvalidJSON_ReturnsError は不正なレスポンスでエラーが返ることを検証する。
func TestSync_InvalidJSON_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	repo := &mockTierRepo{}
	syncer := newTestSyncer(repo, &mockMetrics{}, server.URL, 10)

	if err := syncer.Sync(context.Background()); err == nil {
		t.Fatal("不正なJSONではエラーを返すべき")
	}
	if repo.called {
		t.Error("パース失敗時はReplaceAllを呼ばないべき")
	}
}

// TestSync_SkipsNonPositiveMapIDs は不正なマップIDがスキップされることを検証する。
func TestSync_SkipsNonPositiveMapIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 0, "name": "broken", "difficulty": 1},
			{"id": 101, "name": "kz_valid", "difficulty": 4},
		})
	}))
	defer server.Close()

	repo := &mockTierRepo{}
	syncer := newTestSyncer(repo, &mockMetrics{}, server.URL, 10)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.replaced) != 1 || repo.replaced[0].MapID != 101 {
		t.Errorf("replaced = %+v, want id=101の1件のみ", repo.replaced)
	}
}

// TestSync_ReplaceAllError_Propagates はリポジトリエラーが伝搬することを検証する。
func TestSync_ReplaceAllError_Propagates(t *testing.T) {
	server := mapsServer(t, 2)
	repo := &mockTierRepo{
		replaceFn: func(ctx context.Context, tiers []model.MapTier) error {
			return context.DeadlineExceeded
		},
	}
	metrics := &mockMetrics{}
	syncer := newTestSyncer(repo, metrics, server.URL, 10)

	if err := syncer.Sync(context.Background()); err == nil {
		t.Fatal("リポジトリエラーは伝搬するべき")
	}
	if metrics.synced != 0 {
		t.Error("失敗時は行数を記録しないべき")
	}
}
