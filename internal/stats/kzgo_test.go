package stats

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/kzcard/internal/model"
)

// mockSSRFGuard はSSRFValidatorのテスト用モック。
// httptestサーバー（ループバック）への接続を許可するため素のクライアントを返す。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

// passthroughScrubber はTextScrubberのテスト用実装。空白除去のみ行う。
type passthroughScrubber struct{}

func (passthroughScrubber) Scrub(raw string) string {
	return strings.TrimSpace(raw)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

const playerPageHTML = `<!DOCTYPE html>
<html><body>
<div class="player-card">
  <h1> CoolPlayer </h1>
  <img src="https://avatars.example.com/abc_full.jpg" alt="avatar">
  <div class="rank">
    <h2>Global Rank #42</h2>
    <p>123,456 points</p>
  </div>
</div>
<table class="table-player">
  <tr><td>Maps Completed</td><td>512</td></tr>
  <tr><td>World Records</td><td>3</td></tr>
  <tr><td>Average</td><td>91.2</td></tr>
  <tr><td>single cell row</td></tr>
</table>
</body></html>`

const playerPageNoRankHTML = `<!DOCTYPE html>
<html><body>
<div class="player-card">
  <h1>FreshPlayer</h1>
  <img src="https://avatars.example.com/new.jpg">
</div>
<table class="table-player">
  <tr><td>Maps Completed</td><td>7</td></tr>
</table>
</body></html>`

func newKzgoTestAdapter(baseURL string) *KzgoAdapter {
	return NewKzgoAdapter(baseURL, &mockSSRFGuard{}, passthroughScrubber{}, testLogger(), 5*time.Second, 1<<20)
}

// ページの全領域が正規化済みレコードへ抽出されることを検証
func TestKzgoFetch_FullPage(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(playerPageHTML))
	}))
	defer srv.Close()

	a := newKzgoTestAdapter(srv.URL)
	got := a.Fetch(context.Background(), "76561197985087965", model.ModeKZT)

	if got == nil {
		t.Fatal("expected stats, got nil")
	}
	if gotPath != "/players/76561197985087965" {
		t.Errorf("request path = %q, want /players/76561197985087965", gotPath)
	}
	if gotQuery != "kzt" {
		t.Errorf("request query = %q, want kzt", gotQuery)
	}
	if got.Source != model.SourceKzgo {
		t.Errorf("Source = %q, want kzgo.eu", got.Source)
	}
	if got.Name != "CoolPlayer" {
		t.Errorf("Name = %q, want CoolPlayer", got.Name)
	}
	if got.AvatarURL != "https://avatars.example.com/abc_full.jpg" {
		t.Errorf("AvatarURL = %q", got.AvatarURL)
	}
	if got.Rank != "Global Rank #42" {
		t.Errorf("Rank = %q, want Global Rank #42", got.Rank)
	}
	if got.Points != "123,456" {
		t.Errorf("Points = %q, want 123,456 (with 'points' suffix stripped)", got.Points)
	}
	if got.Extra["maps_completed"] != "512" {
		t.Errorf("Extra[maps_completed] = %q, want 512", got.Extra["maps_completed"])
	}
	if got.Extra["world_records"] != "3" {
		t.Errorf("Extra[world_records] = %q, want 3", got.Extra["world_records"])
	}
	if got.Extra["average"] != "91.2" {
		t.Errorf("Extra[average] = %q, want 91.2", got.Extra["average"])
	}
	if len(got.Extra) != 3 {
		t.Errorf("Extra has %d keys, want 3 (single-cell rows skipped): %v", len(got.Extra), got.Extra)
	}
}

// ランクブロック欠落時の既定値とテーブル抽出の継続を検証
func TestKzgoFetch_MissingRankBlock_DegradesToDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(playerPageNoRankHTML))
	}))
	defer srv.Close()

	a := newKzgoTestAdapter(srv.URL)
	got := a.Fetch(context.Background(), "76561197985087965", model.ModeSKZ)

	if got == nil {
		t.Fatal("expected stats, got nil")
	}
	if got.Rank != "Unranked" {
		t.Errorf("Rank = %q, want Unranked", got.Rank)
	}
	if got.Points != "0" {
		t.Errorf("Points = %q, want 0", got.Points)
	}
	// 任意領域の欠落後もテーブルフィールドは抽出される
	if got.Extra["maps_completed"] != "7" {
		t.Errorf("Extra[maps_completed] = %q, want 7", got.Extra["maps_completed"])
	}
}

// 必須のカードコンテナを欠くページはnilに集約されることを検証
func TestKzgoFetch_MissingCard_ReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>player not found</p></body></html>`))
	}))
	defer srv.Close()

	a := newKzgoTestAdapter(srv.URL)
	if got := a.Fetch(context.Background(), "76561197985087965", model.ModeKZT); got != nil {
		t.Errorf("expected nil for page without player-card, got %+v", got)
	}
}

// 上流の非200応答がnilに集約されることを検証
func TestKzgoFetch_UpstreamError_ReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := newKzgoTestAdapter(srv.URL)
	if got := a.Fetch(context.Background(), "76561197985087965", model.ModeKZT); got != nil {
		t.Errorf("expected nil on 502, got %+v", got)
	}
}

// 接続不能でもエラーを伝搬させずnilを返すことを検証
func TestKzgoFetch_ConnectionRefused_ReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	a := newKzgoTestAdapter(srv.URL)
	if got := a.Fetch(context.Background(), "76561197985087965", model.ModeKZT); got != nil {
		t.Errorf("expected nil on connection failure, got %+v", got)
	}
}

func TestNormalizeExtraKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Maps Completed", "maps_completed"},
		{" World Records ", "world_records"},
		{"Average", "average"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeExtraKey(tt.input); got != tt.want {
			t.Errorf("normalizeExtraKey(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
