// Package steamid はユーザー入力の識別子からSteamID64への解決を提供する。
package steamid

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Identity は解決済みのSteamアカウント識別情報を表す。
type Identity struct {
	SteamID64   string
	DisplayName string
}

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// steamID64Pattern はSteamID64の形式（76561で始まる17桁）。
var steamID64Pattern = regexp.MustCompile(`^7656\d{13}$`)

// Resolver はルックアップページのスクレイピングでSteamID64を解決する。
// 入力はSteamID64、STEAM_X:Y:Z形式、カスタムURL名のいずれでもよい。
type Resolver struct {
	baseURL     string
	ssrfGuard   SSRFValidator
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewResolver はResolverの新しいインスタンスを生成する。
// baseURLはルックアップページのベースURL（例: "https://steamid.io/lookup"）。
func NewResolver(baseURL string, ssrfGuard SSRFValidator, logger *slog.Logger, timeout time.Duration, maxBodySize int64) *Resolver {
	return &Resolver{
		baseURL:     strings.TrimRight(baseURL, "/"),
		ssrfGuard:   ssrfGuard,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Resolve は入力識別子を正準なSteamID64と表示名に解決する。
// 上流障害・タイムアウト・未検出はすべてnilに集約する（エラーは返さない）。
// リトライは行わず、1回の試行のみ。
func (r *Resolver) Resolve(ctx context.Context, raw string) *Identity {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	// 既に正準形式ならネットワーク呼び出しを省略する。
	// 表示名はクエリ経路が毎回取得し直すため、ここでは空でよい。
	if steamID64Pattern.MatchString(trimmed) {
		return &Identity{SteamID64: trimmed}
	}

	lookupURL := r.baseURL + "/" + url.PathEscape(trimmed)
	if err := r.ssrfGuard.ValidateURL(lookupURL); err != nil {
		r.logger.Warn("SteamID解決: URL検証に失敗しました",
			slog.String("input", trimmed),
			slog.String("error", err.Error()),
		)
		return nil
	}

	client := r.ssrfGuard.NewSafeClient(r.timeout, r.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		r.logger.Warn("SteamID解決: リクエスト作成に失敗しました",
			slog.String("input", trimmed),
			slog.String("error", err.Error()),
		)
		return nil
	}
	req.Header.Set("User-Agent", "Kzcard/1.0 KZ Stats Bot")

	resp, err := client.Do(req)
	if err != nil {
		r.logger.Warn("SteamID解決: HTTPリクエストに失敗しました",
			slog.String("input", trimmed),
			slog.String("error", err.Error()),
		)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("SteamID解決: HTTPステータス異常",
			slog.String("input", trimmed),
			slog.Int("status", resp.StatusCode),
		)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		r.logger.Warn("SteamID解決: HTMLパースに失敗しました",
			slog.String("input", trimmed),
			slog.String("error", err.Error()),
		)
		return nil
	}

	identity := extractIdentity(doc)
	if identity == nil {
		r.logger.Warn("SteamID解決: ページからsteamID64を抽出できませんでした",
			slog.String("input", trimmed),
		)
	}
	return identity
}

// extractIdentity はルックアップページのdt/ddペアから識別情報を抽出する。
// ラベルテキスト（"steamID64"、"name"）に隣接する値ノードをキーに取り出す。
// steamID64が見つからない、または形式が不正な場合はnilを返す。
func extractIdentity(doc *goquery.Document) *Identity {
	var id64, name string

	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(dt.Text()))
		value := strings.TrimSpace(dt.NextFiltered("dd").Text())
		switch label {
		case "steamid64":
			id64 = value
		case "name":
			name = value
		}
	})

	if !steamID64Pattern.MatchString(id64) {
		return nil
	}
	return &Identity{SteamID64: id64, DisplayName: name}
}
