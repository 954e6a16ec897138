package stats

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/kzcard/internal/model"
)

// KzgoAdapter はkzgo.euのプレイヤーページをスクレイピングする統計アダプタ。
// kzt/skzモードを担当する。抽出はCSSセレクタで固定領域をキーにする:
// カードコンテナ（必須）、名前見出し、アバター画像、ランクブロック（任意）、
// 2カラムの統計テーブル（任意、自由形式のキー値として折り畳む）。
type KzgoAdapter struct {
	baseURL     string
	ssrfGuard   SSRFValidator
	scrubber    TextScrubber
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewKzgoAdapter はKzgoAdapterの新しいインスタンスを生成する。
func NewKzgoAdapter(baseURL string, ssrfGuard SSRFValidator, scrubber TextScrubber, logger *slog.Logger, timeout time.Duration, maxBodySize int64) *KzgoAdapter {
	return &KzgoAdapter{
		baseURL:     strings.TrimRight(baseURL, "/"),
		ssrfGuard:   ssrfGuard,
		scrubber:    scrubber,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch はプレイヤーページを取得し正規化済みレコードを構築する。
// カードコンテナを欠くページ（未登録プレイヤー等）と上流障害はnilに集約する。
// 任意領域の欠落は既定値（"Unranked"/"0"）へ degrade し、呼び出し全体は失敗させない。
func (a *KzgoAdapter) Fetch(ctx context.Context, steamID64 string, mode model.Mode) *model.PlayerStats {
	pageURL := fmt.Sprintf("%s/players/%s?%s", a.baseURL, url.PathEscape(steamID64), mode)

	client := a.ssrfGuard.NewSafeClient(a.timeout, a.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		a.logger.Warn("kzgo取得: リクエスト作成に失敗しました",
			slog.String("url", pageURL),
			slog.String("error", err.Error()),
		)
		return nil
	}
	req.Header.Set("User-Agent", "Kzcard/1.0 KZ Stats Bot")

	resp, err := client.Do(req)
	if err != nil {
		a.logger.Warn("kzgo取得: HTTPリクエストに失敗しました",
			slog.String("url", pageURL),
			slog.String("error", err.Error()),
		)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.logger.Warn("kzgo取得: HTTPステータス異常",
			slog.String("url", pageURL),
			slog.Int("status", resp.StatusCode),
		)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		a.logger.Warn("kzgo取得: HTMLパースに失敗しました",
			slog.String("url", pageURL),
			slog.String("error", err.Error()),
		)
		return nil
	}

	return a.extractStats(doc, mode, steamID64)
}

// extractStats はパース済みドキュメントからPlayerStatsを構築する。
// 上流のページ構造は外部契約として不安定なため、抽出はベストエフォートで行い、
// スキーマ不一致はログに残して可能な範囲のデータを返す（必須領域の欠落のみnil）。
func (a *KzgoAdapter) extractStats(doc *goquery.Document, mode model.Mode, steamID64 string) *model.PlayerStats {
	card := doc.Find("div.player-card").First()
	if card.Length() == 0 {
		a.logger.Warn("kzgo取得: player-card領域が見つかりません",
			slog.String("steam_id64", steamID64),
			slog.String("mode", string(mode)),
		)
		return nil
	}

	result := &model.PlayerStats{
		Source: model.SourceKzgo,
		Mode:   mode,
		Extra:  make(map[string]string),
	}

	result.Name = a.scrubber.Scrub(card.Find("h1").First().Text())
	result.AvatarURL = strings.TrimSpace(card.Find("img").First().AttrOr("src", ""))

	// ランクブロックは任意。欠落時は既定値へ degrade する。
	rankBlock := card.Find("div.rank").First()
	if rankBlock.Length() > 0 {
		result.Rank = a.scrubber.Scrub(rankBlock.Find("h2").First().Text())
		pointsText := strings.ReplaceAll(rankBlock.Find("p").First().Text(), "points", "")
		result.Points = a.scrubber.Scrub(pointsText)
	} else {
		result.Rank = "Unranked"
		result.Points = "0"
	}

	// 統計テーブルの2セル行を自由形式のキー値として折り畳む。
	// キーは小文字化しスペースをアンダースコアへ正規化する（固定スキーマではない）。
	doc.Find("table.table-player tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() != 2 {
			return
		}
		key := normalizeExtraKey(cells.Eq(0).Text())
		if key == "" {
			return
		}
		result.Extra[key] = a.scrubber.Scrub(cells.Eq(1).Text())
	})

	return result
}

// normalizeExtraKey はテーブルのラベルセルをExtraのキーへ正規化する。
func normalizeExtraKey(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	return strings.ReplaceAll(key, " ", "_")
}
