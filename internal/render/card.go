package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"

	"github.com/hitoshi/kzcard/internal/model"
)

const (
	cardWidth      = 400
	cardBaseHeight = 250
	tierRowHeight  = 26

	avatarSize = 64
	avatarX    = 15
	avatarY    = 15

	headerTextX = 95
	bodyStartY  = 100

	barLabelX    = 50
	barStartX    = 80
	barMaxWidth  = 250
	barHeight    = 14
	footerMargin = 10
)

var (
	colorBackground = color.RGBA{R: 24, G: 25, B: 28, A: 255}
	colorText       = color.RGBA{R: 235, G: 235, B: 235, A: 255}
	colorMuted      = color.RGBA{R: 140, G: 140, B: 145, A: 255}
	colorHighlight  = color.RGBA{R: 153, G: 102, B: 255, A: 255}

	// ティア番号ごとのバー色。低ティアの緑から高ティアの紫へ変化する。
	tierBarColors = []color.RGBA{
		{R: 106, G: 176, B: 76, A: 255},  // 1: Very Easy
		{R: 186, G: 220, B: 88, A: 255},  // 2: Easy
		{R: 240, G: 196, B: 25, A: 255},  // 3: Medium
		{R: 245, G: 130, B: 32, A: 255},  // 4: Hard
		{R: 235, G: 77, B: 75, A: 255},   // 5: Very Hard
		{R: 199, G: 43, B: 98, A: 255},   // 6: Extreme
		{R: 153, G: 102, B: 255, A: 255}, // 7: Death
	}
)

// SSRFValidator はアバター取得時のSSRF防止機能を提供する。
type SSRFValidator interface {
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
	ValidateURL(rawURL string) error
}

// CardRenderer はプレイヤー統計をPNG画像のカードとして描画する。
//
// Renderは失敗時にエラーを返さずnilを返す（panicも内部で回収する）。
// 呼び出し側はnilを「カード生成不可」として扱えばよい。
type CardRenderer struct {
	fonts       *FontSet
	ssrfGuard   SSRFValidator
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewCardRenderer はCardRendererを生成する。フォントは生成時に一度だけ
// 読み込み、以降のRender呼び出しで使い回す。
func NewCardRenderer(
	fontPaths []string,
	ssrfGuard SSRFValidator,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *CardRenderer {
	return &CardRenderer{
		fonts:       LoadFontSet(fontPaths, logger),
		ssrfGuard:   ssrfGuard,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Render は統計情報からPNGカードを描画して返す。
// statsがnilの場合、または描画中に回復不能な問題が起きた場合はnilを返す。
func (r *CardRenderer) Render(ctx context.Context, stats *model.PlayerStats) (out []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("カード描画中にpanicが発生しました",
				slog.Any("panic", rec),
			)
			out = nil
		}
	}()

	if stats == nil {
		return nil
	}

	tiers := sortedTiers(stats.TierCounts)

	height := cardBaseHeight
	if stats.Source == model.SourceGlobalAPI && len(tiers) > 0 {
		height += len(tiers) * tierRowHeight
	}

	dc := gg.NewContext(cardWidth, height)
	dc.SetColor(colorBackground)
	dc.Clear()

	r.drawAvatar(ctx, dc, stats.AvatarURL)
	r.drawHeader(dc, stats)

	switch stats.Source {
	case model.SourceGlobalAPI:
		r.drawGlobalBody(dc, stats, tiers)
	default:
		r.drawScrapedBody(dc, stats)
	}

	r.drawFooter(dc, stats, height)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		r.logger.Error("PNGエンコードに失敗しました", slog.String("error", err.Error()))
		return nil
	}
	return buf.Bytes()
}

// drawAvatar はアバター画像を取得して左上に描画する。
// 取得・デコードに失敗してもカード全体の描画は継続する。
func (r *CardRenderer) drawAvatar(ctx context.Context, dc *gg.Context, avatarURL string) {
	img := r.fetchAvatar(ctx, avatarURL)
	if img == nil {
		// 取得失敗時はプレースホルダの枠のみ描く
		dc.SetColor(colorMuted)
		dc.DrawRectangle(avatarX, avatarY, avatarSize, avatarSize)
		dc.Stroke()
		return
	}

	scaled := image.NewRGBA(image.Rect(0, 0, avatarSize, avatarSize))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	dc.DrawImage(scaled, avatarX, avatarY)
}

// fetchAvatar はアバターURLから画像を取得する。失敗時はnilを返す。
func (r *CardRenderer) fetchAvatar(ctx context.Context, avatarURL string) image.Image {
	if avatarURL == "" {
		return nil
	}

	if err := r.ssrfGuard.ValidateURL(avatarURL); err != nil {
		r.logger.Warn("アバターURLの検証に失敗しました",
			slog.String("url", avatarURL),
			slog.String("error", err.Error()),
		)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		return nil
	}

	client := r.ssrfGuard.NewSafeClient(r.timeout, r.maxBodySize)
	resp, err := client.Do(req)
	if err != nil {
		r.logger.Warn("アバター画像の取得に失敗しました",
			slog.String("url", avatarURL),
			slog.String("error", err.Error()),
		)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("アバター画像の取得で異常ステータスを受信しました",
			slog.String("url", avatarURL),
			slog.Int("status", resp.StatusCode),
		)
		return nil
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		r.logger.Warn("アバター画像のデコードに失敗しました",
			slog.String("url", avatarURL),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return img
}

// drawHeader はプレイヤー名・モードタグ・ランク・ポイントを描画する。
func (r *CardRenderer) drawHeader(dc *gg.Context, stats *model.PlayerStats) {
	name := stats.Name
	if name == "" {
		name = "N/A"
	}

	dc.SetFontFace(r.fonts.Bold)
	dc.SetColor(colorText)
	dc.DrawString(name, headerTextX, 30)

	// モードタグは右上に固定表示
	dc.SetFontFace(r.fonts.Small)
	dc.SetColor(colorMuted)
	dc.DrawStringAnchored(fmt.Sprintf("[%s]", stats.Mode), cardWidth-15, 22, 1, 0)

	// レベルバッジはGlobal API由来のカードのみ
	if stats.Source == model.SourceGlobalAPI && stats.Level != "" {
		dc.SetColor(colorHighlight)
		dc.DrawStringAnchored(stats.Level, cardWidth-15, 42, 1, 0)
	}

	dc.SetFontFace(r.fonts.Regular)
	dc.SetColor(colorHighlight)
	dc.DrawString(fmt.Sprintf("Rank: %s", valueOr(stats.Rank, "N/A")), headerTextX, 58)

	dc.SetColor(colorText)
	dc.DrawString(fmt.Sprintf("Points: %s", valueOr(stats.Points, "0")), headerTextX, 80)
}

// drawScrapedBody はkzgo.eu由来の統計本体を描画する。
// 欠けている項目は "N/A" として表示する。
func (r *CardRenderer) drawScrapedBody(dc *gg.Context, stats *model.PlayerStats) {
	rows := []struct {
		label string
		value string
	}{
		{"Maps Completed", stats.ExtraOr("maps_completed", "N/A")},
		{"World Records", stats.ExtraOr("world_records", "N/A")},
		{"Average", stats.ExtraOr("average", "N/A")},
	}

	dc.SetFontFace(r.fonts.Regular)
	y := float64(bodyStartY) + 18
	for _, row := range rows {
		dc.SetColor(colorMuted)
		dc.DrawString(row.label, avatarX, y)
		dc.SetColor(colorText)
		dc.DrawStringAnchored(row.value, cardWidth-15, y, 1, 0)
		y += 24
	}
}

// drawGlobalBody はGlobal API由来の統計本体（完走数とティア別バーチャート）を描画する。
func (r *CardRenderer) drawGlobalBody(dc *gg.Context, stats *model.PlayerStats, tiers []int) {
	dc.SetFontFace(r.fonts.Regular)
	dc.SetColor(colorMuted)
	dc.DrawString("Finishes", avatarX, bodyStartY+18)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(fmt.Sprintf("%d", stats.Finishes), cardWidth-15, bodyStartY+18, 1, 0)

	if len(tiers) == 0 {
		return
	}

	maxCount := 0
	for _, tier := range tiers {
		if stats.TierCounts[tier] > maxCount {
			maxCount = stats.TierCounts[tier]
		}
	}
	if maxCount == 0 {
		return
	}

	dc.SetFontFace(r.fonts.Small)
	y := float64(bodyStartY) + 40
	for _, tier := range tiers {
		count := stats.TierCounts[tier]

		dc.SetColor(colorMuted)
		dc.DrawString(fmt.Sprintf("T%d", tier), barLabelX, y+barHeight-3)

		width := float64(count) / float64(maxCount) * barMaxWidth
		if width < 2 {
			width = 2
		}
		dc.SetColor(barColorForTier(tier))
		dc.DrawRectangle(barStartX, y, width, barHeight)
		dc.Fill()

		dc.SetColor(colorText)
		dc.DrawString(fmt.Sprintf("%d", count), barStartX+width+6, y+barHeight-3)

		y += tierRowHeight
	}
}

// drawFooter はデータ提供元の帰属表示を左下に描画する。
func (r *CardRenderer) drawFooter(dc *gg.Context, stats *model.PlayerStats, height int) {
	attribution := "data: kzgo.eu"
	if stats.Source == model.SourceGlobalAPI {
		attribution = "data: kztimerglobal.com & vnl.kz"
	}

	dc.SetFontFace(r.fonts.Small)
	dc.SetColor(colorMuted)
	dc.DrawString(attribution, footerMargin, float64(height)-footerMargin)
}

// sortedTiers はティア番号を昇順で返す。
func sortedTiers(counts map[int]int) []int {
	tiers := make([]int, 0, len(counts))
	for tier := range counts {
		tiers = append(tiers, tier)
	}
	sort.Ints(tiers)
	return tiers
}

// barColorForTier は範囲外のティア番号を端の色へ丸める。
func barColorForTier(tier int) color.RGBA {
	if tier < 1 {
		return tierBarColors[0]
	}
	if tier > len(tierBarColors) {
		return tierBarColors[len(tierBarColors)-1]
	}
	return tierBarColors[tier-1]
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
