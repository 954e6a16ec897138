// Package tiersync はGlobal APIのマップ一覧からティア参照テーブルを再構築する。
package tiersync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/kzcard/internal/model"
	"github.com/hitoshi/kzcard/internal/repository"
)

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// MetricsRecorder はティア同期のメトリクス収集インターフェース。
type MetricsRecorder interface {
	RecordUpstreamStatus(statusCode int)
	RecordTierRowsSynced(count int)
}

// mapEntry はマップ一覧APIの1件分のレスポンス。
type mapEntry struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Difficulty int    `json:"difficulty"`
}

// Syncer はマップ一覧をページングで取得し、ティア参照テーブルを置き換える。
// sync-tiersサブコマンドから実行される。
type Syncer struct {
	tierRepo    repository.MapTierRepository
	ssrfGuard   SSRFValidator
	metrics     MetricsRecorder
	logger      *slog.Logger
	baseURL     string
	pageSize    int
	timeout     time.Duration
	maxBodySize int64
}

// NewSyncer はSyncerの新しいインスタンスを生成する。
func NewSyncer(
	tierRepo repository.MapTierRepository,
	ssrfGuard SSRFValidator,
	metrics MetricsRecorder,
	logger *slog.Logger,
	baseURL string,
	pageSize int,
	timeout time.Duration,
	maxBodySize int64,
) *Syncer {
	return &Syncer{
		tierRepo:    tierRepo,
		ssrfGuard:   ssrfGuard,
		metrics:     metrics,
		logger:      logger,
		baseURL:     baseURL,
		pageSize:    pageSize,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Sync はマップ一覧を全ページ取得し、参照テーブルを単一トランザクションで置き換える。
// 途中のページ取得に失敗した場合はテーブルに触れずエラーを返す（部分更新しない）。
func (s *Syncer) Sync(ctx context.Context) error {
	var tiers []model.MapTier

	for offset := 0; ; offset += s.pageSize {
		page, err := s.fetchPage(ctx, offset)
		if err != nil {
			return fmt.Errorf("マップ一覧の取得に失敗しました (offset=%d): %w", offset, err)
		}

		for _, entry := range page {
			if entry.ID <= 0 {
				continue
			}
			tiers = append(tiers, model.MapTier{
				MapID: entry.ID,
				Tier:  entry.Difficulty,
				Name:  entry.Name,
			})
		}

		s.logger.Info("マップ一覧ページを取得しました",
			slog.Int("offset", offset),
			slog.Int("count", len(page)),
		)

		// ページサイズ未満なら最終ページ
		if len(page) < s.pageSize {
			break
		}
	}

	if err := s.tierRepo.ReplaceAll(ctx, tiers); err != nil {
		return fmt.Errorf("ティア参照テーブルの置き換えに失敗しました: %w", err)
	}

	s.metrics.RecordTierRowsSynced(len(tiers))
	s.logger.Info("ティア同期が完了しました", slog.Int("rows", len(tiers)))

	return nil
}

// fetchPage はマップ一覧の1ページ分を取得する。
func (s *Syncer) fetchPage(ctx context.Context, offset int) ([]mapEntry, error) {
	url := fmt.Sprintf("%s/maps?is_validated=true&limit=%d&offset=%d", s.baseURL, s.pageSize, offset)

	if err := s.ssrfGuard.ValidateURL(url); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Kzcard/1.0 KZ Stats Bot")
	req.Header.Set("Accept", "application/json")

	client := s.ssrfGuard.NewSafeClient(s.timeout, s.maxBodySize)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	s.metrics.RecordUpstreamStatus(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return nil, err
	}

	var page []mapEntry
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, err
	}
	return page, nil
}
