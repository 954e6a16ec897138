package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/kzcard/internal/model"
)

// recordEntry はGlobal APIの記録リストの1要素。
type recordEntry struct {
	Points     int    `json:"points"`
	MapID      int    `json:"map_id"`
	PlayerName string `json:"player_name"`
}

// rankEntry はランキング照会の1要素。
type rankEntry struct {
	PointsRank int `json:"points_rank"`
}

// profileEntry はプロフィール照会の1要素。
type profileEntry struct {
	Name       string `json:"name"`
	AvatarFull string `json:"avatarfull"`
}

// GlobalAPIAdapter はvnlモードの統計を3つの独立したJSONエンドポイントから
// 合成する統計アダプタ。3呼び出しは順序依存のない独立読み取りのため並行に
// 発行し、それぞれ個別に障害分離する:
//   - 記録リスト: 失敗時は記録ゼロとして継続（points=0、finishes=0、マップなし）
//   - ランキング: 失敗時はrank="N/A"
//   - プロフィール: 失敗時は記録の先頭から名前を補完、それもなければ"N/A"
type GlobalAPIAdapter struct {
	recordsBaseURL string
	profileBaseURL string
	ssrfGuard      SSRFValidator
	logger         *slog.Logger
	timeout        time.Duration
	maxBodySize    int64
}

// NewGlobalAPIAdapter はGlobalAPIAdapterの新しいインスタンスを生成する。
// recordsBaseURLはKZTimer Global API、profileBaseURLはvnl.kzプロフィールAPIの
// ベースURLを指定する。
func NewGlobalAPIAdapter(recordsBaseURL, profileBaseURL string, ssrfGuard SSRFValidator, logger *slog.Logger, timeout time.Duration, maxBodySize int64) *GlobalAPIAdapter {
	return &GlobalAPIAdapter{
		recordsBaseURL: strings.TrimRight(recordsBaseURL, "/"),
		profileBaseURL: strings.TrimRight(profileBaseURL, "/"),
		ssrfGuard:      ssrfGuard,
		logger:         logger,
		timeout:        timeout,
		maxBodySize:    maxBodySize,
	}
}

// Fetch は3エンドポイントを並行取得し正規化済みレコードへ合成する。
// 個々の呼び出し失敗は上記の既定値で吸収し、予期しない異常のみnilに集約する。
func (a *GlobalAPIAdapter) Fetch(ctx context.Context, steamID64 string, mode model.Mode) (result *model.PlayerStats) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("global-api取得: 予期しない異常が発生しました",
				slog.Any("panic", r),
				slog.String("steam_id64", steamID64),
			)
			result = nil
		}
	}()

	client := a.ssrfGuard.NewSafeClient(a.timeout, a.maxBodySize)

	recordsURL := fmt.Sprintf(
		"%s/records/top?steamid64=%s&stage=0&modes_list_string=kz_vanilla&limit=10000&has_teleports=true",
		a.recordsBaseURL, url.QueryEscape(steamID64),
	)
	rankURL := fmt.Sprintf(
		"%s/player_ranks?steamid64s=%s&mode_ids=200&stages=0&limit=1",
		a.recordsBaseURL, url.QueryEscape(steamID64),
	)
	profileURL := fmt.Sprintf(
		"%s/profiles?steamids=%s",
		a.profileBaseURL, url.QueryEscape(steamID64),
	)

	var (
		records  []recordEntry
		ranks    []rankEntry
		profiles []profileEntry
	)

	// 3呼び出しは独立読み取りのため並行発行する。
	// 1つの失敗が他をキャンセルしないよう、各goroutineは自分の結果だけを書く。
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := a.fetchJSON(ctx, client, recordsURL, &records); err != nil {
			a.logger.Warn("global-api取得: 記録リストの取得に失敗しました（記録ゼロとして継続）",
				slog.String("steam_id64", steamID64),
				slog.String("error", err.Error()),
			)
			records = nil
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.fetchJSON(ctx, client, rankURL, &ranks); err != nil {
			a.logger.Warn("global-api取得: ランキングの取得に失敗しました（N/Aとして継続）",
				slog.String("steam_id64", steamID64),
				slog.String("error", err.Error()),
			)
			ranks = nil
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.fetchJSON(ctx, client, profileURL, &profiles); err != nil {
			a.logger.Warn("global-api取得: プロフィールの取得に失敗しました（記録から補完）",
				slog.String("steam_id64", steamID64),
				slog.String("error", err.Error()),
			)
			profiles = nil
		}
	}()
	wg.Wait()

	return a.assemble(mode, records, ranks, profiles)
}

// assemble は3呼び出しの結果から正規化済みレコードを構築する。
func (a *GlobalAPIAdapter) assemble(mode model.Mode, records []recordEntry, ranks []rankEntry, profiles []profileEntry) *model.PlayerStats {
	totalPoints := 0
	seen := make(map[int]bool)
	var mapIDs []int
	for _, rec := range records {
		totalPoints += rec.Points
		if rec.MapID > 0 && !seen[rec.MapID] {
			seen[rec.MapID] = true
			mapIDs = append(mapIDs, rec.MapID)
		}
	}

	rank := "N/A"
	if len(ranks) > 0 && ranks[0].PointsRank > 0 {
		rank = strconv.Itoa(ranks[0].PointsRank)
	}

	name := "N/A"
	avatarURL := ""
	if len(profiles) > 0 && profiles[0].Name != "" {
		name = profiles[0].Name
		avatarURL = profiles[0].AvatarFull
	} else if len(records) > 0 && records[0].PlayerName != "" {
		name = records[0].PlayerName
	}

	return &model.PlayerStats{
		Source:    model.SourceGlobalAPI,
		Mode:      mode,
		Name:      name,
		AvatarURL: avatarURL,
		Rank:      rank,
		Points:    strconv.Itoa(totalPoints),
		Finishes:  len(records),
		Level:     LevelForPoints(totalPoints),
		MapIDs:    mapIDs,
	}
}

// fetchJSON は1エンドポイントを取得しJSONをデコードする。
// 非200、読み取り失敗、デコード失敗はすべてエラーとして返し、
// 呼び出し元が既定値への degrade を判断する。
func (a *GlobalAPIAdapter) fetchJSON(ctx context.Context, client *http.Client, reqURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Kzcard/1.0 KZ Stats Bot")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("上流がステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBodySize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return nil
}
