// Package model はドメインモデルを定義する。
package model

// StatsSource は統計データの取得元を表す。
type StatsSource string

const (
	// SourceKzgo はkzgo.euのプレイヤーページ（HTMLスクレイピング）。
	SourceKzgo StatsSource = "kzgo.eu"
	// SourceGlobalAPI はKZ Global APIの複合呼び出し（JSON 3エンドポイント）。
	SourceGlobalAPI StatsSource = "global-api"
)

// PlayerStats はクエリごとに構築される正規化済み統計レコードを表す。
// 永続化もキャッシュもしない。ティア付与で1回だけ加工され、
// レンダラーに1回だけ消費される。
type PlayerStats struct {
	Source    StatsSource
	Mode      Mode
	Name      string
	AvatarURL string

	// Rank は数値とは限らない（"Unranked"、"N/A"を含む）。
	Rank string
	// Points は取得元により数値文字列または整形済み文字列。
	// レンダラーは文字列としてのみ扱う。
	Points string

	// Extra はkzgo.euの統計テーブルから折り畳んだ自由形式のキー値。
	// キーは小文字化しスペースをアンダースコアに正規化する。
	Extra map[string]string

	// 以下はSourceGlobalAPIのみ。
	Finishes   int
	Level      string
	MapIDs     []int
	TierCounts map[int]int
}

// ExtraOr はExtraから値を取得し、存在しない場合はfallbackを返す。
func (s *PlayerStats) ExtraOr(key, fallback string) string {
	if v, ok := s.Extra[key]; ok && v != "" {
		return v
	}
	return fallback
}

// MapTier はティア参照テーブルの1行を表す。
// このパイプラインからは読み取り専用で、sync-tiersサブコマンドが更新する。
type MapTier struct {
	MapID int
	Tier  int
	Name  string
}
