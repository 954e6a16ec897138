// Package model はドメインモデルを定義する。
package model

import "time"

// Binding はチャットユーザーとSteamアカウントの紐付けを表す。
// チャットユーザー1人につき1行。steam_id64は全行で一意。
type Binding struct {
	ChatUserID  string
	RawSteamID  string
	SteamID64   string
	DisplayName string
	DefaultMode Mode
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Mode はKZのスコアリングモードを表す。
type Mode string

const (
	// ModeKZT はKZTimerモード。kzgo.euスクレイピングで取得する。
	ModeKZT Mode = "kzt"
	// ModeSKZ はSimpleKZモード。kzgo.euスクレイピングで取得する。
	ModeSKZ Mode = "skz"
	// ModeVNL はVanillaモード。Global APIの複合呼び出しで取得する。
	ModeVNL Mode = "vnl"
)

// ParseMode はユーザー入力からModeを解析する。
// 未知の入力の場合はModeKZTとfalseを返す。
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeKZT, ModeSKZ, ModeVNL:
		return Mode(s), true
	}
	return ModeKZT, false
}

// UsesGlobalAPI はこのモードがGlobal API複合アダプタを使用するかを返す。
func (m Mode) UsesGlobalAPI() bool {
	return m == ModeVNL
}
