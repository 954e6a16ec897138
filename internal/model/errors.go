// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrSteamIDConflict はsteam_id64が別のチャットユーザーに所有されている場合に
// リポジトリ層が返すセンチネルエラー。部分書き込みは発生しない。
var ErrSteamIDConflict = errors.New("steam_id64 is already bound to another chat user")

// APIError は統一エラーフォーマットを表す。
// プラグインホストがチャットに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: binding, validation, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBindingNotFound     = "BINDING_NOT_FOUND"
	ErrCodePlayerNotFound      = "PLAYER_NOT_FOUND"
	ErrCodeAlreadyBound        = "ALREADY_BOUND"
	ErrCodeSteamIDConflict     = "STEAM_ID_CONFLICT"
	ErrCodeInvalidMode         = "INVALID_MODE"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeRenderFailed        = "RENDER_FAILED"
)

// NewBindingNotFoundError は未紐付けエラーを生成する。
func NewBindingNotFoundError(chatUserID string) *APIError {
	return &APIError{
		Code:     ErrCodeBindingNotFound,
		Message:  fmt.Sprintf("SteamIDが紐付けられていません: %s", chatUserID),
		Category: "binding",
		Action:   "先にbindコマンドでSteamIDを紐付けてください。",
	}
}

// NewPlayerNotFoundError はSteamID解決失敗エラーを生成する。
func NewPlayerNotFoundError(rawID string) *APIError {
	return &APIError{
		Code:     ErrCodePlayerNotFound,
		Message:  fmt.Sprintf("SteamIDを解決できませんでした: %s", rawID),
		Category: "binding",
		Action:   "SteamID64、STEAM_X:Y:Z形式、またはカスタムURL名を確認してください。",
	}
}

// NewAlreadyBoundError は同一ユーザーの再紐付けエラーを生成する。
func NewAlreadyBoundError(steamID64 string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyBound,
		Message:  fmt.Sprintf("既にSteamIDが紐付けられています: %s", steamID64),
		Category: "binding",
		Action:   "別のSteamIDに変更する場合は先にunbindしてください。",
	}
}

// NewSteamIDConflictError はsteam_id64の重複紐付けエラーを生成する。
func NewSteamIDConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeSteamIDConflict,
		Message:  "このSteamIDは別のチャットユーザーに紐付けられています。",
		Category: "binding",
		Action:   "自分のSteamIDであるか確認してください。",
	}
}

// NewInvalidModeError は無効なモードエラーを生成する。
func NewInvalidModeError(mode string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMode,
		Message:  fmt.Sprintf("無効なモードです: %s", mode),
		Category: "validation",
		Action:   "モードには kzt、skz、vnl のいずれかを指定してください。",
	}
}

// NewInvalidRequestError は無効なリクエストエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("無効なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエスト形式を確認してください。",
	}
}

// NewUpstreamUnavailableError は上流サービス障害エラーを生成する。
// ネットワーク例外の詳細は伝搬させず、一般的なメッセージに集約する。
func NewUpstreamUnavailableError(source string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("統計データを取得できませんでした: %s", source),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRenderFailedError は画像生成失敗エラーを生成する。
func NewRenderFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRenderFailed,
		Message:  "統計カード画像を生成できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
