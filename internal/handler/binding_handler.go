// Package handler はHTTP APIのハンドラーを実装する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/kzcard/internal/model"
)

// BindingServiceInterface は紐付けハンドラーが必要とするサービスインターフェース。
type BindingServiceInterface interface {
	// Bind はSteamIDを解決してチャットユーザーへ紐付ける。
	Bind(ctx context.Context, chatUserID, rawSteamID string, mode model.Mode) (*model.Binding, error)
	// Get は紐付けを取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, chatUserID string) (*model.Binding, error)
	// Unbind は紐付けを削除する。削除された場合はtrueを返す。
	Unbind(ctx context.Context, chatUserID string) (bool, error)
}

// BindingHandler は紐付け管理のHTTPハンドラー。
type BindingHandler struct {
	service BindingServiceInterface
}

// NewBindingHandler はBindingHandlerを生成する。
func NewBindingHandler(service BindingServiceInterface) *BindingHandler {
	return &BindingHandler{service: service}
}

// bindRequest は紐付け登録リクエストのボディ。
type bindRequest struct {
	ChatUserID string `json:"chat_user_id"`
	SteamID    string `json:"steam_id"`
	Mode       string `json:"mode,omitempty"`
}

// bindingResponse は紐付け情報のAPIレスポンス。
type bindingResponse struct {
	ChatUserID  string    `json:"chat_user_id"`
	SteamID64   string    `json:"steam_id64"`
	DisplayName string    `json:"display_name"`
	DefaultMode string    `json:"default_mode"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Bind は紐付け登録を処理する。
// POST /api/bindings
func (h *BindingHandler) Bind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.ChatUserID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("chat_user_idが空です"))
		return
	}
	if req.SteamID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("steam_idが空です"))
		return
	}

	// モード未指定はkztとして扱う。未知の値は拒否する。
	mode := model.ModeKZT
	if req.Mode != "" {
		parsed, ok := model.ParseMode(req.Mode)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidModeError(req.Mode))
			return
		}
		mode = parsed
	}

	b, err := h.service.Bind(r.Context(), req.ChatUserID, req.SteamID, mode)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toBindingResponse(b))
}

// Get は紐付け情報を取得する。
// GET /api/bindings/:chatUserID
func (h *BindingHandler) Get(w http.ResponseWriter, r *http.Request) {
	chatUserID := chi.URLParam(r, "chatUserID")

	b, err := h.service.Get(r.Context(), chatUserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if b == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewBindingNotFoundError(chatUserID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toBindingResponse(b))
}

// Unbind は紐付けを削除する。
// DELETE /api/bindings/:chatUserID
//
// 削除対象が存在しない場合は404を返すが、ストアへの副作用はない（冪等）。
func (h *BindingHandler) Unbind(w http.ResponseWriter, r *http.Request) {
	chatUserID := chi.URLParam(r, "chatUserID")

	deleted, err := h.service.Unbind(r.Context(), chatUserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if !deleted {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewBindingNotFoundError(chatUserID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// toBindingResponse はmodel.BindingからAPIレスポンスに変換する。
func toBindingResponse(b *model.Binding) bindingResponse {
	return bindingResponse{
		ChatUserID:  b.ChatUserID,
		SteamID64:   b.SteamID64,
		DisplayName: b.DisplayName,
		DefaultMode: string(b.DefaultMode),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeBindingNotFound, model.ErrCodePlayerNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyBound, model.ErrCodeSteamIDConflict:
		return http.StatusConflict
	case model.ErrCodeInvalidMode, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	case model.ErrCodeRenderFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
