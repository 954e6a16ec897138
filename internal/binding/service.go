// Package binding はチャットユーザーとSteamアカウントの紐付け管理を提供する。
package binding

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/kzcard/internal/model"
	"github.com/hitoshi/kzcard/internal/repository"
	"github.com/hitoshi/kzcard/internal/steamid"
)

// SteamIDResolver はSteamID解決のインターフェース。
// 解決失敗時はnilを返す（エラーは返さない）。
type SteamIDResolver interface {
	Resolve(ctx context.Context, raw string) *steamid.Identity
}

// Service は紐付けのビジネスロジックを実装する。
type Service struct {
	repo     repository.BindingRepository
	resolver SteamIDResolver
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.BindingRepository, resolver SteamIDResolver, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		logger:   logger,
	}
}

// Bind は入力されたSteamIDを解決し、チャットユーザーへ紐付ける。
//
// エラーケース:
//   - 解決失敗 → PLAYER_NOT_FOUND
//   - 同一ユーザーが既に紐付け済み → ALREADY_BOUND（行は変更しない）
//   - steam_id64が別ユーザーに所有されている → STEAM_ID_CONFLICT
func (s *Service) Bind(ctx context.Context, chatUserID, rawSteamID string, mode model.Mode) (*model.Binding, error) {
	identity := s.resolver.Resolve(ctx, rawSteamID)
	if identity == nil {
		s.logger.Warn("SteamID解決に失敗しました",
			slog.String("chat_user_id", chatUserID),
			slog.String("raw_steam_id", rawSteamID),
		)
		return nil, model.NewPlayerNotFoundError(rawSteamID)
	}

	existing, err := s.repo.FindByChatUserID(ctx, chatUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// 変更する場合は先にunbindを要求する
		return nil, model.NewAlreadyBoundError(existing.SteamID64)
	}

	displayName := identity.DisplayName
	if displayName == "" {
		displayName = rawSteamID
	}

	b := &model.Binding{
		ChatUserID:  chatUserID,
		RawSteamID:  rawSteamID,
		SteamID64:   identity.SteamID64,
		DisplayName: displayName,
		DefaultMode: mode,
	}

	if err := s.repo.Upsert(ctx, b); err != nil {
		if errors.Is(err, model.ErrSteamIDConflict) {
			return nil, model.NewSteamIDConflictError()
		}
		return nil, err
	}

	s.logger.Info("紐付けを作成しました",
		slog.String("chat_user_id", chatUserID),
		slog.String("steam_id64", b.SteamID64),
		slog.String("mode", string(mode)),
	)

	return b, nil
}

// Get は指定チャットユーザーの紐付けを取得する。
// 見つからない場合はnilを返す（エラーではない）。
func (s *Service) Get(ctx context.Context, chatUserID string) (*model.Binding, error) {
	return s.repo.FindByChatUserID(ctx, chatUserID)
}

// Unbind は指定チャットユーザーの紐付けを削除する。
// 行が存在し削除された場合はtrueを返す。2回目以降の削除はfalse（冪等）。
func (s *Service) Unbind(ctx context.Context, chatUserID string) (bool, error) {
	deleted, err := s.repo.Delete(ctx, chatUserID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("紐付けを削除しました", slog.String("chat_user_id", chatUserID))
	}
	return deleted, nil
}
