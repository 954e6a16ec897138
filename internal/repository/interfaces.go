// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/kzcard/internal/model"
)

// BindingRepository は紐付けデータの永続化インターフェース。
type BindingRepository interface {
	// FindByChatUserID は指定チャットユーザーの紐付けを取得する。
	// 見つからない場合はnilを返す。
	FindByChatUserID(ctx context.Context, chatUserID string) (*model.Binding, error)

	// Upsert はchat_user_idをキーに紐付けを作成または置換する。
	// steam_id64が別のチャットユーザーに所有されている場合は
	// model.ErrSteamIDConflictを返し、書き込みは行わない。
	// created_at/updated_atはストア側で付与し、引数のbindingに書き戻す。
	Upsert(ctx context.Context, binding *model.Binding) error

	// Delete は指定チャットユーザーの紐付けを削除する。
	// 行が存在し削除された場合はtrueを返す。存在しない場合はfalse（エラーではない）。
	Delete(ctx context.Context, chatUserID string) (bool, error)
}

// MapTierRepository はティア参照テーブルの永続化インターフェース。
type MapTierRepository interface {
	// TiersByMapIDs は指定マップID群のティアをmap_id→tierで返す。
	// テーブルに存在しないIDは結果に含めない（エラーにしない）。
	TiersByMapIDs(ctx context.Context, mapIDs []int) (map[int]int, error)

	// ReplaceAll は参照テーブル全体を新しい行で置き換える。
	// sync-tiersサブコマンドからのみ呼ばれる。単一トランザクションで実行する。
	ReplaceAll(ctx context.Context, tiers []model.MapTier) error

	// Count は参照テーブルの行数を返す。
	Count(ctx context.Context) (int, error)
}
