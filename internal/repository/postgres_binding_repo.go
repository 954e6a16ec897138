package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/kzcard/internal/model"
)

// uniqueViolation はPostgreSQLの一意性制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresBindingRepo はPostgreSQLを使用した紐付けリポジトリ。
type PostgresBindingRepo struct {
	db *sql.DB
}

// NewPostgresBindingRepo はPostgresBindingRepoを生成する。
func NewPostgresBindingRepo(db *sql.DB) *PostgresBindingRepo {
	return &PostgresBindingRepo{db: db}
}

// FindByChatUserID は指定チャットユーザーの紐付けを取得する。見つからない場合はnilを返す。
func (r *PostgresBindingRepo) FindByChatUserID(ctx context.Context, chatUserID string) (*model.Binding, error) {
	b := &model.Binding{}
	err := r.db.QueryRowContext(ctx,
		`SELECT chat_user_id, raw_steam_id, steam_id64, display_name, default_mode, created_at, updated_at
		 FROM bindings WHERE chat_user_id = $1`,
		chatUserID,
	).Scan(&b.ChatUserID, &b.RawSteamID, &b.SteamID64, &b.DisplayName, &b.DefaultMode, &b.CreatedAt, &b.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find binding by chat user ID: %w", err)
	}

	return b, nil
}

// Upsert はchat_user_idをキーに紐付けを作成または置換する。
// steam_id64の所有権チェックとUPSERTを同一トランザクションで実行する。
// 同一steam_id64への並行紐付けは一意インデックスで直列化され、後続はConflictになる。
func (r *PostgresBindingRepo) Upsert(ctx context.Context, binding *model.Binding) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 所有権チェック: steam_id64を既に持つ行が別ユーザーならConflict
	var owner string
	err = tx.QueryRowContext(ctx,
		`SELECT chat_user_id FROM bindings WHERE steam_id64 = $1 FOR UPDATE`,
		binding.SteamID64,
	).Scan(&owner)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check steam_id64 ownership: %w", err)
	}
	if err == nil && owner != binding.ChatUserID {
		return model.ErrSteamIDConflict
	}

	// タイムスタンプはストア側で付与する
	err = tx.QueryRowContext(ctx,
		`INSERT INTO bindings (chat_user_id, raw_steam_id, steam_id64, display_name, default_mode, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 ON CONFLICT (chat_user_id) DO UPDATE SET
		   raw_steam_id = EXCLUDED.raw_steam_id,
		   steam_id64 = EXCLUDED.steam_id64,
		   display_name = EXCLUDED.display_name,
		   default_mode = EXCLUDED.default_mode,
		   updated_at = now()
		 RETURNING created_at, updated_at`,
		binding.ChatUserID, binding.RawSteamID, binding.SteamID64, binding.DisplayName, binding.DefaultMode,
	).Scan(&binding.CreatedAt, &binding.UpdatedAt)
	if err != nil {
		// 事前チェックとINSERTの間に他トランザクションが同じsteam_id64を
		// 挿入した場合は一意性違反で検出される
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.ErrSteamIDConflict
		}
		return fmt.Errorf("failed to upsert binding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete は指定チャットユーザーの紐付けを削除する。
// 削除対象が存在しない場合はfalseを返す（冪等）。
func (r *PostgresBindingRepo) Delete(ctx context.Context, chatUserID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM bindings WHERE chat_user_id = $1`,
		chatUserID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete binding: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
