package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/kzcard/internal/model"
)

// PostgresMapTierRepo はPostgreSQLを使用したティア参照リポジトリ。
type PostgresMapTierRepo struct {
	db *sql.DB
}

// NewPostgresMapTierRepo はPostgresMapTierRepoを生成する。
func NewPostgresMapTierRepo(db *sql.DB) *PostgresMapTierRepo {
	return &PostgresMapTierRepo{db: db}
}

// TiersByMapIDs は指定マップID群のティアをmap_id→tierで返す。
// テーブルに存在しないIDは結果に含めない。空の入力には空のマップを返す。
func (r *PostgresMapTierRepo) TiersByMapIDs(ctx context.Context, mapIDs []int) (map[int]int, error) {
	tiers := make(map[int]int, len(mapIDs))
	if len(mapIDs) == 0 {
		return tiers, nil
	}

	ids := make([]int64, len(mapIDs))
	for i, id := range mapIDs {
		ids[i] = int64(id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT map_id, tier FROM map_tiers WHERE map_id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query map tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mapID, tier int
		if err := rows.Scan(&mapID, &tier); err != nil {
			return nil, fmt.Errorf("failed to scan map tier row: %w", err)
		}
		tiers[mapID] = tier
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate map tier rows: %w", err)
	}

	return tiers, nil
}

// ReplaceAll は参照テーブル全体を新しい行で置き換える。
// TRUNCATEとINSERTを同一トランザクションで実行するため、
// 読み取り側が空のテーブルを観測することはない。
func (r *PostgresMapTierRepo) ReplaceAll(ctx context.Context, tiers []model.MapTier) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE map_tiers`); err != nil {
		return fmt.Errorf("failed to truncate map_tiers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO map_tiers (map_id, tier, name, synced_at) VALUES ($1, $2, $3, now())`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tiers {
		if _, err := stmt.ExecContext(ctx, t.MapID, t.Tier, t.Name); err != nil {
			return fmt.Errorf("failed to insert map tier %d: %w", t.MapID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Count は参照テーブルの行数を返す。
func (r *PostgresMapTierRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM map_tiers`).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to count map tiers: %w", err)
	}
	return count, nil
}
