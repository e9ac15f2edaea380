// Package store は書き込み先ウェアハウス（PostgreSQL）への永続化を提供する。
// テーブルは <dataset>.<table> で識別され、datasetはスキーマに対応する。
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/pcosync/internal/model"
	"github.com/hitoshi/pcosync/internal/schema"
)

// PostgresStore はPostgreSQLを使用した書き込み先ストア。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureDataset はデータセット（スキーマ）が存在することを保証する。
func (s *PostgresStore) EnsureDataset(ctx context.Context, dataset string) error {
	query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(dataset))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("データセット %s の作成に失敗しました: %w", dataset, err)
	}
	return nil
}

// EnsureTable はフィールドスキーマに沿ったテーブルが存在することを保証する。
// idFieldが主キーになる。既存テーブルは変更しない。
func (s *PostgresStore) EnsureTable(ctx context.Context, dataset, table, idField string, fields []schema.Field) error {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		col := fmt.Sprintf("%s %s", pq.QuoteIdentifier(f.Name), columnType(f.Type))
		if f.Name == idField {
			col += " PRIMARY KEY"
		}
		cols = append(cols, col)
	}

	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)",
		qualifiedTable(dataset, table),
		strings.Join(cols, ", "),
	)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("テーブル %s.%s の作成に失敗しました: %w", dataset, table, err)
	}
	return nil
}

// ExistingIDs はテーブルに現在存在する主キー値の集合を返す。
// 値は横断比較のため文字列へ正規化される。
// クエリ失敗時のリカバリ（空集合扱い）は呼び出し側の責務とする。
func (s *PostgresStore) ExistingIDs(ctx context.Context, dataset, table, idField string) (map[string]struct{}, error) {
	query := fmt.Sprintf(
		"SELECT %s::text FROM %s",
		pq.QuoteIdentifier(idField),
		qualifiedTable(dataset, table),
	)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("既存IDの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("既存ID行の読み取りに失敗しました: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("既存IDの走査に失敗しました: %w", err)
	}

	return ids, nil
}

// AppendRows は行を追記専用で書き込む。
// 1回の呼び出しが1チャンクに対応し、単一のマルチ行INSERTとして実行される。
func (s *PostgresStore) AppendRows(ctx context.Context, dataset, table string, fields []schema.Field, rows []model.Row) error {
	if len(rows) == 0 {
		return nil
	}

	query, args := buildInsert(qualifiedTable(dataset, table), fields, rows)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("行の挿入に失敗しました: %w", err)
	}
	return nil
}

// MergeRows は更新対象の行をステージングテーブルへロードし、
// IDで突き合わせてID以外の全カラムを上書きした後、ステージングを破棄する。
// ステージングは同一トランザクション内の一時テーブルとして作成され、
// コミット時に自動的に削除される。
func (s *PostgresStore) MergeRows(ctx context.Context, dataset, table, idField string, fields []schema.Field, rows []model.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	target := qualifiedTable(dataset, table)
	staging := stagingTableName(table)

	// 一時テーブルはセッションローカルのため、トランザクションで
	// 接続を固定して load → merge → discard を1接続で実行する
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		staging, target,
	)
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("ステージングテーブルの作成に失敗しました: %w", err)
	}

	insertSQL, args := buildInsert(staging, fields, rows)
	if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
		return fmt.Errorf("ステージングへのロードに失敗しました: %w", err)
	}

	sets := make([]string, 0, len(fields)-1)
	for _, f := range fields {
		if f.Name == idField {
			continue
		}
		col := pq.QuoteIdentifier(f.Name)
		sets = append(sets, fmt.Sprintf("%s = s.%s", col, col))
	}

	mergeSQL := fmt.Sprintf(
		"UPDATE %s AS t SET %s FROM %s AS s WHERE t.%s = s.%s",
		target,
		strings.Join(sets, ", "),
		staging,
		pq.QuoteIdentifier(idField),
		pq.QuoteIdentifier(idField),
	)
	if _, err := tx.ExecContext(ctx, mergeSQL); err != nil {
		return fmt.Errorf("マージの実行に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("マージのコミットに失敗しました: %w", err)
	}
	return nil
}

// qualifiedTable は <dataset>.<table> のクオート済み識別子を返す。
func qualifiedTable(dataset, table string) string {
	return pq.QuoteIdentifier(dataset) + "." + pq.QuoteIdentifier(table)
}

// stagingTableName は衝突しないステージングテーブル名を生成する。
func stagingTableName(table string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return pq.QuoteIdentifier(table + "_staging_" + suffix)
}

// columnType は宣言型をPostgreSQLのカラム型へ対応させる。
func columnType(ft schema.FieldType) string {
	switch ft {
	case schema.FieldString:
		return "TEXT"
	case schema.FieldInteger:
		return "BIGINT"
	case schema.FieldFloat:
		return "DOUBLE PRECISION"
	case schema.FieldTimestamp:
		return "TIMESTAMPTZ"
	case schema.FieldBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// buildInsert はスキーマ順のカラムでマルチ行INSERT文と引数を構築する。
// 行に存在しないフィールドはNULLとして渡される。
func buildInsert(qualified string, fields []schema.Field, rows []model.Row) (string, []any) {
	names := schema.Names(fields)

	cols := make([]string, len(names))
	for i, name := range names {
		cols[i] = pq.QuoteIdentifier(name)
	}

	args := make([]any, 0, len(rows)*len(names))
	valueGroups := make([]string, 0, len(rows))
	arg := 1
	for _, row := range rows {
		placeholders := make([]string, len(names))
		for i, name := range names {
			placeholders[i] = fmt.Sprintf("$%d", arg)
			args = append(args, row[name])
			arg++
		}
		valueGroups = append(valueGroups, "("+strings.Join(placeholders, ", ")+")")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		qualified,
		strings.Join(cols, ", "),
		strings.Join(valueGroups, ", "),
	)
	return query, args
}
