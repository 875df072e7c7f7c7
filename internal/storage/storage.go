// Package storage は共有SQLiteデータベースの接続とスキーマ適用を提供する。
// 全ストア（アジェンダ・通知・プッシュ購読）が単一のデータベースを共有する。
package storage

import (
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nao1215/agendahub/pkg/migration"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// Open は指定パスのSQLiteデータベースを開き、スキーマを適用して返す。
// WALモードと外部キー制約を有効化する。
// テストでは path に ":memory:" を渡せる。
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	// SQLiteは単一ライターのため接続数を1に固定する。
	// インメモリDBでは接続ごとに別のDBになることも防ぐ。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("WALモードの有効化に失敗: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("外部キー制約の有効化に失敗: %w", err)
	}

	if _, err := migration.Run(db.DB, migrationsFS, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ適用に失敗: %w", err)
	}

	return db, nil
}
