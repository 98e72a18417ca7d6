// Package dbtest はテスト用のインメモリ SQLite を用意する
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"smartid-backend/internal/platform/config"
	"smartid-backend/internal/platform/db"
)

// NewSQLite: マイグレーション適用済みの空DBを返す。テスト終了時に閉じる
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = conn.Close() })

	if err := db.Migrate(context.Background(), conn, config.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}
