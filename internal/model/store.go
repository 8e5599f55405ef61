package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound 查询的记录不存在
var ErrNotFound = errors.New("记录不存在")

// insertBatchSize 单条 INSERT 语句最多写入的行数
const insertBatchSize = 500

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		kind          TEXT NOT NULL,
		status        TEXT NOT NULL,
		summary       TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		create_time   DATETIME NOT NULL,
		update_time   DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_status ON runs (status)`,
	`CREATE TABLE IF NOT EXISTS labels (
		task          TEXT NOT NULL,
		message_id    TEXT NOT NULL,
		position      INTEGER NOT NULL,
		channel       TEXT NOT NULL DEFAULT '',
		content       TEXT NOT NULL,
		state         TEXT NOT NULL,
		value         TEXT NOT NULL DEFAULT '',
		attempts      INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		update_time   DATETIME NOT NULL,
		PRIMARY KEY (task, message_id)
	)`,
	`CREATE INDEX IF NOT EXISTS labels_task_state ON labels (task, state)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id            TEXT PRIMARY KEY,
		text          TEXT NOT NULL,
		authors       TEXT NOT NULL,
		start_time    DATETIME NOT NULL,
		end_time      DATETIME NOT NULL,
		message_count INTEGER NOT NULL,
		create_time   DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS documents_start_time ON documents (start_time)`,
}

// Store sqlite 连接
type Store struct {
	drv *entsql.Driver
}

// Open 打开 (不存在则创建) sqlite 数据库并建表
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_fk=1", path)
	drv, err := entsql.Open(dialect.SQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	store := &Store{drv: drv}
	if err := store.migrate(ctx); err != nil {
		drv.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("创建数据库Schema失败: %w", err)
		}
	}
	return nil
}

// DB 底层连接
func (s *Store) DB() *sql.DB {
	return s.drv.DB()
}

func (s *Store) Close() error {
	return s.drv.Close()
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

// withTx 在事务中执行 fn，出错时回滚
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
