package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"forecastbot/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

const defaultKey = "seen_ids"

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

func init() {
	storage.RegisterFactory("sqlite", New)
}

type SQLiteStore struct {
	conn *sql.DB
	key  string
}

func New(ctx context.Context, cfg storage.Config) (storage.BlobStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite storage requires a path")
	}
	key := cfg.Key
	if key == "" {
		key = defaultKey
	}

	slog.Info("Initializing SQLite storage", "path", cfg.Path, "key", key)

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", cfg.Path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &SQLiteStore{conn: conn, key: key}, nil
}

func runMigrations(conn *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Migrations completed successfully")
	return nil
}

func (s *SQLiteStore) Name() string {
	return "sqlite:" + s.key
}

func (s *SQLiteStore) Read(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM state_blobs WHERE name = ?`, s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", s.key, err)
	}
	return data, nil
}

func (s *SQLiteStore) Write(ctx context.Context, data []byte) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO state_blobs (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.key, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write blob %s: %w", s.key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit blob %s: %w", s.key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
