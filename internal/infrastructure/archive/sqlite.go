package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hyperbuild-web/internal/domain/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store 基于 SQLite 的回复归档
type Store struct {
	db *sql.DB
}

// Open 打开（或创建）归档数据库
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite 只允许一个写连接
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize archive: %w", err)
	}
	return s, nil
}

// init 创建表结构
func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS responses (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		provider TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_responses_provider ON responses(provider);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save 追加一条回复
func (s *Store) Save(ctx context.Context, provider, response string) (*models.ArchivedResponse, error) {
	rec := &models.ArchivedResponse{
		ID:        uuid.NewString(),
		Provider:  provider,
		Response:  response,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO responses (id, provider, response, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.Provider, rec.Response, rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert response: %w", err)
	}
	return rec, nil
}

// List 按时间倒序返回最近的 limit 条回复
func (s *Store) List(ctx context.Context, limit int) ([]models.ArchivedResponse, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT id, provider, response, created_at
	FROM responses ORDER BY seq DESC LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.ArchivedResponse{}
	for rows.Next() {
		var r models.ArchivedResponse
		if err := rows.Scan(&r.ID, &r.Provider, &r.Response, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count 返回归档总数
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&n)
	return n, err
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}
