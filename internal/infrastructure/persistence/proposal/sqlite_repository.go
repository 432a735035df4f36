package proposal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/Nyukimin/patchgate/internal/domain/proposal"
	"github.com/Nyukimin/patchgate/pkg/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS proposals (
	id         TEXT PRIMARY KEY,
	patch      TEXT NOT NULL,
	hash       TEXT NOT NULL,
	files      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_proposals_created_at ON proposals(created_at);
`

// SQLiteProposalRepository はSQLiteによるproposal.Repository実装
type SQLiteProposalRepository struct {
	db *sql.DB
}

// NewSQLiteProposalRepository はデータベースを開きスキーマを作成する
func NewSQLiteProposalRepository(path string) (*SQLiteProposalRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// 書き込みは単一接続に直列化する
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteProposalRepository{db: db}, nil
}

// Close はデータベースを閉じる
func (r *SQLiteProposalRepository) Close() error {
	return r.db.Close()
}

// Put はProposalを保存
func (r *SQLiteProposalRepository) Put(ctx context.Context, p *proposal.Proposal) error {
	files, err := json.Marshal(p.TouchedFiles())
	if err != nil {
		return fmt.Errorf("failed to marshal files: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO proposals (id, patch, hash, files, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID(), p.PatchText(), p.ContentHash(), string(files), p.CreatedAt().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	return nil
}

// Get はIDでProposalを取得
func (r *SQLiteProposalRepository) Get(ctx context.Context, id string) (*proposal.Proposal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, patch, hash, files, created_at FROM proposals WHERE id = ?`, id)

	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, proposal.ErrProposalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal %s: %w", id, err)
	}
	return p, nil
}

// List は全Proposalを作成時刻順に返す
func (r *SQLiteProposalRepository) List(ctx context.Context) ([]*proposal.Proposal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, patch, hash, files, created_at FROM proposals ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	list := make([]*proposal.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			logger.WarnCF("store", "proposal.skipped", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate proposals: %w", err)
	}
	return list, nil
}

// Delete は指定IDのProposalを削除
func (r *SQLiteProposalRepository) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM proposals WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete proposals: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProposal(row rowScanner) (*proposal.Proposal, error) {
	var (
		id, patchText, hash, files string
		createdAt                  int64
	)
	if err := row.Scan(&id, &patchText, &hash, &files, &createdAt); err != nil {
		return nil, err
	}
	var touched []string
	if err := json.Unmarshal([]byte(files), &touched); err != nil {
		return nil, fmt.Errorf("failed to unmarshal files: %w", err)
	}
	return proposal.Reconstruct(id, patchText, hash, touched, time.UnixMilli(createdAt))
}
