// Package journal 把每次运行的各源抓取结果写入 SQLite，只记录计数和错误，不保存条目。
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/iabetor/nius/internal/database"
)

// Run 一次运行的摘要。
type Run struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Cards     int
	Sources   []SourceRun
}

// SourceRun 单个源在一次运行中的结果，Error 为空表示成功。
type SourceRun struct {
	Label   string
	URL     string
	Entries int
	Error   string
}

// Failed 统计失败的源数量。
func (r Run) Failed() int {
	n := 0
	for _, s := range r.Sources {
		if s.Error != "" {
			n++
		}
	}
	return n
}

// Store 运行记录存储。
type Store struct {
	db *database.DB
}

// New 创建存储，db 需已完成 Migrate。
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Record 在一个事务内写入运行及其各源结果。
func (s *Store) Record(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	failed := run.Failed()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, duration_ms, cards, sources_ok, sources_failed) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.Duration.Milliseconds(), run.Cards, len(run.Sources)-failed, failed)
	if err != nil {
		return fmt.Errorf("写入运行记录失败: %w", err)
	}

	for i, src := range run.Sources {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO source_fetches (run_id, position, label, url, entries, error) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, i, src.Label, src.URL, src.Entries, src.Error)
		if err != nil {
			return fmt.Errorf("写入源记录失败: %w", err)
		}
	}
	return tx.Commit()
}

// Recent 返回最近 limit 次运行，最新的在前。
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, cards FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r  Run
			ms int64
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &ms, &r.Cards); err != nil {
			return nil, fmt.Errorf("读取运行记录失败: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		srcs, err := s.sources(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Sources = srcs
	}
	return runs, nil
}

func (s *Store) sources(ctx context.Context, runID string) ([]SourceRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, url, entries, error FROM source_fetches WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("查询源记录失败: %w", err)
	}
	defer rows.Close()

	var out []SourceRun
	for rows.Next() {
		var sr SourceRun
		if err := rows.Scan(&sr.Label, &sr.URL, &sr.Entries, &sr.Error); err != nil {
			return nil, fmt.Errorf("读取源记录失败: %w", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// Prune 只保留最近 keep 次运行，返回删除的数量。keep<=0 不做任何事。
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("清理运行记录失败: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
