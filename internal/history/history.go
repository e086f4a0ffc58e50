package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
)

// ErrNotFound 表示账本中没有该 run。
var ErrNotFound = errors.New("history: run not found")

// Store 是 run 账本：每次 run 一行汇总，外加逐动作结果。
//
// 约束：
// - SaveRun 在单个事务内写入，同一 RunID 重复写入会覆盖旧记录
// - 时间一律以 UTC 定宽文本存储
type Store struct {
	db *sql.DB
}

// RunSummary 是 RecentRuns 的一行。
type RunSummary struct {
	RunID      string               `json:"run_id"`
	SourceURL  string               `json:"source_url"`
	DryRun     bool                 `json:"dry_run"`
	Strategy   string               `json:"strategy"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	OK         bool                 `json:"ok"`
	ErrorCode  string               `json:"error_code"`
	ErrorMsg   string               `json:"error_msg"`
	Summary    domain.ReportSummary `json:"summary"`
}

// Open 打开（必要时创建）账本文件并初始化表结构。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history_db 路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建账本目录失败：%w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开账本失败：%w", err)
	}
	// 单连接：SQLite 写锁是库级的，run 本身也是串行的。
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化账本失败：%w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id       TEXT PRIMARY KEY,
		source_url   TEXT NOT NULL,
		dry_run      INTEGER NOT NULL,
		strategy     TEXT NOT NULL,
		started_at   TEXT NOT NULL,
		finished_at  TEXT NOT NULL,
		ok           INTEGER NOT NULL,
		error_code   TEXT NOT NULL DEFAULT '',
		error_msg    TEXT NOT NULL DEFAULT '',
		processed    INTEGER NOT NULL DEFAULT 0,
		matched      INTEGER NOT NULL DEFAULT 0,
		created      INTEGER NOT NULL DEFAULT 0,
		updated      INTEGER NOT NULL DEFAULT 0,
		unmatched    INTEGER NOT NULL DEFAULT 0,
		failed       INTEGER NOT NULL DEFAULT 0,
		tags_created INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS items (
		run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq          INTEGER NOT NULL,
		number       INTEGER NOT NULL,
		category     TEXT NOT NULL,
		source       TEXT NOT NULL,
		name         TEXT NOT NULL,
		action       TEXT NOT NULL,
		status       TEXT NOT NULL,
		service_id   TEXT NOT NULL,
		service_name TEXT NOT NULL,
		channel_id   TEXT NOT NULL,
		score        REAL NOT NULL,
		reason       TEXT NOT NULL,
		error_code   TEXT NOT NULL,
		error_msg    TEXT NOT NULL,
		attempts     INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun 写入一次 run 的汇总与全部动作结果。
func (s *Store) SaveRun(ctx context.Context, rr domain.RunReport) error {
	if strings.TrimSpace(rr.RunID) == "" {
		return errors.New("run_id 不能为空")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE run_id = ?`, rr.RunID); err != nil {
		return fmt.Errorf("清理旧记录失败：%w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			run_id, source_url, dry_run, strategy, started_at, finished_at, ok, error_code, error_msg,
			processed, matched, created, updated, unmatched, failed, tags_created
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rr.RunID, rr.SourceURL, rr.DryRun, rr.Strategy,
		formatTime(rr.StartedAt), formatTime(rr.FinishedAt), rr.OK, rr.ErrorCode, rr.ErrorMsg,
		rr.Summary.Processed, rr.Summary.Matched, rr.Summary.Created, rr.Summary.Updated,
		rr.Summary.Unmatched, rr.Summary.Failed, rr.Summary.TagsCreated,
	)
	if err != nil {
		return fmt.Errorf("写入 run 失败：%w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (
			run_id, seq, number, category, source, name, action, status, service_id, service_name,
			channel_id, score, reason, error_code, error_msg, attempts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, it := range rr.Items {
		_, err := stmt.ExecContext(ctx,
			rr.RunID, i, it.Number, it.Category, it.Source, it.Name, it.Action, it.Status,
			it.ServiceID, it.ServiceName, it.ChannelID, it.Score, it.Reason, it.ErrorCode, it.ErrorMsg, it.Attempts,
		)
		if err != nil {
			return fmt.Errorf("写入第 %d 个动作失败：%w", i+1, err)
		}
	}
	return tx.Commit()
}

// RecentRuns 按开始时间倒序返回最近 limit 次 run（limit<=0 时返回 20 条）。
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source_url, dry_run, strategy, started_at, finished_at, ok, error_code, error_msg,
		       processed, matched, created, updated, unmatched, failed, tags_created
		FROM runs
		ORDER BY started_at DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r                 RunSummary
			started, finished string
		)
		if err := rows.Scan(
			&r.RunID, &r.SourceURL, &r.DryRun, &r.Strategy, &started, &finished, &r.OK, &r.ErrorCode, &r.ErrorMsg,
			&r.Summary.Processed, &r.Summary.Matched, &r.Summary.Created, &r.Summary.Updated,
			&r.Summary.Unmatched, &r.Summary.Failed, &r.Summary.TagsCreated,
		); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Items 返回某次 run 的动作结果（执行顺序）。
func (s *Store) Items(ctx context.Context, runID string) ([]domain.ItemResult, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT number, category, source, name, action, status, service_id, service_name,
		       channel_id, score, reason, error_code, error_msg, attempts
		FROM items WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ItemResult, 0, 64)
	for rows.Next() {
		var it domain.ItemResult
		if err := rows.Scan(
			&it.Number, &it.Category, &it.Source, &it.Name, &it.Action, &it.Status, &it.ServiceID, &it.ServiceName,
			&it.ChannelID, &it.Score, &it.Reason, &it.ErrorCode, &it.ErrorMsg, &it.Attempts,
		); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// timeLayout 是定宽格式：文本排序即时间排序。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("账本时间格式无效：%q：%w", s, err)
	}
	return t, nil
}
