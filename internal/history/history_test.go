package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "history.db"))
	if err != nil {
		t.Fatalf("打开账本失败：%v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func report(id string, started time.Time) domain.RunReport {
	rr := domain.RunReport{
		RunID:      id,
		SourceURL:  "https://lista.test/",
		Strategy:   "freq",
		OK:         true,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Items: []domain.ItemResult{
			{Number: 1, Category: "Sport", Source: "Polsat Sport HD", Name: "Polsat Sport HD", Action: string(domain.ActionCreate), Status: domain.StatusCreated, ServiceID: "s1", Score: 1, Attempts: 1},
			{Number: 2, Category: "Sport", Source: "Nieznany", Name: "Nieznany", Action: string(domain.ActionSkip), Status: domain.StatusUnmatched, Reason: string(domain.ReasonNoCandidate), ErrorCode: domain.ErrCodeUnmatched},
		},
	}
	rr.Finalize()
	return rr
}

func TestSaveRun_RecentRuns(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.SaveRun(ctx, report("a", base)); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// 整秒与带小数秒的时间混排时，排序仍然按时间。
	if err := s.SaveRun(ctx, report("b", base.Add(500*time.Millisecond))); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	failed := domain.RunReport{RunID: "c", SourceURL: "https://lista.test/", Strategy: "freq", StartedAt: base.Add(time.Hour), ErrorCode: domain.ErrCodeSnapshotFailed, ErrorMsg: "timeout"}
	failed.Finalize()
	if err := s.SaveRun(ctx, failed); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("期望 3 条记录，实际 %d", len(runs))
	}
	if runs[0].RunID != "c" || runs[1].RunID != "b" || runs[2].RunID != "a" {
		t.Fatalf("期望按开始时间倒序，实际 %s,%s,%s", runs[0].RunID, runs[1].RunID, runs[2].RunID)
	}
	if runs[0].OK || runs[0].ErrorCode != domain.ErrCodeSnapshotFailed {
		t.Fatalf("失败 run 的状态未正确保存：%+v", runs[0])
	}
	if !runs[2].StartedAt.Equal(base) || runs[2].Summary.Created != 1 || runs[2].Summary.Unmatched != 1 {
		t.Fatalf("汇总未正确保存：%+v", runs[2])
	}

	limited, err := s.RecentRuns(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("期望 limit 生效，实际 len=%d err=%v", len(limited), err)
	}
}

func TestItems(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rr := report("x", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	if err := s.SaveRun(ctx, rr); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// 重复写入同一 run 覆盖旧记录，不产生重复动作。
	if err := s.SaveRun(ctx, rr); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	items, err := s.Items(ctx, "x")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(items) != 2 {
		t.Fatalf("期望 2 个动作，实际 %d", len(items))
	}
	if items[0] != rr.Items[0] || items[1] != rr.Items[1] {
		t.Fatalf("动作内容不一致：got=%+v want=%+v", items, rr.Items)
	}

	if _, err := s.Items(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("期望 ErrNotFound，实际 %v", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("期望空路径报错")
	}
	if err := (&Store{}).SaveRun(context.Background(), domain.RunReport{}); err == nil {
		t.Fatalf("期望空 run_id 报错")
	}
}
