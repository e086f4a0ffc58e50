package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/tvhbouquet/internal/app/run"
	"github.com/John-Robertt/tvhbouquet/internal/config"
	"github.com/John-Robertt/tvhbouquet/internal/history"
)

type historyFlags struct {
	limit int
	runID string
	json  bool
}

func (c *cli) newHistoryCmd() *cobra.Command {
	var f historyFlags
	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看最近的运行记录（需要配置 history_db）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runHistory(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.IntVarP(&f.limit, "limit", "n", 20, "最多显示的 run 数")
	fl.StringVar(&f.runID, "run", "", "显示某次 run 的逐条结果")
	fl.BoolVar(&f.json, "json", false, "输出 JSON（stdout 不是终端时默认如此）")
	return cmd
}

func (c *cli) runHistory(cmd *cobra.Command, f historyFlags) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("读取当前目录失败：%w", err)
	}
	ca := c.baseArgs(cmd)
	ca.SkipSource = true
	ca.SkipCatalog = true
	eff, err := config.LoadEffective(cwd, ca)
	if err != nil {
		return err
	}
	c.configureLog(eff.LogLevel)
	if eff.HistoryDB == "" {
		return errors.New("未配置 history_db（配置文件 history_db 或环境变量 " + config.EnvPrefix + "_HISTORY_DB）")
	}

	store, err := history.Open(eff.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	asJSON := f.json || !isTTY(c.stdout)
	ctx := cmd.Context()

	if f.runID != "" {
		items, err := store.Items(ctx, f.runID)
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("找不到 run：%s", f.runID)
		}
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(c.stdout, items)
		}
		for _, it := range items {
			fmt.Fprintf(c.stdout, "%-9s #%-4d %s\n", it.Status, it.Number, run.StatusLine(it))
		}
		return nil
	}

	runs, err := store.RecentRuns(ctx, f.limit)
	if err != nil {
		return err
	}
	if asJSON {
		if runs == nil {
			runs = []history.RunSummary{}
		}
		return writeJSON(c.stdout, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.stdout, "还没有运行记录")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintln(c.stdout, formatRunSummary(r))
	}
	return nil
}

func formatRunSummary(r history.RunSummary) string {
	mode := "apply"
	if r.DryRun {
		mode = "dry-run"
	}
	head := fmt.Sprintf("%s  %s  %-7s", r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.RunID, mode)
	if !r.OK {
		return fmt.Sprintf("%s  FAIL %s %s", head, r.ErrorCode, truncate(r.ErrorMsg, 80))
	}
	s := r.Summary
	return fmt.Sprintf("%s  OK   processed=%d created=%d updated=%d unmatched=%d failed=%d",
		head, s.Processed, s.Created, s.Updated, s.Unmatched, s.Failed,
	)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
