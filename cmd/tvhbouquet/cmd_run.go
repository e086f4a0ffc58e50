package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/tvhbouquet/internal/app/run"
	"github.com/John-Robertt/tvhbouquet/internal/config"
	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/history"
	"github.com/John-Robertt/tvhbouquet/internal/log"
)

type runFlags struct {
	apply          bool
	strategy       string
	keyMode        string
	threshold      float64
	dedup          bool
	numbering      string
	nameSource     string
	createTags     bool
	useCache       bool
	catalogURL     string
	offlineCatalog string
}

func (c *cli) newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [source_url]",
		Short: "抓取列表、匹配目录并导入（默认 dry-run）",
		Long: `run 执行完整流程：抓取列表 -> 读取目录快照 -> 匹配 -> 规划 -> 写入。

stdout 是终端时打印摘要；否则 stdout 只输出一个 RunReport JSON，日志与进度走 stderr。
退出码：0 成功；1 run 失败或存在写入失败的频道；2 参数或配置错误。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runImport(cmd, args, f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.apply, "apply", false, "写入 Tvheadend（默认只 dry-run）；支持 --apply=false 覆盖配置")
	fl.StringVar(&f.strategy, "strategy", "", "匹配策略：fuzzy|exact|freq")
	fl.StringVar(&f.keyMode, "key-mode", "", "exact/freq 使用的规范化键：letters|letters_digits")
	fl.Float64Var(&f.threshold, "threshold", 0, "fuzzy 策略的最低相似度（0..1）")
	fl.BoolVar(&f.dedup, "dedup", false, "按规范化名称去重，并启用全局编号")
	fl.StringVar(&f.numbering, "numbering", "", "编号方式：per_category|global")
	fl.StringVar(&f.nameSource, "name-source", "", "频道名来源：service|remote")
	fl.BoolVar(&f.createTags, "create-tags", true, "为每个分类复用或创建标签")
	fl.BoolVar(&f.useCache, "use-cache", false, "优先使用本地页面缓存")
	fl.StringVar(&f.catalogURL, "catalog-url", "", "Tvheadend 地址，例如 http://tvh.local:9981")
	fl.StringVar(&f.offlineCatalog, "offline-catalog", "", "用 JSON 目录文件代替 Tvheadend（离线演练）")
	return cmd
}

func (c *cli) runImport(cmd *cobra.Command, args []string, f runFlags) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("读取当前目录失败：%w", err)
	}

	ca := c.baseArgs(cmd)
	if len(args) == 1 {
		ca.SourceURL = &args[0]
	}
	changed := cmd.Flags().Changed
	if changed("apply") {
		ca.Apply = &f.apply
	}
	if changed("strategy") {
		ca.Strategy = &f.strategy
	}
	if changed("key-mode") {
		ca.KeyMode = &f.keyMode
	}
	if changed("threshold") {
		ca.FuzzyThreshold = &f.threshold
	}
	if changed("dedup") {
		ca.Dedup = &f.dedup
	}
	if changed("numbering") {
		ca.Numbering = &f.numbering
	}
	if changed("name-source") {
		ca.NameSource = &f.nameSource
	}
	if changed("create-tags") {
		ca.CreateTags = &f.createTags
	}
	if changed("use-cache") {
		ca.UseCache = &f.useCache
	}
	if changed("catalog-url") {
		ca.CatalogURL = &f.catalogURL
	}
	if changed("offline-catalog") {
		ca.CatalogFixture = &f.offlineCatalog
	}

	eff, err := config.LoadEffective(cwd, ca)
	if err != nil {
		c.emitReport(reportForConfigError(ca, err))
		return &exitError{code: 2}
	}
	c.configureLog(eff.LogLevel)
	lg := log.WithComponent("cli")

	var deps run.Deps
	if eff.HistoryDB != "" {
		store, err := history.Open(eff.HistoryDB)
		if err != nil {
			// 账本只是附属记录：打不开时照常导入。
			lg.Warn().Err(err).Str("path", eff.HistoryDB).Msg("打开运行历史失败，本次不记录")
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					lg.Warn().Err(err).Msg("关闭运行历史失败")
				}
			}()
			deps.History = store
		}
	}

	progressW, interactive := c.pickProgressWriter()
	var ui *progressUI
	var obs run.Observer
	if interactive {
		ui = newProgressUI(progressW)
		obs = ui
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rr := run.ExecuteWithObserver(ctx, eff, deps, obs)
	if ui != nil {
		ui.Close()
	}

	c.emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if !rr.OK || rr.Summary.Failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}

// emitReport 输出最终结果：stdout 是终端时打印摘要，否则 stdout 只输出一个 RunReport JSON。
func (c *cli) emitReport(rr domain.RunReport) {
	if isTTY(c.stdout) {
		fmt.Fprintln(c.stdout, rr.Text())
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed && it.Status != domain.StatusUnmatched {
				continue
			}
			fmt.Fprintf(c.stderr, "#%d %s\n", it.Number, run.StatusLine(it))
		}
		return
	}

	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(c.stderr, rr.Text())
}

// reportForConfigError 在配置阶段失败时合成一个失败的 RunReport，保持 stdout 契约不变。
func reportForConfigError(ca config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		DryRun:     ca.Apply == nil || !*ca.Apply,
		StartedAt:  now,
		FinishedAt: now,
		ErrorCode:  code,
		ErrorMsg:   err.Error(),
	}
	if ca.SourceURL != nil {
		rr.SourceURL = *ca.SourceURL
	}
	if ca.Strategy != nil {
		rr.Strategy = *ca.Strategy
	}
	rr.Finalize()
	return rr
}

func (c *cli) pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(c.stderr) {
		return c.stderr, true
	}
	// 只重定向了 stderr 时，stdout 仍是终端：退化输出到 stdout。
	if isTTY(c.stdout) {
		return c.stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.Apply && eff.CacheDir != "" {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.CacheDir, run.ReportFileName))
	}
	if eff.HistoryDB != "" {
		fmt.Fprintf(w, "history: %s\n", eff.HistoryDB)
	}
}
