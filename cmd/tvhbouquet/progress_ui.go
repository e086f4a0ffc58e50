package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/tvhbouquet/internal/app/run"
	"github.com/John-Robertt/tvhbouquet/internal/config"
	"github.com/John-Robertt/tvhbouquet/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端上的进度输出。
//
// 约束：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 执行阶段每个动作一行（由 OnActionDone 打印），OnProgress 在执行阶段不重复输出
// - keepalive：长时间没有动作完成时定期输出一行；Close 之后不再输出
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	executing bool
	total     int
	done      int
	ok        int
	fail      int
	skip      int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不写入 Tvheadend)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] tvhbouquet run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  source: %s\n", truncate(eff.SourceURL, 120))
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  strategy: %s\n", formatStrategy(eff))
	fmt.Fprintf(p.w, "  numbering: %s dedup=%s\n", eff.Numbering, onOff(eff.Dedup))
	fmt.Fprintf(p.w, "  name_source: %s\n", eff.NameSource)
	fmt.Fprintf(p.w, "  create_tags: %s\n", onOff(eff.CreateTags))
	fmt.Fprintf(p.w, "  mutation_retries: %d\n", eff.MutationRetries)
	fmt.Fprintf(p.w, "  catalog: %s\n", formatCatalog(eff.Catalog))
	fmt.Fprintf(p.w, "  fetch: rate=%.1f/s timeout=%s max_pages=%d\n", eff.Fetch.Rate, eff.Fetch.Timeout, eff.Fetch.MaxPages)
	fmt.Fprintf(p.w, "  cache: %s (use_cache=%s)\n", eff.CacheDir, onOff(eff.UseCache))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnProgress(percent int, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.executing && percent < 100 {
		return
	}
	fmt.Fprintf(p.w, "[%3d%%] %s\n", percent, truncate(status, 160))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "ingest":
		fmt.Fprintf(p.w, "抓取: pages=%d skipped=%d categories=%d entries=%d (%s)\n",
			intField(fields, "pages"),
			intField(fields, "skipped"),
			intField(fields, "categories"),
			intField(fields, "entries"),
			formatShortDuration(dur),
		)
	case "snapshot":
		fmt.Fprintf(p.w, "目录: services=%d channels=%d tags=%d multiplexes=%d (%s)\n",
			intField(fields, "services"),
			intField(fields, "channels"),
			intField(fields, "tags"),
			intField(fields, "multiplexes"),
			formatShortDuration(dur),
		)
	case "plan":
		p.total = intField(fields, "actions")
		fmt.Fprintf(p.w, "规划: strategy=%s entries=%d actions=%d tags=%d (%s)\n\n",
			strField(fields, "strategy"),
			intField(fields, "entries"),
			p.total,
			intField(fields, "tags"),
			formatShortDuration(dur),
		)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "exec":
		p.executing = false
		p.stopTickerLocked()
		fmt.Fprintf(p.w, "\n执行: actions=%d ok=%d fail=%d skip=%d (%s)\n",
			intField(fields, "actions"), p.ok, p.fail, p.skip, formatShortDuration(dur),
		)
	default:
		// 兜底：未知阶段也不要静默。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnActionDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.executing = true
	p.done = idx
	p.total = total

	status := "OK"
	switch res.Status {
	case domain.StatusFailed:
		status = "FAIL"
		p.fail++
	case domain.StatusUnmatched:
		status = "SKIP"
		p.skip++
	default:
		p.ok++
	}

	note := ""
	if res.Attempts > 1 {
		note = fmt.Sprintf(" attempts=%d", res.Attempts)
	}
	fmt.Fprintf(p.w, "[%d/%d] %s %s%s (%s)\n",
		idx, total, status, truncate(run.StatusLine(res), 160), note, formatShortDuration(dur),
	)
	p.lastPrinted = time.Now()

	// 最后一个动作完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

// Close 停止 keepalive；run 中途失败（没有 exec 阶段）时由调用方兜底调用。可重复调用。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) startTickerLocked() {
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done < p.total && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d skip=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, p.skip, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

func formatStrategy(eff config.EffectiveConfig) string {
	switch eff.Strategy {
	case "fuzzy":
		return fmt.Sprintf("fuzzy (threshold=%.2f)", eff.FuzzyThreshold)
	default:
		return fmt.Sprintf("%s (key_mode=%s)", eff.Strategy, eff.KeyMode)
	}
}

// formatCatalog 只展示 scheme/host 与是否带认证，不回显密码。
func formatCatalog(c config.CatalogConfig) string {
	if strings.TrimSpace(c.Fixture) != "" {
		return "offline (" + truncate(c.Fixture, 120) + ")"
	}
	raw := strings.TrimSpace(c.URL)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return truncate(raw, 120)
	}
	return fmt.Sprintf("%s://%s (auth=%s, timeout=%s)", u.Scheme, u.Host, onOff(c.Username != ""), c.Timeout)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}

func strField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
