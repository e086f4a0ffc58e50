package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/tvhbouquet/internal/app/planner"
	"github.com/John-Robertt/tvhbouquet/internal/catalog"
	"github.com/John-Robertt/tvhbouquet/internal/catalog/memcatalog"
	"github.com/John-Robertt/tvhbouquet/internal/catalog/tvh"
	"github.com/John-Robertt/tvhbouquet/internal/config"
	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/infra/cache"
	"github.com/John-Robertt/tvhbouquet/internal/infra/fsx"
	"github.com/John-Robertt/tvhbouquet/internal/infra/httpx"
	"github.com/John-Robertt/tvhbouquet/internal/ingest"
	"github.com/John-Robertt/tvhbouquet/internal/log"
	"github.com/John-Robertt/tvhbouquet/internal/match"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

// ReportFileName 是 apply 模式下写入 cache_dir 的报告文件名。
const ReportFileName = "report.json"

// Recorder 持久化运行结果（history 账本实现它）。
type Recorder interface {
	SaveRun(ctx context.Context, rr domain.RunReport) error
}

// Deps 是一次 run 的外部协作者；为空的字段按 EffectiveConfig 构造默认实现。
type Deps struct {
	Fetcher ingest.Fetcher
	Catalog catalog.Client
	History Recorder
	Log     *zerolog.Logger
}

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 单个动作失败不影响其他动作；种子页、快照与配置错误会中止 run（OK=false）。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// 执行顺序（固定，全程单 goroutine）：
// 抓取列表 -> 目录快照 -> 去重/编号 -> 匹配 -> 规划 -> 标签准备 -> 逐个执行动作 -> 报告落盘
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	lg := log.WithComponent("run")
	if deps.Log != nil {
		lg = *deps.Log
	}

	if obs != nil {
		obs.OnStart(eff)
	}
	prog := &progress{obs: obs}
	prog.report(pctStart, "开始")

	r := &runner{
		eff:  eff,
		deps: deps,
		log:  lg,
		prog: prog,
		obs:  obs,
		rr: domain.RunReport{
			RunID:     uuid.NewString(),
			SourceURL: eff.SourceURL,
			DryRun:    !eff.Apply,
			Strategy:  eff.Strategy,
			StartedAt: time.Now().UTC(),
			Items:     make([]domain.ItemResult, 0, 128),
		},
	}
	rr := r.run(ctx)

	if deps.History != nil {
		if err := deps.History.SaveRun(ctx, rr); err != nil {
			lg.Warn().Err(err).Str("run_id", rr.RunID).Msg("写入运行历史失败")
		}
	}
	if eff.Apply && strings.TrimSpace(eff.CacheDir) != "" {
		if err := fsx.WriteJSONAtomic(eff.CacheDir, ReportFileName, rr); err != nil {
			lg.Warn().Err(err).Str("dir", eff.CacheDir).Msg("写入 report.json 失败")
		}
	}
	return rr
}

type runner struct {
	eff  config.EffectiveConfig
	deps Deps
	log  zerolog.Logger
	prog *progress
	obs  Observer
	rr   domain.RunReport
}

func (r *runner) run(ctx context.Context) domain.RunReport {
	strategy, ok := match.DefaultRegistry(match.Options{
		FuzzyThreshold: r.eff.FuzzyThreshold,
		ExactKeyMode:   r.eff.KeyMode,
	}).Get(r.eff.Strategy)
	if !ok {
		return r.fail(domain.ErrCodeConfigInvalid, fmt.Sprintf("未知匹配策略：%q", r.eff.Strategy))
	}
	if strings.TrimSpace(r.eff.SourceURL) == "" {
		return r.fail(domain.ErrCodeConfigInvalid, "source_url 不能为空")
	}
	client := r.deps.Catalog
	if client == nil {
		c, err := NewCatalogClient(r.eff)
		if err != nil {
			return r.fail(domain.ErrCodeConfigInvalid, err.Error())
		}
		client = c
	}
	fetcher := r.deps.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(r.eff, r.sub("cache"))
	}

	// 1) 列表抓取与解析。
	r.prog.report(pctFetch, "抓取频道列表："+r.eff.SourceURL)
	started := time.Now()
	in := ingest.Ingestor{
		Fetcher: fetcher,
		Options: ingest.Options{
			Detectors: r.eff.CategoryDetectors,
			Numbering: r.eff.Numbering,
			MaxPages:  r.eff.Fetch.MaxPages,
		},
		Log: r.sub("ingest"),
		OnPage: func(done, total int, pageURL string, err error) {
			status := fmt.Sprintf("已处理页面 %d/%d：%s", done, total, pageURL)
			if err != nil {
				status = fmt.Sprintf("跳过页面 %d/%d：%s", done, total, pageURL)
			}
			r.prog.report(ingestPercent(done, total), status)
		},
	}
	listing, err := in.Ingest(ctx, r.eff.SourceURL)
	if err != nil {
		r.log.Error().Err(err).Str("url", r.eff.SourceURL).Msg("抓取频道列表失败")
		return r.fail(domain.ErrCodeFetchFailed, err.Error())
	}
	r.rr.Pages = listing.Pages
	r.phase("ingest", map[string]any{
		"pages":      len(listing.Pages),
		"skipped":    len(listing.SkippedPages),
		"categories": len(listing.Groups),
		"entries":    listing.Len(),
	}, time.Since(started))
	r.prog.report(pctFetched, fmt.Sprintf("解析到 %d 个频道（%d 个分类）", listing.Len(), len(listing.Groups)))

	// 2) 目录快照：整个 run 只拉取一次。
	started = time.Now()
	snap, err := catalog.LoadSnapshot(ctx, client, r.sub("catalog"))
	if err != nil {
		r.log.Error().Err(err).Msg("读取目录快照失败")
		return r.fail(domain.ErrCodeSnapshotFailed, err.Error())
	}
	r.phase("snapshot", map[string]any{
		"services":    len(snap.Services),
		"channels":    len(snap.Channels),
		"tags":        len(snap.Tags),
		"multiplexes": len(snap.MultiplexMHz),
	}, time.Since(started))
	r.prog.report(pctSnapshot, fmt.Sprintf("目录中有 %d 个服务、%d 个频道", len(snap.Services), len(snap.Channels)))

	// 3) 去重/编号 + 匹配 + 规划（纯计算）。
	started = time.Now()
	entries := listing.Entries()
	switch {
	case r.eff.Dedup:
		entries = planner.Dedup(entries, strategy.KeyMode())
	case r.eff.Numbering == ingest.NumberGlobal:
		entries = planner.NumberGlobal(entries)
	}
	results := match.MatchAll(strategy, snap, entries)
	plan := planner.Build(results, snap, planner.Options{
		NameSource: r.eff.NameSource,
		CreateTags: r.eff.CreateTags,
	})
	r.phase("plan", map[string]any{
		"strategy": strategy.Name(),
		"entries":  len(entries),
		"actions":  len(plan.Actions),
		"tags":     len(plan.Tags),
	}, time.Since(started))

	// 4) 标签准备：每个分类至多 CreateTag 一次。
	tagIDs := r.primeTags(ctx, client, plan.Tags)
	r.prog.report(pctTags, fmt.Sprintf("分类标签就绪：%d", len(plan.Tags)))

	// 5) 逐个执行动作（严格按计划顺序）。
	started = time.Now()
	total := len(plan.Actions)
	for i, a := range plan.Actions {
		oneStarted := time.Now()
		item := r.execute(ctx, client, a, tagIDs[a.Category])
		r.rr.Items = append(r.rr.Items, item)
		if r.obs != nil {
			r.obs.OnActionDone(i+1, total, item, time.Since(oneStarted))
		}
		r.prog.report(execPercent(i+1, total), StatusLine(item))
	}
	r.phase("exec", map[string]any{
		"actions": total,
		"dry_run": !r.eff.Apply,
	}, time.Since(started))

	r.rr.OK = true
	r.rr.FinishedAt = time.Now().UTC()
	r.rr.Finalize()
	r.prog.report(pctDone, r.rr.Text())
	return r.rr
}

// primeTags 复用已有标签，并在 apply 模式下创建缺失的标签；返回 分类 -> tag id。
// 标签创建失败不终止 run：该分类的动作照常执行，只是不带分类标签。
func (r *runner) primeTags(ctx context.Context, client catalog.Client, plans []domain.TagPlan) map[string]string {
	out := make(map[string]string, len(plans))
	for _, tp := range plans {
		res := domain.TagResult{Name: tp.Name, ID: tp.ID, Created: tp.Created, Index: tp.Index}
		if !tp.Created {
			out[tp.Name] = tp.ID
			r.rr.Tags = append(r.rr.Tags, res)
			continue
		}
		if !r.eff.Apply {
			r.rr.Tags = append(r.rr.Tags, res)
			continue
		}

		// CreateTag 只调用一次：超时后重试可能在目录里留下同名标签。
		rec, err := client.CreateTag(ctx, tp.Name, r.eff.TagComment, tp.Index)
		if err != nil {
			r.log.Warn().Err(err).Str("category", tp.Name).Msg("创建分类标签失败")
			res.ErrorCode = domain.ErrCodeTagFailed
			res.ErrorMsg = err.Error()
			r.rr.Tags = append(r.rr.Tags, res)
			continue
		}
		res.ID = rec.ID
		out[tp.Name] = rec.ID
		r.rr.Tags = append(r.rr.Tags, res)
	}
	return out
}

// execute 执行单个动作；目录调用失败按 1+mutation_retries 次尝试后记为 failed。
func (r *runner) execute(ctx context.Context, client catalog.Client, a domain.Action, categoryTag string) domain.ItemResult {
	item := domain.ItemResult{
		Number:       a.Entry.Number,
		Category:     a.Category,
		Source:       a.Entry.Name,
		Name:         a.Name,
		Action:       string(a.Kind),
		ServiceID:    a.ServiceID,
		ServiceName:  a.ServiceName,
		ChannelID:    a.ChannelID,
		Score:        a.Score,
		FrequencyMHz: normalize.FrequencyMHz(a.Entry.Frequency),
		Reason:       string(a.Reason),
	}

	if a.Kind == domain.ActionSkip {
		item.Name = a.Entry.Name
		item.Status = domain.StatusUnmatched
		item.ErrorCode = domain.ErrCodeUnmatched
		return item
	}
	if !r.eff.Apply {
		item.Status = domain.StatusPlanned
		return item
	}

	tags := a.TagIDs
	if categoryTag != "" {
		tags = planner.WithTag(tags, categoryTag)
	}

	var (
		op  string
		err error
	)
	switch a.Kind {
	case domain.ActionCreate:
		op = catalog.OpCreateChannel
		var ch domain.ChannelRecord
		// 创建不是幂等的：只有明确的非 2xx 才重试，超时/断连可能已在服务端生效。
		item.Attempts, err = r.withRetry(ctx, op, a.Name, isRejected, func() error {
			var e error
			ch, e = client.CreateChannelFromService(ctx, a.ServiceID, a.Name, tags, a.Number)
			return e
		})
		if err == nil {
			item.Status = domain.StatusCreated
			item.ChannelID = ch.ID
		}
	case domain.ActionUpdate:
		op = catalog.OpUpdateChannel
		item.Attempts, err = r.withRetry(ctx, op, a.Name, nil, func() error {
			return client.UpdateChannel(ctx, a.ChannelID, tags, a.Number, a.Name)
		})
		if err == nil {
			item.Status = domain.StatusUpdated
		}
	default:
		err = fmt.Errorf("未知动作：%q", a.Kind)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("op", op).Str("service", a.ServiceID).Str("category", a.Category).Msg("目录写入失败，已跳过")
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeMutationFailed
		item.ErrorMsg = err.Error()
	}
	return item
}

// withRetry 最多尝试 1+MutationRetries 次；ctx 结束后不再重试。返回实际尝试次数。
// retryable 非空时，只有它认可的错误才会重试。
func (r *runner) withRetry(ctx context.Context, op, name string, retryable func(error) bool, fn func() error) (int, error) {
	max := 1 + r.eff.MutationRetries
	if max < 1 {
		max = 1
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		if err = fn(); err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return attempt, err
		}
		if retryable != nil && !retryable(err) {
			return attempt, err
		}
		if attempt < max {
			r.log.Warn().Err(err).Str("op", op).Str("name", name).Int("attempt", attempt).Msg("目录调用失败，重试")
		}
	}
	return max, err
}

// isRejected 判断目录是否明确拒绝了请求（非 2xx）。
func isRejected(err error) bool {
	return errors.Is(err, catalog.ErrStatus)
}

// sub 返回子组件 logger；注入了 Deps.Log 时沿用注入的输出。
func (r *runner) sub(component string) zerolog.Logger {
	if r.deps.Log != nil {
		return r.deps.Log.With().Str("component", component).Logger()
	}
	return log.WithComponent(component)
}

func (r *runner) fail(code, msg string) domain.RunReport {
	r.rr.OK = false
	r.rr.ErrorCode = code
	r.rr.ErrorMsg = msg
	r.rr.FinishedAt = time.Now().UTC()
	r.rr.Finalize()
	return r.rr
}

func (r *runner) phase(name string, fields map[string]any, dur time.Duration) {
	ev := r.log.Info().Str("phase", name).Dur("dur", dur)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("阶段完成")
	if r.obs != nil {
		r.obs.OnPhaseDone(name, fields, dur)
	}
}

// StatusLine 是单个动作的一行人类可读结果（进度状态与终端输出共用）。
func StatusLine(it domain.ItemResult) string {
	switch it.Status {
	case domain.StatusCreated:
		return fmt.Sprintf("已创建：%s（%s，score=%.2f）", it.Name, it.ServiceName, it.Score)
	case domain.StatusUpdated:
		return fmt.Sprintf("已更新：%s（%s，score=%.2f）", it.Name, it.ServiceName, it.Score)
	case domain.StatusPlanned:
		return fmt.Sprintf("计划%s：%s（%s，score=%.2f）", actionVerb(it.Action), it.Name, it.ServiceName, it.Score)
	case domain.StatusFailed:
		return fmt.Sprintf("写入失败：%s：%s", it.Name, it.ErrorMsg)
	}
	switch domain.SkipReason(it.Reason) {
	case domain.ReasonAlreadyConsumed:
		return fmt.Sprintf("重复，跳过：%s（服务 %s 已被使用）", it.Source, it.ServiceName)
	case domain.ReasonEmptyKey:
		return fmt.Sprintf("名称为空，跳过：%q", it.Source)
	case domain.ReasonBelowThreshold:
		return fmt.Sprintf("未找到（相似度不足）：%s", it.Source)
	default:
		return fmt.Sprintf("未找到：%s", it.Source)
	}
}

func actionVerb(action string) string {
	if domain.ActionKind(action) == domain.ActionUpdate {
		return "更新"
	}
	return "创建"
}

// NewFetcher 按配置构造列表抓取器：共享 HTTP 策略 + 页面缓存。
// 页面缓存在 dry-run 下同样可写：dry-run 只保证不改动目录。
func NewFetcher(eff config.EffectiveConfig, lg zerolog.Logger) ingest.Fetcher {
	hc := httpx.NewClient(httpx.Options{Timeout: eff.Fetch.Timeout, Rate: eff.Fetch.Rate})
	return ingest.CachedFetcher{
		Next:     ingest.HTTPFetcher{Client: hc},
		Store:    cache.New(eff.CacheDir, false),
		UseCache: eff.UseCache,
		Log:      lg,
	}
}

// NewCatalogClient 按配置构造目录客户端：离线 fixture 优先，否则连接 Tvheadend。
func NewCatalogClient(eff config.EffectiveConfig) (catalog.Client, error) {
	if p := strings.TrimSpace(eff.Catalog.Fixture); p != "" {
		c, err := memcatalog.Load(p)
		if err != nil {
			return nil, fmt.Errorf("读取离线目录失败：%w", err)
		}
		return c, nil
	}
	// 目录写操作不可重放：只对读请求重试，由 httpx 按方法判断。
	hc := httpx.NewClient(httpx.Options{Timeout: eff.Catalog.Timeout})
	c, err := tvh.New(eff.Catalog.URL, eff.Catalog.Username, eff.Catalog.Password, hc)
	if err != nil {
		return nil, err
	}
	return c, nil
}
