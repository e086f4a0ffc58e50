package run

import (
	"time"

	"github.com/John-Robertt/tvhbouquet/internal/config"
	"github.com/John-Robertt/tvhbouquet/internal/domain"
)

// Observer 用于把“运行进度/阶段/动作结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件全部来自执行 run 的那一个 goroutine；Observer 若转发到其他 goroutine，需自行同步。
// - OnProgress 的 percent 单调不减（0..100）。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnProgress 报告百分比与一行人类可读状态。
	OnProgress(percent int, status string)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnActionDone 在某个动作处理完成时调用（idx 从 1 开始）。
	OnActionDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

// 进度区间：前段留给抓取/快照/标签准备，18..90 按动作推进，90..100 留给收尾。
const (
	pctStart    = 0
	pctFetch    = 5
	pctFetched  = 15
	pctSnapshot = 16
	pctTags     = 18
	pctExecSpan = 72
	pctDone     = 100
)

// progress 保证上报的百分比单调不减。
type progress struct {
	obs  Observer
	last int
}

func (p *progress) report(percent int, status string) {
	if percent < p.last {
		percent = p.last
	}
	if percent > pctDone {
		percent = pctDone
	}
	p.last = percent
	if p.obs != nil {
		p.obs.OnProgress(percent, status)
	}
}

// execPercent 把“已处理动作数”映射到执行区间。
func execPercent(done, total int) int {
	if total <= 0 {
		return pctTags + pctExecSpan
	}
	return pctTags + done*pctExecSpan/total
}

// ingestPercent 把“已处理页面数”映射到抓取区间。
func ingestPercent(done, total int) int {
	if total <= 0 {
		return pctFetched
	}
	return pctFetch + done*(pctFetched-pctFetch)/total
}
