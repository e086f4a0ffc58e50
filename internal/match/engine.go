package match

import "github.com/John-Robertt/tvhbouquet/internal/domain"

// Engine 持有一次运行的消费集合：同一服务在一次运行内最多被匹配一次。
type Engine struct {
	matcher  Matcher
	consumed map[string]bool
}

func NewEngine(s Strategy, snap domain.Snapshot) *Engine {
	return &Engine{
		matcher:  s.Bind(snap),
		consumed: make(map[string]bool),
	}
}

// Match 判定单个 entry；命中时立即把服务标记为已消费。
func (e *Engine) Match(entry domain.RawChannelEntry) domain.MatchResult {
	r := e.matcher.Match(entry, e.consumed)
	if r.Matched && r.Service != nil {
		if e.consumed[r.Service.ID] {
			// Matcher 违反约束时按重复处理，保证消费不变量。
			return domain.MatchResult{
				Entry:   entry,
				Service: r.Service,
				Score:   r.Score,
				Key:     r.Key,
				Reason:  domain.ReasonAlreadyConsumed,
			}
		}
		e.consumed[r.Service.ID] = true
	}
	return r
}

// Consumed 返回已消费服务数。
func (e *Engine) Consumed() int { return len(e.consumed) }

// MatchAll 按给定顺序逐个判定（顺序决定消费优先级）。
func MatchAll(s Strategy, snap domain.Snapshot, entries []domain.RawChannelEntry) []domain.MatchResult {
	eng := NewEngine(s, snap)
	out := make([]domain.MatchResult, 0, len(entries))
	for _, entry := range entries {
		out = append(out, eng.Match(entry))
	}
	return out
}
