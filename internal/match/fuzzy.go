package match

import (
	"strings"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

// DefaultFuzzyThreshold 很低：fuzzy 策略本来就是宽松的。
const DefaultFuzzyThreshold = 0.05

// Fuzzy 用相似度在“尚未消费”的服务里找最佳候选。
//
// 约束：
// - 已消费服务在打分阶段就被排除（而不是打完分再剔除）
// - 分数相同时先遇到者胜（服务按快照顺序分组）
type Fuzzy struct {
	Threshold float64
}

func (Fuzzy) Name() string               { return "fuzzy" }
func (Fuzzy) KeyMode() normalize.KeyMode { return normalize.KeyFuzzy }

func (f Fuzzy) Bind(snap domain.Snapshot) Matcher {
	m := &fuzzyMatcher{threshold: f.Threshold, index: make(map[string]int)}
	for i := range snap.Services {
		svc := &snap.Services[i]
		key := normalize.ComparisonKey(svc.Name, normalize.KeyFuzzy)
		if key == "" {
			continue
		}
		gi, ok := m.index[key]
		if !ok {
			gi = len(m.groups)
			m.index[key] = gi
			m.groups = append(m.groups, fuzzyGroup{key: key})
		}
		m.groups[gi].services = append(m.groups[gi].services, svc)
	}
	return m
}

type fuzzyGroup struct {
	key      string
	services []*domain.ServiceRecord
}

type fuzzyMatcher struct {
	threshold float64
	groups    []fuzzyGroup
	index     map[string]int
}

func (m *fuzzyMatcher) Match(e domain.RawChannelEntry, consumed map[string]bool) domain.MatchResult {
	key := normalize.ComparisonKey(e.Name, normalize.KeyFuzzy)
	res := domain.MatchResult{Entry: e, Key: key}
	if key == "" {
		res.Reason = domain.ReasonEmptyKey
		return res
	}
	if len(m.groups) == 0 {
		res.Reason = domain.ReasonNoCandidate
		return res
	}

	variants := searchVariants(key)

	var (
		best      *domain.ServiceRecord
		bestScore float64
		// 不考虑消费状态时的最佳分数，用来区分 below_threshold 与 already_consumed。
		anyBest      *domain.ServiceRecord
		anyBestScore float64
	)
	for _, g := range m.groups {
		score := 0.0
		for _, v := range variants {
			if s := Ratio(v, g.key); s > score {
				score = s
			}
		}
		if score > anyBestScore {
			anyBestScore = score
			anyBest = g.services[0]
		}
		if score <= bestScore {
			continue
		}
		if svc := firstFree(g.services, consumed); svc != nil {
			best, bestScore = svc, score
		}
	}

	switch {
	case best != nil && bestScore >= m.threshold:
		res.Service = best
		res.Score = bestScore
		res.Matched = true
	case anyBest != nil && anyBestScore >= m.threshold && anyBestScore > bestScore:
		res.Service = anyBest
		res.Score = anyBestScore
		res.Reason = domain.ReasonAlreadyConsumed
	case best == nil && anyBest == nil:
		res.Reason = domain.ReasonNoCandidate
	default:
		res.Service = best
		res.Score = bestScore
		res.Reason = domain.ReasonBelowThreshold
	}
	return res
}

func searchVariants(key string) []string {
	candidates := []string{
		key,
		strings.ReplaceAll(key, " ", ""),
		strings.ReplaceAll(key, "+", " plus"),
		strings.ReplaceAll(key, "+", ""),
	}
	out := candidates[:0]
	seen := make(map[string]bool, len(candidates))
	for _, v := range candidates {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func firstFree(services []*domain.ServiceRecord, consumed map[string]bool) *domain.ServiceRecord {
	for _, s := range services {
		if !consumed[s.ID] {
			return s
		}
	}
	return nil
}
