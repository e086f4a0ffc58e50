package match

import (
	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

// Exact 用归一化键精确查表：命中即 1.0，不打分、无阈值。
//
// 约束：
// - 多个服务撞键时只保留快照中第一个（静默）
// - Mode 只接受 letters / letters_digits，其它值按 letters_digits 处理
type Exact struct {
	Mode normalize.KeyMode
}

func (Exact) Name() string { return "exact" }

func (x Exact) KeyMode() normalize.KeyMode {
	if x.Mode == normalize.KeyLetters {
		return normalize.KeyLetters
	}
	return normalize.KeyLettersDigits
}

func (x Exact) Bind(snap domain.Snapshot) Matcher {
	mode := x.KeyMode()
	byKey := make(map[string]*domain.ServiceRecord, len(snap.Services))
	for i := range snap.Services {
		svc := &snap.Services[i]
		key := normalize.ComparisonKey(svc.Name, mode)
		if key == "" {
			continue
		}
		if _, ok := byKey[key]; !ok {
			byKey[key] = svc
		}
	}
	return keyMatcher[string]{
		key: func(e domain.RawChannelEntry) (string, string) {
			k := normalize.ComparisonKey(e.Name, mode)
			return k, k
		},
		empty: func(k string) bool { return k == "" },
		byKey: byKey,
	}
}

// keyMatcher 是 exact/freq 共用的查表判定。
type keyMatcher[K comparable] struct {
	// key 返回查表键与用于展示的键文本。
	key   func(domain.RawChannelEntry) (K, string)
	empty func(K) bool
	byKey map[K]*domain.ServiceRecord
}

func (m keyMatcher[K]) Match(e domain.RawChannelEntry, consumed map[string]bool) domain.MatchResult {
	k, shown := m.key(e)
	res := domain.MatchResult{Entry: e, Key: shown}
	if m.empty(k) {
		res.Reason = domain.ReasonEmptyKey
		return res
	}
	svc, ok := m.byKey[k]
	if !ok {
		res.Reason = domain.ReasonNoCandidate
		return res
	}
	res.Service = svc
	res.Score = 1.0
	if consumed[svc.ID] {
		res.Reason = domain.ReasonAlreadyConsumed
		return res
	}
	res.Matched = true
	return res
}
