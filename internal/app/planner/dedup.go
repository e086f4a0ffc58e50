package planner

import (
	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

// Dedup 跨分类按比较键去重，保留首次出现者，并按首次出现顺序重新编号 1..N。
//
// 约束：
// - 输出中任意两个 entry 的比较键不同；len(out) <= len(in)
// - 比较键为空的 entry 被丢弃
// - 输入顺序即“首次出现”顺序（调用方传入按分类展开后的序列）
func Dedup(entries []domain.RawChannelEntry, mode normalize.KeyMode) []domain.RawChannelEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]domain.RawChannelEntry, 0, len(entries))
	for _, e := range entries {
		key := normalize.ComparisonKey(e.Name, mode)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e.WithNumber(len(out)+1))
	}
	return out
}

// NumberGlobal 按给定顺序编号 1..N（不去重）。
func NumberGlobal(entries []domain.RawChannelEntry) []domain.RawChannelEntry {
	out := make([]domain.RawChannelEntry, 0, len(entries))
	for i, e := range entries {
		out = append(out, e.WithNumber(i+1))
	}
	return out
}
