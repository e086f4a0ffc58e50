package planner

import (
	"fmt"
	"slices"
	"strings"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

// NameSource 决定频道最终使用哪个名字。
type NameSource string

const (
	// NameFromService：清洗后的目录服务名。
	NameFromService NameSource = "service"
	// NameFromRemote：清洗后的列表名。
	NameFromRemote NameSource = "remote"
)

func ParseNameSource(s string) (NameSource, error) {
	switch NameSource(strings.ToLower(strings.TrimSpace(s))) {
	case NameFromService:
		return NameFromService, nil
	case NameFromRemote:
		return NameFromRemote, nil
	default:
		return "", fmt.Errorf("name_source 只能是 service 或 remote，实际是 %q", s)
	}
}

// Options 是规划策略。
type Options struct {
	NameSource NameSource
	// CreateTags=false 时既不复用也不创建分类标签。
	CreateTags bool
}

// Build 基于匹配结果与目录快照生成确定性的计划（不做任何目录调用）。
//
// 约束：
// - 动作按“分类首次出现顺序 + 分类内 entry 顺序”排列
// - 每个分类至多一个 TagPlan；新建标签的 Index 按首次出现顺序从 0 递增
// - Update 的 TagIDs 是频道现有标签；分类标签在执行阶段用 WithTag 幂等追加
func Build(results []domain.MatchResult, snap domain.Snapshot, opts Options) domain.Plan {
	if opts.NameSource == "" {
		opts.NameSource = NameFromService
	}

	byCategory := make(map[string][]domain.MatchResult, 16)
	var order []string
	for _, r := range results {
		c := r.Entry.Category
		if _, ok := byCategory[c]; !ok {
			order = append(order, c)
		}
		byCategory[c] = append(byCategory[c], r)
	}

	var plan domain.Plan
	if opts.CreateTags {
		plan.Tags = planTags(order, snap.TagsByName())
	}

	channels := snap.ChannelsByService()
	for _, c := range order {
		for _, r := range byCategory[c] {
			plan.Actions = append(plan.Actions, decide(r, channels, opts))
		}
	}
	return plan
}

func planTags(categories []string, existing map[string]string) []domain.TagPlan {
	out := make([]domain.TagPlan, 0, len(categories))
	next := 0
	for _, c := range categories {
		if id, ok := existing[c]; ok {
			out = append(out, domain.TagPlan{Name: c, ID: id, Index: -1})
			continue
		}
		out = append(out, domain.TagPlan{Name: c, Created: true, Index: next})
		next++
	}
	return out
}

func decide(r domain.MatchResult, channels map[string]domain.ChannelRecord, opts Options) domain.Action {
	a := domain.Action{
		Category: r.Entry.Category,
		Entry:    r.Entry,
		Number:   r.Entry.Number,
		Score:    r.Score,
	}
	if r.Service != nil {
		a.ServiceID = r.Service.ID
		a.ServiceName = r.Service.Name
	}
	if !r.Matched || r.Service == nil {
		a.Kind = domain.ActionSkip
		a.Name = r.Entry.Name
		a.Reason = r.Reason
		if a.Reason == domain.ReasonNone {
			a.Reason = domain.ReasonNoCandidate
		}
		return a
	}

	a.Name = chooseName(r, opts.NameSource)
	if ch, ok := channels[r.Service.ID]; ok {
		a.Kind = domain.ActionUpdate
		a.ChannelID = ch.ID
		a.TagIDs = slices.Clone(ch.TagIDs)
		return a
	}
	a.Kind = domain.ActionCreate
	return a
}

func chooseName(r domain.MatchResult, src NameSource) string {
	if src == NameFromService {
		if n := normalize.CleanDisplayName(r.Service.Name); n != "" {
			return n
		}
	}
	return r.Entry.Name
}

// WithTag 返回追加 tagID 后的标签集合（已存在或为空时不追加）；不修改入参。
func WithTag(tagIDs []string, tagID string) []string {
	out := make([]string, 0, len(tagIDs)+1)
	out = append(out, tagIDs...)
	if tagID == "" || slices.Contains(out, tagID) {
		return out
	}
	return append(out, tagID)
}
