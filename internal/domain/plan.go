package domain

// ActionKind 是 ReconciliationAction 的变体标签。
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionSkip   ActionKind = "skip"
)

// Action 是计划中的一步操作（CreateChannel / UpdateChannel / SkipUnmatched 三选一）。
//
// 约束：
// - Create：ServiceID/Name/TagIDs/Number 有效
// - Update：ChannelID/Name/TagIDs/Number 有效（TagIDs = 现有标签 + 分类标签，去重）
// - Skip：Reason 有效
// - 同一 run 内，任何 ServiceID 至多出现在一个 Create/Update 中
type Action struct {
	Kind     ActionKind
	Category string
	Entry    RawChannelEntry

	ServiceID   string
	ServiceName string
	ChannelID   string

	Name   string
	Number int
	TagIDs []string

	Score  float64
	Reason SkipReason
}

// TagPlan 描述某个分类标签的解析结果。
type TagPlan struct {
	Name    string
	ID      string
	Created bool // 本次 run 新建
	Index   int  // 新建时的创建序号（从 0 开始）；复用时为 -1
	Err     error
}

// Plan 是 ReconciliationPlanner 的唯一产物。
type Plan struct {
	Tags    []TagPlan
	Actions []Action
}
