package domain

// SkipReason 说明一个 entry 为什么没有匹配到服务。
type SkipReason string

const (
	ReasonNone            SkipReason = ""
	ReasonNoCandidate     SkipReason = "no_candidate"
	ReasonBelowThreshold  SkipReason = "below_threshold"
	ReasonEmptyKey        SkipReason = "empty_key"
	ReasonAlreadyConsumed SkipReason = "already_consumed"
)

// MatchResult 把一个 entry 与至多一个服务配对。
//
// Score 的语义取决于策略：fuzzy 为相似度，exact/freq 命中时恒为 1.0。
// Service 为空时 Matched 必为 false；Matched=false 时 Service 可以非空
// （例如 already_consumed：记录“本该命中”的那个服务，便于解释）。
type MatchResult struct {
	Entry   RawChannelEntry
	Service *ServiceRecord
	Score   float64
	Matched bool
	Reason  SkipReason

	// Key 是策略实际使用的比较键（用于进度输出与报告）。
	Key string
}
