package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	StatusCreated   = "created"
	StatusUpdated   = "updated"
	StatusPlanned   = "planned"
	StatusUnmatched = "unmatched"
	StatusFailed    = "failed"
)

const (
	ErrCodeConfigInvalid  = "config_invalid"
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeSnapshotFailed = "snapshot_failed"
	ErrCodeMutationFailed = "mutation_failed"
	ErrCodeTagFailed      = "tag_failed"
	ErrCodeUnmatched      = "unmatched"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID     string `json:"run_id"`
	SourceURL string `json:"source_url"`
	DryRun    bool   `json:"dry_run"`
	Strategy  string `json:"strategy"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// OK=false 表示 run 被致命错误中止（配置/种子页/快照），此时 ErrorCode/ErrorMsg 非空。
	OK        bool   `json:"ok"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Pages   []string      `json:"pages"`
	Summary ReportSummary `json:"summary"`
	Tags    []TagResult   `json:"tags"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed   int `json:"processed"`
	Matched     int `json:"matched"`
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Unmatched   int `json:"unmatched"`
	Failed      int `json:"failed"`
	TagsCreated int `json:"tags_created"`
}

type TagResult struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Created bool   `json:"created"`
	Index   int    `json:"index"`
	// 新建失败时 ErrorCode=tag_failed；该分类的动作照常执行，只是不带分类标签。
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

type ItemResult struct {
	Number   int    `json:"number"`
	Category string `json:"category"`
	Source   string `json:"source"`
	Name     string `json:"name"`
	Action   string `json:"action"`
	Status   string `json:"status"`

	ServiceID    string  `json:"service_id"`
	ServiceName  string  `json:"service_name"`
	ChannelID    string  `json:"channel_id"`
	Score        float64 `json:"score"`
	FrequencyMHz int     `json:"frequency_mhz"`

	Reason    string `json:"reason"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Attempts  int    `json:"attempts"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC
// 2) summary 由 items/tags 计算得出（items 保持执行顺序，不排序：顺序本身可观察）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	if r.Tags == nil {
		r.Tags = []TagResult{}
	}
	if r.Pages == nil {
		r.Pages = []string{}
	}

	var s ReportSummary
	for _, it := range r.Items {
		s.Processed++
		switch it.Status {
		case StatusCreated:
			s.Matched++
			s.Created++
		case StatusUpdated:
			s.Matched++
			s.Updated++
		case StatusPlanned:
			s.Matched++
			switch ActionKind(it.Action) {
			case ActionCreate:
				s.Created++
			case ActionUpdate:
				s.Updated++
			}
		case StatusFailed:
			// 匹配成功但写入失败：计入 matched 与 failed，不计入 unmatched。
			s.Matched++
			s.Failed++
		case StatusUnmatched:
			s.Unmatched++
		}
	}
	for _, t := range r.Tags {
		if t.Created && t.ErrorMsg == "" {
			s.TagsCreated++
		}
	}
	r.Summary = s
}

// Text 返回给人看的纯文本摘要（终端与“完成”信号使用）。
func (r RunReport) Text() string {
	if !r.OK {
		return fmt.Sprintf("导入失败：%s %s", r.ErrorCode, r.ErrorMsg)
	}
	mode := "apply"
	if r.DryRun {
		mode = "dry-run"
	}
	return fmt.Sprintf("导入完成（%s）：processed=%d matched=%d created=%d updated=%d unmatched=%d failed=%d tags_created=%d",
		mode,
		r.Summary.Processed, r.Summary.Matched, r.Summary.Created, r.Summary.Updated,
		r.Summary.Unmatched, r.Summary.Failed, r.Summary.TagsCreated,
	)
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
