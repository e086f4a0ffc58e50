package domain

// ServiceRecord 是目录（catalog）中的一个可调谐服务。
// 整个 run 期间只读：快照在开始时拉取一次，之后不再刷新。
type ServiceRecord struct {
	ID          string
	Name        string
	MultiplexID string
}

// ChannelRecord 是目录中已存在（或刚创建）的频道。
type ChannelRecord struct {
	ID         string
	Name       string
	Number     int
	ServiceIDs []string
	TagIDs     []string
}

// TagRecord 是目录中的标签（name <-> id）。
type TagRecord struct {
	ID   string
	Name string
}

// Snapshot 是一次 run 的唯一事实来源（services/channels/tags/multiplex 频率）。
//
// 约束：只读；任何组件都不允许就地修改其中的切片或 map。
type Snapshot struct {
	Services []ServiceRecord
	Channels []ChannelRecord
	Tags     []TagRecord

	// MultiplexMHz 是 multiplex id -> 频率（整 MHz）。能力缺失时为空 map。
	MultiplexMHz map[string]int
}

// ChannelsByService 建立 service id -> 现有频道 的索引（同一 service 出现多次时后者覆盖前者）。
func (s Snapshot) ChannelsByService() map[string]ChannelRecord {
	out := make(map[string]ChannelRecord, len(s.Channels))
	for _, ch := range s.Channels {
		for _, id := range ch.ServiceIDs {
			out[id] = ch
		}
	}
	return out
}

// TagsByName 建立 tag name -> id 的索引（同名时保留首个）。
func (s Snapshot) TagsByName() map[string]string {
	out := make(map[string]string, len(s.Tags))
	for _, t := range s.Tags {
		if _, ok := out[t.Name]; ok {
			continue
		}
		out[t.Name] = t.ID
	}
	return out
}
