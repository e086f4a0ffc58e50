package domain

// UncategorizedCategory 是未出现任何分类标题行时的默认分类名。
const UncategorizedCategory = "Bez kategorii"

// Quality 是频道画质标记（可为空）。
type Quality string

const (
	QualitySD  Quality = "SD"
	QualityHD  Quality = "HD"
	QualityUHD Quality = "UHD"
	Quality4K  Quality = "4K"
)

// Polarization 是卫星转发器极化方向（V/H/L/R，可为空）。
type Polarization string

const (
	PolarizationV Polarization = "V"
	PolarizationH Polarization = "H"
	PolarizationL Polarization = "L"
	PolarizationR Polarization = "R"
)

// TechnicalFields 是从一行文本中“提取”（不修改原文）得到的技术参数。
// 字段均保持抓取到的原始字面量（例如频率 "11,508"），换算由使用方负责。
type TechnicalFields struct {
	Frequency    string
	Polarization Polarization
	SymbolRate   string
	FEC          string
	Modulation   string
	Quality      Quality
}

// RawChannelEntry 是列表页中一行频道数据的解析结果。
//
// 约束：
// - 每个表格行最多产生一个 entry；创建后不再修改（需要改编号时复制一份）
// - Name 已经过 CleanDisplayName；DisplayText 保留去掉序号前缀后的原文
// - Number 可能为 0，表示编号延后到全局编号阶段
type RawChannelEntry struct {
	DisplayText string
	Name        string
	Category    string
	Number      int

	TechnicalFields
}

// WithNumber 返回编号替换后的副本。
func (e RawChannelEntry) WithNumber(n int) RawChannelEntry {
	e.Number = n
	return e
}

// Group 是同一分类下按出现顺序排列的 entry。
type Group struct {
	Category string
	Entries  []RawChannelEntry
}

// Listing 是一次解析的全部结果：分类按首次出现顺序排列。
type Listing struct {
	SourceURL string
	// Pages 是成功解析的页面（种子页在前）；SkippedPages 是抓取失败被跳过的次级页面。
	Pages        []string
	SkippedPages []string
	Groups       []Group
}

// Len 返回 entry 总数。
func (l Listing) Len() int {
	n := 0
	for _, g := range l.Groups {
		n += len(g.Entries)
	}
	return n
}

// Entries 按“分类首次出现顺序 + 分类内顺序”展开全部 entry。
func (l Listing) Entries() []RawChannelEntry {
	out := make([]RawChannelEntry, 0, l.Len())
	for _, g := range l.Groups {
		out = append(out, g.Entries...)
	}
	return out
}

// GroupEntries 把扁平 entry 按分类重新分组，分类顺序为首次出现顺序。
func GroupEntries(entries []RawChannelEntry) []Group {
	index := make(map[string]int, 16)
	groups := make([]Group, 0, 16)
	for _, e := range entries {
		i, ok := index[e.Category]
		if !ok {
			i = len(groups)
			index[e.Category] = i
			groups = append(groups, Group{Category: e.Category})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	return groups
}
