package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

// Numbering 决定编号在哪个阶段分配。
type Numbering string

const (
	// NumberPerCategory：解析时按分类递增编号。
	NumberPerCategory Numbering = "per_category"
	// NumberGlobal：解析时不编号（Number=0），由规划阶段在去重合并后统一编 1..N。
	NumberGlobal Numbering = "global"
)

func ParseNumbering(s string) (Numbering, error) {
	switch Numbering(strings.ToLower(strings.TrimSpace(s))) {
	case NumberPerCategory:
		return NumberPerCategory, nil
	case NumberGlobal:
		return NumberGlobal, nil
	default:
		return "", fmt.Errorf("numbering 只能是 per_category 或 global，实际是 %q", s)
	}
}

const minNameRunes = 3

var (
	junkNameRE = regexp.MustCompile(`^[\s\-_=]+$`)
	digitsRE   = regexp.MustCompile(`^\d+$`)

	// 列表里反复出现的表头式文字（不是数据行）。
	markerPhrases = []string{
		"nr nazwa", "rozdzielczość parametry", "parametry techniczne",
		"no. name", "resolution parameters",
	}
)

// Parser 把一个或多个文档的表格行转换为 entry；分类与编号状态跨表格、跨页面延续。
//
// 约束：
// - 表格内的列下标（名称列/频率列）只在该表格内有效
// - 行级问题一律跳过该行，不返回错误
type Parser struct {
	detectors []CategoryDetector
	numbering Numbering

	category string
	counters map[string]int
	entries  []domain.RawChannelEntry
}

func NewParser(detectors []CategoryDetector, numbering Numbering) *Parser {
	if len(detectors) == 0 {
		detectors = []CategoryDetector{colspanDetector{}}
	}
	if numbering == "" {
		numbering = NumberPerCategory
	}
	return &Parser{
		detectors: detectors,
		numbering: numbering,
		category:  domain.UncategorizedCategory,
		counters:  make(map[string]int),
	}
}

// Entries 返回到目前为止解析出的 entry（文档顺序）。
func (p *Parser) Entries() []domain.RawChannelEntry { return p.entries }

// ParseDocument 解析文档里的所有表格（文档顺序），返回本文档新增的 entry 数。
func (p *Parser) ParseDocument(doc *goquery.Document) int {
	before := len(p.entries)
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		p.parseTable(table)
	})
	return len(p.entries) - before
}

func (p *Parser) parseTable(table *goquery.Selection) {
	nameCol, freqCol := -1, -1

	// 嵌套表格的行归属于内层表格，由内层表格自己处理。
	table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(table)
	}).Each(func(_ int, tr *goquery.Selection) {
		r := newRow(tr)
		if len(r.Cells) == 0 || r.Text == "" {
			return
		}

		if isHeaderRow(r) {
			nameCol, freqCol = headerColumns(r)
			return
		}

		for _, d := range p.detectors {
			if cat, ok := d.Detect(r); ok {
				p.category = cat
				return
			}
		}

		if len(r.Cells) < 2 {
			return
		}
		p.parseChannelRow(r, nameCol, freqCol)
	})
}

func (p *Parser) parseChannelRow(r Row, nameCol, freqCol int) {
	rawName := r.Text
	if nameCol >= 0 && nameCol < len(r.Texts) {
		rawName = r.Texts[nameCol]
	}
	freqText := ""
	if freqCol >= 0 && freqCol < len(r.Texts) {
		freqText = r.Texts[freqCol]
	}

	if rawName == "" || digitsRE.MatchString(rawName) || junkNameRE.MatchString(rawName) {
		return
	}
	if len([]rune(rawName)) < minNameRunes {
		return
	}
	lower := strings.ToLower(r.Text)
	for _, m := range markerPhrases {
		if strings.Contains(lower, m) {
			return
		}
	}

	display := normalize.StripOrdinal(rawName)
	name := normalize.CleanDisplayName(display)
	if name == "" {
		return
	}

	e := domain.RawChannelEntry{
		DisplayText:     display,
		Name:            name,
		Category:        p.category,
		TechnicalFields: normalize.ExtractTechnicalFields(display, freqText),
	}
	if p.numbering == NumberPerCategory {
		p.counters[p.category]++
		e.Number = p.counters[p.category]
	}
	p.entries = append(p.entries, e)
}
