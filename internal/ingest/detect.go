package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// CategoryDetector 判断一行是否是分类标题行，是则返回分类名。
//
// 约束：
// - 纯函数，只读 Row
// - 检测器按固定优先级依次尝试，第一个命中者生效；colspan 永远排第一
type CategoryDetector interface {
	Name() string
	Detect(r Row) (category string, ok bool)
}

// 分类名必须“多于 2 个字符”。
const minCategoryRunes = 3

const DetectorColspan = "colspan"

// Detectors 按名字构造检测器列表：去重，colspan 总是放在第一位（即使未列出）。
func Detectors(names []string) ([]CategoryDetector, error) {
	all := map[string]CategoryDetector{
		DetectorColspan: colspanDetector{},
		"th":            thDetector{},
		"class":         classDetector{},
		"bold":          boldDetector{},
		"keyword":       keywordDetector{},
	}

	out := []CategoryDetector{colspanDetector{}}
	seen := map[string]bool{DetectorColspan: true}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		d, ok := all[n]
		if !ok {
			return nil, fmt.Errorf("未知分类检测器：%q（可选：colspan, th, class, bold, keyword）", n)
		}
		seen[n] = true
		out = append(out, d)
	}
	return out, nil
}

func longEnough(s string) bool { return utf8.RuneCountInString(s) >= minCategoryRunes }

// colspanDetector：恰好一个带 colspan 属性的单元格。
type colspanDetector struct{}

func (colspanDetector) Name() string { return DetectorColspan }

func (colspanDetector) Detect(r Row) (string, bool) {
	if len(r.Cells) != 1 {
		return "", false
	}
	if _, ok := r.Cells[0].Attr("colspan"); !ok {
		return "", false
	}
	if !longEnough(r.Texts[0]) {
		return "", false
	}
	return r.Texts[0], true
}

// thDetector：首个单元格是 <th>。
type thDetector struct{}

func (thDetector) Name() string { return "th" }

func (thDetector) Detect(r Row) (string, bool) {
	if len(r.Cells) == 0 || !longEnough(r.Text) {
		return "", false
	}
	if goquery.NodeName(r.Cells[0]) != "th" {
		return "", false
	}
	return r.Text, true
}

// classDetector：首个单元格的 class 提示这是标题。
type classDetector struct{}

var headerClasses = map[string]bool{"header": true, "category": true, "group": true, "title": true}

func (classDetector) Name() string { return "class" }

func (classDetector) Detect(r Row) (string, bool) {
	if len(r.Cells) == 0 || !longEnough(r.Text) {
		return "", false
	}
	cls, _ := r.Cells[0].Attr("class")
	for _, c := range strings.Fields(strings.ToLower(cls)) {
		if headerClasses[c] {
			return r.Text, true
		}
	}
	return "", false
}

// boldDetector：首个单元格里的 <strong>/<b> 覆盖整行文本的 80% 以上。
type boldDetector struct{}

func (boldDetector) Name() string { return "bold" }

func (boldDetector) Detect(r Row) (string, bool) {
	if len(r.Cells) == 0 || !longEnough(r.Text) {
		return "", false
	}
	b := r.Cells[0].Find("strong, b").First()
	if b.Length() == 0 {
		return "", false
	}
	bold := utf8.RuneCountInString(cellText(b))
	if float64(bold) < 0.8*float64(utf8.RuneCountInString(r.Text)) {
		return "", false
	}
	return r.Text, true
}

// keywordDetector：整行没有任何卫星参数，且含分类关键词或看起来像短标题。
type keywordDetector struct{}

var (
	techFrequencyRE = regexp.MustCompile(`\d{1,2}[.,]\d{3}`)
	techSymbolRE    = regexp.MustCompile(`\b\d{5}\b`)
	techPolRE       = regexp.MustCompile(`\b[VHLR]\b`)
	techModRE       = regexp.MustCompile(`(?i)DVB-[ST]`)
	leadingNumberRE = regexp.MustCompile(`^\d+\.?\s+`)

	categoryKeywords = []string{
		"pakiet", "kanały", "kanaly", "sport", "filmowe", "informacyjne",
		"muzyczne", "dziecięce", "lifestyle", "dokumentalne", "premium",
		"podstawowe", "rozszerzone", "dodatkowe", "hd", "sd", "ultra",
	}
)

func (keywordDetector) Name() string { return "keyword" }

func (keywordDetector) Detect(r Row) (string, bool) {
	t := r.Text
	if !longEnough(t) {
		return "", false
	}
	if techFrequencyRE.MatchString(t) || techSymbolRE.MatchString(t) || techPolRE.MatchString(t) || techModRE.MatchString(t) {
		return "", false
	}
	lower := strings.ToLower(t)
	for _, kw := range categoryKeywords {
		if strings.Contains(lower, kw) {
			return t, true
		}
	}
	if len(strings.Fields(t)) <= 5 && utf8.RuneCountInString(t) < 50 && !leadingNumberRE.MatchString(t) {
		return t, true
	}
	return "", false
}

// 表头关键词：短词只按整词匹配，长词按词前缀匹配。
var (
	headerShortKeywords = []string{"nr", "lp", "tp", "sr", "pol", "no"}
	headerLongKeywords  = []string{
		"nazwa", "name", "częstotliwość", "czestotliwosc", "freq", "transponder",
		"dostawca", "provider", "rozdzielczość", "rozdzielczosc", "resolution",
		"parametry", "parameters", "number", "polaryzacja", "polarization", "symbol",
	}
)

const minHeaderHits = 2

// isHeaderRow 统计命中的不同表头关键词个数；>= 2 视为列标题行。
func isHeaderRow(r Row) bool {
	words := strings.FieldsFunc(strings.ToLower(r.Text), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
	if len(words) == 0 {
		return false
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}

	hits := 0
	for _, kw := range headerShortKeywords {
		if set[kw] {
			hits++
		}
	}
	for _, kw := range headerLongKeywords {
		for _, w := range words {
			if strings.HasPrefix(w, kw) {
				hits++
				break
			}
		}
	}
	return hits >= minHeaderHits
}

// headerColumns 返回名称列与频率列的下标（-1 表示未找到；多个候选时取最后一个）。
func headerColumns(r Row) (nameCol, freqCol int) {
	nameCol, freqCol = -1, -1
	for i, t := range r.Texts {
		t = strings.ToLower(t)
		if (strings.Contains(t, "nazwa") || strings.Contains(t, "name")) &&
			!strings.Contains(t, "pakiet") && !strings.Contains(t, "package") &&
			!strings.Contains(t, "gatunek") && !strings.Contains(t, "genre") {
			nameCol = i
		}
		if strings.Contains(t, "freq") || strings.Contains(t, "częstotliwość") || strings.Contains(t, "czestotliwosc") {
			freqCol = i
		}
	}
	return nameCol, freqCol
}
