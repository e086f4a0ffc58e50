package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Row 是一个表格行的只读视图。
type Row struct {
	Cells []*goquery.Selection
	// Texts[i] 是第 i 个单元格的文本（文本节点以单个空格连接）。
	Texts []string
	// Text 是全部单元格文本以空格连接的结果。
	Text string
}

func newRow(tr *goquery.Selection) Row {
	var r Row
	tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
		r.Cells = append(r.Cells, cell)
		r.Texts = append(r.Texts, cellText(cell))
	})
	r.Text = strings.TrimSpace(strings.Join(nonEmpty(r.Texts), " "))
	return r
}

// cellText 按文档顺序收集文本节点，逐个去掉首尾空白后以单个空格连接。
// 行内多余空白（含 &nbsp;）折叠为一个空格；script/style 不计入。
func cellText(s *goquery.Selection) string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
			*parts = append(*parts, t)
		}
		return
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

func nonEmpty(ss []string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
