package ingest

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var pageSuffixRE = regexp.MustCompile(`-\d+$`)

// DiscoverPages 在种子页里找分页链接，按文档顺序返回（不含种子页本身，已去重）。
//
// 两种策略取并集：
// - href 含 "page="（不区分大小写）
// - 同域链接，其路径去掉扩展名与 "-数字" 后缀后等于种子页的同样处理结果（"lista-2.html" 形式）
func DiscoverPages(seedURL string, doc *goquery.Document) []string {
	seed, err := url.Parse(seedURL)
	if err != nil || doc == nil {
		return nil
	}
	seedKey := canonical(seed)
	seedRoot := pageRoot(seed.Path)

	seen := map[string]bool{seedKey: true}
	var out []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := seed.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		key := canonical(abs)
		if seen[key] {
			return
		}

		isPage := strings.Contains(strings.ToLower(href), "page=")
		if !isPage && sameHost(seed, abs) && abs.Path != seed.Path {
			isPage = pageRoot(abs.Path) == seedRoot
		}
		if !isPage {
			return
		}
		seen[key] = true
		out = append(out, key)
	})
	return out
}

// pageRoot 去掉最后一段路径的扩展名以及 "-数字" 分页后缀。
func pageRoot(p string) string {
	dir, file := path.Split(p)
	if ext := path.Ext(file); ext != "" {
		file = strings.TrimSuffix(file, ext)
	}
	return dir + pageSuffixRE.ReplaceAllString(file, "")
}

func canonical(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

func sameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
