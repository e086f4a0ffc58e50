package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
)

const DefaultMaxPages = 50

// Options 是 ListIngestor 的策略参数。
type Options struct {
	// Detectors 是分类检测器名字（colspan 总是第一个）。
	Detectors []string
	Numbering Numbering
	// MaxPages 限制一次 run 处理的页面总数（含种子页）；<=0 时使用 DefaultMaxPages。
	MaxPages int
}

// PageFunc 在每个页面处理完后回调（用于进度）：done 从 1 开始，total 含种子页。
type PageFunc func(done, total int, pageURL string, err error)

// Ingestor 负责“种子页 + 分页”的抓取与解析。
//
// 约束：
// - 种子页抓取/解析失败：返回错误，终止本次 run
// - 次级页面抓取失败：记 warn，跳过该页，继续
// - 页面按“种子页，然后文档顺序中发现的分页”处理，结果可复现
type Ingestor struct {
	Fetcher Fetcher
	Options Options
	Log     zerolog.Logger
	OnPage  PageFunc
}

func (in Ingestor) Ingest(ctx context.Context, seedURL string) (domain.Listing, error) {
	seedURL = strings.TrimSpace(seedURL)
	if seedURL == "" {
		return domain.Listing{}, errors.New("source_url 不能为空")
	}
	if in.Fetcher == nil {
		return domain.Listing{}, errors.New("fetcher 不能为空")
	}
	detectors, err := Detectors(in.Options.Detectors)
	if err != nil {
		return domain.Listing{}, err
	}
	maxPages := in.Options.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	b, err := in.Fetcher.Fetch(ctx, seedURL)
	if err != nil {
		return domain.Listing{}, err
	}
	seedDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return domain.Listing{}, fmt.Errorf("解析种子页 %s 失败：%w", seedURL, err)
	}

	pages := DiscoverPages(seedURL, seedDoc)
	if len(pages) > maxPages-1 {
		in.Log.Warn().Int("discovered", len(pages)).Int("max_pages", maxPages).Msg("分页数量超过上限，多余页面被忽略")
		pages = pages[:maxPages-1]
	}
	total := 1 + len(pages)

	p := NewParser(detectors, in.Options.Numbering)
	n := p.ParseDocument(seedDoc)
	in.Log.Info().Str("url", seedURL).Int("entries", n).Int("pages", total).Msg("种子页解析完成")
	in.notify(1, total, seedURL, nil)

	listing := domain.Listing{SourceURL: seedURL, Pages: []string{seedURL}}
	for i, u := range pages {
		if err := ctx.Err(); err != nil {
			return domain.Listing{}, err
		}
		doc, err := in.fetchDoc(ctx, u)
		if err != nil {
			in.Log.Warn().Err(err).Str("url", u).Msg("次级页面抓取失败，已跳过")
			listing.SkippedPages = append(listing.SkippedPages, u)
			in.notify(i+2, total, u, err)
			continue
		}
		n := p.ParseDocument(doc)
		in.Log.Debug().Str("url", u).Int("entries", n).Msg("页面解析完成")
		listing.Pages = append(listing.Pages, u)
		in.notify(i+2, total, u, nil)
	}

	listing.Groups = domain.GroupEntries(p.Entries())
	return listing, nil
}

func (in Ingestor) fetchDoc(ctx context.Context, u string) (*goquery.Document, error) {
	b, err := in.Fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(b))
}

func (in Ingestor) notify(done, total int, u string, err error) {
	if in.OnPage != nil {
		in.OnPage(done, total, u, err)
	}
}
