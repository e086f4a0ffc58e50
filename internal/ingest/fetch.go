package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/tvhbouquet/internal/infra/cache"
)

// maxPageBytes 限制单个源页面的大小（频道列表页远小于该值）。
const maxPageBytes = 16 << 20

// Fetcher 负责“拿到页面字节”；解析逻辑不关心网络、缓存与限速。
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// FetchError 表示源页面抓取失败（网络错误、超时或非 2xx）。
// 种子页失败时终止 run；次级页面失败时记录并跳过。
type FetchError struct {
	URL        string
	StatusCode int // 0 表示未拿到响应
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("抓取 %s 失败：HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("抓取 %s 失败：%v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError 判断 err 链上是否有 FetchError。
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// HTTPFetcher 用共享 http.Client 抓取页面（无认证）。
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if f.Client == nil {
		return nil, &FetchError{URL: pageURL, Err: errors.New("http client 不能为空")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	return b, nil
}

// CachedFetcher 在 Next 之前查页面缓存，抓取成功后回写（缓存只读时跳过写入）。
//
// 约束：
// - UseCache=false 时不读缓存（仍然会在可写时回写，供下次使用）
// - 缓存读写失败只记日志，不影响抓取结果
type CachedFetcher struct {
	Next     Fetcher
	Store    cache.Store
	UseCache bool
	Log      zerolog.Logger
}

func (f CachedFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if f.UseCache {
		b, ok, err := f.Store.ReadPage(pageURL)
		switch {
		case err != nil:
			f.Log.Warn().Err(err).Str("url", pageURL).Msg("读取页面缓存失败")
		case ok:
			f.Log.Debug().Str("url", pageURL).Msg("页面缓存命中")
			return b, nil
		}
	}

	b, err := f.Next.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if !f.Store.ReadOnly && strings.TrimSpace(f.Store.Root) != "" {
		if werr := f.Store.WritePage(pageURL, b); werr != nil {
			f.Log.Warn().Err(werr).Str("url", pageURL).Msg("写入页面缓存失败")
		}
	}
	return b, nil
}
