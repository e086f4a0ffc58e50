package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout  = 10 * time.Second
	defaultRetryMax = 2
)

// Options 控制共享 HTTP client 的网络策略。
type Options struct {
	// Timeout 是单次请求（含重试）的总超时；<=0 时使用 DefaultTimeout。
	Timeout time.Duration
	// RetryMax 是 GET/HEAD 的最大重试次数（不含首次）；<0 表示不重试，0 使用默认值。
	RetryMax int
	// Rate 是每秒请求数上限；<=0 表示不限速。
	Rate float64
}

// Transport 把“UA 池 + 限速 + 有界重试”固化为统一策略。
//
// 设计目标：ingest/catalog 只负责“请求什么 + 怎么解析”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// Limiter 为空表示不限速；每次尝试（包括重试）都要先拿令牌。
	Limiter *rate.Limiter

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(req.Context()); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", t.ua.random())
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// NewClient 构造源页面抓取与目录 API 共用的 HTTP client。
//
// 规则：
// - 内置 UA 池：每个请求随机 UA（调用方显式设置时不覆盖）
// - 可选限速 + 有界重试 + 总超时
func NewClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retry := opts.RetryMax
	switch {
	case retry == 0:
		retry = defaultRetryMax
	case retry < 0:
		retry = 0
	}

	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}

	tr := &Transport{
		Base:     base,
		ua:       globalUA,
		RetryMax: retry,
	}
	if opts.Rate > 0 {
		tr.Limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
