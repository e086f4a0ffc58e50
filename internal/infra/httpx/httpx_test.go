package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{})
	if c.Timeout != DefaultTimeout {
		t.Fatalf("期望默认超时 %v，实际 %v", DefaultTimeout, c.Timeout)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Limiter != nil {
		t.Fatalf("Rate=0 时不应限速")
	}
	if tr.RetryMax != defaultRetryMax {
		t.Fatalf("期望默认重试 %d，实际 %d", defaultRetryMax, tr.RetryMax)
	}
}

func TestNewClient_RateAndNoRetry(t *testing.T) {
	c := NewClient(Options{Timeout: 3 * time.Second, RetryMax: -1, Rate: 5})
	tr := c.Transport.(*Transport)
	if tr.Limiter == nil {
		t.Fatalf("Rate>0 时应限速")
	}
	if tr.RetryMax != 0 {
		t.Fatalf("RetryMax<0 时应不重试，实际 %d", tr.RetryMax)
	}
	if c.Timeout != 3*time.Second {
		t.Fatalf("期望超时 3s，实际 %v", c.Timeout)
	}
}

func TestTransport_SetsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := NewClient(Options{}).Get(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	_ = resp.Body.Close()

	got, _ := ua.Load().(string)
	if !strings.HasPrefix(got, "Mozilla/5.0") {
		t.Fatalf("期望 UA 池中的 UA，实际 %q", got)
	}
}
