package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/John-Robertt/tvhbouquet/internal/config"
	"github.com/John-Robertt/tvhbouquet/internal/domain"
)

func TestProgressUI_Lines(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.tickerInterval = time.Hour

	ui.OnStart(config.EffectiveConfig{
		SourceURL: "https://example.test/lista",
		Strategy:  "fuzzy",
		Catalog: config.CatalogConfig{
			URL:      "http://tvh.local:9981",
			Username: "admin",
			Password: "secret",
			Timeout:  3 * time.Second,
		},
	})
	ui.OnProgress(5, "抓取频道列表")
	ui.OnPhaseDone("plan", map[string]any{"strategy": "fuzzy", "entries": 3, "actions": 2, "tags": 1}, time.Second)
	ui.OnActionDone(1, 2, domain.ItemResult{
		Status: domain.StatusCreated, Name: "Polsat Sport HD", ServiceName: "Polsat Sport HD", Score: 1,
	}, time.Millisecond)
	ui.OnProgress(54, "中间状态")
	ui.OnActionDone(2, 2, domain.ItemResult{
		Status: domain.StatusFailed, Name: "TVN24", ErrorMsg: "boom", Attempts: 2,
	}, time.Millisecond)
	ui.OnPhaseDone("exec", map[string]any{"actions": 2}, time.Second)
	ui.OnProgress(100, "导入完成")
	ui.Close()
	ui.Close()

	out := buf.String()
	for _, want := range []string{
		"tvhbouquet run (dry-run)",
		"strategy: fuzzy (threshold=0.00)",
		"catalog: http://tvh.local:9981 (auth=on, timeout=3s)",
		"[  5%] 抓取频道列表",
		"规划: strategy=fuzzy entries=3 actions=2 tags=1",
		"[1/2] OK 已创建：Polsat Sport HD",
		"[2/2] FAIL 写入失败：TVN24：boom attempts=2",
		"执行: actions=2 ok=1 fail=1 skip=0",
		"[100%] 导入完成",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("期望输出包含 %q，实际：\n%s", want, out)
		}
	}
	if strings.Contains(out, "中间状态") {
		t.Fatalf("执行阶段不应重复输出 OnProgress：\n%s", out)
	}
	if strings.Contains(out, "secret") {
		t.Fatalf("不应回显密码：\n%s", out)
	}
}

func TestProgressUI_Keepalive(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.tickerInterval = 5 * time.Millisecond
	ui.keepaliveThreshold = time.Millisecond

	ui.OnStart(config.EffectiveConfig{Strategy: "freq"})
	ui.OnPhaseDone("plan", map[string]any{"actions": 3}, 0)

	deadline := time.Now().Add(2 * time.Second)
	for {
		ui.mu.Lock()
		out := buf.String()
		ui.mu.Unlock()
		if strings.Contains(out, "进度: done=0/3") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("期望出现 keepalive 行，实际：\n%s", out)
		}
		time.Sleep(5 * time.Millisecond)
	}
	ui.Close()
}

func TestFormatCatalog(t *testing.T) {
	if got := formatCatalog(config.CatalogConfig{Fixture: "/tmp/catalog.json"}); got != "offline (/tmp/catalog.json)" {
		t.Fatalf("fixture 显示不符合预期：%q", got)
	}
	if got := formatCatalog(config.CatalogConfig{}); got != "off" {
		t.Fatalf("空配置应显示 off，实际=%q", got)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatElapsed(3723 * time.Second); got != "01:02:03" {
		t.Fatalf("formatElapsed 不符合预期：%q", got)
	}
	if got := truncate("Polsat Sport Premium 1 HD", 10); got != "Polsat ..." {
		t.Fatalf("truncate 不符合预期：%q", got)
	}
	if got := truncate("Żużel", 10); got != "Żużel" {
		t.Fatalf("短字符串不应截断：%q", got)
	}
	if got := intField(map[string]any{"n": int64(7), "s": "x"}, "n"); got != 7 {
		t.Fatalf("intField 不符合预期：%d", got)
	}
	if got := intField(nil, "n"); got != 0 {
		t.Fatalf("nil map 应返回 0，实际=%d", got)
	}
}
