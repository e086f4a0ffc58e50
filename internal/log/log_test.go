package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigure_LevelAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "WARN", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("ingest")
	l.Info().Msg("hidden")
	l.Warn().Str("url", "https://example.com").Msg("page skipped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("期望只输出 1 行（warn），实际 %d 行：%q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("期望 JSON 行：%v", err)
	}
	if rec["component"] != "ingest" || rec["level"] != "warn" || rec["url"] != "https://example.com" {
		t.Fatalf("字段不符合预期：%v", rec)
	}
}

func TestConfigure_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "loud", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	l := Base()
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	if !strings.Contains(buf.String(), "shown") || strings.Contains(buf.String(), "hidden") {
		t.Fatalf("非法级别应回退为 info：%q", buf.String())
	}
}
