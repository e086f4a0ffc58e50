package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/tvhbouquet/internal/app/run"
	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/history"
	"github.com/John-Robertt/tvhbouquet/internal/infra/cache"
)

const listHTML = `<html><body><table>
<tr><td colspan="3">Sport</td></tr>
<tr><td>1</td><td>Polsat Sport HD</td><td>11,508 V 27500</td></tr>
<tr><td>2</td><td>Nieznany Program</td><td>12,000 H</td></tr>
</table></body></html>`

const catalogJSON = `{
  "services": [{"id": "s1", "name": "Polsat Sport HD", "multiplex_id": "m1"}],
  "channels": [],
  "tags": [{"id": "t1", "name": "Sport"}],
  "multiplexes": {"m1": 11508000}
}`

type env struct {
	dir     string
	config  string
	catalog string
	source  string
}

func newEnv(t *testing.T) env {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listHTML))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	e := env{
		dir:     dir,
		config:  filepath.Join(dir, "tvhbouquet.yaml"),
		catalog: filepath.Join(dir, "catalog.json"),
		source:  srv.URL + "/lista",
	}
	cfg := "cache_dir: " + filepath.Join(dir, "cache") + "\n" +
		"history_db: " + filepath.Join(dir, "runs.db") + "\n" +
		"fetch:\n  rate: 0\n"
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o644))
	require.NoError(t, os.WriteFile(e.catalog, []byte(catalogJSON), 0o644))
	return e
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestExecute_Version(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	require.Equal(t, 0, code)
	require.Equal(t, "tvhbouquet "+Version+"\n", out)
}

func TestExecute_RunDryRunOffline(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := runCLI(t, "run", e.source, "--config", e.config, "--offline-catalog", e.catalog)
	require.Equal(t, 0, code, "stderr=%s", errOut)

	// stdout 非 TTY：必须且仅输出一个 RunReport JSON。
	dec := json.NewDecoder(strings.NewReader(out))
	var rr domain.RunReport
	require.NoError(t, dec.Decode(&rr))
	require.False(t, dec.More(), "stdout 只应包含一个 JSON 值：%s", out)

	require.True(t, rr.OK)
	require.True(t, rr.DryRun)
	require.Equal(t, "freq", rr.Strategy)
	require.Equal(t, domain.ReportSummary{Processed: 2, Matched: 1, Created: 1, Unmatched: 1}, rr.Summary)
	require.Equal(t, domain.StatusPlanned, rr.Items[0].Status)
	require.Equal(t, "s1", rr.Items[0].ServiceID)
	require.Equal(t, domain.StatusUnmatched, rr.Items[1].Status)
	require.Contains(t, errOut, "导入完成（dry-run）")

	// dry-run 不落盘 report.json，但会记录运行历史。
	_, err := os.Stat(filepath.Join(e.dir, "cache", run.ReportFileName))
	require.True(t, os.IsNotExist(err), "dry-run 不应写 report.json")

	// dry-run 也回写页面缓存，之后 --use-cache 可以直接命中。
	_, cached, err := cache.New(filepath.Join(e.dir, "cache"), true).ReadPage(e.source)
	require.NoError(t, err)
	require.True(t, cached, "dry-run 应回写页面缓存")

	code, out, errOut = runCLI(t, "history", "--config", e.config)
	require.Equal(t, 0, code, "stderr=%s", errOut)
	var runs []history.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	require.Equal(t, rr.RunID, runs[0].RunID)
	require.True(t, runs[0].DryRun)

	code, out, errOut = runCLI(t, "history", "--config", e.config, "--run", rr.RunID)
	require.Equal(t, 0, code, "stderr=%s", errOut)
	var items []domain.ItemResult
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	require.Equal(t, "Polsat Sport HD", items[0].Name)
}

func TestExecute_RunApplyWritesReport(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := runCLI(t, "run", e.source, "--config", e.config, "--offline-catalog", e.catalog, "--apply")
	require.Equal(t, 0, code, "stderr=%s", errOut)

	var rr domain.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &rr))
	require.False(t, rr.DryRun)
	require.Equal(t, domain.StatusCreated, rr.Items[0].Status)
	require.Equal(t, 1, rr.Summary.Created)

	b, err := os.ReadFile(filepath.Join(e.dir, "cache", run.ReportFileName))
	require.NoError(t, err)
	var onDisk domain.RunReport
	require.NoError(t, json.Unmarshal(b, &onDisk))
	require.Equal(t, rr.RunID, onDisk.RunID)
}

func TestExecute_RunConfigError(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "tvhbouquet.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("strategy: magic\n"), 0o644))

	code, out, _ := runCLI(t, "run", "https://example.test/", "--config", cfg)
	require.Equal(t, 2, code)

	var rr domain.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &rr))
	require.False(t, rr.OK)
	require.Equal(t, "config_invalid", rr.ErrorCode)
	require.Equal(t, "https://example.test/", rr.SourceURL)
	require.True(t, rr.DryRun)
}

func TestExecute_Parse(t *testing.T) {
	e := newEnv(t)

	code, out, errOut := runCLI(t, "parse", e.source, "--config", e.config, "--numbering", "global")
	require.Equal(t, 0, code, "stderr=%s", errOut)

	var v listingView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.Len(t, v.Categories, 1)
	require.Equal(t, "Sport", v.Categories[0].Name)
	require.Len(t, v.Categories[0].Entries, 2)
	first := v.Categories[0].Entries[0]
	require.Equal(t, 1, first.Number)
	require.Equal(t, "Polsat Sport HD", first.Name)
	require.Equal(t, "11,508", first.Frequency)
	require.Equal(t, "V", first.Polarization)
	require.Equal(t, 2, v.Categories[0].Entries[1].Number)

	_, cached, err := cache.New(filepath.Join(e.dir, "cache"), true).ReadPage(e.source)
	require.NoError(t, err)
	require.True(t, cached, "parse 应回写页面缓存")
}

func TestExecute_HistoryRequiresDB(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "tvhbouquet.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log_level: warn\n"), 0o644))

	code, _, errOut := runCLI(t, "history", "--config", cfg)
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "history_db")
}

func TestExecute_UnknownFlag(t *testing.T) {
	code, _, errOut := runCLI(t, "run", "--no-such-flag")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "no-such-flag")
}
