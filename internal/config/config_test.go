package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/tvhbouquet/internal/app/planner"
	"github.com/John-Robertt/tvhbouquet/internal/ingest"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

func TestLoadEffective_Defaults(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("source_url: https://example.test/lista\ncatalog:\n  url: http://tvh.local:9981\n"))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Apply {
		t.Fatalf("期望默认 dry-run（apply=false）")
	}
	if eff.Strategy != DefaultStrategy || eff.KeyMode != normalize.KeyLettersDigits {
		t.Fatalf("期望 strategy=freq key_mode=letters_digits，实际=%q %q", eff.Strategy, eff.KeyMode)
	}
	if eff.Numbering != ingest.NumberPerCategory || eff.NameSource != planner.NameFromService {
		t.Fatalf("期望 per_category/service，实际=%q/%q", eff.Numbering, eff.NameSource)
	}
	if !eff.CreateTags || eff.TagComment != DefaultTagComment || eff.MutationRetries != 1 {
		t.Fatalf("标签/重试默认值不符合预期：%+v", eff)
	}
	if eff.FuzzyThreshold != 0.05 {
		t.Fatalf("期望 fuzzy_threshold=0.05，实际=%v", eff.FuzzyThreshold)
	}
	if eff.Catalog.Timeout != 10*time.Second || eff.Fetch.Timeout != 10*time.Second {
		t.Fatalf("期望超时默认 10s，实际=%v/%v", eff.Catalog.Timeout, eff.Fetch.Timeout)
	}
	if eff.Fetch.Rate != DefaultFetchRate || eff.Fetch.MaxPages != ingest.DefaultMaxPages {
		t.Fatalf("fetch 默认值不符合预期：%+v", eff.Fetch)
	}
	if len(eff.CategoryDetectors) != 1 || eff.CategoryDetectors[0] != "colspan" {
		t.Fatalf("期望默认检测器只有 colspan，实际=%v", eff.CategoryDetectors)
	}
	if want := filepath.Join(cwd, DefaultCacheDir); eff.CacheDir != want {
		t.Fatalf("期望 cache_dir=%q，实际=%q", want, eff.CacheDir)
	}
	if eff.HistoryDB != "" || eff.LogLevel != "info" {
		t.Fatalf("期望 history_db 为空、log_level=info，实际=%q %q", eff.HistoryDB, eff.LogLevel)
	}
	if eff.ConfigPath != filepath.Join(cwd, FileName) {
		t.Fatalf("期望记录配置文件路径，实际=%q", eff.ConfigPath)
	}
}

func TestLoadEffective_FullFile(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`
source_url: https://example.test/lista
apply: true
strategy: exact
key_mode: letters
fuzzy_threshold: 0.4
dedup: true
numbering: global
name_source: remote
create_tags: false
tag_comment: "z listy"
category_detectors: [bold, th]
mutation_retries: 9
catalog:
  url: https://tvh.local
  username: admin
  password: secret
  timeout: 3s
fetch:
  timeout: 2s
  rate: 0
  max_pages: 5
cache_dir: /tmp/tvhb-cache
use_cache: true
history_db: runs.db
log_level: DEBUG
`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !eff.Apply || eff.Strategy != "exact" || eff.KeyMode != normalize.KeyLetters {
		t.Fatalf("apply/strategy/key_mode 不符合预期：%+v", eff)
	}
	if !eff.Dedup || eff.Numbering != ingest.NumberGlobal || eff.NameSource != planner.NameFromRemote {
		t.Fatalf("dedup/numbering/name_source 不符合预期：%+v", eff)
	}
	if eff.CreateTags || eff.TagComment != "z listy" {
		t.Fatalf("标签配置不符合预期：%+v", eff)
	}
	if eff.MutationRetries != 5 {
		t.Fatalf("期望 mutation_retries 截断为 5，实际=%d", eff.MutationRetries)
	}
	if eff.Catalog.Username != "admin" || eff.Catalog.Password != "secret" || eff.Catalog.Timeout != 3*time.Second {
		t.Fatalf("catalog 配置不符合预期：%+v", eff.Catalog)
	}
	if eff.Fetch.Rate != 0 || eff.Fetch.Timeout != 2*time.Second || eff.Fetch.MaxPages != 5 {
		t.Fatalf("fetch 配置不符合预期：%+v", eff.Fetch)
	}
	if eff.CacheDir != "/tmp/tvhb-cache" || !eff.UseCache {
		t.Fatalf("cache 配置不符合预期：%q %v", eff.CacheDir, eff.UseCache)
	}
	if eff.HistoryDB != filepath.Join(cwd, "runs.db") {
		t.Fatalf("期望 history_db 相对 cwd 解析，实际=%q", eff.HistoryDB)
	}
	if eff.LogLevel != "debug" {
		t.Fatalf("期望 log_level 归一为小写，实际=%q", eff.LogLevel)
	}
}

func TestLoadEffective_Precedence(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("source_url: https://file.test/\napply: true\nstrategy: fuzzy\ncatalog:\n  url: http://file-tvh:9981\n"))
	t.Setenv("TVHB_SOURCE_URL", "https://env.test/")
	t.Setenv("TVHB_STRATEGY", "exact")
	t.Setenv("TVHB_CATALOG_PASSWORD", "from-env")

	apply := false
	strategy := "freq"
	eff, err := LoadEffective(cwd, CLIArgs{Apply: &apply, Strategy: &strategy})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.SourceURL != "https://env.test/" {
		t.Fatalf("期望 env 覆盖文件，实际 source_url=%q", eff.SourceURL)
	}
	if eff.Apply {
		t.Fatalf("期望 --apply=false 覆盖文件中的 apply: true")
	}
	if eff.Strategy != "freq" {
		t.Fatalf("期望 CLI 覆盖 env，实际 strategy=%q", eff.Strategy)
	}
	if eff.Catalog.URL != "http://file-tvh:9981" || eff.Catalog.Password != "from-env" {
		t.Fatalf("catalog 合并不符合预期：%+v", eff.Catalog)
	}
}

func TestLoadEffective_DotEnv(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, ".env"), []byte("TVHB_CATALOG_URL=http://dotenv-tvh:9981\n"))
	t.Cleanup(func() { _ = os.Unsetenv("TVHB_CATALOG_URL") })

	src := "https://example.test/"
	eff, err := LoadEffective(cwd, CLIArgs{SourceURL: &src})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Catalog.URL != "http://dotenv-tvh:9981" {
		t.Fatalf("期望 .env 提供 catalog.url，实际=%q", eff.Catalog.URL)
	}
	if eff.ConfigPath != "" {
		t.Fatalf("没有配置文件时 ConfigPath 应为空，实际=%q", eff.ConfigPath)
	}
}

func TestLoadEffective_ExplicitConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{ConfigPath: "missing.yaml"})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_MissingSource(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingSource {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingSource, err, Code(err))
	}
}

func TestLoadEffective_MissingCatalog(t *testing.T) {
	cwd := t.TempDir()
	src := "https://example.test/"

	_, err := LoadEffective(cwd, CLIArgs{SourceURL: &src})
	if Code(err) != ErrCodeMissingCatalog {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingCatalog, err, Code(err))
	}

	// 只解析的命令不需要目录。
	if _, err := LoadEffective(cwd, CLIArgs{SourceURL: &src, SkipCatalog: true}); err != nil {
		t.Fatalf("SkipCatalog 时不期望错误：%v", err)
	}

	// 离线目录可以代替 catalog.url，路径相对 cwd 解析。
	fixture := "catalog.json"
	eff, err := LoadEffective(cwd, CLIArgs{SourceURL: &src, CatalogFixture: &fixture})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Catalog.Fixture != filepath.Join(cwd, "catalog.json") {
		t.Fatalf("期望 fixture 为绝对路径，实际=%q", eff.Catalog.Fixture)
	}
}

func TestLoadEffective_Invalid(t *testing.T) {
	cases := map[string]string{
		"yaml":          "source_url: [",
		"unknown_field": "source_url: https://a.test/\nprovider: x\n",
		"strategy":      "source_url: https://a.test/\nstrategy: magic\n",
		"key_mode":      "source_url: https://a.test/\nkey_mode: fuzzy\n",
		"numbering":     "source_url: https://a.test/\nnumbering: odd\n",
		"name_source":   "source_url: https://a.test/\nname_source: epg\n",
		"threshold":     "source_url: https://a.test/\nfuzzy_threshold: 1.5\n",
		"detector":      "source_url: https://a.test/\ncategory_detectors: [magic]\n",
		"source_scheme": "source_url: ftp://a.test/\n",
		"catalog_url":   "source_url: https://a.test/\ncatalog:\n  url: tvh.local\n",
		"rate":          "source_url: https://a.test/\nfetch:\n  rate: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cwd := t.TempDir()
			writeFile(t, filepath.Join(cwd, FileName), []byte(body))

			_, err := LoadEffective(cwd, CLIArgs{})
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}

func TestLoadEffective_SkipSource(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("history_db: h.db\n"))

	eff, err := LoadEffective(cwd, CLIArgs{SkipSource: true, SkipCatalog: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.SourceURL != "" || eff.HistoryDB != filepath.Join(cwd, "h.db") {
		t.Fatalf("不符合预期：source=%q history=%q", eff.SourceURL, eff.HistoryDB)
	}
}

func TestLoadEffective_EmptyFile(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), nil)

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingSource {
		t.Fatalf("空文件应当等价于没有配置，实际 err=%v", err)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
