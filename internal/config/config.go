package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/tvhbouquet/internal/app/planner"
	"github.com/John-Robertt/tvhbouquet/internal/ingest"
	"github.com/John-Robertt/tvhbouquet/internal/match"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingSource 表示没有任何来源提供 source_url。
	ErrCodeMissingSource = "config_missing_source"
	// ErrCodeMissingCatalog 表示既没有 catalog.url 也没有离线目录。
	ErrCodeMissingCatalog = "config_missing_catalog"
)

const (
	// FileName 是 cwd 下默认查找的配置文件名（可选）。
	FileName = "tvhbouquet.yaml"
	// EnvPrefix 是环境变量覆盖的前缀（TVHB_SOURCE_URL 等）。
	EnvPrefix = "TVHB"

	DefaultStrategy        = "freq"
	DefaultTagComment      = "Importowane z listy"
	DefaultMutationRetries = 1
	DefaultCacheDir        = ".tvhbouquet"
	DefaultFetchRate       = 2.0
	DefaultLogLevel        = "info"
)

// CLIArgs 是 CLI 暴露的覆盖项；指针为 nil 表示“未显式指定”。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 apply: true。
type CLIArgs struct {
	ConfigPath string

	SourceURL      *string
	Apply          *bool
	Strategy       *string
	KeyMode        *string
	FuzzyThreshold *float64
	Dedup          *bool
	Numbering      *string
	NameSource     *string
	CreateTags     *bool
	UseCache       *bool
	CatalogURL     *string
	CatalogFixture *string
	LogLevel       *string

	// SkipSource/SkipCatalog 供不需要对应输入的命令使用（history 不需要列表，parse 不需要目录）。
	SkipSource  bool
	SkipCatalog bool
}

// FileConfig 对应 tvhbouquet.yaml 的解析结构；未知字段视为配置错误。
type FileConfig struct {
	SourceURL         string   `yaml:"source_url"`
	Apply             *bool    `yaml:"apply"`
	Strategy          string   `yaml:"strategy"`
	KeyMode           string   `yaml:"key_mode"`
	FuzzyThreshold    *float64 `yaml:"fuzzy_threshold"`
	Dedup             *bool    `yaml:"dedup"`
	Numbering         string   `yaml:"numbering"`
	NameSource        string   `yaml:"name_source"`
	CreateTags        *bool    `yaml:"create_tags"`
	TagComment        *string  `yaml:"tag_comment"`
	CategoryDetectors []string `yaml:"category_detectors"`
	MutationRetries   *int     `yaml:"mutation_retries"`

	Catalog FileCatalog `yaml:"catalog"`
	Fetch   FileFetch   `yaml:"fetch"`

	CacheDir  string `yaml:"cache_dir"`
	UseCache  *bool  `yaml:"use_cache"`
	HistoryDB string `yaml:"history_db"`
	LogLevel  string `yaml:"log_level"`
}

type FileCatalog struct {
	URL      string        `yaml:"url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
	// Fixture 是离线目录 JSON（memcatalog 格式）；设置后不访问真实目录。
	Fixture string `yaml:"fixture"`
}

type FileFetch struct {
	Timeout  time.Duration `yaml:"timeout"`
	Rate     *float64      `yaml:"rate"`
	MaxPages int           `yaml:"max_pages"`
}

// envOverrides 是 TVHB_* 环境变量（字段名按 split_words 映射，例如 SourceURL -> TVHB_SOURCE_URL）；
// 未设置的字段保持 nil。这里不用 envconfig 标签，避免回退读取不带前缀的同名变量。
type envOverrides struct {
	SourceURL       *string `split_words:"true"`
	Apply           *bool
	Strategy        *string
	CatalogURL      *string `split_words:"true"`
	CatalogUsername *string `split_words:"true"`
	CatalogPassword *string `split_words:"true"`
	CacheDir        *string `split_words:"true"`
	HistoryDB       *string `split_words:"true"`
	LogLevel        *string `split_words:"true"`
}

type CatalogConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	Fixture  string
}

type FetchConfig struct {
	Timeout  time.Duration
	Rate     float64
	MaxPages int
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 是实际读取的配置文件；没有文件时为空。
	ConfigPath string

	SourceURL string
	Apply     bool

	Strategy       string
	KeyMode        normalize.KeyMode
	FuzzyThreshold float64
	Dedup          bool
	Numbering      ingest.Numbering
	NameSource     planner.NameSource

	CreateTags        bool
	TagComment        string
	CategoryDetectors []string
	MutationRetries   int

	Catalog CatalogConfig
	Fetch   FetchConfig

	CacheDir  string
	UseCache  bool
	HistoryDB string
	LogLevel  string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingSource:
		return fmt.Sprintf("%s：缺少 source_url（配置文件、TVHB_SOURCE_URL 或命令行参数）", e.Code)
	case ErrCodeMissingCatalog:
		return fmt.Sprintf("%s：缺少 catalog.url（或离线目录 catalog.fixture）", e.Code)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置，然后按优先级合并为最终配置。
//
// 发现规则（固定）：
// 1) cli.ConfigPath 非空：该文件必须存在
// 2) 否则读取 <cwd>/tvhbouquet.yaml（可选）
// 3) <cwd>/.env 存在时加载到进程环境（不覆盖已设置的变量）
//
// 覆盖优先级（固定）：CLI 显式参数 > TVHB_* 环境变量 > 配置文件 > 默认值。
// 所有校验都在任何网络访问之前完成。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if err := loadDotEnv(filepath.Join(cwdAbs, ".env")); err != nil {
		return EffectiveConfig{}, err
	}

	var (
		cfgPath string
		fc      FileConfig
	)
	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		p := filepath.Join(cwdAbs, FileName)
		var exists bool
		fc, exists, err = readFileConfig(p)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		if exists {
			cfgPath = p
		}
	}

	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("环境变量无效：%w", err)}
	}

	eff, err := merge(cwdAbs, fc, env, cli)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return EffectiveConfig{}, ce
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.ConfigPath = cfgPath
	return eff, nil
}

func merge(cwdAbs string, fc FileConfig, env envOverrides, cli CLIArgs) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		SourceURL:         strings.TrimSpace(pick(cli.SourceURL, env.SourceURL, fc.SourceURL)),
		Apply:             pickBool(cli.Apply, env.Apply, fc.Apply, false),
		Dedup:             pickBool(cli.Dedup, nil, fc.Dedup, false),
		CreateTags:        pickBool(cli.CreateTags, nil, fc.CreateTags, true),
		UseCache:          pickBool(cli.UseCache, nil, fc.UseCache, false),
		TagComment:        DefaultTagComment,
		CategoryDetectors: []string{ingest.DetectorColspan},
		MutationRetries:   DefaultMutationRetries,
		FuzzyThreshold:    match.DefaultFuzzyThreshold,
		LogLevel:          strings.ToLower(strings.TrimSpace(pick(cli.LogLevel, env.LogLevel, fc.LogLevel))),
	}
	if eff.LogLevel == "" {
		eff.LogLevel = DefaultLogLevel
	}

	// strategy 与各模式字面量：先合并，再统一校验。
	strategy := strings.ToLower(strings.TrimSpace(pick(cli.Strategy, env.Strategy, fc.Strategy)))
	if strategy == "" {
		strategy = DefaultStrategy
	}
	if _, ok := match.DefaultRegistry(match.Options{}).Get(strategy); !ok {
		return EffectiveConfig{}, fmt.Errorf("strategy 只能是 fuzzy、exact 或 freq，实际是 %q", strategy)
	}
	eff.Strategy = strategy

	keyMode := orDefault(pick(cli.KeyMode, nil, fc.KeyMode), string(normalize.KeyLettersDigits))
	km, err := normalize.ParseKeyMode(keyMode)
	if err != nil {
		return EffectiveConfig{}, err
	}
	if km == normalize.KeyFuzzy {
		return EffectiveConfig{}, fmt.Errorf("key_mode 只能是 letters 或 letters_digits，实际是 %q", keyMode)
	}
	eff.KeyMode = km

	eff.Numbering, err = ingest.ParseNumbering(orDefault(pick(cli.Numbering, nil, fc.Numbering), string(ingest.NumberPerCategory)))
	if err != nil {
		return EffectiveConfig{}, err
	}
	eff.NameSource, err = planner.ParseNameSource(orDefault(pick(cli.NameSource, nil, fc.NameSource), string(planner.NameFromService)))
	if err != nil {
		return EffectiveConfig{}, err
	}

	if cli.FuzzyThreshold != nil {
		eff.FuzzyThreshold = *cli.FuzzyThreshold
	} else if fc.FuzzyThreshold != nil {
		eff.FuzzyThreshold = *fc.FuzzyThreshold
	}
	if eff.FuzzyThreshold < 0 || eff.FuzzyThreshold > 1 {
		return EffectiveConfig{}, fmt.Errorf("fuzzy_threshold 必须在 [0, 1] 内，实际是 %v", eff.FuzzyThreshold)
	}

	if fc.TagComment != nil {
		eff.TagComment = *fc.TagComment
	}
	if len(fc.CategoryDetectors) > 0 {
		if _, err := ingest.Detectors(fc.CategoryDetectors); err != nil {
			return EffectiveConfig{}, err
		}
		eff.CategoryDetectors = append([]string(nil), fc.CategoryDetectors...)
	}
	if fc.MutationRetries != nil {
		eff.MutationRetries = *fc.MutationRetries
	}
	// 文档约定：范围 [0, 5]；超出截断。
	if eff.MutationRetries < 0 {
		eff.MutationRetries = 0
	}
	if eff.MutationRetries > 5 {
		eff.MutationRetries = 5
	}

	eff.Catalog = CatalogConfig{
		URL:      strings.TrimSpace(pick(cli.CatalogURL, env.CatalogURL, fc.Catalog.URL)),
		Username: pick(nil, env.CatalogUsername, fc.Catalog.Username),
		Password: pick(nil, env.CatalogPassword, fc.Catalog.Password),
		Timeout:  fc.Catalog.Timeout,
		Fixture:  strings.TrimSpace(pick(cli.CatalogFixture, nil, fc.Catalog.Fixture)),
	}
	if eff.Catalog.Timeout <= 0 {
		eff.Catalog.Timeout = 10 * time.Second
	}
	if eff.Catalog.Fixture != "" {
		eff.Catalog.Fixture = absCleanFrom(cwdAbs, eff.Catalog.Fixture)
	}

	eff.Fetch = FetchConfig{Timeout: fc.Fetch.Timeout, Rate: DefaultFetchRate, MaxPages: fc.Fetch.MaxPages}
	if eff.Fetch.Timeout <= 0 {
		eff.Fetch.Timeout = 10 * time.Second
	}
	if fc.Fetch.Rate != nil {
		eff.Fetch.Rate = *fc.Fetch.Rate
	}
	if eff.Fetch.Rate < 0 {
		return EffectiveConfig{}, fmt.Errorf("fetch.rate 不能为负数，实际是 %v", eff.Fetch.Rate)
	}
	if eff.Fetch.MaxPages <= 0 {
		eff.Fetch.MaxPages = ingest.DefaultMaxPages
	}

	eff.CacheDir = absCleanFrom(cwdAbs, orDefault(pick(nil, env.CacheDir, fc.CacheDir), DefaultCacheDir))
	if h := strings.TrimSpace(pick(nil, env.HistoryDB, fc.HistoryDB)); h != "" {
		eff.HistoryDB = absCleanFrom(cwdAbs, h)
	}

	// 必填项放在最后：先报字段非法，再报缺失。
	if eff.SourceURL == "" && !cli.SkipSource {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingSource}
	}
	if eff.SourceURL != "" {
		if err := validateHTTPURL("source_url", eff.SourceURL); err != nil {
			return EffectiveConfig{}, err
		}
	}
	if !cli.SkipCatalog {
		if eff.Catalog.URL == "" && eff.Catalog.Fixture == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeMissingCatalog}
		}
		if eff.Catalog.URL != "" {
			if err := validateHTTPURL("catalog.url", eff.Catalog.URL); err != nil {
				return EffectiveConfig{}, err
			}
		}
	}
	return eff, nil
}

// pick 按 CLI > env > file 取第一个显式值。
func pick(cli, env *string, file string) string {
	if cli != nil {
		return *cli
	}
	if env != nil {
		return *env
	}
	return file
}

func pickBool(cli, env, file *bool, def bool) bool {
	switch {
	case cli != nil:
		return *cli
	case env != nil:
		return *env
	case file != nil:
		return *file
	default:
		return def
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// loadDotEnv 把 .env 载入进程环境；文件不存在不算错误。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	if err := godotenv.Load(path); err != nil {
		return &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	return nil
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
