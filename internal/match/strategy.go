package match

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

// Strategy 把“怎么比”限制在 match 包内部；Engine 只负责按顺序喂 entry 并维护消费集合。
//
// 约束：
// - Bind 只读 snapshot，不得修改；返回的 Matcher 只在一次运行内使用
// - KeyMode 是该策略做去重时使用的比较键模式
type Strategy interface {
	Name() string
	KeyMode() normalize.KeyMode
	Bind(snap domain.Snapshot) Matcher
}

// Matcher 对单个 entry 给出判定。
//
// 约束：
// - consumed 为只读；已消费的服务不得作为 Matched 结果返回
// - 未命中时 Reason 必须非空
type Matcher interface {
	Match(e domain.RawChannelEntry, consumed map[string]bool) domain.MatchResult
}

// Registry 是策略的只读注册表（按 name 索引）。
type Registry struct {
	byName map[string]Strategy
}

func NewRegistry(strategies ...Strategy) (Registry, error) {
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		if s == nil {
			return Registry{}, fmt.Errorf("strategy 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(s.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("strategy.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 strategy：%q", name)
		}
		byName[name] = s
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Strategy, bool) {
	if r.byName == nil {
		return nil, false
	}
	s, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Options 是构造内置策略所需的参数。
type Options struct {
	// FuzzyThreshold 是 fuzzy 策略的最低接受分数（含）。
	FuzzyThreshold float64
	// ExactKeyMode 是 exact 策略的键模式（letters 或 letters_digits）。
	ExactKeyMode normalize.KeyMode
}

// DefaultRegistry 注册 fuzzy/exact/freq 三种内置策略。
func DefaultRegistry(opts Options) Registry {
	r, err := NewRegistry(
		Fuzzy{Threshold: opts.FuzzyThreshold},
		Exact{Mode: opts.ExactKeyMode},
		Freq{},
	)
	if err != nil {
		// 内置名字固定且唯一，不可能走到这里。
		panic(err)
	}
	return r
}
