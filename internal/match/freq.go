package match

import (
	"fmt"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

// Freq 用 (letters_digits 名称键, 整 MHz 频率) 复合键查表，
// 同名但不同转发器的频道被视为不同频道。
//
// 约束：
// - 服务频率取自快照的 multiplex 表；缺失时为 0
// - entry 频率取自列表里的频率字面量；缺失时为 0
type Freq struct{}

type freqKey struct {
	name string
	mhz  int
}

func (Freq) Name() string               { return "freq" }
func (Freq) KeyMode() normalize.KeyMode { return normalize.KeyLettersDigits }

func (Freq) Bind(snap domain.Snapshot) Matcher {
	byKey := make(map[freqKey]*domain.ServiceRecord, len(snap.Services))
	for i := range snap.Services {
		svc := &snap.Services[i]
		name := normalize.ComparisonKey(svc.Name, normalize.KeyLettersDigits)
		if name == "" {
			continue
		}
		k := freqKey{name: name, mhz: snap.MultiplexMHz[svc.MultiplexID]}
		if _, ok := byKey[k]; !ok {
			byKey[k] = svc
		}
	}
	return keyMatcher[freqKey]{
		key: func(e domain.RawChannelEntry) (freqKey, string) {
			k := freqKey{
				name: normalize.ComparisonKey(e.Name, normalize.KeyLettersDigits),
				mhz:  normalize.FrequencyMHz(e.Frequency),
			}
			return k, fmt.Sprintf("%s@%d", k.name, k.mhz)
		},
		empty: func(k freqKey) bool { return k.name == "" },
		byKey: byKey,
	}
}
