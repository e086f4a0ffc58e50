package match

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

func entry(name string) domain.RawChannelEntry {
	return domain.RawChannelEntry{Name: name, DisplayText: name, Category: "Sport"}
}

func services(names ...string) []domain.ServiceRecord {
	out := make([]domain.ServiceRecord, 0, len(names))
	for i, n := range names {
		out = append(out, domain.ServiceRecord{ID: string(rune('a' + i)), Name: n})
	}
	return out
}

func TestRatio(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"a", "", 0},
		{"tvn", "tvn", 1.0},
		{"abcd", "bcde", 0.75},
		{"abxcd", "abcd", 8.0 / 9.0},
		{"łódź", "lodz", 0.25},
	}
	for _, c := range cases {
		if got := Ratio(c.a, c.b); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("Ratio(%q,%q)：期望 %v，实际 %v", c.a, c.b, c.want, got)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(Options{FuzzyThreshold: DefaultFuzzyThreshold, ExactKeyMode: normalize.KeyLetters})
	for _, name := range []string{"fuzzy", " EXACT ", "freq"} {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("期望注册了 %q", name)
		}
	}
	if _, ok := r.Get("soundex"); ok {
		t.Fatalf("未知策略不应命中")
	}
	if _, err := NewRegistry(Freq{}, Freq{}); err == nil {
		t.Fatalf("重复注册应报错")
	}
	if _, err := NewRegistry(nil); err == nil {
		t.Fatalf("nil strategy 应报错")
	}
}

func TestFuzzy_PrefersFreeServiceInGroup(t *testing.T) {
	snap := domain.Snapshot{Services: services("Polsat Sport HD", "TVN", "Polsat Sport HD")}
	got := MatchAll(Fuzzy{Threshold: 0.5}, snap, []domain.RawChannelEntry{
		entry("Polsat Sport"), entry("Polsat Sport HD"), entry("Polsat Sport"),
	})

	require.True(t, got[0].Matched)
	require.Equal(t, "a", got[0].Service.ID)
	require.InDelta(t, 1.0, got[0].Score, 1e-9)

	require.True(t, got[1].Matched)
	require.Equal(t, "c", got[1].Service.ID)

	require.False(t, got[2].Matched)
	require.Equal(t, domain.ReasonAlreadyConsumed, got[2].Reason)
}

func TestFuzzy_ConsumedServiceNotReused(t *testing.T) {
	snap := domain.Snapshot{Services: services("TVN")}
	got := MatchAll(Fuzzy{Threshold: DefaultFuzzyThreshold}, snap, []domain.RawChannelEntry{
		entry("TVN"), entry("TVN HD"),
	})
	if !got[0].Matched {
		t.Fatalf("第一个 entry 应命中：%+v", got[0])
	}
	if got[1].Matched || got[1].Reason != domain.ReasonAlreadyConsumed {
		t.Fatalf("第二个 entry 期望 already_consumed，实际 matched=%v reason=%q", got[1].Matched, got[1].Reason)
	}
}

// 不去重时，重复 entry 的最佳服务已被消费：消费过的服务不参与打分，
// 只要还有未消费服务过阈值，就会落到那个服务上（而不是 already_consumed）。
func TestFuzzy_DuplicateFallsToNextFreeService(t *testing.T) {
	snap := domain.Snapshot{Services: services("TVN", "Polsat")}
	got := MatchAll(Fuzzy{Threshold: DefaultFuzzyThreshold}, snap, []domain.RawChannelEntry{
		entry("TVN"), entry("TVN"),
	})
	if !got[0].Matched || got[0].Service.ID != "a" {
		t.Fatalf("第一个 entry 期望命中 a，实际 %+v", got[0])
	}
	if !got[1].Matched || got[1].Service.ID != "b" || got[1].Reason != "" {
		t.Fatalf("第二个 entry 期望落到未消费的 b，实际 matched=%v reason=%q", got[1].Matched, got[1].Reason)
	}
	if got[1].Score >= got[0].Score || got[1].Score < DefaultFuzzyThreshold {
		t.Fatalf("第二个 entry 分数不符合预期：%v", got[1].Score)
	}

	// 阈值高于次优服务的分数时，回到 already_consumed。
	strict := MatchAll(Fuzzy{Threshold: 0.5}, snap, []domain.RawChannelEntry{entry("TVN"), entry("TVN")})
	if strict[1].Matched || strict[1].Reason != domain.ReasonAlreadyConsumed {
		t.Fatalf("期望 already_consumed，实际 matched=%v reason=%q", strict[1].Matched, strict[1].Reason)
	}
}

func TestFuzzy_Reasons(t *testing.T) {
	m := Fuzzy{Threshold: 0.9}.Bind(domain.Snapshot{Services: services("Eurosport 1")})
	if r := m.Match(entry("HD"), nil); r.Reason != domain.ReasonEmptyKey {
		t.Fatalf("期望 empty_key，实际 %q", r.Reason)
	}
	if r := m.Match(entry("Polonia 1"), nil); r.Matched || r.Reason != domain.ReasonBelowThreshold {
		t.Fatalf("期望 below_threshold，实际 %+v", r)
	}

	empty := Fuzzy{Threshold: 0.9}.Bind(domain.Snapshot{})
	if r := empty.Match(entry("TVN"), nil); r.Reason != domain.ReasonNoCandidate {
		t.Fatalf("期望 no_candidate，实际 %q", r.Reason)
	}
}

func TestFuzzy_PlusVariant(t *testing.T) {
	snap := domain.Snapshot{Services: services("Canal Plus Sport", "Canal Film")}
	got := MatchAll(Fuzzy{Threshold: 0.8}, snap, []domain.RawChannelEntry{entry("Canal+ Sport")})
	require.True(t, got[0].Matched)
	require.Equal(t, "a", got[0].Service.ID)
}

func TestExact_LettersCollision(t *testing.T) {
	snap := domain.Snapshot{Services: services("TVP 1 HD", "TVP 2 HD")}

	got := MatchAll(Exact{Mode: normalize.KeyLetters}, snap, []domain.RawChannelEntry{
		entry("TVP 2 HD"), entry("TVP 1 HD"), entry("Polsat"),
	})
	// letters 模式下两个服务撞键，只保留第一个。
	require.True(t, got[0].Matched)
	require.Equal(t, "a", got[0].Service.ID)
	require.Equal(t, 1.0, got[0].Score)
	require.Equal(t, domain.ReasonAlreadyConsumed, got[1].Reason)
	require.Equal(t, domain.ReasonNoCandidate, got[2].Reason)

	got = MatchAll(Exact{Mode: normalize.KeyLettersDigits}, snap, []domain.RawChannelEntry{
		entry("TVP 2 HD"), entry("TVP 1 HD"),
	})
	require.Equal(t, "b", got[0].Service.ID)
	require.Equal(t, "a", got[1].Service.ID)
}

func TestFreq_DistinguishesTransponders(t *testing.T) {
	snap := domain.Snapshot{
		Services: []domain.ServiceRecord{
			{ID: "s1", Name: "Polsat", MultiplexID: "m1"},
			{ID: "s2", Name: "Polsat", MultiplexID: "m2"},
			{ID: "s3", Name: "Polsat", MultiplexID: "unknown"},
		},
		MultiplexMHz: map[string]int{"m1": 11508, "m2": 10719},
	}
	e1 := entry("Polsat")
	e1.Frequency = "10,719"
	e2 := entry("Polsat")
	e2.Frequency = "11508"
	e3 := entry("Polsat")
	e4 := entry("Polsat")
	e4.Frequency = "12,380"

	got := MatchAll(Freq{}, snap, []domain.RawChannelEntry{e1, e2, e3, e4})
	require.Equal(t, "s2", got[0].Service.ID)
	require.Equal(t, "polsat@10719", got[0].Key)
	require.Equal(t, "s1", got[1].Service.ID)
	// 两边都缺频率时按 0 MHz 对齐。
	require.Equal(t, "s3", got[2].Service.ID)
	require.False(t, got[3].Matched)
	require.Equal(t, domain.ReasonNoCandidate, got[3].Reason)
}

func TestConsumptionInvariant(t *testing.T) {
	snap := domain.Snapshot{Services: services("TVN", "TVN 24", "TVN Style", "Polsat", "Polsat 2", "TVP 1")}
	entries := []domain.RawChannelEntry{
		entry("TVN"), entry("TVN"), entry("TVN24"), entry("TVN 24"), entry("Polsat"),
		entry("Polsat 2"), entry("Polsat"), entry("TVP1"), entry("TVP 1 HD"), entry("TVN Style"),
	}
	for _, s := range []Strategy{Fuzzy{Threshold: DefaultFuzzyThreshold}, Exact{Mode: normalize.KeyLetters}, Exact{}, Freq{}} {
		seen := map[string]bool{}
		for _, r := range MatchAll(s, snap, entries) {
			if !r.Matched {
				if r.Reason == domain.ReasonNone {
					t.Fatalf("%s：未命中必须带原因：%+v", s.Name(), r)
				}
				continue
			}
			if seen[r.Service.ID] {
				t.Fatalf("%s：服务 %s 被匹配了两次", s.Name(), r.Service.ID)
			}
			seen[r.Service.ID] = true
		}
	}
}
