package normalize

import (
	"math"
	"strconv"
	"strings"
)

// FrequencyMHz 把列表里的频率字面量换算为整 MHz。
//
// "11,508"/"11.508" 视为 GHz（< 1000 时乘 1000，四舍五入）；"11508" 原样返回。
// 空串或无法解析时返回 0（与“远端没有频率”同义）。
func FrequencyMHz(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	if v < 1000 {
		return int(math.Round(v * 1000))
	}
	return int(v)
}

// MultiplexMHz 把目录里 multiplex 的频率（Hz 或 kHz）换算为整 MHz。
// 大于 1e8 视为 Hz（地面 174 MHz 起），否则视为 kHz（卫星 ~12.75 GHz 以内）。
func MultiplexMHz(v int64) int {
	switch {
	case v <= 0:
		return 0
	case v > 100_000_000:
		return int(v / 1_000_000)
	default:
		return int(v / 1_000)
	}
}
