package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// KeyMode 选择比较键的生成方式（三种模式的召回/精度取舍不同，必须都保留）。
type KeyMode string

const (
	// KeyFuzzy 去掉画质/制式标记后保留单词字符，供相似度比较使用。
	KeyFuzzy KeyMode = "fuzzy"
	// KeyLetters 只保留 a-z。有意为之的有损键："TVP 1" 与 "TVP 2" 会撞键。
	KeyLetters KeyMode = "letters"
	// KeyLettersDigits 保留 a-z0-9。
	KeyLettersDigits KeyMode = "letters_digits"
)

// ParseKeyMode 校验配置里的 key_mode 字面量。
func ParseKeyMode(s string) (KeyMode, error) {
	switch KeyMode(strings.ToLower(strings.TrimSpace(s))) {
	case KeyFuzzy:
		return KeyFuzzy, nil
	case KeyLetters:
		return KeyLetters, nil
	case KeyLettersDigits:
		return KeyLettersDigits, nil
	default:
		return "", fmt.Errorf("key_mode 只能是 fuzzy、letters 或 letters_digits，实际是 %q", s)
	}
}

var (
	keyQualityRE    = regexp.MustCompile(`(?i)\b(hd|sd|uhd|4k|ud)\b`)
	keyModulationRE = regexp.MustCompile(`(?i)\b(dvb-[st]\d?(?:/\w+)?|db-s\d?/\w+)\b`)
	keyTrailingDDRE = regexp.MustCompile(`\s+d\s+d\s*$`)
	keyTrailingDRE  = regexp.MustCompile(`\s+d\s*$`)
	keyNonWordRE    = regexp.MustCompile(`[^\p{L}\p{N}_\s+\-]`)
	spaceRE         = regexp.MustCompile(`\s+`)
)

// ComparisonKey 把频道名映射为比较键。
// 未知 mode 按 KeyLettersDigits 处理（配置层已做校验，这里不报错）。
func ComparisonKey(name string, mode KeyMode) string {
	s := prep(name)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)

	switch mode {
	case KeyFuzzy:
		return fuzzyKey(s)
	case KeyLetters:
		return keepRunes(s, func(r rune) bool { return r >= 'a' && r <= 'z' })
	default:
		return keepRunes(s, func(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') })
	}
}

func fuzzyKey(s string) string {
	s = keyQualityRE.ReplaceAllString(s, "")
	s = keyModulationRE.ReplaceAllString(s, "")
	s = spaceRE.ReplaceAllString(s, " ")
	s = keyTrailingDDRE.ReplaceAllString(s, "")
	s = keyTrailingDRE.ReplaceAllString(s, "")
	s = strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
	s = keyNonWordRE.ReplaceAllString(s, "")
	return strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
}

func keepRunes(s string, keep func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// prep 统一 Unicode 形态：NFC + 所有 Unicode 空白（含 NBSP）折叠为 ASCII 空格。
// RE2 的 \s 只认 ASCII 空白，HTML 里的 &nbsp; 必须先换掉。
func prep(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
