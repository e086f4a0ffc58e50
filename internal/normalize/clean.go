package normalize

import (
	"regexp"
	"strings"
)

var (
	genreRE = regexp.MustCompile(`(?i)\b(muzyczny|informacyjny|uniwersalny|filmowy|sportowy|religijny|dokumentalny|rozrywkowy|dla dzieci|telezakupowy|prawniczy|kulinarny|motoryzacyjny|erotyczny|turystyczny|lifestyle|dla młodzieży)\b`)

	cleanModulationRE = regexp.MustCompile(`(?i)\s*(dvb-[st]\d?(?:/\w+)?|db-s\d?/\w+)\s*`)
	cleanQualityRE    = regexp.MustCompile(`(?i)\s*\b(HD|SD|UHD|4K|UD)\b\s*`)
	keepQualityRE     = regexp.MustCompile(`(?i)\b(HD|SD|UHD|4K)\b`)

	frequencyRE    = regexp.MustCompile(`\d{1,2}[.,]\d{3}`)
	polarizationRE = regexp.MustCompile(`\b[VHLR]\b`)
	symbolRateRE   = regexp.MustCompile(`\b\d{5}\b`)
	fecRE          = regexp.MustCompile(`\d/\d`)
	shortModRE     = regexp.MustCompile(`(?i)\bs\d/\w+\b`)

	trailingDDRE   = regexp.MustCompile(`\s+D\s+D\s*$`)
	trailingDRE    = regexp.MustCompile(`\s+D\s*$`)
	trailingSignRE = regexp.MustCompile(`\s*[-+]\s*$`)
)

// 剥离规则可能互相“暴露”新的可剥离片段（例如去掉 FEC 后留下孤立的极化字母），
// 因此迭代到不动点；上限只是保险。
const maxCleanPasses = 8

// CleanDisplayName 生成给人看的频道名：去掉体裁词、制式、画质、卫星参数与尾部噪音，
// 若原文含画质标记，则把它（大写）追加为最后一个词。
//
// 约束：CleanDisplayName(CleanDisplayName(n)) == CleanDisplayName(n)。
func CleanDisplayName(name string) string {
	s := prep(name)
	if s == "" {
		return ""
	}

	quality := ""
	if m := keepQualityRE.FindString(s); m != "" {
		quality = strings.ToUpper(m)
	}

	for i := 0; i < maxCleanPasses; i++ {
		next := stripOnce(s)
		if next == s {
			break
		}
		s = next
	}

	if quality == "" {
		return s
	}
	if s == "" {
		return quality
	}
	return s + " " + quality
}

func stripOnce(s string) string {
	s = genreRE.ReplaceAllString(s, " ")
	s = cleanModulationRE.ReplaceAllString(s, " ")
	s = cleanQualityRE.ReplaceAllString(s, " ")
	s = frequencyRE.ReplaceAllString(s, " ")
	s = polarizationRE.ReplaceAllString(s, " ")
	s = symbolRateRE.ReplaceAllString(s, " ")
	s = fecRE.ReplaceAllString(s, " ")
	s = shortModRE.ReplaceAllString(s, " ")

	s = collapse(s)
	s = trailingDDRE.ReplaceAllString(s, "")
	s = trailingDRE.ReplaceAllString(s, "")
	s = trailingSignRE.ReplaceAllString(s, "")
	return collapse(s)
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
}
