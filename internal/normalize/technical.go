package normalize

import (
	"regexp"
	"strings"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
)

var (
	ordinalRE = regexp.MustCompile(`^\d+\.?\s*`)

	extractFrequencyRE    = regexp.MustCompile(`(\d{1,2}[.,]\d{3})`)
	extractPolarizationRE = regexp.MustCompile(`\b([VHLR])\b`)
	extractSymbolRateRE   = regexp.MustCompile(`\b(\d{5})\b`)
	extractFECRE          = regexp.MustCompile(`(\d/\d)`)
	extractModulationRE   = regexp.MustCompile(`(?i)(DVB-[ST]\d?(?:/\w+)?|DB-S\d?/\w+)`)
	extractQualityRE      = regexp.MustCompile(`(?i)\b(HD|SD|UHD|4K|UD)\b`)
)

// StripOrdinal 去掉行首序号（"12. " / "12 "）。
func StripOrdinal(s string) string {
	return strings.TrimSpace(ordinalRE.ReplaceAllString(prep(s), ""))
}

// ExtractTechnicalFields 从文本中提取（不修改）技术参数。
// freqText 非空时频率只从该列文本里取（列感知提取），否则从 text 里取。
func ExtractTechnicalFields(text, freqText string) domain.TechnicalFields {
	text = prep(text)
	freqText = prep(freqText)

	var f domain.TechnicalFields

	freqSrc := text
	if freqText != "" {
		freqSrc = freqText
	}
	f.Frequency = firstGroup(extractFrequencyRE, freqSrc)
	f.Polarization = domain.Polarization(firstGroup(extractPolarizationRE, text))
	f.SymbolRate = firstGroup(extractSymbolRateRE, text)
	f.FEC = firstGroup(extractFECRE, text)
	f.Modulation = firstGroup(extractModulationRE, text)
	f.Quality = parseQuality(firstGroup(extractQualityRE, text))
	return f
}

func parseQuality(s string) domain.Quality {
	switch strings.ToUpper(s) {
	case "HD":
		return domain.QualityHD
	case "SD":
		return domain.QualitySD
	case "UHD", "UD":
		return domain.QualityUHD
	case "4K":
		return domain.Quality4K
	default:
		return ""
	}
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
