package resolver

import "strings"

// noiseWords mark reasons that describe stock behavior (limit streaks,
// dividends, volatility) rather than any market theme. A reason whose tokens
// touch one of these resolves to nothing.
var noiseWords = []string{
	"天板", "跌停", "涨停", "分红", "小盘股", "降价", "异常",
	"波动", "减持", "一字加速", "妖股", "成交量", "其它", "H股",
}

func containsNoise(tokens []string) bool {
	for _, tok := range tokens {
		for _, nw := range noiseWords {
			if strings.Contains(tok, nw) {
				return true
			}
		}
	}
	return false
}

// directMatch resolves a reason that literally names a theme: an operator
// dictionary entry, a catalog concept, one of the fixed suffix variants, or
// the 智慧→智能 spelling substitution. These skip the classifier entirely.
func (r *Resolver) directMatch(reason string) (string, bool) {
	switch {
	case r.cat.HasCustomTheme(reason):
		return reason, true
	case r.cat.Has(reason):
		return reason, true
	case r.cat.Has(reason + "概念股"):
		return reason + "概念股", true
	case r.cat.Has(reason + "概念"):
		return reason + "概念", true
	case r.cat.Has(reason + "Ⅲ"):
		return reason + "Ⅲ", true
	}
	if strings.Contains(reason, "智慧") {
		if alt := strings.ReplaceAll(reason, "智慧", "智能"); r.cat.Has(alt) {
			return alt, true
		}
	}
	return "", false
}
