package underwriting

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type valueKind int

const (
	kindPercent valueKind = iota
	kindMoney
	kindPlain
)

type updateRule struct {
	key     string
	pattern *regexp.Regexp
	kind    valueKind
}

// Order matters: the first rule whose keyword appears in a clause wins, so
// "rent growth" resolves to growth before the generic rent rule.
var updateRules = []updateRule{
	{KeyExitYield, regexp.MustCompile(`(?i)\b(exit yield|exit cap|cap rate)\b`), kindPercent},
	{KeyEntryYield, regexp.MustCompile(`(?i)\b(entry yield|purchase yield|initial yield|niy)\b`), kindPercent},
	{KeyRentGrowth, regexp.MustCompile(`(?i)\bgrowth\b`), kindPercent},
	{KeyDiscountRate, regexp.MustCompile(`(?i)\bdiscount\b`), kindPercent},
	{KeyDowntimeMonths, regexp.MustCompile(`(?i)\b(downtime|void)\b`), kindPlain},
	{KeyRenewalProbability, regexp.MustCompile(`(?i)\b(renewal|retention)\b`), kindPercent},
	{KeyCapex, regexp.MustCompile(`(?i)\bcapex\b`), kindMoney},
	{KeyLTV, regexp.MustCompile(`(?i)\b(ltv|loan[- ]to[- ]value|leverage)\b`), kindPercent},
	{KeyInterestRate, regexp.MustCompile(`(?i)\b(interest|cost of debt|debt cost|coupon)\b`), kindPercent},
	{KeyOpexRatio, regexp.MustCompile(`(?i)\b(opex|operating costs?|non-recoverables?)\b`), kindPercent},
	{KeyPurchasersCosts, regexp.MustCompile(`(?i)\b(purchaser'?s? costs|acquisition costs|transfer tax)\b`), kindPercent},
	{KeyArea, regexp.MustCompile(`(?i)\b(area|gla|lettable)\b`), kindPlain},
	{KeyERV, regexp.MustCompile(`(?i)\b(erv|market rent|rent)\b`), kindMoney},
}

var (
	clauseSplit   = regexp.MustCompile(`(?i);|\n|,\s+|\band\b`)
	numberPattern = regexp.MustCompile(`(?i)([+-]?\d[\d,]*(?:\.\d+)?)\s*(%|bps|bp|k\b|m\b|mn\b)?`)
	negativeWords = regexp.MustCompile(`(?i)\b(decrease|reduce|lower|cut|compress|tighten|drop|minus)\b`)
)

// ApplyUpdates parses natural-language edits ("exit yield 5%, ltv 55 and
// capex 250k") and applies them to a copy of a. It returns the updated
// assumptions and the keys that changed, in order of appearance.
func ApplyUpdates(a Assumptions, text string) (Assumptions, []string) {
	out := a.Clone()
	var changed []string
	for _, clause := range clauseSplit.Split(text, -1) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		for _, rule := range updateRules {
			loc := rule.pattern.FindStringIndex(clause)
			if loc == nil {
				continue
			}
			v, ok := parseRuleValue(rule, clause, loc[1], out)
			if ok {
				if prev, had := out[rule.key]; !had || prev != v {
					changed = append(changed, rule.key)
				}
				out[rule.key] = v
			}
			break
		}
	}
	return out, changed
}

func parseRuleValue(rule updateRule, clause string, after int, current Assumptions) (float64, bool) {
	m := numberPattern.FindStringSubmatch(clause[after:])
	if m == nil {
		m = numberPattern.FindStringSubmatch(clause)
	}
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	unit := strings.ToLower(m[2])

	switch rule.kind {
	case kindPercent:
		switch unit {
		case "%":
			return v / 100, true
		case "bps", "bp":
			// relative shift from the current value
			if negativeWords.MatchString(clause) && v > 0 {
				v = -v
			}
			base := Normalize(current.value(rule.key, DefaultAssumptions()[rule.key]))
			return base + v/10000, true
		default:
			return Normalize(v), true
		}
	case kindMoney:
		switch unit {
		case "k":
			return v * 1_000, true
		case "m", "mn":
			return v * 1_000_000, true
		case "%", "bps", "bp":
			// relative change of the current amount
			if negativeWords.MatchString(clause) && v > 0 {
				v = -v
			}
			if unit != "%" {
				v /= 100
			}
			base := current.value(rule.key, DefaultAssumptions()[rule.key])
			return base * (1 + v/100), true
		}
		return v, true
	default:
		return v, true
	}
}
