package underwriting

import (
	"regexp"
	"strconv"
	"strings"
)

// Extractor pulls explicit scenario adjustments from free text. A zero
// Adjustment means nothing explicit was found.
type Extractor interface {
	Extract(text string) Adjustment
}

// PatternExtractor recognises "-5% rent", "rent down 5%", "+25bps exit yield"
// and "exit yield +25 bps" style phrases.
type PatternExtractor struct{}

var (
	rentBefore  = regexp.MustCompile(`(?i)\b(?:rent|erv|rents)\b[^0-9%]{0,25}?([+-]?\d+(?:\.\d+)?)\s*%`)
	rentAfter   = regexp.MustCompile(`(?i)([+-]?\d+(?:\.\d+)?)\s*%\s*(?:\w+\s+){0,2}?(?:rent|erv|rents)\b`)
	yieldBefore = regexp.MustCompile(`(?i)\byields?\b[^0-9]{0,25}?([+-]?\d+(?:\.\d+)?)\s*(?:bps|bp|basis points)`)
	yieldAfter  = regexp.MustCompile(`(?i)([+-]?\d+(?:\.\d+)?)\s*(?:bps|bp|basis points)\s*(?:\w+\s+){0,3}?(?:exit\s+)?yields?\b`)

	downWords = regexp.MustCompile(`(?i)\b(down|decrease|decline|drop|fall|lower|reduce|cut|less)\b`)
	upWords   = regexp.MustCompile(`(?i)\b(up|increase|rise|higher|widen|expand|more)\b`)
	tightWord = regexp.MustCompile(`(?i)\b(compress|compression|tighten|tightening|lower|decrease|down)\b`)

	clauseBreak = regexp.MustCompile(`(?i)[,;]|\.\s|\band\b|\bthen\b|\bwith\b`)
)

// Extract implements Extractor.
func (PatternExtractor) Extract(text string) Adjustment {
	var adj Adjustment
	if v, window, ok := firstMatch(text, rentBefore, rentAfter); ok {
		adj.RentChange = signed(v, window, downWords) / 100
	}
	if v, window, ok := firstMatch(text, yieldBefore, yieldAfter); ok {
		adj.ExitYieldBps = signed(v, window, tightWord)
	}
	return adj
}

type numberMatch struct {
	raw    string
	window string
}

// firstMatch returns the number from the earliest-matching pattern plus the
// window used to infer direction words: the match extended back to the start
// of its clause, so "cut rent by 10%" sees the verb.
func firstMatch(text string, patterns ...*regexp.Regexp) (string, string, bool) {
	best := -1
	var found numberMatch
	for _, p := range patterns {
		loc := p.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < best {
			best = loc[0]
			found = numberMatch{raw: text[loc[2]:loc[3]], window: text[clauseStart(text, loc[0]):loc[1]]}
		}
	}
	return found.raw, found.window, best >= 0
}

func clauseStart(text string, at int) int {
	start := 0
	for _, b := range clauseBreak.FindAllStringIndex(text[:at], -1) {
		start = b[1]
	}
	return start
}

func signed(raw, window string, negative *regexp.Regexp) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	if strings.HasPrefix(raw, "+") || strings.HasPrefix(raw, "-") {
		return v
	}
	if negative.MatchString(window) && !upWords.MatchString(window) {
		return -v
	}
	return v
}
