package parsers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deal-associate/server/internal/agent/model"
	errx "github.com/deal-associate/server/internal/core/error"
	logx "github.com/deal-associate/server/pkg/logger"
)

const (
	RecordDelimiter   = "##"
	TupleDelimiter    = "<||>"
	CompleteDelimiter = "<|COMPLETE|>"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 32 * 1024
	maxRecords    = 50
	maxTupleLen   = 4 * 1024
	maxMetaLen    = 2 * 1024
	maxErrSnippet = 200
)

type rawTuple struct {
	Type  string
	Parts []string
}

func parseRawTuple(s string) (*rawTuple, error) {
	if s == "" {
		return nil, fmt.Errorf("empty tuple")
	}
	if len(s) > maxTupleLen {
		return nil, fmt.Errorf("tuple too large")
	}

	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("invalid tuple parens")
	}
	inner := s[1 : len(s)-1]
	// at most 5 segments so metadata can contain delimiters
	parts := strings.SplitN(inner, TupleDelimiter, 5)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid tuple parts")
	}
	return &rawTuple{Type: strings.TrimSpace(parts[0]), Parts: parts}, nil
}

func parseFloatInRange(s, name string, min, max float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse: %w", name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s invalid number", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s out of range", name)
	}
	return v, nil
}

func parseMeta(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]any{}, nil
	}
	if len(s) > maxMetaLen {
		return nil, fmt.Errorf("metadata too large")
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, fmt.Errorf("metadata not json object")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseIntentResponse parses the classifier model's tuple output:
//
//	(intent<||>update_assumptions<||>0.92<||>0.8<||>{"reason":"..."})##...<|COMPLETE|>
//
// Malformed records are skipped and listed under ParsingMetadata["parsing_errors"].
// The primary intent is the candidate with the highest confidence.
func ParseIntentResponse(content string) (resp *model.IntentResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "intent_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("intent parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			resp = nil
		}
	}()

	resp = &model.IntentResponse{
		Intents:         []model.IntentCandidate{},
		ParsingMetadata: map[string]any{},
		Timestamp:       time.Now().UTC(),
	}

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "intent_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
		resp.ParsingMetadata["truncated"] = true
	}
	if idx := strings.Index(content, CompleteDelimiter); idx >= 0 {
		content = content[:idx]
	}

	addErr := func(msg string) {
		v, _ := resp.ParsingMetadata["parsing_errors"].([]string)
		resp.ParsingMetadata["parsing_errors"] = append(v, msg)
	}

	processed := 0
	for _, rec := range strings.Split(content, RecordDelimiter) {
		if processed >= maxRecords {
			resp.ParsingMetadata["records_capped"] = true
			break
		}
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		processed++

		rt, rerr := parseRawTuple(rec)
		if rerr != nil {
			addErr(fmt.Sprintf("bad_record: %s", safeSnippet(rec)))
			continue
		}
		if rt.Type != "intent" {
			addErr("unknown tuple type")
			continue
		}
		if len(rt.Parts) < 3 {
			addErr("intent: insufficient parts")
			continue
		}

		name := strings.TrimSpace(rt.Parts[1])
		if !utf8.ValidString(name) || name == "" {
			addErr("intent: invalid name")
			continue
		}
		conf, err := parseFloatInRange(rt.Parts[2], "intent.confidence", 0, 1)
		if err != nil {
			addErr("intent: invalid confidence")
			continue
		}
		prio := 0.0
		if len(rt.Parts) >= 4 {
			if prio, err = parseFloatInRange(rt.Parts[3], "intent.priority", 0, 1); err != nil {
				addErr("intent: invalid priority")
				prio = 0
			}
		}
		meta := map[string]any{}
		if len(rt.Parts) >= 5 {
			if m, err := parseMeta(rt.Parts[4]); err == nil {
				meta = m
			} else {
				addErr("intent: invalid metadata json")
			}
		}
		resp.Intents = append(resp.Intents, model.IntentCandidate{Name: name, Confidence: conf, Priority: prio, Metadata: meta})
	}

	best := -1.0
	for _, it := range resp.Intents {
		if it.Confidence > best {
			best = it.Confidence
			resp.PrimaryIntent = it.Name
			resp.Confidence = it.Confidence
		}
	}

	if resp.PrimaryIntent == "" {
		return resp, fmt.Errorf("no intent found in classifier output")
	}
	return resp, nil
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
