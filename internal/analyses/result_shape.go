package analyses

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Shape tags which known layout a workflow result has.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeViolationList is {violations: [...], warnings: [...]}.
	ShapeViolationList
	// ShapeOverallAssessment is {overall_assessment: {compliance_score}, violations: [...]}.
	ShapeOverallAssessment
	// ShapeRegulationMap is {<regulation>: {compliant}, summary?, disclaimer?}.
	ShapeRegulationMap
	// ShapeErrorArray is [{output: "..."}]: the workflow failed internally.
	ShapeErrorArray
)

func (s Shape) String() string {
	switch s {
	case ShapeViolationList:
		return "violation_list"
	case ShapeOverallAssessment:
		return "overall_assessment"
	case ShapeRegulationMap:
		return "regulation_map"
	case ShapeErrorArray:
		return "error_array"
	default:
		return "unknown"
	}
}

// ParsedResult is a workflow result reduced to what the lifecycle needs.
type ParsedResult struct {
	Shape           Shape
	Score           int
	ViolationsCount int
	ErrorMessage    string
	// Raw is the result with any JSON-string wrapping removed; nil when absent.
	Raw json.RawMessage
}

// Summary returns the listing summary for the result.
func (p ParsedResult) Summary() Summary {
	return Summary{Score: p.Score, ViolationsCount: p.ViolationsCount, Shape: p.Shape.String()}
}

var reservedRegulationKeys = map[string]struct{}{
	"summary":    {},
	"disclaimer": {},
}

// ParseResult classifies raw. It never fails: unrecognized input is ShapeUnknown with score 0.
func ParseResult(raw json.RawMessage) ParsedResult {
	raw = unwrapJSONString(raw)
	if len(raw) == 0 {
		return ParsedResult{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ParsedResult{Raw: raw}
	}
	p := classify(v)
	p.Raw = raw
	return p
}

func unwrapJSONString(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if !strings.HasPrefix(trimmed, `"`) {
		return json.RawMessage(trimmed)
	}
	var inner string
	if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
		return json.RawMessage(trimmed)
	}
	inner = strings.TrimSpace(inner)
	if inner != "" && json.Valid([]byte(inner)) {
		return json.RawMessage(inner)
	}
	return json.RawMessage(trimmed)
}

func classify(v any) ParsedResult {
	switch t := v.(type) {
	case []any:
		if len(t) == 1 {
			if item, ok := t[0].(map[string]any); ok {
				if out, ok := item["output"]; ok {
					return ParsedResult{Shape: ShapeErrorArray, ErrorMessage: stringify(out)}
				}
			}
		}
		return ParsedResult{}
	case map[string]any:
		return classifyObject(t)
	default:
		return ParsedResult{}
	}
}

func classifyObject(m map[string]any) ParsedResult {
	if oa, ok := m["overall_assessment"].(map[string]any); ok {
		score, _ := number(oa["compliance_score"])
		return ParsedResult{
			Shape:           ShapeOverallAssessment,
			Score:           clampScore(score),
			ViolationsCount: arrayLen(m["violations"]),
		}
	}
	if vs, ok := m["violations"].([]any); ok {
		score, found := number(m["score"])
		if !found {
			score, _ = summaryScore(m)
		}
		return ParsedResult{
			Shape:           ShapeViolationList,
			Score:           clampScore(score),
			ViolationsCount: len(vs),
		}
	}

	total, compliant, nonCompliant := 0, 0, 0
	for key, val := range m {
		if _, skip := reservedRegulationKeys[key]; skip {
			continue
		}
		entry, ok := val.(map[string]any)
		if !ok {
			continue
		}
		c, ok := entry["compliant"]
		if !ok {
			continue
		}
		total++
		switch c {
		case true:
			compliant++
		case false:
			nonCompliant++
		}
	}
	if total > 0 {
		score, found := summaryScore(m)
		if !found {
			score = math.Round(float64(compliant) / float64(total) * 100)
		}
		return ParsedResult{
			Shape:           ShapeRegulationMap,
			Score:           clampScore(score),
			ViolationsCount: nonCompliant,
		}
	}

	p := ParsedResult{}
	if msg, ok := m["error"].(string); ok {
		p.ErrorMessage = msg
	} else if msg, ok := m["message"].(string); ok {
		p.ErrorMessage = msg
	}
	return p
}

func summaryScore(m map[string]any) (float64, bool) {
	summary, ok := m["summary"].(map[string]any)
	if !ok {
		return 0, false
	}
	return number(summary["compliance_score"])
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func arrayLen(v any) int {
	arr, _ := v.([]any)
	return len(arr)
}

func clampScore(f float64) int {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return int(math.Round(f))
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
