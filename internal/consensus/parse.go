package consensus

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// parsedVote is the reviewer-controlled part of a vote.
type parsedVote struct {
	Vote           VoteValue
	Confidence     float64
	BlockingIssues []string
	Suggestions    []string
}

// ParseVote extracts a structured vote from raw reviewer output. Providers
// wrap JSON in prose or code fences often enough that we locate the first
// JSON object rather than unmarshal the whole response.
func ParseVote(raw string) (parsedVote, error) {
	doc := extractJSON(raw)
	if doc == "" {
		return parsedVote{}, fmt.Errorf("no JSON object in reviewer output")
	}

	voteField := gjson.Get(doc, "vote")
	if !voteField.Exists() {
		return parsedVote{}, fmt.Errorf("reviewer output missing vote field")
	}

	vote := VoteValue(strings.ToUpper(strings.TrimSpace(voteField.String())))
	switch vote {
	case VoteApprove, VoteConditional, VoteReject:
	default:
		return parsedVote{}, fmt.Errorf("unknown vote value %q", voteField.String())
	}

	confidence := gjson.Get(doc, "confidence").Float()
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return parsedVote{
		Vote:           vote,
		Confidence:     confidence,
		BlockingIssues: stringList(gjson.Get(doc, "blocking_issues")),
		Suggestions:    stringList(gjson.Get(doc, "suggestions")),
	}, nil
}

// extractJSON returns the first balanced top-level JSON object in raw.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}
	return ""
}

// stringList collects an array result's string values, dropping non-strings.
func stringList(result gjson.Result) []string {
	out := []string{}
	if !result.IsArray() {
		return out
	}
	for _, item := range result.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
