package nl2sql

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	extractedExplanation = "SQL query generated for complex business analysis"
	extractedConfidence  = 0.8
	searchedExplanation  = "Complex query extracted from response"
	searchedConfidence   = 0.7
	rawOutputLimit       = 500
)

type parsedFields struct {
	SQL         string
	HasSQL      bool
	Explanation *string
	Confidence  *float64
	Assumptions []string
}

type parseStrategy struct {
	name string
	fn   func(text string) (parsedFields, bool)
}

// Order matters: the first strategy that succeeds wins.
var parseStrategies = []parseStrategy{
	{name: "json", fn: parseDirectJSON},
	{name: "repaired_json", fn: parseRepairedJSON},
	{name: "field_extraction", fn: extractFields},
	{name: "sql_search", fn: searchSQL},
}

// Parse turns raw model text into a validated Result. It performs no I/O, so
// the same text always yields the same outcome.
func Parse(raw string) (Result, error) {
	text := stripCodeFence(strings.TrimSpace(raw))

	var (
		fields parsedFields
		ok     bool
	)
	for _, strategy := range parseStrategies {
		if fields, ok = strategy.fn(text); ok {
			break
		}
	}
	if !ok {
		return Result{}, &Error{
			Kind:      KindUnparsableResponse,
			Message:   "model response contained neither a JSON object nor a SQL statement",
			RawOutput: truncate(raw, rawOutputLimit),
		}
	}
	return finalize(fields, raw)
}

func finalize(fields parsedFields, raw string) (Result, error) {
	sql := strings.TrimSpace(fields.SQL)
	if !fields.HasSQL || sql == "" {
		return Result{}, &Error{Kind: KindMissingSQLField, Message: "response has no sql value", RawOutput: truncate(raw, rawOutputLimit)}
	}
	if err := checkAnalytical(sql); err != nil {
		err.RawOutput = truncate(raw, rawOutputLimit)
		return Result{}, err
	}

	result := Result{
		SQL:         sql,
		Explanation: "Firebolt SQL query generated",
		Confidence:  0.9,
		Assumptions: []string{},
		RawResponse: raw,
	}
	if fields.Explanation != nil {
		result.Explanation = *fields.Explanation
	}
	if fields.Confidence != nil {
		result.Confidence = clampConfidence(*fields.Confidence)
	}
	if fields.Assumptions != nil {
		result.Assumptions = fields.Assumptions
	}
	return result, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= 2 {
		return text
	}
	body := lines[1:]
	if strings.HasPrefix(strings.TrimSpace(body[len(body)-1]), "```") {
		body = body[:len(body)-1]
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

// isolateObject returns the outermost {...} span, or false when there is none.
func isolateObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func parseDirectJSON(text string) (parsedFields, bool) {
	obj, ok := isolateObject(text)
	if !ok {
		return parsedFields{}, false
	}
	return decodeObject(obj)
}

func parseRepairedJSON(text string) (parsedFields, bool) {
	obj, ok := isolateObject(text)
	if !ok {
		return parsedFields{}, false
	}
	return decodeObject(repairJSON(obj))
}

func decodeObject(obj string) (parsedFields, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return parsedFields{}, false
	}

	var fields parsedFields
	if v, ok := payload["sql"]; ok {
		if s, isString := v.(string); isString {
			fields.SQL = s
			fields.HasSQL = true
		}
	}
	if v, ok := payload["explanation"].(string); ok {
		fields.Explanation = &v
	}
	if f, ok := numberValue(payload["confidence"]); ok {
		fields.Confidence = &f
	}
	if list, ok := payload["assumptions"].([]any); ok {
		fields.Assumptions = make([]string, 0, len(list))
		for _, item := range list {
			if s, isString := item.(string); isString {
				fields.Assumptions = append(fields.Assumptions, s)
			}
		}
	}
	return fields, true
}

func numberValue(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// repairJSON escapes raw control characters inside string literals and any
// quote inside a string that is not followed by a structural character.
func repairJSON(obj string) string {
	var b strings.Builder
	b.Grow(len(obj) + 16)

	inString := false
	escaped := false
	for i := 0; i < len(obj); i++ {
		c := obj[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\\':
			escaped = true
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '"':
			if closesString(obj[i+1:]) {
				inString = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func closesString(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	if rest == "" {
		return true
	}
	switch rest[0] {
	case ',', '}', ':', ']':
		return true
	}
	return false
}

var (
	sqlFieldKeyed  = regexp.MustCompile(`(?s)"sql"\s*:\s*"(.*?)"\s*(?:,\s*"(?:explanation|confidence|assumptions)"\s*:|}\s*$)`)
	sqlFieldLoose  = regexp.MustCompile(`(?s)"sql"\s*:\s*"((?:[^"\\]|\\.)*)"\s*[,}]`)
	explanationRe  = regexp.MustCompile(`(?s)"explanation"\s*:\s*"((?:[^"\\]|\\.)*)"\s*[,}]`)
	confidenceRe   = regexp.MustCompile(`"confidence"\s*:\s*([0-9.]+)`)
	sqlUnescaper   = strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t")
	proseUnescaper = strings.NewReplacer(`\"`, `"`, `\n`, " ", `\t`, " ")
	// Bare statements must be written with upper-case keywords and either
	// open a line or read SELECT ... FROM, so prose like "cannot select rows"
	// never matches.
	selectLineRe    = regexp.MustCompile(`(?m)^[ \t]*SELECT\s+\S`)
	selectFromRe    = regexp.MustCompile(`\bSELECT\s+[^;\n]+?\s+FROM\s+\S`)
	withSelectRe    = regexp.MustCompile(`\bWITH\s+(?:RECURSIVE\s+)?\w+\s+AS\s*\([\s\S]*?\bSELECT\b`)
	sqlTerminatorRe = regexp.MustCompile("\n\\s*\n|```")
)

func extractFields(text string) (parsedFields, bool) {
	obj, ok := isolateObject(text)
	if !ok {
		return parsedFields{}, false
	}

	match := sqlFieldKeyed.FindStringSubmatch(obj)
	if match == nil {
		match = sqlFieldLoose.FindStringSubmatch(obj)
	}
	if match == nil {
		return parsedFields{}, false
	}

	explanation := extractedExplanation
	if m := explanationRe.FindStringSubmatch(obj); m != nil {
		explanation = proseUnescaper.Replace(m[1])
	}
	confidence := extractedConfidence
	if m := confidenceRe.FindStringSubmatch(obj); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			confidence = f
		}
	}
	return parsedFields{
		SQL:         sqlUnescaper.Replace(match[1]),
		HasSQL:      true,
		Explanation: &explanation,
		Confidence:  &confidence,
	}, true
}

func searchSQL(text string) (parsedFields, bool) {
	start := -1
	for _, re := range []*regexp.Regexp{withSelectRe, selectLineRe, selectFromRe} {
		if loc := re.FindStringIndex(text); loc != nil && (start < 0 || loc[0] < start) {
			start = loc[0]
		}
	}
	if start < 0 {
		return parsedFields{}, false
	}

	stmt := text[start:]
	if loc := sqlTerminatorRe.FindStringIndex(stmt); loc != nil {
		stmt = stmt[:loc[0]]
	}
	if idx := strings.Index(stmt, ";"); idx >= 0 {
		stmt = stmt[:idx+1]
	}
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return parsedFields{}, false
	}

	explanation := searchedExplanation
	confidence := searchedConfidence
	return parsedFields{SQL: stmt, HasSQL: true, Explanation: &explanation, Confidence: &confidence}, true
}

func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// truncate keeps at most limit runes of s, marking a cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
