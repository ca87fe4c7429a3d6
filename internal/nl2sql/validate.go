package nl2sql

import (
	"fmt"
	"strings"
)

const minSQLLength = 10

// analyticalPrefixes is a lexical allow-list, not a parser. A permitted leading
// keyword followed by "; DROP ..." still passes.
var analyticalPrefixes = []string{
	"SELECT",
	"WITH",
	"EXPLAIN",
	"DESCRIBE",
	"DESC",
	"SHOW",
	"VALUES",
	"(SELECT",
	"(WITH",
}

var mutatingKeywords = []string{"DROP", "DELETE", "UPDATE", "INSERT", "ALTER", "CREATE"}

func checkAnalytical(sql string) *Error {
	clean := stripCommentLines(strings.ToUpper(sql))
	if clean == "" {
		return &Error{Kind: KindValidation, Message: "SQL query is empty or contains only comments"}
	}
	if !hasAnalyticalPrefix(clean) {
		return &Error{
			Kind:    KindNonAnalyticalStatement,
			Message: fmt.Sprintf("SQL must be an analytical query (SELECT, WITH, EXPLAIN, DESCRIBE, SHOW, VALUES), got: %s", headOf(clean, 50)),
		}
	}
	if len(strings.TrimSpace(sql)) < minSQLLength {
		return &Error{Kind: KindValidation, Message: "SQL query too short"}
	}
	return nil
}

func stripCommentLines(sql string) string {
	kept := make([]string, 0, 8)
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") || strings.HasPrefix(line, "/*") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

// hasAnalyticalPrefix compares the first whitespace-delimited token, so any
// separator (tab, newline) after the keyword is accepted.
func hasAnalyticalPrefix(clean string) bool {
	fields := strings.Fields(clean)
	if len(fields) == 0 {
		return false
	}
	token := fields[0]
	for _, prefix := range analyticalPrefixes {
		if token == prefix || strings.HasPrefix(token, prefix+"(") {
			return true
		}
	}
	return false
}

func headOf(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

type Validation struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
	SQL    string   `json:"sql"`
}

// Validate is an independent lint. The keyword check is a plain substring
// search, so a column named "created_at" is reported as CREATE.
func Validate(sql string) Validation {
	issues := make([]string, 0, 2)
	upper := strings.ToUpper(strings.TrimSpace(sql))
	if upper == "" {
		issues = append(issues, "Empty SQL query")
	}
	if !strings.HasPrefix(upper, "SELECT") {
		issues = append(issues, "Query should start with SELECT")
	}
	for _, keyword := range mutatingKeywords {
		if strings.Contains(upper, keyword) {
			issues = append(issues, "Potentially dangerous keyword: "+keyword)
		}
	}
	return Validation{Valid: len(issues) == 0, Issues: issues, SQL: sql}
}
