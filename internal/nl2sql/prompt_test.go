package nl2sql

import (
	"strings"
	"testing"
)

func TestInferExampleTable(t *testing.T) {
	cases := map[string]string{
		"": "ad_performance",
		"## Table: ad_events (BASE TABLE)\n- event_id (BIGINT)": "ad_events",
		"## campaigns (FACT)":                        "campaigns",
		"tables: a, b, c":                            "your_table",
		"## Notes\n## Table: publishers (DIMENSION)": "publishers",
	}
	for schema, want := range cases {
		if got := inferExampleTable(schema); got != want {
			t.Fatalf("inferExampleTable(%q) = %q, want %q", schema, got, want)
		}
	}
}

func TestBuildPromptEmbedsRules(t *testing.T) {
	prompt := buildPrompt("  top countries  ", "")
	for _, want := range []string{
		"DATABASE SCHEMA:\nTable: ad_performance",
		"  - city: TEXT - City name",
		"- Always start with SELECT",
		"- Use appropriate JOINs for multi-table queries",
		"USER QUESTION: top countries\n",
		`- Use \n for newlines in SQL, not actual newlines`,
		`{"sql": "SELECT columns FROM ad_performance WHERE conditions", "explanation": "Brief description", "confidence": 0.95}`,
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("buildPrompt() missing %q:\n%s", want, prompt)
		}
	}
}
