package nl2sql

import (
	"fmt"
	"strings"
)

const systemInstruction = "You are a Firebolt SQL expert specializing in business analytics. " +
	"Generate valid Firebolt SQL with proper JOINs and aggregations. Always respond with valid JSON only."

const (
	fallbackTableName   = "ad_performance"
	genericExampleTable = "your_table"
)

type columnDoc struct {
	name string
	desc string
}

var fallbackColumns = []columnDoc{
	{"event_id", "BIGINT - Unique event identifier"},
	{"campaign_id", "INTEGER - Campaign identifier"},
	{"ad_id", "INTEGER - Ad identifier"},
	{"event_timestamp", "TIMESTAMP - Exact time of event"},
	{"event_date", "DATE - Date of event (partitioned)"},
	{"hour_of_day", "INTEGER - Hour of day (0-23)"},
	{"event_type", "TEXT - Type of event (impression, click, conversion)"},
	{"bid_amount", "DECIMAL(15,4) - Bid amount in currency"},
	{"cost", "DECIMAL(15,4) - Actual cost paid"},
	{"revenue", "DECIMAL(15,4) - Revenue generated"},
	{"campaign_name", "TEXT - Name of the campaign"},
	{"campaign_type", "TEXT - Type of campaign"},
	{"advertiser_name", "TEXT - Name of advertiser"},
	{"industry_vertical", "TEXT - Industry vertical"},
	{"publisher_name", "TEXT - Name of publisher"},
	{"publisher_category", "TEXT - Category of publisher"},
	{"publisher_tier", "TEXT - Tier of publisher"},
	{"device_type", "TEXT - Device type (mobile, desktop, tablet)"},
	{"browser", "TEXT - Browser used"},
	{"os", "TEXT - Operating system"},
	{"country", "TEXT - Country code"},
	{"region", "TEXT - Region/state"},
	{"city", "TEXT - City name"},
}

// FallbackSchema is substituted when no schema context has been supplied.
func FallbackSchema() string {
	lines := make([]string, 0, len(fallbackColumns)+3)
	lines = append(lines,
		"Table: "+fallbackTableName,
		"Description: AdTech performance data with events, financials, and campaign attributes",
		"Columns:",
	)
	for _, col := range fallbackColumns {
		lines = append(lines, fmt.Sprintf("  - %s: %s", col.name, col.desc))
	}
	return strings.Join(lines, "\n")
}

func buildPrompt(question, schemaContext string) string {
	schemaText := schemaContext
	if strings.TrimSpace(schemaText) == "" {
		schemaText = FallbackSchema()
	}
	example := inferExampleTable(schemaContext)

	var b strings.Builder
	b.WriteString("You are a Firebolt SQL expert. Convert this natural language question into a SQL query using the provided database schema.\n\n")
	b.WriteString("DATABASE SCHEMA:\n")
	b.WriteString(schemaText)
	b.WriteString("\n\nRULES:\n")
	b.WriteString("- Use only tables/columns from the schema above\n")
	b.WriteString("- Generate valid Firebolt SQL syntax\n")
	b.WriteString("- Use appropriate JOINs for multi-table queries\n")
	b.WriteString("- Always start with SELECT\n\n")
	b.WriteString("USER QUESTION: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nCRITICAL: Respond with ONLY valid JSON format. Follow these rules strictly:\n")
	b.WriteString("- Keep explanations SHORT (under 100 characters)\n")
	b.WriteString("- Use \\n for newlines in SQL, not actual newlines\n")
	b.WriteString("- Escape any quotes in strings with \\\"\n")
	b.WriteString("- No line breaks within the JSON structure\n\n")
	b.WriteString("Use this EXACT format:\n")
	fmt.Fprintf(&b, `{"sql": "SELECT columns FROM %s WHERE conditions", "explanation": "Brief description", "confidence": 0.95}`, example)
	return b.String()
}

// inferExampleTable picks the table named by the first "## name (" heading.
func inferExampleTable(schemaContext string) string {
	if strings.TrimSpace(schemaContext) == "" {
		return fallbackTableName
	}
	for _, line := range strings.Split(schemaContext, "\n") {
		if !strings.HasPrefix(line, "## ") || !strings.Contains(line, "(") {
			continue
		}
		name := strings.TrimPrefix(line, "## ")
		if idx := strings.Index(name, " ("); idx >= 0 {
			name = name[:idx]
		} else {
			name = name[:strings.Index(name, "(")]
		}
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "Table:"))
		if name != "" {
			return name
		}
	}
	return genericExampleTable
}
