package querybridgectl

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
)

type queryResult struct {
	Backend   string   `json:"backend"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
	Stats     struct {
		DurationMS int64 `json:"duration_ms"`
	} `json:"stats"`
}

type askResult struct {
	Conversion struct {
		SQL         string   `json:"sql"`
		Explanation string   `json:"explanation"`
		Confidence  float64  `json:"confidence"`
		Assumptions []string `json:"assumptions"`
	} `json:"conversion"`
	Result *queryResult `json:"result"`
}

func renderQuery(w io.Writer, raw []byte) error {
	var result queryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	return writeResultTable(w, result)
}

func renderAsk(w io.Writer, raw []byte) error {
	var answer askResult
	if err := json.Unmarshal(raw, &answer); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "SQL (confidence %.2f):\n%s\n", answer.Conversion.Confidence, answer.Conversion.SQL)
	if answer.Conversion.Explanation != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", answer.Conversion.Explanation)
	}
	for _, assumption := range answer.Conversion.Assumptions {
		_, _ = fmt.Fprintf(w, "  - %s\n", assumption)
	}
	_, _ = fmt.Fprintln(w)
	if answer.Result == nil {
		return nil
	}
	return writeResultTable(w, *answer.Result)
}

func renderSchema(w io.Writer, raw []byte) error {
	var schema struct {
		Database      string `json:"database"`
		SchemaContext string `json:"schema_context"`
		Fallback      bool   `json:"fallback"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return err
	}
	if schema.Fallback {
		_, _ = fmt.Fprintln(w, "no discovered schema; the built-in AdTech description is used")
		return nil
	}
	_, _ = fmt.Fprintln(w, schema.SchemaContext)
	return nil
}

func writeResultTable(w io.Writer, result queryResult) error {
	if len(result.Columns) == 0 {
		_, _ = fmt.Fprintln(w, "query returned no columns")
		return nil
	}
	data := pterm.TableData{result.Columns}
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatCell(value)
		}
		data = append(data, cells)
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, table)

	footer := fmt.Sprintf("%d rows in %d ms", result.RowCount, result.Stats.DurationMS)
	if result.Truncated {
		footer += " (truncated)"
	}
	_, _ = fmt.Fprintln(w, footer)
	return nil
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case float64:
		if typed == float64(int64(typed)) {
			return fmt.Sprintf("%d", int64(typed))
		}
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", typed), "0"), ".")
	default:
		return fmt.Sprint(typed)
	}
}
