package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/querybridge/querybridge/internal/query"
)

const DefaultSchemaName = "public"

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	DDL          string   `json:"ddl,omitempty"`
	PrimaryIndex string   `json:"primary_index,omitempty"`
	Columns      []Column `json:"columns"`
}

// Discover checks connectivity and reads tables and columns of one schema
// from information_schema. The detailed table listing (ddl, primary_index)
// is Firebolt specific, so a failure falls back to the basic listing.
func Discover(ctx context.Context, engine query.Engine, schemaName string) ([]Table, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if strings.TrimSpace(schemaName) == "" {
		schemaName = DefaultSchemaName
	}
	literal := quoteLiteral(schemaName)

	check, err := engine.Execute(ctx, query.Request{SQL: "SELECT 1 AS test_connection"})
	if err != nil {
		return nil, fmt.Errorf("connectivity check: %w", err)
	}
	if len(check.Rows) == 0 {
		return nil, fmt.Errorf("connectivity check returned no rows")
	}

	tablesRes, err := engine.Execute(ctx, query.Request{SQL: fmt.Sprintf(
		"SELECT table_name, table_type, ddl, primary_index FROM information_schema.tables WHERE table_schema = %s ORDER BY table_name", literal)})
	if err != nil {
		tablesRes, err = engine.Execute(ctx, query.Request{SQL: fmt.Sprintf(
			"SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = %s ORDER BY table_name", literal)})
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
	}

	columnsRes, err := engine.Execute(ctx, query.Request{SQL: fmt.Sprintf(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = %s ORDER BY table_name, ordinal_position", literal)})
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}

	tables := make([]Table, 0, len(tablesRes.Rows))
	index := map[string]int{}
	for _, row := range tablesRes.Rows {
		name := stringField(row, "table_name")
		if name == "" {
			continue
		}
		if _, dup := index[name]; dup {
			continue
		}
		tableType := stringField(row, "table_type")
		if tableType == "" {
			tableType = "TABLE"
		}
		index[name] = len(tables)
		tables = append(tables, Table{
			Name:         name,
			Type:         tableType,
			DDL:          stringField(row, "ddl"),
			PrimaryIndex: stringField(row, "primary_index"),
			Columns:      []Column{},
		})
	}
	for _, row := range columnsRes.Rows {
		i, ok := index[stringField(row, "table_name")]
		if !ok {
			continue
		}
		tables[i].Columns = append(tables[i].Columns, Column{
			Name: stringField(row, "column_name"),
			Type: stringField(row, "data_type"),
		})
	}
	return tables, nil
}

// Format renders tables as the schema context handed to the SQL generator.
func Format(database string, tables []Table) string {
	if len(tables) == 0 {
		return ""
	}
	var b strings.Builder
	if strings.TrimSpace(database) != "" {
		fmt.Fprintf(&b, "# Database: %s\n\n", database)
	}
	for i, table := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## Table: %s (%s)\n", table.Name, table.Type)
		if table.PrimaryIndex != "" {
			fmt.Fprintf(&b, "Primary Index: %s\n", table.PrimaryIndex)
		}
		for _, column := range table.Columns {
			fmt.Fprintf(&b, "- %s (%s)\n", column.Name, column.Type)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func stringField(row query.Record, key string) string {
	value, ok := row[key]
	if !ok || value == nil {
		return ""
	}
	if s, isString := value.(string); isString {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
