package query

import (
	"reflect"
	"testing"
)

func TestColumnsOfKeepsFirstSeenOrder(t *testing.T) {
	rows := []Record{
		{"b": 1, "a": 2},
		{"c": 3, "a": 4},
	}
	if got := ColumnsOf(rows); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("ColumnsOf() = %v", got)
	}
}

func TestValuesFollowsColumns(t *testing.T) {
	result := Result{
		Columns: []string{"country", "clicks"},
		Rows:    []Record{{"clicks": 7, "country": "US"}, {"country": "DE"}},
	}
	want := [][]any{{"US", 7}, {"DE", nil}}
	if got := result.Values(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Values() = %#v", got)
	}
	if result.RowCount() != 2 {
		t.Fatalf("RowCount() = %d", result.RowCount())
	}
}

func TestLimit(t *testing.T) {
	rows := []Record{{"n": 1}, {"n": 2}, {"n": 3}}
	if got, truncated := Limit(rows, 2); len(got) != 2 || !truncated {
		t.Fatalf("Limit(2) = %v, %v", got, truncated)
	}
	if got, truncated := Limit(rows, 3); len(got) != 3 || truncated {
		t.Fatalf("Limit(3) = %v, %v", got, truncated)
	}
	if got, truncated := Limit(rows, 0); len(got) != 3 || truncated {
		t.Fatalf("Limit(0) = %v, %v", got, truncated)
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	if got := StripTrailingSemicolons(" SELECT 1 ; ;\n"); got != "SELECT 1" {
		t.Fatalf("StripTrailingSemicolons() = %q", got)
	}
}

func TestWrappable(t *testing.T) {
	for sqlText, want := range map[string]bool{
		"SELECT 1":                        true,
		"with t as (select 1) select *":   true,
		"(SELECT 1) UNION (SELECT 2)":     true,
		"VALUES (1), (2)":                 true,
		"DESCRIBE ad_events":              false,
		"SHOW TABLES":                     false,
		"EXPLAIN SELECT * FROM ad_events": false,
	} {
		if got := wrappable(sqlText); got != want {
			t.Fatalf("wrappable(%q) = %v, want %v", sqlText, got, want)
		}
	}
}
