package bridge

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/querybridge/querybridge/internal/query"
)

// decodeRows interprets query tool output. A JSON array of objects maps to
// rows, any other JSON value becomes a single row, and non-JSON text is
// returned as {"result": text}. Columns keep the first-seen key order.
func decodeRows(text string) ([]string, []query.Record) {
	trimmed := strings.TrimSpace(text)
	raw := json.RawMessage(trimmed)
	if trimmed == "" || !json.Valid(raw) {
		return []string{"result"}, []query.Record{{"result": text}}
	}

	var items []json.RawMessage
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &items); err != nil {
			return []string{"result"}, []query.Record{{"result": text}}
		}
	} else {
		items = []json.RawMessage{raw}
	}

	columns := make([]string, 0)
	seen := map[string]struct{}{}
	rows := make([]query.Record, 0, len(items))
	for _, item := range items {
		keys, record, ok := decodeObject(item)
		if !ok {
			var value any
			_ = unmarshalNumber(item, &value)
			keys, record = []string{"result"}, query.Record{"result": value}
		}
		for _, key := range keys {
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				columns = append(columns, key)
			}
		}
		rows = append(rows, record)
	}
	return columns, rows
}

func decodeObject(raw json.RawMessage) ([]string, query.Record, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, false
	}

	keys := make([]string, 0)
	record := query.Record{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, false
		}
		key, _ := keyTok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, nil, false
		}
		if _, dup := record[key]; !dup {
			keys = append(keys, key)
		}
		record[key] = normalizeNumber(value)
	}
	return keys, record, true
}

func unmarshalNumber(raw json.RawMessage, out *any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	*out = normalizeNumber(*out)
	return nil
}

// normalizeNumber keeps integers exact and turns other numbers into float64.
func normalizeNumber(value any) any {
	switch typed := value.(type) {
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case map[string]any:
		for k, v := range typed {
			typed[k] = normalizeNumber(v)
		}
		return typed
	case []any:
		for i, v := range typed {
			typed[i] = normalizeNumber(v)
		}
		return typed
	default:
		return value
	}
}
