// Package transform converts between the backend's stored record shapes and
// the typed structures the portal edits. Conversions never fail: missing or
// malformed fields fall back to defaults, and keys the portal does not know
// are carried through untouched.
package transform

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"tourdesk/internal/money"
)

// Record is a decoded JSON object.
type Record = map[string]any

// DecodeRecord parses a JSON object, keeping numbers as json.Number.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out Record
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = Record{}
	}
	return out, nil
}

func extraFrom(raw Record, known map[string]struct{}) map[string]any {
	var extra map[string]any
	for k, v := range raw {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[k] = v
	}
	return extra
}

func keys(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func mergeExtra(dst Record, extra map[string]any) {
	for k, v := range extra {
		if _, taken := dst[k]; !taken {
			dst[k] = v
		}
	}
}

func readString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func readInt(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return def
		}
		return int(math.Round(t))
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return int(math.Round(f))
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return i
		}
	}
	return def
}

func readBool(v any, def bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f != 0
		}
	}
	return def
}

// readCents accepts decimal strings ("123.45") and JSON numbers in major
// units. Extra decimals round half away from zero, whichever
// form the amount arrives in.
func readCents(v any) money.Cents {
	switch t := v.(type) {
	case string:
		if c, err := money.RoundCents(t); err == nil {
			return c
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return money.FromFloat(f)
		}
	case json.Number:
		if c, err := money.RoundCents(t.String()); err == nil {
			return c
		}
		if f, err := t.Float64(); err == nil {
			return money.FromFloat(f)
		}
	case float64:
		return money.FromFloat(t)
	case int:
		return money.Cents(t) * 100
	case int64:
		return money.Cents(t) * 100
	case money.Cents:
		return t
	}
	return 0
}

func readStrings(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []string:
		out = append(out, t...)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else if s := readString(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func readObject(v any) (Record, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, false
		}
		rec, err := DecodeRecord([]byte(t))
		if err != nil {
			return nil, false
		}
		return rec, true
	}
	return nil, false
}

func readObjects(v any) []Record {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}
