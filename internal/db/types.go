package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringSlice is a []string stored as a jsonb array. A NULL column scans to an
// empty slice, and a nil slice is written as [] so set predicates never see NULL.
type StringSlice []string

// FromCSV splits a comma separated list, trimming blanks and dropping empties.
func FromCSV(raw string) StringSlice {
	out := StringSlice{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Scan implements sql.Scanner
func (s *StringSlice) Scan(src interface{}) error {
	if s == nil {
		return fmt.Errorf("db: Scan on nil *StringSlice")
	}

	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = StringSlice{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("db: cannot scan %T into StringSlice", src)
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("db: decode StringSlice: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*s = out
	return nil
}

// Value implements driver.Valuer
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// ContainsFold reports whether any element equals v, ignoring case.
func (s StringSlice) ContainsFold(v string) bool {
	for _, e := range s {
		if strings.EqualFold(e, v) {
			return true
		}
	}
	return false
}
