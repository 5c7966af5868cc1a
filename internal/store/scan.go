package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// marshalStrings encodes a string slice for a TEXT column. nil encodes as [].
func marshalStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// unmarshalStrings decodes a TEXT column written by marshalStrings.
func unmarshalStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

// unixOrNil converts a nullable unix-seconds column to a time pointer.
func unixOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

// nilOrUnix converts a time pointer to a nullable unix-seconds value.
func nilOrUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
