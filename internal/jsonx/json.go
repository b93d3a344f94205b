package jsonx

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON stores a raw JSON document in a text/jsonb column and satisfies the
// sql.Scanner and driver.Valuer interfaces.
type JSON []byte

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("jsonx.JSON: invalid JSON value")
	}
	return append([]byte(nil), j...), nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("jsonx.JSON: invalid JSON payload")
	}
	*j = append((*j)[:0], data...)
	return nil
}

// Value implements driver.Valuer. Postgres accepts the string form for jsonb.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("jsonx.JSON: invalid JSON value")
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonx.JSON: unsupported scan type %T", value)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("jsonx.JSON: invalid JSON payload")
	}
	*j = append((*j)[:0], raw...)
	return nil
}
