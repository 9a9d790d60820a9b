package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONBMap is a JSON-backed map column, stored as jsonb in Postgres,
// assigned to/from map[string]any with a '{}' default.
type JSONBMap map[string]any

// Value implements driver.Valuer.
func (m JSONBMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONBMap) Scan(src any) error {
	if src == nil {
		*m = JSONBMap{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONBMap: unsupported scan type %T", src)
	}
	if len(b) == 0 {
		*m = JSONBMap{}
		return nil
	}
	out := make(map[string]any)
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*m = out
	return nil
}
