// Package storage persists completed Trails and their TrailSteps via
// bun, grounded on the teacher's internal/infrastructure/storage
// layer: a thin repository wrapping a transactional Create and custom
// JSONB/array scalar types. It does not create or migrate the schema.
package storage

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONBMap backs the jsonb columns (Metadata, ContentData).
type JSONBMap map[string]any

// Value implements driver.Valuer.
func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSONBMap) Scan(value any) error {
	if value == nil {
		*j = make(JSONBMap)
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return errors.New("storage: JSONBMap.Scan: unsupported source type")
		}
	}
	if len(b) == 0 {
		*j = make(JSONBMap)
		return nil
	}
	return json.Unmarshal(b, j)
}

// StringArray backs the text[] Tags column.
type StringArray []string

// Value implements driver.Valuer, encoding as a Postgres array literal.
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	s := string(b)
	return "{" + s[1:len(s)-1] + "}", nil
}

// Scan implements sql.Scanner, decoding a Postgres array literal.
func (a *StringArray) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	var s string
	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return errors.New("storage: StringArray.Scan: unsupported source type")
	}
	if len(s) < 2 || s == "{}" {
		*a = StringArray{}
		return nil
	}
	return json.Unmarshal([]byte("["+s[1:len(s)-1]+"]"), a)
}
