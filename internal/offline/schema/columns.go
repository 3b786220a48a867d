package schema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Edits is an item's edit history, stored as a JSON column.
type Edits []ItemEdit

// Scan implements sql.Scanner.
func (e *Edits) Scan(src any) error {
	return scanJSON(src, (*[]ItemEdit)(e))
}

// Value implements driver.Valuer.
func (e Edits) Value() (driver.Value, error) {
	return valueJSON([]ItemEdit(e))
}

// Results is a generation's per-channel output, stored as a JSON column.
type Results []GenerationResult

// Scan implements sql.Scanner.
func (r *Results) Scan(src any) error {
	return scanJSON(src, (*[]GenerationResult)(r))
}

// Value implements driver.Valuer.
func (r Results) Value() (driver.Value, error) {
	return valueJSON([]GenerationResult(r))
}

// StringList is a list of strings stored as a JSON column.
type StringList []string

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	return scanJSON(src, (*[]string)(l))
}

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	return valueJSON([]string(l))
}

func scanJSON(src any, dst any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func valueJSON(v any) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
