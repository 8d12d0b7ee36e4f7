package datatype

import (
	"database/sql/driver"
	"errors"
)

// JSON is a raw JSON document stored in a json column. The zero value and the
// literal "null" both count as null, so an absent document round-trips as SQL
// NULL instead of an empty string.
type JSON []byte

// Value implements the driver.Valuer interface
func (j *JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return []byte(*j), nil
}

// Scan implements the sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = append((*j)[0:0], v...)
	default:
		return errors.New("unable to convert type to JSON")
	}
	return nil
}

// MarshalJSON emits the document verbatim.
func (j *JSON) MarshalJSON() ([]byte, error) {
	if j.IsNull() {
		return []byte("null"), nil
	}
	return *j, nil
}

// UnmarshalJSON stores the document verbatim.
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("unmarshal into nil JSON")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// IsNull reports whether the document is absent or JSON null.
func (j *JSON) IsNull() bool {
	return len(*j) == 0 || string(*j) == "null"
}
