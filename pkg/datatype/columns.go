package datatype

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

/**
 * gorm column types for denormalized secret metadata:
 * StringSet   - unordered unique ids (parent references)
 * StringList  - ordered ids/names, duplicates allowed
 * CountMap    - name -> occurrence counter (search tags)
 * All three serialize to JSON text columns.
 */

type StringSet map[string]struct{}

// NewStringSet builds a set from the given members.
func NewStringSet(members ...string) StringSet {
	s := make(StringSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

func (s StringSet) Has(member string) bool {
	_, ok := s[member]
	return ok
}

// Add inserts member and reports whether it was absent before.
func (s StringSet) Add(member string) bool {
	if s.Has(member) {
		return false
	}
	s[member] = struct{}{}
	return true
}

// Remove deletes member and reports whether it was present.
func (s StringSet) Remove(member string) bool {
	if !s.Has(member) {
		return false
	}
	delete(s, member)
	return true
}

func (s StringSet) Members() []string {
	members := make([]string, 0, len(s))
	for m := range s {
		members = append(members, m)
	}
	return members
}

// Value implements the driver.Valuer interface
func (s StringSet) Value() (driver.Value, error) {
	data, err := json.Marshal(s.Members())
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Scan implements the sql.Scanner interface
func (s *StringSet) Scan(value interface{}) error {
	data, err := columnBytes(value)
	if err != nil {
		return err
	}
	*s = make(StringSet)
	if len(data) == 0 {
		return nil
	}
	var members []string
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	for _, m := range members {
		(*s)[m] = struct{}{}
	}
	return nil
}

// MarshalJSON renders the set as a JSON array.
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Members())
}

// UnmarshalJSON accepts a JSON array of members.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var members []string
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	*s = NewStringSet(members...)
	return nil
}

type StringList []string

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	data, err := columnBytes(value)
	if err != nil {
		return err
	}
	*l = StringList{}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, l)
}

// RemoveFirst deletes the first occurrence of member, keeping order.
func (l StringList) RemoveFirst(member string) StringList {
	for i, m := range l {
		if m == member {
			return append(l[:i:i], l[i+1:]...)
		}
	}
	return l
}

// Count returns the number of occurrences of member.
func (l StringList) Count(member string) int {
	n := 0
	for _, m := range l {
		if m == member {
			n++
		}
	}
	return n
}

type CountMap map[string]int

// Inc bumps the counter for key.
func (m CountMap) Inc(key string) {
	m[key]++
}

// Dec lowers the counter for key, deleting the entry when it reaches zero.
func (m CountMap) Dec(key string) {
	n, ok := m[key]
	if !ok {
		return
	}
	if n <= 1 {
		delete(m, key)
		return
	}
	m[key] = n - 1
}

func (m CountMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Value implements the driver.Valuer interface
func (m CountMap) Value() (driver.Value, error) {
	if m == nil {
		m = CountMap{}
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface
func (m *CountMap) Scan(value interface{}) error {
	data, err := columnBytes(value)
	if err != nil {
		return err
	}
	*m = CountMap{}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, m)
}

func columnBytes(value interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unable to convert %T to JSON column", value)
	}
}
