package stock

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResultSet maps stock names to their persisted records while remembering
// insertion order. The zero value is not usable; call NewResultSet.
type ResultSet struct {
	order   []string
	records map[string]ResultRecord
}

// NewResultSet returns an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{records: make(map[string]ResultRecord)}
}

// NewResultSetFrom builds a set from records in order. A repeated name
// overwrites the earlier record but keeps its position.
func NewResultSetFrom(records []ResultRecord) *ResultSet {
	s := NewResultSet()
	for _, r := range records {
		s.Upsert(r)
	}
	return s
}

// Len returns the number of records.
func (s *ResultSet) Len() int {
	return len(s.order)
}

// Has reports whether name is present.
func (s *ResultSet) Has(name string) bool {
	_, ok := s.records[name]
	return ok
}

// Get returns the record stored under name.
func (s *ResultSet) Get(name string) (ResultRecord, bool) {
	r, ok := s.records[name]
	return r, ok
}

// Upsert inserts the record at the end, or overwrites an existing record
// in place. It reports whether the record was newly inserted.
func (s *ResultSet) Upsert(r ResultRecord) bool {
	_, exists := s.records[r.Name]
	s.records[r.Name] = r
	if !exists {
		s.order = append(s.order, r.Name)
	}
	return !exists
}

// Delete removes name and reports whether it was present.
func (s *ResultSet) Delete(name string) bool {
	if _, ok := s.records[name]; !ok {
		return false
	}
	delete(s.records, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Names returns the keys in order.
func (s *ResultSet) Names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Records returns the records in order.
func (s *ResultSet) Records() []ResultRecord {
	out := make([]ResultRecord, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.records[name])
	}
	return out
}

// Truncate keeps the first n records and returns how many were dropped.
func (s *ResultSet) Truncate(n int) int {
	if n < 0 || len(s.order) <= n {
		return 0
	}
	dropped := s.order[n:]
	for _, name := range dropped {
		delete(s.records, name)
	}
	s.order = s.order[:n:n]
	return len(dropped)
}

// Clone returns an independent copy.
func (s *ResultSet) Clone() *ResultSet {
	return NewResultSetFrom(s.Records())
}

// Equal reports whether both sets hold the same records in the same order.
func (s *ResultSet) Equal(other *ResultSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, name := range s.order {
		if other.order[i] != name || other.records[name] != s.records[name] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as an array of records. Names are written
// verbatim: '&', '<' and '>' are not escaped.
func (s *ResultSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s.Records()); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes an array of records.
func (s *ResultSet) UnmarshalJSON(data []byte) error {
	var records []ResultRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode result set: %w", err)
	}
	*s = *NewResultSetFrom(records)
	return nil
}
