package cards

import "strings"

// Record is the flat field-to-value mapping for one card subject.
type Record map[string]string

// Lookup returns the trimmed value for the field when it is present and non-empty.
func (r Record) Lookup(field string) (string, bool) {
	if r == nil || field == "" {
		return "", false
	}
	value, ok := r[field]
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// FirstOf returns the first present value among the fields.
func (r Record) FirstOf(fields ...string) (string, bool) {
	for _, field := range fields {
		if value, ok := r.Lookup(field); ok {
			return value, true
		}
	}
	return "", false
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	cloned := make(Record, len(r))
	for key, value := range r {
		cloned[key] = value
	}
	return cloned
}
