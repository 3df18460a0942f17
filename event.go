package netflow

import (
	"bytes"
	"encoding/json"
)

// Event is an insertion-ordered mapping from field name to decoded value, as
// required by §3: the synthesized @timestamp and promoted header fields are
// seeded first, in the order §4.E lists them, followed by decoded record
// fields in wire order.
type Event struct {
	keys   []string
	values map[string]interface{}
}

// NewEvent returns an empty Event ready for Set calls.
func NewEvent() *Event {
	return &Event{values: make(map[string]interface{})}
}

// Set inserts or overwrites the value for name. Overwriting an existing key
// does not change its position in insertion order.
func (e *Event) Set(name string, value interface{}) {
	if _, ok := e.values[name]; !ok {
		e.keys = append(e.keys, name)
	}
	e.values[name] = value
}

// SetIfAbsent sets name to value only if name is not already present, and
// reports whether it did so. Used by sampler decoration (§4.E rule 5), which
// must never overwrite a field already carried by the record.
func (e *Event) SetIfAbsent(name string, value interface{}) bool {
	if _, ok := e.values[name]; ok {
		return false
	}
	e.Set(name, value)
	return true
}

// Get returns the value stored under name and whether it was present.
func (e *Event) Get(name string) (interface{}, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Has reports whether name is present in the event.
func (e *Event) Has(name string) bool {
	_, ok := e.values[name]
	return ok
}

// Keys returns the field names in insertion order.
func (e *Event) Keys() []string {
	return e.keys
}

// Len returns the number of fields currently in the event.
func (e *Event) Len() int {
	return len(e.keys)
}

var _ json.Marshaler = &Event{}

// MarshalJSON renders the event as a JSON object, preserving field insertion
// order (encoding/json on a map would sort keys alphabetically instead).
func (e *Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
