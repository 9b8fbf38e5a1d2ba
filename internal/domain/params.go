package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Params is an insertion-ordered label→value mapping from the detail page
// parameter table. A nil value marks a label with an empty value.
type Params struct {
	keys   []string
	values map[string]*string
}

// NewParams returns an empty Params.
func NewParams() *Params {
	return &Params{values: make(map[string]*string)}
}

// Set stores value under label. A repeated label keeps its first position.
func (p *Params) Set(label string, value *string) {
	if _, ok := p.values[label]; !ok {
		p.keys = append(p.keys, label)
	}
	p.values[label] = value
}

// Get returns the value for label and whether the label exists.
func (p *Params) Get(label string) (*string, bool) {
	v, ok := p.values[label]
	return v, ok
}

// Keys returns the labels in insertion order.
func (p *Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of labels.
func (p *Params) Len() int {
	return len(p.keys)
}

// MarshalJSON encodes the mapping as a JSON object in insertion order.
// Non-ASCII text is written literally.
func (p *Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(k); err != nil {
			return nil, fmt.Errorf("failed to encode param label: %w", err)
		}
		trimNewline(&buf)
		buf.WriteByte(':')
		if err := enc.Encode(p.values[k]); err != nil {
			return nil, fmt.Errorf("failed to encode param value: %w", err)
		}
		trimNewline(&buf)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Value implements driver.Valuer so Params can be bound to a jsonb column.
func (p *Params) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func trimNewline(buf *bytes.Buffer) {
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
}
