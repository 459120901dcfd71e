// Package jsonl provides small helpers for decoding the polymorphic JSONL
// streams the cache engine folds into its index.
package jsonl

import "encoding/json"

// Peek decodes just enough of a JSONL line to recover its discriminator
// fields, without fully unmarshaling into a concrete entity type.
type Peek struct {
	ID      string `json:"id"`
	Kind    string `json:"entity_type"`
	Deleted bool   `json:"deleted"`
}

// DecodePeek parses the discriminator fields of a single JSONL line.
func DecodePeek(line string) (Peek, error) {
	var p Peek
	err := json.Unmarshal([]byte(line), &p)
	return p, err
}

// Decode unmarshals a JSONL line into dst.
func Decode(line string, dst any) error {
	return json.Unmarshal([]byte(line), dst)
}

// Encode marshals v into a single JSONL line (no trailing newline).
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
