package serialize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FromJSON parses a JSON object into a Map, keeping key order. Numbers
// that are integral become int64, others float64. Arrays are not part of
// either attribute encoding and are rejected.
func FromJSON(data []byte) (Map, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}
	m, err := readObject(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err == nil {
		return nil, errors.New("trailing data after object")
	}
	return m, nil
}

// readObject reads members up to and including the closing brace.
func readObject(dec *json.Decoder) (Map, error) {
	m := Map{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}
		val, err := readValue(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		m = append(m, Field{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return m, nil
}

func readValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		if v != '{' {
			return nil, errors.New("arrays are not supported")
		}
		return readObject(dec)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		return v.Float64()
	default:
		return v, nil
	}
}
