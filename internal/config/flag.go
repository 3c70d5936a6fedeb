package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Flag is a boolean setting. The storefront stores settings as strings, so
// "true" and "1" mean enabled and every other string means disabled.
type Flag bool

// ParseFlag interprets a storefront setting value.
func ParseFlag(s string) Flag {
	s = strings.TrimSpace(s)
	return Flag(s == "true" || s == "1")
}

// UnmarshalJSON accepts a JSON boolean, number or string.
func (f *Flag) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = false
	case bool:
		*f = Flag(t)
	case float64:
		*f = t == 1
	case string:
		*f = ParseFlag(t)
	default:
		return fmt.Errorf("invalid flag value %s", data)
	}
	return nil
}

// UnmarshalYAML accepts a YAML scalar.
func (f *Flag) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid flag at line %d: want a scalar", value.Line)
	}
	if value.Tag == "!!bool" {
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		*f = Flag(b)
		return nil
	}
	*f = ParseFlag(value.Value)
	return nil
}
