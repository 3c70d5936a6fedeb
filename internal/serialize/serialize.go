// Package serialize encodes nested key/value maps into the two attribute
// encodings the tracker understands and decodes them leniently for diagnostics.
//
// Two format generations exist:
//
//	JSON     {"12":{"amount":2,"name":"Dummyartikel","variants":{"Farbe":"rot"}}}
//	Compact  {12:{amount:2,name:'Dummyartikel',variants:{Farbe:'rot'}}}
//
// Compact is canonical. JSON is kept for stores still reading the old attributes.
package serialize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"uptain-sync/internal/model"
)

// Field is one entry of a Map. Value is a string, an integer, a bool or a nested Map.
type Field struct {
	Key   string
	Value any
}

// Map is an insertion-ordered nested map.
type Map []Field

// ProductEntry builds the value stored for one product id in a product map.
// The variants sub-map is dropped by EncodeCompact when empty.
func ProductEntry(amount int, name string, variants model.VariantMap) Map {
	vm := make(Map, 0, len(variants))
	for _, p := range variants {
		vm = append(vm, Field{Key: p.Name, Value: p.Value})
	}
	return Map{
		{Key: "amount", Value: amount},
		{Key: "name", Value: name},
		{Key: "variants", Value: vm},
	}
}

// EncodeJSON renders m as standard JSON, preserving key order. An empty map is "{}".
func EncodeJSON(m Map) string {
	var b strings.Builder
	writeJSON(&b, m)
	return b.String()
}

func writeJSON(b *strings.Builder, m Map) {
	b.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(jsonString(f.Key))
		b.WriteByte(':')
		switch v := f.Value.(type) {
		case Map:
			writeJSON(b, v)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				raw = []byte(jsonString(fmt.Sprint(v)))
			}
			b.Write(raw)
		}
	}
	b.WriteByte('}')
}

func jsonString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

// EncodeCompact renders m in the compact bracket format: keys unquoted,
// strings single-quoted with \ and ' escaped, empty nested maps omitted.
// Keys that are not bare identifiers are single-quoted so they survive decoding.
func EncodeCompact(m Map) string {
	var b strings.Builder
	writeCompact(&b, m)
	return b.String()
}

func writeCompact(b *strings.Builder, m Map) {
	b.WriteByte('{')
	first := true
	for _, f := range m {
		if nested, ok := f.Value.(Map); ok && len(nested) == 0 {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false

		if isBareKey(f.Key) {
			b.WriteString(f.Key)
		} else {
			b.WriteString(singleQuote(f.Key))
		}
		b.WriteByte(':')
		writeCompactValue(b, f.Value)
	}
	b.WriteByte('}')
}

func writeCompactValue(b *strings.Builder, v any) {
	switch v := v.(type) {
	case Map:
		writeCompact(b, v)
	case string:
		b.WriteString(singleQuote(v))
	case int:
		b.WriteString(strconv.Itoa(v))
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		b.WriteString(strconv.FormatBool(v))
	case nil:
		b.WriteString("null")
	default:
		b.WriteString(singleQuote(fmt.Sprint(v)))
	}
}

var compactEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func singleQuote(s string) string {
	return "'" + compactEscaper.Replace(s) + "'"
}

func isBareKey(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		if !isIdentByte(key[i]) {
			return false
		}
	}
	return true
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
