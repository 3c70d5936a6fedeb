package serialize

import (
	"sort"
	"strconv"
)

// ParseDebugRows turns a wishlist/category/product attribute dump into table
// rows for a diagnostic viewer:
//   - an array yields its object elements
//   - a map whose values include objects yields those object values
//   - any other object yields itself as a single row
//
// Returns nil when raw is empty, undecodable, or has no object rows.
func ParseDebugRows(raw string) []map[string]any {
	if raw == "" {
		return nil
	}

	parsed, ok := DecodeLenient(raw)
	if !ok {
		return nil
	}

	switch v := parsed.(type) {
	case []any:
		return objectRows(v)
	case map[string]any:
		values := make([]any, 0, len(v))
		looksLikeMap := false
		for _, k := range sortedKeys(v) {
			if _, isObj := v[k].(map[string]any); isObj {
				looksLikeMap = true
			}
			values = append(values, v[k])
		}
		if looksLikeMap {
			return objectRows(values)
		}
		return []map[string]any{v}
	default:
		return nil
	}
}

func objectRows(items []any) []map[string]any {
	var rows []map[string]any
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			rows = append(rows, obj)
		}
	}
	return rows
}

// sortedKeys lists integer-like keys ascending, as a browser enumerates them.
// The remaining keys follow in lexical order since a Go map keeps no
// insertion order to reproduce.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, iok := arrayIndex(keys[i])
		nj, jok := arrayIndex(keys[j])
		switch {
		case iok && jok:
			return ni < nj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

func arrayIndex(k string) (uint64, bool) {
	if k == "" || (len(k) > 1 && k[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(k, 10, 32)
	return n, err == nil
}
