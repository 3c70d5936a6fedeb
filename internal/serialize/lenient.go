package serialize

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

var htmlUnescaper = strings.NewReplacer(
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
)

// DecodeLenient parses raw as either encoding generation. Stages, in order:
//  1. plain JSON
//  2. HTML-entity unescape, then JSON
//  3. quote bare object keys and convert single-quoted strings, then JSON,
//     on the raw text first and the unescaped text second
//
// Returns false when every stage fails. Only diagnostic views should rely on this;
// the snapshot pipeline never decodes its own output.
func DecodeLenient(raw string) (any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	if v, ok := parseJSON(raw); ok {
		return v, true
	}

	unescaped := htmlUnescaper.Replace(raw)
	if unescaped != raw {
		if v, ok := parseJSON(unescaped); ok {
			return v, true
		}
	}

	if v, ok := parseObjectLiteral(raw); ok {
		return v, true
	}
	if unescaped != raw {
		return parseObjectLiteral(unescaped)
	}
	return nil, false
}

func parseObjectLiteral(s string) (any, bool) {
	converted, ok := objectLiteralToJSON(s)
	if !ok {
		return nil, false
	}
	return parseJSON(converted)
}

func parseJSON(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// objectLiteralToJSON rewrites a JavaScript-style object literal into JSON.
// It walks the input once, tracking string state, so separators inside
// string values are never mistaken for keys.
func objectLiteralToJSON(s string) (string, bool) {
	var out strings.Builder
	out.Grow(len(s) + 16)

	// last structural byte written outside of strings; a bare token is a key
	// only directly after '{' or ',' and directly before ':'
	var prev byte

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			end, ok := scanDoubleQuoted(s, i)
			if !ok {
				return "", false
			}
			out.WriteString(s[i:end])
			prev = '"'
			i = end

		case c == '\'':
			content, end, ok := scanSingleQuoted(s, i)
			if !ok {
				return "", false
			}
			out.WriteString(jsonString(content))
			prev = '"'
			i = end

		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			token := s[i:j]
			if (prev == '{' || prev == ',') && nextNonSpace(s, j) == ':' {
				out.WriteString(jsonString(token))
			} else {
				out.WriteString(token)
			}
			prev = 'a'
			i = j

		default:
			out.WriteByte(c)
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				prev = c
			}
			i++
		}
	}
	return out.String(), true
}

// scanDoubleQuoted returns the index just past the closing quote of the
// JSON string starting at s[start].
func scanDoubleQuoted(s string, start int) (int, bool) {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i + 1, true
		}
	}
	return 0, false
}

// scanSingleQuoted decodes the single-quoted literal starting at s[start] and
// returns its content and the index just past the closing quote.
func scanSingleQuoted(s string, start int) (string, int, bool) {
	var b strings.Builder
	for i := start + 1; i < len(s); {
		c := s[i]
		switch c {
		case '\'':
			return b.String(), i + 1, true
		case '\\':
			if i+1 >= len(s) {
				return "", 0, false
			}
			esc := s[i+1]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'u':
				if i+6 <= len(s) {
					if r, err := strconv.ParseUint(s[i+2:i+6], 16, 32); err == nil {
						b.WriteRune(rune(r))
						i += 6
						continue
					}
				}
				b.WriteByte('u')
			default:
				b.WriteByte(esc)
			}
			i += 2
		default:
			_, size := utf8.DecodeRuneInString(s[i:])
			b.WriteString(s[i : i+size])
			i += size
		}
	}
	return "", 0, false
}

func nextNonSpace(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return s[i]
		}
	}
	return 0
}
