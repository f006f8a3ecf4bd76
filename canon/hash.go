package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// EncodingError reports content that has no canonical encoding: non-finite
// numbers, malformed number literals, invalid UTF-8, or unsupported Go types.
type EncodingError struct {
	Path   string // location inside the value, e.g. "$.a[2]"
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("canon: cannot encode %s: %s", e.Path, e.Reason)
}

// Hash returns the lowercase hex SHA-256 of the canonical encoding of v.
func Hash(v Value) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashMap hashes m as an object value.
func HashMap(m *Map) (string, error) {
	return Hash(ObjectValue(m))
}

// Canonical returns the canonical encoding of v. It matches, byte for byte,
// Python's json.dumps(v, sort_keys=True): sorted keys, ", " and ": "
// separators, ASCII-only output with \uXXXX escapes.
func Canonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v, "$"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value, at string) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		lit, err := normalizeNumber(v.s)
		if err != nil {
			return &EncodingError{Path: at, Reason: err.Error()}
		}
		buf.WriteString(lit)
	case String:
		if err := writeString(buf, v.s); err != nil {
			return &EncodingError{Path: at, Reason: err.Error()}
		}
	case Array:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := writeCanonical(buf, e, fmt.Sprintf("%s[%d]", at, i)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		// UTF-8 byte order is code point order, which is what Python sorts by.
		for i, k := range v.obj.SortedKeys() {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := writeString(buf, k); err != nil {
				return &EncodingError{Path: at + "." + k, Reason: err.Error()}
			}
			buf.WriteString(": ")
			if err := writeCanonical(buf, v.obj.vals[k], at+"."+k); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return &EncodingError{Path: at, Reason: fmt.Sprintf("unknown kind %s", v.kind)}
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("invalid UTF-8 in string")
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20 || (r >= 0x7f && r <= 0xffff):
				fmt.Fprintf(buf, `\u%04x`, r)
			case r > 0xffff:
				r -= 0x10000
				fmt.Fprintf(buf, `\u%04x\u%04x`, 0xd800+(r>>10), 0xdc00+(r&0x3ff))
			default:
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return nil
}

var numberLiteral = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// normalizeNumber maps a JSON number literal to the form Python would emit
// after a json.loads/json.dumps round trip: integers verbatim, everything
// else through float repr.
func normalizeNumber(lit string) (string, error) {
	if !numberLiteral.MatchString(lit) {
		return "", fmt.Errorf("invalid number literal %q", lit)
	}
	if !strings.ContainsAny(lit, ".eE") {
		if lit == "-0" {
			return "0", nil
		}
		return lit, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil || math.IsInf(f, 0) {
		return "", fmt.Errorf("number %q out of range", lit)
	}
	return formatFloat(f), nil
}

// formatFloat mirrors Python's float repr: shortest round-trip digits,
// scientific notation below 1e-4 or from 1e16, and a trailing ".0" on
// integral values.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
