package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for storage and hashing.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping (< > & are written as-is)
//  3. Strings are NFC normalized
//  4. Numbers are written in exact plain notation (1.0 becomes 1), never rounded
//
// Values that are not a Value are first encoded with encoding/json and then
// re-read, so struct tags decide the field names.
func MarshalCanonical(v any) ([]byte, error) {
	val, ok := v.(Value)
	if !ok {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("canonical: %w", err)
		}
		val, err = ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("canonical: %w", err)
		}
	}
	return marshalCanonical(val)
}

func marshalCanonical(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return marshalCanonicalString(string(val))
	case Number:
		return marshalCanonicalNumber(val)
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Array:
		return marshalCanonicalArray(val)
	case Object:
		return marshalCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// marshalCanonicalString writes a JSON string with NFC normalization and
// without HTML escaping. U+2028 and U+2029 are written literally.
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}

	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return unescapeLineSeparators(out), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// number of backslashes is literal text and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && string(data[i+1:i+5]) == "u202" &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

// maxCanonicalDigits bounds the expansion of exponent literals. Longer
// forms are written as given.
const maxCanonicalDigits = 64

// marshalCanonicalNumber normalizes a number literal without rounding.
// Exact decimal forms are written in plain notation with no trailing zeros
// (1.50 becomes 1.5, 1e3 becomes 1000); the literal text is kept when the
// plain form would exceed maxCanonicalDigits.
func marshalCanonicalNumber(n Number) ([]byte, error) {
	s := strings.TrimSpace(string(n))
	if !isJSONNumber(s) {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return []byte(strconv.FormatInt(i, 10)), nil
	}
	if exp := strings.IndexAny(s, "eE"); exp >= 0 {
		e, err := strconv.Atoi(strings.TrimPrefix(s[exp+1:], "+"))
		if err != nil || e > maxCanonicalDigits || e < -maxCanonicalDigits {
			return []byte(s), nil
		}
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	if r.IsInt() {
		if d := r.Num().String(); len(d) <= maxCanonicalDigits {
			return []byte(d), nil
		}
		return []byte(s), nil
	}
	if k, ok := fractionDigits(r.Denom()); ok {
		return []byte(r.FloatString(k)), nil
	}
	return []byte(s), nil
}

// isJSONNumber reports whether s is a single JSON number token.
func isJSONNumber(s string) bool {
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) {
		return false
	}
	return json.Valid([]byte(s))
}

// fractionDigits returns the smallest k with d dividing 10^k, when k is at
// most maxCanonicalDigits. Denominators of decimal literals are 2^a * 5^b.
func fractionDigits(d *big.Int) (int, bool) {
	rest := new(big.Int).Set(d)
	var twos, fives int
	two, five := big.NewInt(2), big.NewInt(5)
	mod := new(big.Int)
	for rest.Cmp(big.NewInt(1)) != 0 {
		switch {
		case mod.Mod(rest, two).Sign() == 0:
			rest.Quo(rest, two)
			twos++
		case mod.Mod(rest, five).Sign() == 0:
			rest.Quo(rest, five)
			fives++
		default:
			return 0, false
		}
		if twos > maxCanonicalDigits || fives > maxCanonicalDigits {
			return 0, false
		}
	}
	return max(twos, fives), true
}

func marshalCanonicalArray(arr Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj Object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyBytes, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
