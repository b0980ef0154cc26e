package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedSnapshot indicates a response body that is not a JSON object.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

var jsonNull = []byte("null")

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

// flexFloat decodes a JSON number or numeric string. Anything else decodes to
// NaN so that callers can reject the value without failing the whole item.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	*f = flexFloat(parseFlexFloat(b))
	return nil
}

func parseFlexFloat(b []byte) float64 {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, jsonNull) {
		return math.NaN()
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return math.NaN()
		}
		s = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// flexInt decodes informational counters that upstream sometimes emits as
// floats or strings. Unparseable input decodes to zero.
type flexInt int

func (i *flexInt) UnmarshalJSON(b []byte) error {
	v := parseFlexFloat(b)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		*i = 0
		return nil
	}
	*i = flexInt(int(v))
	return nil
}

func floats(in []flexFloat) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// identityText normalises a JSON string or number into its text form.
func identityText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return canonicalNumber(n), true
}

// maxExactInt is the largest magnitude below which every integer is exact
// in a float64.
const maxExactInt = 1 << 53

// canonicalNumber spells integral numbers in plain decimal, so 1.5e3, 1500.0
// and 1500 name the same identity. Other numbers keep their JSON text.
func canonicalNumber(n json.Number) string {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || v != math.Trunc(v) || math.Abs(v) >= maxExactInt {
		return n.String()
	}
	return strconv.FormatInt(int64(v), 10)
}

// flexString decodes a JSON string as is and any other scalar as its JSON
// text. Objects, arrays and null decode to the empty string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, jsonNull) || b[0] == '{' || b[0] == '[':
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*f = ""
			return nil
		}
		*f = flexString(s)
	default:
		*f = flexString(b)
	}
	return nil
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
