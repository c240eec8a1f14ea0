package models

import (
	"math"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
)

// FormatFloat renders f with the shortest round-trip digits, keeping a
// trailing ".0" on integral values and switching to exponent form outside
// [1e-4, 1e16).
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
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

// formatNumber keeps integer literals as written and normalizes the rest
// through FormatFloat.
func formatNumber(raw []byte) string {
	s := string(raw)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return s
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return FormatFloat(f)
}

// renderValue returns the plain-text form of a JSON value as used in remarks.
// Strings are unquoted at the top level; nested strings are quoted.
func renderValue(value []byte, dt jsonparser.ValueType) string {
	if dt == jsonparser.String {
		if s, err := jsonparser.ParseString(value); err == nil {
			return s
		}
		return string(value)
	}
	return reprValue(value, dt)
}

func reprValue(value []byte, dt jsonparser.ValueType) string {
	switch dt {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			s = string(value)
		}
		return quote(s)
	case jsonparser.Number:
		return formatNumber(value)
	case jsonparser.Boolean:
		if string(value) == "true" {
			return "True"
		}
		return "False"
	case jsonparser.Null:
		return "None"
	case jsonparser.Array:
		parts := make([]string, 0)
		_, _ = jsonparser.ArrayEach(value, func(v []byte, t jsonparser.ValueType, _ int, _ error) {
			parts = append(parts, reprValue(v, t))
		})
		return "[" + strings.Join(parts, ", ") + "]"
	case jsonparser.Object:
		parts := make([]string, 0)
		_ = jsonparser.ObjectEach(value, func(k, v []byte, t jsonparser.ValueType, _ int) error {
			parts = append(parts, quote(string(k))+": "+reprValue(v, t))
			return nil
		})
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return string(value)
	}
}

func quote(s string) string {
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + strings.ReplaceAll(s, `\`, `\\`) + `"`
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\t", `\t`, "\r", `\r`)
	return "'" + r.Replace(s) + "'"
}
