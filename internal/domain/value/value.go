// Package value turns display strings and raw scalars into typed, sortable
// cell values and formats them back for display.
package value

import (
	"cmp"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Format names the display/sort type of a column.
type Format string

// Supported column formats.
const (
	FormatNumber   Format = "number"
	FormatPercent  Format = "percent"
	FormatCurrency Format = "currency"
	FormatDate     Format = "date"
	FormatText     Format = "text"
)

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	switch f {
	case FormatNumber, FormatPercent, FormatCurrency, FormatDate, FormatText:
		return true
	}
	return false
}

// Numeric reports whether values of f compare as numbers.
func (f Format) Numeric() bool {
	return f.Valid() && f != FormatText
}

// Value is a typed, sortable cell value. Number, percent, currency and date
// values carry a float (dates as Unix milliseconds); text carries the trimmed
// string. The zero Value is the empty text.
type Value struct {
	text    string
	num     float64
	numeric bool
}

// Number returns a numeric value.
func Number(f float64) Value {
	return Value{num: f, numeric: true}
}

// Text returns a text value.
func Text(s string) Value {
	return Value{text: strings.TrimSpace(s)}
}

// Time returns a date value stored as Unix milliseconds.
func Time(t time.Time) Value {
	return Number(float64(t.UTC().UnixMilli()))
}

// IsNumeric reports whether v compares as a number.
func (v Value) IsNumeric() bool { return v.numeric }

// Float returns the numeric payload; zero for text values.
func (v Value) Float() float64 { return v.num }

// String returns the text payload, or the shortest decimal form of a number.
func (v Value) String() string {
	if v.numeric {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.text
}

// Compare orders two non-empty values. Two numbers compare numerically;
// anything involving text compares with CompareText.
func Compare(a, b Value) int {
	if a.numeric && b.numeric {
		return cmp.Compare(a.num, b.num)
	}
	return CompareText(a.String(), b.String())
}

var errNotFinite = errors.New("value: non-finite number")

// MarshalJSON encodes numbers as JSON numbers and text as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.numeric {
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, errNotFinite
		}
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v.text)
}

// UnmarshalJSON accepts a JSON number or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &raw); err != nil {
		return err
	}
	got, ok := FromScalar(raw)
	if !ok {
		return errors.New("value: expected number or string")
	}
	*v = got
	return nil
}

// FromScalar converts a raw scalar (as decoded from JSON/YAML or produced by
// a compute provider) into a Value. Strings become text; nil, booleans and
// non-finite numbers are rejected.
func FromScalar(raw any) (Value, bool) {
	var f float64
	switch x := raw.(type) {
	case nil:
		return Value{}, false
	case Value:
		return x, true
	case *Value:
		if x == nil {
			return Value{}, false
		}
		return *x, true
	case string:
		return Text(x), true
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case interface{ Float64() (float64, error) }: // json.Number and jsoniter.Number
		parsed, err := x.Float64()
		if err != nil {
			return Value{}, false
		}
		f = parsed
	case time.Time:
		return Time(x), true
	default:
		return Value{}, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, false
	}
	return Number(f), true
}

// Coerce converts a raw scalar into a Value of format f. Numeric strings are
// parsed with Parse so "45.5%" under FormatPercent yields 0.455.
func Coerce(raw any, f Format) (Value, bool) {
	if s, ok := raw.(string); ok {
		return Parse(s, f)
	}
	v, ok := FromScalar(raw)
	if !ok {
		return Value{}, false
	}
	if f == FormatText && v.numeric {
		return Text(v.String()), true
	}
	return v, true
}
