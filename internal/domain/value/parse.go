package value

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// maxInferSamples bounds how many non-empty samples InferFormat inspects.
const maxInferSamples = 10

var plainNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// Parse converts a display string into a Value using hint as the expected
// format. An empty hint auto-detects. It returns false when nothing usable
// remains: empty input, or a numeric hint over non-numeric text.
//
// Percent values are stored as fractions ("45.5%" is 0.455). Number and
// currency strip grouping separators and currency symbols, and a value in
// parentheses is negative. Dates are stored as Unix milliseconds.
func Parse(text string, hint Format) (Value, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Value{}, false
	}
	if hint == "" {
		hint = Detect(s)
	}
	switch hint {
	case FormatPercent:
		f, ok := parsePercent(s)
		if !ok {
			return Value{}, false
		}
		return Number(f), true
	case FormatNumber, FormatCurrency:
		f, ok := parseNumber(s)
		if !ok {
			return Value{}, false
		}
		return Number(f), true
	case FormatDate:
		t, ok := ParseDate(s)
		if !ok {
			return Value{}, false
		}
		return Time(t), true
	default:
		return Text(s), true
	}
}

// Detect guesses the format of a single non-empty display string.
func Detect(text string) Format {
	s := strings.TrimSpace(text)
	switch {
	case s == "":
		return FormatText
	case strings.HasSuffix(s, "%"):
		if _, ok := parsePercent(s); ok {
			return FormatPercent
		}
		return FormatText
	case strings.IndexFunc(s, isCurrencySymbol) >= 0:
		if _, ok := parseNumber(s); ok {
			return FormatCurrency
		}
		return FormatText
	}
	if _, ok := parseNumber(s); ok {
		return FormatNumber
	}
	if _, ok := ParseDate(s); ok {
		return FormatDate
	}
	return FormatText
}

// InferFormat picks a column format from up to ten non-empty samples. If any
// sample is plain text the column is text; otherwise the most frequent
// detected format wins. No samples means text.
func InferFormat(samples []string) Format {
	counts := make(map[Format]int, 5)
	seen := 0
	for _, raw := range samples {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if seen == maxInferSamples {
			break
		}
		seen++
		counts[Detect(s)]++
	}
	if seen == 0 || counts[FormatText] > 0 {
		return FormatText
	}
	best, bestN := FormatText, 0
	for _, f := range []Format{FormatPercent, FormatCurrency, FormatNumber, FormatDate} {
		if counts[f] > bestN {
			best, bestN = f, counts[f]
		}
	}
	return best
}

func parsePercent(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	f, ok := parseNumber(s)
	if !ok {
		return 0, false
	}
	return f / 100, true
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || isCurrencySymbol(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if !plainNumber.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if neg {
		f = -math.Abs(f)
	}
	return f, true
}

func isCurrencySymbol(r rune) bool {
	return unicode.Is(unicode.Sc, r)
}
