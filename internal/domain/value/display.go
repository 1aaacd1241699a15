package value

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DisplayDateLayout is the layout used when rendering date values.
const DisplayDateLayout = "2006-01-02"

// Display renders v for a column of format f. Percentages use one decimal
// with a trailing ".0" dropped, whole numbers have no decimals, and numbers
// are grouped by thousands. Text is returned as is.
func Display(v Value, f Format) string {
	if !v.numeric {
		return v.text
	}
	p := message.NewPrinter(language.English)
	x := v.num
	switch f {
	case FormatPercent:
		return trimZeroDecimal(p.Sprintf("%.1f", round1(x*100))) + "%"
	case FormatCurrency:
		s := p.Sprintf("$%.2f", math.Abs(x))
		if x < 0 {
			return "(" + s + ")"
		}
		return s
	case FormatDate:
		return time.UnixMilli(int64(x)).UTC().Format(DisplayDateLayout)
	case FormatText:
		return v.String()
	default:
		if isWhole(x) {
			return p.Sprintf("%d", int64(math.Round(x)))
		}
		return trimZeroDecimal(p.Sprintf("%.1f", round1(x)))
	}
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func isWhole(x float64) bool {
	return math.Abs(x-math.Round(x)) < 1e-9 && math.Abs(x) < 1<<53
}

func trimZeroDecimal(s string) string {
	return strings.TrimSuffix(s, ".0")
}
