package value

import (
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collators are not safe for concurrent use.
var collators = sync.Pool{
	New: func() any {
		return collate.New(language.English, collate.IgnoreCase, collate.Numeric)
	},
}

// CompareText compares two strings locale-aware and case-insensitively, with
// embedded digit runs compared by numeric value ("Game 2" < "Game 10").
func CompareText(a, b string) int {
	c := collators.Get().(*collate.Collator)
	defer collators.Put(c)
	return c.CompareString(a, b)
}
