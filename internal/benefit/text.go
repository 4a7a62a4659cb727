package benefit

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// chains are not safe for concurrent use; workers share the pool.
var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,    // full-width digits, ￥ and ： become ASCII
			cases.Fold(), // case-insensitive keyword matching
			width.Fold,   // half-width katakana to full-width
		)
	},
}

// Fold returns the matching form of s: NFKC, case folded, width folded and
// whitespace collapsed. All keyword and pattern matching works on this form.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")

	tr := foldPool.Get().(transform.Transformer)
	folded, _, err := transform.String(tr, s)
	tr.Reset()
	foldPool.Put(tr)
	if err != nil {
		folded = strings.ToLower(s)
	}
	return collapseSpaces(folded)
}

// Clean collapses whitespace without changing characters; used for stored descriptions.
func Clean(s string) string {
	return collapseSpaces(strings.ToValidUTF8(s, ""))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

func isNoise(folded string) bool {
	if folded == "" {
		return true
	}
	switch folded {
	case "なし", "無し", "該当なし", "-", "n/a", "na", "none", "null":
		return true
	}
	for _, r := range folded {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
