package benefit

import "strings"

// FingerprintRunes is how much of the folded description takes part in a fingerprint.
const FingerprintRunes = 40

// Fingerprint identifies records that describe the same benefit.
type Fingerprint struct {
	Code     string
	Category Category
	Prefix   string
}

// FingerprintOf builds the fingerprint of r.
func FingerprintOf(r Record) Fingerprint {
	return Fingerprint{
		Code:     strings.TrimSpace(r.Code),
		Category: r.Category,
		Prefix:   truncateRunes(Fold(r.Description), FingerprintRunes),
	}
}

// Dedupe keeps the first record of every fingerprint, preserving order.
// Dedupe(Dedupe(x)) == Dedupe(x).
func Dedupe(records []Record) []Record {
	if len(records) == 0 {
		return records
	}
	seen := make(map[Fingerprint]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		fp := FingerprintOf(r)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, r)
	}
	return out
}
