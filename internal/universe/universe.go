// Package universe loads the identifier universe and orders the pending work.
package universe

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Source describes where the universe comes from: a file of codes, or a numeric range.
type Source struct {
	File  string
	From  int
	To    int
	Width int
}

// Load returns the deduplicated universe in natural order.
func Load(src Source) ([]string, error) {
	if src.File != "" {
		f, err := os.Open(src.File)
		if err != nil {
			return nil, fmt.Errorf("open universe file: %w", err)
		}
		defer f.Close()
		return Parse(f)
	}
	return Range(src.From, src.To, src.Width)
}

// Parse reads one code per line. Blank lines and # comments are ignored; anything
// after the first whitespace or comma on a line is dropped.
func Parse(r io.Reader) ([]string, error) {
	var codes []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == '\t' || r == ' '
		})
		if len(fields) == 0 {
			continue
		}
		codes = append(codes, strings.TrimSpace(fields[0]))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	return normalize(codes), nil
}

// Range generates zero padded numeric codes from..to inclusive.
func Range(from, to, width int) ([]string, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("invalid universe range %d..%d", from, to)
	}
	if width <= 0 {
		width = 4
	}
	codes := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		codes = append(codes, fmt.Sprintf("%0*d", width, i))
	}
	return codes, nil
}

func normalize(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	slices.SortFunc(out, Compare)
	return out
}

// Compare orders codes naturally: numerically when both are integers, lexically otherwise,
// numeric codes first.
func Compare(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Priority ranks a code; lower values come first.
type Priority func(code string) int

// NoPriority keeps natural order.
func NoPriority(string) int { return 0 }

// Span is an inclusive numeric code range.
type Span struct {
	From int
	To   int
}

// ParseSpans reads ranges like "2000-3999" or a single code "8591".
func ParseSpans(specs []string) ([]Span, error) {
	spans := make([]Span, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		lo, hi, found := strings.Cut(spec, "-")
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid priority range %q", spec)
		}
		to := from
		if found {
			if to, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || to < from {
				return nil, fmt.Errorf("invalid priority range %q", spec)
			}
		}
		spans = append(spans, Span{From: from, To: to})
	}
	return spans, nil
}

// RangePriority ranks a code by the first span containing it. Codes outside every
// span, and non-numeric codes, rank after all spans.
func RangePriority(spans []Span) Priority {
	return func(code string) int {
		n, err := strconv.Atoi(code)
		if err == nil {
			for i, s := range spans {
				if n >= s.From && n <= s.To {
					return i
				}
			}
		}
		return len(spans)
	}
}

// Enumerate yields codes not yet done, ordered by priority then natural order.
// The sequence is a pure function of its inputs and can be ranged over repeatedly.
func Enumerate(codes []string, done func(string) bool, priority Priority) iter.Seq[string] {
	if priority == nil {
		priority = NoPriority
	}
	return func(yield func(string) bool) {
		pending := make([]string, 0, len(codes))
		for _, c := range codes {
			if done != nil && done(c) {
				continue
			}
			pending = append(pending, c)
		}
		slices.SortStableFunc(pending, func(a, b string) int {
			if pa, pb := priority(a), priority(b); pa != pb {
				return pa - pb
			}
			return Compare(a, b)
		})
		for _, c := range pending {
			if !yield(c) {
				return
			}
		}
	}
}

// Pending materializes Enumerate.
func Pending(codes []string, done func(string) bool, priority Priority) []string {
	return slices.Collect(Enumerate(codes, done, priority))
}
