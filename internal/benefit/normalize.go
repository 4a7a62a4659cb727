package benefit

import (
	"regexp"
	"strconv"
	"strings"
)

// Options bound the values the normalizer will emit.
type Options struct {
	// MaxValue is the exclusive upper sanity bound for a parsed amount.
	MaxValue int
	// ValueCaps clamps the final value per category. Absent categories are not clamped.
	ValueCaps map[Category]int
	// DefaultShares is used when no share threshold is found or it is out of range.
	DefaultShares int
	MaxShares     int
	// DefaultMonth is used when no eligibility month is found.
	DefaultMonth   int
	MaxDescription int
}

// DefaultOptions returns the bounds used when configuration leaves them unset.
func DefaultOptions() Options {
	return Options{
		MaxValue:       100000,
		DefaultShares:  100,
		MaxShares:      10000,
		DefaultMonth:   3,
		MaxDescription: 500,
	}
}

var (
	reAmount      = regexp.MustCompile(`¥\s*([0-9][0-9,]*)|([0-9][0-9,]*(?:\.[0-9]+)?)\s*(万)?\s*(?:円|yen|jpy|units?)`)
	reAmountOnly  = regexp.MustCompile(`^(?:¥\s*[0-9][0-9,]*|[0-9][0-9,]*(?:\.[0-9]+)?\s*万?\s*(?:円|yen|jpy|units?))\s*(?:分|相当|相当額|worth)?$`)
	rePercentOnly = regexp.MustCompile(`^(?:[0-9]{1,3}(?:\.[0-9]+)?\s*%\s*(?:off|引き|引|割引)?|[0-9]\s*割\s*(?:引き|引|off)?)$`)
	reShares      = regexp.MustCompile(`([0-9][0-9,]*)\s*(?:株|shares?)(主|holders?)?`)
	reMonth       = regexp.MustCompile(`(?:^|[^0-9.])([0-9]{1,2})\s*(?:月|months?)`)

	reYearsJa  = regexp.MustCompile(`([0-9]+)\s*年\s*以上`)
	reMonthsJa = regexp.MustCompile(`([0-9]+)\s*(?:ヶ|か|カ|ケ|ヵ|箇)\s*月\s*以上`)
	reYearsEn  = regexp.MustCompile(`([0-9]+)\s*(?:\+\s*years?|years?\s*(?:or\s+more|or\s+longer|held|\+))`)
	reMonthsEn = regexp.MustCompile(`([0-9]+)\s*(?:\+\s*months?|months?\s*(?:or\s+more|or\s+longer|held|\+))`)
	reHoldWord = regexp.MustCompile(`継続保有|長期保有|long[- ]term`)

	reLeadingClause  = regexp.MustCompile(`^[\[(【「<]([^\])】」>]*)[\])】」>]\s*:?\s*`)
	reTrailingClause = regexp.MustCompile(`\s*[\[(【「<]([^\[(【「<]*)[\])】」>]$`)
	reColonPrefix    = regexp.MustCompile(`^([^:]{1,40}):\s*`)
)

// Normalizer turns raw rows into records. It holds no mutable state after construction.
type Normalizer struct {
	taxonomy *Taxonomy
	opts     Options
}

// NewNormalizer builds a normalizer; zero option fields take their defaults and a nil
// taxonomy means the embedded one.
func NewNormalizer(taxonomy *Taxonomy, opts Options) *Normalizer {
	def := DefaultOptions()
	if opts.MaxValue <= 0 {
		opts.MaxValue = def.MaxValue
	}
	if opts.DefaultShares <= 0 {
		opts.DefaultShares = def.DefaultShares
	}
	if opts.MaxShares <= 0 {
		opts.MaxShares = def.MaxShares
	}
	if opts.DefaultMonth < 1 || opts.DefaultMonth > 12 {
		opts.DefaultMonth = def.DefaultMonth
	}
	if opts.MaxDescription <= 0 {
		opts.MaxDescription = def.MaxDescription
	}
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &Normalizer{taxonomy: taxonomy, opts: opts}
}

// Taxonomy returns the table the normalizer classifies with.
func (n *Normalizer) Taxonomy() *Taxonomy { return n.taxonomy }

// Normalize converts one row. ok is false for empty or noise rows.
func (n *Normalizer) Normalize(row RawRow) (Record, bool) {
	code := strings.TrimSpace(row.Code)
	desc := Clean(row.Description)
	folded := Fold(desc)
	if code == "" || isNoise(folded) {
		return Record{}, false
	}

	longTerm, longTermMonths := detectLongTerm(folded)
	body := stripQualifier(folded)

	category, scored := n.taxonomy.Classify(body)
	if !scored {
		category = fallbackCategory(body)
	}

	rec := Record{
		Code:               code,
		Category:           category,
		Description:        truncateRunes(desc, n.opts.MaxDescription),
		MonetaryValue:      n.monetaryValue(category, body, Fold(row.RawAmountText)),
		MinShares:          n.minShares(Fold(row.RawShareText), body),
		EligibilityMonth:   n.eligibilityMonth(Fold(row.RawMonthText), body),
		HasLongTermHolding: longTerm,
		LongTermMonths:     longTermMonths,
	}
	return rec, true
}

// NormalizeAll converts rows in order, dropping noise. Duplicates are kept; see Dedupe.
func (n *Normalizer) NormalizeAll(rows []RawRow) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		if rec, ok := n.Normalize(row); ok {
			out = append(out, rec)
		}
	}
	return out
}

func fallbackCategory(body string) Category {
	switch {
	case reAmountOnly.MatchString(body):
		return CategoryGiftCard
	case rePercentOnly.MatchString(body):
		return CategoryDiscount
	default:
		return CategoryOther
	}
}

func (n *Normalizer) monetaryValue(category Category, texts ...string) int {
	best := -1
	for _, text := range texts {
		for _, m := range reAmount.FindAllStringSubmatch(text, -1) {
			v, ok := parseAmount(m)
			if !ok || v >= n.opts.MaxValue {
				continue
			}
			if v > best {
				best = v
			}
		}
	}
	if best < 0 {
		best = n.taxonomy.DefaultValue(category)
	}
	if limit, ok := n.opts.ValueCaps[category]; ok && limit >= 0 && best > limit {
		best = limit
	}
	return best
}

func parseAmount(m []string) (int, bool) {
	if m[1] != "" {
		v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		return v, err == nil && v > 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if m[3] == "万" {
		f *= 10000
	}
	v := int(f)
	return v, v > 0
}

func (n *Normalizer) minShares(texts ...string) int {
	for _, text := range texts {
		for _, m := range reShares.FindAllStringSubmatch(text, -1) {
			// 株主 / shareholder is not a share count
			if m[2] != "" {
				continue
			}
			v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
			if err != nil || v < 1 || v > n.opts.MaxShares {
				return n.opts.DefaultShares
			}
			return v
		}
	}
	return n.opts.DefaultShares
}

func (n *Normalizer) eligibilityMonth(texts ...string) int {
	for _, text := range texts {
		m := reMonth.FindStringSubmatch(removeHoldingPhrases(text))
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil || v < 1 || v > 12 {
			return n.opts.DefaultMonth
		}
		return v
	}
	return n.opts.DefaultMonth
}

// detectLongTerm reports whether folded text carries a holding-period condition and,
// when a number is present, the minimum holding period in months.
func detectLongTerm(folded string) (bool, *int) {
	for _, p := range []struct {
		re     *regexp.Regexp
		factor int
	}{
		{reYearsJa, 12},
		{reMonthsJa, 1},
		{reYearsEn, 12},
		{reMonthsEn, 1},
	} {
		m := p.re.FindStringSubmatch(folded)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil || v <= 0 {
			return true, nil
		}
		months := v * p.factor
		return true, &months
	}
	return reHoldWord.MatchString(folded), nil
}

func isHoldingClause(s string) bool {
	ok, _ := detectLongTerm(s)
	return ok
}

// stripQualifier removes a holding-period clause wrapped around the benefit text,
// e.g. "[3+ years held]: 2,000 units" or "【3年以上保有】クオカード".
func stripQualifier(folded string) string {
	body := folded
	if m := reLeadingClause.FindStringSubmatch(body); m != nil && isHoldingClause(m[1]) {
		body = body[len(m[0]):]
	} else if m := reColonPrefix.FindStringSubmatch(body); m != nil && isHoldingClause(m[1]) {
		body = body[len(m[0]):]
	}
	if loc := reTrailingClause.FindStringSubmatchIndex(body); loc != nil && isHoldingClause(body[loc[2]:loc[3]]) {
		body = body[:loc[0]]
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return folded
	}
	return body
}

func removeHoldingPhrases(s string) string {
	for _, re := range []*regexp.Regexp{reYearsJa, reMonthsJa, reYearsEn, reMonthsEn} {
		s = re.ReplaceAllString(s, " ")
	}
	return s
}
