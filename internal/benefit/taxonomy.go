package benefit

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

//go:embed taxonomy.json
var embeddedTaxonomy []byte

// CategoryDef is one row of the taxonomy table.
type CategoryDef struct {
	ID           Category `json:"id"`
	Label        string   `json:"label"`
	DefaultValue int      `json:"default_value"`
	Keywords     []string `json:"keywords"`
}

type rawTaxonomy struct {
	Version    int           `json:"version"`
	Categories []CategoryDef `json:"categories"`
}

type keyword struct {
	text  string
	runes int
}

// Taxonomy is the compiled, read-only category table. Safe for concurrent use.
type Taxonomy struct {
	defs     []CategoryDef
	index    map[Category]int
	keywords [][]keyword
}

var (
	defaultOnce     sync.Once
	defaultTaxonomy *Taxonomy
)

// DefaultTaxonomy returns the embedded taxonomy, compiled once.
func DefaultTaxonomy() *Taxonomy {
	defaultOnce.Do(func() {
		t, err := ParseTaxonomy(embeddedTaxonomy)
		if err != nil {
			panic("failed to parse embedded taxonomy: " + err.Error())
		}
		defaultTaxonomy = t
	})
	return defaultTaxonomy
}

// ParseTaxonomy compiles a taxonomy table from JSON. Declaration order is the tie-break order.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var raw rawTaxonomy
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	if len(raw.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}

	t := &Taxonomy{
		defs:     make([]CategoryDef, 0, len(raw.Categories)),
		index:    make(map[Category]int, len(raw.Categories)),
		keywords: make([][]keyword, 0, len(raw.Categories)),
	}
	for _, def := range raw.Categories {
		if def.ID == "" {
			return nil, fmt.Errorf("taxonomy category without id")
		}
		if _, dup := t.index[def.ID]; dup {
			return nil, fmt.Errorf("duplicate taxonomy category %q", def.ID)
		}
		if def.DefaultValue < 0 {
			return nil, fmt.Errorf("category %q has negative default value", def.ID)
		}

		compiled := make([]keyword, 0, len(def.Keywords))
		seen := make(map[string]struct{}, len(def.Keywords))
		for _, kw := range def.Keywords {
			folded := Fold(kw)
			if folded == "" {
				continue
			}
			if _, ok := seen[folded]; ok {
				continue
			}
			seen[folded] = struct{}{}
			compiled = append(compiled, keyword{text: folded, runes: utf8.RuneCountInString(folded)})
		}

		t.index[def.ID] = len(t.defs)
		t.defs = append(t.defs, def)
		t.keywords = append(t.keywords, compiled)
	}

	for _, required := range []Category{CategoryGiftCard, CategoryDiscount, CategoryOther} {
		if _, ok := t.index[required]; !ok {
			return nil, fmt.Errorf("taxonomy must define category %q", required)
		}
	}
	return t, nil
}

// Categories returns the table in declaration order.
func (t *Taxonomy) Categories() []CategoryDef {
	out := make([]CategoryDef, len(t.defs))
	copy(out, t.defs)
	return out
}

// Has reports whether c is a known category.
func (t *Taxonomy) Has(c Category) bool {
	_, ok := t.index[c]
	return ok
}

// Label returns the display label of c, or the id itself when unknown.
func (t *Taxonomy) Label(c Category) string {
	if i, ok := t.index[c]; ok {
		return t.defs[i].Label
	}
	return string(c)
}

// DefaultValue is the monetary value assumed when a description carries no amount.
func (t *Taxonomy) DefaultValue(c Category) int {
	if i, ok := t.index[c]; ok {
		return t.defs[i].DefaultValue
	}
	return t.defs[t.index[CategoryOther]].DefaultValue
}

// Score returns per-category scores for folded text: the sum of rune lengths of
// every keyword of that category contained in the text.
func (t *Taxonomy) Score(folded string) []int {
	scores := make([]int, len(t.defs))
	for i, kws := range t.keywords {
		for _, kw := range kws {
			if strings.Contains(folded, kw.text) {
				scores[i] += kw.runes
			}
		}
	}
	return scores
}

// Classify picks the highest scoring category; ties go to the earlier declaration.
// ok is false when nothing scored.
func (t *Taxonomy) Classify(folded string) (Category, bool) {
	best, bestScore := -1, 0
	for i, score := range t.Score(folded) {
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return CategoryOther, false
	}
	return t.defs[best].ID, true
}
