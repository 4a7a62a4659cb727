package benefit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeSameRowTwice(t *testing.T) {
	n := NewNormalizer(nil, DefaultOptions())
	row := RawRow{Code: "7203", Description: "クオカード 1,000円分"}

	records := Dedupe(n.NormalizeAll([]RawRow{row, row}))
	require.Len(t, records, 1)

	again := Dedupe(n.NormalizeAll([]RawRow{row, row}))
	assert.Equal(t, records, again)
	assert.Equal(t, records, Dedupe(records))
}

func TestDedupeFingerprint(t *testing.T) {
	prefix := "自社製品詰め合わせセット（季節の商品を中心に、全国の工場から厳選したものをお届けします）"
	records := []Record{
		{Code: "2801", Category: "own_products", Description: prefix + " A"},
		{Code: "2801", Category: "own_products", Description: prefix + " B"},
		{Code: "2801", Category: CategoryOther, Description: prefix + " A"},
		{Code: "2802", Category: "own_products", Description: prefix + " A"},
		{Code: "2801", Category: "own_products", Description: "お米"},
	}

	kept := Dedupe(records)
	require.Len(t, kept, 4)
	assert.Equal(t, records[0], kept[0], "first record of a fingerprint wins")
	assert.Equal(t, records[2], kept[1])
	assert.Equal(t, records[3], kept[2])
	assert.Equal(t, records[4], kept[3])
}

func TestDedupeEmpty(t *testing.T) {
	assert.Empty(t, Dedupe(nil))
}
