package metrics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"yutai-ranker/internal/benefit"
)

func rec(shares, month, value int) benefit.Record {
	return benefit.Record{Code: "7203", Category: benefit.CategoryGiftCard, Description: "x",
		MinShares: shares, EligibilityMonth: month, MonetaryValue: value}
}

func TestYieldExact(t *testing.T) {
	res := Yield(decimal.NewFromInt(1000), []benefit.Record{rec(100, 3, 1500), rec(100, 9, 1500)}, decimal.RequireFromString("2.00"))

	assert.Equal(t, 3000, res.AnnualBenefitValue)
	assert.Equal(t, 100, res.MinShares)
	assert.True(t, res.Investment.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, "3.00", res.BenefitYieldPct.StringFixed(2))
	assert.Equal(t, "5.00", res.TotalYieldPct.StringFixed(2))
	assert.Equal(t, []int{3, 9}, res.Months)
}

func TestYieldCheapestGroupAndMonthDedup(t *testing.T) {
	records := []benefit.Record{
		rec(100, 3, 1000),
		rec(100, 3, 2000), // same month, higher value counts
		rec(500, 9, 10000),
	}
	res := Yield(decimal.NewFromInt(2000), records, decimal.Zero)

	assert.Equal(t, 2000, res.AnnualBenefitValue)
	assert.Equal(t, 100, res.MinShares)
	assert.Equal(t, "1.00", res.BenefitYieldPct.StringFixed(2))
}

func TestYieldRounding(t *testing.T) {
	res := Yield(decimal.NewFromInt(3000), []benefit.Record{rec(100, 6, 1000)}, decimal.RequireFromString("1.234"))
	assert.Equal(t, "0.33", res.BenefitYieldPct.StringFixed(2))
	assert.Equal(t, "1.56", res.TotalYieldPct.StringFixed(2))
	assert.Equal(t, "1.23", res.DividendYieldPct.StringFixed(2))
}

func TestYieldTotalIsSumOfRoundedParts(t *testing.T) {
	// 400 / (100000 * 100) * 100 = 0.004% benefit, 0.004% dividend
	res := Yield(decimal.NewFromInt(100000), []benefit.Record{rec(100, 3, 400)}, decimal.RequireFromString("0.004"))
	assert.Equal(t, "0.00", res.DividendYieldPct.StringFixed(2))
	assert.Equal(t, "0.00", res.BenefitYieldPct.StringFixed(2))
	assert.Equal(t, "0.00", res.TotalYieldPct.StringFixed(2))
	assert.True(t, res.TotalYieldPct.Equal(res.DividendYieldPct.Add(res.BenefitYieldPct)))
}

func TestYieldDegenerate(t *testing.T) {
	res := Yield(decimal.Zero, []benefit.Record{rec(100, 3, 1000)}, decimal.NewFromInt(2))
	assert.True(t, res.TotalYieldPct.IsZero())
	assert.True(t, res.BenefitYieldPct.IsZero())

	res = Yield(decimal.NewFromInt(-5), nil, decimal.Zero)
	assert.True(t, res.TotalYieldPct.IsZero())

	res = Yield(decimal.NewFromInt(1000), nil, decimal.RequireFromString("2.5"))
	assert.True(t, res.BenefitYieldPct.IsZero())
	assert.Equal(t, "2.50", res.TotalYieldPct.StringFixed(2))
	assert.Equal(t, 0, res.AnnualBenefitValue)
}
