package metrics

import (
	"sort"

	"github.com/shopspring/decimal"

	"yutai-ranker/internal/benefit"
)

var hundred = decimal.NewFromInt(100)

// YieldResult is the yield breakdown of one instrument at one price.
type YieldResult struct {
	DividendYieldPct   decimal.Decimal `json:"dividend_yield_pct"`
	BenefitYieldPct    decimal.Decimal `json:"benefit_yield_pct"`
	TotalYieldPct      decimal.Decimal `json:"total_yield_pct"`
	AnnualBenefitValue int             `json:"annual_benefit_value"`
	MinShares          int             `json:"min_shares"`
	Investment         decimal.Decimal `json:"investment"`
	Months             []int           `json:"months"`
}

// Yield computes benefit and total yield for the cheapest entry point (smallest
// share threshold). Each eligibility month counts once, with its highest value.
// A non-positive price yields all zeros; no records yields the dividend yield only.
func Yield(price decimal.Decimal, records []benefit.Record, dividendYieldPct decimal.Decimal) YieldResult {
	if !price.IsPositive() {
		return YieldResult{}
	}

	res := YieldResult{
		DividendYieldPct: dividendYieldPct.Round(2),
		BenefitYieldPct:  decimal.Zero,
		TotalYieldPct:    dividendYieldPct.Round(2),
		Investment:       decimal.Zero,
	}

	minShares := 0
	for _, r := range records {
		if r.MinShares <= 0 {
			continue
		}
		if minShares == 0 || r.MinShares < minShares {
			minShares = r.MinShares
		}
	}
	if minShares == 0 {
		return res
	}

	perMonth := make(map[int]int)
	for _, r := range records {
		if r.MinShares != minShares {
			continue
		}
		if v, ok := perMonth[r.EligibilityMonth]; !ok || r.MonetaryValue > v {
			perMonth[r.EligibilityMonth] = r.MonetaryValue
		}
	}

	annual := 0
	months := make([]int, 0, len(perMonth))
	for month, v := range perMonth {
		annual += v
		months = append(months, month)
	}
	sort.Ints(months)

	investment := price.Mul(decimal.NewFromInt(int64(minShares)))
	benefitYield := decimal.NewFromInt(int64(annual)).Div(investment).Mul(hundred)

	res.AnnualBenefitValue = annual
	res.MinShares = minShares
	res.Months = months
	res.Investment = investment
	res.BenefitYieldPct = benefitYield.Round(2)
	// the total is the sum of the reported parts so a row always adds up
	res.TotalYieldPct = res.DividendYieldPct.Add(res.BenefitYieldPct)
	return res
}
