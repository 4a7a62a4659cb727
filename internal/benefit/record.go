// Package benefit turns raw shareholder-benefit rows into bounded, classified records.
package benefit

import (
	"github.com/go-playground/validator/v10"

	"yutai-ranker/internal/perr"
)

// Category is a taxonomy identifier such as "food" or "gift_card".
type Category string

// Categories the normalizer falls back to when no keyword scores.
const (
	CategoryGiftCard Category = "gift_card"
	CategoryDiscount Category = "discount"
	CategoryOther    Category = "other"
)

// RawRow is one benefit row as the page extractor saw it. Nothing is parsed yet.
type RawRow struct {
	Code          string
	Description   string
	RawShareText  string
	RawAmountText string
	RawMonthText  string
}

// Record is the normalized form persisted by the benefit store.
type Record struct {
	Code               string   `json:"code" validate:"required,max=16"`
	Category           Category `json:"category" validate:"required"`
	Description        string   `json:"description" validate:"required,max=500"`
	MonetaryValue      int      `json:"monetary_value" validate:"gte=0"`
	MinShares          int      `json:"min_shares" validate:"gte=1,lte=10000"`
	EligibilityMonth   int      `json:"eligibility_month" validate:"gte=1,lte=12"`
	HasLongTermHolding bool     `json:"has_long_term_holding"`
	LongTermMonths     *int     `json:"long_term_months,omitempty" validate:"omitempty,gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the record bounds before it is handed to storage.
func (r Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeValidation, "invalid benefit record for %s", r.Code)
	}
	return nil
}

// ValidateAll validates every record and returns the first failure.
func ValidateAll(records []Record) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
