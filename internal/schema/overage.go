package schema

import (
	"math"

	"github.com/theirongolddev/ccquota/internal/model"
)

// MinorToMajor converts integer minor currency units (cents) to major units.
func MinorToMajor(v float64) float64 {
	return v / 100
}

// Percent returns used/limit as a percentage rounded to two decimals.
// A zero or negative limit yields 0.
func Percent(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Round(used/limit*100*100) / 100
}

// TransformOverage converts the extracted "limit" group of the Overage schema
// into MonthlyCredits.
func TransformOverage(fields map[string]any) *model.MonthlyCredits {
	if fields == nil {
		return nil
	}
	usedMinor, _ := Number(fields["used"])
	limitMinor, _ := Number(fields["monthly_limit"])

	mc := &model.MonthlyCredits{
		Used:     MinorToMajor(usedMinor),
		Limit:    MinorToMajor(limitMinor),
		Currency: String(fields["currency"]),
		Enabled:  Bool(fields["enabled"]),
	}
	mc.Percent = Percent(mc.Used, mc.Limit)

	if v, ok := fields["out_of_credits"].(bool); ok {
		mc.OutOfCredits = v
	} else {
		mc.OutOfCredits = mc.Limit > 0 && mc.Used >= mc.Limit
	}
	return mc
}
