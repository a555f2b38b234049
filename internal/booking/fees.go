package booking

import "time"

// FeeBreakdown is the computed fee snapshot for a stay. All amounts are
// integer cents.
type FeeBreakdown struct {
	Nights             int64 `json:"nights"`
	ServiceFeePerNight int64 `json:"service_fee_per_night"`
	ServiceFeeTotal    int64 `json:"service_fee_total"`
	CleaningFee        int64 `json:"cleaning_fee"`
	InsuranceFee       int64 `json:"insurance_fee"`
	TotalFee           int64 `json:"total_fee"`
}

// CalculateFees derives the fee snapshot for a stay. Nights round up on
// partial days and clamp to zero for an inverted or empty range; a zero
// night stay is a policy outcome, not an error.
func CalculateFees(start, end time.Time, perNight, cleaning, insurance int64) FeeBreakdown {
	nights := nightsBetween(start, end)
	serviceTotal := nights * perNight
	return FeeBreakdown{
		Nights:             nights,
		ServiceFeePerNight: perNight,
		ServiceFeeTotal:    serviceTotal,
		CleaningFee:        cleaning,
		InsuranceFee:       insurance,
		TotalFee:           serviceTotal + cleaning + insurance,
	}
}

func nightsBetween(start, end time.Time) int64 {
	diff := end.Sub(start)
	if diff <= 0 {
		return 0
	}
	nights := int64(diff / (24 * time.Hour))
	if diff%(24*time.Hour) != 0 {
		nights++
	}
	return nights
}
