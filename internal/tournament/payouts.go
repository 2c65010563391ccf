package tournament

import "math"

// DefaultPayoutShape gives harmonic weights: first place earns twice second,
// three times third, and so on.
const DefaultPayoutShape = 0.5

// SeatsPaid returns how many places pay for the given number of entries,
// rounding half up.
func SeatsPaid(entries int, percentSeatsPaid float64) int {
	if entries <= 0 || percentSeatsPaid <= 0 {
		return 0
	}
	return int(float64(entries)*percentSeatsPaid + 0.5)
}

// CalculatePayouts splits equity across the paid places.
//
// Place n (zero-based) is weighted (n+1)^f with f = shape/(shape-1), so shape 0
// pays every place equally, 0.5 yields the harmonic series and 1 pays the
// winner only. When rounding, every payout is rounded to a whole unit and
// first place absorbs the signed remainder so the total stays exact.
func CalculatePayouts(entries int, equity float64, params AutomaticPayouts) []float64 {
	seats := SeatsPaid(entries, params.PercentSeatsPaid)
	if seats == 0 {
		return []float64{}
	}

	shape := math.Max(0, math.Min(1, params.PayoutShape))
	exponent := math.Inf(-1)
	if shape < 1 {
		exponent = shape / (shape - 1)
	}

	weights := make([]float64, seats)
	total := 0.0
	for n := range weights {
		if math.IsInf(exponent, -1) {
			if n == 0 {
				weights[n] = 1
			}
		} else {
			weights[n] = math.Pow(float64(n+1), exponent)
		}
		total += weights[n]
	}

	payouts := make([]float64, seats)
	allocated := 0.0
	for n, w := range weights {
		payouts[n] = equity * w / total
		if params.RoundPayouts {
			payouts[n] = math.Round(payouts[n])
		}
		allocated += payouts[n]
	}

	if params.RoundPayouts {
		payouts[0] += equity - allocated
	}
	return payouts
}
