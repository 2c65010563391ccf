package tournament

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func testSources() []FundingSource {
	return []FundingSource{
		{
			Name: "Buyin", Type: Buyin, Chips: 1500,
			ForbidAfterBlindLevel: intPtr(4),
			Cost:                  MonetaryValue{Amount: 100, Currency: "USD"},
			Commission:            MonetaryValue{Amount: 10, Currency: "USD"},
			Equity:                Equity{Amount: 100},
		},
		{
			Name: "Rebuy", Type: Rebuy, Chips: 1500,
			ForbidAfterBlindLevel: intPtr(4),
			Cost:                  MonetaryValue{Amount: 100, Currency: "USD"},
			Commission:            MonetaryValue{Currency: "USD"},
			Equity:                Equity{Amount: 100},
		},
		{
			Name: "Addon", Type: Addon, Chips: 3000,
			Cost:       MonetaryValue{Amount: 50, Currency: "USD"},
			Commission: MonetaryValue{Currency: "USD"},
			Equity:     Equity{Amount: 50},
		},
	}
}

func newTestFunding(t *testing.T) *Funding {
	t.Helper()
	f := NewFunding(testLogger())
	require.NoError(t, f.SetSources(testSources()))
	f.SetAutomaticPayouts(AutomaticPayouts{PercentSeatsPaid: 0.5, PayoutShape: DefaultPayoutShape})
	return f
}

func TestFundPlayer(t *testing.T) {
	t.Run("accumulates totals", func(t *testing.T) {
		f := newTestFunding(t)
		_, err := f.Fund("p1", 0, 0)
		require.NoError(t, err)
		_, err = f.Fund("p1", 2, 1)
		require.NoError(t, err)

		assert.Equal(t, 4500, f.TotalChips())
		assert.Equal(t, MonetaryValue{Amount: 150, Currency: "USD"}, f.TotalCost())
		assert.Equal(t, MonetaryValue{Amount: 10, Currency: "USD"}, f.TotalCommission())
		assert.InDelta(t, 150.0, f.TotalEquity(), 1e-9)
		assert.Equal(t, []PlayerID{"p1"}, f.Entries())
	})

	t.Run("rejects unknown sources", func(t *testing.T) {
		f := newTestFunding(t)
		_, err := f.Fund("p1", 3, 0)
		assert.ErrorIs(t, err, ErrUnknownSource)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = f.Fund("p1", -1, 0)
		assert.ErrorIs(t, err, ErrUnknownSource)
	})

	t.Run("rejects late funding", func(t *testing.T) {
		f := newTestFunding(t)
		_, err := f.Fund("p1", 0, 5)
		assert.ErrorIs(t, err, ErrTooLate)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("addon needs a buyin", func(t *testing.T) {
		f := newTestFunding(t)
		_, err := f.Fund("p1", 2, 1)
		assert.ErrorIs(t, err, ErrNotBoughtIn)
	})

	t.Run("buys in at most once", func(t *testing.T) {
		f := newTestFunding(t)
		_, err := f.Fund("p1", 0, 0)
		require.NoError(t, err)
		_, err = f.Fund("p1", 0, 0)
		assert.ErrorIs(t, err, ErrAlreadyFunded)
		_, err = f.Fund("p1", 1, 1)
		assert.ErrorIs(t, err, ErrAlreadyFunded)
		assert.Equal(t, 1500, f.TotalChips())
	})

	t.Run("busted players may rebuy", func(t *testing.T) {
		f := newTestFunding(t)
		_, err := f.Fund("p1", 0, 0)
		require.NoError(t, err)
		f.Bust("p1")

		_, err = f.Fund("p1", 1, 0)
		assert.ErrorIs(t, err, ErrTooEarly)
		_, err = f.Fund("p1", 1, 2)
		require.NoError(t, err)
		assert.True(t, f.IsBoughtIn("p1"))
		assert.Equal(t, []PlayerID{"p1", "p1"}, f.Entries())
		assert.Equal(t, []PlayerID{"p1"}, f.UniqueEntries())
	})

	t.Run("rejects mixed currencies", func(t *testing.T) {
		f := NewFunding(testLogger())
		sources := testSources()
		sources[1].Cost.Currency = "EUR"
		assert.ErrorIs(t, f.SetSources(sources), ErrMixedCurrency)
	})
}

func TestCalculatePayouts(t *testing.T) {
	params := AutomaticPayouts{PercentSeatsPaid: 0.3, PayoutShape: DefaultPayoutShape}

	t.Run("harmonic weights", func(t *testing.T) {
		p := CalculatePayouts(10, 1100, params)
		require.Len(t, p, 3)
		// weights 1, 1/2, 1/3 of 11/6
		assert.InDelta(t, 600, p[0], 1e-9)
		assert.InDelta(t, 300, p[1], 1e-9)
		assert.InDelta(t, 200, p[2], 1e-9)
	})

	t.Run("no paid seats", func(t *testing.T) {
		assert.Empty(t, CalculatePayouts(1, 100, params))
		assert.Empty(t, CalculatePayouts(0, 0, params))
	})

	t.Run("seats paid rounds half up", func(t *testing.T) {
		assert.Equal(t, 2, SeatsPaid(5, 0.3))
		assert.Equal(t, 1, SeatsPaid(4, 0.3))
		assert.Equal(t, 0, SeatsPaid(1, 0.3))
	})

	t.Run("flat and winner takes all", func(t *testing.T) {
		flat := CalculatePayouts(10, 300, AutomaticPayouts{PercentSeatsPaid: 0.3})
		assert.InDeltaSlice(t, []float64{100, 100, 100}, flat, 1e-9)

		wta := CalculatePayouts(10, 300, AutomaticPayouts{PercentSeatsPaid: 0.3, PayoutShape: 1})
		assert.InDeltaSlice(t, []float64{300, 0, 0}, wta, 1e-9)
	})

	for entries := 2; entries <= 60; entries += 7 {
		for _, equity := range []float64{100, 1234, 9999} {
			t.Run(fmt.Sprintf("%d entries %.0f equity", entries, equity), func(t *testing.T) {
				unrounded := CalculatePayouts(entries, equity, params)
				sum := 0.0
				for i, v := range unrounded {
					sum += v
					if i > 0 {
						assert.Greater(t, unrounded[i-1], v)
					}
				}
				if len(unrounded) > 0 {
					assert.InDelta(t, equity, sum, 1e-6)
				}

				rounded := CalculatePayouts(entries, equity, AutomaticPayouts{PercentSeatsPaid: 0.3, PayoutShape: DefaultPayoutShape, RoundPayouts: true})
				sum = 0
				for i, v := range rounded {
					assert.Equal(t, math.Round(v), v, "whole units")
					sum += v
					if i > 0 {
						assert.GreaterOrEqual(t, rounded[i-1], v)
					}
				}
				if len(rounded) > 0 {
					assert.Equal(t, equity, sum)
				}
			})
		}
	}
}

func TestPayoutPolicies(t *testing.T) {
	// fund buys in players until n unique players have entered
	fund := func(t *testing.T, f *Funding, n int) {
		for i := len(f.UniqueEntries()); i < n; i++ {
			_, err := f.Fund(fmt.Sprintf("p%d", i), 0, 0)
			require.NoError(t, err)
		}
	}

	t.Run("forced overrides entries", func(t *testing.T) {
		f := newTestFunding(t)
		f.SetPayoutPolicy(PayoutForced)
		f.SetForcedPayouts([]float64{70, 30})
		fund(t, f, 6)
		assert.Equal(t, []float64{70, 30}, f.Payouts())
	})

	t.Run("manual picks the list for the entry count", func(t *testing.T) {
		f := newTestFunding(t)
		f.SetPayoutPolicy(PayoutManual)
		f.SetManualPayouts([]ManualPayout{
			{BuyinsCount: 3, Payouts: []float64{300}},
			{BuyinsCount: 4, Payouts: []float64{250, 150}},
		})
		fund(t, f, 3)
		assert.Equal(t, []float64{300}, f.Payouts())
		fund(t, f, 4)
		assert.Equal(t, []float64{250, 150}, f.Payouts())
	})

	t.Run("manual falls back to automatic", func(t *testing.T) {
		f := newTestFunding(t)
		f.SetPayoutPolicy(PayoutManual)
		fund(t, f, 4)
		assert.Equal(t, CalculatePayouts(4, 400, f.AutomaticPayouts()), f.Payouts())
	})
}

func TestChipsForBuyin(t *testing.T) {
	chips := []Chip{
		{Color: "White", Denomination: 25, CountAvailable: 1000},
		{Color: "Red", Denomination: 100, CountAvailable: 1000},
		{Color: "Green", Denomination: 500, CountAvailable: 500},
		{Color: "Black", Denomination: 1000, CountAvailable: 200},
	}
	levels := testLevels(3)

	valueOf := func(stack []PlayerChips) int {
		total := 0
		for _, c := range stack {
			total += c.Denomination * c.Chips
		}
		return total
	}

	t.Run("preserves value within the caps", func(t *testing.T) {
		for _, players := range []int{5, 10, 20, 40} {
			for _, stack := range []int{1500, 5000, 10000, 12525} {
				out, err := ChipsForBuyin(stack, chips, levels, players)
				if err != nil {
					assert.ErrorIs(t, err, ErrInfeasible)
					continue
				}
				assert.Equal(t, stack, valueOf(out), "%d chips for %d players", stack, players)
				for _, pc := range out {
					for _, c := range chips {
						if c.Denomination == pc.Denomination {
							assert.LessOrEqual(t, pc.Chips, MaxChipsFor(c, players))
						}
					}
				}
			}
		}
	})

	t.Run("breaks down large chips into playable stacks", func(t *testing.T) {
		out, err := ChipsForBuyin(5000, chips, levels, 10)
		require.NoError(t, err)
		assert.Equal(t, 5000, valueOf(out))
		require.NotEmpty(t, out)
		assert.Equal(t, 25, out[0].Denomination, "results ascend by denomination")
		assert.GreaterOrEqual(t, out[0].Chips, 8)
	})

	t.Run("infeasible remainder", func(t *testing.T) {
		_, err := ChipsForBuyin(1510, chips, levels, 10)
		assert.ErrorIs(t, err, ErrInfeasibleDenomination)
		assert.ErrorIs(t, err, ErrInfeasible)
	})

	t.Run("caps can make a stack infeasible", func(t *testing.T) {
		scarce := []Chip{{Denomination: 25, CountAvailable: 10}}
		_, err := ChipsForBuyin(1000, scarce, levels, 10)
		assert.ErrorIs(t, err, ErrInfeasibleDenomination)
	})

	t.Run("smallest chip must play the smallest blind", func(t *testing.T) {
		big := []Chip{{Denomination: 100, CountAvailable: 1000}}
		_, err := ChipsForBuyin(1000, big, levels, 10)
		assert.ErrorIs(t, err, ErrInfeasibleDenomination)
	})

	t.Run("preconditions", func(t *testing.T) {
		_, err := ChipsForBuyin(1000, chips, levels, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = ChipsForBuyin(1000, chips, testLevels(0), 10)
		assert.ErrorIs(t, err, ErrInvalidState)
		_, err = ChipsForBuyin(1000, nil, levels, 10)
		assert.ErrorIs(t, err, ErrInfeasible)
	})
}

func TestGenerateBlindLevels(t *testing.T) {
	chips := []Chip{
		{Denomination: 25, CountAvailable: 1000},
		{Denomination: 100, CountAvailable: 1000},
		{Denomination: 500, CountAvailable: 500},
		{Denomination: 1000, CountAvailable: 200},
	}

	t.Run("progressive levels rounded to chips", func(t *testing.T) {
		levels, err := GenerateBlindLevels(12, 900000, 300000, 1.5, AnteNone, 0, chips)
		require.NoError(t, err)
		require.Len(t, levels, 13)
		assert.Equal(t, BlindLevel{}, levels[0])
		assert.Equal(t, 25, levels[1].LittleBlind)

		breaks := 0
		for i := 1; i < len(levels); i++ {
			l := levels[i]
			assert.Equal(t, 2*l.LittleBlind, l.BigBlind)
			assert.Equal(t, int64(900000), l.Duration)
			assert.Zero(t, l.LittleBlind%25)
			if i > 1 {
				assert.GreaterOrEqual(t, l.LittleBlind, levels[i-1].LittleBlind)
			}
			if l.BreakDuration > 0 {
				breaks++
				assert.Equal(t, int64(300000), l.BreakDuration)
			}
		}
		assert.Positive(t, breaks, "chip-up breaks inserted when the rounding chip changes")
	})

	t.Run("rounding chip follows the ten times rule", func(t *testing.T) {
		assert.Equal(t, 25, roundDenomination(200, chips))
		assert.Equal(t, 100, roundDenomination(300, chips))
		assert.Equal(t, 500, roundDenomination(1001, chips))
		assert.Equal(t, 1000, roundDenomination(5001, chips))
	})

	t.Run("antes", func(t *testing.T) {
		levels, err := GenerateBlindLevels(10, 600000, 0, 1.5, AnteTraditional, 0, chips)
		require.NoError(t, err)
		last := levels[len(levels)-1]
		assert.Positive(t, last.Ante)
		assert.Equal(t, AnteTraditional, last.AnteType)

		levels, err = GenerateBlindLevels(10, 600000, 0, 1.5, AnteBigBlind, 0, chips)
		require.NoError(t, err)
		last = levels[len(levels)-1]
		assert.Equal(t, last.BigBlind, last.Ante)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := GenerateBlindLevels(10, 600000, 0, 1.5, AnteNone, 0, nil)
		assert.ErrorIs(t, err, ErrInfeasible)
		_, err = GenerateBlindLevels(0, 600000, 0, 1.5, AnteNone, 0, chips)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		_, err = GenerateBlindLevels(10, 600000, 0, 1, AnteNone, 0, chips)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("duration driven", func(t *testing.T) {
		f := newTestFunding(t)
		levels, err := GenerateBlindLevelsForDuration(BlindStructureRequest{
			DesiredDuration:     4 * 3600000,
			LevelDuration:       1200000,
			ChipUpBreakDuration: 600000,
			ExpectedBuyins:      20,
		}, chips, f, 0)
		require.NoError(t, err)
		// 4h / (20m + 1m) = 11 rounds, plus ten percent and one, after setup
		assert.Len(t, levels, 14)
		assert.Equal(t, 25, levels[1].LittleBlind)
	})
}
