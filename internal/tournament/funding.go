package tournament

import (
	"slices"

	"github.com/charmbracelet/log"
)

// Funding tracks buy-ins, rebuys and addons, the money they bring in and the
// payouts that money funds.
type Funding struct {
	logger *log.Logger

	sources        []FundingSource
	policy         PayoutPolicy
	automatic      AutomaticPayouts
	forced         []float64
	manual         []ManualPayout
	payoutCurrency string

	buyins          map[PlayerID]bool
	uniqueEntries   []PlayerID
	entries         []PlayerID
	totalChips      int
	totalCost       MonetaryValue
	totalCommission MonetaryValue
	totalEquity     float64
	payouts         []float64
}

// NewFunding creates empty funding with default automatic payouts.
func NewFunding(logger *log.Logger) *Funding {
	f := &Funding{
		logger:         logger.WithPrefix("funding"),
		payoutCurrency: "XXX",
		automatic:      AutomaticPayouts{PayoutShape: DefaultPayoutShape},
	}
	f.Reset()
	return f
}

// Reset clears every funding record and total. Configuration is kept.
func (f *Funding) Reset() {
	f.buyins = make(map[PlayerID]bool)
	f.uniqueEntries = nil
	f.entries = nil
	f.totalChips = 0
	f.totalCost = MonetaryValue{Currency: f.costCurrency()}
	f.totalCommission = MonetaryValue{Currency: f.commissionCurrency()}
	f.totalEquity = 0
	f.payouts = []float64{}
}

// SetSources replaces the funding sources. All sources must share one cost
// currency and one commission currency.
func (f *Funding) SetSources(sources []FundingSource) error {
	if err := validateSources(sources); err != nil {
		return err
	}
	f.sources = slices.Clone(sources)
	if f.totalChips == 0 {
		f.totalCost.Currency = f.costCurrency()
		f.totalCommission.Currency = f.commissionCurrency()
	}
	return nil
}

func validateSources(sources []FundingSource) error {
	for i, s := range sources {
		if s.Chips < 0 || s.Cost.Amount < 0 || s.Commission.Amount < 0 || s.Equity.Amount < 0 {
			return invalidArgument("funding source %d (%s) has a negative amount", i, s.Name)
		}
		if s.Cost.Currency != sources[0].Cost.Currency {
			return wrap(ErrMixedCurrency, "cost of %s is %s, expected %s", s.Name, s.Cost.Currency, sources[0].Cost.Currency)
		}
		if s.Commission.Currency != sources[0].Commission.Currency {
			return wrap(ErrMixedCurrency, "commission of %s is %s, expected %s", s.Name, s.Commission.Currency, sources[0].Commission.Currency)
		}
	}
	return nil
}

func (f *Funding) costCurrency() string {
	if len(f.sources) > 0 {
		return f.sources[0].Cost.Currency
	}
	return ""
}

func (f *Funding) commissionCurrency() string {
	if len(f.sources) > 0 {
		return f.sources[0].Commission.Currency
	}
	return ""
}

// Sources returns a copy of the funding sources.
func (f *Funding) Sources() []FundingSource { return slices.Clone(f.sources) }

// Source returns the funding source at index.
func (f *Funding) Source(index int) (FundingSource, error) {
	if index < 0 || index >= len(f.sources) {
		return FundingSource{}, wrap(ErrUnknownSource, "index %d of %d", index, len(f.sources))
	}
	return f.sources[index], nil
}

// SourceForType returns the index of the first source of the given type.
func (f *Funding) SourceForType(t FundingType) (int, error) {
	for i, s := range f.sources {
		if s.Type == t {
			return i, nil
		}
	}
	return 0, wrap(ErrUnknownSource, "no %s funding source", t)
}

// Fund applies a funding source to a player at the given blind level.
func (f *Funding) Fund(id PlayerID, index, level int) (FundingSource, error) {
	source, err := f.Source(index)
	if err != nil {
		return FundingSource{}, err
	}
	if !source.AllowedAt(level) {
		return FundingSource{}, wrap(ErrTooLate, "%s allowed through level %d, current level is %d", source.Name, *source.ForbidAfterBlindLevel, level)
	}

	if source.Type == Addon {
		if !f.buyins[id] {
			return FundingSource{}, wrap(ErrNotBoughtIn, "%s", id)
		}
	} else {
		if f.buyins[id] {
			return FundingSource{}, wrap(ErrAlreadyFunded, "%s", id)
		}
		if source.Type == Rebuy && level < 1 {
			return FundingSource{}, wrap(ErrTooEarly, "%s before the tournament started", source.Name)
		}
		f.buyins[id] = true
		f.entries = append(f.entries, id)
		if !slices.Contains(f.uniqueEntries, id) {
			f.uniqueEntries = append(f.uniqueEntries, id)
		}
	}

	f.totalChips += source.Chips
	f.totalCost.Amount += source.Cost.Amount
	f.totalCost.Currency = source.Cost.Currency
	f.totalCommission.Amount += source.Commission.Amount
	f.totalCommission.Currency = source.Commission.Currency
	f.totalEquity += source.Equity.Amount

	f.logger.Info("Funded player", "player", id, "source", source.Name, "type", source.Type, "chips", source.Chips)
	f.Recalculate()
	return source, nil
}

// Bust marks a player as no longer bought in, allowing a later re-entry.
func (f *Funding) Bust(id PlayerID) {
	delete(f.buyins, id)
}

// IsBoughtIn reports whether a player currently holds a buy-in.
func (f *Funding) IsBoughtIn(id PlayerID) bool { return f.buyins[id] }

// Buyins returns the bought-in players in sorted order.
func (f *Funding) Buyins() []PlayerID {
	out := make([]PlayerID, 0, len(f.buyins))
	for id := range f.buyins {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (f *Funding) UniqueEntries() []PlayerID { return slices.Clone(f.uniqueEntries) }
func (f *Funding) Entries() []PlayerID { return slices.Clone(f.entries) }
func (f *Funding) TotalChips() int { return f.totalChips }
func (f *Funding) TotalCost() MonetaryValue { return f.totalCost }
func (f *Funding) TotalCommission() MonetaryValue { return f.totalCommission }
func (f *Funding) TotalEquity() float64 { return f.totalEquity }
func (f *Funding) Payouts() []float64 { return slices.Clone(f.payouts) }
func (f *Funding) PayoutPolicy() PayoutPolicy { return f.policy }
func (f *Funding) AutomaticPayouts() AutomaticPayouts { return f.automatic }
func (f *Funding) ForcedPayouts() []float64 { return slices.Clone(f.forced) }
func (f *Funding) ManualPayouts() []ManualPayout { return slices.Clone(f.manual) }
func (f *Funding) PayoutCurrency() string { return f.payoutCurrency }

func (f *Funding) SetPayoutPolicy(p PayoutPolicy) { f.policy = p }
func (f *Funding) SetAutomaticPayouts(a AutomaticPayouts) { f.automatic = a }
func (f *Funding) SetForcedPayouts(p []float64) { f.forced = slices.Clone(p) }
func (f *Funding) SetManualPayouts(p []ManualPayout) { f.manual = slices.Clone(p) }
func (f *Funding) SetPayoutCurrency(currency string) { f.payoutCurrency = currency }

// Recalculate rebuilds the payout vector from the current policy and entries.
func (f *Funding) Recalculate() {
	count := len(f.uniqueEntries)

	switch f.policy {
	case PayoutForced:
		if len(f.forced) > 0 {
			f.payouts = slices.Clone(f.forced)
			f.logger.Info("Applied forced payouts", "seats", len(f.payouts))
			return
		}
		f.logger.Warn("Payout policy is forced but no forced payouts exist, falling back to automatic")
	case PayoutManual:
		for _, m := range f.manual {
			if m.BuyinsCount == count {
				f.payouts = slices.Clone(m.Payouts)
				f.logger.Info("Applied manual payouts", "entries", count, "seats", len(f.payouts))
				return
			}
		}
		f.logger.Warn("No manual payout list for entry count, falling back to automatic", "entries", count)
	}

	f.payouts = CalculatePayouts(count, f.totalEquity, f.automatic)
	f.logger.Debug("Recalculated payouts", "entries", count, "seats", len(f.payouts), "equity", f.totalEquity)
}

// fundingState is the persisted form of Funding.
type fundingState struct {
	Buyins          []PlayerID    `json:"buyins"`
	UniqueEntries   []PlayerID    `json:"unique_entries"`
	Entries         []PlayerID    `json:"entries"`
	TotalChips      int           `json:"total_chips"`
	TotalCost       MonetaryValue `json:"total_cost"`
	TotalCommission MonetaryValue `json:"total_commission"`
	TotalEquity     float64       `json:"total_equity"`
}

func (f *Funding) snapshot() fundingState {
	return fundingState{
		Buyins:          f.Buyins(),
		UniqueEntries:   f.UniqueEntries(),
		Entries:         f.Entries(),
		TotalChips:      f.totalChips,
		TotalCost:       f.totalCost,
		TotalCommission: f.totalCommission,
		TotalEquity:     f.totalEquity,
	}
}

func (f *Funding) restore(st fundingState) {
	f.buyins = make(map[PlayerID]bool, len(st.Buyins))
	for _, id := range st.Buyins {
		f.buyins[id] = true
	}
	f.uniqueEntries = slices.Clone(st.UniqueEntries)
	f.entries = slices.Clone(st.Entries)
	f.totalChips = st.TotalChips
	f.totalCost = st.TotalCost
	f.totalCommission = st.TotalCommission
	f.totalEquity = st.TotalEquity
	f.Recalculate()
}
