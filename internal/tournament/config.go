package tournament

import (
	"cmp"
	"slices"
)

// Config is the complete tournament configuration, as returned by get_config
// and accepted by configure.
type Config struct {
	Name                           string             `json:"name"`
	Players                        []Player           `json:"players"`
	TableCapacity                  int                `json:"table_capacity"`
	FundingSources                 []FundingSource    `json:"funding_sources"`
	BlindLevels                    []BlindLevel       `json:"blind_levels"`
	AvailableChips                 []Chip             `json:"available_chips"`
	PayoutPolicy                   PayoutPolicy       `json:"payout_policy"`
	PayoutCurrency                 string             `json:"payout_currency"`
	AutomaticPayouts               AutomaticPayouts   `json:"automatic_payouts"`
	ForcedPayouts                  []float64          `json:"forced_payouts"`
	ManualPayouts                  []ManualPayout     `json:"manual_payouts"`
	RebalancePolicy                RebalancePolicy    `json:"rebalance_policy"`
	PreviousBlindLevelHoldDuration int64              `json:"previous_blind_level_hold_duration"`
	AuthorizedClients              []AuthorizedClient `json:"authorized_clients"`
}

// ConfigUpdate carries the keys of a configure command. Absent keys are nil
// and leave the current value untouched.
type ConfigUpdate struct {
	Name                           *string             `json:"name,omitempty"`
	Players                        *[]Player           `json:"players,omitempty"`
	TableCapacity                  *int                `json:"table_capacity,omitempty"`
	FundingSources                 *[]FundingSource    `json:"funding_sources,omitempty"`
	BlindLevels                    *[]BlindLevel       `json:"blind_levels,omitempty"`
	AvailableChips                 *[]Chip             `json:"available_chips,omitempty"`
	PayoutPolicy                   *PayoutPolicy       `json:"payout_policy,omitempty"`
	PayoutCurrency                 *string             `json:"payout_currency,omitempty"`
	AutomaticPayouts               *AutomaticPayouts   `json:"automatic_payouts,omitempty"`
	ForcedPayouts                  *[]float64          `json:"forced_payouts,omitempty"`
	ManualPayouts                  *[]ManualPayout     `json:"manual_payouts,omitempty"`
	RebalancePolicy                *RebalancePolicy    `json:"rebalance_policy,omitempty"`
	PreviousBlindLevelHoldDuration *int64              `json:"previous_blind_level_hold_duration,omitempty"`
	AuthorizedClients              *[]AuthorizedClient `json:"authorized_clients,omitempty"`
}

// Update converts a full configuration into an update that sets every key.
func (c Config) Update() ConfigUpdate {
	return ConfigUpdate{
		Name:                           &c.Name,
		Players:                        &c.Players,
		TableCapacity:                  &c.TableCapacity,
		FundingSources:                 &c.FundingSources,
		BlindLevels:                    &c.BlindLevels,
		AvailableChips:                 &c.AvailableChips,
		PayoutPolicy:                   &c.PayoutPolicy,
		PayoutCurrency:                 &c.PayoutCurrency,
		AutomaticPayouts:               &c.AutomaticPayouts,
		ForcedPayouts:                  &c.ForcedPayouts,
		ManualPayouts:                  &c.ManualPayouts,
		RebalancePolicy:                &c.RebalancePolicy,
		PreviousBlindLevelHoldDuration: &c.PreviousBlindLevelHoldDuration,
		AuthorizedClients:              &c.AuthorizedClients,
	}
}

// validate checks every key of the update before any of them is applied.
func (u ConfigUpdate) validate() error {
	if u.TableCapacity != nil && *u.TableCapacity < 0 {
		return invalidArgument("table capacity must not be negative, got %d", *u.TableCapacity)
	}

	if u.Players != nil {
		seen := make(map[PlayerID]bool, len(*u.Players))
		for _, p := range *u.Players {
			if p.PlayerID == "" {
				continue
			}
			if seen[p.PlayerID] {
				return invalidArgument("duplicate player id %q", p.PlayerID)
			}
			seen[p.PlayerID] = true
		}
	}

	if u.FundingSources != nil {
		if err := validateSources(*u.FundingSources); err != nil {
			return err
		}
	}

	if u.BlindLevels != nil {
		for i, l := range *u.BlindLevels {
			if l.LittleBlind < 0 || l.BigBlind < 0 || l.Ante < 0 || l.Duration < 0 || l.BreakDuration < 0 {
				return invalidArgument("blind level %d has a negative value", i)
			}
			if i > 0 && l.Duration == 0 {
				return invalidArgument("blind level %d has no duration", i)
			}
		}
	}

	if u.AvailableChips != nil {
		seen := make(map[int]bool, len(*u.AvailableChips))
		for _, c := range *u.AvailableChips {
			if c.Denomination <= 0 {
				return invalidArgument("chip denomination must be positive, got %d", c.Denomination)
			}
			if c.CountAvailable < 0 {
				return invalidArgument("chip count must not be negative, got %d", c.CountAvailable)
			}
			if seen[c.Denomination] {
				return invalidArgument("duplicate chip denomination %d", c.Denomination)
			}
			seen[c.Denomination] = true
		}
	}

	if u.AutomaticPayouts != nil {
		a := *u.AutomaticPayouts
		if a.PercentSeatsPaid < 0 || a.PercentSeatsPaid > 1 {
			return invalidArgument("percent_seats_paid must be between 0 and 1, got %g", a.PercentSeatsPaid)
		}
		if a.PayoutShape < 0 || a.PayoutShape > 1 {
			return invalidArgument("payout_shape must be between 0 and 1, got %g", a.PayoutShape)
		}
	}

	if u.PreviousBlindLevelHoldDuration != nil && *u.PreviousBlindLevelHoldDuration < 0 {
		return invalidArgument("previous_blind_level_hold_duration must not be negative")
	}

	if u.AuthorizedClients != nil {
		for _, c := range *u.AuthorizedClients {
			if c.Code == 0 {
				return invalidArgument("authorized client %q has no code", c.Name)
			}
		}
	}
	return nil
}

// touchesPayouts reports whether applying the update changes payouts.
func (u ConfigUpdate) touchesPayouts() bool {
	return u.FundingSources != nil || u.PayoutPolicy != nil || u.PayoutCurrency != nil ||
		u.AutomaticPayouts != nil || u.ForcedPayouts != nil || u.ManualPayouts != nil
}

func sortChips(chips []Chip) []Chip {
	out := slices.Clone(chips)
	slices.SortFunc(out, func(a, b Chip) int { return cmp.Compare(a.Denomination, b.Denomination) })
	return out
}
