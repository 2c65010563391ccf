package tournament

import (
	"encoding/json"
	"fmt"
	"time"
)

// PlayerID keys the player roster.
type PlayerID = string

// Player is a roster entry. Only Name may change once the player is seated or funded.
type Player struct {
	PlayerID PlayerID  `json:"player_id"`
	Name     string    `json:"name"`
	AddedAt  time.Time `json:"added_at"`
}

// Seat is a coordinate in the table/seat grid, both zero-based.
type Seat struct {
	TableNumber int `json:"table_number"`
	SeatNumber  int `json:"seat_number"`
}

func (s Seat) String() string {
	return fmt.Sprintf("table %d, seat %d", s.TableNumber, s.SeatNumber)
}

// Movement is one player relocation produced by seating changes.
type Movement struct {
	PlayerID PlayerID
	Name     string
	From     Seat
	To       Seat
}

// MarshalJSON flattens the seats the way clients display them.
func (m Movement) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PlayerID        PlayerID `json:"player_id"`
		Name            string   `json:"name,omitempty"`
		FromTableNumber int      `json:"from_table_number"`
		FromSeatNumber  int      `json:"from_seat_number"`
		ToTableNumber   int      `json:"to_table_number"`
		ToSeatNumber    int      `json:"to_seat_number"`
	}{m.PlayerID, m.Name, m.From.TableNumber, m.From.SeatNumber, m.To.TableNumber, m.To.SeatNumber})
}

// MonetaryValue is an amount in an ISO 4217 currency (XXX for points).
type MonetaryValue struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Equity is an amount in the configured payout currency.
type Equity struct {
	Amount float64 `json:"amount"`
}

// FundingType distinguishes buy-ins, rebuys and addons.
type FundingType int

const (
	Buyin FundingType = iota
	Rebuy
	Addon
)

var fundingTypeNames = []string{"buyin", "rebuy", "addon"}

func (t FundingType) String() string { return enumName(fundingTypeNames, int(t)) }

func (t FundingType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *FundingType) UnmarshalJSON(data []byte) error {
	v, err := enumValue("funding source type", fundingTypeNames, data)
	*t = FundingType(v)
	return err
}

// FundingSource describes one way of putting money and chips into the tournament.
type FundingSource struct {
	Name string      `json:"name"`
	Type FundingType `json:"type"`
	// ForbidAfterBlindLevel is the last blind level at which this source may be
	// used. Nil means no limit.
	ForbidAfterBlindLevel *int          `json:"forbid_after_blind_level,omitempty"`
	Chips                 int           `json:"chips"`
	Cost                  MonetaryValue `json:"cost"`
	Commission            MonetaryValue `json:"commission"`
	Equity                Equity        `json:"equity"`
}

// AllowedAt reports whether the source may be used during level.
func (s FundingSource) AllowedAt(level int) bool {
	return s.ForbidAfterBlindLevel == nil || level <= *s.ForbidAfterBlindLevel
}

// AnteType selects how antes are collected at a blind level.
type AnteType int

const (
	AnteNone AnteType = iota
	AnteTraditional
	AnteBigBlind
)

var anteTypeNames = []string{"none", "traditional", "bba"}

func (t AnteType) String() string { return enumName(anteTypeNames, int(t)) }

func (t AnteType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *AnteType) UnmarshalJSON(data []byte) error {
	v, err := enumValue("ante type", anteTypeNames, data)
	*t = AnteType(v)
	return err
}

// BlindLevel is one step of the blind structure. Durations are milliseconds.
type BlindLevel struct {
	LittleBlind   int      `json:"little_blind"`
	BigBlind      int      `json:"big_blind"`
	Ante          int      `json:"ante"`
	AnteType      AnteType `json:"ante_type"`
	Duration      int64    `json:"duration_ms"`
	BreakDuration int64    `json:"break_duration_ms"`
	Reason        string   `json:"reason,omitempty"`
}

func (l BlindLevel) String() string {
	s := fmt.Sprintf("%d/%d", l.LittleBlind, l.BigBlind)
	switch l.AnteType {
	case AnteTraditional:
		s += fmt.Sprintf(" Ante:%d", l.Ante)
	case AnteBigBlind:
		s += fmt.Sprintf(" BBA:%d", l.Ante)
	}
	return s
}

// Chip is one denomination of the physical chip set.
type Chip struct {
	Color          string `json:"color"`
	Denomination   int    `json:"denomination"`
	CountAvailable int    `json:"count_available"`
}

// PlayerChips is the number of chips of one denomination in a starting stack.
type PlayerChips struct {
	Denomination int `json:"denomination"`
	Chips        int `json:"chips"`
}

// AuthorizedClient is a code allowed to administer the tournament.
type AuthorizedClient struct {
	Code    int       `json:"code"`
	Name    string    `json:"name"`
	AddedAt time.Time `json:"added_at"`
}

// PayoutPolicy selects how the payout vector is produced.
type PayoutPolicy int

const (
	PayoutAutomatic PayoutPolicy = iota
	PayoutForced
	PayoutManual
)

var payoutPolicyNames = []string{"automatic", "forced", "manual"}

func (p PayoutPolicy) String() string { return enumName(payoutPolicyNames, int(p)) }

func (p PayoutPolicy) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

func (p *PayoutPolicy) UnmarshalJSON(data []byte) error {
	v, err := enumValue("payout policy", payoutPolicyNames, data)
	*p = PayoutPolicy(v)
	return err
}

// RebalancePolicy selects what happens to tables when a player busts.
type RebalancePolicy int

const (
	RebalanceAutomatic RebalancePolicy = iota
	RebalanceManual
	RebalanceShootout
)

var rebalancePolicyNames = []string{"automatic", "manual", "shootout"}

func (p RebalancePolicy) String() string { return enumName(rebalancePolicyNames, int(p)) }

func (p RebalancePolicy) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

func (p *RebalancePolicy) UnmarshalJSON(data []byte) error {
	v, err := enumValue("rebalance policy", rebalancePolicyNames, data)
	*p = RebalancePolicy(v)
	return err
}

// ManualPayout is the payout list to use when exactly BuyinsCount players bought in.
type ManualPayout struct {
	BuyinsCount int       `json:"buyins_count"`
	Payouts     []float64 `json:"payouts"`
}

// AutomaticPayouts parameterises the proportional payout calculation.
type AutomaticPayouts struct {
	PercentSeatsPaid float64 `json:"percent_seats_paid"`
	RoundPayouts     bool    `json:"round_payouts"`
	PayoutShape      float64 `json:"payout_shape"`
}

// UnmarshalJSON fills PayoutShape with DefaultPayoutShape when the key is absent.
func (a *AutomaticPayouts) UnmarshalJSON(data []byte) error {
	type plain AutomaticPayouts
	p := plain{PayoutShape: DefaultPayoutShape}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = AutomaticPayouts(p)
	return nil
}

// Result is one finishing place.
type Result struct {
	Place  int     `json:"place"`
	Name   string  `json:"name,omitempty"`
	Payout float64 `json:"payout"`
}

// SeatedPlayer is a roster entry annotated with buy-in and seat information.
type SeatedPlayer struct {
	PlayerID PlayerID `json:"player_id"`
	Name     string   `json:"name"`
	Buyin    bool     `json:"buyin"`
	Seat     *Seat    `json:"seat,omitempty"`
}

// SeatingChartEntry is one seat in the seating chart, occupied or not.
type SeatingChartEntry struct {
	Seat
	PlayerID PlayerID `json:"player_id,omitempty"`
	Name     string   `json:"name,omitempty"`
}

func enumName(names []string, v int) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%d", v)
}

// enumValue accepts either the name or the numeric index of an enum value.
func enumValue(what string, names []string, data []byte) (int, error) {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		for i, n := range names {
			if n == name {
				return i, nil
			}
		}
		return 0, invalidArgument("unknown %s %q", what, name)
	}
	var index int
	if err := json.Unmarshal(data, &index); err != nil {
		return 0, invalidArgument("invalid %s: %s", what, string(data))
	}
	if index < 0 || index >= len(names) {
		return 0, invalidArgument("%s out of range: %d", what, index)
	}
	return index, nil
}
