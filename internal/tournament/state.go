package tournament

import (
	"cmp"
	"slices"
	"time"
)

// State is the mutable tournament state plus the values derived from it, as
// returned by get_state and broadcast to clients.
type State struct {
	CurrentTime              time.Time `json:"current_time"`
	CurrentBlindLevel        int       `json:"current_blind_level"`
	Running                  bool      `json:"running"`
	Paused                   bool      `json:"paused"`
	OnBreak                  bool      `json:"on_break"`
	TimeRemaining            int64     `json:"time_remaining"`
	BreakTimeRemaining       int64     `json:"break_time_remaining"`
	ActionClockTimeRemaining int64     `json:"action_clock_time_remaining"`
	ElapsedTime              int64     `json:"elapsed_time"`

	Tables          int                 `json:"tables"`
	Seats           map[PlayerID]Seat   `json:"seats"`
	EmptySeats      []Seat              `json:"empty_seats"`
	PlayersFinished []PlayerID          `json:"players_finished"`
	SeatedPlayers   []SeatedPlayer      `json:"seated_players"`
	SeatingChart    []SeatingChartEntry `json:"seating_chart"`

	Buyins          []PlayerID    `json:"buyins"`
	UniqueEntries   []PlayerID    `json:"unique_entries"`
	Entries         []PlayerID    `json:"entries"`
	Payouts         []float64     `json:"payouts"`
	Results         []Result      `json:"results"`
	TotalChips      int           `json:"total_chips"`
	TotalCost       MonetaryValue `json:"total_cost"`
	TotalCommission MonetaryValue `json:"total_commission"`
	TotalEquity     float64       `json:"total_equity"`
}

// State dumps the current state.
func (t *Tournament) State() State {
	cs := t.Clock.State()
	st := State{
		CurrentTime:              cs.Now,
		CurrentBlindLevel:        cs.CurrentBlindLevel,
		Running:                  cs.Running,
		Paused:                   cs.Paused,
		OnBreak:                  cs.OnBreak,
		TimeRemaining:            max(cs.TimeRemaining.Milliseconds(), 0),
		BreakTimeRemaining:       max(cs.BreakTimeRemaining.Milliseconds(), 0),
		ActionClockTimeRemaining: cs.ActionClockRemaining.Milliseconds(),
		ElapsedTime:              cs.Elapsed.Milliseconds(),

		Tables:          t.Seating.Tables(),
		Seats:           t.Seating.Seats(),
		EmptySeats:      t.Seating.EmptySeats(),
		PlayersFinished: t.Seating.Finished(),

		Buyins:          t.Funding.Buyins(),
		UniqueEntries:   t.Funding.UniqueEntries(),
		Entries:         t.Funding.Entries(),
		Payouts:         t.Funding.Payouts(),
		TotalChips:      t.Funding.TotalChips(),
		TotalCost:       t.Funding.TotalCost(),
		TotalCommission: t.Funding.TotalCommission(),
		TotalEquity:     t.Funding.TotalEquity(),
	}
	st.SeatedPlayers = t.seatedPlayers()
	st.SeatingChart = t.seatingChart()
	st.Results = t.results()
	return st
}

// results lists every place: those still playing first without names, then
// finished players in finishing order, each with its payout if paid.
func (t *Tournament) results() []Result {
	payouts := t.Funding.Payouts()
	payout := func(place int) float64 {
		if place-1 < len(payouts) {
			return payouts[place-1]
		}
		return 0
	}

	remaining := len(t.Funding.Buyins())
	finished := t.Seating.Finished()
	out := make([]Result, 0, remaining+len(finished))
	for place := 1; place <= remaining; place++ {
		out = append(out, Result{Place: place, Payout: payout(place)})
	}
	for i, id := range finished {
		place := remaining + i + 1
		out = append(out, Result{Place: place, Name: t.playerName(id), Payout: payout(place)})
	}
	return out
}

func (t *Tournament) seatedPlayers() []SeatedPlayer {
	out := make([]SeatedPlayer, 0, len(t.players))
	for _, p := range t.players {
		sp := SeatedPlayer{PlayerID: p.PlayerID, Name: p.Name, Buyin: t.Funding.IsBoughtIn(p.PlayerID)}
		if seat, ok := t.Seating.SeatOf(p.PlayerID); ok {
			sp.Seat = &seat
		}
		out = append(out, sp)
	}
	return out
}

// seatingChart lists every seat in play ordered by table and seat.
func (t *Tournament) seatingChart() []SeatingChartEntry {
	var out []SeatingChartEntry
	for id, seat := range t.Seating.Seats() {
		out = append(out, SeatingChartEntry{Seat: seat, PlayerID: id, Name: t.playerName(id)})
	}
	for _, seat := range t.Seating.EmptySeats() {
		out = append(out, SeatingChartEntry{Seat: seat})
	}
	slices.SortFunc(out, func(a, b SeatingChartEntry) int {
		return cmp.Or(cmp.Compare(a.TableNumber, b.TableNumber), cmp.Compare(a.SeatNumber, b.SeatNumber))
	})
	if out == nil {
		out = []SeatingChartEntry{}
	}
	return out
}

// Snapshot is everything needed to rebuild a tournament after a restart.
type Snapshot struct {
	Config  Config        `json:"config"`
	Clock   clockSnapshot `json:"clock"`
	Seating seatingState  `json:"seating"`
	Funding fundingState  `json:"funding"`
}

// Snapshot captures the configuration and state.
func (t *Tournament) Snapshot() Snapshot {
	return Snapshot{
		Config:  t.Config(),
		Clock:   t.Clock.snapshot(),
		Seating: t.Seating.snapshot(),
		Funding: t.Funding.snapshot(),
	}
}

// Restore replaces the configuration and state with a snapshot.
func (t *Tournament) Restore(s Snapshot) error {
	if _, err := t.Configure(s.Config.Update()); err != nil {
		return err
	}
	t.Clock.restore(s.Clock)
	t.Seating.restore(s.Seating)
	t.Funding.restore(s.Funding)
	t.logger.Info("Restored tournament", "level", t.Clock.CurrentBlindLevel(), "seated", t.Seating.SeatedCount())
	return nil
}
