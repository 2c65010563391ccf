package tournament

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/charmbracelet/log"
)

// Seating assigns players to seats across a grid of tables and keeps the
// tables balanced as players leave.
//
// Every valid seat is either occupied or in the empty pool, never both, and
// the two together always cover exactly tables*capacity seats.
type Seating struct {
	logger *log.Logger
	rng    *rand.Rand

	tableCapacity int
	tables        int
	maxExpected   int

	seats      map[PlayerID]Seat
	emptySeats []Seat
	// finished holds busted players, most recent first.
	finished []PlayerID
}

// NewSeating creates an unplanned seating grid.
func NewSeating(rng *rand.Rand, logger *log.Logger) *Seating {
	return &Seating{
		logger: logger.WithPrefix("seating"),
		rng:    rng,
		seats:  make(map[PlayerID]Seat),
	}
}

// SetTableCapacity sets the number of seats per table for the next plan.
func (s *Seating) SetTableCapacity(capacity int) {
	s.tableCapacity = capacity
}

func (s *Seating) TableCapacity() int { return s.tableCapacity }
func (s *Seating) Tables() int { return s.tables }
func (s *Seating) MaxExpected() int { return s.maxExpected }
func (s *Seating) SeatedCount() int { return len(s.seats) }
func (s *Seating) EmptySeatCount() int { return len(s.emptySeats) }
func (s *Seating) Finished() []PlayerID { return slices.Clone(s.finished) }

// SeatOf returns the seat held by a player.
func (s *Seating) SeatOf(id PlayerID) (Seat, bool) {
	seat, ok := s.seats[id]
	return seat, ok
}

// Seats returns a copy of the current assignment.
func (s *Seating) Seats() map[PlayerID]Seat {
	out := make(map[PlayerID]Seat, len(s.seats))
	for id, seat := range s.seats {
		out[id] = seat
	}
	return out
}

// EmptySeats returns the empty-seat pool in the order seats will be handed out.
func (s *Seating) EmptySeats() []Seat {
	return slices.Clone(s.emptySeats)
}

// Plan sizes the grid for maxExpected players and shuffles every seat into the
// empty pool. It discards any existing seating and finished list.
func (s *Seating) Plan(maxExpected int) (int, error) {
	if maxExpected < 2 {
		return 0, invalidArgument("expected players must be at least 2, got %d", maxExpected)
	}
	if s.tableCapacity < 2 {
		return 0, invalidArgument("table capacity must be at least 2, got %d", s.tableCapacity)
	}

	s.Reset()
	s.tables = (maxExpected + s.tableCapacity - 1) / s.tableCapacity
	s.maxExpected = maxExpected

	s.emptySeats = make([]Seat, 0, s.tables*s.tableCapacity)
	for t := 0; t < s.tables; t++ {
		for n := 0; n < s.tableCapacity; n++ {
			s.emptySeats = append(s.emptySeats, Seat{TableNumber: t, SeatNumber: n})
		}
	}
	s.rng.Shuffle(len(s.emptySeats), func(i, j int) {
		s.emptySeats[i], s.emptySeats[j] = s.emptySeats[j], s.emptySeats[i]
	})

	s.logger.Info("Planned seating", "players", maxExpected, "tables", s.tables, "seats", len(s.emptySeats))
	return s.tables, nil
}

// Reset clears the grid, the assignment and the finished list.
func (s *Seating) Reset() {
	s.tables = 0
	s.maxExpected = 0
	s.seats = make(map[PlayerID]Seat)
	s.emptySeats = nil
	s.finished = nil
}

// Add seats a player at the front of the empty pool.
func (s *Seating) Add(id PlayerID) (Seat, error) {
	if seat, ok := s.seats[id]; ok {
		return seat, wrap(ErrAlreadySeated, "%s at %s", id, seat)
	}
	if len(s.emptySeats) == 0 {
		return Seat{}, ErrNoEmptySeats
	}

	seat := s.emptySeats[0]
	s.emptySeats = s.emptySeats[1:]
	s.seats[id] = seat
	s.logger.Info("Seated player", "player", id, "table", seat.TableNumber, "seat", seat.SeatNumber)
	return seat, nil
}

// Unseat frees a player's seat without recording a finish or moving anyone.
func (s *Seating) Unseat(id PlayerID) (Seat, error) {
	seat, ok := s.seats[id]
	if !ok {
		return Seat{}, wrap(ErrNotSeated, "%s", id)
	}

	delete(s.seats, id)
	s.emptySeats = append(s.emptySeats, seat)
	s.logger.Info("Unseated player", "player", id, "table", seat.TableNumber, "seat", seat.SeatNumber)
	return seat, nil
}

// Remove busts a player: the seat goes to the back of the pool, the player to
// the front of the finished list, and then tables are broken and rebalanced
// according to policy.
func (s *Seating) Remove(id PlayerID, policy RebalancePolicy) ([]Movement, error) {
	if _, err := s.Unseat(id); err != nil {
		return nil, err
	}
	s.finished = slices.Insert(s.finished, 0, id)

	switch policy {
	case RebalanceManual:
		s.logger.Debug("Manual rebalancing in effect, leaving tables alone")
		return nil, nil
	case RebalanceShootout:
		if s.tables < len(s.seats) {
			return nil, nil
		}
	}
	return s.Rebalance(), nil
}

// Unfinish drops a player from the finished list, used when a busted player
// re-enters.
func (s *Seating) Unfinish(id PlayerID) {
	s.finished = slices.DeleteFunc(s.finished, func(f PlayerID) bool { return f == id })
}

// Finish pushes a player that holds no seat onto the finished list.
func (s *Seating) Finish(id PlayerID) {
	s.Unfinish(id)
	s.finished = slices.Insert(s.finished, 0, id)
}

// Rebalance breaks every table that can be broken and then evens out the rest.
func (s *Seating) Rebalance() []Movement {
	movements := s.tryBreakTable()
	return append(movements, s.tryRebalance()...)
}

// MoveToTable moves a player to a random empty seat at table.
func (s *Seating) MoveToTable(id PlayerID, table int) (Movement, error) {
	from, ok := s.seats[id]
	if !ok {
		return Movement{}, wrap(ErrNotSeated, "%s", id)
	}

	var candidates []int
	for i, seat := range s.emptySeats {
		if seat.TableNumber == table {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return Movement{}, wrap(ErrTableFull, "table %d", table)
	}

	i := candidates[s.rng.IntN(len(candidates))]
	to := s.emptySeats[i]
	s.emptySeats = slices.Delete(s.emptySeats, i, i+1)
	s.emptySeats = append(s.emptySeats, from)
	s.seats[id] = to

	s.logger.Info("Moved player", "player", id, "from", from, "to", to)
	return Movement{PlayerID: id, From: from, To: to}, nil
}

// MoveAvoiding moves a player to the least occupied table outside avoid.
// Ties go to the lowest table number.
func (s *Seating) MoveAvoiding(id PlayerID, avoid map[int]bool) (Movement, error) {
	if _, ok := s.seats[id]; !ok {
		return Movement{}, wrap(ErrNotSeated, "%s", id)
	}

	counts := s.occupancy()
	smallest := -1
	for t := range counts {
		if avoid[t] {
			continue
		}
		if smallest < 0 || len(counts[t]) < len(counts[smallest]) {
			smallest = t
		}
	}
	if smallest < 0 {
		return Movement{}, ErrNoCandidateTable
	}
	return s.MoveToTable(id, smallest)
}

// occupancy returns the players at each table, ordered by seat number.
func (s *Seating) occupancy() [][]PlayerID {
	type seated struct {
		id   PlayerID
		seat Seat
	}
	byTable := make([][]seated, s.tables)
	for id, seat := range s.seats {
		if seat.TableNumber < s.tables {
			byTable[seat.TableNumber] = append(byTable[seat.TableNumber], seated{id, seat})
		}
	}

	out := make([][]PlayerID, s.tables)
	for t, players := range byTable {
		slices.SortFunc(players, func(a, b seated) int { return cmp.Compare(a.seat.SeatNumber, b.seat.SeatNumber) })
		out[t] = make([]PlayerID, 0, len(players))
		for _, p := range players {
			out[t] = append(out[t], p.id)
		}
	}
	return out
}

// tryBreakTable breaks the highest-numbered table while the remaining players
// fit on one table fewer.
func (s *Seating) tryBreakTable() []Movement {
	var movements []Movement
	for s.tables > 1 && len(s.seats) <= s.tableCapacity*(s.tables-1) {
		breaking := s.tables - 1
		s.logger.Info("Breaking table", "table", breaking, "players", len(s.seats), "tables", s.tables)

		avoid := map[int]bool{breaking: true}
		for _, id := range s.occupancy()[breaking] {
			m, err := s.MoveAvoiding(id, avoid)
			if err != nil {
				// unreachable while the loop condition holds
				s.logger.Error("Failed to move player off broken table", "player", id, "error", err)
				continue
			}
			movements = append(movements, m)
		}

		s.tables--
		s.emptySeats = slices.DeleteFunc(s.emptySeats, func(seat Seat) bool { return seat.TableNumber == breaking })
	}
	return movements
}

// tryRebalance moves random players from the fullest table to the emptiest
// until no two tables differ by more than one player.
func (s *Seating) tryRebalance() []Movement {
	ppt := s.occupancy()
	if len(ppt) == 0 {
		return nil
	}

	var movements []Movement
	for {
		fewest, most := 0, 0
		for t := range ppt {
			if len(ppt[t]) < len(ppt[fewest]) {
				fewest = t
			}
			if len(ppt[t]) > len(ppt[most]) {
				most = t
			}
		}
		if len(ppt[most]) == 0 || len(ppt[fewest]) >= len(ppt[most])-1 {
			return movements
		}

		i := s.rng.IntN(len(ppt[most]))
		id := ppt[most][i]
		m, err := s.MoveToTable(id, fewest)
		if err != nil {
			s.logger.Error("Failed to rebalance player", "player", id, "error", err)
			return movements
		}
		movements = append(movements, m)

		ppt[most] = slices.Delete(ppt[most], i, i+1)
		ppt[fewest] = append(ppt[fewest], id)
	}
}

// seatingState is the persisted form of Seating.
type seatingState struct {
	TableCapacity int               `json:"table_capacity"`
	Tables        int               `json:"tables"`
	MaxExpected   int               `json:"max_expected_players"`
	Seats         map[PlayerID]Seat `json:"seats"`
	EmptySeats    []Seat            `json:"empty_seats"`
	Finished      []PlayerID        `json:"players_finished"`
}

func (s *Seating) snapshot() seatingState {
	return seatingState{
		TableCapacity: s.tableCapacity,
		Tables:        s.tables,
		MaxExpected:   s.maxExpected,
		Seats:         s.Seats(),
		EmptySeats:    s.EmptySeats(),
		Finished:      s.Finished(),
	}
}

func (s *Seating) restore(st seatingState) {
	s.tableCapacity = st.TableCapacity
	s.tables = st.Tables
	s.maxExpected = st.MaxExpected
	s.seats = make(map[PlayerID]Seat, len(st.Seats))
	for id, seat := range st.Seats {
		s.seats[id] = seat
	}
	s.emptySeats = slices.Clone(st.EmptySeats)
	s.finished = slices.Clone(st.Finished)
}
