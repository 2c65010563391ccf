package tournament

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/oklog/ulid/v2"
)

// Options configures a new Tournament.
type Options struct {
	Clock  quartz.Clock
	Rand   *rand.Rand
	Logger *log.Logger
}

// Tournament composes the clock, seating and funding into the single
// authoritative tournament state. It is not safe for concurrent use; one
// goroutine owns it.
type Tournament struct {
	clock  quartz.Clock
	logger *log.Logger

	name            string
	players         []Player
	chips           []Chip
	rebalancePolicy RebalancePolicy
	authorized      map[int]AuthorizedClient

	Clock   *Clock
	Seating *Seating
	Funding *Funding
}

// SeatResult is the outcome of seating a player.
type SeatResult struct {
	Seat          Seat
	AlreadySeated bool
}

// New creates a tournament in setup with an empty configuration.
func New(opts Options) *Tournament {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Tournament{
		clock:      opts.Clock,
		logger:     opts.Logger.WithPrefix("tournament"),
		authorized: make(map[int]AuthorizedClient),
		Clock:      NewClock(opts.Clock, opts.Logger),
		Seating:    NewSeating(opts.Rand, opts.Logger),
		Funding:    NewFunding(opts.Logger),
	}
}

// Authorize registers a code as valid for administering the tournament.
func (t *Tournament) Authorize(code int, name string) {
	if _, ok := t.authorized[code]; ok {
		return
	}
	t.authorized[code] = AuthorizedClient{Code: code, Name: name, AddedAt: t.clock.Now()}
	t.logger.Debug("Authorized client", "name", name)
}

// CheckAuthorized reports whether code was registered.
func (t *Tournament) CheckAuthorized(code int) bool {
	_, ok := t.authorized[code]
	return ok
}

func (t *Tournament) authorizedClients() []AuthorizedClient {
	out := make([]AuthorizedClient, 0, len(t.authorized))
	for _, c := range t.authorized {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b AuthorizedClient) int { return cmp.Compare(a.Code, b.Code) })
	return out
}

// Player looks up a roster entry.
func (t *Tournament) Player(id PlayerID) (Player, bool) {
	i := slices.IndexFunc(t.players, func(p Player) bool { return p.PlayerID == id })
	if i < 0 {
		return Player{}, false
	}
	return t.players[i], true
}

func (t *Tournament) playerName(id PlayerID) string {
	if p, ok := t.Player(id); ok {
		return p.Name
	}
	return id
}

func (t *Tournament) requirePlayer(id PlayerID) error {
	if _, ok := t.Player(id); !ok {
		return wrap(ErrUnknownPlayer, "%q", id)
	}
	return nil
}

// Configure validates an update as a whole and then applies every key it
// carries. Nothing is applied when validation fails.
func (t *Tournament) Configure(u ConfigUpdate) (Config, error) {
	if err := u.validate(); err != nil {
		return Config{}, err
	}

	if u.Name != nil {
		t.name = *u.Name
	}

	if u.Players != nil {
		if t.Seating.SeatedCount() > 0 || len(t.Seating.Finished()) > 0 || len(t.Funding.Entries()) > 0 {
			t.logger.Warn("Reconfiguring players while in play, removed players may still hold seats")
		}
		t.setPlayers(*u.Players)
	}

	if u.FundingSources != nil {
		if err := t.Funding.SetSources(*u.FundingSources); err != nil {
			return Config{}, err
		}
	}

	if u.AvailableChips != nil {
		t.chips = sortChips(*u.AvailableChips)
	}

	if u.PayoutPolicy != nil {
		t.Funding.SetPayoutPolicy(*u.PayoutPolicy)
	}
	if u.PayoutCurrency != nil {
		t.Funding.SetPayoutCurrency(*u.PayoutCurrency)
	}
	if u.AutomaticPayouts != nil {
		t.Funding.SetAutomaticPayouts(*u.AutomaticPayouts)
	}
	if u.ForcedPayouts != nil {
		t.Funding.SetForcedPayouts(*u.ForcedPayouts)
	}
	if u.ManualPayouts != nil {
		t.Funding.SetManualPayouts(*u.ManualPayouts)
	}
	if u.RebalancePolicy != nil {
		t.rebalancePolicy = *u.RebalancePolicy
	}
	if u.PreviousBlindLevelHoldDuration != nil {
		t.Clock.SetPreviousLevelHold(millis(*u.PreviousBlindLevelHoldDuration))
	}

	if u.AuthorizedClients != nil {
		for _, c := range *u.AuthorizedClients {
			t.Authorize(c.Code, c.Name)
		}
	}

	if u.TableCapacity != nil && *u.TableCapacity != t.Seating.TableCapacity() {
		t.Seating.SetTableCapacity(*u.TableCapacity)
		total := t.Seating.SeatedCount() + t.Seating.EmptySeatCount()
		if total >= 2 {
			t.logger.Warn("Reconfiguring table capacity clears the seating plan", "capacity", *u.TableCapacity, "seats", total)
			t.Clock.Stop()
			t.Funding.Reset()
			if _, err := t.Seating.Plan(total); err != nil {
				t.logger.Warn("Could not replan seating", "error", err)
				t.Seating.Reset()
			}
		}
	}

	if u.BlindLevels != nil {
		if t.Clock.IsStarted() || t.Clock.IsScheduled() {
			t.logger.Warn("Reconfiguring blind levels while in play stops the tournament")
			t.Clock.Stop()
		}
		t.Clock.SetBlindLevels(*u.BlindLevels)
	}

	if u.touchesPayouts() {
		t.Funding.Recalculate()
	}

	return t.Config(), nil
}

func (t *Tournament) setPlayers(players []Player) {
	now := t.clock.Now()
	t.players = make([]Player, 0, len(players))
	for _, p := range players {
		if p.PlayerID == "" {
			p.PlayerID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
		}
		if p.AddedAt.IsZero() {
			p.AddedAt = now
		}
		t.players = append(t.players, p)
	}
}

// Config dumps the current configuration.
func (t *Tournament) Config() Config {
	return Config{
		Name:                           t.name,
		Players:                        slices.Clone(t.players),
		TableCapacity:                  t.Seating.TableCapacity(),
		FundingSources:                 t.Funding.Sources(),
		BlindLevels:                    t.Clock.BlindLevels(),
		AvailableChips:                 slices.Clone(t.chips),
		PayoutPolicy:                   t.Funding.PayoutPolicy(),
		PayoutCurrency:                 t.Funding.PayoutCurrency(),
		AutomaticPayouts:               t.Funding.AutomaticPayouts(),
		ForcedPayouts:                  t.Funding.ForcedPayouts(),
		ManualPayouts:                  t.Funding.ManualPayouts(),
		RebalancePolicy:                t.rebalancePolicy,
		PreviousBlindLevelHoldDuration: t.Clock.PreviousLevelHold().Milliseconds(),
		AuthorizedClients:              t.authorizedClients(),
	}
}

// Reset clears seating, funding and the clock, keeping the configuration.
func (t *Tournament) Reset() {
	t.logger.Info("Resetting tournament state")
	t.Clock.Stop()
	t.Seating.Reset()
	t.Funding.Reset()
}

// Start starts the tournament now, or schedules it when at is in the future.
func (t *Tournament) Start(at *time.Time) error {
	if at == nil {
		return t.Clock.Start()
	}
	return t.Clock.StartAt(*at)
}

// PlanSeating sizes the tables for maxExpected players. It discards seating
// and funding, so it is refused once the tournament is under way.
func (t *Tournament) PlanSeating(maxExpected int) ([]Movement, error) {
	if t.Clock.IsStarted() || t.Clock.IsScheduled() {
		return nil, ErrSeatingActive
	}
	if _, err := t.Seating.Plan(maxExpected); err != nil {
		return nil, err
	}
	t.Funding.Reset()
	return []Movement{}, nil
}

// SeatPlayer seats a roster player. A player already holding a seat is not an
// error: the existing seat is reported instead.
func (t *Tournament) SeatPlayer(id PlayerID) (SeatResult, error) {
	if err := t.requirePlayer(id); err != nil {
		return SeatResult{}, err
	}
	if seat, ok := t.Seating.SeatOf(id); ok {
		t.logger.Info("Player already seated", "player", t.playerName(id), "seat", seat)
		return SeatResult{Seat: seat, AlreadySeated: true}, nil
	}
	seat, err := t.Seating.Add(id)
	if err != nil {
		return SeatResult{}, err
	}
	return SeatResult{Seat: seat}, nil
}

// UnseatPlayer frees a player's seat without recording a finish.
func (t *Tournament) UnseatPlayer(id PlayerID) error {
	_, err := t.Seating.Unseat(id)
	return err
}

// BustPlayer removes a player from play, records the finish and rebalances
// per policy. When that leaves a single bought-in player seated, that player
// wins and the clock stops.
func (t *Tournament) BustPlayer(id PlayerID) ([]Movement, error) {
	movements, err := t.Seating.Remove(id, t.rebalancePolicy)
	if err != nil {
		return nil, err
	}
	t.Funding.Bust(id)
	t.logger.Info("Busted player", "player", t.playerName(id), "remaining", t.Seating.SeatedCount())

	var playing []PlayerID
	for pid := range t.Seating.Seats() {
		if t.Funding.IsBoughtIn(pid) {
			playing = append(playing, pid)
		}
	}
	if len(playing) == 1 && len(t.Funding.UniqueEntries()) > 1 {
		winner := playing[0]
		if _, err := t.Seating.Unseat(winner); err == nil {
			t.Seating.Finish(winner)
			t.Funding.Bust(winner)
			t.logger.Info("Tournament won", "player", t.playerName(winner))
			t.Clock.Stop()
		}
	}

	return t.named(movements), nil
}

// RebalanceSeating breaks and rebalances tables regardless of policy.
func (t *Tournament) RebalanceSeating() []Movement {
	return t.named(t.Seating.Rebalance())
}

func (t *Tournament) named(movements []Movement) []Movement {
	out := make([]Movement, len(movements))
	for i, m := range movements {
		m.Name = t.playerName(m.PlayerID)
		out[i] = m
	}
	return out
}

// FundPlayer applies a funding source to a roster player at the current level.
// A fresh buy-in brings a busted player back into contention.
func (t *Tournament) FundPlayer(id PlayerID, source int) error {
	if err := t.requirePlayer(id); err != nil {
		return err
	}
	fs, err := t.Funding.Fund(id, source, t.Clock.CurrentBlindLevel())
	if err != nil {
		return err
	}
	if fs.Type != Addon {
		t.Seating.Unfinish(id)
	}
	return nil
}

// QuickSetup plans seating for the whole roster, seats every player and, when
// a source is given, funds each of them with it.
func (t *Tournament) QuickSetup(source *int) ([]SeatedPlayer, error) {
	if source != nil {
		if _, err := t.Funding.Source(*source); err != nil {
			return nil, err
		}
	}
	if _, err := t.PlanSeating(len(t.players)); err != nil {
		return nil, err
	}

	players := slices.Clone(t.players)
	slices.SortFunc(players, func(a, b Player) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.PlayerID, b.PlayerID))
	})

	seated := make([]SeatedPlayer, 0, len(players))
	for _, p := range players {
		seat, err := t.Seating.Add(p.PlayerID)
		if err != nil {
			return nil, err
		}
		if source != nil {
			if _, err := t.Funding.Fund(p.PlayerID, *source, t.Clock.CurrentBlindLevel()); err != nil {
				return nil, err
			}
		}
		seated = append(seated, SeatedPlayer{
			PlayerID: p.PlayerID,
			Name:     p.Name,
			Buyin:    t.Funding.IsBoughtIn(p.PlayerID),
			Seat:     &seat,
		})
	}
	return seated, nil
}

// ChipsForBuyin decomposes a funding source's chips into starting stacks.
func (t *Tournament) ChipsForBuyin(source, maxExpected int) ([]PlayerChips, error) {
	fs, err := t.Funding.Source(source)
	if err != nil {
		return nil, err
	}
	return ChipsForBuyin(fs.Chips, t.chips, t.Clock.BlindLevels(), maxExpected)
}

// GenBlindLevels generates a blind structure from the configured chips
// without applying it.
func (t *Tournament) GenBlindLevels(req BlindStructureRequest) ([]BlindLevel, error) {
	if req.DesiredDuration > 0 {
		return GenerateBlindLevelsForDuration(req, t.chips, t.Funding, t.Seating.MaxExpected())
	}
	factor := req.IncreaseFactor
	if factor == 0 {
		factor = 1.5
	}
	return GenerateBlindLevels(req.Count, req.LevelDuration, req.ChipUpBreakDuration, factor, req.Antes, req.AnteSBRatio, t.chips)
}

// UpdateClock advances the clock to the current instant and reports whether
// clients should be told.
func (t *Tournament) UpdateClock() bool {
	return t.Clock.UpdateRemaining()
}
