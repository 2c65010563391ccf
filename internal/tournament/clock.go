package tournament

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// DefaultPreviousLevelHold is how long into a level "previous" still goes back
// a level instead of restarting the current one.
const DefaultPreviousLevelHold = 2000 * time.Millisecond

// Clock is the blind-level countdown plus the independent action clock.
//
// It stores absolute end-of-round and end-of-break instants and derives the
// remaining time from the injected clock on demand, so tick jitter never
// accumulates and a suspended process resumes on the correct level.
type Clock struct {
	clock  quartz.Clock
	logger *log.Logger

	levels       []BlindLevel
	holdDuration time.Duration

	currentLevel int
	// active is set from start (or a scheduled start) until stop.
	active bool
	paused bool

	endOfRound time.Time
	endOfBreak time.Time
	// remaining times, authoritative while paused and refreshed while running
	timeRemaining      time.Duration
	breakTimeRemaining time.Duration
	onBreak            bool

	endOfActionClock time.Time
	tournamentStart  time.Time
}

// ClockState is a read-only view of the clock at one instant.
type ClockState struct {
	CurrentBlindLevel    int
	Running              bool
	Paused               bool
	OnBreak              bool
	TimeRemaining        time.Duration
	BreakTimeRemaining   time.Duration
	ActionClockRemaining time.Duration
	Elapsed              time.Duration
	Now                  time.Time
}

// NewClock creates a clock in the setup state with only the setup level.
func NewClock(clock quartz.Clock, logger *log.Logger) *Clock {
	return &Clock{
		clock:        clock,
		logger:       logger.WithPrefix("clock"),
		levels:       make([]BlindLevel, 1),
		holdDuration: DefaultPreviousLevelHold,
	}
}

// SetBlindLevels replaces the blind structure. Level 0 is always present.
func (c *Clock) SetBlindLevels(levels []BlindLevel) {
	if len(levels) == 0 {
		levels = make([]BlindLevel, 1)
	}
	c.levels = append([]BlindLevel(nil), levels...)
}

// BlindLevels returns a copy of the blind structure.
func (c *Clock) BlindLevels() []BlindLevel {
	return append([]BlindLevel(nil), c.levels...)
}

// SetPreviousLevelHold sets the restart-versus-regress threshold.
func (c *Clock) SetPreviousLevelHold(d time.Duration) {
	c.holdDuration = d
}

// PreviousLevelHold returns the restart-versus-regress threshold.
func (c *Clock) PreviousLevelHold() time.Duration {
	return c.holdDuration
}

// IsStarted reports whether a playing level is in effect.
func (c *Clock) IsStarted() bool {
	return c.currentLevel > 0
}

// IsScheduled reports whether a future start is pending.
func (c *Clock) IsScheduled() bool {
	return c.active && c.currentLevel == 0
}

// IsPaused reports whether the countdown is paused.
func (c *Clock) IsPaused() bool {
	return c.paused
}

// CurrentBlindLevel returns the current level index; 0 means setup.
func (c *Clock) CurrentBlindLevel() int {
	return c.currentLevel
}

// Start begins level 1 now.
func (c *Clock) Start() error {
	if err := c.checkStartable(); err != nil {
		return err
	}

	c.logger.Info("Starting the tournament")
	c.active = true
	c.paused = false
	c.tournamentStart = c.clock.Now()
	c.startBlindLevel(1, 0)
	return nil
}

// StartAt schedules level 1 to begin at the given instant. An instant that has
// already passed starts immediately, absorbing the overshoot.
func (c *Clock) StartAt(at time.Time) error {
	if err := c.checkStartable(); err != nil {
		return err
	}

	now := c.clock.Now()
	if !at.After(now) {
		c.logger.Info("Starting the tournament", "start_at", at)
		c.active = true
		c.paused = false
		c.tournamentStart = at
		c.startBlindLevel(1, now.Sub(at))
		return nil
	}

	c.logger.Info("Scheduling the tournament start", "start_at", at)
	c.active = true
	c.paused = false
	c.currentLevel = 0
	c.endOfRound = now
	c.endOfBreak = at
	c.timeRemaining = 0
	c.breakTimeRemaining = at.Sub(now)
	c.onBreak = true
	c.tournamentStart = at
	return nil
}

func (c *Clock) checkStartable() error {
	if c.active {
		return ErrAlreadyStarted
	}
	if len(c.levels) < 2 {
		return ErrTooFewBlindLevels
	}
	return nil
}

// Stop returns the clock to setup, clearing every timer.
func (c *Clock) Stop() {
	if c.active || c.currentLevel > 0 {
		c.logger.Info("Stopping the tournament")
	}
	c.currentLevel = 0
	c.active = false
	c.paused = false
	c.endOfRound = time.Time{}
	c.endOfBreak = time.Time{}
	c.timeRemaining = 0
	c.breakTimeRemaining = 0
	c.onBreak = false
	c.endOfActionClock = time.Time{}
	c.tournamentStart = time.Time{}
}

// Pause freezes the remaining times.
func (c *Clock) Pause() error {
	if !c.IsStarted() {
		return ErrNotStarted
	}
	if c.paused {
		return ErrAlreadyPaused
	}

	c.refresh(c.clock.Now())
	c.paused = true
	c.logger.Info("Pausing the tournament", "level", c.currentLevel, "remaining", c.timeRemaining)
	return nil
}

// Resume restarts the countdown from the frozen remaining times, so the paused
// interval is not charged to the level.
func (c *Clock) Resume() error {
	if !c.IsStarted() {
		return ErrNotStarted
	}
	if !c.paused {
		return ErrNotPaused
	}

	now := c.clock.Now()
	c.endOfRound = now.Add(c.timeRemaining)
	c.endOfBreak = c.endOfRound.Add(c.breakTimeRemaining)
	c.paused = false
	c.logger.Info("Resuming the tournament", "level", c.currentLevel, "remaining", c.timeRemaining)
	return nil
}

// TogglePause pauses a running clock or resumes a paused one.
func (c *Clock) TogglePause() error {
	if c.paused {
		return c.Resume()
	}
	return c.Pause()
}

// NextBlindLevel advances one level, subtracting offset from its duration.
// It returns false and stays put at the final level.
func (c *Clock) NextBlindLevel(offset time.Duration) (bool, error) {
	if !c.IsStarted() {
		return false, ErrNotStarted
	}
	if c.currentLevel+1 >= len(c.levels) {
		return false, nil
	}

	c.logger.Info("Setting next blind level", "from", c.currentLevel, "to", c.currentLevel+1)
	c.startBlindLevel(c.currentLevel+1, offset)
	return true, nil
}

// PreviousBlindLevel goes back one level if the current level started less
// than the hold duration ago; otherwise (or at level 1) it restarts the
// current level. It returns whether the level index changed.
func (c *Clock) PreviousBlindLevel(offset time.Duration) (bool, error) {
	if !c.IsStarted() {
		return false, ErrNotStarted
	}

	if !c.paused {
		c.refresh(c.clock.Now())
	}
	elapsed := millis(c.levels[c.currentLevel].Duration) - c.timeRemaining
	if c.onBreak {
		elapsed = millis(c.levels[c.currentLevel].Duration) + millis(c.levels[c.currentLevel].BreakDuration) - c.breakTimeRemaining
	}

	if elapsed > c.holdDuration || c.currentLevel == 1 {
		c.logger.Info("Restarting blind level", "level", c.currentLevel, "elapsed", elapsed)
		c.startBlindLevel(c.currentLevel, offset)
		return false, nil
	}

	c.logger.Info("Setting previous blind level", "from", c.currentLevel, "to", c.currentLevel-1)
	c.startBlindLevel(c.currentLevel-1, offset)
	return true, nil
}

// UpdateRemaining recomputes the remaining times from the current instant and
// advances to the next level once both the round and its break have elapsed,
// carrying the overshoot into the new level. It reports whether anything a
// client would display discretely changed: level, break state or action clock.
func (c *Clock) UpdateRemaining() bool {
	now := c.clock.Now()
	changed := false

	if !c.endOfActionClock.IsZero() && !now.Before(c.endOfActionClock) {
		c.logger.Debug("Action clock expired")
		c.endOfActionClock = time.Time{}
		changed = true
	}

	if !c.active || c.paused {
		return changed
	}

	wasOnBreak := c.onBreak
	if now.Before(c.endOfBreak) {
		c.refresh(now)
		return changed || wasOnBreak != c.onBreak
	}

	offset := now.Sub(c.endOfBreak)
	if c.currentLevel == 0 {
		c.logger.Info("Scheduled start reached", "overshoot", offset)
		c.startBlindLevel(1, offset)
		return true
	}

	if c.currentLevel+1 < len(c.levels) {
		c.logger.Info("Blind level elapsed", "from", c.currentLevel, "to", c.currentLevel+1, "overshoot", offset)
		c.startBlindLevel(c.currentLevel+1, offset)
		return true
	}

	// end of the structure: the last level runs out and stays there
	c.timeRemaining = 0
	c.breakTimeRemaining = 0
	c.onBreak = false
	return changed || wasOnBreak
}

// SetActionClock starts the action countdown.
func (c *Clock) SetActionClock(d time.Duration) error {
	if d <= 0 {
		return invalidArgument("action clock duration must be positive")
	}
	now := c.clock.Now()
	if c.actionClockRemaining(now) > 0 {
		return ErrActionClockRunning
	}

	c.logger.Info("Setting action clock", "duration", d)
	c.endOfActionClock = now.Add(d)
	return nil
}

// ResetActionClock clears the action countdown. It is idempotent.
func (c *Clock) ResetActionClock() {
	c.endOfActionClock = time.Time{}
}

// State derives the displayable clock values at the current instant without
// mutating the clock.
func (c *Clock) State() ClockState {
	now := c.clock.Now()
	st := ClockState{
		CurrentBlindLevel:    c.currentLevel,
		Running:              c.active && !c.paused,
		Paused:               c.paused,
		TimeRemaining:        c.timeRemaining,
		BreakTimeRemaining:   c.breakTimeRemaining,
		OnBreak:              c.onBreak,
		ActionClockRemaining: c.actionClockRemaining(now),
		Now:                  now,
	}

	if c.active && !c.paused {
		switch {
		case now.Before(c.endOfRound):
			st.TimeRemaining = c.endOfRound.Sub(now)
			st.BreakTimeRemaining = c.endOfBreak.Sub(c.endOfRound)
			st.OnBreak = false
		case now.Before(c.endOfBreak):
			st.TimeRemaining = 0
			st.BreakTimeRemaining = c.endOfBreak.Sub(now)
			st.OnBreak = true
		default:
			st.TimeRemaining = 0
			st.BreakTimeRemaining = 0
			st.OnBreak = false
		}
	}

	if !c.tournamentStart.IsZero() && c.tournamentStart.Before(now) {
		st.Elapsed = now.Sub(c.tournamentStart)
	}
	return st
}

func (c *Clock) startBlindLevel(level int, offset time.Duration) {
	now := c.clock.Now()
	c.currentLevel = level
	c.timeRemaining = millis(c.levels[level].Duration) - offset
	c.breakTimeRemaining = millis(c.levels[level].BreakDuration)
	c.endOfRound = now.Add(c.timeRemaining)
	c.endOfBreak = c.endOfRound.Add(c.breakTimeRemaining)
	c.onBreak = false
}

// refresh derives the remaining times from the stored end instants.
func (c *Clock) refresh(now time.Time) {
	switch {
	case now.Before(c.endOfRound):
		c.timeRemaining = c.endOfRound.Sub(now)
		c.breakTimeRemaining = c.endOfBreak.Sub(c.endOfRound)
		c.onBreak = false
	case now.Before(c.endOfBreak):
		c.timeRemaining = 0
		c.breakTimeRemaining = c.endOfBreak.Sub(now)
		c.onBreak = true
	default:
		c.timeRemaining = 0
		c.breakTimeRemaining = 0
		c.onBreak = false
	}
}

func (c *Clock) actionClockRemaining(now time.Time) time.Duration {
	if c.endOfActionClock.IsZero() || !now.Before(c.endOfActionClock) {
		return 0
	}
	return c.endOfActionClock.Sub(now)
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// clockSnapshot is the persisted form of Clock. End instants are absolute so a
// restored clock picks up where the wall clock says it should be.
type clockSnapshot struct {
	CurrentBlindLevel  int       `json:"current_blind_level"`
	Active             bool      `json:"active"`
	Paused             bool      `json:"paused"`
	EndOfRound         time.Time `json:"end_of_round"`
	EndOfBreak         time.Time `json:"end_of_break"`
	TimeRemaining      int64     `json:"time_remaining_ms"`
	BreakTimeRemaining int64     `json:"break_time_remaining_ms"`
	EndOfActionClock   time.Time `json:"end_of_action_clock"`
	TournamentStart    time.Time `json:"tournament_start"`
}

func (c *Clock) snapshot() clockSnapshot {
	return clockSnapshot{
		CurrentBlindLevel:  c.currentLevel,
		Active:             c.active,
		Paused:             c.paused,
		EndOfRound:         c.endOfRound,
		EndOfBreak:         c.endOfBreak,
		TimeRemaining:      c.timeRemaining.Milliseconds(),
		BreakTimeRemaining: c.breakTimeRemaining.Milliseconds(),
		EndOfActionClock:   c.endOfActionClock,
		TournamentStart:    c.tournamentStart,
	}
}

func (c *Clock) restore(s clockSnapshot) {
	c.Stop()
	if s.CurrentBlindLevel >= len(c.levels) {
		c.logger.Warn("Snapshot blind level out of range, staying in setup", "level", s.CurrentBlindLevel, "levels", len(c.levels))
		return
	}
	c.currentLevel = s.CurrentBlindLevel
	c.active = s.Active
	c.paused = s.Paused
	c.endOfRound = s.EndOfRound
	c.endOfBreak = s.EndOfBreak
	c.timeRemaining = millis(s.TimeRemaining)
	c.breakTimeRemaining = millis(s.BreakTimeRemaining)
	c.endOfActionClock = s.EndOfActionClock
	c.tournamentStart = s.TournamentStart
	if c.active && !c.paused {
		c.refresh(c.clock.Now())
	} else {
		c.onBreak = c.paused && c.timeRemaining == 0 && c.breakTimeRemaining > 0
	}
}
