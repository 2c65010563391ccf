package tournament

import (
	"errors"
	"fmt"
)

// Kind classifies a failure independently of the condition that caused it.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindInvalidState
	KindNotFound
	KindConflict
	KindNoCapacity
	KindInfeasible
	KindProtocol
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindInvalidArgument: "invalid_argument",
	KindInvalidState:    "invalid_state",
	KindNotFound:        "not_found",
	KindConflict:        "conflict",
	KindNoCapacity:      "no_capacity",
	KindInfeasible:      "infeasible",
	KindProtocol:        "protocol_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

// Error is a tournament failure with a machine-readable kind and code.
//
// A sentinel with an empty Code matches every error of the same Kind, so
// errors.Is(err, ErrConflict) is true for ErrAlreadySeated and ErrAlreadyFunded.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.String()
}

// Is reports whether target is the same condition or the kind sentinel of e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Kind sentinels
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrNoCapacity      = &Error{Kind: KindNoCapacity}
	ErrInfeasible      = &Error{Kind: KindInfeasible}
	ErrProtocol        = &Error{Kind: KindProtocol}
)

// Clock conditions
var (
	ErrAlreadyStarted     = newError(KindInvalidState, "already_started", "tournament already started")
	ErrNotStarted         = newError(KindInvalidState, "not_started", "tournament not started")
	ErrAlreadyPaused      = newError(KindInvalidState, "already_paused", "tournament already paused")
	ErrNotPaused          = newError(KindInvalidState, "not_paused", "tournament not paused")
	ErrTooFewBlindLevels  = newError(KindInvalidState, "too_few_blind_levels", "cannot start without blind levels configured")
	ErrActionClockRunning = newError(KindConflict, "action_clock_running", "only one action clock at a time")
)

// Seating conditions
var (
	ErrAlreadySeated    = newError(KindConflict, "already_seated", "player already seated")
	ErrNotSeated        = newError(KindConflict, "not_seated", "player not seated")
	ErrNoEmptySeats     = newError(KindNoCapacity, "no_empty_seats", "tried to add players with no empty seats")
	ErrTableFull        = newError(KindNoCapacity, "table_full", "tried to move player to a full table")
	ErrNoCandidateTable = newError(KindNoCapacity, "no_candidate_table", "tried to move player to another table but no candidate tables")
	ErrSeatingActive    = newError(KindInvalidState, "seating_active", "cannot plan seating while the tournament is running")
)

// Funding conditions
var (
	ErrUnknownSource          = newError(KindInvalidArgument, "unknown_funding_source", "invalid funding source")
	ErrUnknownPlayer          = newError(KindNotFound, "unknown_player", "unknown player")
	ErrTooLate                = newError(KindInvalidState, "too_late", "too late in the tournament for this funding source")
	ErrTooEarly               = newError(KindInvalidState, "too_early", "funding source not available before the tournament starts")
	ErrNotBoughtIn            = newError(KindConflict, "not_bought_in", "tried an addon but not bought in yet")
	ErrAlreadyFunded          = newError(KindConflict, "already_funded", "player already bought in")
	ErrInfeasibleDenomination = newError(KindInfeasible, "infeasible_denomination", "buyin cannot be represented with the available chips")
	ErrMixedCurrency          = newError(KindInvalidArgument, "mixed_currency", "funding source currency does not match totals")
)

// Protocol conditions
var (
	ErrUnauthorized   = newError(KindProtocol, "unauthorized", "unauthorized")
	ErrUnknownCommand = newError(KindProtocol, "unknown_command", "unknown command")
	ErrMalformed      = newError(KindProtocol, "malformed", "malformed command")
)

// invalidArgument builds an InvalidArgument error with a formatted message.
func invalidArgument(format string, args ...any) error {
	return newError(KindInvalidArgument, "invalid_argument", fmt.Sprintf(format, args...))
}

// wrap annotates a sentinel with detail while keeping errors.Is intact.
func wrap(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// CodeOf returns the specific condition code of err, if any.
func CodeOf(err error) string {
	var te *Error
	if errors.As(err, &te) {
		if te.Code != "" {
			return te.Code
		}
		return te.Kind.String()
	}
	return ""
}
