// Package protocol frames the tournamentd line protocol: each request is one
// line holding a command name and a JSON object, each reply one JSON object.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lox/tournamentd/internal/tournament"
)

// Reserved argument keys
const (
	KeyEcho         = "echo"
	KeyAuthenticate = "authenticate"
)

// Commands
const (
	// Read-only
	CmdVersion         = "version"
	CmdCheckAuthorized = "check_authorized"
	CmdGetState        = "get_state"
	CmdChipsForBuyin   = "chips_for_buyin"
	CmdGenBlindLevels  = "gen_blind_levels"
	CmdQuit            = "quit"
	CmdExit            = "exit"

	// Administrative
	CmdGetConfig        = "get_config"
	CmdConfigure        = "configure"
	CmdResetState       = "reset_state"
	CmdStartGame        = "start_game"
	CmdStopGame         = "stop_game"
	CmdPauseGame        = "pause_game"
	CmdResumeGame       = "resume_game"
	CmdTogglePauseGame  = "toggle_pause_game"
	CmdSetPreviousLevel = "set_previous_level"
	CmdSetNextLevel     = "set_next_level"
	CmdSetActionClock   = "set_action_clock"
	CmdClearActionClock = "clear_action_clock"
	CmdFundPlayer       = "fund_player"
	CmdPlanSeating      = "plan_seating"
	CmdPlanSeatingFor   = "plan_seating_for"
	CmdSeatPlayer       = "seat_player"
	CmdUnseatPlayer     = "unseat_player"
	CmdBustPlayer       = "bust_player"
	CmdRebalanceSeating = "rebalance_seating"
	CmdQuickSetup       = "quick_setup"
)

// MaxLineLength bounds a single request line.
const MaxLineLength = 1 << 20

// Request is one parsed command line.
type Request struct {
	Command string
	// Args is the whole argument object, reserved keys included.
	Args json.RawMessage
	// Echo is the correlation token exactly as sent, nil when absent.
	Echo json.RawMessage
	// Authenticate is the session code, nil when absent.
	Authenticate *int
}

// ParseLine parses "<command> <json-object>". A missing object is treated as
// {}. Trailing "\r\n" is ignored and the command name is case-insensitive.
func ParseLine(line []byte) (Request, error) {
	line = bytes.TrimRight(line, "\r\n")
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Request{}, fmt.Errorf("%w: empty line", tournament.ErrMalformed)
	}

	name, rest, _ := bytes.Cut(line, []byte(" "))
	req := Request{
		Command: strings.ToLower(string(bytes.TrimSpace(name))),
		Args:    json.RawMessage("{}"),
	}

	rest = bytes.TrimSpace(rest)
	if len(rest) == 0 {
		return req, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rest, &fields); err != nil {
		return req, fmt.Errorf("%w: %s arguments: %v", tournament.ErrMalformed, req.Command, err)
	}
	req.Args = json.RawMessage(rest)

	if echo, ok := fields[KeyEcho]; ok && !bytes.Equal(echo, []byte("null")) {
		req.Echo = echo
	}
	if raw, ok := fields[KeyAuthenticate]; ok && !bytes.Equal(raw, []byte("null")) {
		var code int
		if err := json.Unmarshal(raw, &code); err != nil {
			return req, fmt.Errorf("%w: authenticate must be a number", tournament.ErrMalformed)
		}
		req.Authenticate = &code
	}
	return req, nil
}

// Decode unmarshals the arguments into v. Unknown keys, including the
// reserved ones, are ignored.
func (r Request) Decode(v any) error {
	if err := json.Unmarshal(r.Args, v); err != nil {
		return fmt.Errorf("%w: %s arguments: %v", tournament.ErrMalformed, r.Command, err)
	}
	return nil
}

// FormatCommand renders a request line, adding the reserved keys to args.
func FormatCommand(command string, args any, echo *int, authenticate *int) ([]byte, error) {
	fields, err := objectFields(args)
	if err != nil {
		return nil, err
	}
	if echo != nil {
		fields[KeyEcho], _ = json.Marshal(*echo)
	}
	if authenticate != nil {
		fields[KeyAuthenticate], _ = json.Marshal(*authenticate)
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(command)
	buf.WriteByte(' ')
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// EncodeResult renders a reply line: the fields of result plus echo when set.
// A reply without echo is an unsolicited broadcast.
func EncodeResult(echo json.RawMessage, result any) ([]byte, error) {
	fields, err := objectFields(result)
	if err != nil {
		return nil, err
	}
	if echo != nil {
		fields[KeyEcho] = echo
	}
	return encodeLine(fields)
}

// ErrorReply is the wire shape of a failed command.
type ErrorReply struct {
	Echo      json.RawMessage `json:"echo,omitempty"`
	Error     string          `json:"error"`
	ErrorKind string          `json:"error_kind"`
	ErrorCode string          `json:"error_code,omitempty"`
}

// EncodeError renders a failed command as a reply line.
func EncodeError(echo json.RawMessage, err error) []byte {
	reply := ErrorReply{
		Echo:      echo,
		Error:     err.Error(),
		ErrorKind: tournament.KindOf(err).String(),
		ErrorCode: tournament.CodeOf(err),
	}
	data, mErr := json.Marshal(reply)
	if mErr != nil {
		data = []byte(`{"error":"internal error","error_kind":"unknown"}`)
	}
	return append(data, '\n')
}

func objectFields(v any) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if v == nil {
		return fields, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	if bytes.Equal(data, []byte("null")) {
		return fields, nil
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("expected a JSON object, got %s", data)
	}
	return fields, nil
}

func encodeLine(fields map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reply: %w", err)
	}
	return append(data, '\n'), nil
}

// Reply is one parsed reply or broadcast line.
type Reply struct {
	// Echo is the correlation token, nil for broadcasts.
	Echo json.RawMessage
	// Body is the whole reply object.
	Body json.RawMessage
	// Err is set when the reply carries an error.
	Err *tournament.Error
}

// IsBroadcast reports whether the reply was unsolicited.
func (r Reply) IsBroadcast() bool { return r.Echo == nil }

// ParseReply parses a reply line written by EncodeResult or EncodeError.
func ParseReply(line []byte) (Reply, error) {
	line = bytes.TrimSpace(line)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return Reply{}, fmt.Errorf("%w: reply: %v", tournament.ErrMalformed, err)
	}

	reply := Reply{Body: json.RawMessage(line)}
	if echo, ok := fields[KeyEcho]; ok && !bytes.Equal(echo, []byte("null")) {
		reply.Echo = echo
	}
	if _, ok := fields["error"]; ok {
		var er ErrorReply
		if err := json.Unmarshal(line, &er); err != nil {
			return Reply{}, fmt.Errorf("%w: error reply: %v", tournament.ErrMalformed, err)
		}
		reply.Err = &tournament.Error{
			Kind:    tournament.ParseKind(er.ErrorKind),
			Code:    er.ErrorCode,
			Message: er.Error,
		}
	}
	return reply, nil
}
