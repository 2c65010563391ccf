package server

import (
	"fmt"
	"time"

	"github.com/lox/tournamentd/internal/protocol"
	"github.com/lox/tournamentd/internal/tournament"
)

// handler runs one command. Admin commands need an authenticated session;
// mutating ones are followed by a broadcast and a snapshot.
type handler struct {
	admin   bool
	mutates bool
	run     func(req protocol.Request) (any, error)
}

func (s *Server) commandTable() map[string]handler {
	return map[string]handler{
		protocol.CmdVersion:         {run: s.cmdVersion},
		protocol.CmdCheckAuthorized: {run: s.cmdCheckAuthorized},
		protocol.CmdGetState:        {run: s.cmdGetState},
		protocol.CmdChipsForBuyin:   {run: s.cmdChipsForBuyin},
		protocol.CmdGenBlindLevels:  {run: s.cmdGenBlindLevels},

		protocol.CmdGetConfig:        {admin: true, run: s.cmdGetConfig},
		protocol.CmdConfigure:        {admin: true, mutates: true, run: s.cmdConfigure},
		protocol.CmdResetState:       {admin: true, mutates: true, run: s.cmdResetState},
		protocol.CmdStartGame:        {admin: true, mutates: true, run: s.cmdStartGame},
		protocol.CmdStopGame:         {admin: true, mutates: true, run: s.cmdStopGame},
		protocol.CmdPauseGame:        {admin: true, mutates: true, run: s.cmdPauseGame},
		protocol.CmdResumeGame:       {admin: true, mutates: true, run: s.cmdResumeGame},
		protocol.CmdTogglePauseGame:  {admin: true, mutates: true, run: s.cmdTogglePauseGame},
		protocol.CmdSetPreviousLevel: {admin: true, mutates: true, run: s.cmdSetPreviousLevel},
		protocol.CmdSetNextLevel:     {admin: true, mutates: true, run: s.cmdSetNextLevel},
		protocol.CmdSetActionClock:   {admin: true, mutates: true, run: s.cmdSetActionClock},
		protocol.CmdClearActionClock: {admin: true, mutates: true, run: s.cmdClearActionClock},
		protocol.CmdFundPlayer:       {admin: true, mutates: true, run: s.cmdFundPlayer},
		protocol.CmdPlanSeating:      {admin: true, mutates: true, run: s.cmdPlanSeating},
		protocol.CmdPlanSeatingFor:   {admin: true, mutates: true, run: s.cmdPlanSeating},
		protocol.CmdSeatPlayer:       {admin: true, mutates: true, run: s.cmdSeatPlayer},
		protocol.CmdUnseatPlayer:     {admin: true, mutates: true, run: s.cmdUnseatPlayer},
		protocol.CmdBustPlayer:       {admin: true, mutates: true, run: s.cmdBustPlayer},
		protocol.CmdRebalanceSeating: {admin: true, mutates: true, run: s.cmdRebalanceSeating},
		protocol.CmdQuickSetup:       {admin: true, mutates: true, run: s.cmdQuickSetup},
	}
}

// handle parses, authorizes and runs one line, replies to the issuer and
// then tells everyone else what changed.
func (s *Server) handle(sess *Session, line []byte) {
	req, err := protocol.ParseLine(line)
	if err != nil {
		sess.logger.Debug("Malformed command", "error", err)
		sess.Send(protocol.EncodeError(req.Echo, err))
		return
	}

	if req.Command == protocol.CmdQuit || req.Command == protocol.CmdExit {
		if reply, err := protocol.EncodeResult(req.Echo, nil); err == nil {
			sess.Send(reply)
		}
		sess.closeAfterFlush()
		return
	}

	h, ok := s.handlers[req.Command]
	if !ok {
		sess.Send(protocol.EncodeError(req.Echo, fmt.Errorf("%w: %q", tournament.ErrUnknownCommand, req.Command)))
		return
	}

	if req.Authenticate != nil && !sess.authenticated && s.tournament.CheckAuthorized(*req.Authenticate) {
		sess.authenticated = true
		sess.logger.Info("Session authenticated")
	}
	if h.admin && !sess.authenticated {
		sess.logger.Warn("Unauthorized command", "command", req.Command)
		sess.Send(protocol.EncodeError(req.Echo, tournament.ErrUnauthorized))
		return
	}

	result, err := h.run(req)
	if err != nil {
		sess.logger.Info("Command failed", "command", req.Command, "error", err)
		sess.Send(protocol.EncodeError(req.Echo, err))
		return
	}

	reply, err := protocol.EncodeResult(req.Echo, result)
	if err != nil {
		sess.logger.Error("Failed to encode reply", "command", req.Command, "error", err)
		sess.Send(protocol.EncodeError(req.Echo, err))
		return
	}
	sess.Send(reply)
	sess.logger.Debug("Handled command", "command", req.Command)

	if h.mutates {
		s.broadcast()
		s.save()
	}
}

func missing(key string) error {
	return &tournament.Error{Kind: tournament.KindInvalidArgument, Code: "missing_argument", Message: "missing argument " + key}
}

// read-only commands

func (s *Server) cmdVersion(protocol.Request) (any, error) {
	return map[string]string{"server_name": "tournamentd", "server_version": s.version}, nil
}

func (s *Server) cmdCheckAuthorized(req protocol.Request) (any, error) {
	ok := req.Authenticate != nil && s.tournament.CheckAuthorized(*req.Authenticate)
	return map[string]bool{"authorized": ok}, nil
}

func (s *Server) cmdGetState(protocol.Request) (any, error) {
	return s.tournament.State(), nil
}

func (s *Server) cmdChipsForBuyin(req protocol.Request) (any, error) {
	var args struct {
		SourceID           *int `json:"source_id"`
		MaxExpectedPlayers *int `json:"max_expected_players"`
	}
	if err := req.Decode(&args); err != nil {
		return nil, err
	}
	if args.SourceID == nil {
		return nil, missing("source_id")
	}
	if args.MaxExpectedPlayers == nil {
		return nil, missing("max_expected_players")
	}
	chips, err := s.tournament.ChipsForBuyin(*args.SourceID, *args.MaxExpectedPlayers)
	if err != nil {
		return nil, err
	}
	return map[string]any{"chips_for_buyin": chips}, nil
}

func (s *Server) cmdGenBlindLevels(req protocol.Request) (any, error) {
	var args tournament.BlindStructureRequest
	if err := req.Decode(&args); err != nil {
		return nil, err
	}
	levels, err := s.tournament.GenBlindLevels(args)
	if err != nil {
		return nil, err
	}
	return map[string]any{"blind_levels": levels}, nil
}

// administrative commands

func (s *Server) cmdGetConfig(protocol.Request) (any, error) {
	return s.tournament.Config(), nil
}

func (s *Server) cmdConfigure(req protocol.Request) (any, error) {
	var update tournament.ConfigUpdate
	if err := req.Decode(&update); err != nil {
		return nil, err
	}
	return s.tournament.Configure(update)
}

func (s *Server) cmdResetState(protocol.Request) (any, error) {
	s.tournament.Reset()
	return nil, nil
}

func (s *Server) cmdStartGame(req protocol.Request) (any, error) {
	var args struct {
		StartAt *time.Time `json:"start_at"`
	}
	if err := req.Decode(&args); err != nil {
		return nil, err
	}
	return nil, s.tournament.Start(args.StartAt)
}

func (s *Server) cmdStopGame(protocol.Request) (any, error) {
	s.tournament.Clock.Stop()
	return nil, nil
}

func (s *Server) cmdPauseGame(protocol.Request) (any, error) {
	return nil, s.tournament.Clock.Pause()
}

func (s *Server) cmdResumeGame(protocol.Request) (any, error) {
	return nil, s.tournament.Clock.Resume()
}

func (s *Server) cmdTogglePauseGame(protocol.Request) (any, error) {
	return nil, s.tournament.Clock.TogglePause()
}

func levelChanged(changed bool, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	n := 0
	if changed {
		n = 1
	}
	return map[string]int{"blind_level_changed": n}, nil
}

func (s *Server) cmdSetPreviousLevel(protocol.Request) (any, error) {
	return levelChanged(s.tournament.Clock.PreviousBlindLevel(0))
}

func (s *Server) cmdSetNextLevel(protocol.Request) (any, error) {
	return levelChanged(s.tournament.Clock.NextBlindLevel(0))
}

func (s *Server) cmdSetActionClock(req protocol.Request) (any, error) {
	var args struct {
		Duration *int64 `json:"duration"`
	}
	if err := req.Decode(&args); err != nil {
		return nil, err
	}
	if args.Duration == nil {
		s.tournament.Clock.ResetActionClock()
		return nil, nil
	}
	return nil, s.tournament.Clock.SetActionClock(time.Duration(*args.Duration) * time.Millisecond)
}

func (s *Server) cmdClearActionClock(protocol.Request) (any, error) {
	s.tournament.Clock.ResetActionClock()
	return nil, nil
}

type playerArgs struct {
	PlayerID *tournament.PlayerID `json:"player_id"`
}

func (s *Server) playerID(req protocol.Request) (tournament.PlayerID, error) {
	var args playerArgs
	if err := req.Decode(&args); err != nil {
		return "", err
	}
	if args.PlayerID == nil {
		return "", missing("player_id")
	}
	return *args.PlayerID, nil
}

func (s *Server) cmdFundPlayer(req protocol.Request) (any, error) {
	var args struct {
		playerArgs
		SourceID *int `json:"source_id"`
	}
	if err := req.Decode(&args); err != nil {
		return nil, err
	}
	if args.PlayerID == nil {
		return nil, missing("player_id")
	}
	if args.SourceID == nil {
		return nil, missing("source_id")
	}
	return nil, s.tournament.FundPlayer(*args.PlayerID, *args.SourceID)
}

func (s *Server) cmdPlanSeating(req protocol.Request) (any, error) {
	var args struct {
		MaxExpectedPlayers *int `json:"max_expected_players"`
	}
	if err := req.Decode(&args); err != nil {
		return nil, err
	}
	if args.MaxExpectedPlayers == nil {
		return nil, missing("max_expected_players")
	}
	movements, err := s.tournament.PlanSeating(*args.MaxExpectedPlayers)
	if err != nil {
		return nil, err
	}
	return map[string]any{"players_moved": movements}, nil
}

type seatedReply struct {
	PlayerID    tournament.PlayerID `json:"player_id"`
	Name        string              `json:"name"`
	TableNumber int                 `json:"table_number"`
	SeatNumber  int                 `json:"seat_number"`
}

func (s *Server) cmdSeatPlayer(req protocol.Request) (any, error) {
	id, err := s.playerID(req)
	if err != nil {
		return nil, err
	}
	res, err := s.tournament.SeatPlayer(id)
	if err != nil {
		return nil, err
	}

	reply := seatedReply{PlayerID: id, TableNumber: res.Seat.TableNumber, SeatNumber: res.Seat.SeatNumber}
	if p, ok := s.tournament.Player(id); ok {
		reply.Name = p.Name
	}
	key := "player_seated"
	if res.AlreadySeated {
		key = "already_seated"
	}
	return map[string]seatedReply{key: reply}, nil
}

func (s *Server) cmdUnseatPlayer(req protocol.Request) (any, error) {
	id, err := s.playerID(req)
	if err != nil {
		return nil, err
	}
	return nil, s.tournament.UnseatPlayer(id)
}

func (s *Server) cmdBustPlayer(req protocol.Request) (any, error) {
	id, err := s.playerID(req)
	if err != nil {
		return nil, err
	}
	movements, err := s.tournament.BustPlayer(id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"players_moved": movements}, nil
}

func (s *Server) cmdRebalanceSeating(protocol.Request) (any, error) {
	return map[string]any{"players_moved": s.tournament.RebalanceSeating()}, nil
}

func (s *Server) cmdQuickSetup(req protocol.Request) (any, error) {
	var args struct {
		SourceID *int `json:"source_id"`
	}
	if err := req.Decode(&args); err != nil {
		return nil, err
	}
	seated, err := s.tournament.QuickSetup(args.SourceID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"seated_players": seated}, nil
}
