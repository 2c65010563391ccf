package protocol

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tournamentd/internal/tournament"
)

func TestParseLine(t *testing.T) {
	t.Run("command with reserved keys", func(t *testing.T) {
		req, err := ParseLine([]byte(`seat_player {"player_id":"p1","echo":7,"authenticate":1234}` + "\r\n"))
		require.NoError(t, err)
		assert.Equal(t, CmdSeatPlayer, req.Command)
		assert.JSONEq(t, `7`, string(req.Echo))
		require.NotNil(t, req.Authenticate)
		assert.Equal(t, 1234, *req.Authenticate)

		var args struct {
			PlayerID string `json:"player_id"`
		}
		require.NoError(t, req.Decode(&args))
		assert.Equal(t, "p1", args.PlayerID)
	})

	t.Run("bare command", func(t *testing.T) {
		req, err := ParseLine([]byte("GET_STATE\n"))
		require.NoError(t, err)
		assert.Equal(t, CmdGetState, req.Command)
		assert.Nil(t, req.Echo)
		assert.Nil(t, req.Authenticate)
		assert.JSONEq(t, `{}`, string(req.Args))
	})

	t.Run("echo is kept verbatim", func(t *testing.T) {
		req, err := ParseLine([]byte(`version {"echo":"abc"}`))
		require.NoError(t, err)
		assert.Equal(t, `"abc"`, string(req.Echo))
	})

	for _, line := range []string{"", "   \r\n", `configure {"name":`, `configure [1,2]`, `get_state {"authenticate":"x"}`} {
		t.Run(fmt.Sprintf("malformed %q", line), func(t *testing.T) {
			_, err := ParseLine([]byte(line))
			assert.ErrorIs(t, err, tournament.ErrMalformed)
			assert.ErrorIs(t, err, tournament.ErrProtocol)
		})
	}
}

func TestFormatCommand(t *testing.T) {
	echo, code := 3, 1234
	line, err := FormatCommand(CmdFundPlayer, map[string]any{"player_id": "p1", "source_id": 0}, &echo, &code)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), line[len(line)-1])

	req, err := ParseLine(line)
	require.NoError(t, err)
	assert.Equal(t, CmdFundPlayer, req.Command)
	assert.JSONEq(t, `3`, string(req.Echo))
	assert.Equal(t, 1234, *req.Authenticate)

	_, err = FormatCommand(CmdGetState, []int{1}, nil, nil)
	assert.Error(t, err)
}

func TestEncodeResult(t *testing.T) {
	line, err := EncodeResult(json.RawMessage(`9`), map[string]any{"authorized": true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"authorized":true,"echo":9}`, string(line))

	line, err = EncodeResult(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(line))

	reply, err := ParseReply(line)
	require.NoError(t, err)
	assert.True(t, reply.IsBroadcast())
	assert.Nil(t, reply.Err)
}

func TestEncodeError(t *testing.T) {
	err := fmt.Errorf("%w: p1 at table 0, seat 3", tournament.ErrAlreadySeated)
	line := EncodeError(json.RawMessage(`4`), err)

	var reply ErrorReply
	require.NoError(t, json.Unmarshal(line, &reply))
	assert.Equal(t, "conflict", reply.ErrorKind)
	assert.Equal(t, "already_seated", reply.ErrorCode)
	assert.Contains(t, reply.Error, "table 0, seat 3")

	parsed, perr := ParseReply(line)
	require.NoError(t, perr)
	assert.False(t, parsed.IsBroadcast())
	require.NotNil(t, parsed.Err)
	assert.ErrorIs(t, parsed.Err, tournament.ErrAlreadySeated)
	assert.ErrorIs(t, parsed.Err, tournament.ErrConflict)
}
