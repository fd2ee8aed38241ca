package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Command
		wantErr error
	}{
		{"ready", `{"action":"READY","data":{"handle":" tourist "}}`, ReadyCommand{Handle: "tourist"}, nil},
		{"not ready", `{"action":"NOT_READY"}`, NotReadyCommand{}, nil},
		{"check with empty data", `{"action":"CHECK","data":{}}`, CheckCommand{}, nil},
		{"ping", `{"action":"PING","data":{"timestamp":42}}`, PingCommand{Timestamp: 42}, nil},
		{"ping falls back to envelope timestamp", `{"action":"PING","timestamp":7}`, PingCommand{Timestamp: 7}, nil},
		{"pong", `{"action":"PONG","data":{"timestamp":9,"originalTimestamp":8}}`, PongCommand{Timestamp: 9, OriginalTimestamp: 8}, nil},
		{"ready without handle", `{"action":"READY","data":{}}`, nil, ErrMalformedMessage},
		{"ready with wrong type", `{"action":"READY","data":{"handle":5}}`, nil, ErrMalformedMessage},
		{"not json", `hello`, nil, ErrMalformedMessage},
		{"missing action", `{"data":{}}`, nil, ErrMalformedMessage},
		{"unknown action", `{"action":"DANCE"}`, nil, ErrUnknownAction},
		{"outgoing action is not a command", `{"action":"WINNER"}`, nil, ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewMessage_Envelope(t *testing.T) {
	handle := "petr"
	msg := NewMessage(Loser{PairKey: "3-7-100", UserID: 7, Opponent: OpponentView{UserID: 3, Handle: &handle}})

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded struct {
		Action    string          `json:"action"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "LOSER", decoded.Action)
	assert.Positive(t, decoded.Timestamp)
	assert.JSONEq(t, `{"pairKey":"3-7-100","userId":7,"opponent":{"userId":3,"handle":"petr"}}`, string(decoded.Data))
}

func TestNewError(t *testing.T) {
	e := NewError(CodeProblemsNotLoaded, "tryStart", "")
	assert.Equal(t, ActionError, e.Action())
	assert.Equal(t, "Problems are still loading. Please wait.", e.Message)

	unknown := NewError(ErrorCode("SOMETHING"), "", "")
	assert.Equal(t, "Internal server error.", unknown.Message)
}

func TestHeartbeatFrame(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	raw, err := heartbeatFrame(now)
	require.NoError(t, err)

	var decoded struct {
		Action string `json:"action"`
		Data   struct {
			Timestamp int64 `json:"timestamp"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "PING", decoded.Action)
	assert.Equal(t, int64(1700000000000), decoded.Data.Timestamp)
}
