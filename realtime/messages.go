package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dosada05/duel-arena/brackets"
)

type Action string

// Outgoing actions.
const (
	ActionSessionConnected Action = "SESSION_CONNECTED"
	ActionSessionResume    Action = "SESSION_RESUME"
	ActionUserJoined       Action = "USER_JOINED"
	ActionUserLeft         Action = "USER_LEFT"
	ActionUserReady        Action = "USER_READY"
	ActionUserNotReady     Action = "USER_NOT_READY"
	ActionMatchStart       Action = "MATCH_START"
	ActionMatchCancelled   Action = "MATCH_CANCELLED"
	ActionWinner           Action = "WINNER"
	ActionLoser            Action = "LOSER"
	ActionContinue         Action = "CONTINUE"
	ActionError            Action = "ERROR"
	ActionPong             Action = "PONG"
	ActionBracketUpdated   Action = "BRACKET_UPDATED"
)

// Incoming actions.
const (
	ActionReady    Action = "READY"
	ActionNotReady Action = "NOT_READY"
	ActionCheck    Action = "CHECK"
	ActionPing     Action = "PING"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownAction    = errors.New("unknown action")
)

// Message is the envelope written to every socket.
type Message struct {
	Action    Action  `json:"action"`
	Data      Payload `json:"data"`
	Timestamp int64   `json:"timestamp"`
}

// Payload is implemented by every outgoing data shape.
type Payload interface {
	Action() Action
}

func NewMessage(p Payload) Message {
	return Message{
		Action:    p.Action(),
		Data:      p,
		Timestamp: time.Now().UnixMilli(),
	}
}

type ProblemView struct {
	ContestID int    `json:"contestId"`
	Index     string `json:"index"`
	Name      string `json:"name"`
	Rating    *int   `json:"rating,omitempty"`
	URL       string `json:"url,omitempty"`
}

type UserView struct {
	UserID  int     `json:"userId"`
	Handle  *string `json:"handle,omitempty"`
	IsReady bool    `json:"isReady"`
}

type SessionConnected struct {
	PairKey        string `json:"pairKey"`
	TournamentID   int    `json:"tournamentId"`
	UserID         int    `json:"userId"`
	IsReconnection bool   `json:"isReconnection"`
}

type SessionResume struct {
	PairKey        string       `json:"pairKey"`
	TournamentID   int          `json:"tournamentId"`
	CurrentProblem *ProblemView `json:"currentProblem,omitempty"`
	IsActive       bool         `json:"isActive"`
	IsFinished     bool         `json:"isFinished"`
	Users          []UserView   `json:"users"`
}

type UserJoined struct {
	PairKey string `json:"pairKey"`
	UserID  int    `json:"userId"`
}

type UserLeft struct {
	PairKey string `json:"pairKey"`
	UserID  int    `json:"userId"`
}

type UserReady struct {
	PairKey string `json:"pairKey"`
	UserID  int    `json:"userId"`
	Handle  string `json:"handle"`
}

type UserNotReady struct {
	PairKey string `json:"pairKey"`
	UserID  int    `json:"userId"`
}

type MatchStart struct {
	PairKey string      `json:"pairKey"`
	Problem ProblemView `json:"problem"`
}

type MatchCancelled struct {
	PairKey string `json:"pairKey"`
	Reason  string `json:"reason"`
}

type Winner struct {
	PairKey string `json:"pairKey"`
	UserID  int    `json:"userId"`
}

type OpponentView struct {
	UserID int     `json:"userId"`
	Handle *string `json:"handle,omitempty"`
}

type Loser struct {
	PairKey  string       `json:"pairKey"`
	UserID   int          `json:"userId"`
	Opponent OpponentView `json:"opponent"`
}

type Continue struct {
	PairKey string `json:"pairKey"`
	UserID  int    `json:"userId"`
}

// Ping is the application-level heartbeat sent alongside transport pings.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type Pong struct {
	Timestamp         int64 `json:"timestamp"`
	OriginalTimestamp int64 `json:"originalTimestamp"`
}

type BracketUpdated struct {
	TournamentID int            `json:"tournamentId"`
	Tree         *brackets.Node `json:"tree"`
	WinnerID     *int           `json:"winnerId,omitempty"`
}

func (SessionConnected) Action() Action { return ActionSessionConnected }
func (SessionResume) Action() Action    { return ActionSessionResume }
func (UserJoined) Action() Action       { return ActionUserJoined }
func (UserLeft) Action() Action         { return ActionUserLeft }
func (UserReady) Action() Action        { return ActionUserReady }
func (UserNotReady) Action() Action     { return ActionUserNotReady }
func (MatchStart) Action() Action       { return ActionMatchStart }
func (MatchCancelled) Action() Action   { return ActionMatchCancelled }
func (Winner) Action() Action           { return ActionWinner }
func (Loser) Action() Action            { return ActionLoser }
func (Continue) Action() Action         { return ActionContinue }
func (ErrorData) Action() Action        { return ActionError }
func (Ping) Action() Action             { return ActionPing }
func (Pong) Action() Action             { return ActionPong }
func (BracketUpdated) Action() Action   { return ActionBracketUpdated }

// Command is a parsed incoming message.
type Command interface {
	command() Action
}

type ReadyCommand struct {
	Handle string `json:"handle"`
}

type NotReadyCommand struct{}

type CheckCommand struct{}

type PingCommand struct {
	Timestamp int64 `json:"timestamp"`
}

// PongCommand answers a server PING. It only proves liveness.
type PongCommand struct {
	Timestamp         int64 `json:"timestamp"`
	OriginalTimestamp int64 `json:"originalTimestamp"`
}

func (ReadyCommand) command() Action    { return ActionReady }
func (NotReadyCommand) command() Action { return ActionNotReady }
func (CheckCommand) command() Action    { return ActionCheck }
func (PingCommand) command() Action     { return ActionPing }
func (PongCommand) command() Action     { return ActionPong }

type incomingEnvelope struct {
	Action    Action          `json:"action"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// ParseCommand decodes one client frame.
func ParseCommand(raw []byte) (Command, error) {
	var env incomingEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Action {
	case ActionReady:
		var cmd ReadyCommand
		if err := decodeData(env.Data, &cmd); err != nil {
			return nil, err
		}
		cmd.Handle = strings.TrimSpace(cmd.Handle)
		if cmd.Handle == "" {
			return nil, fmt.Errorf("%w: READY requires a handle", ErrMalformedMessage)
		}
		return cmd, nil
	case ActionNotReady:
		return NotReadyCommand{}, nil
	case ActionCheck:
		return CheckCommand{}, nil
	case ActionPing:
		cmd := PingCommand{}
		if err := decodeData(env.Data, &cmd); err != nil {
			return nil, err
		}
		if cmd.Timestamp == 0 {
			cmd.Timestamp = env.Timestamp
		}
		return cmd, nil
	case ActionPong:
		cmd := PongCommand{}
		if err := decodeData(env.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case "":
		return nil, fmt.Errorf("%w: missing action", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, env.Action)
	}
}

func decodeData(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

// TournamentRoom is the spectator room of a tournament.
func TournamentRoom(tournamentID int) string {
	return fmt.Sprintf("tournament_%d", tournamentID)
}
