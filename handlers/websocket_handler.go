package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Dosada05/duel-arena/brackets"
	"github.com/Dosada05/duel-arena/middleware"
	"github.com/Dosada05/duel-arena/models"
	"github.com/Dosada05/duel-arena/realtime"
	"github.com/Dosada05/duel-arena/services"
	"github.com/gorilla/websocket"
)

const connectTimeout = 15 * time.Second

type WebSocketHandler struct {
	hub            *realtime.Hub
	matchService   services.MatchService
	bracketService services.BracketService
	upgrader       websocket.Upgrader
	logger         *slog.Logger
}

func NewWebSocketHandler(
	hub *realtime.Hub,
	matchService services.MatchService,
	bracketService services.BracketService,
	allowedOrigins []string,
	logger *slog.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		matchService:   matchService,
		bracketService: bracketService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

// originChecker allows requests without an Origin header (non-browser
// clients) and browsers whose origin is listed. "*" allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeMatch подключает игрока к его дуэли: /ws/contest/{tournamentID}/{ownID}/{opponentID}.
// The pairing is checked against the bracket before the upgrade.
func (h *WebSocketHandler) ServeMatch(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	ownID, err := getIDFromURL(r, "ownID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	opponentID, err := getIDFromURL(r, "opponentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	if userID != ownID {
		forbiddenResponse(w, r, "cannot connect on behalf of another user")
		return
	}
	if ownID == opponentID {
		badRequestResponse(w, r, services.ErrSelfMatch)
		return
	}

	current, err := h.bracketService.GetOpponent(r.Context(), tournamentID, ownID)
	if err != nil {
		if errors.Is(err, services.ErrNoOpponent) {
			conflictResponse(w, r, services.ErrInvalidPairing.Error())
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if current != opponentID {
		conflictResponse(w, r, services.ErrInvalidPairing.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой
		h.logger.Warn("websocket upgrade failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}

	pairKey := models.PairKey(tournamentID, ownID, opponentID)
	client := realtime.NewClient(h.hub, conn, pairKey, ownID)
	go client.WritePump()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	h.matchService.Connect(ctx, client, tournamentID)
	cancel()

	go client.ReadPump(
		func(raw []byte) { h.matchService.HandleCommand(context.Background(), client, raw) },
		func() { h.matchService.Disconnect(context.Background(), client) },
	)
}

// ServeTournament подключает зрителя к ленте обновлений сетки турнира.
func (h *WebSocketHandler) ServeTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}

	client := realtime.NewClient(h.hub, conn, realtime.TournamentRoom(tournamentID), 0)
	h.hub.Register(client)

	if tree, err := h.bracketService.GetByTournament(r.Context(), tournamentID); err == nil {
		update := realtime.BracketUpdated{TournamentID: tournamentID, Tree: tree}
		if winner, ok := brackets.Winner(tree); ok {
			update.WinnerID = &winner
		}
		client.SendMessage(realtime.NewMessage(update))
	}

	go client.WritePump()
	go client.ReadPump(nil, nil)
}
