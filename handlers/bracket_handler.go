package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Dosada05/duel-arena/services"
)

type BracketHandler struct {
	bracketService services.BracketService
	logger         *slog.Logger
}

func NewBracketHandler(bracketService services.BracketService, logger *slog.Logger) *BracketHandler {
	return &BracketHandler{bracketService: bracketService, logger: logger}
}

type createBracketInput struct {
	TournamentID int `json:"tournament_id"`
}

func (h *BracketHandler) CreateBracket(w http.ResponseWriter, r *http.Request) {
	var input createBracketInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.TournamentID <= 0 {
		badRequestResponse(w, r, fmt.Errorf("tournament_id must be a positive integer"))
		return
	}

	tree, err := h.bracketService.CreateBracket(r.Context(), input.TournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	resp := jsonResponse{"tournament_id": input.TournamentID, "tree": tree}
	if err := writeJSON(w, http.StatusCreated, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BracketHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tree, err := h.bracketService.GetByTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament_id": tournamentID, "tree": tree}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BracketHandler) GetOpponent(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	participantID, err := getIDFromURL(r, "participantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	opponentID, err := h.bracketService.GetOpponent(r.Context(), tournamentID, participantID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	resp := jsonResponse{
		"tournament_id":  tournamentID,
		"participant_id": participantID,
		"opponent_id":    opponentID,
	}
	if err := writeJSON(w, http.StatusOK, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *BracketHandler) DeleteTree(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.bracketService.DeleteByTournament(r.Context(), tournamentID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
