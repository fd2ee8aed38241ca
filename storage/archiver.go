package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Dosada05/duel-arena/brackets"
)

type UploadResult struct {
	Key      string `json:"key"`
	Location string `json:"location"`
	ETag     string `json:"etag,omitempty"`
}

// FileUploader is an object store bucket.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
	GetPublicURL(key string) string
}

// BracketSnapshot is the archived final state of a tournament.
type BracketSnapshot struct {
	TournamentID int                  `json:"tournament_id"`
	Tree         *brackets.Node       `json:"tree"`
	Standings    []brackets.Placement `json:"standings"`
	ArchivedAt   time.Time            `json:"archived_at"`
}

// BracketArchiver keeps one JSON document per finished tournament.
type BracketArchiver interface {
	Archive(ctx context.Context, snapshot BracketSnapshot) (*UploadResult, error)
	Remove(ctx context.Context, tournamentID int) error
	URL(tournamentID int) string
}

type bracketArchiver struct {
	uploader FileUploader
}

func NewBracketArchiver(uploader FileUploader) BracketArchiver {
	return &bracketArchiver{uploader: uploader}
}

func BracketArchiveKey(tournamentID int) string {
	return fmt.Sprintf("brackets/tournament-%d.json", tournamentID)
}

func (a *bracketArchiver) Archive(ctx context.Context, snapshot BracketSnapshot) (*UploadResult, error) {
	if snapshot.ArchivedAt.IsZero() {
		snapshot.ArchivedAt = time.Now().UTC()
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bracket snapshot for tournament %d: %w", snapshot.TournamentID, err)
	}
	return a.uploader.Upload(ctx, BracketArchiveKey(snapshot.TournamentID), "application/json", bytes.NewReader(body))
}

func (a *bracketArchiver) Remove(ctx context.Context, tournamentID int) error {
	return a.uploader.Delete(ctx, BracketArchiveKey(tournamentID))
}

func (a *bracketArchiver) URL(tournamentID int) string {
	return a.uploader.GetPublicURL(BracketArchiveKey(tournamentID))
}
