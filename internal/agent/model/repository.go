package model

import (
	"context"

	"github.com/deal-associate/server/internal/underwriting"
)

// DealRepository persists deal sessions.
type DealRepository interface {
	// Load returns the stored state of a session, or errx.ErrSessionNotFound.
	Load(ctx context.Context, sessionID string) (*DealState, error)

	// Save persists the full state; appended are the transcript entries added
	// since the last save, for stores that keep the transcript as a log.
	Save(ctx context.Context, state *DealState, appended []Message) error

	// Delete removes all data for a session.
	Delete(ctx context.Context, sessionID string) error
}

// DocumentSource provides the raw material for ingestion.
type DocumentSource interface {
	LoadStructured(ctx context.Context, sessionID string) (name string, record map[string]any, err error)
	LoadDocuments(ctx context.Context, sessionID string) ([]Document, error)
}

// CompsQuery narrows comparable retrieval to the subject asset.
type CompsQuery struct {
	AssetType string
	Location  string
	Limit     int
}

// CompsRetriever finds comparable transactions.
type CompsRetriever interface {
	// Propose returns the recommended set for the subject.
	Propose(ctx context.Context, q CompsQuery) ([]underwriting.Comp, error)
	// Catalog returns every comp the user may add by name.
	Catalog(ctx context.Context) ([]underwriting.Comp, error)
}

// Publisher renders and uploads generated files. An upload failure is not an
// error: the returned Artifact simply has no URL.
type Publisher interface {
	PublishWorkbook(ctx context.Context, sessionID string, a underwriting.Assumptions, p underwriting.Projection) (Artifact, error)
	PublishDeck(ctx context.Context, sessionID string, deck DeckContent) (Artifact, error)
}

// RecordValidator checks an ingested structured record and returns warnings.
type RecordValidator interface {
	Validate(record map[string]any) []string
}
