package publish

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/metrics"
	"github.com/deal-associate/server/internal/underwriting"
	logx "github.com/deal-associate/server/pkg/logger"
)

const (
	WorkbookFileName = "Financial_Model.xlsx"

	contentTypeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeMarkdown = "text/markdown; charset=utf-8"
)

// Uploader stores a local file remotely and returns a shareable link.
type Uploader interface {
	Upload(ctx context.Context, key, localPath, contentType string) (string, error)
}

// Publisher writes artifacts under OutputDir/<session_id>/ and uploads them
// when an Uploader is configured. Upload failures leave the artifact local.
type Publisher struct {
	outputDir string
	uploader  Uploader
}

func NewPublisher(outputDir string, uploader Uploader) *Publisher {
	return &Publisher{outputDir: outputDir, uploader: uploader}
}

func (p *Publisher) PublishWorkbook(ctx context.Context, sessionID string, a underwriting.Assumptions, proj underwriting.Projection) (model.Artifact, error) {
	path := filepath.Join(p.outputDir, sessionID, WorkbookFileName)
	if err := WriteWorkbook(path, a, proj); err != nil {
		return model.Artifact{}, fmt.Errorf("write workbook: %w", err)
	}
	return p.upload(ctx, "workbook", sessionID, path, contentTypeXLSX), nil
}

func (p *Publisher) PublishDeck(ctx context.Context, sessionID string, deck model.DeckContent) (model.Artifact, error) {
	path := filepath.Join(p.outputDir, sessionID, DeckFileName(deck.Version))
	if err := WriteDeck(path, deck); err != nil {
		return model.Artifact{}, fmt.Errorf("write deck: %w", err)
	}
	return p.upload(ctx, "deck", sessionID, path, contentTypeMarkdown), nil
}

func (p *Publisher) upload(ctx context.Context, kind, sessionID, path, contentType string) model.Artifact {
	art := model.Artifact{LocalPath: path}
	if p.uploader == nil {
		metrics.Uploads.WithLabelValues(kind, "skipped").Inc()
		return art
	}

	url, err := p.uploader.Upload(ctx, sessionID+"/"+filepath.Base(path), path, contentType)
	if err != nil {
		metrics.Uploads.WithLabelValues(kind, "failed").Inc()
		logx.Warn().Err(err).Str("session_id", sessionID).Str("artifact", kind).Msg("Upload failed; keeping local copy")
		return art
	}
	metrics.Uploads.WithLabelValues(kind, "ok").Inc()
	art.URL = url
	return art
}

var _ model.Publisher = (*Publisher)(nil)
