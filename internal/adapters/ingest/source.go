package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/deal-associate/server/internal/agent/model"
	logx "github.com/deal-associate/server/pkg/logger"
)

const (
	structuredDir = "structured"
	documentsDir  = "documents"
)

// DirSource reads deal files from disk. A session sub-directory
// (<root>/<session_id>/...) takes precedence over the shared one.
type DirSource struct {
	Root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{Root: root}
}

func (s *DirSource) dir(sessionID, kind string) string {
	if sessionID != "" {
		p := filepath.Join(s.Root, sessionID, kind)
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			return p
		}
	}
	return filepath.Join(s.Root, kind)
}

// LoadStructured returns the first JSON record, by file name.
func (s *DirSource) LoadStructured(ctx context.Context, sessionID string) (string, map[string]any, error) {
	dir := s.dir(sessionID, structuredDir)
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return "", nil, fmt.Errorf("list structured files: %w", err)
	}
	if len(files) == 0 {
		return "", nil, fmt.Errorf("no structured JSON found in %s", dir)
	}
	sort.Strings(files)

	raw, err := os.ReadFile(files[0])
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", filepath.Base(files[0]), err)
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", nil, fmt.Errorf("parse %s: %w", filepath.Base(files[0]), err)
	}

	logx.Debug().Str("session_id", sessionID).Str("file", files[0]).Msg("Loaded structured record")
	return filepath.Base(files[0]), record, nil
}

// LoadDocuments reads every text or markdown document. PDFs are listed
// without content.
func (s *DirSource) LoadDocuments(ctx context.Context, sessionID string) ([]model.Document, error) {
	dir := s.dir(sessionID, documentsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.Document{}, nil
		}
		return nil, fmt.Errorf("list documents: %w", err)
	}

	docs := make([]model.Document, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt", ".md":
			b, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				logx.Warn().Err(err).Str("file", name).Msg("Skipping unreadable document")
				continue
			}
			docs = append(docs, model.Document{Name: name, Text: string(b)})
		case ".pdf":
			docs = append(docs, model.Document{Name: name, Text: "(PDF content not extracted)"})
		}
	}
	return docs, nil
}

var _ model.DocumentSource = (*DirSource)(nil)
