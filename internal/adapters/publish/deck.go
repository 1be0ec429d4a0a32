package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/deal-associate/server/internal/agent/model"
)

var deckTemplate = template.Must(template.New("deck").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`# Investment Committee Deck (v{{.Version}})
{{range $i, $s := .Slides}}
---

## {{inc $i}}. {{$s.Title}}
{{range $s.Bullets}}
- {{.}}{{end}}
{{end}}`))

// DeckFileName is the file name of a deck version.
func DeckFileName(version int) string {
	return fmt.Sprintf("IC_Deck_v%d.md", version)
}

// RenderDeck renders the deck as Markdown, one section per slide.
func RenderDeck(deck model.DeckContent) (string, error) {
	var b strings.Builder
	if err := deckTemplate.Execute(&b, deck); err != nil {
		return "", fmt.Errorf("render deck: %w", err)
	}
	return b.String(), nil
}

// WriteDeck renders deck to path.
func WriteDeck(path string, deck model.DeckContent) error {
	md, err := RenderDeck(deck)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return os.WriteFile(path, []byte(md), 0o644)
}
