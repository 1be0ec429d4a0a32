package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/deal-associate/server/internal/agent/model"
)

const (
	defaultMaxResults = 5
	maxResults        = 10
	maxExcerptLen     = 600
)

type SearchDealDocumentsInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type DocumentMatch struct {
	Document string `json:"document"`
	Excerpt  string `json:"excerpt"`
	Score    int    `json:"score"`
}

type SearchDealDocumentsOutput struct {
	Matches []DocumentMatch `json:"matches"`
	Total   int             `json:"total"`
}

func createSearchDealDocumentsTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSearchDealDocuments,
			Desc: "Search the ingested deal documents (investment memorandum, rent roll, technical reports) and the ingestion narrative. Returns the best matching passages with their source document. Use it for questions about tenants, leases, specification, location or risks.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Keywords to look for, e.g. 'lease expiry Tenant B', 'eaves height', 'roof condition'.",
					Required: true,
				},
				"max_results": {
					Type: "number",
					Desc: "Maximum number of passages to return (default: 5, max: 10)",
				},
			}),
		},
		func(ctx context.Context, in *SearchDealDocumentsInput) (*SearchDealDocumentsOutput, error) {
			deal, err := currentDeal(ctx)
			if err != nil {
				return nil, err
			}
			return SearchDocuments(deal.ExtractedData, in.Query, in.MaxResults)
		},
	)
}

// SearchDocuments ranks the paragraphs of the ingested documents by how many
// query terms they contain.
func SearchDocuments(data *model.ExtractedData, query string, limit int) (*SearchDealDocumentsOutput, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, fmt.Errorf("query is required")
	}
	switch {
	case limit <= 0:
		limit = defaultMaxResults
	case limit > maxResults:
		limit = maxResults
	}

	out := &SearchDealDocumentsOutput{Matches: []DocumentMatch{}}
	if data.IsEmpty() {
		return out, nil
	}

	sources := make([]model.Document, 0, len(data.Documents)+1)
	sources = append(sources, data.Documents...)
	if data.Narrative != "" {
		sources = append(sources, model.Document{Name: "ingestion narrative", Text: data.Narrative})
	}

	for _, doc := range sources {
		for _, para := range strings.Split(doc.Text, "\n\n") {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			lower := strings.ToLower(para)
			score := 0
			for _, term := range terms {
				score += strings.Count(lower, term)
			}
			if score == 0 {
				continue
			}
			out.Matches = append(out.Matches, DocumentMatch{Document: doc.Name, Excerpt: excerpt(para), Score: score})
		}
	}

	sort.SliceStable(out.Matches, func(i, j int) bool {
		return out.Matches[i].Score > out.Matches[j].Score
	})
	out.Total = len(out.Matches)
	if len(out.Matches) > limit {
		out.Matches = out.Matches[:limit]
	}
	return out, nil
}

func excerpt(s string) string {
	if len(s) <= maxExcerptLen {
		return s
	}
	return s[:maxExcerptLen] + "..."
}
