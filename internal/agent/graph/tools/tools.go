package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/deal-associate/server/internal/agent/model"
)

const (
	ToolSearchDealDocuments = "search_deal_documents"
	ToolGetDealMetrics      = "get_deal_metrics"
)

// GetChatTools returns the tools bound to the chat model.
func GetChatTools() []tool.BaseTool {
	return []tool.BaseTool{
		createSearchDealDocumentsTool(),
		createGetDealMetricsTool(),
	}
}

// GetToolInfos collects the schema of every tool for model binding.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// currentDeal reads the deal of the running turn from graph state.
func currentDeal(ctx context.Context) (*model.DealState, error) {
	var deal *model.DealState
	err := compose.ProcessState(ctx, func(_ context.Context, s *model.AppState) error {
		deal = s.Deal
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read deal state: %w", err)
	}
	if deal == nil {
		return nil, fmt.Errorf("no deal loaded")
	}
	return deal, nil
}
