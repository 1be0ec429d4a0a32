package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/underwriting"
)

type GetDealMetricsInput struct {
	IncludeScenarios bool `json:"include_scenarios,omitempty"`
}

type ScenarioSummary struct {
	Label       string              `json:"label"`
	IRR         underwriting.Metric `json:"irr"`
	IRRDeltaBps underwriting.Metric `json:"irr_delta_bps"`
	Band        string              `json:"band"`
}

type GetDealMetricsOutput struct {
	Assumptions underwriting.Assumptions `json:"assumptions,omitempty"`
	Comps       []string                 `json:"comps,omitempty"`
	BlendedRent *float64                 `json:"blended_rent,omitempty"`
	Model       *underwriting.Metrics    `json:"model,omitempty"`
	ModelStatus string                   `json:"model_status,omitempty"`
	Scenarios   []ScenarioSummary        `json:"scenarios,omitempty"`
	Asset       *model.AssetMetrics      `json:"asset,omitempty"`
}

func createGetDealMetricsTool() tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetDealMetrics,
			Desc: "Read the current underwriting state: assumptions, selected comparables and blended rent, base-case returns (IRR, equity multiple, yield on cost) and optionally every scenario run so far.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"include_scenarios": {
					Type: "boolean",
					Desc: "Also return scenario results and their comparison to the base case",
				},
			}),
		},
		func(ctx context.Context, in *GetDealMetricsInput) (*GetDealMetricsOutput, error) {
			deal, err := currentDeal(ctx)
			if err != nil {
				return nil, err
			}
			return DealMetrics(deal, in.IncludeScenarios), nil
		},
	)
}

// DealMetrics snapshots the figures the chat model may quote.
func DealMetrics(deal *model.DealState, includeScenarios bool) *GetDealMetricsOutput {
	out := &GetDealMetricsOutput{Assumptions: deal.Assumptions}
	for _, c := range deal.Comps {
		out.Comps = append(out.Comps, c.String())
	}
	if rent, ok := underwriting.BlendedRent(deal.Comps); ok {
		out.BlendedRent = &rent
	}
	if deal.FinancialModel != nil {
		m := deal.FinancialModel.Metrics
		out.Model = &m
		out.ModelStatus = string(deal.FinancialModel.Status)
	}
	if !deal.ExtractedData.IsEmpty() {
		a := deal.ExtractedData.Metrics
		out.Asset = &a
	}
	if includeScenarios {
		for _, label := range deal.ScenarioLabels() {
			sc := deal.Scenarios[label]
			out.Scenarios = append(out.Scenarios, ScenarioSummary{
				Label:       label,
				IRR:         sc.Metrics.IRR,
				IRRDeltaBps: sc.Comparison.IRRDeltaBps,
				Band:        string(sc.Comparison.Band),
			})
		}
	}
	return out
}
