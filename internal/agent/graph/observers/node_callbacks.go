package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	"github.com/deal-associate/server/internal/metrics"
	logx "github.com/deal-associate/server/pkg/logger"
)

type nodeStartKey struct{}

// NewNodeCallbacks times every lambda node and counts node errors.
func NewNodeCallbacks() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			if !isNode(info) {
				return ctx
			}
			return context.WithValue(ctx, nodeStartKey{}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
			if !isNode(info) {
				return ctx
			}
			if start, ok := ctx.Value(nodeStartKey{}).(time.Time); ok {
				elapsed := time.Since(start)
				metrics.NodeDuration.WithLabelValues(info.Name).Observe(elapsed.Seconds())
				logx.Debug().Str("node", info.Name).Dur("elapsed", elapsed).Msg("node done")
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			if !isNode(info) {
				return ctx
			}
			metrics.NodeErrors.WithLabelValues(info.Name).Inc()
			logx.Error().Err(err).Str("node", info.Name).Msg("node failed")
			return ctx
		}).
		Build()
}

func isNode(info *einocb.RunInfo) bool {
	return info != nil && info.Component == compose.ComponentOfLambda && info.Name != ""
}
