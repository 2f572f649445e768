// Package observability wires the logger and prometheus instruments.
package observability

import (
	"github.com/smallbiznis/kolekta/internal/observability/logger"
	"github.com/smallbiznis/kolekta/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(logger.New),
	fx.Invoke(ensureSchedulerMetrics),
)

func ensureSchedulerMetrics() {
	metrics.Scheduler()
}
