package docs

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// observe counts one finished operation by name and outcome.
func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`docsvc_operations_total{op=%q,outcome=%q}`, op, outcome)).Inc()
}

// OperationCount returns how many operations named op finished with outcome
// ("ok" or a Kind name) in this process.
func OperationCount(op, outcome string) uint64 {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`docsvc_operations_total{op=%q,outcome=%q}`, op, outcome)).Get()
}
