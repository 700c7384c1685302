package metrics

import (
	"context"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/rotisserie/eris"
)

// CounterTotals flattens the counters gathered from g into a map keyed by
// `name{label=value,...}`, for logging at the end of a batch run.
func CounterTotals(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, eris.Wrap(err, "metrics: gather")
	}

	totals := make(map[string]float64)
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range mf.GetMetric() {
			totals[seriesKey(mf.GetName(), m.GetLabel())] = m.GetCounter().GetValue()
		}
	}
	return totals, nil
}

func seriesKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

// Push replaces the metrics of job on a Prometheus Pushgateway with
// everything gathered from g.
func Push(ctx context.Context, gatewayURL, job string, g prometheus.Gatherer) error {
	err := push.New(gatewayURL, job).Gatherer(g).PushContext(ctx)
	return eris.Wrapf(err, "metrics: push %s", job)
}
