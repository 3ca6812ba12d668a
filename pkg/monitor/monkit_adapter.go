package monitor

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	monkit "github.com/spacemonkeygo/monkit/v3"
)

// MonkitAdapter adapts Monkit metrics to Prometheus format
type MonkitAdapter struct {
	registry *monkit.Registry
}

// NewMonkitAdapter creates a new Monkit to Prometheus adapter
func NewMonkitAdapter(registry *monkit.Registry) *MonkitAdapter {
	return &MonkitAdapter{registry: registry}
}

// Describe implements prometheus.Collector interface (no-op for dynamic metrics)
func (a *MonkitAdapter) Describe(ch chan<- *prometheus.Desc) {
	// Dynamic metrics collection - no fixed description
}

// Collect converts Monkit metrics to Prometheus metrics
func (a *MonkitAdapter) Collect(ch chan<- prometheus.Metric) {
	collectedMetrics := make(map[string]prometheus.Metric)

	a.registry.Stats(func(key monkit.SeriesKey, field string, value float64) {
		// Only task totals and error counts; the rest explodes cardinality
		if field != "" && field != "total" && field != "count" && field != "errors" {
			return
		}

		labelNames := make([]string, 0, 4)
		labelValues := make([]string, 0, 4)

		if key.Tags != nil {
			tags := key.Tags.All()
			tagKeys := make([]string, 0, len(tags))
			for k := range tags {
				tagKeys = append(tagKeys, k)
			}
			sort.Strings(tagKeys)

			for _, k := range tagKeys {
				labelNames = append(labelNames, k)
				labelValues = append(labelValues, tags[k])
			}
		}

		if field != "" {
			labelNames = append(labelNames, "field")
			labelValues = append(labelValues, field)
		}

		desc := prometheus.NewDesc(
			sanitizeMetricName(key.Measurement),
			key.Measurement,
			labelNames,
			nil,
		)

		metric := prometheus.MustNewConstMetric(
			desc,
			prometheus.GaugeValue,
			value,
			labelValues...,
		)

		metricID := key.Measurement + "|" + strings.Join(labelValues, "|")
		collectedMetrics[metricID] = metric
	})

	for _, metric := range collectedMetrics {
		ch <- metric
	}
}

func sanitizeMetricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_").Replace(name)
}
