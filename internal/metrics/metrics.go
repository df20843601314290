// Package metrics exposes breaker state in the Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/boshu2/hookbreaker/internal/breaker"
	"github.com/boshu2/hookbreaker/internal/store"
)

const namespace = "hookbreaker"

// Source is the read side of the state store.
type Source interface {
	Snapshot() (*store.Document, error)
}

var allStates = []breaker.State{breaker.StateClosed, breaker.StateOpen, breaker.StateHalfOpen}

// Collector reads the store on every scrape.
type Collector struct {
	src Source
	now func() time.Time

	up                  *prometheus.Desc
	hookState           *prometheus.Desc
	hookFailures        *prometheus.Desc
	hookExecutions      *prometheus.Desc
	hookConsecutiveFail *prometheus.Desc
	hookRetryIn         *prometheus.Desc
	hooksTracked        *prometheus.Desc
	hooksDisabled       *prometheus.Desc
	executions          *prometheus.Desc
	failures            *prometheus.Desc
	lastUpdated         *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over src.
func NewCollector(src Source, now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	key := []string{"key"}
	return &Collector{
		src: src,
		now: now,
		up: prometheus.NewDesc(prometheus.BuildFQName(namespace, "store", "up"),
			"Whether the state store could be read (1) or not (0).", nil, nil),
		hookState: prometheus.NewDesc(prometheus.BuildFQName(namespace, "hook", "state"),
			"Breaker state of a command, one series per state set to 1 for the current one.", []string{"key", "state"}, nil),
		hookFailures: prometheus.NewDesc(prometheus.BuildFQName(namespace, "hook", "failures_total"),
			"Lifetime failures of a command.", key, nil),
		hookExecutions: prometheus.NewDesc(prometheus.BuildFQName(namespace, "hook", "executions_total"),
			"Lifetime executions of a command.", key, nil),
		hookConsecutiveFail: prometheus.NewDesc(prometheus.BuildFQName(namespace, "hook", "consecutive_failures"),
			"Current failure streak of a command.", key, nil),
		hookRetryIn: prometheus.NewDesc(prometheus.BuildFQName(namespace, "hook", "retry_in_seconds"),
			"Seconds until an open breaker allows a probe.", key, nil),
		hooksTracked: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "hooks_tracked"),
			"Number of commands with persisted state.", nil, nil),
		hooksDisabled: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "hooks_disabled"),
			"Number of commands whose breaker is open.", nil, nil),
		executions: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "executions_total"),
			"Executions across all tracked commands.", nil, nil),
		failures: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "failures_total"),
			"Failures across all tracked commands.", nil, nil),
		lastUpdated: prometheus.NewDesc(prometheus.BuildFQName(namespace, "store", "last_updated_timestamp_seconds"),
			"Unix time of the last store write.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.hookState
	ch <- c.hookFailures
	ch <- c.hookExecutions
	ch <- c.hookConsecutiveFail
	ch <- c.hookRetryIn
	ch <- c.hooksTracked
	ch <- c.hooksDisabled
	ch <- c.executions
	ch <- c.failures
	ch <- c.lastUpdated
}

// Collect implements prometheus.Collector. An unreadable store reports
// store_up 0 and no other series.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	doc, err := c.src.Snapshot()
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	hooks := doc.Hooks
	stats := store.ComputeStats(hooks, doc.GlobalStats.LastUpdated)
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)

	now := c.now()
	for key, st := range hooks {
		for _, s := range allStates {
			v := 0.0
			if st.State == s {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.hookState, prometheus.GaugeValue, v, key, s.String())
		}
		ch <- prometheus.MustNewConstMetric(c.hookFailures, prometheus.CounterValue, float64(st.FailureCount), key)
		ch <- prometheus.MustNewConstMetric(c.hookExecutions, prometheus.CounterValue, float64(st.ExecutionCount), key)
		ch <- prometheus.MustNewConstMetric(c.hookConsecutiveFail, prometheus.GaugeValue, float64(st.ConsecutiveFailures), key)
		if st.IsOpen() {
			ch <- prometheus.MustNewConstMetric(c.hookRetryIn, prometheus.GaugeValue, st.Remaining(now).Seconds(), key)
		}
	}

	ch <- prometheus.MustNewConstMetric(c.hooksTracked, prometheus.GaugeValue, float64(stats.HooksTracked))
	ch <- prometheus.MustNewConstMetric(c.hooksDisabled, prometheus.GaugeValue, float64(stats.HooksDisabled))
	ch <- prometheus.MustNewConstMetric(c.executions, prometheus.CounterValue, float64(stats.TotalExecutions))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(stats.TotalFailures))
	if !stats.LastUpdated.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastUpdated, prometheus.GaugeValue, float64(stats.LastUpdated.Unix()))
	}
}

// NewRegistry returns a registry holding only the breaker collector.
func NewRegistry(src Source, now func() time.Time) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(src, now)); err != nil {
		return nil, fmt.Errorf("register collector: %w", err)
	}
	return reg, nil
}

// WriteText gathers g and writes the text exposition format to w.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile writes the exposition atomically to path for node_exporter's
// textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write textfile %s: %w", path, err)
	}
	return nil
}
