// Package metrics exports upload and HTTP metrics to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filecatalog"

// Metrics holds the upload and HTTP collectors. The Observe methods are
// no-ops on a nil *Metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	itemsTotal     *prometheus.CounterVec
	itemDuration   *prometheus.HistogramVec
	uploadedBytes  prometheus.Counter
	divergentTotal prometheus.Counter
	batchesTotal   prometheus.Counter
	skippedTotal   prometheus.Counter
	batchDuration  prometheus.Histogram
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. When reg is nil a
// fresh registry is used. Collectors already registered under the same name
// are reused.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	var err error
	m := &Metrics{gatherer: reg}

	if m.itemsTotal, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "items_total",
		Help:      "Processed upload items by status and failure kind.",
	}, []string{"status", "kind"})); err != nil {
		return nil, err
	}
	if m.itemDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "item_duration_seconds",
		Help:      "Time spent on a single item, from resolution to catalog commit.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if m.uploadedBytes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "uploaded_bytes_total",
		Help:      "Cumulative size of files that were stored and cataloged.",
	})); err != nil {
		return nil, err
	}
	if m.divergentTotal, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "divergent_items_total",
		Help:      "Objects written to storage without a catalog record.",
	})); err != nil {
		return nil, err
	}
	if m.batchesTotal, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "batches_total",
		Help:      "Processed upload batches.",
	})); err != nil {
		return nil, err
	}
	if m.skippedTotal, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "skipped_items_total",
		Help:      "Items skipped because they carried no file name.",
	})); err != nil {
		return nil, err
	}
	if m.batchDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "batch_duration_seconds",
		Help:      "Time spent on a whole batch.",
		Buckets:   prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if m.httpRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "code"})); err != nil {
		return nil, err
	}
	if m.httpDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})); err != nil {
		return nil, err
	}

	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// ObserveItem records the outcome of one upload item.
func (m *Metrics) ObserveItem(res models.ItemResult, bytes int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	var kind string
	if res.Error != nil {
		kind = string(res.Error.Kind)
		if res.Error.Divergent {
			m.divergentTotal.Inc()
		}
	}
	m.itemsTotal.WithLabelValues(string(res.Status), kind).Inc()
	m.itemDuration.WithLabelValues(string(res.Status)).Observe(elapsed.Seconds())
	if res.Status == models.StatusSuccess {
		m.uploadedBytes.Add(float64(bytes))
	}
}

// ObserveBatch records one processed batch.
func (m *Metrics) ObserveBatch(items, skipped int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batchesTotal.Inc()
	m.skippedTotal.Add(float64(skipped))
	m.batchDuration.Observe(elapsed.Seconds())
}

// ObserveRequest records one HTTP request. An empty route is reported as
// "unmatched".
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
