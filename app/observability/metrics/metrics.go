package metrics

import (
	"context"
	"log"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the query cache instruments.
type AppMetrics struct {
	CacheHitsTotal            metric.Int64Counter
	CacheMissesTotal          metric.Int64Counter
	CacheFetchesTotal         metric.Int64Counter
	CacheFetchDurationSeconds metric.Float64Histogram
	CacheFetchErrorsTotal     metric.Int64Counter
	CacheDedupJoinsTotal      metric.Int64Counter
	CacheStaleDiscardsTotal   metric.Int64Counter
	MutationsTotal            metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// Shell-level counters, registered on the default prometheus registry.
var (
	GuardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_guard_decisions_total",
		Help: "Route guard decisions by outcome",
	}, []string{"decision"})

	SessionClears = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_session_clears_total",
		Help: "Client session resets by reason",
	}, []string{"reason"})

	ConfirmationsRequired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_confirmations_required_total",
		Help: "Destructive requests answered with a confirmation prompt",
	}, []string{"route"})
)

// InitAppMetrics initializes the global instruments once, from the globally
// configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		m, err := New(otel.GetMeterProvider().Meter("CitizenPortal"))
		if err != nil {
			log.Fatalf("Metrics: %v", err)
		}
		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// New creates the instruments on the given meter.
func New(meter metric.Meter) (*AppMetrics, error) {
	var err error
	m := &AppMetrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.CacheHitsTotal, "querycache_hits_total", "Queries answered from a fresh cache entry", "{query}"},
		{&m.CacheMissesTotal, "querycache_misses_total", "Queries that had to wait for a fetch", "{query}"},
		{&m.CacheFetchesTotal, "querycache_fetches_total", "Fetches started by the query cache", "{fetch}"},
		{&m.CacheFetchErrorsTotal, "querycache_fetch_errors_total", "Fetches that resolved with an error", "{error}"},
		{&m.CacheDedupJoinsTotal, "querycache_dedup_joins_total", "Queries that joined an in-flight fetch", "{query}"},
		{&m.CacheStaleDiscardsTotal, "querycache_stale_discards_total", "Fetch resolutions discarded as superseded", "{fetch}"},
		{&m.MutationsTotal, "querycache_mutations_total", "Mutations run through the query cache", "{mutation}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
	}

	m.CacheFetchDurationSeconds, err = meter.Float64Histogram(
		"querycache_fetch_duration_seconds",
		metric.WithDescription("Duration of cache fetches in seconds, retries included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}

// Add increments c by one, tagged with the resource kind.
func (m *AppMetrics) Add(ctx context.Context, c metric.Int64Counter, kind string) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Observe records a fetch duration for the resource kind.
func (m *AppMetrics) Observe(ctx context.Context, seconds float64, kind string) {
	if m == nil || m.CacheFetchDurationSeconds == nil {
		return
	}
	m.CacheFetchDurationSeconds.Record(ctx, seconds, metric.WithAttributes(attribute.String("kind", kind)))
}
