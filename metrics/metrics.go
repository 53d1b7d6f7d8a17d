package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

/* OpenTelemetry instrumentation with Prometheus export.
 *
 * Counters track callback ingestion and sync outcomes; observable gauges
 * report the record population per lifecycle state and the size of the
 * event log, read from the store on scrape.
 */

// Collector reads gauge values from the durable store on each scrape.
// Implemented by the sqlite repository.
type Collector interface {
	// StateCounts returns the number of webhook records per lifecycle state
	StateCounts(ctx context.Context) (map[string]int64, error)

	// EventCount returns the total number of persisted callback events
	EventCount(ctx context.Context) (int64, error)
}

type Exporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector

	meter           metric.Meter
	callbackCounter metric.Int64Counter
	syncCounter     metric.Int64Counter
	recordGauge     metric.Int64ObservableGauge
	eventGauge      metric.Int64ObservableGauge
}

// NewExporter creates the exporter and registers all instruments
func NewExporter(collector Collector) (*Exporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"trellohooks",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	e := &Exporter{
		meterProvider: meterProvider,
		collector:     collector,
		meter:         meter,
	}

	if err := e.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}
	return e, nil
}

func (e *Exporter) registerInstruments() error {
	var err error

	e.callbackCounter, err = e.meter.Int64Counter(
		"trello.callbacks",
		metric.WithDescription("Inbound callback deliveries by result"),
		metric.WithUnit("{callbacks}"),
	)
	if err != nil {
		return fmt.Errorf("creating callback counter: %w", err)
	}

	e.syncCounter, err = e.meter.Int64Counter(
		"trello.syncs",
		metric.WithDescription("Webhook sync operations by outcome"),
		metric.WithUnit("{syncs}"),
	)
	if err != nil {
		return fmt.Errorf("creating sync counter: %w", err)
	}

	e.recordGauge, err = e.meter.Int64ObservableGauge(
		"trello.webhook.records",
		metric.WithDescription("Webhook records per lifecycle state"),
		metric.WithUnit("{records}"),
		metric.WithInt64Callback(e.observeRecords),
	)
	if err != nil {
		return fmt.Errorf("creating record gauge: %w", err)
	}

	e.eventGauge, err = e.meter.Int64ObservableGauge(
		"trello.callback.events",
		metric.WithDescription("Total persisted callback events"),
		metric.WithUnit("{events}"),
		metric.WithInt64Callback(e.observeEvents),
	)
	if err != nil {
		return fmt.Errorf("creating event gauge: %w", err)
	}

	return nil
}

func (e *Exporter) observeRecords(ctx context.Context, observer metric.Int64Observer) error {
	if e.collector == nil {
		return nil
	}
	counts, err := e.collector.StateCounts(ctx)
	if err != nil {
		return fmt.Errorf("collecting state counts: %w", err)
	}
	for state, count := range counts {
		observer.Observe(count, metric.WithAttributes(attribute.String("state", state)))
	}
	return nil
}

func (e *Exporter) observeEvents(ctx context.Context, observer metric.Int64Observer) error {
	if e.collector == nil {
		return nil
	}
	count, err := e.collector.EventCount(ctx)
	if err != nil {
		return fmt.Errorf("collecting event count: %w", err)
	}
	observer.Observe(count)
	return nil
}

// RecordCallback counts one inbound callback by result (ok, not_found,
// malformed, error). Implements webhook.Recorder.
func (e *Exporter) RecordCallback(ctx context.Context, result string) {
	e.callbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordSync counts one sync operation by outcome (registered, orphaned,
// unregistered, error). Implements webhook.Recorder.
func (e *Exporter) RecordSync(ctx context.Context, outcome string) {
	e.syncCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Handler returns the Prometheus scrape endpoint
func (e *Exporter) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.meterProvider.Shutdown(ctx)
}
