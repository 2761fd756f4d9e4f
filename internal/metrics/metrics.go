// Package metrics turns pipeline events into Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gookit/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"olt-collector/internal/domain"
)

const (
	Prefix      = "olt_collector_"
	MetricsPath = "/metrics"
)

type Collector struct {
	cycles          *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	samplesWritten  *prometheus.CounterVec
	recordsDropped  *prometheus.CounterVec
	triggersDropped *prometheus.CounterVec
	lastSuccess     *prometheus.GaugeVec
}

// New registers the pipeline metrics on registry
func New(registry prometheus.Registerer) *Collector {
	registry = prometheus.WrapRegistererWithPrefix(Prefix, registry)

	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cycles_total",
			Help: "Poll cycles by outcome (ok or error kind).",
		}, []string{"olt", "result"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cycle_duration_seconds",
			Help:    "Wall time of a poll cycle.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"olt"}),
		samplesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "samples_written_total",
			Help: "Power samples appended to the time series.",
		}, []string{"olt"}),
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "records_dropped_total",
			Help: "Device records that produced no sample.",
		}, []string{"olt", "reason"}),
		triggersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triggers_dropped_total",
			Help: "Poll triggers dropped because a cycle was still running.",
		}, []string{"olt"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "last_success_timestamp_seconds",
			Help: "Cycle timestamp of the last successful poll.",
		}, []string{"olt"}),
	}

	registry.MustRegister(
		c.cycles,
		c.cycleDuration,
		c.samplesWritten,
		c.recordsDropped,
		c.triggersDropped,
		c.lastSuccess,
	)

	return c
}

// Observe records a finished cycle
func (c *Collector) Observe(result domain.CycleResult) {
	c.cycles.WithLabelValues(result.OltID, domain.ErrorKind(result.Err)).Inc()
	c.cycleDuration.WithLabelValues(result.OltID).Observe(result.Duration.Seconds())

	if result.Dropped > 0 {
		c.recordsDropped.WithLabelValues(result.OltID, "normalization").Add(float64(result.Dropped))
	}
	if result.Unresolved > 0 {
		c.recordsDropped.WithLabelValues(result.OltID, "unresolved").Add(float64(result.Unresolved))
	}

	if result.Err != nil {
		return
	}

	c.samplesWritten.WithLabelValues(result.OltID).Add(float64(result.SamplesWritten))
	c.lastSuccess.WithLabelValues(result.OltID).Set(float64(result.StartedAt.UnixMilli()) / 1e3)
}

// TriggerDropped records a trigger that hit a running cycle
func (c *Collector) TriggerDropped(oltID string) {
	c.triggersDropped.WithLabelValues(oltID).Inc()
}

// RegisterEventListeners feeds the collector from the event bus
func (c *Collector) RegisterEventListeners(em *event.Manager) {
	em.On(domain.EventCycleFinished, event.ListenerFunc(func(e event.Event) error {
		if result, ok := e.Get("result").(domain.CycleResult); ok {
			c.Observe(result)
		}
		return nil
	}))

	em.On(domain.EventTriggerDropped, event.ListenerFunc(func(e event.Event) error {
		if oltID, ok := e.Get("olt").(string); ok {
			c.TriggerDropped(oltID)
		}
		return nil
	}))
}

// Serve exposes the gatherer on listen until ctx is done
func Serve(ctx context.Context, listen string, gatherer prometheus.Gatherer, log domain.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.WithFields(map[string]any{
		"listen": listen,
		"path":   MetricsPath,
	}).Info("Servidor de métricas iniciado")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
