package dashboard

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts ingest and render activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	FramesReceived prometheus.Counter
	RecordsDecoded prometheus.Counter
	DecodeErrors   prometheus.Counter
	Redraws        prometheus.Counter
	SinkErrors     prometheus.Counter
	Connected      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simdash", Name: "frames_received_total",
			Help: "Binary frames read from the stream.",
		}),
		RecordsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simdash", Name: "records_decoded_total",
			Help: "Frames decoded into partition state records.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simdash", Name: "decode_errors_total",
			Help: "Frames dropped because they failed to decode.",
		}),
		Redraws: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simdash", Name: "redraws_total",
			Help: "Redraw calls made on the render sink.",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simdash", Name: "sink_errors_total",
			Help: "Redraw calls that returned an error.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simdash", Name: "connected",
			Help: "1 while a stream connection is open.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.FramesReceived, m.RecordsDecoded, m.DecodeErrors, m.Redraws, m.SinkErrors, m.Connected)
	}
	return m
}

func (m *Metrics) frame() {
	if m != nil {
		m.FramesReceived.Inc()
	}
}

func (m *Metrics) decoded() {
	if m != nil {
		m.RecordsDecoded.Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.DecodeErrors.Inc()
	}
}

func (m *Metrics) redraw(err error) {
	if m == nil {
		return
	}
	m.Redraws.Inc()
	if err != nil {
		m.SinkErrors.Inc()
	}
}

func (m *Metrics) connected(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// MetricsHandler serves the collectors gathered by g.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
