package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesDesc = prometheus.NewDesc("usprobe_frames_total",
		"Frame callbacks by outcome.", []string{"outcome"}, nil)
	sinkDroppedDesc = prometheus.NewDesc("usprobe_sink_dropped_total",
		"Frames dropped because the sink queue was full.", nil, nil)
	timerWrapsDesc = prometheus.NewDesc("usprobe_timer_wraps_total",
		"Hardware timer wraps compensated this session.", nil, nil)
	degradedDesc = prometheus.NewDesc("usprobe_degraded_timestamps_total",
		"Timestamps clamped to keep output non-decreasing.", nil, nil)
	stateDesc = prometheus.NewDesc("usprobe_state",
		"Device state flags, 1 when set.", []string{"state"}, nil)
	frameIntervalDesc = prometheus.NewDesc("usprobe_frame_interval_ms",
		"Frame interval over the cadence window.", []string{"stat"}, nil)
	fpsDesc = prometheus.NewDesc("usprobe_frames_per_second",
		"Mean frame rate over the cadence window.", nil, nil)
)

// collector reads the device at scrape time, so it never goes stale and
// needs no updates on the frame path.
type collector struct {
	m *Monitor
}

func (c collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{framesDesc, sinkDroppedDesc, timerWrapsDesc, degradedDesc, stateDesc, frameIntervalDesc, fpsDesc} {
		ch <- d
	}
}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Status()
	f := s.Frames

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(framesDesc, f.Received, "received")
	counter(framesDesc, f.Reconstructed, "reconstructed")
	counter(framesDesc, f.DroppedFrozen, "frozen")
	counter(framesDesc, f.DroppedIdle, "idle")
	counter(framesDesc, f.Corrupted, "corrupted")
	counter(sinkDroppedDesc, f.SinkDropped)
	counter(timerWrapsDesc, f.TimerWraps)
	counter(degradedDesc, f.Degraded)

	for state, on := range map[string]bool{"connected": s.Connected, "scanning": s.Scanning, "frozen": s.Frozen} {
		v := 0.0
		if on {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(stateDesc, prometheus.GaugeValue, v, state)
	}

	cs := s.Cadence
	if cs.Samples == 0 {
		return
	}
	for stat, v := range map[string]float64{"mean": cs.MeanMs, "stddev": cs.StdDevMs, "p50": cs.P50Ms, "p95": cs.P95Ms, "max": cs.MaxMs} {
		ch <- prometheus.MustNewConstMetric(frameIntervalDesc, prometheus.GaugeValue, v, stat)
	}
	ch <- prometheus.MustNewConstMetric(fpsDesc, prometheus.GaugeValue, cs.FPS)
}

// Registry returns a registry holding the probe collector plus the Go
// runtime and process collectors.
func (m *Monitor) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector{m: m},
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler serves the registry in the Prometheus text format.
func (m *Monitor) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
}
