// Package monitor is the probe's debug surface: live status, cadence
// statistics and timestamp plots served under /debug/.
package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/usprobe/internal/httputil"
	"github.com/banshee-data/usprobe/internal/probe"
	"github.com/banshee-data/usprobe/internal/version"
)

// Device is the part of probe.Device the monitor reads.
type Device interface {
	Stats() probe.Stats
	Parameters() probe.Parameters
	GetFPGARevDateString() string
	PrimarySourceSpacing() []float64
	ExtraSourceSpacing() []float64
	FreezeDevice(freeze bool) error
}

// Monitor collects frame statistics and serves them. It is a probe.FrameSink.
type Monitor struct {
	device  Device
	cadence *Cadence
	plotter *TimestampPlotter
	started time.Time

	// dropped reports frames lost between the device and the sinks, if set.
	dropped func() uint64
}

var _ probe.FrameSink = (*Monitor)(nil)

func New(device Device) *Monitor {
	return &Monitor{
		device:  device,
		cadence: NewCadence(DefaultCadenceWindow),
		plotter: NewTimestampPlotter(DefaultPlotPoints),
		started: time.Now(),
	}
}

// SetDroppedFunc reports sink queue drops in the status page.
func (m *Monitor) SetDroppedFunc(f func() uint64) { m.dropped = f }

func (m *Monitor) HandleFrame(f probe.Frame) {
	m.cadence.HandleFrame(f)
	m.plotter.HandleFrame(f)
}

func (m *Monitor) Cadence() *Cadence          { return m.cadence }
func (m *Monitor) Plotter() *TimestampPlotter { return m.plotter }

// Status is the JSON body of /debug/probe.
type Status struct {
	Version         string              `json:"version"`
	Uptime          string              `json:"uptime"`
	SessionID       uuid.UUID           `json:"session_id"`
	Connected       bool                `json:"connected"`
	Scanning        bool                `json:"scanning"`
	Frozen          bool                `json:"frozen"`
	FPGARev         string              `json:"fpga_rev"`
	Mode            probe.Mode          `json:"mode"`
	ExtraSourceMode probe.Mode          `json:"extra_source_mode"`
	Primary         probe.FrameGeometry `json:"primary"`
	Extra           probe.FrameGeometry `json:"extra"`
	PrimarySpacing  []float64           `json:"primary_spacing"`
	ExtraSpacing    []float64           `json:"extra_spacing"`
	Frames          FrameCounters       `json:"frames"`
	Cadence         CadenceSummary      `json:"cadence"`
}

type FrameCounters struct {
	Received      uint64  `json:"received"`
	Reconstructed uint64  `json:"reconstructed"`
	DroppedFrozen uint64  `json:"dropped_frozen"`
	DroppedIdle   uint64  `json:"dropped_idle"`
	Corrupted     uint64  `json:"corrupted"`
	SinkDropped   uint64  `json:"sink_dropped"`
	TimerWraps    uint64  `json:"timer_wraps"`
	Degraded      uint64  `json:"degraded_timestamps"`
	LastTimestamp float64 `json:"last_timestamp"`
}

// Status snapshots the device and the cadence.
func (m *Monitor) Status() Status {
	st := m.device.Stats()
	p := m.device.Parameters()
	s := Status{
		Version:         version.String(),
		Uptime:          time.Since(m.started).Truncate(time.Second).String(),
		SessionID:       st.SessionID,
		Connected:       st.Connected,
		Scanning:        st.Scanning,
		Frozen:          st.Frozen,
		FPGARev:         m.device.GetFPGARevDateString(),
		Mode:            p.Mode,
		ExtraSourceMode: p.ExtraSourceMode,
		Primary:         st.PrimaryGeometry,
		Extra:           st.ExtraGeometry,
		PrimarySpacing:  m.device.PrimarySourceSpacing(),
		ExtraSpacing:    m.device.ExtraSourceSpacing(),
		Frames: FrameCounters{
			Received:      st.Received,
			Reconstructed: st.Reconstructed,
			DroppedFrozen: st.DroppedFrozen,
			DroppedIdle:   st.DroppedIdle,
			Corrupted:     st.Corrupted,
			TimerWraps:    st.TimerWraps,
			Degraded:      st.DegradedTimes,
			LastTimestamp: st.LastTimestamp,
		},
		Cadence: m.cadence.Summary(),
	}
	if m.dropped != nil {
		s.Frames.SinkDropped = m.dropped()
	}
	return s
}

// AttachAdminRoutes mounts the probe pages under /debug/.
func (m *Monitor) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("probe", "Probe status and frame counters (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONIndent(w, m.Status())
	})

	debug.HandleFunc("probe/tgc", "Time gain compensation curve", func(w http.ResponseWriter, r *http.Request) {
		writeChart(w, tgcChart(m.device.Parameters()))
	})

	debug.HandleFunc("probe/intervals", "Recent frame intervals", func(w http.ResponseWriter, r *http.Request) {
		writeChart(w, intervalChart(m.cadence.Intervals(), m.cadence.Summary()))
	})

	debug.HandleFunc("probe/timestamps.png", "Hardware vs reconciled frame timestamps", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := m.plotter.WritePNG(&buf); err != nil {
			http.Error(w, fmt.Sprintf("no plot: %v", err), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	})

	debug.HandleSilentFunc("probe/freeze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w, http.MethodPost)
			return
		}
		on, err := strconv.ParseBool(r.FormValue("on"))
		if err != nil {
			httputil.BadRequest(w, "on must be true or false")
			return
		}
		if err := m.device.FreezeDevice(on); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		fmt.Fprintf(w, "frozen=%v\n", on)
	})
}
