package monitor

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/usprobe/internal/probe"
)

// DefaultCadenceWindow is how many frame intervals Cadence keeps.
const DefaultCadenceWindow = 512

// Cadence tracks the interval between consecutive reconstructed frames, in
// milliseconds of reconciled probe time.
type Cadence struct {
	mu        sync.Mutex
	window    int
	session   uuid.UUID
	last      float64
	have      bool
	intervals []float64 // ring buffer
	next      int
	frames    uint64
}

// CadenceSummary describes the recent frame intervals.
type CadenceSummary struct {
	Frames   uint64  `json:"frames"`
	Samples  int     `json:"samples"`
	MeanMs   float64 `json:"mean_ms"`
	StdDevMs float64 `json:"stddev_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	MaxMs    float64 `json:"max_ms"`
	FPS      float64 `json:"fps"`
}

func NewCadence(window int) *Cadence {
	if window < 2 {
		window = DefaultCadenceWindow
	}
	return &Cadence{window: window, intervals: make([]float64, 0, window)}
}

// HandleFrame records the interval since the previous frame of the same
// session.
func (c *Cadence) HandleFrame(f probe.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	if f.SessionID != c.session {
		c.session = f.SessionID
		c.have = false
		c.intervals = c.intervals[:0]
		c.next = 0
	}
	if c.have {
		c.add((f.Timestamp - c.last) * 1000)
	}
	c.last = f.Timestamp
	c.have = true
}

func (c *Cadence) add(ms float64) {
	if len(c.intervals) < c.window {
		c.intervals = append(c.intervals, ms)
		return
	}
	c.intervals[c.next] = ms
	c.next = (c.next + 1) % c.window
}

// Intervals returns the recorded intervals, oldest first.
func (c *Cadence) Intervals() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, 0, len(c.intervals))
	out = append(out, c.intervals[c.next:]...)
	out = append(out, c.intervals[:c.next]...)
	return out
}

// Summary computes statistics over the recorded intervals.
func (c *Cadence) Summary() CadenceSummary {
	xs := c.Intervals()
	c.mu.Lock()
	s := CadenceSummary{Frames: c.frames, Samples: len(xs)}
	c.mu.Unlock()
	if len(xs) == 0 {
		return s
	}

	s.MeanMs, s.StdDevMs = stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		s.StdDevMs = 0
	}
	sort.Float64s(xs)
	s.P50Ms = stat.Quantile(0.5, stat.Empirical, xs, nil)
	s.P95Ms = stat.Quantile(0.95, stat.Empirical, xs, nil)
	s.MaxMs = xs[len(xs)-1]
	if s.MeanMs > 0 {
		s.FPS = 1000 / s.MeanMs
	}
	return s
}
