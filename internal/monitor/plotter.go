package monitor

import (
	"fmt"
	"image/color"
	"io"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/usprobe/internal/probe"
)

// DefaultPlotPoints bounds the number of frames a TimestampPlotter keeps.
const DefaultPlotPoints = 4096

// TimestampPlotter records the raw hardware clock and the reconciled
// timestamp of each frame so timer wraps and clamping can be inspected.
type TimestampPlotter struct {
	mu      sync.Mutex
	max     int
	session uuid.UUID
	points  []timestampPoint
}

type timestampPoint struct {
	sequence   uint64
	hardware   float64 // seconds, wraps every 2^32 ticks
	reconciled float64
}

func NewTimestampPlotter(maxPoints int) *TimestampPlotter {
	if maxPoints < 1 {
		maxPoints = DefaultPlotPoints
	}
	return &TimestampPlotter{max: maxPoints}
}

func (tp *TimestampPlotter) HandleFrame(f probe.Frame) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if f.SessionID != tp.session {
		tp.session = f.SessionID
		tp.points = tp.points[:0]
	}
	if len(tp.points) == tp.max {
		copy(tp.points, tp.points[1:])
		tp.points = tp.points[:tp.max-1]
	}
	tp.points = append(tp.points, timestampPoint{
		sequence:   f.Sequence,
		hardware:   float64(f.TimestampTicks) / probe.ADCFrequencyHz,
		reconciled: f.Timestamp,
	})
}

// Len is the number of recorded frames.
func (tp *TimestampPlotter) Len() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.points)
}

// Plot builds the hardware vs reconciled time plot.
func (tp *TimestampPlotter) Plot() (*plot.Plot, error) {
	tp.mu.Lock()
	hw := make(plotter.XYs, len(tp.points))
	rec := make(plotter.XYs, len(tp.points))
	for i, pt := range tp.points {
		hw[i] = plotter.XY{X: float64(pt.sequence), Y: pt.hardware}
		rec[i] = plotter.XY{X: float64(pt.sequence), Y: pt.reconciled}
	}
	session := tp.session
	tp.mu.Unlock()

	if len(hw) == 0 {
		return nil, fmt.Errorf("no frames recorded")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Frame timestamps (session %s)", session)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Time (s)"

	hwLine, err := plotter.NewLine(hw)
	if err != nil {
		return nil, fmt.Errorf("hardware line: %w", err)
	}
	hwLine.Color = color.RGBA{R: 200, G: 80, B: 40, A: 255}
	hwLine.Width = vg.Points(1)

	recLine, err := plotter.NewLine(rec)
	if err != nil {
		return nil, fmt.Errorf("reconciled line: %w", err)
	}
	recLine.Color = color.RGBA{R: 30, G: 100, B: 200, A: 255}
	recLine.Width = vg.Points(1.5)

	p.Add(plotter.NewGrid(), hwLine, recLine)
	p.Legend.Add("hardware clock", hwLine)
	p.Legend.Add("reconciled", recLine)
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// WritePNG renders the plot as a PNG.
func (tp *TimestampPlotter) WritePNG(w io.Writer) error {
	p, err := tp.Plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Save writes the plot to path; the format follows the extension.
func (tp *TimestampPlotter) Save(path string) error {
	p, err := tp.Plot()
	if err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}
