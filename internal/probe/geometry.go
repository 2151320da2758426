package probe

import "math"

const (
	// ADCFrequencyHz is the sampling rate of the receive ADC, which also
	// clocks the frame timestamp counter.
	ADCFrequencyHz = 60e6
	// SpeedOfSoundMmPerUs is the speed of sound assumed in tissue.
	SpeedOfSoundMmPerUs = 1.54
	// MmPerSample is the axial distance covered by one raw sample, counting
	// the round trip.
	MmPerSample = SpeedOfSoundMmPerUs / (2 * ADCFrequencyHz / 1e6)
	// PWSpectrumBins is the height of a pulsed wave spectrum column.
	PWSpectrumBins = 256
)

// FrameGeometry is the voxel shape of one frame section.
type FrameGeometry struct {
	Layout         Layout `json:"layout"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Depth          int    `json:"depth"`
	BytesPerSample int    `json:"bytes_per_sample"`
}

// ByteSize is Width*Height*Depth*BytesPerSample.
func (g FrameGeometry) ByteSize() int {
	return g.Width * g.Height * g.Depth * g.BytesPerSample
}

// RowPitch is the number of bytes in one row.
func (g FrameGeometry) RowPitch() int { return g.Width * g.BytesPerSample }

// scan is the per-line sample geometry for a given depth.
type scan struct {
	lines      int
	raw        int
	samples    int
	decimation int
	depthMm    float64
	widthMm    float64
}

func newScan(depthMm float64, decimation int, td Transducer) scan {
	raw := int(math.Ceil(depthMm / MmPerSample))
	if rem := raw % decimation; rem != 0 {
		raw += decimation - rem
	}
	return scan{
		lines:      td.Elements,
		raw:        raw,
		samples:    raw / decimation,
		decimation: decimation,
		depthMm:    depthMm,
		widthMm:    td.WidthMm,
	}
}

// scans returns the imaging scan and the M-mode scan, which may use its own
// depth.
func (p *Parameters) scans() (img, m scan) {
	td, err := LookupTransducer(p.Shared.TransducerID)
	if err != nil {
		td = DefaultTransducer
	}
	dec := int(p.Shared.SSDecimation)
	img = newScan(p.Shared.ScanDepthMm, dec, td)
	m = img
	if p.M.Depth > 0 {
		m = newScan(float64(p.M.Depth), dec, td)
	}
	return img, m
}

func geometryFor(l Layout, p *Parameters, img, m scan) FrameGeometry {
	g := FrameGeometry{Layout: l, Depth: 1}
	switch l {
	case LayoutB:
		g.Width, g.Height, g.BytesPerSample = img.lines, img.samples, 1
	case LayoutCFD:
		g.Width, g.Height, g.BytesPerSample = img.lines, img.samples, 2
	case LayoutRF:
		g.Width, g.Height, g.BytesPerSample = img.raw, img.lines, 2
	case LayoutM:
		g.Width, g.Height, g.BytesPerSample = int(p.M.Width), m.samples, 1
	case LayoutPW:
		g.Width, g.Height, g.BytesPerSample = int(p.M.Width), PWSpectrumBins, 1
	case LayoutARFI:
		g.Width = int(p.ARFI.StopSample - p.ARFI.StartSample)
		g.Height = len(p.ARFI.PushConfiguration)
		g.Depth = int(p.ARFI.MultiFocalZoneCount)
		g.BytesPerSample = 2
	default:
		return FrameGeometry{}
	}
	return g
}

// spacingFor returns mm per pixel on each axis. Rolling layouts use
// milliseconds per column on the first axis.
func spacingFor(l Layout, p *Parameters, img, m scan) [3]float64 {
	lateral := img.widthMm / float64(img.lines-1)
	switch l {
	case LayoutB, LayoutCFD:
		return [3]float64{lateral, img.depthMm / float64(img.samples-1), 1}
	case LayoutRF:
		return [3]float64{img.depthMm / float64(img.raw-1), lateral, 1}
	case LayoutM:
		return [3]float64{1000 / mColumnRate(&p.M), m.depthMm / float64(m.samples-1), 1}
	case LayoutPW:
		return [3]float64{1000 / mColumnRate(&p.M), 1, 1}
	case LayoutARFI:
		return [3]float64{MmPerSample, lateral, 1}
	default:
		return [3]float64{1, 1, 1}
	}
}
