package probe

import (
	"encoding/binary"
	"time"

	"github.com/banshee-data/usprobe/internal/transport"
)

// SyntheticFrame builds the record a probe would send for frame seq with the
// given parameters. Rolling sections carry one column. It drives the
// simulator in dev mode and the tests.
func SyntheticFrame(p Parameters, seq, ticks uint32, deviceReconstructed bool) transport.Record {
	img, m := p.scans()
	pl, el := layouts(p.Mode, p.ExtraSourceMode)
	pg := geometryFor(pl, &p, img, m)
	eg := geometryFor(el, &p, img, m)

	var flags uint8
	if deviceReconstructed {
		flags |= transport.FlagDeviceReconstructed
	}
	rec := transport.Record{
		Header: transport.MarshalFrameHeader(transport.FrameHeader{
			Flags:      flags,
			FrameIndex: seq,
			TimeStamp:  ticks,
			Mode:       uint8(p.Mode),
		}),
		Geometry: transport.MarshalGeometryHeader(transport.GeometryHeader{
			LineCount:         uint16(img.lines),
			SamplesPerLine:    uint16(img.samples),
			RawSamplesPerLine: uint16(img.raw),
			Decimation:        uint8(img.decimation),
			DepthMm:           float32(img.depthMm),
		}),
	}

	var payload []byte
	if pl == LayoutB && !deviceReconstructed && !p.Shared.UseDeviceFrameReconstruction {
		payload = syntheticRaw(img, p.Shared.Compression, seq)
	} else {
		payload = syntheticPattern(pg.ByteSize(), seq)
	}

	switch {
	case el == LayoutNone:
	case el.Rolling():
		rec.ModeHeader = transport.MarshalModeHeader(transport.ModeHeader{
			LineIndex:   uint16(p.M.LineIndex),
			ColumnCount: 1,
		})
		payload = append(payload, syntheticPattern(eg.Height*eg.BytesPerSample, seq)...)
	default:
		payload = append(payload, syntheticPattern(eg.ByteSize(), seq)...)
	}
	rec.Payload = payload
	return rec
}

func syntheticPattern(n int, seq uint32) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(uint32(i) + seq)
	}
	return b
}

// syntheticRaw fills raw envelope samples spanning the compression range.
func syntheticRaw(sc scan, c Compression, seq uint32) []byte {
	b := make([]byte, hostBSize(sc))
	span := uint32(c.MaxValue - c.MinValue)
	for line := 0; line < sc.lines; line++ {
		for s := 0; s < sc.raw; s++ {
			v := uint32(c.MinValue) + (uint32(line*7+s*13)+seq)%span
			binary.LittleEndian.PutUint16(b[(line*sc.raw+s)*2:], uint16(v))
		}
	}
	return b
}

// TicksPerInterval converts a frame interval to ADC timestamp ticks.
func TicksPerInterval(interval time.Duration) uint32 {
	return uint32(interval.Seconds() * ADCFrequencyHz)
}

// SyntheticGenerator returns a generator for transport.Simulator.Run that
// follows the device's parameters at the time of each frame.
func SyntheticGenerator(d *Device, interval time.Duration) func(seq uint32) (transport.Record, error) {
	step := TicksPerInterval(interval)
	return func(seq uint32) (transport.Record, error) {
		p := d.Parameters()
		return SyntheticFrame(p, seq, seq*step, p.Shared.UseDeviceFrameReconstruction), nil
	}
}
