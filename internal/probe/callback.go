package probe

import (
	"fmt"

	"github.com/banshee-data/usprobe/internal/monitoring"
	"github.com/banshee-data/usprobe/internal/transport"
)

// OnFrame is the transport's frame callback. It validates the frame against
// the current geometry, reconstructs it into the device buffers and hands a
// copy to the sink. Frames are discarded while frozen, disconnected or not
// scanning. A frame that does not fit the current geometry is dropped with
// ErrCorruptedFrame before any buffer is written.
func (d *Device) OnFrame(length int, data, header, geometry, modeHeader []byte) error {
	d.mu.Lock()
	d.stats.Received++
	if !d.connected || !d.scanning {
		d.stats.DroppedIdle++
		d.mu.Unlock()
		return nil
	}
	if d.frozen {
		d.stats.DroppedFrozen++
		// keep the reconciler fed so timer wraps during a freeze are counted
		if fh, err := transport.ParseFrameHeader(header); err == nil {
			d.reconciler.Reconcile(fh.TimeStamp)
		}
		d.mu.Unlock()
		return nil
	}

	frame, tsErr, err := d.reconstructLocked(length, data, header, geometry, modeHeader)
	if err != nil {
		d.stats.Corrupted++
		n := d.stats.Corrupted
		d.mu.Unlock()
		if monitoring.Every(n, 100) {
			monitoring.Logf("dropped corrupted frame (%d total): %v", n, err)
		}
		return err
	}
	sink := d.sink
	d.mu.Unlock()

	if sink != nil {
		sink.HandleFrame(frame)
	}
	return tsErr
}

func corrupted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptedFrame, fmt.Sprintf(format, args...))
}

// reconstructLocked does all validation before the first write. tsErr is a
// degraded timestamp on an otherwise good frame.
func (d *Device) reconstructLocked(length int, data, header, geometry, modeHeader []byte) (frame Frame, tsErr, err error) {
	if length < 0 || length > len(data) {
		return Frame{}, nil, corrupted("length %d exceeds data %d", length, len(data))
	}
	payload := data[:length]

	fh, err := transport.ParseFrameHeader(header)
	if err != nil {
		return Frame{}, nil, corrupted("%v", err)
	}
	gh, err := transport.ParseGeometryHeader(geometry)
	if err != nil {
		return Frame{}, nil, corrupted("%v", err)
	}

	p := &d.params
	if Mode(fh.Mode) != p.Mode {
		return Frame{}, nil, corrupted("frame mode %v, device mode %v", Mode(fh.Mode), p.Mode)
	}
	img := d.img
	if int(gh.LineCount) != img.lines || int(gh.SamplesPerLine) != img.samples ||
		int(gh.RawSamplesPerLine) != img.raw || int(gh.Decimation) != img.decimation {
		return Frame{}, nil, corrupted("geometry %dx%d/%d dec %d, expected %dx%d/%d dec %d",
			gh.LineCount, gh.SamplesPerLine, gh.RawSamplesPerLine, gh.Decimation,
			img.lines, img.samples, img.raw, img.decimation)
	}

	devicePath := p.Shared.UseDeviceFrameReconstruction || fh.Flags&transport.FlagDeviceReconstructed != 0
	pg, eg := d.primary.geometry, d.extra.geometry

	primarySize := pg.ByteSize()
	if pg.Layout == LayoutB && !devicePath {
		primarySize = hostBSize(img)
	}
	if len(payload) < primarySize {
		return Frame{}, nil, corrupted("payload %d bytes, primary section needs %d", len(payload), primarySize)
	}
	primarySrc := payload[:primarySize]

	extraSize := 0
	switch {
	case eg.Layout == LayoutNone:
	case eg.Layout.Rolling():
		mh, err := transport.ParseModeHeader(modeHeader)
		if err != nil {
			return Frame{}, nil, corrupted("%s section: %v", eg.Layout, err)
		}
		if mh.ColumnCount < 1 || int(mh.ColumnCount) > eg.Width {
			return Frame{}, nil, corrupted("%s column count %d outside [1, %d]", eg.Layout, mh.ColumnCount, eg.Width)
		}
		if eg.Layout == LayoutM && int32(mh.LineIndex) != p.M.LineIndex {
			return Frame{}, nil, corrupted("M line index %d, configured %d", mh.LineIndex, p.M.LineIndex)
		}
		extraSize = int(mh.ColumnCount) * eg.Height * eg.BytesPerSample
	default:
		extraSize = eg.ByteSize()
	}
	if len(payload) != primarySize+extraSize {
		return Frame{}, nil, corrupted("payload %d bytes, expected %d (primary %d + extra %d)",
			len(payload), primarySize+extraSize, primarySize, extraSize)
	}
	extraSrc := payload[primarySize:]

	if len(d.primary.buf) != pg.ByteSize() || len(d.extra.buf) != eg.ByteSize() {
		d.adjustBuffersLocked()
	}

	// validated; from here on every write is in bounds
	switch {
	case pg.Layout == LayoutB && devicePath:
		if err := FlipTexture(d.primary.buf, primarySrc, pg.Height, pg.RowPitch(), pg.BytesPerSample,
			fh.Flags&transport.FlagMirror != 0); err != nil {
			return Frame{}, nil, corrupted("%v", err)
		}
	case pg.Layout == LayoutB:
		hostReconstructB(d.primary.buf, primarySrc, img, d.lut)
	default:
		copy(d.primary.buf, primarySrc)
	}

	switch {
	case eg.Layout == LayoutNone:
	case eg.Layout.Rolling():
		revolving := eg.Layout == LayoutM && p.M.RevolvingEnabled
		d.extra.cursor = writeColumns(d.extra.buf, extraSrc, eg.Width, eg.Height, eg.BytesPerSample,
			d.extra.cursor, revolving)
	default:
		copy(d.extra.buf, extraSrc)
	}

	ts, tsErr := d.reconciler.Reconcile(fh.TimeStamp)
	d.sequence++
	d.stats.Reconstructed++
	d.stats.LastFrameIndex = fh.FrameIndex

	frame = Frame{
		SessionID:       d.sessionID,
		Sequence:        d.sequence,
		FrameIndex:      fh.FrameIndex,
		TimestampTicks:  fh.TimeStamp,
		Timestamp:       ts,
		HostTime:        d.reconciler.HostTime(ts),
		Mode:            p.Mode,
		ExtraSourceMode: p.ExtraSourceMode,
		Primary: Image{
			Geometry: pg,
			Spacing:  d.primary.spacing,
			Data:     cloneBytes(d.primary.buf),
		},
	}
	if eg.Layout != LayoutNone {
		frame.Extra = &Image{
			Geometry: eg,
			Spacing:  d.extra.spacing,
			Data:     cloneBytes(d.extra.buf),
		}
	}
	return frame, tsErr, nil
}
