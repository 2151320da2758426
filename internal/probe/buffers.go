package probe

// recomputeLocked refreshes the scan geometry, both channel geometries and
// spacings, and the compression table. Buffers follow only while connected;
// before that they are allocated by Connect.
func (d *Device) recomputeLocked() {
	d.img, d.mscan = d.params.scans()
	pl, el := layouts(d.params.Mode, d.params.ExtraSourceMode)

	d.primary.geometry = geometryFor(pl, &d.params, d.img, d.mscan)
	d.extra.geometry = geometryFor(el, &d.params, d.img, d.mscan)
	d.primary.spacing = spacingFor(pl, &d.params, d.img, d.mscan)
	d.extra.spacing = spacingFor(el, &d.params, d.img, d.mscan)

	if d.lut == nil || d.lutFor != d.params.Shared.Compression {
		d.lut = compressionLUT(d.params.Shared.Compression)
		d.lutFor = d.params.Shared.Compression
	}
	if d.connected {
		d.adjustBuffersLocked()
	}
}

// adjustBuffersLocked reallocates a channel buffer only when its byte size
// changed. A fresh buffer also resets the rolling cursor.
func (d *Device) adjustBuffersLocked() {
	for _, ch := range []*channel{&d.primary, &d.extra} {
		n := ch.geometry.ByteSize()
		if len(ch.buf) == n && ch.buf != nil {
			continue
		}
		ch.cursor = 0
		if n == 0 {
			ch.buf = nil
			continue
		}
		ch.buf = make([]byte, n)
		d.stats.BufferAllocs++
	}
}

func (d *Device) releaseBuffersLocked() {
	d.primary.buf, d.primary.cursor = nil, 0
	d.extra.buf, d.extra.cursor = nil, 0
}

// AdjustBufferSizes recomputes both geometries under one critical section and
// makes sure the buffers match them.
func (d *Device) AdjustBufferSizes() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recomputeLocked()
	d.adjustBuffersLocked()
}

// AdjustSpacing recomputes the spacing of the primary channel, or of the
// extra channel when primary is false.
func (d *Device) AdjustSpacing(primary bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.img, d.mscan = d.params.scans()
	pl, el := layouts(d.params.Mode, d.params.ExtraSourceMode)
	if primary {
		d.primary.spacing = spacingFor(pl, &d.params, d.img, d.mscan)
	} else {
		d.extra.spacing = spacingFor(el, &d.params, d.img, d.mscan)
	}
}

// PrimaryGeometry returns the current primary frame geometry.
func (d *Device) PrimaryGeometry() FrameGeometry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.primary.geometry
}

// ExtraGeometry returns the current extra frame geometry. Its Layout is
// LayoutNone when the mode has no extra section.
func (d *Device) ExtraGeometry() FrameGeometry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.extra.geometry
}

// PrimaryBufferCapacity is the size of the primary buffer, 0 before connect.
func (d *Device) PrimaryBufferCapacity() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cap(d.primary.buf)
}

// ExtraBufferCapacity is the size of the extra buffer.
func (d *Device) ExtraBufferCapacity() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cap(d.extra.buf)
}

// PrimarySourceSpacing returns the primary section's x, y, z spacing in mm,
// or ms per column on x for rolling layouts.
func (d *Device) PrimarySourceSpacing() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.primary.spacing
	return s[:]
}

// ExtraSourceSpacing is PrimarySourceSpacing for the extra section, or
// {1, 1, 1} when there is none.
func (d *Device) ExtraSourceSpacing() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.extra.spacing
	return s[:]
}

// CurrentPixelSpacingMm is the primary spacing for all three axes.
func (d *Device) CurrentPixelSpacingMm() [3]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.primary.spacing
}

// GetTransducerWidthMm is the lateral aperture of the configured transducer.
func (d *Device) GetTransducerWidthMm() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.img.widthMm
}

// FrameBytes returns a copy of the current primary and extra buffers.
func (d *Device) FrameBytes() (primary, extra []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneBytes(d.primary.buf), cloneBytes(d.extra.buf)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
