package probe

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FlipTexture copies rows*pitch bytes from src to dst with the row order
// reversed. With mirror set the pixels within each row are reversed too;
// bytesPerPixel keeps multi-byte samples intact.
func FlipTexture(dst, src []byte, rows, pitch, bytesPerPixel int, mirror bool) error {
	n := rows * pitch
	if rows < 0 || pitch < 0 || len(src) < n || len(dst) < n {
		return fmt.Errorf("flip texture: %d rows of %d bytes do not fit src %d / dst %d",
			rows, pitch, len(src), len(dst))
	}
	if bytesPerPixel < 1 || pitch%bytesPerPixel != 0 {
		return fmt.Errorf("flip texture: pitch %d not a multiple of pixel size %d", pitch, bytesPerPixel)
	}
	for r := 0; r < rows; r++ {
		in := src[r*pitch : (r+1)*pitch]
		out := dst[(rows-1-r)*pitch : (rows-r)*pitch]
		if !mirror {
			copy(out, in)
			continue
		}
		for x := 0; x < pitch; x += bytesPerPixel {
			copy(out[pitch-x-bytesPerPixel:pitch-x], in[x:x+bytesPerPixel])
		}
	}
	return nil
}

// compressionLUT maps every 16-bit envelope value to 8 bits: 0 at or below
// MinValue, logarithmic up to OutputKnee at Knee, then linear up to 255 at
// MaxValue. A MinValue of 0 is treated as 1 so the log segment stays finite.
func compressionLUT(c Compression) []byte {
	lut := make([]byte, 1<<16)
	minV, knee, maxV := float64(max(c.MinValue, 1)), float64(c.Knee), float64(c.MaxValue)
	outKnee := float64(c.OutputKnee)
	logSpan := math.Log(knee / minV)
	for v := range lut {
		fv := float64(v)
		var out float64
		switch {
		case fv <= minV:
			out = 0
		case fv <= knee:
			out = outKnee * math.Log(fv/minV) / logSpan
		case fv < maxV:
			out = outKnee + (255-outKnee)*(fv-knee)/(maxV-knee)
		default:
			out = 255
		}
		lut[v] = uint8(math.Round(out))
	}
	return lut
}

// hostReconstructB turns line-major raw uint16 envelope samples into the
// row-major 8-bit B grid: each output sample averages decimation raw
// samples and goes through the compression table.
func hostReconstructB(dst, src []byte, sc scan, lut []byte) {
	dec := sc.decimation
	for line := 0; line < sc.lines; line++ {
		base := line * sc.raw * 2
		for s := 0; s < sc.samples; s++ {
			var sum uint32
			off := base + s*dec*2
			for k := 0; k < dec; k++ {
				sum += uint32(binary.LittleEndian.Uint16(src[off+k*2:]))
			}
			dst[s*sc.lines+line] = lut[sum/uint32(dec)]
		}
	}
}

// hostBSize is the payload size of a host-reconstructed B section.
func hostBSize(sc scan) int { return sc.lines * sc.raw * 2 }

// writeColumns appends cols column-major columns of height pixels to a
// row-major rolling buffer of the given width. Revolving buffers overwrite
// at the cursor; scrolling buffers shift left and append at the right edge.
// It returns the new cursor.
func writeColumns(buf, cols []byte, width, height, bpp, cursor int, revolving bool) int {
	n := len(cols) / (height * bpp)
	pitch := width * bpp
	if revolving {
		for c := 0; c < n; c++ {
			x := (cursor + c) % width
			for y := 0; y < height; y++ {
				copy(buf[y*pitch+x*bpp:y*pitch+(x+1)*bpp], cols[(c*height+y)*bpp:(c*height+y+1)*bpp])
			}
		}
		return (cursor + n) % width
	}
	shift := n * bpp
	for y := 0; y < height; y++ {
		row := buf[y*pitch : (y+1)*pitch]
		copy(row, row[shift:])
		for c := 0; c < n; c++ {
			x := width - n + c
			copy(row[x*bpp:(x+1)*bpp], cols[(c*height+y)*bpp:(c*height+y+1)*bpp])
		}
	}
	return cursor
}
