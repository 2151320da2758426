package probe

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFlipTexture(t *testing.T) {
	// 3 rows of two 2-byte pixels
	src := []byte{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
	}
	tests := []struct {
		name   string
		mirror bool
		want   []byte
	}{
		{"flip", false, []byte{
			8, 9, 10, 11,
			4, 5, 6, 7,
			0, 1, 2, 3,
		}},
		{"flip and mirror", true, []byte{
			10, 11, 8, 9,
			6, 7, 4, 5,
			2, 3, 0, 1,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, len(src))
			if err := FlipTexture(dst, src, 3, 4, 2, tt.mirror); err != nil {
				t.Fatalf("FlipTexture: %v", err)
			}
			if diff := cmp.Diff(tt.want, dst); diff != "" {
				t.Errorf("FlipTexture mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFlipTextureErrors(t *testing.T) {
	dst := make([]byte, 12)
	if err := FlipTexture(dst, make([]byte, 8), 3, 4, 1, false); err == nil {
		t.Error("expected error for short source")
	}
	if err := FlipTexture(make([]byte, 8), make([]byte, 12), 3, 4, 1, false); err == nil {
		t.Error("expected error for short destination")
	}
	if err := FlipTexture(dst, make([]byte, 12), 3, 4, 3, false); err == nil {
		t.Error("expected error for pitch not a multiple of pixel size")
	}
	if err := FlipTexture(dst, make([]byte, 12), 3, 4, 0, false); err == nil {
		t.Error("expected error for zero pixel size")
	}
}

func TestCompressionLUT(t *testing.T) {
	c := DefaultParameters().Shared.Compression
	lut := compressionLUT(c)

	if len(lut) != 1<<16 {
		t.Fatalf("len = %d, want 65536", len(lut))
	}
	checks := []struct {
		in   int
		want byte
	}{
		{0, 0},
		{int(c.MinValue), 0},
		{int(c.Knee), c.OutputKnee},
		{int(c.MaxValue), 255},
		{65535, 255},
	}
	for _, ch := range checks {
		if lut[ch.in] != ch.want {
			t.Errorf("lut[%d] = %d, want %d", ch.in, lut[ch.in], ch.want)
		}
	}
	for v := 1; v < len(lut); v++ {
		if lut[v] < lut[v-1] {
			t.Fatalf("lut not monotonic at %d: %d < %d", v, lut[v], lut[v-1])
		}
	}
}

func TestCompressionLUTZeroMin(t *testing.T) {
	c := DefaultParameters().Shared.Compression
	c.MinValue = 0
	zero := compressionLUT(c)
	c.MinValue = 1
	one := compressionLUT(c)

	if !bytes.Equal(zero, one) {
		t.Fatal("MinValue 0 should map like MinValue 1")
	}
	if one[1] != 0 {
		t.Errorf("lut[1] = %d, want 0", one[1])
	}
	if one[2] == 0 || one[4095] < c.OutputKnee-1 {
		t.Errorf("log segment collapsed: lut[2] = %d, lut[4095] = %d", one[2], one[4095])
	}
	if one[int(c.Knee)] != c.OutputKnee {
		t.Errorf("lut[knee] = %d, want %d", one[int(c.Knee)], c.OutputKnee)
	}
}

func TestHostReconstructB(t *testing.T) {
	sc := scan{lines: 2, raw: 4, samples: 2, decimation: 2}
	raw := [][]uint16{
		{10, 20, 30, 40},
		{50, 60, 70, 80},
	}
	src := make([]byte, hostBSize(sc))
	for line, samples := range raw {
		for s, v := range samples {
			binary.LittleEndian.PutUint16(src[(line*sc.raw+s)*2:], v)
		}
	}
	identity := make([]byte, 1<<16)
	for i := range identity {
		identity[i] = byte(i)
	}

	dst := make([]byte, sc.lines*sc.samples)
	hostReconstructB(dst, src, sc, identity)

	// row-major: one row per output sample, one column per line
	want := []byte{
		15, 55,
		35, 75,
	}
	if diff := cmp.Diff(want, dst); diff != "" {
		t.Errorf("hostReconstructB mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteColumnsScrolling(t *testing.T) {
	buf := make([]byte, 4*2)

	cursor := writeColumns(buf, []byte{1, 2}, 4, 2, 1, 0, false)
	want := []byte{
		0, 0, 0, 1,
		0, 0, 0, 2,
	}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Errorf("after first column (-want +got):\n%s", diff)
	}

	cursor = writeColumns(buf, []byte{3, 4}, 4, 2, 1, cursor, false)
	want = []byte{
		0, 0, 1, 3,
		0, 0, 2, 4,
	}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Errorf("after second column (-want +got):\n%s", diff)
	}
	if cursor != 0 {
		t.Errorf("scrolling cursor = %d, want 0", cursor)
	}
}

func TestWriteColumnsRevolving(t *testing.T) {
	buf := make([]byte, 4*2)

	cursor := writeColumns(buf, []byte{1, 2}, 4, 2, 1, 0, true)
	if cursor != 1 {
		t.Fatalf("cursor = %d, want 1", cursor)
	}

	// two columns starting at x=3 wrap around to x=0
	cursor = writeColumns(buf, []byte{3, 4, 5, 6}, 4, 2, 1, 3, true)
	if cursor != 1 {
		t.Errorf("cursor = %d, want 1", cursor)
	}
	want := []byte{
		5, 0, 0, 3,
		6, 0, 0, 4,
	}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Errorf("revolving buffer mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteColumnsMultiByte(t *testing.T) {
	buf := make([]byte, 3*1*2)
	writeColumns(buf, []byte{0xAA, 0xBB}, 3, 1, 2, 0, false)
	writeColumns(buf, []byte{0xCC, 0xDD}, 3, 1, 2, 0, false)
	want := []byte{0, 0, 0xAA, 0xBB, 0xCC, 0xDD}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Errorf("2-byte columns mismatch (-want +got):\n%s", diff)
	}
}
