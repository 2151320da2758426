package transport

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Descriptor blob layouts sent alongside each frame. All fields are
// little-endian; every blob starts with a version so decoders can reject
// layouts they do not understand instead of misreading them.
const (
	FrameHeaderSize    = 16
	GeometryHeaderSize = 16
	ModeHeaderSize     = 8

	FrameHeaderVersion    = 1
	GeometryHeaderVersion = 1
	ModeHeaderVersion     = 1
)

// Frame header flags.
const (
	// FlagDeviceReconstructed marks a payload already scan converted by the
	// device, regardless of the host's reconstruction preference.
	FlagDeviceReconstructed uint8 = 1 << 0
	// FlagMirror asks for a horizontal flip in addition to the vertical one.
	FlagMirror uint8 = 1 << 1
)

// FrameHeader is the per-frame header blob.
//
//	0      Version
//	1      Flags
//	2-3    HeaderSize
//	4-7    FrameIndex
//	8-11   TimeStamp (ADC ticks, wraps at 2^32)
//	12     Mode
//	13-15  reserved
type FrameHeader struct {
	Version    uint8
	Flags      uint8
	FrameIndex uint32
	TimeStamp  uint32
	Mode       uint8
}

// GeometryHeader describes the scan geometry the payload was produced with.
//
//	0-1    Version
//	2-3    LineCount
//	4-5    SamplesPerLine (decimated)
//	6-7    RawSamplesPerLine
//	8      Decimation
//	9-11   reserved
//	12-15  DepthMm (float32)
type GeometryHeader struct {
	Version           uint16
	LineCount         uint16
	SamplesPerLine    uint16
	RawSamplesPerLine uint16
	Decimation        uint8
	DepthMm           float32
}

// ModeHeader carries the mode-specific metadata of rolling layouts (M, PW).
//
//	0-1    Version
//	2-3    LineIndex
//	4-5    ColumnCount
//	6-7    reserved
type ModeHeader struct {
	Version     uint16
	LineIndex   uint16
	ColumnCount uint16
}

// ParseFrameHeader decodes a frame header blob.
func ParseFrameHeader(data []byte) (*FrameHeader, error) {
	if len(data) < FrameHeaderSize {
		return nil, fmt.Errorf("frame header too short: expected %d bytes, got %d", FrameHeaderSize, len(data))
	}
	h := &FrameHeader{
		Version:    data[0],
		Flags:      data[1],
		FrameIndex: binary.LittleEndian.Uint32(data[4:8]),
		TimeStamp:  binary.LittleEndian.Uint32(data[8:12]),
		Mode:       data[12],
	}
	if h.Version != FrameHeaderVersion {
		return nil, fmt.Errorf("unsupported frame header version %d", h.Version)
	}
	if size := binary.LittleEndian.Uint16(data[2:4]); size != FrameHeaderSize {
		return nil, fmt.Errorf("invalid frame header size field: expected %d, got %d", FrameHeaderSize, size)
	}
	return h, nil
}

// MarshalFrameHeader encodes h.
func MarshalFrameHeader(h FrameHeader) []byte {
	b := make([]byte, FrameHeaderSize)
	b[0] = FrameHeaderVersion
	b[1] = h.Flags
	binary.LittleEndian.PutUint16(b[2:4], FrameHeaderSize)
	binary.LittleEndian.PutUint32(b[4:8], h.FrameIndex)
	binary.LittleEndian.PutUint32(b[8:12], h.TimeStamp)
	b[12] = h.Mode
	return b
}

// ParseGeometryHeader decodes a geometry blob.
func ParseGeometryHeader(data []byte) (*GeometryHeader, error) {
	if len(data) < GeometryHeaderSize {
		return nil, fmt.Errorf("geometry header too short: expected %d bytes, got %d", GeometryHeaderSize, len(data))
	}
	g := &GeometryHeader{
		Version:           binary.LittleEndian.Uint16(data[0:2]),
		LineCount:         binary.LittleEndian.Uint16(data[2:4]),
		SamplesPerLine:    binary.LittleEndian.Uint16(data[4:6]),
		RawSamplesPerLine: binary.LittleEndian.Uint16(data[6:8]),
		Decimation:        data[8],
		DepthMm:           math.Float32frombits(binary.LittleEndian.Uint32(data[12:16])),
	}
	if g.Version != GeometryHeaderVersion {
		return nil, fmt.Errorf("unsupported geometry header version %d", g.Version)
	}
	if g.LineCount == 0 || g.SamplesPerLine == 0 || g.Decimation == 0 {
		return nil, fmt.Errorf("geometry header has zero dimension: lines=%d samples=%d decimation=%d",
			g.LineCount, g.SamplesPerLine, g.Decimation)
	}
	return g, nil
}

// MarshalGeometryHeader encodes g.
func MarshalGeometryHeader(g GeometryHeader) []byte {
	b := make([]byte, GeometryHeaderSize)
	binary.LittleEndian.PutUint16(b[0:2], GeometryHeaderVersion)
	binary.LittleEndian.PutUint16(b[2:4], g.LineCount)
	binary.LittleEndian.PutUint16(b[4:6], g.SamplesPerLine)
	binary.LittleEndian.PutUint16(b[6:8], g.RawSamplesPerLine)
	b[8] = g.Decimation
	binary.LittleEndian.PutUint32(b[12:16], math.Float32bits(g.DepthMm))
	return b
}

// ParseModeHeader decodes a mode header blob.
func ParseModeHeader(data []byte) (*ModeHeader, error) {
	if len(data) < ModeHeaderSize {
		return nil, fmt.Errorf("mode header too short: expected %d bytes, got %d", ModeHeaderSize, len(data))
	}
	m := &ModeHeader{
		Version:     binary.LittleEndian.Uint16(data[0:2]),
		LineIndex:   binary.LittleEndian.Uint16(data[2:4]),
		ColumnCount: binary.LittleEndian.Uint16(data[4:6]),
	}
	if m.Version != ModeHeaderVersion {
		return nil, fmt.Errorf("unsupported mode header version %d", m.Version)
	}
	return m, nil
}

// MarshalModeHeader encodes m.
func MarshalModeHeader(m ModeHeader) []byte {
	b := make([]byte, ModeHeaderSize)
	binary.LittleEndian.PutUint16(b[0:2], ModeHeaderVersion)
	binary.LittleEndian.PutUint16(b[2:4], m.LineIndex)
	binary.LittleEndian.PutUint16(b[4:6], m.ColumnCount)
	return b
}
