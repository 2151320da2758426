package probe

import (
	"fmt"
	"strings"
)

// Mode is an imaging mode of the probe.
type Mode int8

const (
	// ModeNone marks an unset extra source.
	ModeNone Mode = -1

	ModeB    Mode = 0 // B mode only
	ModeBRF  Mode = 1 // RF with reference B mode
	ModeRF   Mode = 2 // RF only
	ModeM    Mode = 3 // M mode
	ModePW   Mode = 4 // pulsed wave doppler
	ModeARFI Mode = 5 // acoustic radiation force impulse
	ModeCFD  Mode = 6 // color flow doppler
)

var modeNames = [...]string{"B", "BRF", "RF", "M", "PW", "ARFI", "CFD"}

// Modes lists every acquisition mode in wire order.
var Modes = []Mode{ModeB, ModeBRF, ModeRF, ModeM, ModePW, ModeARFI, ModeCFD}

// Valid reports whether m is one of the seven acquisition modes.
func (m Mode) Valid() bool { return m >= ModeB && m <= ModeCFD }

func (m Mode) String() string {
	if m == ModeNone {
		return "None"
	}
	if !m.Valid() {
		return fmt.Sprintf("Mode(%d)", int8(m))
	}
	return modeNames[m]
}

// ModeToString returns the stable text encoding of m.
func ModeToString(m Mode) string { return m.String() }

// StringToMode parses a mode name, ignoring case. Unrecognised names return
// ErrUnknownMode; there is no fallback mode.
func StringToMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return ModeNone, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() && m != ModeNone {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int8(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	if strings.EqualFold(string(b), "none") || len(b) == 0 {
		*m = ModeNone
		return nil
	}
	v, err := StringToMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Layout is how a frame section is arranged in memory.
type Layout uint8

const (
	LayoutNone Layout = iota
	LayoutB           // 8-bit intensity, lines across, samples down
	LayoutRF          // int16 samples, one row per line
	LayoutM           // 8-bit rolling columns of one acoustic line
	LayoutPW          // 8-bit rolling spectral columns
	LayoutARFI        // int16 tracking samples per push and focal zone
	LayoutCFD         // int16 velocity/power, same grid as B
)

var layoutNames = [...]string{"none", "B", "RF", "M", "PW", "ARFI", "CFD"}

func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

func (l Layout) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Layout) UnmarshalText(b []byte) error {
	for i, name := range layoutNames {
		if string(b) == name {
			*l = Layout(i)
			return nil
		}
	}
	return fmt.Errorf("unknown layout %q", b)
}

// Rolling reports whether new data is appended column by column.
func (l Layout) Rolling() bool { return l == LayoutM || l == LayoutPW }

// PrimaryLayout returns the layout of the primary section for m.
func PrimaryLayout(m Mode) Layout {
	if m == ModeRF {
		return LayoutRF
	}
	if m.Valid() {
		return LayoutB
	}
	return LayoutNone
}

// ExtraLayout returns the layout of the secondary section m produces on its
// own, or LayoutNone.
func ExtraLayout(m Mode) Layout {
	switch m {
	case ModeBRF:
		return LayoutRF
	case ModeM:
		return LayoutM
	case ModePW:
		return LayoutPW
	case ModeARFI:
		return LayoutARFI
	case ModeCFD:
		return LayoutCFD
	default:
		return LayoutNone
	}
}

// layouts resolves the primary and extra layouts for a mode pair. An explicit
// extra source mode contributes its extra layout, or its primary layout if
// it has none, so B with an RF extra source behaves like BRF.
func layouts(mode, extra Mode) (primary, secondary Layout) {
	primary = PrimaryLayout(mode)
	if extra == ModeNone {
		return primary, ExtraLayout(mode)
	}
	if l := ExtraLayout(extra); l != LayoutNone {
		return primary, l
	}
	return primary, PrimaryLayout(extra)
}
