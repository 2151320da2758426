package probe

import (
	"errors"
	"testing"
)

func TestModeStringRoundTrip(t *testing.T) {
	for _, m := range Modes {
		got, err := StringToMode(ModeToString(m))
		if err != nil {
			t.Fatalf("StringToMode(%q): %v", ModeToString(m), err)
		}
		if got != m {
			t.Errorf("round trip of %v gave %v", m, got)
		}
	}
}

func TestStringToModeCaseInsensitive(t *testing.T) {
	m, err := StringToMode("arfi")
	if err != nil || m != ModeARFI {
		t.Errorf("StringToMode(arfi) = %v, %v", m, err)
	}
}

func TestStringToModeUnknown(t *testing.T) {
	for _, s := range []string{"", "X", "BMODE", "none"} {
		m, err := StringToMode(s)
		if !errors.Is(err, ErrUnknownMode) {
			t.Errorf("StringToMode(%q) err = %v, want ErrUnknownMode", s, err)
		}
		if m != ModeNone {
			t.Errorf("StringToMode(%q) = %v, must not default to a real mode", s, m)
		}
	}
}

func TestModeText(t *testing.T) {
	b, err := ModeCFD.MarshalText()
	if err != nil || string(b) != "CFD" {
		t.Fatalf("MarshalText = %q, %v", b, err)
	}
	var m Mode
	if err := m.UnmarshalText([]byte("None")); err != nil || m != ModeNone {
		t.Errorf("UnmarshalText(None) = %v, %v", m, err)
	}
	if err := m.UnmarshalText([]byte("rf")); err != nil || m != ModeRF {
		t.Errorf("UnmarshalText(rf) = %v, %v", m, err)
	}
	if err := m.UnmarshalText([]byte("bogus")); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("UnmarshalText(bogus) err = %v", err)
	}
	if _, err := Mode(42).MarshalText(); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("MarshalText(42) err = %v", err)
	}
}

func TestLayouts(t *testing.T) {
	tests := []struct {
		mode, extra            Mode
		wantPrimary, wantExtra Layout
	}{
		{ModeB, ModeNone, LayoutB, LayoutNone},
		{ModeBRF, ModeNone, LayoutB, LayoutRF},
		{ModeRF, ModeNone, LayoutRF, LayoutNone},
		{ModeM, ModeNone, LayoutB, LayoutM},
		{ModePW, ModeNone, LayoutB, LayoutPW},
		{ModeARFI, ModeNone, LayoutB, LayoutARFI},
		{ModeCFD, ModeNone, LayoutB, LayoutCFD},
		{ModeB, ModeRF, LayoutB, LayoutRF},
		{ModeB, ModeM, LayoutB, LayoutM},
		{ModeRF, ModeB, LayoutRF, LayoutB},
	}
	for _, tt := range tests {
		p, e := layouts(tt.mode, tt.extra)
		if p != tt.wantPrimary || e != tt.wantExtra {
			t.Errorf("layouts(%v, %v) = %v, %v; want %v, %v", tt.mode, tt.extra, p, e, tt.wantPrimary, tt.wantExtra)
		}
	}
}

func TestLayoutText(t *testing.T) {
	for l := LayoutNone; l <= LayoutCFD; l++ {
		b, err := l.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", l, err)
		}
		var got Layout
		if err := got.UnmarshalText(b); err != nil || got != l {
			t.Errorf("UnmarshalText(%q) = %v, %v; want %v", b, got, err, l)
		}
	}
	var l Layout
	if err := l.UnmarshalText([]byte("doppler")); err == nil {
		t.Error("expected error for unknown layout")
	}
}
