package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// nil installs a no-op
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestDebugf(t *testing.T) {
	original := Logf
	defer func() {
		Logf = original
		SetDebug(false)
	}()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	SetDebug(false)
	Debugf("hidden %d", 1)
	if len(lines) != 0 {
		t.Fatalf("Debugf logged while disabled: %v", lines)
	}

	SetDebug(true)
	if !DebugEnabled() {
		t.Fatal("DebugEnabled() = false after SetDebug(true)")
	}
	Debugf("shown %d", 2)
	if len(lines) != 1 || lines[0] != "[debug] shown 2" {
		t.Errorf("lines = %v, want [\"[debug] shown 2\"]", lines)
	}
}

func TestEvery(t *testing.T) {
	cases := []struct {
		n, interval uint64
		want        bool
	}{
		{1, 100, true},
		{2, 100, false},
		{100, 100, true},
		{150, 100, false},
		{200, 100, true},
		{7, 0, true},
	}
	for _, c := range cases {
		if got := Every(c.n, c.interval); got != c.want {
			t.Errorf("Every(%d, %d) = %v, want %v", c.n, c.interval, got, c.want)
		}
	}
}
