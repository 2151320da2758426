package probe

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/banshee-data/usprobe/internal/monitoring"
)

// ARFIPushCommand is the raw command that triggers one ARFI push sequence.
const ARFIPushCommand = "ARFI_PUSH"

// Connect opens a transport session, re-sends every parameter (they keep
// their last validated values), sizes the buffers and registers the frame
// callback. Frames are only accepted once Connect has returned.
func (d *Device) Connect(ctx context.Context) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	d.mu.Lock()
	if d.connected {
		d.mu.Unlock()
		return nil
	}
	values := d.params.values()
	d.mu.Unlock()

	if err := d.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := d.push(values); err != nil {
		if derr := d.transport.Disconnect(); derr != nil {
			monitoring.Logf("disconnect after failed connect: %v", derr)
		}
		return fmt.Errorf("connect: %w", err)
	}

	rev, err := d.transport.GetParameter(ParamFPGARev)
	if err != nil {
		monitoring.Logf("probe did not report %s: %v", ParamFPGARev, err)
		rev = ""
	}
	var x8bf bool
	if v, err := d.transport.GetParameter(ParamARFIIsX8BF); err == nil {
		x8bf, _ = strconv.ParseBool(v)
	}

	d.mu.Lock()
	d.connected = true
	d.scanning = false
	d.sessionID = uuid.New()
	d.fpgaRev = rev
	d.x8bf = x8bf
	d.sequence = 0
	d.reconciler.Reset()
	d.recomputeLocked()
	d.adjustBuffersLocked()
	session := d.sessionID
	primary, extra := d.primary.geometry, d.extra.geometry
	d.mu.Unlock()

	d.transport.SetFrameCallback(d.OnFrame)
	monitoring.Logf("probe connected: session=%s fpga=%q primary=%s %dx%dx%d extra=%s",
		session, rev, primary.Layout, primary.Width, primary.Height, primary.Depth, extra.Layout)
	return nil
}

// Disconnect ends the session and releases the frame buffers. A transport
// failure is returned and the device stays connected.
func (d *Device) Disconnect() error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if err := d.transport.Disconnect(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	d.transport.SetFrameCallback(nil)

	d.mu.Lock()
	session := d.sessionID
	d.connected = false
	d.scanning = false
	d.sessionID = uuid.Nil
	d.releaseBuffersLocked()
	d.mu.Unlock()

	monitoring.Logf("probe disconnected: session=%s", session)
	return nil
}

// StartRecording starts scanning.
func (d *Device) StartRecording() error {
	if !d.IsConnected() {
		return ErrNotConnected
	}
	if err := d.transport.StartScanning(); err != nil {
		return fmt.Errorf("start scanning: %w", err)
	}
	d.mu.Lock()
	d.scanning = true
	d.mu.Unlock()
	return nil
}

// StopRecording stops scanning. Frames still in flight are discarded.
func (d *Device) StopRecording() error {
	if !d.IsConnected() {
		return ErrNotConnected
	}
	d.mu.Lock()
	d.scanning = false
	d.mu.Unlock()
	if err := d.transport.StopScanning(); err != nil {
		return fmt.Errorf("stop scanning: %w", err)
	}
	return nil
}

// FreezeDevice discards incoming frames while frozen. The change applies
// between callbacks, never in the middle of one.
func (d *Device) FreezeDevice(freeze bool) error {
	d.mu.Lock()
	changed := d.frozen != freeze
	d.frozen = freeze
	d.mu.Unlock()
	if changed {
		monitoring.Logf("probe frozen=%v", freeze)
	}
	return nil
}

func (d *Device) IsFrozen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frozen
}

func (d *Device) IsScanning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scanning
}

func (d *Device) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// GetFPGARevDateString is the FPGA revision reported at connect.
func (d *Device) GetFPGARevDateString() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fpgaRev
}

// GetARFIIsX8BFEnabled reports whether the connected engine has an x8
// beamformer, which is needed for custom push configurations.
func (d *Device) GetARFIIsX8BFEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x8bf
}

// ARFIPush triggers a push sequence. Outside ARFI mode it returns
// ErrModeMismatch without touching the transport; otherwise the transport's
// result is returned as is.
func (d *Device) ARFIPush() (string, error) {
	d.mu.Lock()
	mode := d.params.Mode
	d.mu.Unlock()
	if mode != ModeARFI {
		return "", fmt.Errorf("%w: ARFI push needs mode ARFI, current mode %s", ErrModeMismatch, mode)
	}
	reply, err := d.transport.SendCommand(ARFIPushCommand)
	d.record(ARFIPushCommand, reply, err)
	return reply, err
}

// SendCommand forwards text to the transport unvalidated and returns its raw
// reply. Every call is recorded when a CommandRecorder is configured.
func (d *Device) SendCommand(text string) (string, error) {
	reply, err := d.transport.SendCommand(text)
	d.record(text, reply, err)
	return reply, err
}

func (d *Device) record(command, reply string, cmdErr error) {
	if d.recorder == nil {
		return
	}
	entry := CommandEntry{
		SessionID: d.SessionID(),
		Time:      d.clock.Now(),
		Command:   command,
		Reply:     reply,
		Err:       cmdErr,
	}
	if err := d.recorder.RecordCommand(entry); err != nil {
		monitoring.Logf("failed to record command %q: %v", command, err)
	}
}
