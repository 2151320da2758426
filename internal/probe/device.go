package probe

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/usprobe/internal/config"
	"github.com/banshee-data/usprobe/internal/timeutil"
	"github.com/banshee-data/usprobe/internal/transport"
)

// Source is the capability set the owning pipeline drives.
type Source interface {
	Configure(cfg *config.AcquisitionConfig) error
	Connect(ctx context.Context) error
	Disconnect() error
	StartRecording() error
	StopRecording() error
	OnFrame(length int, data, header, geometry, modeHeader []byte) error
}

// CommandEntry is one raw command sent through SendCommand or ARFIPush.
type CommandEntry struct {
	SessionID uuid.UUID
	Time      time.Time
	Command   string
	Reply     string
	Err       error
}

// CommandRecorder persists raw commands for auditing.
type CommandRecorder interface {
	RecordCommand(entry CommandEntry) error
}

// Stats are cumulative frame counters for the device's lifetime.
type Stats struct {
	Received        uint64
	Reconstructed   uint64
	DroppedFrozen   uint64
	DroppedIdle     uint64
	Corrupted       uint64
	TimerWraps      uint64
	DegradedTimes   uint64
	LastTimestamp   float64
	LastFrameIndex  uint32
	BufferAllocs    uint64
	SessionID       uuid.UUID
	Connected       bool
	Scanning        bool
	Frozen          bool
	PrimaryGeometry FrameGeometry
	ExtraGeometry   FrameGeometry
}

// channel is one output section: its geometry, spacing and backing buffer.
type channel struct {
	geometry FrameGeometry
	spacing  [3]float64
	buf      []byte
	cursor   int // rolling layouts only
}

// DeviceConfig configures a Device. Transport is required.
type DeviceConfig struct {
	Transport transport.Transport
	Clock     timeutil.Clock  // defaults to timeutil.RealClock
	Sink      FrameSink       // may be nil
	Recorder  CommandRecorder // may be nil
	// Parameters overrides DefaultParameters when non-nil.
	Parameters *Parameters
}

// Device is the acquisition core for one probe.
type Device struct {
	transport transport.Transport
	clock     timeutil.Clock
	sink      FrameSink
	recorder  CommandRecorder

	// lifecycleMu serialises Connect and Disconnect; mu is never held
	// across transport calls.
	lifecycleMu sync.Mutex

	mu         sync.Mutex
	params     Parameters
	connected  bool
	scanning   bool
	frozen     bool
	sessionID  uuid.UUID
	fpgaRev    string
	x8bf       bool
	img, mscan scan
	primary    channel
	extra      channel
	lut        []byte
	lutFor     Compression
	reconciler *Reconciler
	sequence   uint64
	stats      Stats
}

var _ Source = (*Device)(nil)

// NewDevice creates a disconnected device with default parameters.
func NewDevice(cfg DeviceConfig) *Device {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	params := DefaultParameters()
	if cfg.Parameters != nil {
		params = cfg.Parameters.Clone()
	}
	d := &Device{
		transport:  cfg.Transport,
		clock:      cfg.Clock,
		sink:       cfg.Sink,
		recorder:   cfg.Recorder,
		params:     params,
		reconciler: NewReconciler(cfg.Clock),
	}
	d.mu.Lock()
	d.recomputeLocked()
	d.mu.Unlock()
	return d
}

// SetSink replaces the frame sink. It takes effect from the next frame.
func (d *Device) SetSink(s FrameSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = s
}

// Stats returns a snapshot of the frame counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.TimerWraps = d.reconciler.Wraps()
	s.DegradedTimes = d.reconciler.Degraded()
	s.LastTimestamp = d.reconciler.Last()
	s.SessionID = d.sessionID
	s.Connected = d.connected
	s.Scanning = d.scanning
	s.Frozen = d.frozen
	s.PrimaryGeometry = d.primary.geometry
	s.ExtraGeometry = d.extra.geometry
	return s
}

// Parameters returns a copy of the current parameters.
func (d *Device) Parameters() Parameters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params.Clone()
}

// SessionID identifies the current connection, or uuid.Nil.
func (d *Device) SessionID() uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}
