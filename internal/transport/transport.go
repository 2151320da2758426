// Package transport is the boundary to the probe's vendor layer: a command
// channel for parameters and lifecycle, and a data channel that delivers
// raw frames to a registered callback.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned by operations that need an open session.
	ErrNotConnected = errors.New("transport not connected")
	// ErrCommandRejected wraps an ERR reply from the device.
	ErrCommandRejected = errors.New("command rejected by device")
)

// FrameCallback receives one raw frame. length is the number of valid payload
// bytes in data; header, geometry and modeHeader are the opaque descriptor
// blobs sent with the frame (modeHeader may be empty). Invocations are
// strictly serialised by the transport.
type FrameCallback func(length int, data, header, geometry, modeHeader []byte) error

// Transport is what the acquisition core needs from the vendor layer.
type Transport interface {
	// Connect opens the session with the probe.
	Connect(ctx context.Context) error
	// Disconnect closes the session. No frame callback fires after it returns.
	Disconnect() error
	// StartScanning starts the acquisition sequencer.
	StartScanning() error
	// StopScanning stops the acquisition sequencer.
	StopScanning() error
	// SetParameter writes one named device parameter.
	SetParameter(name, value string) error
	// GetParameter reads one named device parameter.
	GetParameter(name string) (string, error)
	// SendCommand forwards an opaque command and returns the raw status line.
	SendCommand(command string) (string, error)
	// SetFrameCallback registers the frame callback; nil unregisters it.
	SetFrameCallback(cb FrameCallback)
}
