package probe

import (
	"errors"

	"github.com/banshee-data/usprobe/internal/transport"
)

var (
	// ErrValidation is returned by setters for out-of-range values and
	// out-of-bounds indices. The stored value is unchanged.
	ErrValidation = errors.New("validation failed")

	// ErrModeMismatch is returned by operations that need a specific mode.
	ErrModeMismatch = errors.New("operation not valid in current mode")

	// ErrCorruptedFrame is returned by OnFrame when a frame cannot be
	// interpreted with the current geometry. The frame is dropped.
	ErrCorruptedFrame = errors.New("corrupted frame")

	// ErrDegradedTimestamp reports that wrap compensation could not keep the
	// reconciled timestamp consistent. The frame is still delivered.
	ErrDegradedTimestamp = errors.New("degraded timestamp")

	// ErrUnknownMode is returned when parsing an unrecognised mode name.
	ErrUnknownMode = errors.New("unknown mode")

	// ErrNotConnected is returned by operations that need an open session.
	ErrNotConnected = transport.ErrNotConnected
)
