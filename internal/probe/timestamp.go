package probe

import (
	"fmt"
	"time"

	"github.com/banshee-data/usprobe/internal/timeutil"
)

const (
	// timerPeriod is how long the 32-bit ADC tick counter takes to wrap.
	timerPeriod = float64(1<<32) / ADCFrequencyHz
	// wrapTolerance absorbs jitter before a backwards step counts as a wrap.
	wrapTolerance = 0.001
)

// Reconciler turns the wrapping hardware tick counter into seconds since the
// first frame of the session. Its output never decreases.
type Reconciler struct {
	clock timeutil.Clock

	started        bool
	epoch          time.Time
	firstHardware  float64
	lastHardware   float64
	offset         float64
	lastReconciled float64
	wraps          uint64
	degraded       uint64
}

// NewReconciler creates a Reconciler that stamps its epoch from clock.
func NewReconciler(clock timeutil.Clock) *Reconciler {
	return &Reconciler{clock: clock}
}

// Reset forgets all state; the next tick becomes the new epoch.
func (r *Reconciler) Reset() {
	*r = Reconciler{clock: r.clock}
}

// Reconcile converts a tick count to seconds since the epoch. When a
// backwards step cannot be explained by a single wrap the previous value is
// returned along with ErrDegradedTimestamp.
func (r *Reconciler) Reconcile(ticks uint32) (float64, error) {
	hw := float64(ticks) / ADCFrequencyHz
	if !r.started {
		r.started = true
		r.epoch = r.clock.Now()
		r.firstHardware = hw
		r.lastHardware = hw
		r.lastReconciled = 0
		return 0, nil
	}

	if hw < r.lastHardware-wrapTolerance {
		r.offset += timerPeriod
		r.wraps++
	}
	r.lastHardware = hw

	t := hw + r.offset - r.firstHardware
	if t < r.lastReconciled {
		r.degraded++
		return r.lastReconciled, fmt.Errorf("%w: %.6fs before previous %.6fs", ErrDegradedTimestamp, t, r.lastReconciled)
	}
	r.lastReconciled = t
	return t, nil
}

// Epoch is the host time of the first reconciled frame.
func (r *Reconciler) Epoch() time.Time { return r.epoch }

// HostTime maps a reconciled timestamp onto the host clock.
func (r *Reconciler) HostTime(t float64) time.Time {
	return r.epoch.Add(time.Duration(t * float64(time.Second)))
}

// Wraps is the number of timer wraps compensated so far.
func (r *Reconciler) Wraps() uint64 { return r.wraps }

// Degraded is the number of timestamps that had to be clamped.
func (r *Reconciler) Degraded() uint64 { return r.degraded }

// Last is the most recent reconciled timestamp.
func (r *Reconciler) Last() float64 { return r.lastReconciled }
