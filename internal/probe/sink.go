package probe

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/usprobe/internal/monitoring"
)

// Image is one reconstructed frame section. Data is owned by the receiver.
type Image struct {
	Geometry FrameGeometry
	Spacing  [3]float64
	Data     []byte
}

// Frame is a reconstructed frame ready for the downstream pipeline.
type Frame struct {
	SessionID       uuid.UUID
	Sequence        uint64 // frames delivered this session
	FrameIndex      uint32 // hardware frame counter
	Timestamp       float64
	HostTime        time.Time
	Mode            Mode
	ExtraSourceMode Mode
	Primary         Image
	Extra           *Image // nil when the mode has no extra section
	TimestampTicks  uint32
}

// FrameSink receives reconstructed frames. HandleFrame is called outside the
// device lock, one frame at a time, and must not retain the device.
type FrameSink interface {
	HandleFrame(Frame)
}

// SinkFunc adapts a function to FrameSink.
type SinkFunc func(Frame)

func (f SinkFunc) HandleFrame(fr Frame) { f(fr) }

// MultiSink delivers each frame to every sink in order.
type MultiSink []FrameSink

func (m MultiSink) HandleFrame(fr Frame) {
	for _, s := range m {
		s.HandleFrame(fr)
	}
}

// QueueSink hands frames to a worker goroutine through a bounded queue so a
// slow consumer never stalls the frame callback. When the queue is full the
// newest frame is dropped and counted.
type QueueSink struct {
	next    FrameSink
	queue   chan Frame
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewQueueSink starts a worker delivering to next. size is the queue length.
func NewQueueSink(next FrameSink, size int) *QueueSink {
	if size < 1 {
		size = 1
	}
	q := &QueueSink{
		next:  next,
		queue: make(chan Frame, size),
		done:  make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *QueueSink) worker() {
	defer close(q.done)
	for fr := range q.queue {
		q.next.HandleFrame(fr)
	}
}

func (q *QueueSink) HandleFrame(fr Frame) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.queue <- fr:
	default:
		n := q.dropped.Add(1)
		if monitoring.Every(n, 100) {
			monitoring.Logf("sink queue full, dropped frame %d (%d dropped)", fr.Sequence, n)
		}
	}
}

// Dropped returns the number of frames dropped because the queue was full.
func (q *QueueSink) Dropped() uint64 { return q.dropped.Load() }

// Close stops accepting frames and waits for the queue to drain.
func (q *QueueSink) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()
	<-q.done
}
