package transport

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// TestablePort implements SerialPorter with configurable behaviour for
// testing. Reads block until data is added or the port is closed.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// WriteLatency adds a delay to each Write call
	WriteLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// WriteCalls records the number of Write calls
	WriteCalls int

	// Responder, when set, is called with every complete line written to
	// the port. A non-empty result is queued as a reply line.
	Responder func(line string) string

	pending  string
	readCond *sync.Cond
}

// NewTestablePort creates a new TestablePort.
func NewTestablePort() *TestablePort {
	p := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// NewDevicePort returns a TestablePort that answers the control protocol
// from sim, so a SerialTransport can be exercised without hardware.
func NewDevicePort(sim *Simulator) *TestablePort {
	p := NewTestablePort()
	p.Responder = sim.HandleLine
	return p
}

func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	for !p.Closed && p.ReadBuffer.Len() == 0 {
		p.readCond.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.ReadBuffer.Read(b)
}

func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.WriteCalls++
	if p.Closed {
		p.mu.Unlock()
		return 0, errPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		p.mu.Unlock()
		return 0, err
	}
	latency := p.WriteLatency
	p.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.WriteBuffer.Write(b)
	if p.Responder == nil {
		return len(b), nil
	}
	p.pending += string(b)
	for {
		i := strings.IndexByte(p.pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(p.pending[:i], "\r")
		p.pending = p.pending[i+1:]
		if reply := p.Responder(line); reply != "" {
			p.ReadBuffer.WriteString(reply + "\n")
			p.readCond.Broadcast()
		}
	}
	return len(b), nil
}

// Close marks the port as closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.readCond.Broadcast()
	return p.CloseError
}

// AddReadData queues data for subsequent Read calls.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadBuffer.Write(data)
	p.readCond.Broadcast()
}

// GetWrittenData returns all data written to the port.
func (p *TestablePort) GetWrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.WriteBuffer.String()
}
