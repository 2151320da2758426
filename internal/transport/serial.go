package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/usprobe/internal/monitoring"
)

// DefaultCommandTimeout bounds how long a command waits for its reply.
const DefaultCommandTimeout = 2 * time.Second

// SerialTransport drives the probe over a line-oriented control port and
// receives frames on a TCP data channel.
//
// Control protocol, one line per command:
//
//	CONNECT | DISCONNECT | START | STOP   -> OK | ERR <msg>
//	SET <name> <value>                    -> OK | ERR <msg>
//	GET <name>                            -> OK <value> | ERR <msg>
//	anything else                         -> raw status line
type SerialTransport struct {
	mux     *Mux[SerialPorter]
	data    *DataChannel
	timeout time.Duration

	mu          sync.Mutex
	connected   bool
	cancel      context.CancelFunc
	monitorDone chan struct{}
}

// NewSerialTransport opens the control port at path. dataAddr may be empty
// when frames are delivered some other way.
func NewSerialTransport(path string, opts PortOptions, dataAddr string) (*SerialTransport, error) {
	port, err := OpenSerialPort(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialTransportWithPort(port, dataAddr), nil
}

// NewSerialTransportWithPort builds a SerialTransport over an already opened
// port.
func NewSerialTransportWithPort(port SerialPorter, dataAddr string) *SerialTransport {
	t := &SerialTransport{
		mux:     NewMux[SerialPorter](port),
		timeout: DefaultCommandTimeout,
	}
	if dataAddr != "" {
		t.data = NewDataChannel(dataAddr)
	}
	return t
}

// SetCommandTimeout overrides DefaultCommandTimeout.
func (t *SerialTransport) SetCommandTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

// Mux exposes the control port multiplexer, e.g. for admin routes.
func (t *SerialTransport) Mux() *Mux[SerialPorter] { return t.mux }

// DataChannel returns the frame data channel, or nil.
func (t *SerialTransport) DataChannel() *DataChannel { return t.data }

// Connect starts reading the control port, opens the session and the data
// channel.
func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	monitorCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel = cancel
	t.monitorDone = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		if err := t.mux.Monitor(monitorCtx); err != nil && err != context.Canceled {
			monitoring.Logf("control port monitor stopped: %v", err)
		}
	}()

	if _, err := t.command(ctx, "CONNECT"); err != nil {
		t.stopMonitor()
		return err
	}
	if t.data != nil {
		if err := t.data.Open(ctx); err != nil {
			t.stopMonitor()
			return err
		}
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

// Disconnect closes the data channel first so no frame is delivered after it
// returns, then ends the session.
func (t *SerialTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	t.mu.Unlock()

	var firstErr error
	if t.data != nil {
		if err := t.data.Close(); err != nil {
			firstErr = err
		}
	}
	if _, err := t.command(context.Background(), "DISCONNECT"); err != nil && firstErr == nil {
		firstErr = err
	}
	t.stopMonitor()
	return firstErr
}

// Close disconnects and releases the control port.
func (t *SerialTransport) Close() error {
	err := t.Disconnect()
	if cerr := t.mux.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (t *SerialTransport) stopMonitor() {
	t.mu.Lock()
	cancel, done := t.cancel, t.monitorDone
	t.cancel, t.monitorDone = nil, nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *SerialTransport) StartScanning() error {
	_, err := t.connectedCommand("START")
	return err
}

func (t *SerialTransport) StopScanning() error {
	_, err := t.connectedCommand("STOP")
	return err
}

func (t *SerialTransport) SetParameter(name, value string) error {
	if strings.ContainsAny(name, " \n") || strings.Contains(value, "\n") {
		return fmt.Errorf("invalid parameter %q=%q: whitespace in name or newline in value", name, value)
	}
	_, err := t.connectedCommand(fmt.Sprintf("SET %s %s", name, value))
	return err
}

func (t *SerialTransport) GetParameter(name string) (string, error) {
	return t.connectedCommand("GET " + name)
}

// SendCommand forwards command unvalidated and returns the raw reply line.
func (t *SerialTransport) SendCommand(command string) (string, error) {
	if !t.isConnected() {
		return "", ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.commandTimeout())
	defer cancel()
	return t.mux.Exchange(ctx, command)
}

func (t *SerialTransport) SetFrameCallback(cb FrameCallback) {
	if t.data != nil {
		t.data.SetFrameCallback(cb)
	}
}

func (t *SerialTransport) isConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *SerialTransport) commandTimeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

func (t *SerialTransport) connectedCommand(command string) (string, error) {
	if !t.isConnected() {
		return "", ErrNotConnected
	}
	return t.command(context.Background(), command)
}

func (t *SerialTransport) command(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.commandTimeout())
	defer cancel()
	reply, err := t.mux.Exchange(ctx, command)
	if err != nil {
		return "", err
	}
	return ParseReply(reply)
}

// ParseReply interprets an OK/ERR reply line.
func ParseReply(line string) (string, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "OK":
		return "", nil
	case strings.HasPrefix(line, "OK "):
		return strings.TrimSpace(line[3:]), nil
	case line == "ERR":
		return "", ErrCommandRejected
	case strings.HasPrefix(line, "ERR "):
		return "", fmt.Errorf("%w: %s", ErrCommandRejected, strings.TrimSpace(line[4:]))
	default:
		return "", fmt.Errorf("unexpected reply %q", line)
	}
}
