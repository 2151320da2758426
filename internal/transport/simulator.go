package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/usprobe/internal/timeutil"
)

// Simulator is an in-memory probe. It implements Transport directly and can
// also answer the serial control protocol through HandleLine.
type Simulator struct {
	mu        sync.Mutex
	connected bool
	scanning  bool
	params    map[string]string
	commands  []string
	failures  map[string]error
	replies   map[string]string
	callback  FrameCallback
	emitted   uint64
}

// NewSimulator returns a disconnected simulator with the read-only device
// parameters pre-populated.
func NewSimulator() *Simulator {
	return &Simulator{
		params: map[string]string{
			"FPGARev":    "0x0105",
			"ARFIIsX8BF": "false",
		},
		failures: make(map[string]error),
		replies:  make(map[string]string),
	}
}

// Fail makes every later operation matching op return err. op is a verb
// (CONNECT, DISCONNECT, START, STOP, SET, GET, COMMAND) or "SET <name>" /
// "GET <name>" for a single parameter. A nil err clears the failure.
func (s *Simulator) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// SetReply sets the raw reply returned by SendCommand for command.
func (s *Simulator) SetReply(command, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[command] = reply
}

// SetDeviceParameter sets a value without logging a command, e.g. a
// read-only parameter such as FPGARev.
func (s *Simulator) SetDeviceParameter(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[name] = value
}

// Parameter returns the last value set for name.
func (s *Simulator) Parameter(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.params[name]
	return v, ok
}

// Commands returns every operation issued so far, in order.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// ClearCommands empties the command log.
func (s *Simulator) ClearCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}

// Connected reports whether a session is open.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Scanning reports whether the simulated probe is scanning.
func (s *Simulator) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// failureLocked records command and returns the injected failure, if any.
func (s *Simulator) failureLocked(verb, command string) error {
	s.commands = append(s.commands, command)
	if err, ok := s.failures[verb]; ok {
		return err
	}
	if verb == "SET" || verb == "GET" {
		fields := strings.Fields(command)
		if len(fields) > 1 {
			if err, ok := s.failures[verb+" "+fields[1]]; ok {
				return err
			}
		}
	}
	return nil
}

func (s *Simulator) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureLocked("CONNECT", "CONNECT"); err != nil {
		return err
	}
	s.connected = true
	return nil
}

func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureLocked("DISCONNECT", "DISCONNECT"); err != nil {
		return err
	}
	s.connected = false
	s.scanning = false
	return nil
}

func (s *Simulator) StartScanning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if err := s.failureLocked("START", "START"); err != nil {
		return err
	}
	s.scanning = true
	return nil
}

func (s *Simulator) StopScanning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if err := s.failureLocked("STOP", "STOP"); err != nil {
		return err
	}
	s.scanning = false
	return nil
}

func (s *Simulator) SetParameter(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if err := s.failureLocked("SET", "SET "+name+" "+value); err != nil {
		return err
	}
	s.params[name] = value
	return nil
}

func (s *Simulator) GetParameter(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return "", ErrNotConnected
	}
	if err := s.failureLocked("GET", "GET "+name); err != nil {
		return "", err
	}
	v, ok := s.params[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown parameter %q", ErrCommandRejected, name)
	}
	return v, nil
}

// SendCommand returns the reply configured with SetReply, or "OK".
func (s *Simulator) SendCommand(command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return "", ErrNotConnected
	}
	if err := s.failureLocked("COMMAND", command); err != nil {
		return "", err
	}
	if reply, ok := s.replies[command]; ok {
		return reply, nil
	}
	return "OK", nil
}

func (s *Simulator) SetFrameCallback(cb FrameCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Emitted returns the number of records handed to the callback.
func (s *Simulator) Emitted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

// Emit delivers rec to the frame callback synchronously and returns the
// callback's error. Records are delivered whatever the scanning state so
// callers can test how late frames are handled.
func (s *Simulator) Emit(rec Record) error {
	s.mu.Lock()
	cb := s.callback
	if cb != nil {
		s.emitted++
	}
	s.mu.Unlock()
	if cb == nil {
		return nil
	}
	return cb(len(rec.Payload), rec.Payload, rec.Header, rec.Geometry, rec.ModeHeader)
}

// Run emits a record from gen every interval while the probe is scanning,
// until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, clock timeutil.Clock, interval time.Duration, gen func(seq uint32) (Record, error)) error {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if !s.Scanning() {
				continue
			}
			rec, err := gen(seq)
			if err != nil {
				return err
			}
			seq++
			// rejections are counted by the receiver
			_ = s.Emit(rec)
		}
	}
}

// HandleLine answers one line of the serial control protocol.
func (s *Simulator) HandleLine(line string) string {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(fields) == 0 || fields[0] == "" {
		return ""
	}
	var (
		value string
		err   error
	)
	switch fields[0] {
	case "CONNECT":
		err = s.Connect(context.Background())
	case "DISCONNECT":
		err = s.Disconnect()
	case "START":
		err = s.StartScanning()
	case "STOP":
		err = s.StopScanning()
	case "SET":
		if len(fields) != 3 {
			return "ERR usage: SET <name> <value>"
		}
		err = s.SetParameter(fields[1], fields[2])
	case "GET":
		if len(fields) != 2 {
			return "ERR usage: GET <name>"
		}
		value, err = s.GetParameter(fields[1])
	default:
		return s.rawReply(line)
	}
	if err != nil {
		return "ERR " + err.Error()
	}
	if value != "" {
		return "OK " + value
	}
	return "OK"
}

func (s *Simulator) rawReply(line string) string {
	reply, err := s.SendCommand(line)
	if err != nil {
		return "ERR " + err.Error()
	}
	return reply
}
