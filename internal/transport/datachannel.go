package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/usprobe/internal/monitoring"
)

// Record envelope on the data channel:
//
//	0-3    total record length, including this prefix
//	4-5    header blob length
//	6-7    geometry blob length
//	8-9    mode header blob length
//	10-11  reserved
//	12-    header, geometry, mode header, payload
const (
	recordPrefixSize = 12
	// MaxRecordSize bounds a single record so a corrupt length prefix cannot
	// trigger an unbounded allocation.
	MaxRecordSize = 64 << 20
)

// Record is one frame as carried on the data channel.
type Record struct {
	Header     []byte
	Geometry   []byte
	ModeHeader []byte
	Payload    []byte
}

// ReadRecord reads one length-prefixed record.
func ReadRecord(r io.Reader) (*Record, error) {
	prefix := make([]byte, recordPrefixSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}
	total := binary.LittleEndian.Uint32(prefix[0:4])
	hdrLen := int(binary.LittleEndian.Uint16(prefix[4:6]))
	geoLen := int(binary.LittleEndian.Uint16(prefix[6:8]))
	modeLen := int(binary.LittleEndian.Uint16(prefix[8:10]))

	if total < recordPrefixSize || total > MaxRecordSize {
		return nil, fmt.Errorf("invalid record length: %d", total)
	}
	body := make([]byte, int(total)-recordPrefixSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read record body: %w", err)
	}
	if hdrLen+geoLen+modeLen > len(body) {
		return nil, fmt.Errorf("record descriptors overflow body: %d+%d+%d > %d", hdrLen, geoLen, modeLen, len(body))
	}

	rec := &Record{}
	off := 0
	rec.Header = body[off : off+hdrLen]
	off += hdrLen
	rec.Geometry = body[off : off+geoLen]
	off += geoLen
	if modeLen > 0 {
		rec.ModeHeader = body[off : off+modeLen]
	}
	off += modeLen
	rec.Payload = body[off:]
	return rec, nil
}

// WriteRecord writes rec with its length prefix.
func WriteRecord(w io.Writer, rec Record) error {
	total := recordPrefixSize + len(rec.Header) + len(rec.Geometry) + len(rec.ModeHeader) + len(rec.Payload)
	if total > MaxRecordSize {
		return fmt.Errorf("record too large: %d bytes (max %d)", total, MaxRecordSize)
	}
	buf := make([]byte, 0, total)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(total))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(rec.Header)))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(rec.Geometry)))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(rec.ModeHeader)))
	buf = binary.LittleEndian.AppendUint16(buf, 0)
	buf = append(buf, rec.Header...)
	buf = append(buf, rec.Geometry...)
	buf = append(buf, rec.ModeHeader...)
	buf = append(buf, rec.Payload...)
	_, err := w.Write(buf)
	return err
}

// DataChannel receives frame records over TCP and hands each to the frame
// callback from a single goroutine.
type DataChannel struct {
	addr string
	dial func(ctx context.Context, network, addr string) (net.Conn, error)

	mu   sync.Mutex
	conn net.Conn
	done chan struct{}

	callback atomic.Pointer[FrameCallback]
	received atomic.Uint64
	failed   atomic.Uint64
}

// NewDataChannel creates a DataChannel for the probe data endpoint at addr.
func NewDataChannel(addr string) *DataChannel {
	d := &net.Dialer{Timeout: 5 * time.Second}
	return &DataChannel{addr: addr, dial: d.DialContext}
}

// SetFrameCallback registers the callback invoked for every record.
func (d *DataChannel) SetFrameCallback(cb FrameCallback) {
	if cb == nil {
		d.callback.Store(nil)
		return
	}
	d.callback.Store(&cb)
}

// Open connects and starts the read loop.
func (d *DataChannel) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return nil
	}
	conn, err := d.dial(ctx, "tcp", d.addr)
	if err != nil {
		return fmt.Errorf("data connect %s: %w", d.addr, err)
	}
	return d.serveLocked(conn)
}

// Serve starts the read loop on an existing connection.
func (d *DataChannel) Serve(conn net.Conn) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return errors.New("data channel already open")
	}
	return d.serveLocked(conn)
}

func (d *DataChannel) serveLocked(conn net.Conn) error {
	d.conn = conn
	d.done = make(chan struct{})
	go d.readLoop(conn, d.done)
	monitoring.Logf("data channel open: %s", conn.RemoteAddr())
	return nil
}

// Close closes the connection and waits for the read loop to exit, so no
// callback runs after Close returns.
func (d *DataChannel) Close() error {
	d.mu.Lock()
	conn, done := d.conn, d.done
	d.conn, d.done = nil, nil
	d.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-done
	return err
}

// Received returns the number of records delivered to the callback.
func (d *DataChannel) Received() uint64 { return d.received.Load() }

// Failed returns the number of records the callback rejected.
func (d *DataChannel) Failed() uint64 { return d.failed.Load() }

func (d *DataChannel) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	for {
		rec, err := ReadRecord(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				monitoring.Logf("data channel read failed: %v", err)
			}
			return
		}
		cbp := d.callback.Load()
		if cbp == nil {
			continue
		}
		n := d.received.Add(1)
		if err := (*cbp)(len(rec.Payload), rec.Payload, rec.Header, rec.Geometry, rec.ModeHeader); err != nil {
			failed := d.failed.Add(1)
			if monitoring.Every(failed, 100) {
				monitoring.Logf("frame %d rejected (%d total): %v", n, failed, err)
			}
		}
	}
}
