package transport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSimulatedSerial(t *testing.T) (*SerialTransport, *Simulator, *TestablePort) {
	t.Helper()
	sim := NewSimulator()
	port := NewDevicePort(sim)
	tr := NewSerialTransportWithPort(port, "")
	tr.SetCommandTimeout(time.Second)
	t.Cleanup(func() { tr.Close() })
	return tr, sim, port
}

func TestSerialTransport_Session(t *testing.T) {
	tr, sim, port := newSimulatedSerial(t)

	require.NoError(t, tr.Connect(context.Background()))
	assert.True(t, sim.Connected())

	require.NoError(t, tr.SetParameter("Depth", "26.000"))
	v, err := tr.GetParameter("Depth")
	require.NoError(t, err)
	assert.Equal(t, "26.000", v)

	rev, err := tr.GetParameter("FPGARev")
	require.NoError(t, err)
	assert.Equal(t, "0x0105", rev)

	require.NoError(t, tr.StartScanning())
	assert.True(t, sim.Scanning())
	require.NoError(t, tr.StopScanning())
	assert.False(t, sim.Scanning())

	require.NoError(t, tr.Disconnect())
	assert.False(t, sim.Connected())

	written := port.GetWrittenData()
	for _, cmd := range []string{"CONNECT\n", "SET Depth 26.000\n", "GET Depth\n", "START\n", "STOP\n", "DISCONNECT\n"} {
		assert.Contains(t, written, cmd)
	}
}

func TestSerialTransport_NotConnected(t *testing.T) {
	tr, _, _ := newSimulatedSerial(t)

	assert.ErrorIs(t, tr.StartScanning(), ErrNotConnected)
	assert.ErrorIs(t, tr.SetParameter("Depth", "1"), ErrNotConnected)
	_, err := tr.SendCommand("PING")
	assert.ErrorIs(t, err, ErrNotConnected)
	// disconnecting an idle transport is a no-op
	assert.NoError(t, tr.Disconnect())
}

func TestSerialTransport_RejectedCommand(t *testing.T) {
	tr, sim, _ := newSimulatedSerial(t)
	require.NoError(t, tr.Connect(context.Background()))

	sim.Fail("SET Voltage", errors.New("out of range"))
	err := tr.SetParameter("Voltage", "500")
	assert.ErrorIs(t, err, ErrCommandRejected)
	assert.Contains(t, err.Error(), "out of range")

	_, err = tr.GetParameter("NoSuchThing")
	assert.ErrorIs(t, err, ErrCommandRejected)
}

func TestSerialTransport_ConnectFailure(t *testing.T) {
	tr, sim, _ := newSimulatedSerial(t)
	sim.Fail("CONNECT", errors.New("no probe"))

	err := tr.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCommandRejected)
	assert.ErrorIs(t, tr.StartScanning(), ErrNotConnected)
}

func TestSerialTransport_SendCommandRawReply(t *testing.T) {
	tr, sim, _ := newSimulatedSerial(t)
	require.NoError(t, tr.Connect(context.Background()))

	sim.SetReply("STATUS", "TEMP 31.5")
	reply, err := tr.SendCommand("STATUS")
	require.NoError(t, err)
	assert.Equal(t, "TEMP 31.5", reply)
}

func TestSerialTransport_InvalidParameter(t *testing.T) {
	tr, _, _ := newSimulatedSerial(t)
	require.NoError(t, tr.Connect(context.Background()))
	assert.Error(t, tr.SetParameter("Bad Name", "1"))
	assert.Error(t, tr.SetParameter("Name", "a\nb"))
}

func TestSerialTransport_Timeout(t *testing.T) {
	port := NewTestablePort()
	port.Responder = func(string) string { return "" }
	tr := NewSerialTransportWithPort(port, "")
	tr.SetCommandTimeout(20 * time.Millisecond)
	defer tr.Close()

	err := tr.Connect(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		line    string
		want    string
		wantErr error
	}{
		{"OK", "", nil},
		{"OK 12.5\r", "12.5", nil},
		{"ERR", "", ErrCommandRejected},
		{"ERR busy", "", ErrCommandRejected},
	}
	for _, tt := range tests {
		got, err := ParseReply(tt.line)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, tt.line)
			continue
		}
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseReply("garbage")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unexpected reply"))
}
