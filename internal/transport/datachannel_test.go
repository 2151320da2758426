package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(payload []byte) Record {
	return Record{
		Header:     MarshalFrameHeader(FrameHeader{FrameIndex: 7, TimeStamp: 1000}),
		Geometry:   MarshalGeometryHeader(GeometryHeader{LineCount: 2, SamplesPerLine: 2, RawSamplesPerLine: 2, Decimation: 1, DepthMm: 10}),
		ModeHeader: MarshalModeHeader(ModeHeader{LineIndex: 1, ColumnCount: 1}),
		Payload:    payload,
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := testRecord([]byte{1, 2, 3, 4})
	require.NoError(t, WriteRecord(&buf, in))

	out, err := ReadRecord(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Header, out.Header)
	assert.Equal(t, in.Geometry, out.Geometry)
	assert.Equal(t, in.ModeHeader, out.ModeHeader)
	assert.Equal(t, in.Payload, out.Payload)
}

func TestRecord_WithoutModeHeader(t *testing.T) {
	var buf bytes.Buffer
	in := testRecord([]byte{9})
	in.ModeHeader = nil
	require.NoError(t, WriteRecord(&buf, in))

	out, err := ReadRecord(&buf)
	require.NoError(t, err)
	assert.Nil(t, out.ModeHeader)
	assert.Equal(t, []byte{9}, out.Payload)
}

func TestReadRecord_InvalidLength(t *testing.T) {
	prefix := make([]byte, recordPrefixSize)
	binary.LittleEndian.PutUint32(prefix, 4)
	_, err := ReadRecord(bytes.NewReader(prefix))
	assert.Error(t, err)

	binary.LittleEndian.PutUint32(prefix, MaxRecordSize+1)
	_, err = ReadRecord(bytes.NewReader(prefix))
	assert.Error(t, err)
}

func TestReadRecord_DescriptorOverflow(t *testing.T) {
	prefix := make([]byte, recordPrefixSize+4)
	binary.LittleEndian.PutUint32(prefix[0:4], uint32(len(prefix)))
	binary.LittleEndian.PutUint16(prefix[4:6], 16)
	_, err := ReadRecord(bytes.NewReader(prefix))
	assert.Error(t, err)
}

func TestReadRecord_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, testRecord(make([]byte, 32))))
	data := buf.Bytes()[:buf.Len()-1]
	_, err := ReadRecord(bytes.NewReader(data))
	assert.Error(t, err)
}

func TestDataChannel_DeliversRecords(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	dc := NewDataChannel(ln.Addr().String())
	got := make(chan int, 4)
	dc.SetFrameCallback(func(length int, data, header, geometry, modeHeader []byte) error {
		if len(header) != FrameHeaderSize || len(geometry) != GeometryHeaderSize {
			return errors.New("bad descriptors")
		}
		got <- length
		if length == 3 {
			return errors.New("rejected")
		}
		return nil
	})

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, dc.Open(ctx))

	server := <-accepted
	defer server.Close()
	require.NoError(t, WriteRecord(server, testRecord([]byte{1, 2})))
	require.NoError(t, WriteRecord(server, testRecord([]byte{1, 2, 3})))

	for _, want := range []int{2, 3} {
		select {
		case n := <-got:
			assert.Equal(t, want, n)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for record")
		}
	}

	require.NoError(t, dc.Close())
	assert.Equal(t, uint64(2), dc.Received())
	assert.Equal(t, uint64(1), dc.Failed())
}

func TestDataChannel_NoCallbackAfterClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	dc := NewDataChannel("unused")
	calls := make(chan struct{}, 8)
	dc.SetFrameCallback(func(int, []byte, []byte, []byte, []byte) error {
		calls <- struct{}{}
		return nil
	})
	require.NoError(t, dc.Serve(client))
	assert.Error(t, dc.Serve(client), "second Serve should fail")

	go WriteRecord(server, testRecord([]byte{1}))
	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for record")
	}

	require.NoError(t, dc.Close())
	// the pipe is closed, so further writes fail and nothing is delivered
	assert.Error(t, WriteRecord(server, testRecord([]byte{1})))
	assert.Len(t, calls, 0)
	// closing twice is a no-op
	assert.NoError(t, dc.Close())
}

func TestDataChannel_OpenFails(t *testing.T) {
	dc := NewDataChannel("127.0.0.1:1")
	dc.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("refused")
	}
	err := dc.Open(context.Background())
	assert.Error(t, err)
}
