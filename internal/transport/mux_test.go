package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// localHostRequest creates an httptest request that appears to come from
// localhost, which tsweb.AllowDebugAccess requires.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func startMonitor(t *testing.T, m *Mux[*TestablePort]) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Monitor(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMux_SendCommandAppendsNewline(t *testing.T) {
	port := NewTestablePort()
	m := NewMux(port)

	if err := m.SendCommand("GET Depth"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if err := m.SendCommand("STOP\n"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if got, want := port.GetWrittenData(), "GET Depth\nSTOP\n"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
}

func TestMux_SendCommandWriteError(t *testing.T) {
	port := NewTestablePort()
	port.WriteError = errors.New("boom")
	m := NewMux(port)

	if err := m.SendCommand("START"); err == nil {
		t.Fatal("expected write error")
	}
}

func TestMux_Exchange(t *testing.T) {
	port := NewTestablePort()
	port.Responder = func(line string) string {
		if line == "GET FPGARev" {
			return "OK 0x0105"
		}
		return ""
	}
	m := NewMux(port)
	startMonitor(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := m.Exchange(ctx, "GET FPGARev")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if reply != "OK 0x0105" {
		t.Errorf("reply = %q", reply)
	}
}

func TestMux_ExchangeTimeout(t *testing.T) {
	port := NewTestablePort()
	port.Responder = func(string) string { return "" }
	m := NewMux(port)
	startMonitor(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Exchange(ctx, "START")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestMux_MonitorFansOutAndSkipsBlankLines(t *testing.T) {
	port := NewTestablePort()
	m := NewMux(port)

	_, a := m.Subscribe()
	_, b := m.Subscribe()
	startMonitor(t, m)

	port.AddReadData([]byte("first\r\n\nsecond\n"))

	for _, ch := range []chan string{a, b} {
		for _, want := range []string{"first", "second"} {
			select {
			case got := <-ch:
				if got != want {
					t.Errorf("got %q, want %q", got, want)
				}
			case <-time.After(time.Second):
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}
}

func TestMux_UnsubscribeClosesChannel(t *testing.T) {
	m := NewMux(NewTestablePort())
	id, ch := m.Subscribe()
	m.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	// unknown IDs are ignored
	m.Unsubscribe("missing")
}

func TestMux_CloseIsIdempotent(t *testing.T) {
	port := NewTestablePort()
	m := NewMux(port)
	_, ch := m.Subscribe()

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !port.Closed {
		t.Error("port not closed")
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
}

func TestMux_AdminSendCommandAPI(t *testing.T) {
	port := NewTestablePort()
	m := NewMux(port)
	httpMux := http.NewServeMux()
	m.AttachAdminRoutes(httpMux)

	tests := []struct {
		name       string
		method     string
		form       url.Values
		wantStatus int
	}{
		{"valid", http.MethodPost, url.Values{"command": {"GET Depth"}}, http.StatusOK},
		{"empty", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := localHostRequest(tt.method, "/debug/send-command-api", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
	if got := port.GetWrittenData(); got != "GET Depth\n" {
		t.Errorf("written = %q", got)
	}
}

func TestMux_AdminSendCommandPage(t *testing.T) {
	m := NewMux(NewTestablePort())
	httpMux := http.NewServeMux()
	m.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/send-command", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "send-command-api") {
		t.Errorf("page does not post to the API: %q", rec.Body.String())
	}
}
