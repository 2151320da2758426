package transport

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to control port")

// subscriberBuffer lets a command exchange receive its reply even if the
// device answers before the caller starts waiting.
const subscriberBuffer = 16

var sendCommandTemplate = template.Must(template.New("send-command").Parse(`<!DOCTYPE html>
<html><head><title>probe control</title></head>
<body>
<h1>Send probe command</h1>
<form method="post" action="send-command-api">
<input name="command" size="60" autofocus> <button type="submit">Send</button>
</form>
<p>Replies stream at <a href="tail">tail</a>.</p>
</body></html>
`))

// Mux multiplexes the probe's line-oriented control port: many subscribers
// receive every line read from the port, and writes are serialised.
type Mux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	exchangeMu   sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewMux creates a Mux over an already opened port.
func NewMux[T SerialPorter](port T) *Mux[T] {
	return &Mux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving lines from the port. The ID
// is used to unsubscribe.
func (s *Mux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (s *Mux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand writes one command line to the port.
func (s *Mux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Exchange sends a command and returns the first line the device replies
// with. Exchanges are serialised so replies cannot interleave.
func (s *Mux[T]) Exchange(ctx context.Context, command string) (string, error) {
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	id, ch := s.Subscribe()
	defer s.Unsubscribe(id)

	if err := s.SendCommand(command); err != nil {
		return "", fmt.Errorf("send %q: %w", strings.TrimSpace(command), err)
	}

	select {
	case line, ok := <-ch:
		if !ok {
			return "", fmt.Errorf("control port closed waiting for reply to %q", strings.TrimSpace(command))
		}
		return line, nil
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for reply to %q: %w", strings.TrimSpace(command), ctx.Err())
	}
}

// Monitor reads lines from the port and sends them to subscribers until the
// context is cancelled or the port is closed.
func (s *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs in its own goroutine so the loop below can
	// still observe context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				return nil
			}
			line = strings.TrimRight(line, "\r")
			if line == "" {
				continue
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// slow subscriber, skip so the port keeps draining
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

// Close closes all subscribed channels and the port.
func (s *Mux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

// AttachAdminRoutes mounts the raw control-port console under /debug/.
func (s *Mux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a raw command to the probe control port", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to control port", command))
	})

	// Server-Sent Events of every line read from the port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
