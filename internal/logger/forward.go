package logger

import (
	"bytes"
	"log/slog"
	"sync"
)

// Forwarder is an io.WriteCloser that splits child output into lines and
// re-emits each one through the launcher's structured logger, tagged with
// the service name. Used when no file logging is configured, matching the
// original launcher's behavior of relaying child output unmodified.
type Forwarder struct {
	mu   sync.Mutex
	log  *slog.Logger
	name string
	buf  bytes.Buffer
}

func NewForwarder(log *slog.Logger, name string) *Forwarder {
	return &Forwarder{log: log, name: name}
}

func (f *Forwarder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf.Write(p)
	for {
		line, err := f.buf.ReadString('\n')
		if err != nil {
			// partial line stays buffered until the next write or Close
			f.buf.WriteString(line)
			break
		}
		f.emit(line)
	}
	return len(p), nil
}

// Close flushes any trailing partial line.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buf.Len() > 0 {
		f.emit(f.buf.String())
		f.buf.Reset()
	}
	return nil
}

func (f *Forwarder) emit(line string) {
	line = trimNewline(line)
	if line == "" {
		return
	}
	f.log.Info(line, slog.String("service", f.name))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
