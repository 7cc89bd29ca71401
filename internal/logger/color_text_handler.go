package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

const colorReset = "\033[0m"

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m" // red
	case l >= slog.LevelWarn:
		return "\033[33m" // yellow
	case l >= slog.LevelInfo:
		return "\033[32m" // green
	default:
		return "\033[36m" // cyan
	}
}

// ColorTextHandler renders records as plain text lines with an ANSI-colored
// level tag. It writes the line itself rather than routing the color codes
// through slog.TextHandler, which would escape the ESC byte inside the
// quoted message and deliver literal backslash sequences to the terminal.
type ColorTextHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	prefix string // attrs accumulated via WithAttrs, preformatted
	group  string
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *ColorTextHandler {
	h := &ColorTextHandler{mu: &sync.Mutex{}, w: w}
	if opts != nil {
		h.level = opts.Level
	}
	return h
}

func (h *ColorTextHandler) Enabled(_ context.Context, l slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return l >= min
}

func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Format("15:04:05.000"))
		b.WriteByte(' ')
	}
	b.WriteString(levelColor(r.Level))
	b.WriteString(r.Level.String())
	b.WriteString(colorReset)
	b.WriteString("  ")
	b.WriteString(r.Message)
	b.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs preformats the attrs once; derived handlers share the writer
// lock with their parent.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		h.appendAttr(&b, a)
	}
	h2.prefix = b.String()
	return &h2
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	h2 := *h
	if name != "" {
		if h2.group != "" {
			h2.group += "."
		}
		h2.group += name
	}
	return &h2
}

func (h *ColorTextHandler) appendAttr(b *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	val := a.Value.Resolve().String()
	if strings.ContainsAny(val, " \t\"=") {
		val = strconv.Quote(val)
	}
	fmt.Fprintf(b, " %s=%s", key, val)
}
