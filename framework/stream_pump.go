package framework

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
)

// LineSink receives one line of process output without its trailing newline.
type LineSink func(line string)

// DiscardSink drops every line.
func DiscardSink(string) {}

// TeeSink forwards each line to every non-nil sink in order.
func TeeSink(sinks ...LineSink) LineSink {
	return func(line string) {
		for _, s := range sinks {
			if s != nil {
				s(line)
			}
		}
	}
}

// LineCollector accumulates lines; safe for concurrent use.
type LineCollector struct {
	mu    sync.Mutex
	lines []string
}

// Sink returns a LineSink appending to the collector.
func (c *LineCollector) Sink() LineSink {
	return func(line string) {
		c.mu.Lock()
		c.lines = append(c.lines, line)
		c.mu.Unlock()
	}
}

// Lines returns a copy of the collected lines.
func (c *LineCollector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// StreamPump copies newline-delimited text from one process stream into a
// sink until the stream ends. Read errors end the pump quietly; trailing
// output may be lost but the caller is never disturbed.
type StreamPump struct {
	name   string
	reader io.Reader
	sink   LineSink
	logger *slog.Logger
	lines  int
}

// NewStreamPump creates a pump for r. name labels log records ("stdout").
func NewStreamPump(name string, r io.Reader, sink LineSink, logger *slog.Logger) *StreamPump {
	if sink == nil {
		sink = DiscardSink
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamPump{name: name, reader: r, sink: sink, logger: logger}
}

// Run pumps until end of input. It never returns an error. A panicking sink
// stops forwarding; the rest of the stream is drained so the writer never
// blocks on a full pipe.
func (p *StreamPump) Run() {
	br := bufio.NewReader(p.reader)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			p.lines++
			if !p.deliver(line) {
				_, _ = io.Copy(io.Discard, br)
				return
			}
		}
		if err == nil {
			continue
		}
		if !isStreamClosed(err) {
			p.logger.Warn("stream pump read failed", "stream", p.name, "error", err)
		}
		return
	}
}

func (p *StreamPump) deliver(line string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("stream pump sink panicked", "stream", p.name, "panic", r)
			ok = false
		}
	}()
	p.sink(line)
	return true
}

// Lines reports how many lines were forwarded. Only meaningful after Run.
func (p *StreamPump) Lines() int {
	return p.lines
}

func isStreamClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, fs.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
