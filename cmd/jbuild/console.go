package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/jbuild/framework"
)

var (
	colorSuccess = lipgloss.Color("42")
	colorWarning = lipgloss.Color("220")
	colorError   = lipgloss.Color("196")
	colorDim     = lipgloss.Color("241")
)

// palette holds styles rendered for one destination, so color is only
// emitted when that writer is a terminal.
type palette struct {
	success  lipgloss.Style
	failure  lipgloss.Style
	warning  lipgloss.Style
	compiler lipgloss.Style
	dim      lipgloss.Style
}

func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		success: r.NewStyle().
			Bold(true).
			Foreground(colorSuccess),
		failure: r.NewStyle().
			Bold(true).
			Foreground(colorError),
		warning: r.NewStyle().
			Foreground(colorWarning),
		compiler: r.NewStyle().
			Foreground(colorError),
		dim: r.NewStyle().
			Foreground(colorDim),
	}
}

// console serializes output from concurrent tasks onto the command's
// writers. Program output passes through unstyled.
type console struct {
	mu    sync.Mutex
	out   io.Writer
	err   io.Writer
	style palette
}

func newConsole(out, err io.Writer) *console {
	return &console{out: out, err: err, style: newPalette(err)}
}

// logWriter lets a log handler share the console's stderr without
// interleaving partial lines.
func (c *console) logWriter() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.err.Write(p)
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func (c *console) println(w io.Writer, s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(w, s)
}

// compilerSink styles compiler output; javac reports everything on stderr.
func (c *console) compilerSink() framework.LineSink {
	return func(line string) { c.println(c.err, c.style.compiler.Render(line)) }
}

func (c *console) programStdout() framework.LineSink {
	return func(line string) { c.println(c.out, line) }
}

func (c *console) programStderr() framework.LineSink {
	return func(line string) { c.println(c.err, line) }
}

func (c *console) success(format string, args ...interface{}) {
	c.println(c.err, c.style.success.Render("ok")+" "+fmt.Sprintf(format, args...))
}

func (c *console) failure(format string, args ...interface{}) {
	c.println(c.err, c.style.failure.Render("FAIL")+" "+fmt.Sprintf(format, args...))
}

func (c *console) warn(format string, args ...interface{}) {
	c.println(c.err, c.style.warning.Render(fmt.Sprintf(format, args...)))
}

func (c *console) detail(format string, args ...interface{}) {
	c.println(c.err, c.style.dim.Render(fmt.Sprintf(format, args...)))
}
