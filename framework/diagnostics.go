package framework

import "fmt"

// DiagnosticCategory classifies a compiler message.
type DiagnosticCategory string

const (
	DiagnosticError   DiagnosticCategory = "error"
	DiagnosticWarning DiagnosticCategory = "warning"
	DiagnosticNote    DiagnosticCategory = "note"
)

// DiagnosticRecord is one structured compiler message.
type DiagnosticRecord struct {
	Location string             `json:"location"`
	Category DiagnosticCategory `json:"category"`
	Message  string             `json:"message"`
	Line     int                `json:"line"`
	Column   int                `json:"column"`
}

func (d DiagnosticRecord) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.Location, d.Line, d.Column, d.Category, d.Message)
}

// DiagnosticParser turns raw compiler stderr lines into records. The core
// ships no parser; callers plug one in.
type DiagnosticParser interface {
	Parse(lines []string) []DiagnosticRecord
}

// DiagnosticParserFunc adapts a function to DiagnosticParser.
type DiagnosticParserFunc func(lines []string) []DiagnosticRecord

// Parse calls f.
func (f DiagnosticParserFunc) Parse(lines []string) []DiagnosticRecord {
	return f(lines)
}
