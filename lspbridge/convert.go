package lspbridge

import (
	"path/filepath"
	"runtime"
	"strings"

	"go.lsp.dev/protocol"

	"github.com/lexcodex/jbuild/framework"
)

// DiagnosticSource is reported as the origin of every published diagnostic.
const DiagnosticSource = "javac"

// ToProtocol converts a record into an LSP diagnostic. Records count lines
// and columns from 1; LSP positions count from 0.
func ToProtocol(rec framework.DiagnosticRecord) protocol.Diagnostic {
	pos := protocol.Position{Line: zeroBased(rec.Line), Character: zeroBased(rec.Column)}
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: pos, End: pos},
		Severity: severity(rec.Category),
		Source:   DiagnosticSource,
		Message:  rec.Message,
	}
}

func zeroBased(n int) uint32 {
	if n <= 1 {
		return 0
	}
	return uint32(n - 1)
}

func severity(c framework.DiagnosticCategory) protocol.DiagnosticSeverity {
	switch c {
	case framework.DiagnosticError:
		return protocol.DiagnosticSeverityError
	case framework.DiagnosticWarning:
		return protocol.DiagnosticSeverityWarning
	default:
		return protocol.DiagnosticSeverityInformation
	}
}

// GroupByDocument converts records and groups them by the document they
// point at, keeping emission order within each document. Records with a
// relative or empty location are resolved against base, which may itself be
// a file.
func GroupByDocument(base string, recs []framework.DiagnosticRecord) (map[protocol.DocumentURI][]protocol.Diagnostic, []protocol.DocumentURI) {
	grouped := make(map[protocol.DocumentURI][]protocol.Diagnostic)
	var order []protocol.DocumentURI
	for _, rec := range recs {
		uri := DocumentURI(resolveLocation(base, rec.Location))
		if _, ok := grouped[uri]; !ok {
			order = append(order, uri)
		}
		grouped[uri] = append(grouped[uri], ToProtocol(rec))
	}
	return grouped, order
}

func resolveLocation(base, location string) string {
	if location == "" {
		return base
	}
	if filepath.IsAbs(location) {
		return location
	}
	dir := base
	if strings.HasSuffix(base, ".java") {
		dir = filepath.Dir(base)
	}
	return filepath.Join(dir, location)
}

// DocumentURI turns a filesystem path into a file URI.
func DocumentURI(path string) protocol.DocumentURI {
	return protocol.DocumentURI(pathToURI(path))
}

func pathToURI(path string) string {
	path = filepath.Clean(path)
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(path, "\\", "/")
		return "file:///" + strings.ReplaceAll(path, ":", "%3A")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "file://" + path
}
