package lspbridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sourcegraph/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/lexcodex/jbuild/framework"
)

// MethodPublishDiagnostics is the LSP notification carrying diagnostics.
const MethodPublishDiagnostics = "textDocument/publishDiagnostics"

// Notifier sends JSON-RPC notifications. *jsonrpc2.Conn satisfies it.
type Notifier interface {
	Notify(ctx context.Context, method string, params interface{}, opts ...jsonrpc2.CallOption) error
}

// Publisher forwards compile diagnostics to an LSP client.
type Publisher struct {
	Conn   Notifier
	Logger *slog.Logger
}

// NewPublisher wraps conn.
func NewPublisher(conn Notifier, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{Conn: conn, Logger: logger}
}

// Publish sends one publishDiagnostics notification. A nil slice is sent as
// an empty list so the client clears stale entries.
func (p *Publisher) Publish(ctx context.Context, uri protocol.DocumentURI, diags []protocol.Diagnostic) error {
	if diags == nil {
		diags = []protocol.Diagnostic{}
	}
	params := &protocol.PublishDiagnosticsParams{URI: uri, Diagnostics: diags}
	if err := p.Conn.Notify(ctx, MethodPublishDiagnostics, params); err != nil {
		return fmt.Errorf("publish diagnostics for %s: %w", uri, err)
	}
	return nil
}

// DrainAndPublish waits for the compile step to close ch, then publishes
// everything it carried. The compiled file always receives a notification,
// empty on a clean compile.
func (p *Publisher) DrainAndPublish(ctx context.Context, file string, ch *framework.DiagnosticChannel) (int, error) {
	select {
	case <-ch.Done():
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	recs := ch.Drain()
	grouped, order := GroupByDocument(file, recs)
	self := DocumentURI(file)
	if _, ok := grouped[self]; !ok {
		order = append([]protocol.DocumentURI{self}, order...)
	}
	for _, uri := range order {
		if err := p.Publish(ctx, uri, grouped[uri]); err != nil {
			return 0, err
		}
	}
	p.Logger.Debug("diagnostics published", "file", file, "count", len(recs), "documents", len(order))
	return len(recs), nil
}

// NewStreamConn opens a JSON-RPC connection using LSP header framing over
// the given pipes. Incoming requests are rejected; notifications are ignored.
func NewStreamConn(ctx context.Context, r io.ReadCloser, w io.WriteCloser) *jsonrpc2.Conn {
	rwc := &stdioReadWriteCloser{reader: r, writer: w}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		if !req.Notif {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not handled"}
		}
		return nil, nil
	})
	return jsonrpc2.NewConn(ctx, stream, handler)
}

type stdioReadWriteCloser struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioReadWriteCloser) Read(p []byte) (int, error)  { return s.reader.Read(p) }
func (s *stdioReadWriteCloser) Write(p []byte) (int, error) { return s.writer.Write(p) }
func (s *stdioReadWriteCloser) Close() error {
	_ = s.reader.Close()
	return s.writer.Close()
}
