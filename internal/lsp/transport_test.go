package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

// pipePair wires a transport to an in-memory peer.
type pipePair struct {
	transport *Transport

	// peer side
	fromClient *bufio.Reader
	toClient   *io.PipeWriter
}

func newPipePair(t *testing.T) *pipePair {
	t.Helper()

	clientIn, peerOut := io.Pipe()  // peer -> client
	peerIn, clientOut := io.Pipe() // client -> peer

	tr := NewTransport(clientIn, clientOut, nil, log.New(io.Discard))
	t.Cleanup(func() {
		_ = tr.Close()
		clientIn.Close()
		peerOut.Close()
		peerIn.Close()
		clientOut.Close()
	})

	return &pipePair{
		transport:  tr,
		fromClient: bufio.NewReader(peerIn),
		toClient:   peerOut,
	}
}

func TestTransport_NotifyFraming(t *testing.T) {
	p := newPipePair(t)

	go func() {
		_ = p.transport.Notify(context.Background(), "test/notification", map[string]string{"message": "hello"})
	}()

	raw, err := readFrame(p.fromClient)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}

	body := string(raw)
	if !strings.Contains(body, `"jsonrpc":"2.0"`) {
		t.Errorf("missing jsonrpc field in: %s", body)
	}
	if !strings.Contains(body, `"method":"test/notification"`) {
		t.Errorf("missing method field in: %s", body)
	}
	if strings.Contains(body, `"id"`) {
		t.Errorf("notification must not carry an id: %s", body)
	}
}

func TestTransport_Call(t *testing.T) {
	p := newPipePair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.transport.Start(ctx)

	// Peer: answer the first request.
	go func() {
		raw, err := readFrame(p.fromClient)
		if err != nil {
			return
		}
		var req struct {
			ID int64 `json:"id"`
		}
		_ = json.Unmarshal(raw, &req)
		_ = writeFrame(p.toClient, map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]string{"status": "ok"},
		})
	}()

	var result struct {
		Status string `json:"status"`
	}
	if err := p.transport.Call(ctx, "test/request", nil, &result); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.Status != "ok" {
		t.Errorf("result.Status = %q, want %q", result.Status, "ok")
	}
}

func TestTransport_CallRPCError(t *testing.T) {
	p := newPipePair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.transport.Start(ctx)

	go func() {
		raw, err := readFrame(p.fromClient)
		if err != nil {
			return
		}
		var req struct {
			ID int64 `json:"id"`
		}
		_ = json.Unmarshal(raw, &req)
		_ = writeFrame(p.toClient, map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32601, "message": "method not found"},
		})
	}()

	err := p.transport.Call(ctx, "test/missing", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Call() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("Code = %d, want -32601", rpcErr.Code)
	}
}

func TestTransport_NullResultResponse(t *testing.T) {
	// shutdown responds with "result": null; the transport must still
	// route it to the waiting caller.
	p := newPipePair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.transport.Start(ctx)

	go func() {
		raw, err := readFrame(p.fromClient)
		if err != nil {
			return
		}
		var req struct {
			ID int64 `json:"id"`
		}
		_ = json.Unmarshal(raw, &req)
		_ = writeFrame(p.toClient, map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  nil,
		})
	}()

	if err := p.transport.Call(ctx, "shutdown", nil, nil); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
}

func TestTransport_NotificationHandler(t *testing.T) {
	p := newPipePair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.transport.Start(ctx)

	received := make(chan string, 1)
	p.transport.OnNotification("window/logMessage", func(method string, params json.RawMessage) {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(params, &body)
		received <- body.Message
	})

	if err := writeFrame(p.toClient, map[string]any{
		"jsonrpc": "2.0",
		"method":  "window/logMessage",
		"params":  map[string]string{"message": "server says hi"},
	}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	select {
	case msg := <-received:
		if msg != "server says hi" {
			t.Errorf("handler got %q, want %q", msg, "server says hi")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification handler never invoked")
	}
}

func TestTransport_CallAfterClose(t *testing.T) {
	p := newPipePair(t)

	if err := p.transport.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.transport.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	err := p.transport.Call(context.Background(), "test/request", nil, nil)
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("Call() after close error = %v, want ErrShutdown", err)
	}
	if !p.transport.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
}

func TestTransport_CloseReleasesPendingCall(t *testing.T) {
	p := newPipePair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.transport.Start(ctx)

	callErr := make(chan error, 1)
	go func() {
		callErr <- p.transport.Call(ctx, "test/hang", nil, nil)
	}()

	// Let the request go out, then tear the transport down.
	if _, err := readFrame(p.fromClient); err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	_ = p.transport.Close()

	select {
	case err := <-callErr:
		if !errors.Is(err, ErrShutdown) {
			t.Errorf("pending Call() error = %v, want ErrShutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never released after Close")
	}
}
