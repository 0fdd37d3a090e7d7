package session

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/minedient/elerp/internal/protocol"
	"github.com/minedient/elerp/internal/protocol/frame"
)

func TestRunExitsOnCancel(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	sess := New(serverConn, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop on cancel")
	}
}

func TestRunExitsOnClientClose(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	sess := New(serverConn, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	clientConn.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop on disconnect")
	}
}

func TestUndecodableEnvelopeClosesSession(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	sess := New(serverConn, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	if err := frame.Send(clientConn, []byte("not an envelope")); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a decode error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session survived an undecodable envelope")
	}
	// The connection is gone too.
	if _, err := frame.Recv(clientConn); err == nil {
		t.Fatal("expected the stream to be closed")
	}
}

func TestDispatchErrorKeepsSessionAlive(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	sess := New(serverConn, zerolog.Nop())
	// No handlers registered: every dispatch fails, none fatally.

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	payload, err := protocol.Marshal(&protocol.Envelope{Kind: protocol.Get, Command: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := frame.Send(clientConn, payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case err := <-done:
		t.Fatalf("session ended on a dispatch error: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	clientConn.Close()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestReplyWireShape(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()
	sess := New(serverConn, zerolog.Nop())

	go func() {
		_ = sess.ReplyStatus(protocol.Err, protocol.StatusInvalidRequest)
	}()

	if err := clientConn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	payload, err := frame.Recv(clientConn)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	env, err := protocol.Unmarshal(payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Kind != protocol.Err {
		t.Fatalf("kind: %q", env.Kind)
	}
	if status, ok := env.BodyStatus(); !ok || status != protocol.StatusInvalidRequest {
		t.Fatalf("status: %v %v", status, ok)
	}
	if env.Command != "" {
		t.Fatalf("responses carry no command, got %q", env.Command)
	}

	if err := clientConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	if _, err := io.ReadFull(clientConn, make([]byte, 1)); err == nil {
		t.Fatal("unexpected trailing bytes")
	}
}
