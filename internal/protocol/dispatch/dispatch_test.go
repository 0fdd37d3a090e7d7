package dispatch

import (
	"errors"
	"testing"

	"github.com/minedient/elerp/internal/protocol"
)

func TestDispatchScopeViews(t *testing.T) {
	exec := NewExecutor()
	env := &protocol.Envelope{
		Kind:    protocol.Get,
		Command: "getVersion",
		Body:    map[string]any{"probe": true},
	}

	var gotBody map[string]any
	exec.OnMessage(protocol.Get, "getVersion", func(body map[string]any) error {
		gotBody = body
		return nil
	})
	if err := exec.Dispatch(env); err != nil {
		t.Fatalf("message dispatch: %v", err)
	}
	if gotBody["probe"] != true {
		t.Fatalf("body view: %#v", gotBody)
	}

	var gotCommand string
	exec.OnCommand(protocol.Get, "getVersion", func(command string) error {
		gotCommand = command
		return nil
	})
	if err := exec.Dispatch(env); err != nil {
		t.Fatalf("command dispatch: %v", err)
	}
	if gotCommand != "getVersion" {
		t.Fatalf("command view: %q", gotCommand)
	}

	var gotKind protocol.Kind
	exec.OnResponse(protocol.Get, "getVersion", func(kind protocol.Kind) error {
		gotKind = kind
		return nil
	})
	if err := exec.Dispatch(env); err != nil {
		t.Fatalf("response dispatch: %v", err)
	}
	if gotKind != protocol.Get {
		t.Fatalf("kind view: %q", gotKind)
	}

	var gotEnv *protocol.Envelope
	exec.OnWhole(protocol.Get, "getVersion", func(e *protocol.Envelope) error {
		gotEnv = e
		return nil
	})
	if err := exec.Dispatch(env); err != nil {
		t.Fatalf("whole dispatch: %v", err)
	}
	if gotEnv != env {
		t.Fatalf("whole view is not the dispatched envelope")
	}
}

func TestDispatchKeysOnKindAndCommand(t *testing.T) {
	exec := NewExecutor()
	var hit string
	exec.OnMessage(protocol.Get, "getVersion", func(map[string]any) error {
		hit = "get"
		return nil
	})
	exec.OnMessage(protocol.Post, "getVersion", func(map[string]any) error {
		hit = "post"
		return nil
	})

	if err := exec.Dispatch(&protocol.Envelope{Kind: protocol.Post, Command: "getVersion"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if hit != "post" {
		t.Fatalf("wrong handler: %q", hit)
	}
}

func TestDispatchNonMapBodyYieldsEmptyMap(t *testing.T) {
	exec := NewExecutor()
	var gotBody map[string]any
	exec.OnMessage(protocol.Get, "getVersion", func(body map[string]any) error {
		gotBody = body
		return nil
	})
	err := exec.Dispatch(&protocol.Envelope{Kind: protocol.Get, Command: "getVersion", Body: "scalar"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotBody == nil || len(gotBody) != 0 {
		t.Fatalf("expected empty map view, got %#v", gotBody)
	}
}

func TestLastRegistrationWins(t *testing.T) {
	exec := NewExecutor()
	var hit string
	exec.OnMessage(protocol.Get, "x", func(map[string]any) error { hit = "first"; return nil })
	exec.OnMessage(protocol.Get, "x", func(map[string]any) error { hit = "second"; return nil })

	if err := exec.Dispatch(&protocol.Envelope{Kind: protocol.Get, Command: "x"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if hit != "second" {
		t.Fatalf("expected the later registration, got %q", hit)
	}
}

func TestDispatchUnhandled(t *testing.T) {
	exec := NewExecutor()
	err := exec.Dispatch(&protocol.Envelope{Kind: protocol.Get, Command: "missing"})
	var unhandled *UnhandledError
	if !errors.As(err, &unhandled) {
		t.Fatalf("expected UnhandledError, got %v", err)
	}
	if unhandled.Kind != protocol.Get || unhandled.Command != "missing" {
		t.Fatalf("unhandled pair: %s %q", unhandled.Kind, unhandled.Command)
	}
}

func TestDefaultHandlerReceivesWholeEnvelope(t *testing.T) {
	exec := NewExecutor()
	exec.OnMessage(protocol.Get, "known", func(map[string]any) error {
		t.Fatal("registered handler must not see unmatched traffic")
		return nil
	})

	var gotEnv *protocol.Envelope
	exec.SetDefault(func(env *protocol.Envelope) error {
		gotEnv = env
		return nil
	})

	env := &protocol.Envelope{Kind: protocol.Post, Command: "unknown"}
	if err := exec.Dispatch(env); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotEnv != env {
		t.Fatalf("default handler did not receive the envelope")
	}
}

func TestHandlerErrorPropagates(t *testing.T) {
	exec := NewExecutor()
	want := errors.New("boom")
	exec.OnMessage(protocol.Get, "x", func(map[string]any) error { return want })

	if err := exec.Dispatch(&protocol.Envelope{Kind: protocol.Get, Command: "x"}); !errors.Is(err, want) {
		t.Fatalf("expected handler error, got %v", err)
	}
}
