// Package dispatch routes decoded envelopes to handlers registered by
// (kind, command), handing each handler only the slice of the envelope
// its declared scope asks for.
package dispatch

import (
	"fmt"

	"github.com/minedient/elerp/internal/protocol"
)

// Scope selects which view of an envelope a handler receives.
type Scope int

const (
	// ScopeMessage hands the handler the envelope body.
	ScopeMessage Scope = iota
	// ScopeCommand hands the handler the command string.
	ScopeCommand
	// ScopeResponse hands the handler the directional tag.
	ScopeResponse
	// ScopeWhole hands the handler the entire envelope.
	ScopeWhole
)

func (s Scope) String() string {
	switch s {
	case ScopeMessage:
		return "message"
	case ScopeCommand:
		return "command"
	case ScopeResponse:
		return "response"
	case ScopeWhole:
		return "whole"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Handler receives the scope-selected view: the body (any) for
// ScopeMessage, string for ScopeCommand, protocol.Kind for
// ScopeResponse, *protocol.Envelope for ScopeWhole.
type Handler func(view any) error

// DefaultHandler receives the whole envelope when no registration
// matches.
type DefaultHandler func(env *protocol.Envelope) error

// UnhandledError reports a dispatch with no matching registration and
// no default handler.
type UnhandledError struct {
	Kind    protocol.Kind
	Command string
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("dispatch: no handler registered for (%s, %q)", string(e.Kind), e.Command)
}

type key struct {
	kind    protocol.Kind
	command string
}

type entry struct {
	scope   Scope
	handler Handler
}

// Executor owns one registration table. Populate it before the receive
// loop starts; registration is not safe against concurrent dispatch.
type Executor struct {
	handlers map[key]entry
	fallback DefaultHandler
}

func NewExecutor() *Executor {
	return &Executor{handlers: make(map[key]entry)}
}

// Register upserts the handler for (kind, command); the last
// registration for a key wins.
func (e *Executor) Register(kind protocol.Kind, command string, scope Scope, h Handler) {
	e.handlers[key{kind: kind, command: command}] = entry{scope: scope, handler: h}
}

// OnMessage registers a body-scoped handler.
func (e *Executor) OnMessage(kind protocol.Kind, command string, h func(body map[string]any) error) {
	e.Register(kind, command, ScopeMessage, func(view any) error {
		if m, ok := view.(map[string]any); ok {
			return h(m)
		}
		return h(map[string]any{})
	})
}

// OnWhole registers an envelope-scoped handler.
func (e *Executor) OnWhole(kind protocol.Kind, command string, h func(env *protocol.Envelope) error) {
	e.Register(kind, command, ScopeWhole, func(view any) error {
		return h(view.(*protocol.Envelope))
	})
}

// OnCommand registers a command-scoped handler.
func (e *Executor) OnCommand(kind protocol.Kind, command string, h func(command string) error) {
	e.Register(kind, command, ScopeCommand, func(view any) error {
		return h(view.(string))
	})
}

// OnResponse registers a tag-scoped handler.
func (e *Executor) OnResponse(kind protocol.Kind, command string, h func(kind protocol.Kind) error) {
	e.Register(kind, command, ScopeResponse, func(view any) error {
		return h(view.(protocol.Kind))
	})
}

// SetDefault installs the fallback invoked when no registration
// matches. The fallback always receives the whole envelope.
func (e *Executor) SetDefault(h DefaultHandler) {
	e.fallback = h
}

// Dispatch looks up the handler for the envelope's (kind, command) and
// invokes it with the view its scope declares.
func (e *Executor) Dispatch(env *protocol.Envelope) error {
	ent, ok := e.handlers[key{kind: env.Kind, command: env.Command}]
	if !ok {
		if e.fallback == nil {
			return &UnhandledError{Kind: env.Kind, Command: env.Command}
		}
		return e.fallback(env)
	}

	switch ent.scope {
	case ScopeMessage:
		return ent.handler(env.Body)
	case ScopeCommand:
		return ent.handler(env.Command)
	case ScopeResponse:
		return ent.handler(env.Kind)
	default:
		return ent.handler(env)
	}
}
