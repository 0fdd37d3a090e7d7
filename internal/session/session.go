// Package session runs the per-connection read-dispatch-reply loop that
// bridges the framing layer and the dispatch engine for the lifetime of
// one accepted TCP connection.
package session

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/minedient/elerp/internal/protocol"
	"github.com/minedient/elerp/internal/protocol/dispatch"
	"github.com/minedient/elerp/internal/protocol/frame"
)

// Requests within one session are strictly sequential, so the limiter
// only paces a client that hammers the stream.
const (
	requestsPerSecond = 20
	requestBurst      = 40
)

// Session owns one bidirectional stream and one dispatch engine.
// Handlers are registered before Run starts, never concurrently with it.
type Session struct {
	id      string
	conn    net.Conn
	exec    *dispatch.Executor
	limiter *rate.Limiter
	log     zerolog.Logger
}

func New(conn net.Conn, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		conn:    conn,
		exec:    dispatch.NewExecutor(),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		log: log.With().
			Str("session", id).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Executor exposes the dispatch engine for handler registration.
func (s *Session) Executor() *dispatch.Executor {
	return s.exec
}

// Send frames and writes one envelope to the peer.
func (s *Session) Send(env *protocol.Envelope) error {
	payload, err := protocol.Marshal(env)
	if err != nil {
		return err
	}
	return frame.Send(s.conn, payload)
}

// Reply sends a command-less response envelope.
func (s *Session) Reply(kind protocol.Kind, body any) error {
	return s.Send(&protocol.Envelope{Kind: kind, Body: body})
}

// ReplyStatus sends a response whose body is a bare status tag.
func (s *Session) ReplyStatus(kind protocol.Kind, status protocol.Status) error {
	return s.Reply(kind, status)
}

// Run receives, decodes and dispatches envelopes until the peer
// disconnects or ctx is cancelled. Cancellation closes the stream to
// unblock the pending read, so a quiescent session exits promptly.
//
// Error policy: a clean EOF ends the loop silently; a mid-frame close or
// reset is logged and ends it; a decode failure closes the connection
// because the framing can no longer be trusted; a dispatch failure is
// fatal to that request only.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	s.log.Info().Msg("session started")
	for {
		payload, err := frame.Recv(s.conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.log.Info().Msg("client disconnected")
				return nil
			case errors.Is(err, net.ErrClosed):
				s.log.Info().Msg("session stopped")
				return nil
			default:
				s.log.Warn().Err(err).Msg("connection lost mid-message")
				return nil
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		env, err := protocol.Unmarshal(payload)
		if err != nil {
			// Continuing after a bad envelope risks desynchronized
			// framing; drop the connection instead.
			s.log.Error().Err(err).Msg("undecodable envelope, closing session")
			return err
		}

		if err := s.exec.Dispatch(env); err != nil {
			s.log.Error().
				Err(err).
				Str("kind", string(env.Kind)).
				Str("command", env.Command).
				Msg("request failed")
		}
	}
}
