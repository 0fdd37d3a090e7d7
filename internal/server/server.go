// Package server accepts TCP sessions and serves the worksheet
// distribution commands over them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/minedient/elerp/internal/config"
	"github.com/minedient/elerp/internal/resources"
	"github.com/minedient/elerp/internal/session"
	"github.com/minedient/elerp/internal/store"
)

// Version is the server protocol version, compared against the client's
// on checkVersion.
const Version = "2.0.0"

// acceptPoll bounds a blocked accept so the stop signal is re-checked
// promptly.
const acceptPoll = 3 * time.Second

// Server owns the TCP accept loop, the address book of connected
// clients and the cached worksheet count.
type Server struct {
	cfg   config.ServerConfig
	store *store.Store
	res   *resources.Resources
	log   zerolog.Logger

	mu      sync.Mutex
	clients map[string]string

	// The total count is a hot read for the dashboard poll; refreshed
	// only when an upload changes it.
	count atomic.Int64
}

func New(cfg config.ServerConfig, st *store.Store, res *resources.Resources, log zerolog.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		store:   st,
		res:     res,
		log:     log,
		clients: make(map[string]string),
	}
	n, err := st.Count(context.Background())
	if err != nil {
		return nil, fmt.Errorf("server: initial worksheet count: %w", err)
	}
	s.count.Store(n)
	return s, nil
}

// Run accepts connections until ctx is cancelled, serving each on its
// own goroutine so clients never block each other.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.TCPPort))
	if err != nil {
		return fmt.Errorf("server: listen tcp port %d: %w", s.cfg.TCPPort, err)
	}
	defer ln.Close()
	s.log.Info().Int("port", s.cfg.TCPPort).Msg("tcp listener started")

	tcpLn := ln.(*net.TCPListener)
	var wg sync.WaitGroup
	for {
		if ctx.Err() != nil {
			break
		}
		if err := tcpLn.SetDeadline(time.Now().Add(acceptPoll)); err != nil {
			return err
		}
		conn, err := tcpLn.Accept()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error().Err(err).Msg("accept failed")
			continue
		}

		sess := session.New(conn, s.log)
		s.registerHandlers(ctx, sess)
		s.track(sess)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.untrack(sess)
			_ = sess.Run(ctx)
		}()
	}

	wg.Wait()
	return nil
}

func (s *Server) track(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[sess.ID()] = sess.RemoteAddr().String()
	s.log.Info().Str("remote", sess.RemoteAddr().String()).Msg("client connected")
}

func (s *Server) untrack(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, sess.ID())
}

// Clients snapshots the address book for the management console.
func (s *Server) Clients() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.clients))
	for id, addr := range s.clients {
		out[id] = addr
	}
	return out
}
