// Package client implements the teacher-side view of the protocol:
// discover a server on the LAN, open one TCP session and issue
// request/reply exchanges over it.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/minedient/elerp/internal/discovery"
	"github.com/minedient/elerp/internal/protocol"
	"github.com/minedient/elerp/internal/protocol/frame"
)

// Version is the client protocol version, compared against the server's
// on checkVersion.
const Version = "1.0.7"

const dialTimeout = 3 * time.Second

// Client owns one TCP session. Requests are strictly sequential: one
// request, one reply, by construction.
type Client struct {
	conn    net.Conn
	builder *protocol.Builder
	log     zerolog.Logger
}

// Discover broadcasts on udpPort and returns the server address, or nil
// when no server answered within the timeout.
func Discover(udpPort int, timeout time.Duration, log zerolog.Logger) (*net.UDPAddr, error) {
	return discovery.Locate(udpPort, timeout, log)
}

// Connect dials the server's TCP port.
func Connect(host string, tcpPort int, log zerolog.Logger) (*Client, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", tcpPort))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("client: connect %s: %w", addr, err)
	}
	log.Info().Str("server", addr).Msg("connected to server")
	return &Client{conn: conn, builder: protocol.NewBuilder(), log: log}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// roundTrip sends one request envelope and waits for its reply.
func (c *Client) roundTrip(env protocol.Envelope) (*protocol.Envelope, error) {
	payload, err := protocol.Marshal(&env)
	if err != nil {
		return nil, err
	}
	if err := frame.Send(c.conn, payload); err != nil {
		return nil, fmt.Errorf("client: send %q: %w", env.Command, err)
	}
	replyPayload, err := frame.Recv(c.conn)
	if err != nil {
		return nil, fmt.Errorf("client: receive reply for %q: %w", env.Command, err)
	}
	return protocol.Unmarshal(replyPayload)
}

// request round-trips a request built from kind/command/body.
func (c *Client) request(kind protocol.Kind, command string, body any) (*protocol.Envelope, error) {
	return c.roundTrip(protocol.Envelope{Kind: kind, Command: command, Body: body})
}
