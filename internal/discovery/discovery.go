// Package discovery implements the UDP broadcast handshake clients use
// to locate a server before opening a TCP session. The exchange is
// stateless: one POST probe carrying the client identifier, one unicast
// reply carrying the server's reachable address.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/minedient/elerp/internal/protocol"
	"github.com/minedient/elerp/internal/protocol/dispatch"
)

// Identifier distinguishes our clients from foreign users of the same
// envelope format scanning the same port.
const Identifier = "elerp_client"

// DefaultTimeout bounds how long a client waits for a reply.
const DefaultTimeout = 3 * time.Second

// pollInterval is the read deadline on the responder socket, so the
// stop signal is re-checked promptly instead of blocking forever.
const pollInterval = 3 * time.Second

const maxDatagram = 4096

// Responder answers discovery probes with the server's reachable
// address. One instance serves for the process lifetime.
type Responder struct {
	conn      *net.UDPConn
	advertise string
	log       zerolog.Logger
}

func NewResponder(port int, advertise string, log zerolog.Logger) (*Responder, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("discovery: bind udp port %d: %w", port, err)
	}
	return &Responder{conn: conn, advertise: advertise, log: log}, nil
}

// Addr reports the responder's bound address.
func (r *Responder) Addr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Serve answers probes until ctx is cancelled. Malformed datagrams are
// logged and dropped without a reply; structurally valid envelopes that
// are not our probe get an ERROR/invalid_request reply so a foreign
// client fails fast instead of timing out.
func (r *Responder) Serve(ctx context.Context) error {
	defer r.conn.Close()

	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return err
		}
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		env, err := protocol.Unmarshal(buf[:n])
		if err != nil {
			r.log.Warn().Err(err).Stringer("from", addr).Msg("dropping malformed discovery datagram")
			continue
		}
		r.answer(env, addr)
	}
}

func (r *Responder) answer(env *protocol.Envelope, addr *net.UDPAddr) {
	exec := dispatch.NewExecutor()
	exec.OnCommand(protocol.Post, Identifier, func(string) error {
		r.log.Info().Stringer("client", addr).Str("advertise", r.advertise).Msg("discovery probe matched, sending server address")
		return r.reply(addr, protocol.OK, r.advertise)
	})
	exec.SetDefault(func(env *protocol.Envelope) error {
		// Same protocol, different identifier: someone else's client.
		r.log.Warn().Stringer("client", addr).Str("command", env.Command).Msg("discovery probe with foreign identifier")
		return r.reply(addr, protocol.Err, protocol.StatusInvalidRequest)
	})
	if err := exec.Dispatch(env); err != nil {
		r.log.Error().Err(err).Stringer("client", addr).Msg("discovery reply failed")
	}
}

func (r *Responder) reply(addr *net.UDPAddr, kind protocol.Kind, body any) error {
	payload, err := protocol.NewBuilder().Prepare(kind, "", body).Marshal()
	if err != nil {
		return err
	}
	_, err = r.conn.WriteToUDP(payload, addr)
	return err
}

// Locate broadcasts a discovery probe and waits up to timeout for a
// unicast reply. A timeout means no server is present and returns
// (nil, nil), the "not found" sentinel; a reply whose kind is not OK is
// a discovery failure.
func Locate(port int, timeout time.Duration, log zerolog.Logger) (*net.UDPAddr, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: open udp socket: %w", err)
	}
	defer conn.Close()

	payload, err := protocol.NewBuilder().Prepare(protocol.Post, Identifier, nil).Marshal()
	if err != nil {
		return nil, err
	}
	target := &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	log.Debug().Stringer("target", target).Msg("broadcasting discovery probe")
	if _, err := conn.WriteToUDP(payload, target); err != nil {
		return nil, fmt.Errorf("discovery: broadcast: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, maxDatagram)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			log.Debug().Msg("no server found before discovery timeout")
			return nil, nil
		}
		return nil, err
	}

	env, err := protocol.Unmarshal(buf[:n])
	if err != nil {
		return nil, err
	}
	if env.Kind != protocol.OK {
		return nil, fmt.Errorf("discovery: server rejected probe with %q", string(env.Kind))
	}
	if advertised, ok := env.BodyString(); ok {
		log.Info().Stringer("server", addr).Str("advertised", advertised).Msg("server found")
	} else {
		log.Info().Stringer("server", addr).Msg("server found")
	}
	return addr, nil
}

// LocalIP returns the host's first global unicast IPv4 address, the
// address the responder advertises to clients.
func LocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", errors.New("discovery: no non-loopback IPv4 address found")
}
