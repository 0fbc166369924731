// Package pinger implements batched ICMP echo probing over unprivileged
// datagram sockets, so the process does not need CAP_NET_RAW.
package pinger

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1  // iana.ProtocolICMP
	protocolIPv6ICMP = 58 // iana.ProtocolIPv6ICMP
)

// Options configures a probing round.
type Options struct {
	// Count is the number of echo requests sent per host.
	Count int
	// Interval is the spacing between consecutive echo requests to the same host.
	Interval time.Duration
	// Timeout bounds the wait for a reply to a single echo request.
	Timeout time.Duration
	// PayloadSize is the echo payload length in bytes.
	PayloadSize int
	// Concurrency caps how many hosts are probed simultaneously.
	Concurrency int
}

// Result is the outcome of probing a single host within a round.
type Result struct {
	Address string
	Alive   bool
}

// ResolveError reports that a hostname could not be resolved. Callers treat it
// as a transient whole-round failure and retry.
type ResolveError struct {
	Host string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("cannot resolve %q: %v", e.Host, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Pinger probes hosts with ICMP echo requests.
type Pinger struct {
	log zerolog.Logger
}

// New creates a new Pinger.
func New(log zerolog.Logger) *Pinger {
	return &Pinger{log: log.With().Str("component", "pinger").Logger()}
}

// MultiPing probes every address once per round, sending up to opts.Count echo
// requests per host, and reports which hosts replied. All addresses are
// resolved up front; a resolution failure fails the whole round with a
// ResolveError so the caller can retry it.
func (p *Pinger) MultiPing(ctx context.Context, addrs []string, opts Options) ([]Result, error) {
	ips := make([]*net.IPAddr, len(addrs))
	for i, addr := range addrs {
		ip, err := net.ResolveIPAddr("ip", addr)
		if err != nil {
			return nil, &ResolveError{Host: addr, Err: err}
		}
		ips[i] = ip
	}

	results := make([]Result, len(addrs))
	sem := make(chan struct{}, max(1, opts.Concurrency))
	var wg sync.WaitGroup

	for i := range addrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			alive, err := p.pingHost(ctx, ips[i], opts)
			if err != nil {
				p.log.Debug().Err(err).Str("address", addrs[i]).Msg("probe error")
			}
			results[i] = Result{Address: addrs[i], Alive: alive}
		}(i)
	}
	wg.Wait()

	return results, ctx.Err()
}

// pingHost sends up to opts.Count echo requests to a single host and returns
// as soon as one reply arrives. Each host gets its own datagram socket in the
// address family of its resolved IP, so replies never need to be
// demultiplexed across hosts.
func (p *Pinger) pingHost(ctx context.Context, ip *net.IPAddr, opts Options) (bool, error) {
	network, listenAddr := "udp4", "0.0.0.0"
	proto := protocolICMP
	var echoType icmp.Type = ipv4.ICMPTypeEcho
	var replyType icmp.Type = ipv4.ICMPTypeEchoReply
	if ip.IP.To4() == nil {
		network, listenAddr = "udp6", "::"
		proto = protocolIPv6ICMP
		echoType = ipv6.ICMPTypeEchoRequest
		replyType = ipv6.ICMPTypeEchoReply
	}

	conn, err := icmp.ListenPacket(network, listenAddr)
	if err != nil {
		return false, fmt.Errorf("failed to open icmp socket: %w", err)
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: ip.IP}
	payload := make([]byte, max(0, opts.PayloadSize))
	id := os.Getpid() & 0xffff

	for seq := 0; seq < max(1, opts.Count); seq++ {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if seq > 0 {
			time.Sleep(opts.Interval)
		}

		msg := icmp.Message{
			Type: echoType,
			Body: &icmp.Echo{ID: id, Seq: seq, Data: payload},
		}
		// The kernel fills in the ICMPv6 checksum on datagram sockets.
		wire, err := msg.Marshal(nil)
		if err != nil {
			return false, fmt.Errorf("failed to marshal echo request: %w", err)
		}
		if _, err := conn.WriteTo(wire, dst); err != nil {
			continue
		}

		if p.awaitReply(conn, proto, replyType, opts.Timeout) {
			return true, nil
		}
	}

	return false, nil
}

// awaitReply reads from the socket until an echo reply arrives or the timeout
// expires. The socket is per-host, so any echo reply counts.
func (p *Pinger) awaitReply(conn *icmp.PacketConn, proto int, replyType icmp.Type, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1500)

	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return false
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return false // timeout or closed socket
		}
		msg, err := icmp.ParseMessage(proto, buf[:n])
		if err != nil {
			continue
		}
		if msg.Type == replyType {
			return true
		}
	}
}
