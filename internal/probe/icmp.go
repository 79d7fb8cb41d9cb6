package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const echoPayload = "conn-mon"

// graceMargin bounds how far past the caller's timeout a probe may run while
// tearing down its socket.
const graceMargin = 50 * time.Millisecond

// ICMPProber measures round-trip time with ICMP echo requests over a raw
// socket. The socket is opened per probe and closed on every exit path.
type ICMPProber struct {
	id  int
	seq uint32
}

// NewICMPProber initializes a prober with a process-scoped echo identifier.
func NewICMPProber() *ICMPProber {
	return &ICMPProber{id: os.Getpid() & 0xffff}
}

// Probe sends one echo request and waits for the matching reply.
func (p *ICMPProber) Probe(ctx context.Context, addr string, timeout time.Duration) Sample {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return failure(start, err)
	}

	ip, err := resolveIP(addr)
	if err != nil {
		return failure(start, fmt.Errorf("resolve %s: %w", addr, err))
	}

	network, protocol, requestType, replyType := icmpSettings(ip.IP)
	conn, err := icmp.ListenPacket(network, "")
	if err != nil {
		return failure(start, fmt.Errorf("open icmp socket: %w", err))
	}
	defer conn.Close()

	seq := int(atomic.AddUint32(&p.seq, 1)) & 0xffff
	msg := icmp.Message{
		Type: requestType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  seq,
			Data: []byte(echoPayload),
		},
	}

	payload, err := msg.Marshal(nil)
	if err != nil {
		return failure(start, err)
	}

	if err := conn.SetDeadline(effectiveDeadline(ctx, start, timeout)); err != nil {
		return failure(start, err)
	}

	start = time.Now()
	if _, err := conn.WriteTo(payload, ip); err != nil {
		return failure(start, err)
	}

	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return failure(start, err)
		}

		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return failure(start, err)
		}
		if peer == nil {
			continue
		}

		reply, err := icmp.ParseMessage(protocol, buf[:n])
		if err != nil {
			continue
		}
		switch reply.Type {
		case ipv4.ICMPTypeDestinationUnreachable, ipv6.ICMPTypeDestinationUnreachable:
			return Sample{At: start, Outcome: OutcomeUnreachable,
				Err: fmt.Errorf("destination unreachable: %s", addr)}
		}
		if reply.Type != replyType {
			continue
		}
		body, ok := reply.Body.(*icmp.Echo)
		if !ok {
			continue
		}
		if body.ID != p.id || body.Seq != seq {
			continue
		}

		return Sample{At: start, RTT: time.Since(start), Outcome: OutcomeSuccess}
	}
}

func resolveIP(addr string) (*net.IPAddr, error) {
	ipAddr, err := net.ResolveIPAddr("ip", addr)
	if err != nil {
		return nil, err
	}
	if ipAddr.IP == nil {
		return nil, fmt.Errorf("no address for %s", addr)
	}
	return ipAddr, nil
}

func icmpSettings(ip net.IP) (network string, protocol int, requestType icmp.Type, replyType icmp.Type) {
	if ip.To4() != nil {
		return "ip4:icmp", ipv4.ICMPTypeEcho.Protocol(), ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply
	}
	return "ip6:ipv6-icmp", ipv6.ICMPTypeEchoRequest.Protocol(), ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply
}

// effectiveDeadline picks the sooner of the probe timeout and the context
// deadline, leaving the grace margin for socket teardown.
func effectiveDeadline(ctx context.Context, start time.Time, timeout time.Duration) time.Time {
	deadline := start.Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}
