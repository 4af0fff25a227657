package agentclient

import (
	"context"
	"net"
)

// Dialer resolves an agent endpoint to a live connection. TCPDialer covers
// the direct host:port case; a tunnel-backed dialer for physical devices is
// an external collaborator the core only consumes through this interface
// (USB tunnel integration is explicitly out of scope).
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// TCPDialer dials a fixed host:port address, the simulator case.
type TCPDialer struct {
	Addr string
}

func (d TCPDialer) Dial(ctx context.Context) (net.Conn, error) {
	var nd net.Dialer
	return nd.DialContext(ctx, "tcp", d.Addr)
}
