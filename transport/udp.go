package transport

import (
	"fmt"
	"net"
)

// UDPMaxDatagram bounds a single recv buffer, comfortably above common MTU
// sizes; callers sending larger application messages should use TCP
// framing instead, as usrl_udp.c's doc comment notes UDP is
// message-oriented and unsuited to framed streaming of large payloads.
const UDPMaxDatagram = 65507

// UDPSocket wraps a *net.UDPConn for either server (bound) or client
// (connected) use, matching usrl_udp_create_server/usrl_udp_create_client's
// single-socket-per-role model.
type UDPSocket struct {
	conn *net.UDPConn
}

// ListenUDP binds a UDP socket to addr for server-side use.
func ListenUDP(addr string) (*UDPSocket, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp %s: %w", addr, err)
	}
	return &UDPSocket{conn: conn}, nil
}

// DialUDP connects a UDP socket to addr for client-side use, matching
// usrl_udp_create_client's connect()-on-a-datagram-socket pattern (fixes
// the peer so Send doesn't need a destination address each call).
func DialUDP(addr string) (*UDPSocket, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial udp %s: %w", addr, err)
	}
	return &UDPSocket{conn: conn}, nil
}

// Send writes one datagram, the whole of payload in a single message the
// way usrl_udp_send wraps a single sendto() call.
func (u *UDPSocket) Send(payload []byte) error {
	_, err := u.conn.Write(payload)
	return err
}

// Recv reads one datagram into buf, returning the number of bytes
// received and the sender's address.
func (u *UDPSocket) Recv(buf []byte) (int, net.Addr, error) {
	return u.conn.ReadFromUDP(buf)
}

// Close releases the socket.
func (u *UDPSocket) Close() error { return u.conn.Close() }
