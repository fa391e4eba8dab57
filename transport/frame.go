// Package transport provides the network-facing collaborators the spec
// lists as optional, out-of-core pieces (§6): length-prefixed TCP/UDP
// framing for shipping ring payloads off-box, and a WebSocket health
// stream for dashboards. None of this sits on the hot publish/subscribe
// path; it exists for bridging a region to something that isn't another
// process on the same host.
//
// Grounded on usrl_tcp.c's "network-order u32 length then payload" framing
// and usrl_udp.c's single-datagram-per-message framing, reimplemented over
// net.Conn/net.PacketConn the way the teacher feeder reaches for
// nhooyr.io/websocket instead of hand-rolling a framing protocol of its
// own kind.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single length-prefixed frame, guarding recipients
// against a corrupt or hostile length header demanding an unbounded
// allocation.
const MaxFrameSize = 16 << 20

// WriteFrame writes a network-order u32 length prefix followed by payload,
// matching usrl_tcp_stream_send's wire format.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("transport: frame of %d bytes exceeds max %d", len(payload), MaxFrameSize)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame, matching
// usrl_tcp_stream_recv's blocking read-length-then-read-payload shape.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds max %d", n, MaxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
