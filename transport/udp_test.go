package transport

import "testing"

func TestUDPSendRecvRoundTrip(t *testing.T) {
	srv, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer srv.Close()

	cli, err := DialUDP(srv.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer cli.Close()

	if err := cli.Send([]byte("datagram")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, UDPMaxDatagram)
	n, _, err := srv.Recv(buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "datagram" {
		t.Fatalf("got %q", buf[:n])
	}
}
