package transport

import (
	"testing"
)

func TestTCPServerAcceptFramedExchange(t *testing.T) {
	srv, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer srv.Close()

	serverErr := make(chan error, 1)
	go func() {
		conn, err := srv.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer conn.Close()
		frame, err := ReadFrame(conn)
		if err != nil {
			serverErr <- err
			return
		}
		serverErr <- WriteFrame(conn, append([]byte("echo:"), frame...))
	}()

	conn, err := DialTCP(srv.Addr().String())
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer conn.Close()

	if err := WriteFrame(conn, []byte("ping")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	reply, err := ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(reply) != "echo:ping" {
		t.Fatalf("reply = %q", reply)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("server goroutine: %v", err)
	}
}
