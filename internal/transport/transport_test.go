package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

// loopbackPair dials two Transports at each other over real UDP sockets on
// localhost, the way two real peers would, but without going through a
// rendezvous address known ahead of time.
func loopbackPair(t *testing.T, convA, convB uint32) (*Transport, *Transport) {
	t.Helper()
	lc := net.ListenConfig{}
	connA, err := lc.ListenPacket(context.Background(), "udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen A: %v", err)
	}
	connB, err := lc.ListenPacket(context.Background(), "udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen B: %v", err)
	}
	a := newTransport(connA, connB.LocalAddr(), convA)
	b := newTransport(connB, connA.LocalAddr(), convB)
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestTransport_SendRecvRoundTrip(t *testing.T) {
	a, b := loopbackPair(t, 1, 1)

	msg := []byte("hello from a")
	if err := a.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	var recvd []byte
	for time.Now().Before(deadline) {
		now := uint32(time.Now().UnixMilli())
		a.Update(now)
		b.Update(now)
		if err := a.UpdateUDP(time.Now().Add(5 * time.Millisecond)); err != nil {
			t.Fatalf("a.UpdateUDP: %v", err)
		}
		if err := b.UpdateUDP(time.Now().Add(5 * time.Millisecond)); err != nil {
			t.Fatalf("b.UpdateUDP: %v", err)
		}
		buf := make([]byte, 2048)
		n, err := b.Recv(buf)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if n > 0 {
			recvd = buf[:n]
			break
		}
	}
	if string(recvd) != string(msg) {
		t.Fatalf("got %q, want %q", recvd, msg)
	}
}

func TestTransport_UpdateUDPTimesOutWithoutData(t *testing.T) {
	a, _ := loopbackPair(t, 1, 1)
	if err := a.UpdateUDP(time.Now().Add(5 * time.Millisecond)); err != nil {
		t.Fatalf("UpdateUDP should tolerate a read timeout, got %v", err)
	}
}
