package frame

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/FenQiDian/point-set-client/internal/message"
	"github.com/FenQiDian/point-set-client/internal/neterr"
)

func TestFrame_RoundTrip(t *testing.T) {
	cases := []struct {
		typ     message.Type
		payload []byte
	}{
		{message.TypeConnect, []byte("hello")},
		{message.TypeAccept, nil},
		{message.TypeHash, make([]byte, 32)},
	}
	for _, c := range cases {
		wire, err := Encode(nil, c.typ, c.payload)
		if err != nil {
			t.Fatalf("Encode(%v): %v", c.typ, err)
		}
		typ, payload, n, err := Decode(wire)
		if err != nil {
			t.Fatalf("Decode(%v): %v", c.typ, err)
		}
		if typ != c.typ {
			t.Fatalf("type mismatch: got %v want %v", typ, c.typ)
		}
		if n != len(wire) {
			t.Fatalf("consumed %d, want %d", n, len(wire))
		}
		if !bytes.Equal(payload, c.payload) {
			t.Fatalf("payload mismatch: got % X want % X", payload, c.payload)
		}
	}
}

func TestFrame_EncodeAppendsToPrefix(t *testing.T) {
	prefix := []byte{0xAA, 0xBB}
	wire, err := Encode(prefix, message.TypeStart, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(wire[:2], prefix) {
		t.Fatalf("Encode clobbered prefix: % X", wire)
	}
	if len(wire) != 5 {
		t.Fatalf("len=%d want 5", len(wire))
	}
}

func TestFrame_DecodeTooShort(t *testing.T) {
	_, _, _, err := Decode([]byte{1, 0})
	if !errors.Is(err, neterr.ErrPacketTooShort) {
		t.Fatalf("want ErrPacketTooShort, got %v", err)
	}
}

func TestFrame_DecodeTooLong(t *testing.T) {
	big := make([]byte, MaxPacket+1)
	_, _, _, err := Decode(big)
	if !errors.Is(err, neterr.ErrPacketTooLong) {
		t.Fatalf("want ErrPacketTooLong, got %v", err)
	}
}

func TestFrame_DecodeBroken(t *testing.T) {
	wire := []byte{byte(message.TypeState), 0, 10} // declares 10 bytes, has 0
	_, _, _, err := Decode(wire)
	if !errors.Is(err, neterr.ErrPacketBroken) {
		t.Fatalf("want ErrPacketBroken, got %v", err)
	}
}

func TestFrame_EncodeTooLongPayload(t *testing.T) {
	payload := make([]byte, MaxPacket)
	rand.Read(payload)
	_, err := Encode(nil, message.TypeCommand, payload)
	if !errors.Is(err, neterr.ErrMessageTooLong) {
		t.Fatalf("want ErrMessageTooLong, got %v", err)
	}
}

func TestFrame_PeekType(t *testing.T) {
	wire, _ := Encode(nil, message.TypeCommand, []byte{1, 2, 3})
	typ, err := PeekType(wire)
	if err != nil {
		t.Fatal(err)
	}
	if typ != message.TypeCommand {
		t.Fatalf("got %v want Command", typ)
	}
	if _, err := PeekType(nil); err == nil {
		t.Fatal("expected error on empty packet")
	}
}

func FuzzFrameDecode(f *testing.F) {
	wire, _ := Encode(nil, message.TypeHash, []byte{1, 2, 3, 4})
	f.Add(wire)
	f.Add([]byte{0, 0})
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, b []byte) {
		typ, payload, n, err := Decode(b)
		if err != nil {
			return
		}
		if n > len(b) {
			t.Fatalf("consumed %d > input %d", n, len(b))
		}
		if len(payload)+headerLen != n {
			t.Fatalf("type %v: payload len %d inconsistent with consumed %d", typ, len(payload), n)
		}
	})
}
