package types

import (
	"bytes"
	"testing"
)

func TestBytesToHashPadding(t *testing.T) {
	h := BytesToHash([]byte{0x01, 0x02})
	if h[HashLength-1] != 0x02 || h[HashLength-2] != 0x01 {
		t.Fatalf("short input must right-align: %x", h)
	}
	for i := 0; i < HashLength-2; i++ {
		if h[i] != 0 {
			t.Fatalf("padding byte %d = %x, want 0", i, h[i])
		}
	}

	long := make([]byte, HashLength+4)
	for i := range long {
		long[i] = byte(i)
	}
	h = BytesToHash(long)
	if !bytes.Equal(h.Bytes(), long[4:]) {
		t.Fatalf("long input must keep the last %d bytes", HashLength)
	}
}

func TestHexRoundTrip(t *testing.T) {
	h := BytesToHash([]byte{0xde, 0xad, 0xbe, 0xef})
	parsed := HexToHash(h.Hex())
	if parsed != h {
		t.Fatalf("hex round trip: %s != %s", parsed, h)
	}

	if HexToHash("0xff") != HexToHash("ff") {
		t.Fatal("0x prefix must not change parsing")
	}
	if HexToHash("f") != HexToHash("0f") {
		t.Fatal("odd-length hex must be zero-padded")
	}
}

func TestHashIsZero(t *testing.T) {
	var h Hash
	if !h.IsZero() {
		t.Fatal("zero value must report zero")
	}
	h[31] = 1
	if h.IsZero() {
		t.Fatal("nonzero hash must not report zero")
	}
}

func TestHashString(t *testing.T) {
	h := BytesToHash([]byte{0x01})
	if h.String() != h.Hex() {
		t.Fatalf("String %q != Hex %q", h.String(), h.Hex())
	}
	if len(h.Hex()) != 2+2*HashLength {
		t.Fatalf("hex length = %d", len(h.Hex()))
	}
}
