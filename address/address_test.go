package address

import "testing"

func TestIDRoundTrip(t *testing.T) {
	a := NewID(1024)
	b := a.ToBytes()
	want := []byte{0x00, 0x80, 0x08}
	if len(b) != len(want) {
		t.Fatalf("ToBytes() = %x, want %x", b, want)
	}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("ToBytes() = %x, want %x", b, want)
		}
	}

	s := a.StringWithNetwork(Testnet)
	if s != "t01024" {
		t.Fatalf("StringWithNetwork() = %q, want %q", s, "t01024")
	}

	back, err := FromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if !back.Equal(a) {
		t.Fatalf("round trip mismatch: %v != %v", back, a)
	}
}

func TestSecp256k1TextRoundTrip(t *testing.T) {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}
	a, err := NewSecp256k1(payload)
	if err != nil {
		t.Fatalf("NewSecp256k1: %v", err)
	}
	s := a.StringWithNetwork(Mainnet)
	if s[0] != 'f' || s[1] != '1' {
		t.Fatalf("unexpected prefix: %s", s)
	}
	back, err := FromString(s)
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if !back.Equal(a) {
		t.Fatalf("round trip mismatch")
	}
}

func TestBLSWrongLength(t *testing.T) {
	_, err := NewBLS(make([]byte, 10))
	if err == nil {
		t.Fatalf("expected error for short BLS payload")
	}
	if _, ok := err.(ErrInvalidBLSLength); !ok {
		t.Fatalf("expected ErrInvalidBLSLength, got %T", err)
	}
}

func TestFromStringRejectsTamperedChecksum(t *testing.T) {
	payload := make([]byte, 20)
	a, err := NewActor(payload)
	if err != nil {
		t.Fatalf("NewActor: %v", err)
	}
	s := a.StringWithNetwork(Testnet)
	tampered := []byte(s)
	tampered[len(tampered)-1]++
	if _, err := FromString(string(tampered)); err != ErrInvalidChecksum {
		t.Fatalf("expected ErrInvalidChecksum, got %v", err)
	}
}

func TestCompareOrdersByProtocolThenPayload(t *testing.T) {
	id0 := NewID(0)
	id1 := NewID(1)
	if id0.Compare(id1) >= 0 {
		t.Fatalf("expected id0 < id1")
	}
	secp, _ := NewSecp256k1(make([]byte, 20))
	if id1.Compare(secp) >= 0 {
		t.Fatalf("expected ID protocol to sort before Secp256k1")
	}
}

func TestUndefEmpty(t *testing.T) {
	if !Undef.Empty() {
		t.Fatalf("Undef should be Empty")
	}
	if Undef.ToBytes() != nil {
		t.Fatalf("Undef.ToBytes() should be nil")
	}
}
