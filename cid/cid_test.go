package cid

import "testing"

func TestNewFromBytesDeterministic(t *testing.T) {
	a, err := NewFromBytes([]byte("hello"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	b, err := NewFromBytes([]byte("hello"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	if !a.Equals(b) {
		t.Fatalf("expected deterministic CID, got %s != %s", a, b)
	}

	c, err := NewFromBytes([]byte("world"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	if a.Equals(c) {
		t.Fatalf("expected distinct content to produce distinct CIDs")
	}
}

func TestRoundTripBytesAndString(t *testing.T) {
	orig, err := NewFromBytes([]byte("round trip me"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}

	viaBytes, err := FromBytes(orig.Bytes())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if !orig.Equals(viaBytes) {
		t.Fatalf("byte round trip mismatch")
	}

	viaString, err := FromString(orig.String())
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if !orig.Equals(viaString) {
		t.Fatalf("string round trip mismatch")
	}
}

func TestUndef(t *testing.T) {
	if !Undef.Empty() {
		t.Fatalf("Undef should be empty")
	}
	c, _ := NewFromBytes([]byte("x"))
	if c.Empty() {
		t.Fatalf("real CID should not be empty")
	}
}
