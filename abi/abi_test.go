package abi

import (
	"bytes"
	"testing"
)

func TestArithmetic(t *testing.T) {
	a := NewTokenAmount(100)
	b := NewTokenAmount(30)
	if got := a.Sub(b).String(); got != "70" {
		t.Fatalf("Sub() = %s, want 70", got)
	}
	if got := a.Add(b).String(); got != "130" {
		t.Fatalf("Add() = %s, want 130", got)
	}
	if !Zero().IsZero() {
		t.Fatalf("Zero() should be zero")
	}
	if !NewTokenAmount(-5).IsNegative() {
		t.Fatalf("expected negative amount")
	}
}

func TestCBORRoundTrip(t *testing.T) {
	amt := NewTokenAmount(123456789)
	var buf bytes.Buffer
	if err := amt.MarshalCBOR(&buf); err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	var out TokenAmount
	if err := out.UnmarshalCBOR(&buf); err != nil {
		t.Fatalf("UnmarshalCBOR: %v", err)
	}
	if out.Cmp(amt) != 0 {
		t.Fatalf("round trip mismatch: %s != %s", out, amt)
	}
}
