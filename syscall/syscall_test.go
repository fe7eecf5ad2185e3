package syscall

import (
	"testing"

	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/gas"
)

func TestTestBackendScriptable(t *testing.T) {
	b := NewTest()
	addr, _ := address.NewSecp256k1(make([]byte, 20))
	ok, err := b.VerifySignature(nil, addr, nil)
	if err != nil || !ok {
		t.Fatalf("VerifySignature() = %v, %v; want true, nil", ok, err)
	}
	b.SignatureOK = false
	ok, err = b.VerifySignature(nil, addr, nil)
	if err != nil || ok {
		t.Fatalf("VerifySignature() = %v, %v; want false, nil", ok, err)
	}
}

func TestChargedDeductsGasBeforeDelegating(t *testing.T) {
	tracker := gas.NewTracker(10)
	charged := NewCharged(NewTest(), tracker)
	addr, _ := address.NewSecp256k1(make([]byte, 20))
	if _, err := charged.VerifySignature(nil, addr, []byte("msg")); err != gas.ErrOutOfGas {
		t.Fatalf("expected ErrOutOfGas with a tiny budget, got %v", err)
	}
	if tracker.Used() != 0 {
		t.Fatalf("Used() = %d, want 0 (failed charge must not apply)", tracker.Used())
	}
}

func TestChargedSucceedsWithSufficientGas(t *testing.T) {
	tracker := gas.NewTracker(1_000_000)
	charged := NewCharged(NewTest(), tracker)
	addr, _ := address.NewSecp256k1(make([]byte, 20))
	ok, err := charged.VerifySignature([]byte("sig"), addr, []byte("msg"))
	if err != nil || !ok {
		t.Fatalf("VerifySignature() = %v, %v", ok, err)
	}
	if tracker.Used() == 0 {
		t.Fatalf("expected gas to be charged")
	}
}

func TestComputeUnsealedSectorCIDDeterministic(t *testing.T) {
	b := NewTest()
	pieces := [][]byte{[]byte("piece-a"), []byte("piece-b")}
	c1, err := b.ComputeUnsealedSectorCID(pieces)
	if err != nil {
		t.Fatalf("ComputeUnsealedSectorCID: %v", err)
	}
	c2, err := b.ComputeUnsealedSectorCID(pieces)
	if err != nil {
		t.Fatalf("ComputeUnsealedSectorCID: %v", err)
	}
	if !c1.Equals(c2) {
		t.Fatalf("expected deterministic CID for identical pieces")
	}
}
