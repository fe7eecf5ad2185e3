package multisig

import (
	"bytes"
	"testing"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
	"github.com/synnergy-chain/actorcore/syscall"
)

func newVM() *dispatch.VM {
	vm := dispatch.NewVM(blockstore.NewMemory(), syscall.NewTest())
	vm.CreateActor(builtin.InitActorAddr, builtin.InitActorCodeID, abi.Zero())
	return vm
}

func sampleSigner(n byte) address.Address {
	a, err := address.NewSecp256k1(bytes.Repeat([]byte{n}, 20))
	if err != nil {
		panic(err)
	}
	return a
}

func TestConstructorRejectsNonInitCaller(t *testing.T) {
	vm := newVM()
	msAddr := address.NewID(730)
	vm.CreateActor(msAddr, builtin.MultisigActorCodeID, abi.Zero())

	cp := &ConstructorParams{Signers: []address.Address{sampleSigner(1), sampleSigner(2)}, Threshold: 2}
	var buf bytes.Buffer
	cp.MarshalCBOR(&buf)

	_, ae := vm.InvokeMessage(address.NewID(731), msAddr, builtin.MethodConstructor, buf.Bytes(), abi.Zero(), 1_000_000)
	if ae == nil || ae.Code != runtime.SysErrForbidden {
		t.Fatalf("expected SysErrForbidden, got %v", ae)
	}
}

func TestConstructorRejectsThresholdAboveSignerCount(t *testing.T) {
	vm := newVM()
	msAddr := address.NewID(732)
	vm.CreateActor(msAddr, builtin.MultisigActorCodeID, abi.Zero())

	cp := &ConstructorParams{Signers: []address.Address{sampleSigner(3)}, Threshold: 2}
	var buf bytes.Buffer
	cp.MarshalCBOR(&buf)

	_, ae := vm.InvokeMessage(builtin.InitActorAddr, msAddr, builtin.MethodConstructor, buf.Bytes(), abi.Zero(), 1_000_000)
	if ae == nil || ae.Code != runtime.ErrIllegalArgument {
		t.Fatalf("expected ErrIllegalArgument, got %v", ae)
	}
}

func TestConstructorRejectsZeroThreshold(t *testing.T) {
	vm := newVM()
	msAddr := address.NewID(733)
	vm.CreateActor(msAddr, builtin.MultisigActorCodeID, abi.Zero())

	cp := &ConstructorParams{Signers: []address.Address{sampleSigner(4)}, Threshold: 0}
	var buf bytes.Buffer
	cp.MarshalCBOR(&buf)

	_, ae := vm.InvokeMessage(builtin.InitActorAddr, msAddr, builtin.MethodConstructor, buf.Bytes(), abi.Zero(), 1_000_000)
	if ae == nil || ae.Code != runtime.ErrIllegalArgument {
		t.Fatalf("expected ErrIllegalArgument, got %v", ae)
	}
}

func TestConstructorAcceptsValidSignerSet(t *testing.T) {
	vm := newVM()
	msAddr := address.NewID(734)
	vm.CreateActor(msAddr, builtin.MultisigActorCodeID, abi.Zero())

	signers := []address.Address{sampleSigner(5), sampleSigner(6), sampleSigner(7)}
	cp := &ConstructorParams{Signers: signers, Threshold: 2}
	var buf bytes.Buffer
	if err := cp.MarshalCBOR(&buf); err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if _, ae := vm.InvokeMessage(builtin.InitActorAddr, msAddr, builtin.MethodConstructor, buf.Bytes(), abi.Zero(), 1_000_000); ae != nil {
		t.Fatalf("Constructor: %v", ae)
	}
}
