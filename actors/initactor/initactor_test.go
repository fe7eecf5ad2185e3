package initactor

import (
	"bytes"
	"testing"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/actors/account"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
	"github.com/synnergy-chain/actorcore/syscall"
)

func samplePubkey(n byte) address.Address {
	a, err := address.NewSecp256k1(bytes.Repeat([]byte{n}, 20))
	if err != nil {
		panic(err)
	}
	return a
}

func newVM(t *testing.T) *dispatch.VM {
	vm := dispatch.NewVM(blockstore.NewMemory(), syscall.NewTest())
	vm.CreateActor(builtin.SystemActorAddr, builtin.SystemActorCodeID, abi.Zero())
	vm.CreateActor(builtin.InitActorAddr, builtin.InitActorCodeID, abi.Zero())

	cp := &ConstructorParams{NetworkName: "test"}
	var buf bytes.Buffer
	if err := cp.MarshalCBOR(&buf); err != nil {
		t.Fatalf("marshal constructor params: %v", err)
	}
	if _, err := vm.InvokeMessage(builtin.SystemActorAddr, builtin.InitActorAddr, builtin.MethodConstructor, buf.Bytes(), abi.Zero(), 1_000_000); err != nil {
		t.Fatalf("construct init actor: %v", err)
	}
	return vm
}

// constructedAccount creates and constructs an account actor at addr, acting
// as a signable caller for Exec.
func constructedAccount(t *testing.T, vm *dispatch.VM, addr address.Address, pubkey address.Address) {
	vm.CreateActor(addr, builtin.AccountActorCodeID, abi.Zero())
	cp := &account.ConstructorParams{Address: pubkey}
	var buf bytes.Buffer
	if err := cp.MarshalCBOR(&buf); err != nil {
		t.Fatalf("marshal account constructor params: %v", err)
	}
	if _, err := vm.InvokeMessage(builtin.InitActorAddr, addr, builtin.MethodConstructor, buf.Bytes(), abi.Zero(), 1_000_000); err != nil {
		t.Fatalf("construct account: %v", err)
	}
}

func TestExecRejectsNonSignableCaller(t *testing.T) {
	vm := newVM(t)
	newAddr := address.NewID(300)
	vm.CreateActor(newAddr, builtin.AccountActorCodeID, abi.Zero())

	cp := &account.ConstructorParams{Address: samplePubkey(9)}
	var cpBuf bytes.Buffer
	cp.MarshalCBOR(&cpBuf)

	ep := &ExecParams{NewActorAddr: newAddr, ConstructorParams: cpBuf.Bytes()}
	var buf bytes.Buffer
	ep.MarshalCBOR(&buf)

	_, ae := vm.InvokeMessage(builtin.SystemActorAddr, builtin.InitActorAddr, MethodExec, buf.Bytes(), abi.Zero(), 1_000_000)
	if ae == nil || ae.Code != runtime.SysErrForbidden {
		t.Fatalf("expected SysErrForbidden, got %v", ae)
	}
}

func TestExecRunsConstructorAndReturnsAddress(t *testing.T) {
	vm := newVM(t)

	callerAddr := address.NewID(301)
	constructedAccount(t, vm, callerAddr, samplePubkey(1))

	newAddr := address.NewID(302)
	vm.CreateActor(newAddr, builtin.AccountActorCodeID, abi.Zero())
	pubkey := samplePubkey(2)

	cp := &account.ConstructorParams{Address: pubkey}
	var cpBuf bytes.Buffer
	if err := cp.MarshalCBOR(&cpBuf); err != nil {
		t.Fatalf("marshal account constructor params: %v", err)
	}

	ep := &ExecParams{NewActorAddr: newAddr, ConstructorParams: cpBuf.Bytes()}
	var buf bytes.Buffer
	if err := ep.MarshalCBOR(&buf); err != nil {
		t.Fatalf("marshal exec params: %v", err)
	}

	out, ae := vm.InvokeMessage(callerAddr, builtin.InitActorAddr, MethodExec, buf.Bytes(), abi.Zero(), 1_000_000)
	if ae != nil {
		t.Fatalf("Exec: %v", ae)
	}
	ret := &ExecReturn{}
	if err := ret.UnmarshalCBOR(bytes.NewReader(out)); err != nil {
		t.Fatalf("unmarshal exec return: %v", err)
	}
	if !ret.IDAddress.Equal(newAddr) {
		t.Fatalf("ExecReturn.IDAddress = %s, want %s", ret.IDAddress, newAddr)
	}

	// The new actor's constructor actually ran: PubkeyAddress resolves.
	pkOut, ae := vm.InvokeMessage(newAddr, newAddr, account.MethodPubkeyAddress, nil, abi.Zero(), 1_000_000)
	if ae != nil {
		t.Fatalf("PubkeyAddress: %v", ae)
	}
	pkRet := &account.PubkeyAddressReturn{}
	if err := pkRet.UnmarshalCBOR(bytes.NewReader(pkOut)); err != nil {
		t.Fatalf("unmarshal pubkey return: %v", err)
	}
	if !pkRet.Address.Equal(pubkey) {
		t.Fatalf("constructed account pubkey = %s, want %s", pkRet.Address, pubkey)
	}
}
