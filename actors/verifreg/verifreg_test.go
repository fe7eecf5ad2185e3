package verifreg

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

var registryAddr = address.NewID(500)

func newVM(t *testing.T) *dispatch.VM {
	vm := dispatch.NewVM(blockstore.NewMemory(), syscall.NewTest())
	vm.CreateActor(builtin.SystemActorAddr, builtin.SystemActorCodeID, abi.Zero())
	vm.CreateActor(builtin.StorageMarketActorAddr, builtin.StorageMarketActorCodeID, abi.Zero())
	vm.CreateActor(registryAddr, builtin.VerifiedRegistryActorCodeID, abi.Zero())
	if _, err := vm.InvokeMessage(builtin.SystemActorAddr, registryAddr, builtin.MethodConstructor, nil, abi.Zero(), 1_000_000); err != nil {
		t.Fatalf("construct registry: %v", err)
	}
	return vm
}

func addClient(t *testing.T, vm *dispatch.VM, client address.Address, cap abi.TokenAmount) {
	p := &AddVerifiedClientParams{Address: client, Cap: cap}
	var buf bytes.Buffer
	if err := p.MarshalCBOR(&buf); err != nil {
		t.Fatalf("marshal add-client params: %v", err)
	}
	if _, err := vm.InvokeMessage(builtin.SystemActorAddr, registryAddr, MethodAddVerifiedClient, buf.Bytes(), abi.Zero(), 1_000_000); err != nil {
		t.Fatalf("AddVerifiedClient: %v", err)
	}
}

func TestAddVerifiedClientRejectsNonSystemCaller(t *testing.T) {
	vm := newVM(t)
	client := address.NewID(600)
	p := &AddVerifiedClientParams{Address: client, Cap: abi.NewTokenAmount(10)}
	var buf bytes.Buffer
	p.MarshalCBOR(&buf)
	_, ae := vm.InvokeMessage(client, registryAddr, MethodAddVerifiedClient, buf.Bytes(), abi.Zero(), 1_000_000)
	if ae == nil || ae.Code != runtime.SysErrForbidden {
		t.Fatalf("expected SysErrForbidden, got %v", ae)
	}
}

func TestUseBytesDebitsThenRejectsWhenExhausted(t *testing.T) {
	vm := newVM(t)
	client := address.NewID(601)
	addClient(t, vm, client, abi.NewTokenAmount(1))

	if _, ae := vm.InvokeMessage(builtin.StorageMarketActorAddr, registryAddr, builtin.MethodVerifiedRegistryUseBytes, client.ToBytes(), abi.Zero(), 1_000_000); ae != nil {
		t.Fatalf("first UseBytes: %v", ae)
	}

	_, ae := vm.InvokeMessage(builtin.StorageMarketActorAddr, registryAddr, builtin.MethodVerifiedRegistryUseBytes, client.ToBytes(), abi.Zero(), 1_000_000)
	if ae == nil || ae.Code != runtime.ErrForbidden {
		t.Fatalf("expected ErrForbidden on exhausted data cap, got %v", ae)
	}
}

func TestUseBytesRejectsNonMarketCaller(t *testing.T) {
	vm := newVM(t)
	client := address.NewID(602)
	addClient(t, vm, client, abi.NewTokenAmount(5))
	_, ae := vm.InvokeMessage(client, registryAddr, builtin.MethodVerifiedRegistryUseBytes, client.ToBytes(), abi.Zero(), 1_000_000)
	if ae == nil || ae.Code != runtime.SysErrForbidden {
		t.Fatalf("expected SysErrForbidden, got %v", ae)
	}
}

func TestRestoreBytesAllowsUseBytesAgain(t *testing.T) {
	vm := newVM(t)
	client := address.NewID(603)
	addClient(t, vm, client, abi.NewTokenAmount(1))

	if _, ae := vm.InvokeMessage(builtin.StorageMarketActorAddr, registryAddr, builtin.MethodVerifiedRegistryUseBytes, client.ToBytes(), abi.Zero(), 1_000_000); ae != nil {
		t.Fatalf("UseBytes: %v", ae)
	}
	if _, ae := vm.InvokeMessage(builtin.StorageMarketActorAddr, registryAddr, builtin.MethodVerifiedRegistryRestoreBytes, client.ToBytes(), abi.Zero(), 1_000_000); ae != nil {
		t.Fatalf("RestoreBytes: %v", ae)
	}
	if _, ae := vm.InvokeMessage(builtin.StorageMarketActorAddr, registryAddr, builtin.MethodVerifiedRegistryUseBytes, client.ToBytes(), abi.Zero(), 1_000_000); ae != nil {
		t.Fatalf("UseBytes after restore: %v", ae)
	}
}
