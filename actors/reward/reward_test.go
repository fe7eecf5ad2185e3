package reward

import (
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
	vm.CreateActor(builtin.SystemActorAddr, builtin.SystemActorCodeID, abi.Zero())
	return vm
}

func TestConstructorRequiresSystemCaller(t *testing.T) {
	vm := newVM()
	rewardAddr := address.NewID(700)
	vm.CreateActor(rewardAddr, builtin.RewardActorCodeID, abi.Zero())

	_, ae := vm.InvokeMessage(address.NewID(701), rewardAddr, builtin.MethodConstructor, nil, abi.Zero(), 1_000_000)
	if ae == nil || ae.Code != runtime.SysErrForbidden {
		t.Fatalf("expected SysErrForbidden, got %v", ae)
	}

	if _, ae := vm.InvokeMessage(builtin.SystemActorAddr, rewardAddr, builtin.MethodConstructor, nil, abi.Zero(), 1_000_000); ae != nil {
		t.Fatalf("Constructor: %v", ae)
	}
}
