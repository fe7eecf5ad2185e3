package cron

import (
	"bytes"
	"testing"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/cid"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
	"github.com/synnergy-chain/actorcore/syscall"
)

// a receiver actor whose single method either succeeds or always aborts,
// so EpochTick's catch-and-continue behavior can be observed.
const methodPing uint64 = 2

var pingLog []address.Address

func pingHandler(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	rt.ValidateImmediateCallerIs(rt.Message().Caller)
	pingLog = append(pingLog, rt.Message().Receiver)
	return nil, nil
}

func failHandler(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	rt.ValidateImmediateCallerIs(rt.Message().Caller)
	return nil, runtime.Abortf(runtime.ErrIllegalState, "always fails")
}

func sampleCode(tag string) cid.Cid {
	c, err := cid.NewFromBytes([]byte(tag))
	if err != nil {
		panic(err)
	}
	return c
}

var okCode = sampleCode("cron-test-ok")
var failCode = sampleCode("cron-test-fail")

func init() {
	dispatch.Register(okCode, dispatch.Exports{methodPing: pingHandler})
	dispatch.Register(failCode, dispatch.Exports{methodPing: failHandler})
}

func newVM(t *testing.T) *dispatch.VM {
	vm := dispatch.NewVM(blockstore.NewMemory(), syscall.NewTest())
	vm.CreateActor(builtin.SystemActorAddr, builtin.SystemActorCodeID, abi.Zero())
	vm.CreateActor(builtin.CronActorAddr, builtin.CronActorCodeID, abi.Zero())
	return vm
}

func construct(t *testing.T, vm *dispatch.VM, entries []Entry) {
	cp := &ConstructorParams{Entries: entries}
	var buf bytes.Buffer
	if err := cp.MarshalCBOR(&buf); err != nil {
		t.Fatalf("marshal constructor params: %v", err)
	}
	if _, err := vm.InvokeMessage(builtin.SystemActorAddr, builtin.CronActorAddr, builtin.MethodConstructor, buf.Bytes(), abi.Zero(), 1_000_000); err != nil {
		t.Fatalf("construct cron: %v", err)
	}
}

func TestEpochTickRejectsNonSystemCaller(t *testing.T) {
	vm := newVM(t)
	construct(t, vm, nil)
	_, ae := vm.InvokeMessage(address.NewID(999), builtin.CronActorAddr, builtin.MethodCronEpochTick, nil, abi.Zero(), 1_000_000)
	if ae == nil || ae.Code != runtime.SysErrForbidden {
		t.Fatalf("expected SysErrForbidden, got %v", ae)
	}
}

func TestEpochTickInvokesEveryEntryDespiteFailures(t *testing.T) {
	pingLog = nil
	vm := newVM(t)

	okAddr := address.NewID(401)
	failAddr := address.NewID(402)
	ok2Addr := address.NewID(403)
	vm.CreateActor(okAddr, okCode, abi.Zero())
	vm.CreateActor(failAddr, failCode, abi.Zero())
	vm.CreateActor(ok2Addr, okCode, abi.Zero())

	construct(t, vm, []Entry{
		{Receiver: okAddr, MethodNum: methodPing},
		{Receiver: failAddr, MethodNum: methodPing},
		{Receiver: ok2Addr, MethodNum: methodPing},
	})

	if _, ae := vm.InvokeMessage(builtin.SystemActorAddr, builtin.CronActorAddr, builtin.MethodCronEpochTick, nil, abi.Zero(), 1_000_000); ae != nil {
		t.Fatalf("EpochTick: %v", ae)
	}

	if len(pingLog) != 2 {
		t.Fatalf("expected 2 successful pings despite the failing entry, got %d: %v", len(pingLog), pingLog)
	}
	if !pingLog[0].Equal(okAddr) || !pingLog[1].Equal(ok2Addr) {
		t.Fatalf("unexpected ping order: %v", pingLog)
	}
}
