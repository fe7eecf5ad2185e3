// Package dispatch is the method-number router and actor-code registry: it
// owns the shared VM state (the actor table: code CID, balance, state head
// per address), wires a runtime.Host into one runtime.Context per
// invocation, and enforces the dispatch-level invariants spec assigns to
// the runtime boundary rather than to any individual actor (unknown method
// → SysErrInvalidMethod, constructor-once, validate-caller-exactly-once).
// Grounded on the teacher's core/contracts.go ContractRegistry (singleton,
// mutex-guarded map keyed by address, Invoke/InvokeWithReceipt) generalized
// from WASM-bytecode execution to a static per-actor-code Go method table,
// and on core/contract_management.go's ledger-backed lifecycle bookkeeping.
package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/cid"
	"github.com/synnergy-chain/actorcore/gas"
	"github.com/synnergy-chain/actorcore/runtime"
	"github.com/synnergy-chain/actorcore/syscall"
)

// ConstructorMethod is the method number every actor's constructor is
// invoked on; reserved and never available for actor-defined use.
const ConstructorMethod uint64 = 1

// MethodFunc is the signature every exported actor method implements.
type MethodFunc func(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError)

// Exports maps an actor's method numbers to their handlers.
type Exports map[uint64]MethodFunc

var registryMu sync.RWMutex
var registry = map[string]Exports{}

// Register associates an actor code CID with its method table. Built-in
// actor packages call this from an init() function.
func Register(code cid.Cid, exports Exports) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code.KeyString()] = exports
}

// Lookup returns the export table registered for a code CID.
func Lookup(code cid.Cid) (Exports, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[code.KeyString()]
	return e, ok
}

// actorState is the dispatcher's bookkeeping record for one actor.
type actorState struct {
	code        cid.Cid
	balance     abi.TokenAmount
	head        cid.Cid
	constructed bool
}

// VM is the shared chain-view the dispatcher executes messages against: one
// instance owns the actor table, the blockstore, the syscall backend, and
// the epoch clock for every message it processes. It implements
// runtime.Host so runtime.Context delegates here for everything outside the
// pure capability surface.
type VM struct {
	mu      sync.RWMutex
	store   blockstore.Blockstore
	epoch   abi.ChainEpoch
	sys     syscall.Backend
	actors  map[string]*actorState
	tracker *gas.Tracker
}

// NewVM constructs an empty actor-table VM over store.
func NewVM(store blockstore.Blockstore, sys syscall.Backend) *VM {
	return &VM{
		store:  store,
		sys:    sys,
		actors: map[string]*actorState{},
	}
}

// SetEpoch advances the VM's logical clock, read by CurrEpoch() inside any
// subsequent invocation.
func (vm *VM) SetEpoch(e abi.ChainEpoch) { vm.epoch = e }

// CreateActor registers a fresh actor with no state head, the dispatch-level
// analogue of the init actor's address allocation. balance seeds its
// initial funds (zero for most creations; non-zero only for genesis-style
// setup).
func (vm *VM) CreateActor(addr address.Address, code cid.Cid, balance abi.TokenAmount) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.actors[addr.String()] = &actorState{code: code, balance: balance, head: cid.Undef}
}

// Store implements runtime.Host.
func (vm *VM) Store() blockstore.Blockstore { return vm.store }

// Epoch implements runtime.Host.
func (vm *VM) Epoch() abi.ChainEpoch { return vm.epoch }

// Syscalls implements runtime.Host.
func (vm *VM) Syscalls() syscall.Backend { return vm.sys }

// GasTracker implements runtime.Host, returning the tracker for whichever
// top-level message is currently executing. The VM processes one message to
// completion before starting the next (spec §5's single-threaded-per-
// message model), so a single field suffices.
func (vm *VM) GasTracker() *gas.Tracker { return vm.tracker }

// GetActor implements runtime.Host.
func (vm *VM) GetActor(addr address.Address) (cid.Cid, abi.TokenAmount, cid.Cid, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	a, ok := vm.actors[addr.String()]
	if !ok {
		return cid.Undef, abi.Zero(), cid.Undef, false
	}
	return a.code, a.balance, a.head, true
}

// SetActorHead implements runtime.Host.
func (vm *VM) SetActorHead(addr address.Address, head cid.Cid) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	a, ok := vm.actors[addr.String()]
	if !ok {
		return &runtime.ActorError{Code: runtime.ErrNotFound, Msg: "set head on unknown actor"}
	}
	a.head = head
	return nil
}

// ResolveAddress implements runtime.Host. This module only tracks actors it
// has created, so resolution is identity over known addresses; a full
// init-actor-backed pubkey→ID mapping belongs to actors/initactor.
func (vm *VM) ResolveAddress(addr address.Address) (address.Address, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	_, ok := vm.actors[addr.String()]
	if !ok {
		return address.Undef, false
	}
	return addr, true
}

func (vm *VM) transfer(from, to address.Address, value abi.TokenAmount) *runtime.ActorError {
	if value.IsZero() {
		return nil
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	fa, ok := vm.actors[from.String()]
	if !ok {
		return &runtime.ActorError{Code: runtime.SysErrSenderInvalid, Msg: "transfer from unknown actor"}
	}
	ta, ok := vm.actors[to.String()]
	if !ok {
		return &runtime.ActorError{Code: runtime.ErrNotFound, Msg: "transfer to unknown actor"}
	}
	if fa.balance.Cmp(value) < 0 {
		return &runtime.ActorError{Code: runtime.SysErrInsufficientFunds, Msg: "transfer exceeds balance"}
	}
	fa.balance = fa.balance.Sub(value)
	ta.balance = ta.balance.Add(value)
	return nil
}

// Send implements runtime.Host: it is the sole path through which nested
// actor-to-actor calls run, invoked by runtime.Context.Send. The value
// transfer and the invocation are atomic: if the callee aborts, the
// transferred value is returned to the caller, matching spec's "an early
// error within the transaction discards all mutations" carried through to
// the send boundary.
func (vm *VM) Send(from, to address.Address, method uint64, params []byte, value abi.TokenAmount, depth int) ([]byte, *runtime.ActorError) {
	return vm.invokeWithValue(from, to, method, params, value, depth)
}

// InvokeMessage is the top-level entry point: it opens a fresh gas budget
// for the whole message (shared by every nested Send), applies the
// value transfer from caller to receiver, and dispatches to the receiver's
// constructor or method handler.
func (vm *VM) InvokeMessage(from, to address.Address, method uint64, params []byte, value abi.TokenAmount, gasLimit uint64) ([]byte, *runtime.ActorError) {
	vm.tracker = gas.NewTracker(gasLimit)
	defer func() { vm.tracker = nil }()

	if err := vm.tracker.ChargeFor(gas.OnChainMessage, len(params)); err != nil {
		return nil, &runtime.ActorError{Code: runtime.SysErrOutOfGas, Msg: err.Error()}
	}
	ret, ae := vm.invokeWithValue(from, to, method, params, value, 0)
	logFields := logrus.Fields{"to": to.String(), "method": method, "gas_used": vm.tracker.Used()}
	if ae != nil {
		logrus.WithFields(logFields).WithError(ae).Warn("message invocation aborted")
	} else {
		logrus.WithFields(logFields).Info("message invocation succeeded")
	}
	return ret, ae
}

func (vm *VM) invokeWithValue(from, to address.Address, method uint64, params []byte, value abi.TokenAmount, depth int) ([]byte, *runtime.ActorError) {
	if ae := vm.transfer(from, to, value); ae != nil {
		return nil, ae
	}
	ret, ae := vm.invoke(runtime.Message{Caller: from, Receiver: to, ValueReceived: value, Method: method, Params: params}, depth)
	if ae != nil {
		if revertErr := vm.transfer(to, from, value); revertErr != nil {
			logrus.WithError(revertErr).Error("failed to revert value transfer after aborted invocation")
		}
		return nil, ae
	}
	return ret, nil
}

func (vm *VM) invoke(msg runtime.Message, depth int) ([]byte, *runtime.ActorError) {
	if depth > 0 {
		if err := vm.tracker.ChargeFor(gas.SendBase, len(msg.Params)); err != nil {
			return nil, &runtime.ActorError{Code: runtime.SysErrOutOfGas, Msg: err.Error()}
		}
	}

	code, _, head, found := vm.GetActor(msg.Receiver)
	if !found {
		return nil, &runtime.ActorError{Code: runtime.ErrNotFound, Msg: "receiver actor not found"}
	}
	if msg.Method == builtin.MethodSend {
		// No actor registers a handler for the implicit transfer method; the
		// value has already moved in invokeWithValue, so there is nothing
		// left to dispatch.
		return nil, nil
	}
	exports, ok := Lookup(code)
	if !ok {
		return nil, &runtime.ActorError{Code: runtime.ErrIllegalState, Msg: "receiver actor code not registered"}
	}
	handler, ok := exports[msg.Method]
	if !ok {
		return nil, &runtime.ActorError{Code: runtime.SysErrInvalidMethod, Msg: "unknown method number"}
	}
	vm.mu.RLock()
	constructed := vm.actors[msg.Receiver.String()].constructed
	vm.mu.RUnlock()
	if msg.Method == ConstructorMethod && (constructed || !head.Empty()) {
		return nil, &runtime.ActorError{Code: runtime.SysErrForbidden, Msg: "actor already constructed"}
	}

	ctx := runtime.NewContext(vm, msg, depth)
	var ret []byte
	var actorErr *runtime.ActorError
	func() {
		defer runtime.Recover(&actorErr)
		ret, actorErr = handler(ctx, msg.Params)
	}()
	if actorErr != nil {
		return nil, actorErr
	}
	if !ctx.CallerValidated() {
		return nil, &runtime.ActorError{Code: runtime.ErrIllegalState, Msg: "method returned without validating caller"}
	}
	if msg.Method == ConstructorMethod {
		vm.mu.Lock()
		vm.actors[msg.Receiver.String()].constructed = true
		vm.mu.Unlock()
	}
	return ret, nil
}
