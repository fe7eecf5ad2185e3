// Package runtime implements the actor runtime capability contract: the
// single mutable channel through which actor code observes and changes the
// world (spec's "Runtime capability"). runtime.Context is constructed once
// per method invocation by the dispatcher and is never retained past it.
// Grounded on the teacher's access-control/ledger split (a small capability
// interface, core/access_control.go) generalized to the full runtime
// surface, and on core/virtual_machine.go's message-dispatch shape for the
// call-stack depth bound.
package runtime

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/cid"
	"github.com/synnergy-chain/actorcore/gas"
	"github.com/synnergy-chain/actorcore/syscall"
)

// ExitCode classifies why an invocation aborted. Names and the
// system/actor split follow spec's external-interfaces exit-code list
// verbatim; SysErrCallStackOverflow is this module's own addition for the
// bounded-recursion invariant, which the list leaves implementation-defined.
type ExitCode int

const (
	Ok ExitCode = iota

	// System exit codes: runtime-enforced, never returned by actor code
	// directly.
	SysErrSenderInvalid
	SysErrSenderStateInvalid
	SysErrInvalidMethod
	SysErrInsufficientFunds
	SysErrOutOfGas
	SysErrForbidden
	SysErrorIllegalActor
	SysErrorIllegalArgument
	SysErrCallStackOverflow

	// Actor exit codes: returned by actor method bodies via Abort/Require*.
	ErrIllegalArgument
	ErrNotFound
	ErrForbidden
	ErrInsufficientFunds
	ErrIllegalState
	ErrSerialization
	ErrPlaceholder
)

var exitCodeNames = map[ExitCode]string{
	Ok:                      "Ok",
	SysErrSenderInvalid:     "SysErrSenderInvalid",
	SysErrSenderStateInvalid: "SysErrSenderStateInvalid",
	SysErrInvalidMethod:     "SysErrInvalidMethod",
	SysErrInsufficientFunds: "SysErrInsufficientFunds",
	SysErrOutOfGas:          "SysErrOutOfGas",
	SysErrForbidden:         "SysErrForbidden",
	SysErrorIllegalActor:    "SysErrorIllegalActor",
	SysErrorIllegalArgument: "SysErrorIllegalArgument",
	SysErrCallStackOverflow: "SysErrCallStackOverflow",
	ErrIllegalArgument:      "ErrIllegalArgument",
	ErrNotFound:             "ErrNotFound",
	ErrForbidden:            "ErrForbidden",
	ErrInsufficientFunds:    "ErrInsufficientFunds",
	ErrIllegalState:         "ErrIllegalState",
	ErrSerialization:        "ErrSerialization",
	ErrPlaceholder:          "ErrPlaceholder",
}

// IsSuccess reports whether the code represents a non-aborted invocation.
func (c ExitCode) IsSuccess() bool { return c == Ok }

func (c ExitCode) String() string {
	if name, ok := exitCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ExitCode(%d)", int(c))
}

// ActorError is the typed error every aborted invocation carries, and the
// value propagated back through nested Send calls.
type ActorError struct {
	Code ExitCode
	Msg  string
}

func (e *ActorError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Msg) }

// Abortf constructs an ActorError, the runtime's sole way for actor code to
// abort an invocation.
func Abortf(code ExitCode, format string, args ...interface{}) *ActorError {
	return &ActorError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// MaxCallDepth bounds nested Send recursion (spec's "implementation-defined
// call stack limit").
const MaxCallDepth = 32

// Message carries the immutable per-invocation caller/receiver/value triple
// returned by Message().
type Message struct {
	Caller        address.Address
	Receiver      address.Address
	ValueReceived abi.TokenAmount
	Method        uint64
	Params        []byte
}

// Host is the shared chain-view collaborator a Context delegates to: actor
// table lookups, address resolution, nested Send, and the ambient
// store/epoch/syscalls. It is implemented by the dispatch package so that
// runtime itself stays free of any dependency on the method-dispatch table.
type Host interface {
	Store() blockstore.Blockstore
	Epoch() abi.ChainEpoch
	Syscalls() syscall.Backend
	GasTracker() *gas.Tracker
	GetActor(addr address.Address) (codeCid cid.Cid, balance abi.TokenAmount, head cid.Cid, found bool)
	SetActorHead(addr address.Address, head cid.Cid) error
	ResolveAddress(addr address.Address) (address.Address, bool)
	Send(from address.Address, to address.Address, method uint64, params []byte, value abi.TokenAmount, depth int) ([]byte, *ActorError)
}

// Runtime is the capability surface exposed to actor code, matching spec
// §4.5 exactly.
type Runtime interface {
	Message() Message
	CurrEpoch() abi.ChainEpoch
	ValidateImmediateCallerIs(addrs ...address.Address) error
	ValidateImmediateCallerType(codeCids ...cid.Cid) error
	GetActorCodeCID(addr address.Address) (cid.Cid, bool)
	ResolveAddress(addr address.Address) (address.Address, bool)
	Send(to address.Address, method uint64, params []byte, value abi.TokenAmount) ([]byte, *ActorError)
	Syscalls() syscall.Backend
	CurrentBalance() abi.TokenAmount
	Abort(code ExitCode, msg string) *ActorError
	Store() blockstore.Blockstore
}

// Context is the concrete Runtime implementation constructed fresh for
// every actor invocation.
type Context struct {
	host      Host
	msg       Message
	depth     int
	validated bool
}

// NewContext constructs the per-invocation runtime. Called by the
// dispatcher immediately before invoking an actor method.
func NewContext(host Host, msg Message, depth int) *Context {
	return &Context{host: host, msg: msg, depth: depth}
}

func (c *Context) Message() Message          { return c.msg }
func (c *Context) CurrEpoch() abi.ChainEpoch  { return c.host.Epoch() }
func (c *Context) Syscalls() syscall.Backend  { return c.host.Syscalls() }

// Store exposes the blockstore underlying state<T>/create<T>/transaction<T>
// so actor code can load and flush the sub-collections (AMT/HAMT roots) its
// own state record points to, mirroring specs-actors' rt.Store() capability.
func (c *Context) Store() blockstore.Blockstore { return c.host.Store() }

// CallerValidated reports whether a validate-caller check has already run
// this invocation; the dispatcher calls this after a successful method
// return to enforce the "exactly once" runtime invariant.
func (c *Context) CallerValidated() bool { return c.validated }

func (c *Context) ValidateImmediateCallerIs(addrs ...address.Address) error {
	if c.validated {
		return &ActorError{Code: SysErrForbidden, Msg: "caller already validated this invocation"}
	}
	c.validated = true
	for _, a := range addrs {
		if a.Equal(c.msg.Caller) {
			return nil
		}
	}
	return &ActorError{Code: SysErrForbidden, Msg: "caller not in allowed set"}
}

func (c *Context) ValidateImmediateCallerType(codeCids ...cid.Cid) error {
	if c.validated {
		return &ActorError{Code: SysErrForbidden, Msg: "caller already validated this invocation"}
	}
	c.validated = true
	callerCode, _, _, found := c.host.GetActor(c.msg.Caller)
	if !found {
		return &ActorError{Code: SysErrForbidden, Msg: "caller actor not found"}
	}
	for _, want := range codeCids {
		if callerCode.Equals(want) {
			return nil
		}
	}
	return &ActorError{Code: SysErrForbidden, Msg: "caller code CID not in allowed set"}
}

func (c *Context) GetActorCodeCID(addr address.Address) (cid.Cid, bool) {
	code, _, _, found := c.host.GetActor(addr)
	return code, found
}

func (c *Context) ResolveAddress(addr address.Address) (address.Address, bool) {
	return c.host.ResolveAddress(addr)
}

func (c *Context) Send(to address.Address, method uint64, params []byte, value abi.TokenAmount) ([]byte, *ActorError) {
	if c.depth+1 >= MaxCallDepth {
		return nil, &ActorError{Code: SysErrCallStackOverflow, Msg: "max call stack depth exceeded"}
	}
	_, bal, _, found := c.host.GetActor(c.msg.Receiver)
	if !found || bal.Cmp(value) < 0 {
		return nil, &ActorError{Code: SysErrInsufficientFunds, Msg: "insufficient balance for send"}
	}
	return c.host.Send(c.msg.Receiver, to, method, params, value, c.depth+1)
}

func (c *Context) CurrentBalance() abi.TokenAmount {
	_, bal, _, _ := c.host.GetActor(c.msg.Receiver)
	return bal
}

// Abort immediately terminates the current invocation by panicking with the
// ActorError; the dispatcher recovers it at the top of invoke_method via
// Recover, converting it back into a returned error. This mirrors the
// panic/recover abort style the reference actor implementations use rather
// than threading an error return through every call site.
func (c *Context) Abort(code ExitCode, msg string) *ActorError {
	ae := &ActorError{Code: code, Msg: msg}
	panic(ae)
}

// Recover is deferred by the dispatcher around invoke_method; it turns a
// panic raised by Abort (or Require*) back into a returned *ActorError and
// otherwise re-panics, so a genuine programming bug never looks like a
// clean actor abort.
func Recover(errOut **ActorError) {
	r := recover()
	if r == nil {
		return
	}
	ae, ok := r.(*ActorError)
	if !ok {
		panic(r)
	}
	*errOut = ae
}

// RequirePredicate aborts with code if predicate does not hold.
func RequirePredicate(c *Context, predicate bool, code ExitCode, format string, args ...interface{}) {
	if !predicate {
		c.Abort(code, fmt.Sprintf(format, args...))
	}
}

// RequireState aborts with ErrIllegalState if predicate does not hold,
// for invariant checks over an actor's own loaded state.
func RequireState(c *Context, predicate bool, format string, args ...interface{}) {
	RequirePredicate(c, predicate, ErrIllegalState, format, args...)
}

// RequireParam aborts with ErrIllegalArgument if predicate does not
// hold, for validating method-call arguments.
func RequireParam(c *Context, predicate bool, format string, args ...interface{}) {
	RequirePredicate(c, predicate, ErrIllegalArgument, format, args...)
}

// RequireSuccess propagates a failed nested Send by aborting the current
// invocation with the same exit code.
func RequireSuccess(c *Context, ae *ActorError, format string, args ...interface{}) {
	if ae != nil {
		c.Abort(ae.Code, fmt.Sprintf(format, args...)+": "+ae.Msg)
	}
}

// RequireNoErr aborts with defaultCode if err is non-nil, suffixing msg
// with the error text.
func RequireNoErr(c *Context, err error, defaultCode ExitCode, format string, args ...interface{}) {
	if err != nil {
		if ae, ok := err.(*ActorError); ok {
			c.Abort(ae.Code, fmt.Sprintf(format, args...)+": "+ae.Msg)
			return
		}
		c.Abort(defaultCode, fmt.Sprintf(format, args...)+": "+err.Error())
	}
}

// StateObject is the constraint every on-chain actor state struct must
// satisfy to be loaded/created/transacted through the runtime.
type StateObject interface {
	cbor.Marshaler
	cbor.Unmarshaler
}

var ErrStateAlreadyExists = errors.New("runtime: state already exists")

// LoadState decodes the receiver's current state head into out.
func LoadState[T StateObject](c *Context, out T) error {
	_, _, head, found := c.host.GetActor(c.msg.Receiver)
	if !found || head.Empty() {
		return &ActorError{Code: ErrNotFound, Msg: "actor state not yet created"}
	}
	data, err := c.host.Store().Get(head)
	if err != nil {
		return &ActorError{Code: ErrNotFound, Msg: err.Error()}
	}
	if err := out.UnmarshalCBOR(bytes.NewReader(data)); err != nil {
		return &ActorError{Code: ErrSerialization, Msg: err.Error()}
	}
	return nil
}

// CreateState persists v as the receiver's initial state. It fails if state
// already exists, matching the one-shot create<T> contract.
func CreateState[T StateObject](c *Context, v T) error {
	_, _, head, found := c.host.GetActor(c.msg.Receiver)
	if found && !head.Empty() {
		return ErrStateAlreadyExists
	}
	newHead, err := flush(c.host.Store(), v)
	if err != nil {
		return err
	}
	return c.host.SetActorHead(c.msg.Receiver, newHead)
}

// Transaction loads the receiver's state into state, invokes f, and on
// success flushes the result as the new head. On error from f the mutation
// is discarded entirely: the head is never touched, so any nested Send
// inside f observes the pre-transaction state for this receiver, matching
// the copy-on-write isolation invariant.
func Transaction[T StateObject](c *Context, state T, f func(T, *Context) error) error {
	if err := LoadState(c, state); err != nil {
		return err
	}
	if err := f(state, c); err != nil {
		return err
	}
	newHead, err := flush(c.host.Store(), state)
	if err != nil {
		return err
	}
	return c.host.SetActorHead(c.msg.Receiver, newHead)
}

func flush(store blockstore.Blockstore, v cbor.Marshaler) (cid.Cid, error) {
	var buf bytes.Buffer
	if err := v.MarshalCBOR(&buf); err != nil {
		return cid.Undef, &ActorError{Code: ErrSerialization, Msg: err.Error()}
	}
	c, err := store.Put(buf.Bytes())
	if err != nil {
		return cid.Undef, &ActorError{Code: ErrNotFound, Msg: err.Error()}
	}
	return c, nil
}
