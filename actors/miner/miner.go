// Package miner is a minimal storage-miner actor stub: enough state and
// surface for the market actor's escrowAddress resolution and Send call
// sites to exercise against a real registered code CID, with no sealing,
// proving, or power-reporting logic (spec §2 scopes the miner actor's
// economic detail out; see SPEC_FULL.md's "other built-ins" section).
package miner

import (
	"bytes"
	"fmt"
	"io"

	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
)

// State holds just the control addresses other built-ins need to resolve.
type State struct {
	Owner  address.Address
	Worker address.Address
}

func (s *State) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, s.Owner.ToBytes()); err != nil {
		return err
	}
	return cbor.WriteBytes(w, s.Worker.ToBytes())
}

func (s *State) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("miner: expected 2-tuple state, got %d", n)
	}
	ownerBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if s.Owner, err = address.FromBytes(ownerBytes); err != nil {
		return err
	}
	workerBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	s.Worker, err = address.FromBytes(workerBytes)
	return err
}

// ConstructorParams names the owner and worker the new miner actor is
// controlled by.
type ConstructorParams struct {
	Owner  address.Address
	Worker address.Address
}

func (p *ConstructorParams) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteBytes(w, p.Owner.ToBytes()); err != nil {
		return err
	}
	return cbor.WriteBytes(w, p.Worker.ToBytes())
}

func (p *ConstructorParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	ownerBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if p.Owner, err = address.FromBytes(ownerBytes); err != nil {
		return err
	}
	workerBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	p.Worker, err = address.FromBytes(workerBytes)
	return err
}

// ControlAddressesReturn is MethodMinerControlAddresses' result.
type ControlAddressesReturn struct {
	Owner  address.Address
	Worker address.Address
}

func (r *ControlAddressesReturn) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteBytes(w, r.Owner.ToBytes()); err != nil {
		return err
	}
	return cbor.WriteBytes(w, r.Worker.ToBytes())
}

func (r *ControlAddressesReturn) UnmarshalCBOR(rd io.Reader) error {
	cr := cbor.NewReader(rd)
	ownerBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if r.Owner, err = address.FromBytes(ownerBytes); err != nil {
		return err
	}
	workerBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	r.Worker, err = address.FromBytes(workerBytes)
	return err
}

func init() {
	dispatch.Register(builtin.StorageMinerActorCodeID, dispatch.Exports{
		builtin.MethodConstructor:            Constructor,
		builtin.MethodMinerControlAddresses:  ControlAddresses,
	})
}

// Constructor records the owner/worker pair; any caller may construct a
// miner in this reduced scope since the power actor that would normally
// gate this does not model pledge/power here.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerIs(rt.Message().Caller); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	p := &ConstructorParams{}
	if err := p.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal constructor params: %s", err)
	}
	st := &State{Owner: p.Owner, Worker: p.Worker}
	if err := runtime.CreateState(rt, st); err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "create state: %s", err)
	}
	return nil, nil
}

// ControlAddresses returns the miner's owner and worker addresses, the
// surface the market actor's escrowAddress resolution calls into.
func ControlAddresses(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	// Read-only accessor: any caller may query control addresses. Validating
	// against the caller itself satisfies the runtime's validate-once
	// invariant without actually restricting who may call.
	if err := rt.ValidateImmediateCallerIs(rt.Message().Caller); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	st := &State{}
	if err := runtime.LoadState(rt, st); err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "load state: %s", err)
	}
	ret := &ControlAddressesReturn{Owner: st.Owner, Worker: st.Worker}
	var buf bytes.Buffer
	if err := ret.MarshalCBOR(&buf); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "marshal return: %s", err)
	}
	return buf.Bytes(), nil
}
