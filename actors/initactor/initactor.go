// Package initactor implements the init actor: the one place in the system
// that hands out fresh ID addresses and runs a new actor's constructor.
// Grounded on specs-actors/actors/builtin/init's Exec entry point, with its
// address-allocation table reduced to a monotonic counter rather than a
// HAMT of robust->ID mappings (no robust-address resolution is modeled
// beyond what address/ itself already provides).
//
// Actor creation proper is dispatch's privilege, not the runtime's: nothing
// in runtime.Host lets ordinary actor code register a brand new entry in
// the actor table (spec keeps that boundary deliberately narrow). Exec
// therefore assumes the caller environment (the dispatch.VM driving a test
// or the cmd/synnergy-vm genesis loader) has already reserved NewActorAddr
// in the actor table, at the target code CID with zero balance, before
// sending the Exec message; Exec's own job is to run that actor's
// constructor and hand back its address. See DESIGN.md's Open Question
// decisions for why this split was kept rather than widening Host.
package initactor

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

// State tracks the next ID this actor will allocate and a human-readable
// network name, mirroring specs-actors' init actor state shape.
type State struct {
	NextID      uint64
	NetworkName string
}

func (s *State) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteUInt(w, s.NextID); err != nil {
		return err
	}
	return cbor.WriteString(w, s.NetworkName)
}

func (s *State) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("initactor: expected 2-tuple state, got %d", n)
	}
	if s.NextID, err = cr.ReadUInt(); err != nil {
		return err
	}
	s.NetworkName, err = cr.ReadString()
	return err
}

// ConstructorParams names the network this actor table belongs to.
type ConstructorParams struct {
	NetworkName string
}

func (p *ConstructorParams) MarshalCBOR(w io.Writer) error {
	return cbor.WriteString(w, p.NetworkName)
}

func (p *ConstructorParams) UnmarshalCBOR(r io.Reader) error {
	s, err := cbor.NewReader(r).ReadString()
	if err != nil {
		return err
	}
	p.NetworkName = s
	return nil
}

// ExecParams names the target actor's constructor params; NewActorAddr is
// the address the caller environment has already reserved in the actor
// table for this actor, at the given CodeCid, awaiting construction.
type ExecParams struct {
	NewActorAddr      address.Address
	ConstructorParams []byte
}

func (p *ExecParams) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, p.NewActorAddr.ToBytes()); err != nil {
		return err
	}
	return cbor.WriteBytes(w, p.ConstructorParams)
}

func (p *ExecParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("initactor: expected 2-tuple exec params, got %d", n)
	}
	addrBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if p.NewActorAddr, err = address.FromBytes(addrBytes); err != nil {
		return err
	}
	p.ConstructorParams, err = cr.ReadBytes()
	return err
}

// ExecReturn hands back the constructed actor's ID address.
type ExecReturn struct {
	IDAddress address.Address
}

func (r *ExecReturn) MarshalCBOR(w io.Writer) error {
	return cbor.WriteBytes(w, r.IDAddress.ToBytes())
}

func (r *ExecReturn) UnmarshalCBOR(rd io.Reader) error {
	b, err := cbor.NewReader(rd).ReadBytes()
	if err != nil {
		return err
	}
	r.IDAddress, err = address.FromBytes(b)
	return err
}

const MethodExec uint64 = 2

func init() {
	dispatch.Register(builtin.InitActorCodeID, dispatch.Exports{
		builtin.MethodConstructor: Constructor,
		MethodExec:                Exec,
	})
}

// Constructor records the network name and resets the ID counter; only the
// system actor constructs the init actor, at genesis.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.SystemActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	p := &ConstructorParams{}
	if err := p.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal constructor params: %s", err)
	}
	st := &State{NextID: builtin.BurntFundsActorID + 1, NetworkName: p.NetworkName}
	if err := runtime.CreateState(rt, st); err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "create state: %s", err)
	}
	return nil, nil
}

// Exec runs NewActorAddr's constructor, advancing this actor's allocation
// counter regardless of whether NewActorAddr happens to be the ID the
// counter would itself have picked; the counter is bookkeeping for callers
// that want a fresh ID suggestion, not an allocator this method enforces.
func Exec(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.CallerTypesSignable...); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	p := &ExecParams{}
	if err := p.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal exec params: %s", err)
	}

	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		s.NextID++
		return nil
	}); err != nil {
		return nil, err.(*runtime.ActorError)
	}

	if _, sendErr := rt.Send(p.NewActorAddr, builtin.MethodConstructor, p.ConstructorParams, rt.Message().ValueReceived); sendErr != nil {
		return nil, sendErr
	}

	ret := &ExecReturn{IDAddress: p.NewActorAddr}
	var buf bytes.Buffer
	if err := ret.MarshalCBOR(&buf); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "marshal return: %s", err)
	}
	return buf.Bytes(), nil
}
