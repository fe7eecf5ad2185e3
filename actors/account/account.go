// Package account implements the account actor: the thinnest built-in,
// holding nothing but the public key address it was created for. Other
// actors resolve a pubkey-protocol address to an account's ID address via
// runtime.ResolveAddress; beyond its constructor, the account actor's only
// method is PubkeyAddress (method 2), which returns that address.
package account

import (
	"bytes"
	"io"

	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
)

// State records the pubkey-protocol address this account was created for.
type State struct {
	PubkeyAddress address.Address
}

func (s *State) MarshalCBOR(w io.Writer) error {
	return cbor.WriteBytes(w, s.PubkeyAddress.ToBytes())
}

func (s *State) UnmarshalCBOR(r io.Reader) error {
	b, err := cbor.NewReader(r).ReadBytes()
	if err != nil {
		return err
	}
	s.PubkeyAddress, err = address.FromBytes(b)
	return err
}

// ConstructorParams is the pubkey-protocol address the init actor resolved
// this account's ID address from.
type ConstructorParams struct {
	Address address.Address
}

func (p *ConstructorParams) MarshalCBOR(w io.Writer) error {
	return cbor.WriteBytes(w, p.Address.ToBytes())
}

func (p *ConstructorParams) UnmarshalCBOR(r io.Reader) error {
	b, err := cbor.NewReader(r).ReadBytes()
	if err != nil {
		return err
	}
	p.Address, err = address.FromBytes(b)
	return err
}

// PubkeyAddressReturn is method 2's result.
type PubkeyAddressReturn struct {
	Address address.Address
}

func (r *PubkeyAddressReturn) MarshalCBOR(w io.Writer) error {
	return cbor.WriteBytes(w, r.Address.ToBytes())
}

func (r *PubkeyAddressReturn) UnmarshalCBOR(rd io.Reader) error {
	b, err := cbor.NewReader(rd).ReadBytes()
	if err != nil {
		return err
	}
	r.Address, err = address.FromBytes(b)
	return err
}

const MethodPubkeyAddress uint64 = 2

func init() {
	dispatch.Register(builtin.AccountActorCodeID, dispatch.Exports{
		builtin.MethodConstructor: Constructor,
		MethodPubkeyAddress:       PubkeyAddress,
	})
}

// Constructor is only ever invoked by the init actor, as every account is
// created through Exec.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.InitActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	p := &ConstructorParams{}
	if err := p.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal constructor params: %s", err)
	}
	if p.Address.Protocol() == address.ID {
		return nil, runtime.Abortf(runtime.ErrIllegalArgument, "account must be constructed from a non-ID address")
	}
	st := &State{PubkeyAddress: p.Address}
	if err := runtime.CreateState(rt, st); err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "create state: %s", err)
	}
	return nil, nil
}

// PubkeyAddress returns the account's originating pubkey-protocol address.
func PubkeyAddress(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerIs(rt.Message().Caller); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	st := &State{}
	if err := runtime.LoadState(rt, st); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	ret := &PubkeyAddressReturn{Address: st.PubkeyAddress}
	var buf bytes.Buffer
	if err := ret.MarshalCBOR(&buf); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "marshal return: %s", err)
	}
	return buf.Bytes(), nil
}
