// Package multisig is a minimal stand-in for the multisig wallet actor:
// just the signer set and threshold, enough for GetActorCodeCID lookups
// and builtin.CallerTypesSignable membership, with no proposal/approval
// transaction queue (spec scopes multisig's economics out; see
// SPEC_FULL.md's "other built-ins" section).
package multisig

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

// State records the approved signer set and the approval threshold.
type State struct {
	Signers   []address.Address
	Threshold uint64
}

func (s *State) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteArrayHeader(w, uint64(len(s.Signers))); err != nil {
		return err
	}
	for _, a := range s.Signers {
		if err := cbor.WriteBytes(w, a.ToBytes()); err != nil {
			return err
		}
	}
	return cbor.WriteUInt(w, s.Threshold)
}

func (s *State) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("multisig: expected 2-tuple state, got %d", n)
	}
	count, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	s.Signers = make([]address.Address, count)
	for i := uint64(0); i < count; i++ {
		b, err := cr.ReadBytes()
		if err != nil {
			return err
		}
		if s.Signers[i], err = address.FromBytes(b); err != nil {
			return err
		}
	}
	s.Threshold, err = cr.ReadUInt()
	return err
}

// ConstructorParams is the initial signer set and approval threshold.
type ConstructorParams struct {
	Signers   []address.Address
	Threshold uint64
}

func (p *ConstructorParams) MarshalCBOR(w io.Writer) error { return (&State{Signers: p.Signers, Threshold: p.Threshold}).MarshalCBOR(w) }

func (p *ConstructorParams) UnmarshalCBOR(r io.Reader) error {
	st := &State{}
	if err := st.UnmarshalCBOR(r); err != nil {
		return err
	}
	p.Signers, p.Threshold = st.Signers, st.Threshold
	return nil
}

func init() {
	dispatch.Register(builtin.MultisigActorCodeID, dispatch.Exports{
		builtin.MethodConstructor: Constructor,
	})
}

// Constructor records the wallet's signer set, requiring at least
// Threshold distinct signers to exist.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.InitActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	p := &ConstructorParams{}
	if err := p.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal constructor params: %s", err)
	}
	if p.Threshold == 0 || p.Threshold > uint64(len(p.Signers)) {
		return nil, runtime.Abortf(runtime.ErrIllegalArgument, "threshold %d invalid for %d signers", p.Threshold, len(p.Signers))
	}
	st := &State{Signers: p.Signers, Threshold: p.Threshold}
	if err := runtime.CreateState(rt, st); err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "create state: %s", err)
	}
	return nil, nil
}
