// Package power is a minimal stand-in for the storage power actor: tracks
// nothing but a constructor-created state holding a zero total, enough for
// GetActorCodeCID lookups, with no sector/power-tallying logic (spec scopes
// power's economics out; see SPEC_FULL.md's "other built-ins" section).
package power

import (
	"io"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
)

// State holds a total raw byte power figure. The constructor sets it to zero
// and no method of this actor changes it.
type State struct {
	TotalRawBytePower abi.TokenAmount
}

func (s *State) MarshalCBOR(w io.Writer) error { return s.TotalRawBytePower.MarshalCBOR(w) }

func (s *State) UnmarshalCBOR(r io.Reader) error { return s.TotalRawBytePower.UnmarshalCBOR(r) }

func init() {
	dispatch.Register(builtin.StoragePowerActorCodeID, dispatch.Exports{
		builtin.MethodConstructor: Constructor,
	})
}

// Constructor is invoked once at genesis by the system actor.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.SystemActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	st := &State{TotalRawBytePower: abi.Zero()}
	if err := runtime.CreateState(rt, st); err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "create state: %s", err)
	}
	return nil, nil
}
