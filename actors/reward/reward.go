// Package reward is a minimal stand-in for the reward actor: enough state
// and a constructor for GetActorCodeCID lookups to resolve against, with no
// block-reward schedule or minting logic (spec scopes reward's economics
// out; see SPEC_FULL.md's "other built-ins" section).
package reward

import (
	"io"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
)

// State holds a cumulative paid-out figure. The constructor sets it to zero
// and no method of this actor changes it.
type State struct {
	TotalPaid abi.TokenAmount
}

func (s *State) MarshalCBOR(w io.Writer) error { return s.TotalPaid.MarshalCBOR(w) }

func (s *State) UnmarshalCBOR(r io.Reader) error { return s.TotalPaid.UnmarshalCBOR(r) }

func init() {
	dispatch.Register(builtin.RewardActorCodeID, dispatch.Exports{
		builtin.MethodConstructor: Constructor,
	})
}

// Constructor is invoked once at genesis by the system actor.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.SystemActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	st := &State{TotalPaid: abi.Zero()}
	if err := runtime.CreateState(rt, st); err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "create state: %s", err)
	}
	return nil, nil
}
