// Package system implements the system actor: an empty, state-less
// singleton whose sole purpose is to be the privileged caller identity that
// other built-ins' constructors validate against (spec's genesis actor,
// never invoked for anything beyond its own construction). Grounded on
// specs-actors/actors/builtin/system's empty-state shape.
package system

import (
	"fmt"
	"io"

	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
)

// State is deliberately empty: the system actor carries no data, only its
// code CID matters, as the identity every other built-in's constructor
// checks the caller against.
type State struct{}

func (s *State) MarshalCBOR(w io.Writer) error {
	return cbor.WriteArrayHeader(w, 0)
}

func (s *State) UnmarshalCBOR(r io.Reader) error {
	n, err := cbor.NewReader(r).ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 0 {
		return fmt.Errorf("system: expected empty-array state, got %d-tuple", n)
	}
	return nil
}

func init() {
	dispatch.Register(builtin.SystemActorCodeID, dispatch.Exports{
		builtin.MethodConstructor: Constructor,
	})
}

// Constructor validates the caller is itself the system actor: genesis
// bootstraps this actor with the system actor already registered as the
// message's caller, a convention shared with the init actor's own
// construction.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.SystemActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	if err := runtime.CreateState(rt, &State{}); err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "create state: %s", err)
	}
	return nil, nil
}
