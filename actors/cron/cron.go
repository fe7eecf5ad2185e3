// Package cron implements the cron actor: a static, per-epoch tick list
// invoked once by the driving VM and fanned out to every registered entry
// in order. An entry's failure is logged and does not block the rest of
// the list from running, mirroring specs-actors/actors/builtin/cron's
// catch-and-continue behavior (a stuck deal-sweep must never be able to
// starve every other built-in's own per-epoch bookkeeping).
package cron

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
)

// Entry is one built-in actor's per-epoch hook.
type Entry struct {
	Receiver  address.Address
	MethodNum uint64
}

func (e *Entry) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, e.Receiver.ToBytes()); err != nil {
		return err
	}
	return cbor.WriteUInt(w, e.MethodNum)
}

func (e *Entry) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("cron: expected 2-tuple entry, got %d", n)
	}
	b, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if e.Receiver, err = address.FromBytes(b); err != nil {
		return err
	}
	e.MethodNum, err = cr.ReadUInt()
	return err
}

// State is the ordered list of built-ins ticked every epoch.
type State struct {
	Entries []Entry
}

func (s *State) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, uint64(len(s.Entries))); err != nil {
		return err
	}
	for i := range s.Entries {
		if err := s.Entries[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) UnmarshalCBOR(r io.Reader) error {
	count, err := cbor.NewReader(r).ReadArrayHeader()
	if err != nil {
		return err
	}
	s.Entries = make([]Entry, count)
	for i := uint64(0); i < count; i++ {
		if err := s.Entries[i].UnmarshalCBOR(r); err != nil {
			return err
		}
	}
	return nil
}

// ConstructorParams seeds the entry list at genesis.
type ConstructorParams struct {
	Entries []Entry
}

func (p *ConstructorParams) MarshalCBOR(w io.Writer) error { return (&State{Entries: p.Entries}).MarshalCBOR(w) }

func (p *ConstructorParams) UnmarshalCBOR(r io.Reader) error {
	st := &State{}
	if err := st.UnmarshalCBOR(r); err != nil {
		return err
	}
	p.Entries = st.Entries
	return nil
}

func init() {
	dispatch.Register(builtin.CronActorCodeID, dispatch.Exports{
		builtin.MethodConstructor:   Constructor,
		builtin.MethodCronEpochTick: EpochTick,
	})
}

// Constructor records the genesis entry list.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.SystemActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	p := &ConstructorParams{}
	if err := p.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal constructor params: %s", err)
	}
	st := &State{Entries: p.Entries}
	if err := runtime.CreateState(rt, st); err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "create state: %s", err)
	}
	return nil, nil
}

// EpochTick calls every registered entry in order; only the system actor
// drives this, once per epoch. Individual entry failures are logged and
// skipped rather than aborting the whole tick.
func EpochTick(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.SystemActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	st := &State{}
	if err := runtime.LoadState(rt, st); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	for _, e := range st.Entries {
		if _, sendErr := rt.Send(e.Receiver, e.MethodNum, nil, abi.Zero()); sendErr != nil {
			logrus.WithFields(logrus.Fields{
				"receiver": e.Receiver.String(),
				"method":   e.MethodNum,
			}).WithError(sendErr).Warn("cron entry failed, continuing")
		}
	}
	return nil, nil
}
