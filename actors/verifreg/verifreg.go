// Package verifreg implements the verified-registry actor: a per-client
// DataCap balance that the market actor's PublishStorageDeals debits on
// publication of a verified deal and CronTick's timeout path credits back,
// grounded on specs-actors/actors/builtin/verifreg's UseBytes/RestoreBytes
// pair and reusing this repo's own adt.BalanceTable for the cap ledger
// (the same collection the market actor uses for its escrow balances).
//
// The market actor's Send call sites at these methods pass only the
// client's address, not the deal's piece size (see actors/market/market.go);
// this package therefore debits/credits a fixed per-deal DataCap unit
// rather than the deal's true size. A size-aware accounting would require
// threading PieceSize through those Send calls, which is out of scope here.
package verifreg

import (
	"bytes"
	"io"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/adt"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/cid"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
)

// DealCapUnit is the fixed DataCap amount UseBytes debits and RestoreBytes
// credits per verified deal, in lieu of the deal's real piece size.
var DealCapUnit = abi.NewTokenAmount(1)

// State points at the client->remaining-DataCap balance table.
type State struct {
	VerifiedClients cid.Cid
}

func (s *State) MarshalCBOR(w io.Writer) error { return cbor.WriteCid(w, s.VerifiedClients) }

func (s *State) UnmarshalCBOR(r io.Reader) error {
	c, err := cbor.NewReader(r).ReadCid()
	if err != nil {
		return err
	}
	s.VerifiedClients = c
	return nil
}

func init() {
	dispatch.Register(builtin.VerifiedRegistryActorCodeID, dispatch.Exports{
		builtin.MethodConstructor:                 Constructor,
		builtin.MethodVerifiedRegistryUseBytes:     UseBytes,
		builtin.MethodVerifiedRegistryRestoreBytes: RestoreBytes,
		MethodAddVerifiedClient:                    AddVerifiedClient,
	})
}

// Constructor creates an empty client DataCap table; only the system actor
// constructs this registry, at genesis.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.SystemActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	root, err := adt.NewBalanceTable(rt.Store()).Flush()
	if err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "flush empty client table: %s", err)
	}
	st := &State{VerifiedClients: root}
	if cerr := runtime.CreateState(rt, st); cerr != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalState, "create state: %s", cerr)
	}
	return nil, nil
}

// AddVerifiedClientParams grants addr an initial DataCap allowance;
// governance-only in the real registry, validated here against the
// registry's own root key caller (builtin.SystemActorCodeID) since this
// reduced model has no separate root-key actor.
type AddVerifiedClientParams struct {
	Address address.Address
	Cap     abi.TokenAmount
}

func (p *AddVerifiedClientParams) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteBytes(w, p.Address.ToBytes()); err != nil {
		return err
	}
	return p.Cap.MarshalCBOR(w)
}

func (p *AddVerifiedClientParams) UnmarshalCBOR(r io.Reader) error {
	b, err := cbor.NewReader(r).ReadBytes()
	if err != nil {
		return err
	}
	if p.Address, err = address.FromBytes(b); err != nil {
		return err
	}
	return p.Cap.UnmarshalCBOR(r)
}

const MethodAddVerifiedClient uint64 = 4

// AddVerifiedClient grants addr a fresh DataCap allowance.
func AddVerifiedClient(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.SystemActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	p := &AddVerifiedClientParams{}
	if err := p.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal params: %s", err)
	}
	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		bt, err := adt.LoadBalanceTable(c.Store(), s.VerifiedClients)
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "load client table: %s", err)
		}
		if err := bt.AddBalance(p.Address, p.Cap); err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "add balance: %s", err)
		}
		root, err := bt.Flush()
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "flush client table: %s", err)
		}
		s.VerifiedClients = root
		return nil
	}); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	return nil, nil
}

// UseBytes debits DealCapUnit from the named client's remaining DataCap;
// only the market actor calls this, on publication of a verified deal.
func UseBytes(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.StorageMarketActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	client, aerr := address.FromBytes(params)
	if aerr != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal client address: %s", aerr)
	}
	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		bt, err := adt.LoadBalanceTable(c.Store(), s.VerifiedClients)
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "load client table: %s", err)
		}
		if err := bt.MustSubtract(client, DealCapUnit); err != nil {
			return runtime.Abortf(runtime.ErrForbidden, "client %s has insufficient data cap: %s", client, err)
		}
		root, err := bt.Flush()
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "flush client table: %s", err)
		}
		s.VerifiedClients = root
		return nil
	}); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	return nil, nil
}

// RestoreBytes credits DealCapUnit back to the named client's DataCap;
// only the market actor calls this, when a verified deal never activates
// or is terminated early.
func RestoreBytes(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.StorageMarketActorCodeID); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	client, aerr := address.FromBytes(params)
	if aerr != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal client address: %s", aerr)
	}
	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		bt, err := adt.LoadBalanceTable(c.Store(), s.VerifiedClients)
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "load client table: %s", err)
		}
		if err := bt.AddBalance(client, DealCapUnit); err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "add balance: %s", err)
		}
		root, err := bt.Flush()
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "flush client table: %s", err)
		}
		s.VerifiedClients = root
		return nil
	}); err != nil {
		return nil, err.(*runtime.ActorError)
	}
	return nil, nil
}
