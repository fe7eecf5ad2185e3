package market

import (
	"bytes"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/adt"
	"github.com/synnergy-chain/actorcore/amt"
	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/cid"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/hamt"
	"github.com/synnergy-chain/actorcore/runtime"
)

func newEmptyBalanceTable(store blockstore.Blockstore) (cid.Cid, error) {
	return adt.NewBalanceTable(store).Flush()
}

func newEmptySetMultimap(store blockstore.Blockstore) (cid.Cid, error) {
	return adt.NewSetMultimap(store).Flush()
}

func newEmptyAMT(store blockstore.Blockstore) (cid.Cid, error) {
	return amt.New().Flush(store)
}

func newEmptyHAMT(store blockstore.Blockstore) (cid.Cid, error) {
	return hamt.NewNode(0).Flush(store)
}

func amtLoad(store blockstore.Blockstore, root cid.Cid) (*amt.Root, error) {
	return amt.LoadRoot(store, root)
}

func init() {
	dispatch.Register(builtin.StorageMarketActorCodeID, dispatch.Exports{
		builtin.MethodConstructor: Constructor,
		2:                         AddBalance,
		3:                         WithdrawBalance,
		4:                         PublishStorageDeals,
		5:                         VerifyDealsForActivation,
		6:                         ActivateDeals,
		7:                         OnMinersSectorTerminate,
		8:                         ComputeDataCommitment,
		9:                         CronTick,
	})
}

func addressIn(addr address.Address, set []address.Address) bool {
	for _, a := range set {
		if a.Equal(addr) {
			return true
		}
	}
	return false
}

func asActorError(err error) *runtime.ActorError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*runtime.ActorError); ok {
		return ae
	}
	return runtime.Abortf(runtime.ErrIllegalState, "%s", err)
}

// Constructor sets up an empty market: every sub-collection flushed fresh,
// NextID at zero, LastCron undefined until the first CronTick runs.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.SystemActorCodeID); err != nil {
		return nil, asActorError(err)
	}
	store := rt.Store()
	escrowCid, err := newEmptyBalanceTable(store)
	if err != nil {
		return nil, asActorError(err)
	}
	lockedCid, err := newEmptyBalanceTable(store)
	if err != nil {
		return nil, asActorError(err)
	}
	dealsCid, err := newEmptySetMultimap(store)
	if err != nil {
		return nil, asActorError(err)
	}
	proposalsCid, err := newEmptyAMT(store)
	if err != nil {
		return nil, asActorError(err)
	}
	statesCid, err := newEmptyAMT(store)
	if err != nil {
		return nil, asActorError(err)
	}
	pendingCid, err := newEmptyHAMT(store)
	if err != nil {
		return nil, asActorError(err)
	}

	st := &State{
		Proposals:        proposalsCid,
		States:           statesCid,
		PendingProposals: pendingCid,
		EscrowTable:      escrowCid,
		LockedTable:      lockedCid,
		DealsByEpoch:     dealsCid,
		NextID:           0,
		LastCron:         EpochUndefined,
	}
	if err := runtime.CreateState(rt, st); err != nil {
		return nil, asActorError(err)
	}
	return nil, nil
}

// escrowAddress resolves addr to its nominal escrow holder and the
// recipient a withdrawal ultimately pays out to, and the set of addresses
// allowed to request a withdrawal. For a miner actor these differ (the
// miner itself holds the escrow balance; its owner receives withdrawals,
// and either owner or worker may request one). For any other signable
// account both are the resolved ID address itself.
func escrowAddress(rt *runtime.Context, addr address.Address) (nominal address.Address, recipient address.Address, approved []address.Address, aerr *runtime.ActorError) {
	resolved, ok := rt.ResolveAddress(addr)
	if !ok {
		return address.Undef, address.Undef, nil, runtime.Abortf(runtime.ErrNotFound, "failed to resolve address %s", addr)
	}
	code, found := rt.GetActorCodeCID(resolved)
	if !found {
		return address.Undef, address.Undef, nil, runtime.Abortf(runtime.ErrNotFound, "no actor at %s", resolved)
	}
	if !code.Equals(builtin.StorageMinerActorCodeID) {
		return resolved, resolved, []address.Address{resolved}, nil
	}
	ret, sendErr := rt.Send(resolved, builtin.MethodMinerControlAddresses, nil, abi.Zero())
	if sendErr != nil {
		return address.Undef, address.Undef, nil, sendErr
	}
	var owner, worker address.Address
	if err := unmarshalControlAddresses(ret, &owner, &worker); err != nil {
		return address.Undef, address.Undef, nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal control addresses: %s", err)
	}
	return resolved, owner, []address.Address{owner, worker}, nil
}

// unmarshalControlAddresses decodes the two-bytestring tuple the miner
// stub's ControlAddressesReturn encodes, reading the bytes directly rather
// than importing actors/miner.
func unmarshalControlAddresses(data []byte, owner, worker *address.Address) error {
	cr := cbor.NewReader(bytes.NewReader(data))
	ownerBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	o, err := address.FromBytes(ownerBytes)
	if err != nil {
		return err
	}
	workerBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	w, err := address.FromBytes(workerBytes)
	if err != nil {
		return err
	}
	*owner, *worker = o, w
	return nil
}

// AddBalance credits addr's escrow with the value attached to the message.
// The caller must be a signable account (or a multisig acting as one); the
// nominal holder addr resolves to receives the credit.
func AddBalance(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	ap := &AddBalanceParams{}
	if err := ap.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal params: %s", err)
	}
	if err := rt.ValidateImmediateCallerType(builtin.CallerTypesSignable...); err != nil {
		return nil, asActorError(err)
	}
	value := rt.Message().ValueReceived
	if !value.IsPositive() {
		return nil, runtime.Abortf(runtime.ErrIllegalArgument, "balance to add must be positive, got %s", value)
	}
	nominal, _, _, aerr := escrowAddress(rt, ap.Address)
	if aerr != nil {
		return nil, aerr
	}

	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		m := newMarketStateMutator(s, c.Store()).withEscrowTable()
		if err := m.build(); err != nil {
			return err
		}
		if err := m.escrowTable.AddBalance(nominal, value); err != nil {
			return asActorError(err)
		}
		return m.commitState()
	}); err != nil {
		return nil, asActorError(err)
	}
	return nil, nil
}

// WithdrawBalance pays out up to amount from addr's escrow (never dropping
// below what is currently locked for active deals) to addr's recipient.
func WithdrawBalance(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	wp := &WithdrawBalanceParams{}
	if err := wp.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal params: %s", err)
	}
	if wp.Amount.IsNegative() {
		return nil, runtime.Abortf(runtime.ErrIllegalArgument, "withdrawal amount must be non-negative, got %s", wp.Amount)
	}
	nominal, recipient, approved, aerr := escrowAddress(rt, wp.Address)
	if aerr != nil {
		return nil, aerr
	}
	if err := rt.ValidateImmediateCallerIs(approved...); err != nil {
		return nil, asActorError(err)
	}

	var withdrawn abi.TokenAmount
	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		m := newMarketStateMutator(s, c.Store()).withEscrowTable().withLockedTable()
		if err := m.build(); err != nil {
			return err
		}
		locked, err := m.lockedTable.Get(nominal)
		if err != nil {
			return asActorError(err)
		}
		deducted, err := m.escrowTable.SubtractWithMinimum(nominal, wp.Amount, locked)
		if err != nil {
			return asActorError(err)
		}
		withdrawn = deducted
		return m.commitState()
	}); err != nil {
		return nil, asActorError(err)
	}

	if withdrawn.IsPositive() {
		if _, sendErr := rt.Send(recipient, builtin.MethodSend, nil, withdrawn); sendErr != nil {
			return nil, sendErr
		}
	}
	ret := &WithdrawBalanceReturn{AmountWithdrawn: withdrawn}
	var buf bytes.Buffer
	if err := ret.MarshalCBOR(&buf); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "marshal return: %s", err)
	}
	return buf.Bytes(), nil
}

// PublishStorageDeals validates and records a batch of client-signed deal
// proposals from one provider's worker, locking both parties' collateral
// and storage-fee obligations into the locked table.
func PublishStorageDeals(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	pp := &PublishStorageDealsParams{}
	if err := pp.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal params: %s", err)
	}
	if err := rt.ValidateImmediateCallerType(builtin.CallerTypesSignable...); err != nil {
		return nil, asActorError(err)
	}
	if len(pp.Deals) == 0 {
		return nil, runtime.Abortf(runtime.ErrIllegalArgument, "no deals to publish")
	}

	currEpoch := rt.CurrEpoch()
	var provider address.Address
	ids := make([]abi.DealID, 0, len(pp.Deals))

	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		m := newMarketStateMutator(s, c.Store()).
			withEscrowTable().withLockedTable().withDealsByEpoch().
			withProposals().withPendingProposals()
		if err := m.build(); err != nil {
			return err
		}

		for i := range pp.Deals {
			cdp := &pp.Deals[i]
			proposal := &cdp.Proposal

			clientNominal, _, _, aerr := escrowAddress(c, proposal.Client)
			if aerr != nil {
				return aerr
			}
			providerNominal, _, approved, aerr := escrowAddress(c, proposal.Provider)
			if aerr != nil {
				return aerr
			}
			if i == 0 && !addressIn(c.Message().Caller, approved) {
				return runtime.Abortf(runtime.ErrForbidden, "caller is not a control address of provider %s", proposal.Provider)
			}
			if i == 0 {
				provider = providerNominal
			} else if !providerNominal.Equal(provider) {
				return runtime.Abortf(runtime.ErrIllegalArgument, "all deals in one batch must share a provider")
			}

			var buf bytes.Buffer
			if err := proposal.MarshalCBOR(&buf); err != nil {
				return runtime.Abortf(runtime.ErrSerialization, "marshal proposal: %s", err)
			}
			sigOK, sigErr := c.Syscalls().VerifySignature(cdp.ClientSignature, proposal.Client, buf.Bytes())
			if sigErr != nil || !sigOK {
				return runtime.Abortf(runtime.ErrIllegalArgument, "invalid client signature on deal proposal")
			}

			if ae := validateDeal(proposal, currEpoch); ae != nil {
				return ae
			}

			dealCid, err := proposal.Cid()
			if err != nil {
				return runtime.Abortf(runtime.ErrSerialization, "hash proposal: %s", err)
			}
			if _, exists, err := m.pending.Get(c.Store(), dealCid.Bytes()); err != nil {
				return asActorError(err)
			} else if exists {
				return runtime.Abortf(runtime.ErrIllegalArgument, "deal proposal already published")
			}

			clientFee := proposal.ClientBalanceRequirement()
			if err := lockBalance(m, clientNominal, clientFee); err != nil {
				return err
			}
			if err := lockBalance(m, providerNominal, proposal.ProviderCollateral); err != nil {
				return err
			}

			id := s.NextID
			s.NextID++
			if err := putProposal(c.Store(), m.proposals, id, proposal); err != nil {
				return asActorError(err)
			}
			if err := m.pending.Set(c.Store(), dealCid.Bytes(), buf.Bytes()); err != nil {
				return asActorError(err)
			}
			if err := m.dealsByEpoch.Put(proposal.StartEpoch, id); err != nil {
				return asActorError(err)
			}
			ids = append(ids, id)

			if proposal.VerifiedDeal {
				useParams := proposal.Client.ToBytes()
				if _, sendErr := c.Send(builtin.VerifiedRegistryActorAddr, builtin.MethodVerifiedRegistryUseBytes, useParams, abi.Zero()); sendErr != nil {
					return sendErr
				}
			}
		}
		return m.commitState()
	}); err != nil {
		return nil, asActorError(err)
	}

	ret := &PublishStorageDealsReturn{IDs: ids}
	var buf bytes.Buffer
	if err := ret.MarshalCBOR(&buf); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "marshal return: %s", err)
	}
	return buf.Bytes(), nil
}

func lockBalance(m *marketStateMutator, addr address.Address, amount abi.TokenAmount) *runtime.ActorError {
	if amount.IsZero() {
		return nil
	}
	bal, err := m.escrowTable.Get(addr)
	if err != nil {
		return asActorError(err)
	}
	locked, err := m.lockedTable.Get(addr)
	if err != nil {
		return asActorError(err)
	}
	if bal.Sub(locked).Cmp(amount) < 0 {
		return runtime.Abortf(runtime.ErrInsufficientFunds, "insufficient unlocked escrow for %s: have %s, need %s", addr, bal.Sub(locked), amount)
	}
	if err := m.lockedTable.AddBalance(addr, amount); err != nil {
		return asActorError(err)
	}
	return nil
}

// VerifyDealsForActivation is a read-only pre-commit check: it sums the
// named deals' duration*size weight, split into regular and verified
// components, without mutating state.
func VerifyDealsForActivation(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	vp := &VerifyDealsForActivationParams{}
	if err := vp.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal params: %s", err)
	}
	if err := rt.ValidateImmediateCallerType(builtin.StorageMinerActorCodeID); err != nil {
		return nil, asActorError(err)
	}
	caller := rt.Message().Caller
	currEpoch := rt.CurrEpoch()

	st := &State{}
	if err := runtime.LoadState(rt, st); err != nil {
		return nil, asActorError(err)
	}
	proposals, err := amtLoad(rt.Store(), st.Proposals)
	if err != nil {
		return nil, asActorError(err)
	}

	dealWeight := abi.Zero()
	verifiedWeight := abi.Zero()
	for _, id := range vp.DealIDs {
		proposal, found, err := getProposal(rt.Store(), proposals, id)
		if err != nil {
			return nil, asActorError(err)
		}
		if !found {
			return nil, runtime.Abortf(runtime.ErrNotFound, "no such deal proposal %d", id)
		}
		if ae := validateDealCanActivate(proposal, caller, currEpoch, vp.SectorExpiry); ae != nil {
			return nil, ae
		}
		weight := abi.NewTokenAmount(int64(proposal.Duration())).Mul(abi.NewTokenAmount(int64(proposal.PieceSize)))
		if proposal.VerifiedDeal {
			verifiedWeight = verifiedWeight.Add(weight)
		} else {
			dealWeight = dealWeight.Add(weight)
		}
	}

	ret := &VerifyDealsForActivationReturn{DealWeight: dealWeight, VerifiedDealWeight: verifiedWeight}
	var buf bytes.Buffer
	if err := ret.MarshalCBOR(&buf); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "marshal return: %s", err)
	}
	return buf.Bytes(), nil
}

// ActivateDeals moves the named deals from pending to active once the
// miner's sector proving them has been proven, recording each deal's
// activation epoch.
func ActivateDeals(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	ap := &ActivateDealsParams{}
	if err := ap.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal params: %s", err)
	}
	if err := rt.ValidateImmediateCallerType(builtin.StorageMinerActorCodeID); err != nil {
		return nil, asActorError(err)
	}
	caller := rt.Message().Caller
	currEpoch := rt.CurrEpoch()

	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		m := newMarketStateMutator(s, c.Store()).withProposals().withStates()
		if err := m.build(); err != nil {
			return err
		}
		for _, id := range ap.DealIDs {
			proposal, found, err := getProposal(c.Store(), m.proposals, id)
			if err != nil {
				return asActorError(err)
			}
			if !found {
				return runtime.Abortf(runtime.ErrNotFound, "no such deal proposal %d", id)
			}
			if _, exists, err := getDealState(c.Store(), m.dealStates, id); err != nil {
				return asActorError(err)
			} else if exists {
				return runtime.Abortf(runtime.ErrIllegalArgument, "deal %d already activated", id)
			}
			if ae := validateDealCanActivate(proposal, caller, currEpoch, ap.SectorExpiry); ae != nil {
				return ae
			}
			dealState := &DealState{
				SectorStartEpoch: currEpoch,
				LastUpdatedEpoch: EpochUndefined,
				SlashEpoch:       EpochUndefined,
			}
			if err := putDealState(c.Store(), m.dealStates, id, dealState); err != nil {
				return asActorError(err)
			}
		}
		return m.commitState()
	}); err != nil {
		return nil, asActorError(err)
	}
	return nil, nil
}

// OnMinersSectorTerminate marks the named deals slashed as of epoch; actual
// collateral settlement and refund is deferred to the next CronTick.
func OnMinersSectorTerminate(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	tp := &OnMinersSectorTerminateParams{}
	if err := tp.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal params: %s", err)
	}
	if err := rt.ValidateImmediateCallerType(builtin.StorageMinerActorCodeID); err != nil {
		return nil, asActorError(err)
	}
	caller := rt.Message().Caller

	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		m := newMarketStateMutator(s, c.Store()).withProposals().withStates()
		if err := m.build(); err != nil {
			return err
		}
		for _, id := range tp.DealIDs {
			proposal, found, err := getProposal(c.Store(), m.proposals, id)
			if err != nil {
				return asActorError(err)
			}
			if !found || !proposal.Provider.Equal(caller) {
				continue
			}
			dealState, found, err := getDealState(c.Store(), m.dealStates, id)
			if err != nil {
				return asActorError(err)
			}
			if !found || dealState.SlashEpoch != EpochUndefined {
				continue
			}
			dealState.SlashEpoch = tp.Epoch
			if err := putDealState(c.Store(), m.dealStates, id, dealState); err != nil {
				return asActorError(err)
			}
		}
		return m.commitState()
	}); err != nil {
		return nil, asActorError(err)
	}
	return nil, nil
}

// ComputeDataCommitment delegates the named deals' piece CIDs to the
// unsealed-sector-CID syscall, so a miner can compute CommD without the
// market actor modeling piece layout itself.
func ComputeDataCommitment(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	cp := &ComputeDataCommitmentParams{}
	if err := cp.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal params: %s", err)
	}
	if err := rt.ValidateImmediateCallerType(builtin.StorageMinerActorCodeID); err != nil {
		return nil, asActorError(err)
	}

	st := &State{}
	if err := runtime.LoadState(rt, st); err != nil {
		return nil, asActorError(err)
	}
	proposals, err := amtLoad(rt.Store(), st.Proposals)
	if err != nil {
		return nil, asActorError(err)
	}

	pieces := make([][]byte, 0, len(cp.DealIDs))
	for _, id := range cp.DealIDs {
		proposal, found, err := getProposal(rt.Store(), proposals, id)
		if err != nil {
			return nil, asActorError(err)
		}
		if !found {
			return nil, runtime.Abortf(runtime.ErrNotFound, "no such deal proposal %d", id)
		}
		pieces = append(pieces, proposal.PieceCID.Bytes())
	}

	commD, err := rt.Syscalls().ComputeUnsealedSectorCID(pieces)
	if err != nil {
		return nil, runtime.Abortf(runtime.ErrIllegalArgument, "compute unsealed sector cid: %s", err)
	}
	ret := &ComputeDataCommitmentReturn{CommD: commD}
	var buf bytes.Buffer
	if err := ret.MarshalCBOR(&buf); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "marshal return: %s", err)
	}
	return buf.Bytes(), nil
}

// CronTick sweeps every epoch since the last tick: each pending deal either
// times out (client refunded, provider slashed, verified bytes restored), is
// settled as slashed when its sector was terminated (client's unpaid lock
// released, provider collateral slashed, not re-enqueued), or advances one
// epoch's worth of payment toward its end epoch.
func CronTick(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.CronActorCodeID); err != nil {
		return nil, asActorError(err)
	}
	currEpoch := rt.CurrEpoch()
	amountSlashed := abi.Zero()
	var verifiedRestores []address.Address

	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		m := newMarketStateMutator(s, c.Store()).
			withEscrowTable().withLockedTable().withDealsByEpoch().
			withProposals().withStates()
		if err := m.build(); err != nil {
			return err
		}

		start := s.LastCron + 1
		if s.LastCron == EpochUndefined {
			start = currEpoch
		}
		for epoch := start; epoch <= currEpoch; epoch++ {
			var ids []abi.DealID
			if err := m.dealsByEpoch.ForEach(epoch, func(id abi.DealID) error {
				ids = append(ids, id)
				return nil
			}); err != nil {
				return asActorError(err)
			}

			for _, id := range ids {
				proposal, found, err := getProposal(c.Store(), m.proposals, id)
				if err != nil {
					return asActorError(err)
				}
				if !found {
					continue
				}
				dealState, hasState, err := getDealState(c.Store(), m.dealStates, id)
				if err != nil {
					return asActorError(err)
				}

				timedOut := !hasState && currEpoch >= proposal.StartEpoch
				slashed := hasState && dealState.SlashEpoch != EpochUndefined

				clientNominal, _, _, aerr := escrowAddress(c, proposal.Client)
				if aerr != nil {
					return aerr
				}
				providerNominal, _, _, aerr := escrowAddress(c, proposal.Provider)
				if aerr != nil {
					return aerr
				}

				switch {
				case timedOut:
					slashAmt := proposal.ProviderCollateral
					if err := m.lockedTable.MustSubtract(clientNominal, proposal.ClientBalanceRequirement()); err != nil {
						return asActorError(err)
					}
					if err := m.lockedTable.MustSubtract(providerNominal, slashAmt); err != nil {
						return asActorError(err)
					}
					if err := m.escrowTable.AddBalance(providerNominal, abi.Zero().Sub(slashAmt)); err != nil {
						return asActorError(err)
					}
					amountSlashed = amountSlashed.Add(slashAmt)
					if proposal.VerifiedDeal {
						verifiedRestores = append(verifiedRestores, proposal.Client)
					}

				case slashed:
					// Sector terminated early: refund the client's lock for
					// the unpaid remainder and move the provider's collateral
					// lock into the slashed pot. The deal is not re-enqueued.
					unpaidEpochs := abi.NewTokenAmount(int64(proposal.EndEpoch - dealState.LastUpdatedEpoch))
					if dealState.LastUpdatedEpoch == EpochUndefined {
						unpaidEpochs = abi.NewTokenAmount(int64(proposal.EndEpoch - proposal.StartEpoch))
					}
					remainingFee := proposal.StoragePricePerEpoch.Mul(unpaidEpochs)
					if err := m.lockedTable.MustSubtract(clientNominal, remainingFee); err != nil {
						return asActorError(err)
					}
					slashAmt := proposal.ProviderCollateral
					if err := m.lockedTable.MustSubtract(providerNominal, slashAmt); err != nil {
						return asActorError(err)
					}
					if err := m.escrowTable.AddBalance(providerNominal, abi.Zero().Sub(slashAmt)); err != nil {
						return asActorError(err)
					}
					amountSlashed = amountSlashed.Add(slashAmt)

				default:
					if err := m.lockedTable.MustSubtract(clientNominal, proposal.StoragePricePerEpoch); err != nil {
						return asActorError(err)
					}
					if err := m.escrowTable.AddBalance(clientNominal, abi.Zero().Sub(proposal.StoragePricePerEpoch)); err != nil {
						return asActorError(err)
					}
					if err := m.escrowTable.AddBalance(providerNominal, proposal.StoragePricePerEpoch); err != nil {
						return asActorError(err)
					}
					dealState.LastUpdatedEpoch = currEpoch
					if err := putDealState(c.Store(), m.dealStates, id, dealState); err != nil {
						return asActorError(err)
					}
					if proposal.EndEpoch > currEpoch {
						if err := m.dealsByEpoch.Put(currEpoch+1, id); err != nil {
							return asActorError(err)
						}
					}
				}
			}

			if err := m.dealsByEpoch.RemoveAll(epoch); err != nil {
				return asActorError(err)
			}
		}

		s.LastCron = currEpoch
		return m.commitState()
	}); err != nil {
		return nil, asActorError(err)
	}

	for _, client := range verifiedRestores {
		if _, sendErr := rt.Send(builtin.VerifiedRegistryActorAddr, builtin.MethodVerifiedRegistryRestoreBytes, client.ToBytes(), abi.Zero()); sendErr != nil {
			return nil, sendErr
		}
	}
	if amountSlashed.IsPositive() {
		if _, sendErr := rt.Send(builtin.BurntFundsActorAddr, builtin.MethodSend, nil, amountSlashed); sendErr != nil {
			return nil, sendErr
		}
	}
	return nil, nil
}

