package market

import (
	"bytes"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/adt"
	"github.com/synnergy-chain/actorcore/amt"
	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/hamt"
	"github.com/synnergy-chain/actorcore/runtime"
)

// marketStateMutator is the builder spec §4.7/§9 calls the "mutator
// pattern": callers declare which sub-collections a transaction step needs
// via with*(), then build() loads exactly those, and commitState() flushes
// exactly those back into the state record. A transaction that aborts
// midway never reaches commitState, so a partial table write can never be
// observed, matching the "all-or-nothing" atomicity spec requires without
// needing per-table rollback logic.
type marketStateMutator struct {
	st    *State
	store blockstore.Blockstore

	wantEscrow, wantLocked, wantDeals, wantProposals, wantStates, wantPending bool

	escrowTable  *adt.BalanceTable
	lockedTable  *adt.BalanceTable
	dealsByEpoch *adt.SetMultimap
	proposals    *amt.Root
	dealStates   *amt.Root
	pending      *hamt.Node
}

func newMarketStateMutator(st *State, store blockstore.Blockstore) *marketStateMutator {
	return &marketStateMutator{st: st, store: store}
}

func (m *marketStateMutator) withEscrowTable() *marketStateMutator  { m.wantEscrow = true; return m }
func (m *marketStateMutator) withLockedTable() *marketStateMutator  { m.wantLocked = true; return m }
func (m *marketStateMutator) withDealsByEpoch() *marketStateMutator { m.wantDeals = true; return m }
func (m *marketStateMutator) withProposals() *marketStateMutator    { m.wantProposals = true; return m }
func (m *marketStateMutator) withStates() *marketStateMutator       { m.wantStates = true; return m }
func (m *marketStateMutator) withPendingProposals() *marketStateMutator {
	m.wantPending = true
	return m
}

func (m *marketStateMutator) build() *runtime.ActorError {
	var err error
	if m.wantEscrow {
		if m.escrowTable, err = adt.LoadBalanceTable(m.store, m.st.EscrowTable); err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "load escrow table: %s", err)
		}
	}
	if m.wantLocked {
		if m.lockedTable, err = adt.LoadBalanceTable(m.store, m.st.LockedTable); err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "load locked table: %s", err)
		}
	}
	if m.wantDeals {
		if m.dealsByEpoch, err = adt.LoadSetMultimap(m.store, m.st.DealsByEpoch); err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "load deals-by-epoch: %s", err)
		}
	}
	if m.wantProposals {
		if m.proposals, err = amt.LoadRoot(m.store, m.st.Proposals); err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "load proposals amt: %s", err)
		}
	}
	if m.wantStates {
		if m.dealStates, err = amt.LoadRoot(m.store, m.st.States); err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "load deal states amt: %s", err)
		}
	}
	if m.wantPending {
		if m.pending, err = hamt.LoadNode(m.store, m.st.PendingProposals, 0); err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "load pending proposals: %s", err)
		}
	}
	return nil
}

func (m *marketStateMutator) commitState() *runtime.ActorError {
	if m.wantEscrow {
		c, err := m.escrowTable.Flush()
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "flush escrow table: %s", err)
		}
		m.st.EscrowTable = c
	}
	if m.wantLocked {
		c, err := m.lockedTable.Flush()
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "flush locked table: %s", err)
		}
		m.st.LockedTable = c
	}
	if m.wantDeals {
		c, err := m.dealsByEpoch.Flush()
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "flush deals-by-epoch: %s", err)
		}
		m.st.DealsByEpoch = c
	}
	if m.wantProposals {
		c, err := m.proposals.Flush(m.store)
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "flush proposals amt: %s", err)
		}
		m.st.Proposals = c
	}
	if m.wantStates {
		c, err := m.dealStates.Flush(m.store)
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "flush deal states amt: %s", err)
		}
		m.st.States = c
	}
	if m.wantPending {
		c, err := m.pending.Flush(m.store)
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalState, "flush pending proposals: %s", err)
		}
		m.st.PendingProposals = c
	}
	return nil
}

// putProposal marshals and stores a DealProposal at id in the proposals AMT.
func putProposal(store blockstore.Blockstore, root *amt.Root, id abi.DealID, p *DealProposal) error {
	var buf bytes.Buffer
	if err := p.MarshalCBOR(&buf); err != nil {
		return err
	}
	return root.Set(store, uint64(id), buf.Bytes())
}

// getProposal loads the DealProposal stored at id, if any.
func getProposal(store blockstore.Blockstore, root *amt.Root, id abi.DealID) (*DealProposal, bool, error) {
	v, ok, err := root.Get(store, uint64(id))
	if err != nil || !ok {
		return nil, false, err
	}
	p := &DealProposal{}
	if err := p.UnmarshalCBOR(bytes.NewReader(v)); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// putDealState marshals and stores a DealState at id in the states AMT.
func putDealState(store blockstore.Blockstore, root *amt.Root, id abi.DealID, s *DealState) error {
	var buf bytes.Buffer
	if err := s.MarshalCBOR(&buf); err != nil {
		return err
	}
	return root.Set(store, uint64(id), buf.Bytes())
}

// getDealState loads the DealState stored at id, if any.
func getDealState(store blockstore.Blockstore, root *amt.Root, id abi.DealID) (*DealState, bool, error) {
	v, ok, err := root.Get(store, uint64(id))
	if err != nil || !ok {
		return nil, false, err
	}
	s := &DealState{}
	if err := s.UnmarshalCBOR(bytes.NewReader(v)); err != nil {
		return nil, false, err
	}
	return s, true, nil
}
