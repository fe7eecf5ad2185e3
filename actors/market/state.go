// Package market implements the storage-market built-in actor: per-address
// escrow/locked balances, deal publication and activation, and the cron
// sweep that settles or times out pending deals. Grounded on
// specs-actors/actors/builtin/market/market_actor.go (the reference this
// actor's algorithms are distilled from) but registered under this module's
// own method numbers, which differ from the reference's.
package market

import (
	"bytes"
	"fmt"
	"io"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/cid"
)

// EpochUndefined marks a DealState epoch field that has not yet happened.
const EpochUndefined = abi.ChainEpoch(-1)

// DealProposal is the client-signed terms of a single storage deal.
type DealProposal struct {
	PieceCID             cid.Cid
	PieceSize            uint64
	VerifiedDeal         bool
	Client               address.Address
	Provider             address.Address
	Label                string
	StartEpoch           abi.ChainEpoch
	EndEpoch             abi.ChainEpoch
	StoragePricePerEpoch abi.TokenAmount
	ProviderCollateral   abi.TokenAmount
	ClientCollateral     abi.TokenAmount
}

// Duration is the number of epochs the deal is active for.
func (p *DealProposal) Duration() abi.ChainEpoch { return p.EndEpoch - p.StartEpoch }

// TotalStorageFee is the client's total payment obligation over the deal's
// full duration.
func (p *DealProposal) TotalStorageFee() abi.TokenAmount {
	return p.StoragePricePerEpoch.Mul(abi.NewTokenAmount(int64(p.Duration())))
}

// ClientBalanceRequirement is the escrow the client must hold to cover both
// the full storage fee and their collateral.
func (p *DealProposal) ClientBalanceRequirement() abi.TokenAmount {
	return p.TotalStorageFee().Add(p.ClientCollateral)
}

// Cid hashes the proposal's canonical CBOR encoding, used as its key in
// PendingProposals and as the deal's de-duplication identity.
func (p *DealProposal) Cid() (cid.Cid, error) {
	var buf bytes.Buffer
	if err := p.MarshalCBOR(&buf); err != nil {
		return cid.Undef, err
	}
	return cid.NewFromBytes(buf.Bytes())
}

func (p *DealProposal) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 10); err != nil {
		return err
	}
	if err := cbor.WriteCid(w, p.PieceCID); err != nil {
		return err
	}
	if err := cbor.WriteUInt(w, p.PieceSize); err != nil {
		return err
	}
	if err := cbor.WriteBool(w, p.VerifiedDeal); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, p.Client.ToBytes()); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, p.Provider.ToBytes()); err != nil {
		return err
	}
	if err := cbor.WriteString(w, p.Label); err != nil {
		return err
	}
	if err := cbor.WriteInt(w, int64(p.StartEpoch)); err != nil {
		return err
	}
	if err := cbor.WriteInt(w, int64(p.EndEpoch)); err != nil {
		return err
	}
	if err := p.StoragePricePerEpoch.MarshalCBOR(w); err != nil {
		return err
	}
	if err := p.ProviderCollateral.MarshalCBOR(w); err != nil {
		return err
	}
	return p.ClientCollateral.MarshalCBOR(w)
}

func (p *DealProposal) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 10 {
		return fmt.Errorf("market: expected 10-tuple deal proposal, got %d", n)
	}
	if p.PieceCID, err = cr.ReadCid(); err != nil {
		return err
	}
	if p.PieceSize, err = cr.ReadUInt(); err != nil {
		return err
	}
	if p.VerifiedDeal, err = cr.ReadBool(); err != nil {
		return err
	}
	clientBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if p.Client, err = address.FromBytes(clientBytes); err != nil {
		return err
	}
	providerBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if p.Provider, err = address.FromBytes(providerBytes); err != nil {
		return err
	}
	if p.Label, err = cr.ReadString(); err != nil {
		return err
	}
	start, err := cr.ReadInt()
	if err != nil {
		return err
	}
	p.StartEpoch = abi.ChainEpoch(start)
	end, err := cr.ReadInt()
	if err != nil {
		return err
	}
	p.EndEpoch = abi.ChainEpoch(end)
	if err := p.StoragePricePerEpoch.UnmarshalCBOR(r); err != nil {
		return err
	}
	if err := p.ProviderCollateral.UnmarshalCBOR(r); err != nil {
		return err
	}
	return p.ClientCollateral.UnmarshalCBOR(r)
}

// ClientDealProposal pairs a DealProposal with the client's signature over
// its canonical CBOR encoding.
type ClientDealProposal struct {
	Proposal        DealProposal
	ClientSignature []byte
}

func (c *ClientDealProposal) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := c.Proposal.MarshalCBOR(w); err != nil {
		return err
	}
	return cbor.WriteBytes(w, c.ClientSignature)
}

func (c *ClientDealProposal) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("market: expected 2-tuple client deal proposal, got %d", n)
	}
	if err := c.Proposal.UnmarshalCBOR(r); err != nil {
		return err
	}
	c.ClientSignature, err = cr.ReadBytes()
	return err
}

// DealState tracks a deal's activation/settlement lifecycle once it has
// moved past PendingProposals.
type DealState struct {
	SectorStartEpoch abi.ChainEpoch
	LastUpdatedEpoch abi.ChainEpoch
	SlashEpoch       abi.ChainEpoch
}

func (s *DealState) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 3); err != nil {
		return err
	}
	if err := cbor.WriteInt(w, int64(s.SectorStartEpoch)); err != nil {
		return err
	}
	if err := cbor.WriteInt(w, int64(s.LastUpdatedEpoch)); err != nil {
		return err
	}
	return cbor.WriteInt(w, int64(s.SlashEpoch))
}

func (s *DealState) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 3 {
		return fmt.Errorf("market: expected 3-tuple deal state, got %d", n)
	}
	v, err := cr.ReadInt()
	if err != nil {
		return err
	}
	s.SectorStartEpoch = abi.ChainEpoch(v)
	if v, err = cr.ReadInt(); err != nil {
		return err
	}
	s.LastUpdatedEpoch = abi.ChainEpoch(v)
	if v, err = cr.ReadInt(); err != nil {
		return err
	}
	s.SlashEpoch = abi.ChainEpoch(v)
	return nil
}

// State is the market actor's top-level state record: every field but
// NextID/LastCron is a root CID into a collection rebuilt on demand by a
// marketStateMutator.
type State struct {
	Proposals        cid.Cid
	States           cid.Cid
	PendingProposals  cid.Cid
	EscrowTable      cid.Cid
	LockedTable      cid.Cid
	DealsByEpoch     cid.Cid
	NextID           abi.DealID
	LastCron         abi.ChainEpoch
}

func (s *State) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 8); err != nil {
		return err
	}
	for _, c := range []cid.Cid{s.Proposals, s.States, s.PendingProposals, s.EscrowTable, s.LockedTable, s.DealsByEpoch} {
		if err := cbor.WriteCid(w, c); err != nil {
			return err
		}
	}
	if err := cbor.WriteUInt(w, uint64(s.NextID)); err != nil {
		return err
	}
	return cbor.WriteInt(w, int64(s.LastCron))
}

func (s *State) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 8 {
		return fmt.Errorf("market: expected 8-tuple state, got %d", n)
	}
	cids := make([]cid.Cid, 6)
	for i := range cids {
		if cids[i], err = cr.ReadCid(); err != nil {
			return err
		}
	}
	s.Proposals, s.States, s.PendingProposals = cids[0], cids[1], cids[2]
	s.EscrowTable, s.LockedTable, s.DealsByEpoch = cids[3], cids[4], cids[5]
	nextID, err := cr.ReadUInt()
	if err != nil {
		return err
	}
	s.NextID = abi.DealID(nextID)
	lastCron, err := cr.ReadInt()
	if err != nil {
		return err
	}
	s.LastCron = abi.ChainEpoch(lastCron)
	return nil
}
