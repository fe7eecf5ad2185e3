package market

import (
	"fmt"
	"io"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/cid"
)

// AddBalanceParams names whose escrow account method 2 credits.
type AddBalanceParams struct {
	Address address.Address
}

func (p *AddBalanceParams) MarshalCBOR(w io.Writer) error {
	return cbor.WriteBytes(w, p.Address.ToBytes())
}

func (p *AddBalanceParams) UnmarshalCBOR(r io.Reader) error {
	b, err := cbor.NewReader(r).ReadBytes()
	if err != nil {
		return err
	}
	p.Address, err = address.FromBytes(b)
	return err
}

// WithdrawBalanceParams requests up to Amount be withdrawn from Address's
// escrow.
type WithdrawBalanceParams struct {
	Address address.Address
	Amount  abi.TokenAmount
}

func (p *WithdrawBalanceParams) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, p.Address.ToBytes()); err != nil {
		return err
	}
	return p.Amount.MarshalCBOR(w)
}

func (p *WithdrawBalanceParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("market: expected 2-tuple withdraw params, got %d", n)
	}
	b, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if p.Address, err = address.FromBytes(b); err != nil {
		return err
	}
	return p.Amount.UnmarshalCBOR(r)
}

// WithdrawBalanceReturn reports how much was actually withdrawn, which may
// be less than requested (spec: "partial amounts are returned with Ok").
type WithdrawBalanceReturn struct {
	AmountWithdrawn abi.TokenAmount
}

func (r *WithdrawBalanceReturn) MarshalCBOR(w io.Writer) error { return r.AmountWithdrawn.MarshalCBOR(w) }
func (r *WithdrawBalanceReturn) UnmarshalCBOR(rd io.Reader) error {
	return r.AmountWithdrawn.UnmarshalCBOR(rd)
}

// PublishStorageDealsParams carries the batch of client-signed proposals a
// provider's worker is publishing.
type PublishStorageDealsParams struct {
	Deals []ClientDealProposal
}

func (p *PublishStorageDealsParams) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, uint64(len(p.Deals))); err != nil {
		return err
	}
	for i := range p.Deals {
		if err := p.Deals[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (p *PublishStorageDealsParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	p.Deals = make([]ClientDealProposal, n)
	for i := uint64(0); i < n; i++ {
		if err := p.Deals[i].UnmarshalCBOR(r); err != nil {
			return err
		}
	}
	return nil
}

// PublishStorageDealsReturn lists the deal ids allocated, in request order.
type PublishStorageDealsReturn struct {
	IDs []abi.DealID
}

func (r *PublishStorageDealsReturn) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, uint64(len(r.IDs))); err != nil {
		return err
	}
	for _, id := range r.IDs {
		if err := cbor.WriteUInt(w, uint64(id)); err != nil {
			return err
		}
	}
	return nil
}

func (r *PublishStorageDealsReturn) UnmarshalCBOR(rd io.Reader) error {
	cr := cbor.NewReader(rd)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	r.IDs = make([]abi.DealID, n)
	for i := uint64(0); i < n; i++ {
		v, err := cr.ReadUInt()
		if err != nil {
			return err
		}
		r.IDs[i] = abi.DealID(v)
	}
	return nil
}

func marshalDealIDs(w io.Writer, ids []abi.DealID) error {
	if err := cbor.WriteArrayHeader(w, uint64(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if err := cbor.WriteUInt(w, uint64(id)); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalDealIDs(r io.Reader) ([]abi.DealID, error) {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	ids := make([]abi.DealID, n)
	for i := uint64(0); i < n; i++ {
		v, err := cr.ReadUInt()
		if err != nil {
			return nil, err
		}
		ids[i] = abi.DealID(v)
	}
	return ids, nil
}

// VerifyDealsForActivationParams names the deals a miner is about to
// pre-commit, and the sector expiry they must fit inside.
type VerifyDealsForActivationParams struct {
	DealIDs      []abi.DealID
	SectorExpiry abi.ChainEpoch
}

func (p *VerifyDealsForActivationParams) MarshalCBOR(w io.Writer) error {
	if err := marshalDealIDs(w, p.DealIDs); err != nil {
		return err
	}
	return cbor.WriteInt(w, int64(p.SectorExpiry))
}

func (p *VerifyDealsForActivationParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	ids, err := unmarshalDealIDsFromReader(cr)
	if err != nil {
		return err
	}
	p.DealIDs = ids
	v, err := cr.ReadInt()
	if err != nil {
		return err
	}
	p.SectorExpiry = abi.ChainEpoch(v)
	return nil
}

func unmarshalDealIDsFromReader(cr *cbor.Reader) ([]abi.DealID, error) {
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	ids := make([]abi.DealID, n)
	for i := uint64(0); i < n; i++ {
		v, err := cr.ReadUInt()
		if err != nil {
			return nil, err
		}
		ids[i] = abi.DealID(v)
	}
	return ids, nil
}

// VerifyDealsForActivationReturn splits the summed duration*size weight of
// the named deals into regular and verified-deal components.
type VerifyDealsForActivationReturn struct {
	DealWeight         abi.TokenAmount
	VerifiedDealWeight abi.TokenAmount
}

func (r *VerifyDealsForActivationReturn) MarshalCBOR(w io.Writer) error {
	if err := r.DealWeight.MarshalCBOR(w); err != nil {
		return err
	}
	return r.VerifiedDealWeight.MarshalCBOR(w)
}

func (r *VerifyDealsForActivationReturn) UnmarshalCBOR(rd io.Reader) error {
	if err := r.DealWeight.UnmarshalCBOR(rd); err != nil {
		return err
	}
	return r.VerifiedDealWeight.UnmarshalCBOR(rd)
}

// ActivateDealsParams names the deals a miner is moving from pending to
// active, now that its sector has been proven.
type ActivateDealsParams struct {
	DealIDs      []abi.DealID
	SectorExpiry abi.ChainEpoch
}

func (p *ActivateDealsParams) MarshalCBOR(w io.Writer) error {
	if err := marshalDealIDs(w, p.DealIDs); err != nil {
		return err
	}
	return cbor.WriteInt(w, int64(p.SectorExpiry))
}

func (p *ActivateDealsParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	ids, err := unmarshalDealIDsFromReader(cr)
	if err != nil {
		return err
	}
	p.DealIDs = ids
	v, err := cr.ReadInt()
	if err != nil {
		return err
	}
	p.SectorExpiry = abi.ChainEpoch(v)
	return nil
}

// OnMinersSectorTerminateParams names the deals whose sector has terminated
// at Epoch.
type OnMinersSectorTerminateParams struct {
	Epoch   abi.ChainEpoch
	DealIDs []abi.DealID
}

func (p *OnMinersSectorTerminateParams) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteInt(w, int64(p.Epoch)); err != nil {
		return err
	}
	return marshalDealIDs(w, p.DealIDs)
}

func (p *OnMinersSectorTerminateParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	v, err := cr.ReadInt()
	if err != nil {
		return err
	}
	p.Epoch = abi.ChainEpoch(v)
	p.DealIDs, err = unmarshalDealIDsFromReader(cr)
	return err
}

// ComputeDataCommitmentParams names the deals whose piece data makes up one
// sector, in order.
type ComputeDataCommitmentParams struct {
	DealIDs []abi.DealID
}

func (p *ComputeDataCommitmentParams) MarshalCBOR(w io.Writer) error {
	return marshalDealIDs(w, p.DealIDs)
}

func (p *ComputeDataCommitmentParams) UnmarshalCBOR(r io.Reader) error {
	ids, err := unmarshalDealIDs(r)
	p.DealIDs = ids
	return err
}

// ComputeDataCommitmentReturn is the sector's unsealed-data CID.
type ComputeDataCommitmentReturn struct {
	CommD cid.Cid
}

func (r *ComputeDataCommitmentReturn) MarshalCBOR(w io.Writer) error { return cbor.WriteCid(w, r.CommD) }
func (r *ComputeDataCommitmentReturn) UnmarshalCBOR(rd io.Reader) error {
	c, err := cbor.NewReader(rd).ReadCid()
	r.CommD = c
	return err
}
