// Package paych implements the payment-channel built-in actor: a single
// escrowed balance between two account actors, redeemed against off-chain
// signed vouchers with lane-merge semantics, settled and collected after a
// challenge delay. Grounded on specs-actors/actors/builtin/paych's voucher
// lifecycle, with its signature check replaced by a call through
// runtime.Syscalls().VerifySignature rather than inlined crypto (per this
// module's runtime contract), and its escrow/challenge-period shape adapted
// from the teacher's core/state_channel.go ChannelEngine.
package paych

import (
	"fmt"
	"io"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/cbor"
)

// LaneLimit bounds how many distinct lanes a channel may track at once.
const LaneLimit = 256

// SettleDelay is the number of epochs Settle pushes SettlingAt out by,
// Filecoin's historical default for this actor.
const SettleDelay = abi.ChainEpoch(2880)

// LaneState tracks one lane's highest-redeemed amount and nonce.
type LaneState struct {
	ID       uint64
	Redeemed abi.TokenAmount
	Nonce    uint64
}

func (l *LaneState) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 3); err != nil {
		return err
	}
	if err := cbor.WriteUInt(w, l.ID); err != nil {
		return err
	}
	if err := l.Redeemed.MarshalCBOR(w); err != nil {
		return err
	}
	return cbor.WriteUInt(w, l.Nonce)
}

func (l *LaneState) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 3 {
		return fmt.Errorf("paych: expected 3-tuple lane state, got %d", n)
	}
	if l.ID, err = cr.ReadUInt(); err != nil {
		return err
	}
	if err := l.Redeemed.UnmarshalCBOR(r); err != nil {
		return err
	}
	l.Nonce, err = cr.ReadUInt()
	return err
}

// State is the channel actor's top-level state: a flat record, with no
// sub-collections to flush separately, since LaneStates is bounded by
// LaneLimit and stored inline.
type State struct {
	From            address.Address
	To              address.Address
	ToSend          abi.TokenAmount
	SettlingAt      abi.ChainEpoch
	MinSettleHeight abi.ChainEpoch
	LaneStates      []LaneState // sorted by ID
}

func (s *State) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 5); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, s.From.ToBytes()); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, s.To.ToBytes()); err != nil {
		return err
	}
	if err := s.ToSend.MarshalCBOR(w); err != nil {
		return err
	}
	if err := cbor.WriteInt(w, int64(s.SettlingAt)); err != nil {
		return err
	}
	if err := cbor.WriteInt(w, int64(s.MinSettleHeight)); err != nil {
		return err
	}
	if err := cbor.WriteArrayHeader(w, uint64(len(s.LaneStates))); err != nil {
		return err
	}
	for i := range s.LaneStates {
		if err := s.LaneStates[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 5 {
		return fmt.Errorf("paych: expected 5-tuple state, got %d", n)
	}
	fromBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if s.From, err = address.FromBytes(fromBytes); err != nil {
		return err
	}
	toBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if s.To, err = address.FromBytes(toBytes); err != nil {
		return err
	}
	if err := s.ToSend.UnmarshalCBOR(r); err != nil {
		return err
	}
	v, err := cr.ReadInt()
	if err != nil {
		return err
	}
	s.SettlingAt = abi.ChainEpoch(v)
	if v, err = cr.ReadInt(); err != nil {
		return err
	}
	s.MinSettleHeight = abi.ChainEpoch(v)
	count, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	s.LaneStates = make([]LaneState, count)
	for i := uint64(0); i < count; i++ {
		if err := s.LaneStates[i].UnmarshalCBOR(r); err != nil {
			return err
		}
	}
	return nil
}

// findLane binary-searches lanes (sorted by ID) for id, returning its index
// and whether it was found. When not found, the returned index is where a
// new lane with this id belongs to keep the slice sorted.
func findLane(lanes []LaneState, id uint64) (int, bool) {
	lo, hi := 0, len(lanes)
	for lo < hi {
		mid := (lo + hi) / 2
		if lanes[mid].ID < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(lanes) && lanes[lo].ID == id {
		return lo, true
	}
	return lo, false
}

// insertLane inserts a fresh zero lane at id's sorted position and returns
// its index, failing once LaneLimit is reached.
func insertLane(s *State, id uint64) (int, error) {
	idx, found := findLane(s.LaneStates, id)
	if found {
		return idx, nil
	}
	if len(s.LaneStates) >= LaneLimit {
		return 0, fmt.Errorf("paych: lane limit %d reached", LaneLimit)
	}
	s.LaneStates = append(s.LaneStates, LaneState{})
	copy(s.LaneStates[idx+1:], s.LaneStates[idx:])
	s.LaneStates[idx] = LaneState{ID: id, Redeemed: abi.Zero(), Nonce: 0}
	return idx, nil
}
