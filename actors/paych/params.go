package paych

import (
	"bytes"
	"fmt"
	"io"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/cbor"
)

// ConstructorParams names the channel's two account-actor parties.
type ConstructorParams struct {
	From address.Address
	To   address.Address
}

func (p *ConstructorParams) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, p.From.ToBytes()); err != nil {
		return err
	}
	return cbor.WriteBytes(w, p.To.ToBytes())
}

func (p *ConstructorParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("paych: expected 2-tuple constructor params, got %d", n)
	}
	fromBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if p.From, err = address.FromBytes(fromBytes); err != nil {
		return err
	}
	toBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	p.To, err = address.FromBytes(toBytes)
	return err
}

// Merge folds an older lane's redeemed amount into the lane a voucher is
// updating, advancing the merged lane's nonce so it cannot be redeemed
// again on its own.
type Merge struct {
	Lane  uint64
	Nonce uint64
}

func (m *Merge) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteUInt(w, m.Lane); err != nil {
		return err
	}
	return cbor.WriteUInt(w, m.Nonce)
}

func (m *Merge) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("paych: expected 2-tuple merge, got %d", n)
	}
	if m.Lane, err = cr.ReadUInt(); err != nil {
		return err
	}
	m.Nonce, err = cr.ReadUInt()
	return err
}

// ModVerifyParams names an arbitrary actor/method a voucher's "extra" clause
// calls out to, carrying its own opaque Data the callee interprets.
type ModVerifyParams struct {
	Actor  address.Address
	Method uint64
	Data   []byte
}

func (m *ModVerifyParams) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 3); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, m.Actor.ToBytes()); err != nil {
		return err
	}
	if err := cbor.WriteUInt(w, m.Method); err != nil {
		return err
	}
	return cbor.WriteBytes(w, m.Data)
}

func (m *ModVerifyParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 3 {
		return fmt.Errorf("paych: expected 3-tuple mod-verify params, got %d", n)
	}
	actorBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if m.Actor, err = address.FromBytes(actorBytes); err != nil {
		return err
	}
	if m.Method, err = cr.ReadUInt(); err != nil {
		return err
	}
	m.Data, err = cr.ReadBytes()
	return err
}

// PaymentVerifyParams is what an "extra" clause's callee receives: the
// voucher's opaque Data alongside the caller-supplied Proof.
type PaymentVerifyParams struct {
	Data  []byte
	Proof []byte
}

func (p *PaymentVerifyParams) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, p.Data); err != nil {
		return err
	}
	return cbor.WriteBytes(w, p.Proof)
}

func (p *PaymentVerifyParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("paych: expected 2-tuple payment-verify params, got %d", n)
	}
	if p.Data, err = cr.ReadBytes(); err != nil {
		return err
	}
	p.Proof, err = cr.ReadBytes()
	return err
}

// SignedVoucher is the off-chain payment authorization a UpdateChannelState
// call redeems: a lane id, nonce, and amount, signed by the channel party
// that is not the caller, plus optional timelocks, a hashlock secret, an
// "extra" verification call-out, and lanes it merges into the one it
// updates.
type SignedVoucher struct {
	ChannelAddr     address.Address
	TimeLockMin     abi.ChainEpoch
	TimeLockMax     abi.ChainEpoch
	SecretPreimage  []byte
	Extra           *ModVerifyParams
	Lane            uint64
	Nonce           uint64
	Amount          abi.TokenAmount
	MinSettleHeight abi.ChainEpoch
	Merges          []Merge
	Signature       []byte
}

// marshalUnsigned writes every field except Signature: the canonical byte
// string both the signer and the verifying actor hash, per spec's
// voucher-signature encoding rule.
func (sv *SignedVoucher) marshalUnsigned(w io.Writer) error {
	if err := cbor.WriteBytes(w, sv.ChannelAddr.ToBytes()); err != nil {
		return err
	}
	if err := cbor.WriteInt(w, int64(sv.TimeLockMin)); err != nil {
		return err
	}
	if err := cbor.WriteInt(w, int64(sv.TimeLockMax)); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, sv.SecretPreimage); err != nil {
		return err
	}
	if sv.Extra == nil {
		if err := cbor.WriteBool(w, false); err != nil {
			return err
		}
	} else {
		if err := cbor.WriteBool(w, true); err != nil {
			return err
		}
		if err := sv.Extra.MarshalCBOR(w); err != nil {
			return err
		}
	}
	if err := cbor.WriteUInt(w, sv.Lane); err != nil {
		return err
	}
	if err := cbor.WriteUInt(w, sv.Nonce); err != nil {
		return err
	}
	if err := sv.Amount.MarshalCBOR(w); err != nil {
		return err
	}
	if err := cbor.WriteInt(w, int64(sv.MinSettleHeight)); err != nil {
		return err
	}
	if err := cbor.WriteArrayHeader(w, uint64(len(sv.Merges))); err != nil {
		return err
	}
	for i := range sv.Merges {
		if err := sv.Merges[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (sv *SignedVoucher) unmarshalUnsigned(r io.Reader) error {
	cr := cbor.NewReader(r)
	channelBytes, err := cr.ReadBytes()
	if err != nil {
		return err
	}
	if sv.ChannelAddr, err = address.FromBytes(channelBytes); err != nil {
		return err
	}
	v, err := cr.ReadInt()
	if err != nil {
		return err
	}
	sv.TimeLockMin = abi.ChainEpoch(v)
	if v, err = cr.ReadInt(); err != nil {
		return err
	}
	sv.TimeLockMax = abi.ChainEpoch(v)
	if sv.SecretPreimage, err = cr.ReadBytes(); err != nil {
		return err
	}
	hasExtra, err := cr.ReadBool()
	if err != nil {
		return err
	}
	if hasExtra {
		sv.Extra = &ModVerifyParams{}
		if err := sv.Extra.UnmarshalCBOR(r); err != nil {
			return err
		}
	} else {
		sv.Extra = nil
	}
	if sv.Lane, err = cr.ReadUInt(); err != nil {
		return err
	}
	if sv.Nonce, err = cr.ReadUInt(); err != nil {
		return err
	}
	if err := sv.Amount.UnmarshalCBOR(r); err != nil {
		return err
	}
	if v, err = cr.ReadInt(); err != nil {
		return err
	}
	sv.MinSettleHeight = abi.ChainEpoch(v)
	count, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	sv.Merges = make([]Merge, count)
	for i := uint64(0); i < count; i++ {
		if err := sv.Merges[i].UnmarshalCBOR(r); err != nil {
			return err
		}
	}
	return nil
}

// SigningBytes is the canonical encoding a voucher's signature covers:
// every field except Signature itself.
func (sv *SignedVoucher) SigningBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := sv.marshalUnsigned(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (sv *SignedVoucher) MarshalCBOR(w io.Writer) error {
	if err := sv.marshalUnsigned(w); err != nil {
		return err
	}
	return cbor.WriteBytes(w, sv.Signature)
}

func (sv *SignedVoucher) UnmarshalCBOR(r io.Reader) error {
	if err := sv.unmarshalUnsigned(r); err != nil {
		return err
	}
	sig, err := cbor.NewReader(r).ReadBytes()
	if err != nil {
		return err
	}
	sv.Signature = sig
	return nil
}

// UpdateChannelStateParams carries the voucher method 2 redeems, plus the
// hashlock secret and any extra-verification proof it requires.
type UpdateChannelStateParams struct {
	Sv     SignedVoucher
	Secret []byte
	Proof  []byte
}

func (p *UpdateChannelStateParams) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 3); err != nil {
		return err
	}
	if err := p.Sv.MarshalCBOR(w); err != nil {
		return err
	}
	if err := cbor.WriteBytes(w, p.Secret); err != nil {
		return err
	}
	return cbor.WriteBytes(w, p.Proof)
}

func (p *UpdateChannelStateParams) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 3 {
		return fmt.Errorf("paych: expected 3-tuple update params, got %d", n)
	}
	if err := p.Sv.UnmarshalCBOR(r); err != nil {
		return err
	}
	if p.Secret, err = cr.ReadBytes(); err != nil {
		return err
	}
	p.Proof, err = cr.ReadBytes()
	return err
}
