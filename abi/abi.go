// Package abi holds the small value types shared across every actor: an
// arbitrary-precision token amount, the chain epoch clock unit, and the
// numeric IDs actors use for deals and pieces. Grounded on the teacher's use
// of math/big for exact-precision arithmetic in core/state_channel.go, since
// token amounts here (unlike the teacher's uint64 coin balances) must carry
// Filecoin-scale attoFIL precision without silent overflow.
package abi

import (
	"fmt"
	"io"
	"math/big"

	"github.com/synnergy-chain/actorcore/cbor"
)

// ChainEpoch is a discrete point on the chain's logical clock.
type ChainEpoch int64

// DealID numbers a storage deal within the market actor's state.
type DealID uint64

// TokenAmount is an arbitrary-precision amount of the chain's native token.
// Arithmetic does not clamp, so a result may be negative; MarshalCBOR writes
// only the magnitude, so the sign of a negative amount is not encoded.
type TokenAmount struct {
	Int *big.Int
}

// NewTokenAmount wraps an int64 value.
func NewTokenAmount(v int64) TokenAmount {
	return TokenAmount{Int: big.NewInt(v)}
}

// Zero returns the zero TokenAmount.
func Zero() TokenAmount { return NewTokenAmount(0) }

func (t TokenAmount) val() *big.Int {
	if t.Int == nil {
		return big.NewInt(0)
	}
	return t.Int
}

func (t TokenAmount) Add(o TokenAmount) TokenAmount {
	return TokenAmount{Int: new(big.Int).Add(t.val(), o.val())}
}

func (t TokenAmount) Sub(o TokenAmount) TokenAmount {
	return TokenAmount{Int: new(big.Int).Sub(t.val(), o.val())}
}

func (t TokenAmount) Mul(o TokenAmount) TokenAmount {
	return TokenAmount{Int: new(big.Int).Mul(t.val(), o.val())}
}

// Div performs integer (floor) division.
func (t TokenAmount) Div(o TokenAmount) TokenAmount {
	return TokenAmount{Int: new(big.Int).Div(t.val(), o.val())}
}

func (t TokenAmount) Cmp(o TokenAmount) int { return t.val().Cmp(o.val()) }

func (t TokenAmount) IsZero() bool     { return t.val().Sign() == 0 }
func (t TokenAmount) IsNegative() bool { return t.val().Sign() < 0 }
func (t TokenAmount) IsPositive() bool { return t.val().Sign() > 0 }

func (t TokenAmount) String() string { return t.val().String() }

func (t TokenAmount) Bytes() []byte { return t.val().Bytes() }

func TokenAmountFromBytes(b []byte) TokenAmount {
	return TokenAmount{Int: new(big.Int).SetBytes(b)}
}

// MarshalCBOR encodes the amount as a byte string of its big-endian
// magnitude, matching the "TokenAmount as bigint byte string" convention
// used throughout the on-chain record set.
func (t TokenAmount) MarshalCBOR(w io.Writer) error {
	return cbor.WriteBytes(w, t.val().Bytes())
}

// UnmarshalCBOR decodes a previously marshaled amount.
func (t *TokenAmount) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	b, err := cr.ReadBytes()
	if err != nil {
		return fmt.Errorf("abi: unmarshal token amount: %w", err)
	}
	t.Int = new(big.Int).SetBytes(b)
	return nil
}
