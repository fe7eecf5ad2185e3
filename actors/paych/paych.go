package paych

import (
	"bytes"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/dispatch"
	"github.com/synnergy-chain/actorcore/runtime"
)

func init() {
	dispatch.Register(builtin.PaymentChannelActorCodeID, dispatch.Exports{
		builtin.MethodConstructor: Constructor,
		2:                         UpdateChannelState,
		3:                         Settle,
		4:                         Collect,
	})
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

// Constructor records the channel's two parties, each of which must already
// resolve to an account actor; only the init actor may create a channel.
func Constructor(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	if err := rt.ValidateImmediateCallerType(builtin.InitActorCodeID); err != nil {
		return nil, asActorError(err)
	}
	cp := &ConstructorParams{}
	if err := cp.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal constructor params: %s", err)
	}
	from, aerr := resolveAccount(rt, cp.From)
	if aerr != nil {
		return nil, aerr
	}
	to, aerr := resolveAccount(rt, cp.To)
	if aerr != nil {
		return nil, aerr
	}

	st := &State{From: from, To: to, ToSend: abi.Zero()}
	if err := runtime.CreateState(rt, st); err != nil {
		return nil, asActorError(err)
	}
	return nil, nil
}

func resolveAccount(rt *runtime.Context, addr address.Address) (address.Address, *runtime.ActorError) {
	resolved, ok := rt.ResolveAddress(addr)
	if !ok {
		return address.Undef, runtime.Abortf(runtime.ErrIllegalArgument, "failed to resolve address %s", addr)
	}
	code, found := rt.GetActorCodeCID(resolved)
	if !found || !code.Equals(builtin.AccountActorCodeID) {
		return address.Undef, runtime.Abortf(runtime.ErrIllegalArgument, "%s is not an account actor", addr)
	}
	return resolved, nil
}

// UpdateChannelState redeems a signed voucher: the caller must be one of the
// channel's two parties, and the voucher must be signed by the other one.
// Successful redemption advances the named lane's redeemed amount and nonce
// (merging any listed older lanes into it) and raises to_send by the net
// new amount owed.
func UpdateChannelState(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	up := &UpdateChannelStateParams{}
	if err := up.UnmarshalCBOR(bytes.NewReader(params)); err != nil {
		return nil, runtime.Abortf(runtime.ErrSerialization, "unmarshal params: %s", err)
	}
	sv := &up.Sv

	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		caller := c.Message().Caller
		if err := c.ValidateImmediateCallerIs(s.From, s.To); err != nil {
			return asActorError(err)
		}
		var signer address.Address
		if caller.Equal(s.From) {
			signer = s.To
		} else {
			signer = s.From
		}

		currEpoch := c.CurrEpoch()
		if currEpoch < sv.TimeLockMin {
			return runtime.Abortf(runtime.ErrIllegalArgument, "voucher not yet valid: epoch %d < time_lock_min %d", currEpoch, sv.TimeLockMin)
		}
		if sv.TimeLockMax != 0 && currEpoch > sv.TimeLockMax {
			return runtime.Abortf(runtime.ErrIllegalArgument, "voucher expired: epoch %d > time_lock_max %d", currEpoch, sv.TimeLockMax)
		}

		if len(sv.SecretPreimage) > 0 {
			h, err := c.Syscalls().HashBlake2b(up.Secret)
			if err != nil {
				return runtime.Abortf(runtime.ErrIllegalArgument, "hash secret: %s", err)
			}
			if !bytes.Equal(h[:], sv.SecretPreimage) {
				return runtime.Abortf(runtime.ErrIllegalArgument, "secret does not hash to voucher's secret_pre_image")
			}
		}

		if sv.Extra != nil {
			verifyParams := &PaymentVerifyParams{Data: sv.Extra.Data, Proof: up.Proof}
			var vbuf bytes.Buffer
			if err := verifyParams.MarshalCBOR(&vbuf); err != nil {
				return runtime.Abortf(runtime.ErrSerialization, "marshal payment-verify params: %s", err)
			}
			if _, sendErr := c.Send(sv.Extra.Actor, sv.Extra.Method, vbuf.Bytes(), abi.Zero()); sendErr != nil {
				return sendErr
			}
		}

		signingBytes, err := sv.SigningBytes()
		if err != nil {
			return runtime.Abortf(runtime.ErrSerialization, "marshal voucher for signing: %s", err)
		}
		sigOK, sigErr := c.Syscalls().VerifySignature(sv.Signature, signer, signingBytes)
		if sigErr != nil || !sigOK {
			return runtime.Abortf(runtime.ErrIllegalArgument, "invalid voucher signature")
		}

		idx, err := insertLane(s, sv.Lane)
		if err != nil {
			return runtime.Abortf(runtime.ErrIllegalArgument, "%s", err)
		}
		lane := &s.LaneStates[idx]
		if sv.Nonce < lane.Nonce {
			return runtime.Abortf(runtime.ErrIllegalArgument, "voucher nonce %d is stale for lane %d (have %d)", sv.Nonce, sv.Lane, lane.Nonce)
		}

		mergeSum := abi.Zero()
		for i := range sv.Merges {
			merge := &sv.Merges[i]
			if merge.Lane == sv.Lane {
				return runtime.Abortf(runtime.ErrIllegalArgument, "voucher cannot merge its own lane %d into itself", sv.Lane)
			}
			midx, found := findLane(s.LaneStates, merge.Lane)
			if !found {
				return runtime.Abortf(runtime.ErrIllegalArgument, "merge target lane %d does not exist", merge.Lane)
			}
			mlane := &s.LaneStates[midx]
			if merge.Nonce <= mlane.Nonce {
				return runtime.Abortf(runtime.ErrIllegalArgument, "merge nonce %d too low for lane %d (have %d)", merge.Nonce, merge.Lane, mlane.Nonce)
			}
			mergeSum = mergeSum.Add(mlane.Redeemed)
			mlane.Nonce = merge.Nonce
		}

		delta := sv.Amount.Sub(mergeSum.Add(lane.Redeemed))
		if delta.IsNegative() {
			return runtime.Abortf(runtime.ErrIllegalArgument, "voucher amount %s would decrease net redeemed total", sv.Amount)
		}
		newToSend := s.ToSend.Add(delta)
		if newToSend.Cmp(c.CurrentBalance()) > 0 {
			return runtime.Abortf(runtime.ErrIllegalArgument, "voucher would raise to_send to %s, exceeding channel balance %s", newToSend, c.CurrentBalance())
		}

		lane.Redeemed = sv.Amount
		lane.Nonce = sv.Nonce
		s.ToSend = newToSend

		if sv.MinSettleHeight != 0 {
			if s.SettlingAt != 0 && s.SettlingAt < sv.MinSettleHeight {
				s.SettlingAt = sv.MinSettleHeight
			}
			if sv.MinSettleHeight > s.MinSettleHeight {
				s.MinSettleHeight = sv.MinSettleHeight
			}
		}
		return nil
	}); err != nil {
		return nil, asActorError(err)
	}
	return nil, nil
}

// Settle starts the challenge period: either party may call it once, after
// which Collect becomes callable once SettlingAt has elapsed.
func Settle(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		if err := c.ValidateImmediateCallerIs(s.From, s.To); err != nil {
			return asActorError(err)
		}
		if s.SettlingAt != 0 {
			return runtime.Abortf(runtime.ErrIllegalState, "channel is already settling")
		}
		settlingAt := c.CurrEpoch() + SettleDelay
		if s.MinSettleHeight > settlingAt {
			settlingAt = s.MinSettleHeight
		}
		s.SettlingAt = settlingAt
		return nil
	}); err != nil {
		return nil, asActorError(err)
	}
	return nil, nil
}

// Collect pays out the channel's current balance once the settle period has
// elapsed: to_send to the "to" party, the remainder back to "from".
func Collect(rt *runtime.Context, params []byte) ([]byte, *runtime.ActorError) {
	var from, to address.Address
	var toSend, remainder abi.TokenAmount

	st := &State{}
	if err := runtime.Transaction(rt, st, func(s *State, c *runtime.Context) error {
		if err := c.ValidateImmediateCallerIs(s.From, s.To); err != nil {
			return asActorError(err)
		}
		if s.SettlingAt == 0 {
			return runtime.Abortf(runtime.ErrForbidden, "channel is not settling")
		}
		if c.CurrEpoch() < s.SettlingAt {
			return runtime.Abortf(runtime.ErrForbidden, "settle period has not elapsed: epoch %d < settling_at %d", c.CurrEpoch(), s.SettlingAt)
		}
		from, to = s.From, s.To
		toSend = s.ToSend
		remainder = c.CurrentBalance().Sub(s.ToSend)
		s.ToSend = abi.Zero()
		return nil
	}); err != nil {
		return nil, asActorError(err)
	}

	if remainder.IsPositive() {
		if _, sendErr := rt.Send(from, builtin.MethodSend, nil, remainder); sendErr != nil {
			return nil, sendErr
		}
	}
	if toSend.IsPositive() {
		if _, sendErr := rt.Send(to, builtin.MethodSend, nil, toSend); sendErr != nil {
			return nil, sendErr
		}
	}
	return nil, nil
}
