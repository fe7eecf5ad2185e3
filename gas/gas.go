// Package gas implements the syscall gas-metering layer every actor
// invocation runs under: a price list keyed by syscall method with a base
// cost plus a per-byte scaling term, and a Tracker that charges against a
// per-message gas limit and returns a typed out-of-gas error once exhausted.
// Grounded on the teacher's core/gas_table.go (GasCost(op), a punitive
// DefaultGasCost fallback, lock-free map reads) generalized from a flat
// per-opcode base fee to a syscall price list with per-byte scaling, and on
// core/opcode_dispatcher.go's charge-before-dispatch ordering.
package gas

import (
	"errors"
	"fmt"
)

// ErrOutOfGas is returned once a Charge would exceed the tracker's limit.
var ErrOutOfGas = errors.New("gas: out of gas")

// SyscallMethod names a priceable syscall or VM operation.
type SyscallMethod string

const (
	OnChainMessage       SyscallMethod = "OnChainMessage"
	OnChainReturnValue   SyscallMethod = "OnChainReturnValue"
	SendBase             SyscallMethod = "Send"
	CreateActor          SyscallMethod = "CreateActor"
	VerifySignature      SyscallMethod = "VerifySignature"
	HashBlake2b          SyscallMethod = "HashBlake2b"
	ComputeUnsealedCid   SyscallMethod = "ComputeUnsealedSectorCID"
	VerifySeal           SyscallMethod = "VerifySeal"
	VerifyPost           SyscallMethod = "VerifyPost"
	VerifyConsensusFault SyscallMethod = "VerifyConsensusFault"
	BatchVerifySeals     SyscallMethod = "BatchVerifySeals"
	IpldGet              SyscallMethod = "IpldGet"
	IpldPut              SyscallMethod = "IpldPut"
)

// Cost is a priced operation: a fixed base charge plus a per-byte term
// applied to the size of whatever payload the call carries (zero for
// operations with no size-dependent cost).
type Cost struct {
	Base    uint64
	PerByte uint64
}

// DefaultCost is charged for any syscall that slipped through the price
// list uncatalogued; deliberately punitive so a missing price is never
// mistaken for a free operation.
var DefaultCost = Cost{Base: 100_000}

// priceList is the canonical syscall gas schedule.
var priceList = map[SyscallMethod]Cost{
	OnChainMessage:       {Base: 1_000, PerByte: 1},
	OnChainReturnValue:   {Base: 500, PerByte: 1},
	SendBase:             {Base: 5_000},
	CreateActor:          {Base: 20_000},
	VerifySignature:      {Base: 16_000},
	HashBlake2b:          {Base: 2_000, PerByte: 2},
	ComputeUnsealedCid:   {Base: 50_000, PerByte: 1},
	VerifySeal:           {Base: 2_000_000},
	VerifyPost:           {Base: 1_500_000},
	VerifyConsensusFault: {Base: 500_000},
	BatchVerifySeals:     {Base: 2_000_000},
	IpldGet:              {Base: 1_000, PerByte: 1},
	IpldPut:              {Base: 2_000, PerByte: 2},
}

// PriceOf returns the price list entry for method, falling back to
// DefaultCost for anything uncatalogued.
func PriceOf(method SyscallMethod) Cost {
	if c, ok := priceList[method]; ok {
		return c
	}
	return DefaultCost
}

// Charge computes the total gas owed for a call to method carrying a
// payload of size bytes.
func (c Cost) Charge(size int) uint64 {
	if size < 0 {
		size = 0
	}
	return c.Base + c.PerByte*uint64(size)
}

// Tracker meters gas consumption against a fixed per-message limit.
// Charges happen synchronously, before the priced operation executes,
// mirroring the dispatcher's charge-before-dispatch ordering.
type Tracker struct {
	limit uint64
	used  uint64
}

// NewTracker returns a Tracker with the given gas limit.
func NewTracker(limit uint64) *Tracker {
	return &Tracker{limit: limit}
}

// Charge deducts amount from the remaining budget, returning ErrOutOfGas
// (without mutating used) if that would exceed the limit.
func (t *Tracker) Charge(amount uint64) error {
	if t.used+amount > t.limit {
		return ErrOutOfGas
	}
	t.used += amount
	return nil
}

// ChargeFor is a convenience wrapper combining PriceOf and Charge.
func (t *Tracker) ChargeFor(method SyscallMethod, size int) error {
	return t.Charge(PriceOf(method).Charge(size))
}

func (t *Tracker) Used() uint64      { return t.used }
func (t *Tracker) Limit() uint64     { return t.limit }
func (t *Tracker) Remaining() uint64 { return t.limit - t.used }

// String renders a short diagnostic, used in abort messages.
func (t *Tracker) String() string {
	return fmt.Sprintf("gas: %d/%d used", t.used, t.limit)
}
