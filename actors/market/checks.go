package market

import (
	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/runtime"
)

// Deal duration and pricing bounds. The reference implementation derives
// these from the current chain's baseline and QA network power; this module
// does not model a power actor in that depth (spec's power/reward built-ins
// are explicitly scoped as stubs, §2), so the bound functions below are pure
// functions of piece size and duration alone, carrying fixed per-epoch
// minimums in place of the reference's power-weighted curve. This is a
// deliberate simplification, also recorded in SPEC_FULL.md's market-actor
// section.
const (
	dealMinDuration      = abi.ChainEpoch(180 * 2880) // 180 days
	dealMaxDuration      = abi.ChainEpoch(540 * 2880) // 540 days
	minPricePerByteEpoch = 1                          // attoFIL per byte per epoch, floor
)

// dealDurationBounds returns the inclusive [min, max] deal duration.
func dealDurationBounds(pieceSize uint64) (abi.ChainEpoch, abi.ChainEpoch) {
	return dealMinDuration, dealMaxDuration
}

// dealPricePerEpochBounds returns the inclusive [min, max] total price per
// epoch for a deal of the given piece size.
func dealPricePerEpochBounds(pieceSize uint64, duration abi.ChainEpoch) (abi.TokenAmount, abi.TokenAmount) {
	min := abi.NewTokenAmount(int64(pieceSize) * minPricePerByteEpoch)
	max := abi.NewTokenAmount(int64(pieceSize) * minPricePerByteEpoch * 1_000_000)
	return min, max
}

// dealProviderCollateralBounds returns the inclusive [min, max] provider
// collateral for a deal of the given size and duration.
func dealProviderCollateralBounds(pieceSize uint64, duration abi.ChainEpoch) (abi.TokenAmount, abi.TokenAmount) {
	floor := abi.NewTokenAmount(int64(pieceSize))
	ceil := abi.NewTokenAmount(int64(pieceSize) * int64(duration))
	return floor, ceil
}

// dealClientCollateralBounds returns the inclusive [min, max] client
// collateral for a deal of the given size and duration. The reference
// implementation's validateDeal famously checks provider collateral against
// this function by mistake (spec §9 Open Questions); this implementation
// checks each collateral field against its own matching bound function.
func dealClientCollateralBounds(pieceSize uint64, duration abi.ChainEpoch) (abi.TokenAmount, abi.TokenAmount) {
	floor := abi.Zero()
	ceil := abi.NewTokenAmount(int64(pieceSize) * int64(duration))
	return floor, ceil
}

// validateDeal checks a proposal's internal bounds: duration, price,
// provider collateral and client collateral all fall within the domain
// bounds above. Signature verification and provider/client resolution are
// the caller's responsibility (PublishStorageDeals).
func validateDeal(proposal *DealProposal, currEpoch abi.ChainEpoch) *runtime.ActorError {
	if proposal.StartEpoch <= currEpoch {
		return runtime.Abortf(runtime.ErrIllegalArgument, "deal start epoch %d has already elapsed at %d", proposal.StartEpoch, currEpoch)
	}
	if proposal.EndEpoch <= proposal.StartEpoch {
		return runtime.Abortf(runtime.ErrIllegalArgument, "deal end epoch %d not after start epoch %d", proposal.EndEpoch, proposal.StartEpoch)
	}

	duration := proposal.Duration()
	minDur, maxDur := dealDurationBounds(proposal.PieceSize)
	if duration < minDur || duration > maxDur {
		return runtime.Abortf(runtime.ErrIllegalArgument, "deal duration %d out of bounds [%d, %d]", duration, minDur, maxDur)
	}

	minPrice, maxPrice := dealPricePerEpochBounds(proposal.PieceSize, duration)
	if proposal.StoragePricePerEpoch.Cmp(minPrice) < 0 || proposal.StoragePricePerEpoch.Cmp(maxPrice) > 0 {
		return runtime.Abortf(runtime.ErrIllegalArgument, "storage price per epoch %s out of bounds [%s, %s]", proposal.StoragePricePerEpoch, minPrice, maxPrice)
	}

	minProviderCollateral, maxProviderCollateral := dealProviderCollateralBounds(proposal.PieceSize, duration)
	if proposal.ProviderCollateral.Cmp(minProviderCollateral) < 0 || proposal.ProviderCollateral.Cmp(maxProviderCollateral) > 0 {
		return runtime.Abortf(runtime.ErrIllegalArgument, "provider collateral %s out of bounds [%s, %s]", proposal.ProviderCollateral, minProviderCollateral, maxProviderCollateral)
	}

	minClientCollateral, maxClientCollateral := dealClientCollateralBounds(proposal.PieceSize, duration)
	if proposal.ClientCollateral.Cmp(minClientCollateral) < 0 || proposal.ClientCollateral.Cmp(maxClientCollateral) > 0 {
		return runtime.Abortf(runtime.ErrIllegalArgument, "client collateral %s out of bounds [%s, %s]", proposal.ClientCollateral, minClientCollateral, maxClientCollateral)
	}
	return nil
}

// validateDealCanActivate checks the conditions VerifyDealsForActivation and
// ActivateDeals both require: the caller is the named provider, the deal
// hasn't started late, and it fits before the sector's expiry.
func validateDealCanActivate(proposal *DealProposal, caller address.Address, currEpoch, sectorExpiry abi.ChainEpoch) *runtime.ActorError {
	if !proposal.Provider.Equal(caller) {
		return runtime.Abortf(runtime.ErrForbidden, "deal provider %s does not match activating caller %s", proposal.Provider, caller)
	}
	if currEpoch > proposal.StartEpoch {
		return runtime.Abortf(runtime.ErrIllegalArgument, "deal start epoch %d has already elapsed at %d", proposal.StartEpoch, currEpoch)
	}
	if proposal.EndEpoch > sectorExpiry {
		return runtime.Abortf(runtime.ErrIllegalArgument, "deal end epoch %d exceeds sector expiry %d", proposal.EndEpoch, sectorExpiry)
	}
	return nil
}
