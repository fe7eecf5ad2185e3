// Package builtin holds the well-known identities every built-in actor
// package needs but none of them own: the singleton ID addresses assigned at
// genesis, the code CIDs each actor package registers itself under, the
// shared method numbers used across actor boundaries (constructor, send),
// and the "signable" caller-type set the market and init actors validate
// against. Grounded on specs-actors/actors/builtin's well-known
// address/code-CID table, referenced from the market actor source in the
// reference pack; kept as its own package (rather than folded into dispatch/)
// so actors/market and actors/paych can both depend on it without an import
// cycle through dispatch.
package builtin

import (
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/cid"
)

// MethodSend is the universal "just transfer value" pseudo-method every
// actor accepts implicitly; no handler is registered for it.
const MethodSend uint64 = 0

// MethodConstructor is the method number every actor's constructor runs on.
const MethodConstructor uint64 = 1

// Well-known singleton actor IDs, assigned at genesis exactly once.
const (
	SystemActorID           uint64 = 0
	InitActorID             uint64 = 1
	RewardActorID           uint64 = 2
	CronActorID             uint64 = 3
	StoragePowerActorID     uint64 = 4
	StorageMarketActorID    uint64 = 5
	VerifiedRegistryActorID uint64 = 6
	BurntFundsActorID       uint64 = 99
)

var (
	SystemActorAddr           = address.NewID(SystemActorID)
	InitActorAddr             = address.NewID(InitActorID)
	RewardActorAddr           = address.NewID(RewardActorID)
	CronActorAddr             = address.NewID(CronActorID)
	StoragePowerActorAddr     = address.NewID(StoragePowerActorID)
	StorageMarketActorAddr    = address.NewID(StorageMarketActorID)
	VerifiedRegistryActorAddr = address.NewID(VerifiedRegistryActorID)
	BurntFundsActorAddr       = address.NewID(BurntFundsActorID)
)

// Code CIDs are derived deterministically from a human-readable tag, the
// same "fil/<version>/<actor>" scheme specs-actors uses, so two independent
// builds of this module always agree on an actor's code identity.
var (
	SystemActorCodeID           = mustCode("fil/1/system")
	InitActorCodeID             = mustCode("fil/1/init")
	RewardActorCodeID           = mustCode("fil/1/reward")
	CronActorCodeID             = mustCode("fil/1/cron")
	StoragePowerActorCodeID     = mustCode("fil/1/storagepower")
	StorageMarketActorCodeID    = mustCode("fil/1/storagemarket")
	StorageMinerActorCodeID     = mustCode("fil/1/storageminer")
	VerifiedRegistryActorCodeID = mustCode("fil/1/verifiedregistry")
	AccountActorCodeID          = mustCode("fil/1/account")
	PaymentChannelActorCodeID   = mustCode("fil/1/paymentchannel")
	MultisigActorCodeID         = mustCode("fil/1/multisig")
)

func mustCode(tag string) cid.Cid {
	c, err := cid.NewFromBytes([]byte(tag))
	if err != nil {
		panic(err)
	}
	return c
}

// CallerTypesSignable lists the code CIDs a "signable account" caller check
// accepts: plain accounts and multisig wallets, per specs-actors' shared
// CallerTypesSignable table.
var CallerTypesSignable = []cid.Cid{AccountActorCodeID, MultisigActorCodeID}

// IsSignableActor reports whether code belongs to an actor kind that can act
// as a message's immediate signer (directly or via a multisig wallet).
func IsSignableActor(code cid.Cid) bool {
	for _, c := range CallerTypesSignable {
		if c.Equals(code) {
			return true
		}
	}
	return false
}

// Verified-registry method numbers, used by the market actor's Send call
// sites; the verifreg package itself registers these against its code CID.
const (
	MethodVerifiedRegistryUseBytes     uint64 = 2
	MethodVerifiedRegistryRestoreBytes uint64 = 3
)

// MethodMinerControlAddresses is the miner stub's accessor for its
// (owner, worker) pair, the market actor's escrowAddress resolution calls
// into rather than assuming direct access to another actor's state.
const MethodMinerControlAddresses uint64 = 2

// MethodCronEpochTick is the cron built-in's method, invoked once per epoch
// by the driver loop; its handler fans out to every registered cron entry,
// including the market actor's CronTick.
const MethodCronEpochTick uint64 = 2
