package market

import (
	"bytes"
	"testing"

	"github.com/synnergy-chain/actorcore/abi"
	minerpkg "github.com/synnergy-chain/actorcore/actors/miner"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/adt"
	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/builtin"
	"github.com/synnergy-chain/actorcore/cid"
	"github.com/synnergy-chain/actorcore/gas"
	"github.com/synnergy-chain/actorcore/runtime"
	"github.com/synnergy-chain/actorcore/syscall"
)

// marshalControlAddresses encodes a miner ControlAddressesReturn, the shape
// escrowAddress expects back from a nested Send to a miner-coded provider.
func marshalControlAddresses(t *testing.T, owner, worker address.Address) []byte {
	t.Helper()
	ret := &minerpkg.ControlAddressesReturn{Owner: owner, Worker: worker}
	var buf bytes.Buffer
	if err := ret.MarshalCBOR(&buf); err != nil {
		t.Fatalf("marshal ControlAddressesReturn: %v", err)
	}
	return buf.Bytes()
}

// fakeActor mirrors the bookkeeping a dispatcher keeps per actor, following
// runtime's own test double.
type fakeActor struct {
	code    cid.Cid
	balance abi.TokenAmount
	head    cid.Cid
}

// fakeHost is a minimal in-memory runtime.Host, enough to exercise the
// market actor's methods without any dispatch package wiring.
type fakeHost struct {
	store  blockstore.Blockstore
	epoch  abi.ChainEpoch
	sys    syscall.Backend
	gas    *gas.Tracker
	actors map[string]*fakeActor
	sendFn func(from, to address.Address, method uint64, params []byte, value abi.TokenAmount, depth int) ([]byte, *runtime.ActorError)
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		store:  blockstore.NewMemory(),
		sys:    syscall.NewTest(),
		gas:    gas.NewTracker(1_000_000_000),
		actors: map[string]*fakeActor{},
	}
}

func (h *fakeHost) Store() blockstore.Blockstore { return h.store }
func (h *fakeHost) Epoch() abi.ChainEpoch        { return h.epoch }
func (h *fakeHost) Syscalls() syscall.Backend    { return h.sys }
func (h *fakeHost) GasTracker() *gas.Tracker     { return h.gas }

func (h *fakeHost) GetActor(addr address.Address) (cid.Cid, abi.TokenAmount, cid.Cid, bool) {
	a, found := h.actors[addr.String()]
	if !found {
		return cid.Undef, abi.Zero(), cid.Undef, false
	}
	return a.code, a.balance, a.head, true
}

func (h *fakeHost) SetActorHead(addr address.Address, head cid.Cid) error {
	a, found := h.actors[addr.String()]
	if !found {
		return &runtime.ActorError{Code: runtime.ErrNotFound, Msg: "no such actor"}
	}
	a.head = head
	return nil
}

func (h *fakeHost) ResolveAddress(addr address.Address) (address.Address, bool) {
	_, found := h.actors[addr.String()]
	if !found {
		return address.Undef, false
	}
	return addr, true
}

func (h *fakeHost) Send(from, to address.Address, method uint64, params []byte, value abi.TokenAmount, depth int) ([]byte, *runtime.ActorError) {
	if h.sendFn != nil {
		return h.sendFn(from, to, method, params, value, depth)
	}
	return nil, nil
}

func (h *fakeHost) addActor(addr address.Address, code cid.Cid, balance abi.TokenAmount) {
	h.actors[addr.String()] = &fakeActor{code: code, balance: balance, head: cid.Undef}
}

// setBalance adjusts an already-registered actor's balance in place,
// preserving its head: addActor would otherwise reset an actor's state root
// to undefined, which is fatal for the market actor once its Constructor has
// already run.
func (h *fakeHost) setBalance(addr address.Address, balance abi.TokenAmount) {
	a, found := h.actors[addr.String()]
	if !found {
		panic("setBalance: no such actor " + addr.String())
	}
	a.balance = balance
}

func sampleAddr(n byte) address.Address {
	a, err := address.NewSecp256k1(bytes.Repeat([]byte{n}, 20))
	if err != nil {
		panic(err)
	}
	return a
}

// constructMarket runs the market actor's own Constructor through a fresh
// context so every test starts from a real, empty market state rather than
// a hand-built one.
func constructMarket(t *testing.T, host *fakeHost, marketAddr address.Address) {
	t.Helper()
	host.addActor(marketAddr, builtin.StorageMarketActorCodeID, abi.Zero())
	ctx := runtime.NewContext(host, runtime.Message{
		Caller: builtin.SystemActorAddr, Receiver: marketAddr,
	}, 0)
	host.addActor(builtin.SystemActorAddr, builtin.SystemActorCodeID, abi.Zero())
	if _, err := Constructor(ctx, nil); err != nil {
		t.Fatalf("Constructor: %v", err)
	}
}

func loadMarketState(t *testing.T, host *fakeHost, marketAddr address.Address) *State {
	t.Helper()
	a, found := host.actors[marketAddr.String()]
	if !found {
		t.Fatalf("no market actor registered")
	}
	ctx := runtime.NewContext(host, runtime.Message{Receiver: marketAddr}, 0)
	st := &State{}
	if err := runtime.LoadState(ctx, st); err != nil {
		t.Fatalf("LoadState: %v (head=%s)", err, a.head)
	}
	return st
}

func escrowBalance(t *testing.T, host *fakeHost, st *State, addr address.Address) abi.TokenAmount {
	t.Helper()
	bt, err := adt.LoadBalanceTable(host.store, st.EscrowTable)
	if err != nil {
		t.Fatalf("LoadBalanceTable: %v", err)
	}
	bal, err := bt.Get(addr)
	if err != nil {
		t.Fatalf("escrow Get: %v", err)
	}
	return bal
}

func lockedBalance(t *testing.T, host *fakeHost, st *State, addr address.Address) abi.TokenAmount {
	t.Helper()
	bt, err := adt.LoadBalanceTable(host.store, st.LockedTable)
	if err != nil {
		t.Fatalf("LoadBalanceTable: %v", err)
	}
	bal, err := bt.Get(addr)
	if err != nil {
		t.Fatalf("locked Get: %v", err)
	}
	return bal
}

func TestConstructorInitializesEmptyState(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)

	st := loadMarketState(t, host, marketAddr)
	if st.NextID != 0 {
		t.Fatalf("NextID = %d, want 0", st.NextID)
	}
	if st.LastCron != EpochUndefined {
		t.Fatalf("LastCron = %d, want %d", st.LastCron, EpochUndefined)
	}
	for name, c := range map[string]cid.Cid{
		"Proposals": st.Proposals, "States": st.States, "PendingProposals": st.PendingProposals,
		"EscrowTable": st.EscrowTable, "LockedTable": st.LockedTable, "DealsByEpoch": st.DealsByEpoch,
	} {
		if c.Equals(cid.Undef) {
			t.Fatalf("%s root is undefined after Constructor", name)
		}
	}
}

func addBalance(t *testing.T, host *fakeHost, marketAddr, caller address.Address, target address.Address, value abi.TokenAmount) {
	t.Helper()
	host.addActor(caller, builtin.AccountActorCodeID, abi.Zero())
	ctx := runtime.NewContext(host, runtime.Message{
		Caller: caller, Receiver: marketAddr, ValueReceived: value,
	}, 0)
	params := &AddBalanceParams{Address: target}
	var buf bytes.Buffer
	if err := params.MarshalCBOR(&buf); err != nil {
		t.Fatalf("marshal AddBalanceParams: %v", err)
	}
	if _, err := AddBalance(ctx, buf.Bytes()); err != nil {
		t.Fatalf("AddBalance: %v", err)
	}
}

func TestAddBalanceCreditsEscrow(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)

	client := sampleAddr(2)
	addBalance(t, host, marketAddr, client, client, abi.NewTokenAmount(100))

	st := loadMarketState(t, host, marketAddr)
	if got := escrowBalance(t, host, st, client); got.Cmp(abi.NewTokenAmount(100)) != 0 {
		t.Fatalf("escrow balance = %s, want 100", got)
	}
}

func TestAddBalanceRejectsNonPositiveValue(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)

	client := sampleAddr(2)
	host.addActor(client, builtin.AccountActorCodeID, abi.Zero())
	ctx := runtime.NewContext(host, runtime.Message{
		Caller: client, Receiver: marketAddr, ValueReceived: abi.Zero(),
	}, 0)
	params := &AddBalanceParams{Address: client}
	var buf bytes.Buffer
	params.MarshalCBOR(&buf)

	_, err := AddBalance(ctx, buf.Bytes())
	if err == nil || err.Code != runtime.ErrIllegalArgument {
		t.Fatalf("AddBalance() = %v, want ErrIllegalArgument", err)
	}
}

func TestAddBalanceRejectsNonSignableCaller(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)

	caller := sampleAddr(2)
	host.addActor(caller, builtin.StoragePowerActorCodeID, abi.Zero())
	ctx := runtime.NewContext(host, runtime.Message{
		Caller: caller, Receiver: marketAddr, ValueReceived: abi.NewTokenAmount(5),
	}, 0)
	params := &AddBalanceParams{Address: caller}
	var buf bytes.Buffer
	params.MarshalCBOR(&buf)

	_, err := AddBalance(ctx, buf.Bytes())
	if err == nil {
		t.Fatalf("expected rejection of non-signable caller")
	}
}

func TestWithdrawBalanceReturnsUpToUnlockedAmount(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)
	host.setBalance(marketAddr, abi.NewTokenAmount(1000))

	client := sampleAddr(2)
	addBalance(t, host, marketAddr, client, client, abi.NewTokenAmount(100))

	var sent abi.TokenAmount
	host.sendFn = func(from, to address.Address, method uint64, params []byte, value abi.TokenAmount, depth int) ([]byte, *runtime.ActorError) {
		if method == builtin.MethodSend {
			sent = value
		}
		return nil, nil
	}

	ctx := runtime.NewContext(host, runtime.Message{Caller: client, Receiver: marketAddr}, 0)
	params := &WithdrawBalanceParams{Address: client, Amount: abi.NewTokenAmount(150)}
	var buf bytes.Buffer
	if err := params.MarshalCBOR(&buf); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := WithdrawBalance(ctx, buf.Bytes())
	if err != nil {
		t.Fatalf("WithdrawBalance: %v", err)
	}
	ret := &WithdrawBalanceReturn{}
	if err := ret.UnmarshalCBOR(bytes.NewReader(out)); err != nil {
		t.Fatalf("unmarshal return: %v", err)
	}
	if ret.AmountWithdrawn.Cmp(abi.NewTokenAmount(100)) != 0 {
		t.Fatalf("AmountWithdrawn = %s, want 100 (capped at available escrow)", ret.AmountWithdrawn)
	}
	if sent.Cmp(abi.NewTokenAmount(100)) != 0 {
		t.Fatalf("value sent to recipient = %s, want 100", sent)
	}

	st := loadMarketState(t, host, marketAddr)
	if got := escrowBalance(t, host, st, client); !got.IsZero() {
		t.Fatalf("escrow balance after full withdrawal = %s, want 0", got)
	}
}

func TestWithdrawBalanceRejectsUnapprovedCaller(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)
	host.setBalance(marketAddr, abi.NewTokenAmount(1000))

	client := sampleAddr(2)
	addBalance(t, host, marketAddr, client, client, abi.NewTokenAmount(100))

	stranger := sampleAddr(3)
	host.addActor(stranger, builtin.AccountActorCodeID, abi.Zero())
	ctx := runtime.NewContext(host, runtime.Message{Caller: stranger, Receiver: marketAddr}, 0)
	params := &WithdrawBalanceParams{Address: client, Amount: abi.NewTokenAmount(10)}
	var buf bytes.Buffer
	params.MarshalCBOR(&buf)

	_, err := WithdrawBalance(ctx, buf.Bytes())
	if err == nil {
		t.Fatalf("expected rejection of a caller who is not client's own control address")
	}
}

// dealFixture builds a self-consistent, signable ClientDealProposal between
// client and provider, valid at currEpoch.
func dealFixture(client, provider address.Address, currEpoch abi.ChainEpoch) ClientDealProposal {
	pieceCid, _ := cid.NewFromBytes([]byte("piece-data"))
	proposal := DealProposal{
		PieceCID:             pieceCid,
		PieceSize:            2048,
		VerifiedDeal:         false,
		Client:               client,
		Provider:             provider,
		Label:                "test-deal",
		StartEpoch:           currEpoch + 10,
		EndEpoch:             currEpoch + 10 + 180*2880,
		StoragePricePerEpoch: abi.NewTokenAmount(2048),
		ProviderCollateral:   abi.NewTokenAmount(2048),
		ClientCollateral:     abi.Zero(),
	}
	return ClientDealProposal{Proposal: proposal, ClientSignature: []byte("sig")}
}

func TestPublishStorageDealsLocksClientAndProviderFunds(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)

	client := sampleAddr(2)
	provider := sampleAddr(3)
	host.addActor(provider, builtin.AccountActorCodeID, abi.Zero())

	cdp := dealFixture(client, provider, 0)
	clientFee := cdp.Proposal.ClientBalanceRequirement()
	addBalance(t, host, marketAddr, client, client, clientFee)
	addBalance(t, host, marketAddr, provider, provider, cdp.Proposal.ProviderCollateral)

	ctx := runtime.NewContext(host, runtime.Message{Caller: provider, Receiver: marketAddr}, 0)
	params := &PublishStorageDealsParams{Deals: []ClientDealProposal{cdp}}
	var buf bytes.Buffer
	if err := params.MarshalCBOR(&buf); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := PublishStorageDeals(ctx, buf.Bytes())
	if err != nil {
		t.Fatalf("PublishStorageDeals: %v", err)
	}
	ret := &PublishStorageDealsReturn{}
	if err := ret.UnmarshalCBOR(bytes.NewReader(out)); err != nil {
		t.Fatalf("unmarshal return: %v", err)
	}
	if len(ret.IDs) != 1 || ret.IDs[0] != 0 {
		t.Fatalf("IDs = %v, want [0]", ret.IDs)
	}

	st := loadMarketState(t, host, marketAddr)
	if got := lockedBalance(t, host, st, client); got.Cmp(clientFee) != 0 {
		t.Fatalf("client locked = %s, want %s", got, clientFee)
	}
	if got := lockedBalance(t, host, st, provider); got.Cmp(cdp.Proposal.ProviderCollateral) != 0 {
		t.Fatalf("provider locked = %s, want %s", got, cdp.Proposal.ProviderCollateral)
	}
	if st.NextID != 1 {
		t.Fatalf("NextID = %d, want 1", st.NextID)
	}

	proposals, err := amtLoad(host.store, st.Proposals)
	if err != nil {
		t.Fatalf("amtLoad: %v", err)
	}
	stored, found, err := getProposal(host.store, proposals, 0)
	if err != nil || !found {
		t.Fatalf("getProposal(0): found=%v err=%v", found, err)
	}
	if !stored.Client.Equal(client) || !stored.Provider.Equal(provider) {
		t.Fatalf("stored proposal parties don't match: %+v", stored)
	}
}

func TestPublishStorageDealsRejectsBadSignature(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)
	host.sys = &syscall.Test{SignatureOK: false}

	client := sampleAddr(2)
	provider := sampleAddr(3)
	host.addActor(provider, builtin.AccountActorCodeID, abi.Zero())
	cdp := dealFixture(client, provider, 0)
	addBalance(t, host, marketAddr, client, client, cdp.Proposal.ClientBalanceRequirement())
	addBalance(t, host, marketAddr, provider, provider, cdp.Proposal.ProviderCollateral)

	ctx := runtime.NewContext(host, runtime.Message{Caller: provider, Receiver: marketAddr}, 0)
	params := &PublishStorageDealsParams{Deals: []ClientDealProposal{cdp}}
	var buf bytes.Buffer
	params.MarshalCBOR(&buf)

	_, err := PublishStorageDeals(ctx, buf.Bytes())
	if err == nil || err.Code != runtime.ErrIllegalArgument {
		t.Fatalf("PublishStorageDeals() = %v, want ErrIllegalArgument for a bad signature", err)
	}
}

func TestPublishStorageDealsRejectsDuplicateProposal(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)

	client := sampleAddr(2)
	provider := sampleAddr(3)
	host.addActor(provider, builtin.AccountActorCodeID, abi.Zero())
	cdp := dealFixture(client, provider, 0)
	// Enough escrow for the same deal locked twice over.
	addBalance(t, host, marketAddr, client, client, cdp.Proposal.ClientBalanceRequirement().Mul(abi.NewTokenAmount(2)))
	addBalance(t, host, marketAddr, provider, provider, cdp.Proposal.ProviderCollateral.Mul(abi.NewTokenAmount(2)))

	publish := func() *runtime.ActorError {
		ctx := runtime.NewContext(host, runtime.Message{Caller: provider, Receiver: marketAddr}, 0)
		params := &PublishStorageDealsParams{Deals: []ClientDealProposal{cdp}}
		var buf bytes.Buffer
		params.MarshalCBOR(&buf)
		_, err := PublishStorageDeals(ctx, buf.Bytes())
		return err
	}
	if err := publish(); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := publish(); err == nil || err.Code != runtime.ErrIllegalArgument {
		t.Fatalf("second (duplicate) publish = %v, want ErrIllegalArgument", err)
	}
}

// publishAndActivate publishes a single deal at epoch 0 and activates it so
// it has a live DealState for the cron-sweep tests below.
func publishAndActivate(t *testing.T, host *fakeHost, marketAddr, client, provider, publishCaller address.Address, cdp ClientDealProposal) abi.DealID {
	t.Helper()
	addBalance(t, host, marketAddr, client, client, cdp.Proposal.ClientBalanceRequirement())
	addBalance(t, host, marketAddr, publishCaller, provider, cdp.Proposal.ProviderCollateral)

	ctx := runtime.NewContext(host, runtime.Message{Caller: publishCaller, Receiver: marketAddr}, 0)
	pparams := &PublishStorageDealsParams{Deals: []ClientDealProposal{cdp}}
	var buf bytes.Buffer
	pparams.MarshalCBOR(&buf)
	out, err := PublishStorageDeals(ctx, buf.Bytes())
	if err != nil {
		t.Fatalf("PublishStorageDeals: %v", err)
	}
	ret := &PublishStorageDealsReturn{}
	ret.UnmarshalCBOR(bytes.NewReader(out))
	id := ret.IDs[0]

	host.epoch = cdp.Proposal.StartEpoch
	actx := runtime.NewContext(host, runtime.Message{Caller: provider, Receiver: marketAddr}, 0)
	aparams := &ActivateDealsParams{DealIDs: []abi.DealID{id}, SectorExpiry: cdp.Proposal.EndEpoch + 1}
	var abuf bytes.Buffer
	aparams.MarshalCBOR(&abuf)
	if _, err := ActivateDeals(actx, abuf.Bytes()); err != nil {
		t.Fatalf("ActivateDeals: %v", err)
	}
	return id
}

func TestCronTickSettlesOneEpochOfPayment(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)

	client := sampleAddr(2)
	provider := sampleAddr(3) // the miner actor itself
	worker := sampleAddr(4)   // its signable control address
	host.addActor(provider, builtin.StorageMinerActorCodeID, abi.Zero())
	host.addActor(worker, builtin.AccountActorCodeID, abi.Zero())
	host.sendFn = func(from, to address.Address, method uint64, params []byte, value abi.TokenAmount, depth int) ([]byte, *runtime.ActorError) {
		if to.Equal(provider) && method == builtin.MethodMinerControlAddresses {
			return marshalControlAddresses(t, worker, worker), nil
		}
		return nil, nil
	}
	cdp := dealFixture(client, provider, 0)
	id := publishAndActivate(t, host, marketAddr, client, provider, worker, cdp)

	// The deal was enqueued into deals-by-epoch at StartEpoch; a first cron
	// tick at any later epoch would skip straight past it (LastCron starts
	// undefined, so the very first sweep begins at currEpoch, not at 0), so
	// the tick under test must land exactly on StartEpoch.
	host.epoch = cdp.Proposal.StartEpoch
	cctx := runtime.NewContext(host, runtime.Message{Caller: builtin.CronActorAddr, Receiver: marketAddr}, 0)
	host.addActor(builtin.CronActorAddr, builtin.CronActorCodeID, abi.Zero())
	if _, err := CronTick(cctx, nil); err != nil {
		t.Fatalf("CronTick: %v", err)
	}

	st := loadMarketState(t, host, marketAddr)
	clientEscrow := escrowBalance(t, host, st, client)
	providerEscrow := escrowBalance(t, host, st, provider)
	wantClientEscrow := cdp.Proposal.ClientBalanceRequirement().Sub(cdp.Proposal.StoragePricePerEpoch)
	if clientEscrow.Cmp(wantClientEscrow) != 0 {
		t.Fatalf("client escrow = %s, want %s", clientEscrow, wantClientEscrow)
	}
	wantProviderEscrow := cdp.Proposal.ProviderCollateral.Add(cdp.Proposal.StoragePricePerEpoch)
	if providerEscrow.Cmp(wantProviderEscrow) != 0 {
		t.Fatalf("provider escrow = %s, want %s", providerEscrow, wantProviderEscrow)
	}

	proposals, err := amtLoad(host.store, st.Proposals)
	if err != nil {
		t.Fatalf("amtLoad proposals: %v", err)
	}
	_ = proposals
	states, err := amtLoad(host.store, st.States)
	if err != nil {
		t.Fatalf("amtLoad states: %v", err)
	}
	ds, found, err := getDealState(host.store, states, id)
	if err != nil || !found {
		t.Fatalf("getDealState(%d): found=%v err=%v", id, found, err)
	}
	if ds.LastUpdatedEpoch != host.epoch {
		t.Fatalf("LastUpdatedEpoch = %d, want %d", ds.LastUpdatedEpoch, host.epoch)
	}

	hasNext, err := func() (bool, error) {
		dm, err := adt.LoadSetMultimap(host.store, st.DealsByEpoch)
		if err != nil {
			return false, err
		}
		return dm.Has(host.epoch+1, id)
	}()
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !hasNext {
		t.Fatalf("deal %d not re-enqueued at epoch %d", id, host.epoch+1)
	}
}

func TestCronTickSlashesNeverActivatedDeal(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)

	client := sampleAddr(2)
	provider := sampleAddr(3)
	host.addActor(provider, builtin.AccountActorCodeID, abi.Zero())
	cdp := dealFixture(client, provider, 0)

	addBalance(t, host, marketAddr, client, client, cdp.Proposal.ClientBalanceRequirement())
	addBalance(t, host, marketAddr, provider, provider, cdp.Proposal.ProviderCollateral)
	pctx := runtime.NewContext(host, runtime.Message{Caller: provider, Receiver: marketAddr}, 0)
	pparams := &PublishStorageDealsParams{Deals: []ClientDealProposal{cdp}}
	var buf bytes.Buffer
	pparams.MarshalCBOR(&buf)
	if _, err := PublishStorageDeals(pctx, buf.Bytes()); err != nil {
		t.Fatalf("PublishStorageDeals: %v", err)
	}

	var burnt abi.TokenAmount
	host.sendFn = func(from, to address.Address, method uint64, params []byte, value abi.TokenAmount, depth int) ([]byte, *runtime.ActorError) {
		if to.Equal(builtin.BurntFundsActorAddr) {
			burnt = value
		}
		return nil, nil
	}

	host.epoch = cdp.Proposal.StartEpoch // deal never activated by this epoch
	host.addActor(builtin.CronActorAddr, builtin.CronActorCodeID, abi.Zero())
	cctx := runtime.NewContext(host, runtime.Message{Caller: builtin.CronActorAddr, Receiver: marketAddr}, 0)
	if _, err := CronTick(cctx, nil); err != nil {
		t.Fatalf("CronTick: %v", err)
	}

	if burnt.Cmp(cdp.Proposal.ProviderCollateral) != 0 {
		t.Fatalf("amount slashed to burnt-funds = %s, want %s", burnt, cdp.Proposal.ProviderCollateral)
	}

	st := loadMarketState(t, host, marketAddr)
	if got := lockedBalance(t, host, st, client); !got.IsZero() {
		t.Fatalf("client locked after timeout = %s, want 0", got)
	}
	if got := lockedBalance(t, host, st, provider); !got.IsZero() {
		t.Fatalf("provider locked after timeout = %s, want 0", got)
	}
	// Client's escrow is merely unlocked, not forfeited.
	if got := escrowBalance(t, host, st, client); got.Cmp(cdp.Proposal.ClientBalanceRequirement()) != 0 {
		t.Fatalf("client escrow after timeout = %s, want unchanged %s", got, cdp.Proposal.ClientBalanceRequirement())
	}
}

func TestVerifyDealsForActivationSumsWeight(t *testing.T) {
	host := newFakeHost()
	marketAddr := sampleAddr(1)
	constructMarket(t, host, marketAddr)

	client := sampleAddr(2)
	provider := sampleAddr(3)
	host.addActor(provider, builtin.AccountActorCodeID, abi.Zero())
	cdp := dealFixture(client, provider, 0)

	addBalance(t, host, marketAddr, client, client, cdp.Proposal.ClientBalanceRequirement())
	addBalance(t, host, marketAddr, provider, provider, cdp.Proposal.ProviderCollateral)
	pctx := runtime.NewContext(host, runtime.Message{Caller: provider, Receiver: marketAddr}, 0)
	pparams := &PublishStorageDealsParams{Deals: []ClientDealProposal{cdp}}
	var buf bytes.Buffer
	pparams.MarshalCBOR(&buf)
	out, err := PublishStorageDeals(pctx, buf.Bytes())
	if err != nil {
		t.Fatalf("PublishStorageDeals: %v", err)
	}
	ret := &PublishStorageDealsReturn{}
	ret.UnmarshalCBOR(bytes.NewReader(out))

	// VerifyDealsForActivation requires a miner-coded caller; the deal's
	// Provider field is a plain address match, not a code-CID match, so
	// re-badging the same address after publication is consistent.
	host.actors[provider.String()].code = builtin.StorageMinerActorCodeID

	vctx := runtime.NewContext(host, runtime.Message{Caller: provider, Receiver: marketAddr}, 0)
	vparams := &VerifyDealsForActivationParams{DealIDs: ret.IDs, SectorExpiry: cdp.Proposal.EndEpoch + 1}
	var vbuf bytes.Buffer
	vparams.MarshalCBOR(&vbuf)
	vout, err := VerifyDealsForActivation(vctx, vbuf.Bytes())
	if err != nil {
		t.Fatalf("VerifyDealsForActivation: %v", err)
	}
	vret := &VerifyDealsForActivationReturn{}
	if err := vret.UnmarshalCBOR(bytes.NewReader(vout)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	wantWeight := abi.NewTokenAmount(int64(cdp.Proposal.Duration())).Mul(abi.NewTokenAmount(int64(cdp.Proposal.PieceSize)))
	if vret.DealWeight.Cmp(wantWeight) != 0 {
		t.Fatalf("DealWeight = %s, want %s", vret.DealWeight, wantWeight)
	}
	if !vret.VerifiedDealWeight.IsZero() {
		t.Fatalf("VerifiedDealWeight = %s, want 0 (not a verified deal)", vret.VerifiedDealWeight)
	}
}
