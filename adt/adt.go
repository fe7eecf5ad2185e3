// Package adt provides the domain collections built on top of the raw
// HAMT/AMT tries: a BalanceTable (address-keyed token amounts), a
// SetMultimap (key to a HAMT-backed set, used for the market actor's
// deals-by-epoch index) and a generic Multimap (key to an AMT-backed
// ordered sequence) for any future built-in that needs per-key order.
// Grounded on go-hamt-ipld's adt.BalanceTable / adt.SetMultimap shapes as
// referenced from the market actor source in the reference pack.
package adt

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/amt"
	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/cid"
	"github.com/synnergy-chain/actorcore/hamt"
)

var ErrBelowMinimum = errors.New("adt: balance would drop below minimum")

// BalanceTable tracks a HAMT of address -> TokenAmount.
type BalanceTable struct {
	root  *hamt.Node
	store blockstore.Blockstore
}

// NewBalanceTable wires a fresh, empty table over store.
func NewBalanceTable(store blockstore.Blockstore) *BalanceTable {
	return &BalanceTable{root: hamt.NewNode(0), store: store}
}

func addrKey(a address.Address) []byte { return a.ToBytes() }

// Get returns the balance for addr, zero if absent.
func (bt *BalanceTable) Get(addr address.Address) (abi.TokenAmount, error) {
	v, ok, err := bt.root.Get(bt.store, addrKey(addr))
	if err != nil {
		return abi.Zero(), err
	}
	if !ok {
		return abi.Zero(), nil
	}
	return abi.TokenAmountFromBytes(v), nil
}

// Set overwrites addr's balance.
func (bt *BalanceTable) Set(addr address.Address, amount abi.TokenAmount) error {
	return bt.root.Set(bt.store, addrKey(addr), amount.Bytes())
}

// AddBalance adds amount (possibly negative) to addr's existing balance.
func (bt *BalanceTable) AddBalance(addr address.Address, amount abi.TokenAmount) error {
	cur, err := bt.Get(addr)
	if err != nil {
		return err
	}
	return bt.Set(addr, cur.Add(amount))
}

// SubtractWithMinimum deducts up to `req` from addr's balance without
// letting the result fall below `floor`, returning the amount actually
// deducted.
func (bt *BalanceTable) SubtractWithMinimum(addr address.Address, req, floor abi.TokenAmount) (abi.TokenAmount, error) {
	cur, err := bt.Get(addr)
	if err != nil {
		return abi.Zero(), err
	}
	available := cur.Sub(floor)
	if available.IsNegative() {
		return abi.Zero(), nil
	}
	deduct := req
	if available.Cmp(req) < 0 {
		deduct = available
	}
	if err := bt.Set(addr, cur.Sub(deduct)); err != nil {
		return abi.Zero(), err
	}
	return deduct, nil
}

// MustSubtract deducts exactly `amount`, failing if that would drop the
// balance below zero.
func (bt *BalanceTable) MustSubtract(addr address.Address, amount abi.TokenAmount) error {
	cur, err := bt.Get(addr)
	if err != nil {
		return err
	}
	if cur.Cmp(amount) < 0 {
		return ErrBelowMinimum
	}
	return bt.Set(addr, cur.Sub(amount))
}

// Flush persists the underlying HAMT and returns its root CID.
func (bt *BalanceTable) Flush() (cid.Cid, error) {
	return bt.root.Flush(bt.store)
}

// LoadBalanceTable reconstructs a BalanceTable previously flushed to root.
func LoadBalanceTable(store blockstore.Blockstore, root cid.Cid) (*BalanceTable, error) {
	n, err := hamt.LoadNode(store, root, 0)
	if err != nil {
		return nil, err
	}
	return &BalanceTable{root: n, store: store}, nil
}

// ForEach visits every (address, balance) pair.
func (bt *BalanceTable) ForEach(fn func(address.Address, abi.TokenAmount) error) error {
	return bt.root.ForEach(bt.store, func(k, v []byte) error {
		addr, err := address.FromBytes(k)
		if err != nil {
			return err
		}
		return fn(addr, abi.TokenAmountFromBytes(v))
	})
}

// SetMultimap maps an arbitrary key to a HAMT-backed set of DealIDs, used
// for the market actor's deals_by_epoch index.
type SetMultimap struct {
	root  *hamt.Node
	store blockstore.Blockstore
}

func NewSetMultimap(store blockstore.Blockstore) *SetMultimap {
	return &SetMultimap{root: hamt.NewNode(0), store: store}
}

// Flush persists the top-level HAMT (each epoch's set was already flushed
// on Put) and returns its root CID.
func (m *SetMultimap) Flush() (cid.Cid, error) {
	return m.root.Flush(m.store)
}

// LoadSetMultimap reconstructs a SetMultimap previously flushed to root.
func LoadSetMultimap(store blockstore.Blockstore, root cid.Cid) (*SetMultimap, error) {
	n, err := hamt.LoadNode(store, root, 0)
	if err != nil {
		return nil, err
	}
	return &SetMultimap{root: n, store: store}, nil
}

func epochKey(e abi.ChainEpoch) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(e))
	return buf[:]
}

func dealKey(id abi.DealID) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return buf[:]
}

// Put adds id to the set under epoch.
func (m *SetMultimap) Put(epoch abi.ChainEpoch, id abi.DealID) error {
	set, err := m.getOrCreateSet(epoch)
	if err != nil {
		return err
	}
	if err := set.Set(m.store, dealKey(id), []byte{1}); err != nil {
		return err
	}
	return m.putSet(epoch, set)
}

// Has reports whether id is present under epoch.
func (m *SetMultimap) Has(epoch abi.ChainEpoch, id abi.DealID) (bool, error) {
	set, ok, err := m.getSet(epoch)
	if err != nil || !ok {
		return false, err
	}
	_, present, err := set.Get(m.store, dealKey(id))
	return present, err
}

// RemoveAll deletes the entire set under epoch.
func (m *SetMultimap) RemoveAll(epoch abi.ChainEpoch) error {
	_, err := m.root.Delete(m.store, epochKey(epoch))
	return err
}

// ForEach visits every DealID registered under epoch.
func (m *SetMultimap) ForEach(epoch abi.ChainEpoch, fn func(abi.DealID) error) error {
	set, ok, err := m.getSet(epoch)
	if err != nil || !ok {
		return err
	}
	return set.ForEach(m.store, func(k, _ []byte) error {
		if len(k) != 8 {
			return fmt.Errorf("adt: malformed deal key")
		}
		return fn(abi.DealID(binary.BigEndian.Uint64(k)))
	})
}

func (m *SetMultimap) getSet(epoch abi.ChainEpoch) (*hamt.Node, bool, error) {
	v, ok, err := m.root.Get(m.store, epochKey(epoch))
	if err != nil || !ok {
		return nil, ok, err
	}
	root, err := hamt.LoadNode(m.store, mustCidFromBytes(v), 0)
	if err != nil {
		return nil, false, err
	}
	return root, true, nil
}

func (m *SetMultimap) getOrCreateSet(epoch abi.ChainEpoch) (*hamt.Node, error) {
	set, ok, err := m.getSet(epoch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return hamt.NewNode(0), nil
	}
	return set, nil
}

func (m *SetMultimap) putSet(epoch abi.ChainEpoch, set *hamt.Node) error {
	c, err := set.Flush(m.store)
	if err != nil {
		return err
	}
	return m.root.Set(m.store, epochKey(epoch), c.Bytes())
}

// Multimap maps an arbitrary key to an AMT-backed ordered sequence of
// opaque values, for built-ins that need per-key order rather than sets.
type Multimap struct {
	root  *hamt.Node
	store blockstore.Blockstore
}

func NewMultimap(store blockstore.Blockstore) *Multimap {
	return &Multimap{root: hamt.NewNode(0), store: store}
}

// Flush persists the top-level HAMT and returns its root CID.
func (m *Multimap) Flush() (cid.Cid, error) {
	return m.root.Flush(m.store)
}

// LoadMultimap reconstructs a Multimap previously flushed to root.
func LoadMultimap(store blockstore.Blockstore, root cid.Cid) (*Multimap, error) {
	n, err := hamt.LoadNode(store, root, 0)
	if err != nil {
		return nil, err
	}
	return &Multimap{root: n, store: store}, nil
}

// Append adds val to the sequence under key, returning its new index.
func (m *Multimap) Append(key []byte, val []byte) (uint64, error) {
	seq, err := m.getOrCreateSeq(key)
	if err != nil {
		return 0, err
	}
	idx := seq.Length()
	if err := seq.Set(m.store, idx, val); err != nil {
		return 0, err
	}
	return idx, m.putSeq(key, seq)
}

func (m *Multimap) getOrCreateSeq(key []byte) (*amt.Root, error) {
	v, ok, err := m.root.Get(m.store, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return amt.New(), nil
	}
	return amt.LoadRoot(m.store, mustCidFromBytes(v))
}

func (m *Multimap) putSeq(key []byte, seq *amt.Root) error {
	c, err := seq.Flush(m.store)
	if err != nil {
		return err
	}
	return m.root.Set(m.store, key, c.Bytes())
}

// ForEach visits every value stored under key, in index order.
func (m *Multimap) ForEach(key []byte, fn func(idx uint64, val []byte) error) error {
	v, ok, err := m.root.Get(m.store, key)
	if err != nil || !ok {
		return err
	}
	seq, err := amt.LoadRoot(m.store, mustCidFromBytes(v))
	if err != nil {
		return err
	}
	return seq.ForEach(m.store, fn)
}

func mustCidFromBytes(b []byte) cid.Cid {
	decoded, err := cid.FromBytes(b)
	if err != nil {
		panic(fmt.Sprintf("adt: stored value is not a valid CID: %v", err))
	}
	return decoded
}
