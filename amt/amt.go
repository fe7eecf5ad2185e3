// Package amt implements the persistent, sparse, u64-indexed array used for
// ordered on-chain sequences (market deal proposals and deal states indexed
// by DealID). Structurally the same cache/link/value node shape as package
// hamt's trie, generalized from HAMT's hashed-key bucketing to a fixed
// radix-8 positional trie over the numeric index, growing height on inserts
// past the current capacity and shrinking when the top level empties out,
// mirroring go-amt-ipld's {Height, Count, Node} root record and the
// teacher's level-pairing shape in core/merkle_tree_operations.go generalized
// from a binary tree to this wider branching factor.
package amt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/cid"
)

// Width is the branching factor: each node holds up to Width slots,
// consuming 3 bits of the index per level.
const Width = 8
const bitsPerLevel = 3

var (
	ErrNotFound    = errors.New("amt: index not found")
	ErrIndexTooBig = errors.New("amt: index exceeds implementation maximum height")
)

const maxHeight = 20 // capacity at this height is Width^21 = 2^63; one more level would overflow uint64

type eltKind int

const (
	eltValue eltKind = iota
	eltLink
	eltCache
)

type elt struct {
	kind  eltKind
	value []byte
	link  cid.Cid
	cache *node
}

type node struct {
	bitmap uint8
	elts   []*elt
}

// Root is the AMT's top-level record: its height (levels below the root
// node), element count, and root node.
type Root struct {
	height uint64
	count  uint64
	node   *node
}

// New returns an empty AMT.
func New() *Root {
	return &Root{node: &node{}}
}

func (n *node) has(slot int) bool { return n.bitmap&(1<<uint(slot)) != 0 }

func (n *node) indexForSlot(slot int) int {
	mask := uint8((1 << uint(slot)) - 1)
	count := 0
	b := n.bitmap & mask
	for b != 0 {
		count++
		b &= b - 1
	}
	return count
}

func capacityAtHeight(height uint64) uint64 {
	capacity := uint64(Width)
	for i := uint64(0); i < height; i++ {
		capacity *= Width
	}
	return capacity
}

// Set stores val at index, growing the tree's height if necessary.
func (r *Root) Set(store blockstore.Blockstore, index uint64, val []byte) error {
	for index >= capacityAtHeight(r.height) {
		if r.height >= maxHeight {
			return ErrIndexTooBig
		}
		r.wrapRoot()
	}
	existed, err := r.node.set(store, r.height, index, val)
	if err != nil {
		return err
	}
	if !existed {
		r.count++
	}
	return nil
}

func (r *Root) wrapRoot() {
	old := r.node
	newRoot := &node{}
	if old.bitmap != 0 || len(old.elts) != 0 {
		newRoot.bitmap = 1
		newRoot.elts = []*elt{{kind: eltCache, cache: old}}
	}
	r.node = newRoot
	r.height++
}

func (n *node) set(store blockstore.Blockstore, height uint64, index uint64, val []byte) (bool, error) {
	slot := int((index >> (height * bitsPerLevel)) & (Width - 1))
	if height == 0 {
		existed := n.has(slot)
		e := &elt{kind: eltValue, value: val}
		if existed {
			n.elts[n.indexForSlot(slot)] = e
		} else {
			idx := n.indexForSlot(slot)
			n.elts = append(n.elts[:idx], append([]*elt{e}, n.elts[idx:]...)...)
			n.bitmap |= 1 << uint(slot)
		}
		return existed, nil
	}

	rest := index & (capacityAtHeight(height-1) - 1)
	if !n.has(slot) {
		idx := n.indexForSlot(slot)
		child := &node{}
		e := &elt{kind: eltCache, cache: child}
		n.elts = append(n.elts[:idx], append([]*elt{e}, n.elts[idx:]...)...)
		n.bitmap |= 1 << uint(slot)
		return child.set(store, height-1, rest, val)
	}

	e := n.elts[n.indexForSlot(slot)]
	child, err := n.resolve(store, e)
	if err != nil {
		return false, err
	}
	return child.set(store, height-1, rest, val)
}

func (n *node) resolve(store blockstore.Blockstore, e *elt) (*node, error) {
	switch e.kind {
	case eltCache:
		return e.cache, nil
	case eltLink:
		child, err := loadNode(store, e.link)
		if err != nil {
			return nil, err
		}
		e.kind = eltCache
		e.cache = child
		e.link = cid.Undef
		return child, nil
	default:
		return nil, fmt.Errorf("amt: expected child node, got value element")
	}
}

// Get returns the value at index, if present.
func (r *Root) Get(store blockstore.Blockstore, index uint64) ([]byte, bool, error) {
	if index >= capacityAtHeight(r.height) {
		return nil, false, nil
	}
	return r.node.get(store, r.height, index)
}

func (n *node) get(store blockstore.Blockstore, height uint64, index uint64) ([]byte, bool, error) {
	slot := int((index >> (height * bitsPerLevel)) & (Width - 1))
	if !n.has(slot) {
		return nil, false, nil
	}
	e := n.elts[n.indexForSlot(slot)]
	if height == 0 {
		return e.value, true, nil
	}
	child, err := n.resolve(store, e)
	if err != nil {
		return nil, false, err
	}
	rest := index & (capacityAtHeight(height-1) - 1)
	return child.get(store, height-1, rest)
}

// Delete removes index, reporting whether it was present, and shrinks the
// tree's tracked height if the top level has emptied out.
func (r *Root) Delete(store blockstore.Blockstore, index uint64) (bool, error) {
	if index >= capacityAtHeight(r.height) {
		return false, nil
	}
	removed, err := r.node.delete(store, r.height, index)
	if err != nil || !removed {
		return removed, err
	}
	r.count--
	r.shrink()
	return true, nil
}

func (r *Root) shrink() {
	for r.height > 0 {
		if len(r.node.elts) != 1 || !r.node.has(0) {
			return
		}
		e := r.node.elts[0]
		if e.kind != eltCache {
			return
		}
		r.node = e.cache
		r.height--
	}
}

func (n *node) delete(store blockstore.Blockstore, height uint64, index uint64) (bool, error) {
	slot := int((index >> (height * bitsPerLevel)) & (Width - 1))
	if !n.has(slot) {
		return false, nil
	}
	idx := n.indexForSlot(slot)
	e := n.elts[idx]
	if height == 0 {
		n.elts = append(n.elts[:idx], n.elts[idx+1:]...)
		n.bitmap &^= 1 << uint(slot)
		return true, nil
	}
	child, err := n.resolve(store, e)
	if err != nil {
		return false, err
	}
	rest := index & (capacityAtHeight(height-1) - 1)
	removed, err := child.delete(store, height-1, rest)
	if err != nil || !removed {
		return removed, err
	}
	if child.bitmap == 0 {
		n.elts = append(n.elts[:idx], n.elts[idx+1:]...)
		n.bitmap &^= 1 << uint(slot)
	}
	return true, nil
}

// ForEach visits every populated index in ascending order.
func (r *Root) ForEach(store blockstore.Blockstore, fn func(index uint64, val []byte) error) error {
	return r.node.forEach(store, r.height, 0, fn)
}

func (n *node) forEach(store blockstore.Blockstore, height uint64, base uint64, fn func(uint64, []byte) error) error {
	for slot := 0; slot < Width; slot++ {
		if !n.has(slot) {
			continue
		}
		e := n.elts[n.indexForSlot(slot)]
		stride := capacityAtHeight(height) / Width
		idxBase := base + uint64(slot)*stride
		if height == 0 {
			if err := fn(idxBase, e.value); err != nil {
				return err
			}
			continue
		}
		child, err := n.resolve(store, e)
		if err != nil {
			return err
		}
		if err := child.forEach(store, height-1, idxBase, fn); err != nil {
			return err
		}
	}
	return nil
}

// Length returns the number of populated indices, tracked at the root for
// O(1) reads without a full walk.
func (r *Root) Length() uint64 { return r.count }

// Flush persists every cached child node plus the root record itself,
// returning the root's CID.
func (r *Root) Flush(store blockstore.Blockstore) (cid.Cid, error) {
	if err := r.node.flush(store); err != nil {
		return cid.Undef, err
	}
	var buf bytes.Buffer
	if err := r.MarshalCBOR(&buf); err != nil {
		return cid.Undef, err
	}
	return store.Put(buf.Bytes())
}

func (n *node) flush(store blockstore.Blockstore) error {
	for _, e := range n.elts {
		if e.kind == eltCache {
			if err := e.cache.flush(store); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := e.cache.marshalCBOR(&buf); err != nil {
				return err
			}
			c, err := store.Put(buf.Bytes())
			if err != nil {
				return err
			}
			e.kind = eltLink
			e.link = c
			e.cache = nil
		}
	}
	return nil
}

// LoadRoot fetches and decodes the AMT root record stored at c.
func LoadRoot(store blockstore.Blockstore, c cid.Cid) (*Root, error) {
	data, err := store.Get(c)
	if err != nil {
		return nil, err
	}
	r := &Root{}
	if err := r.UnmarshalCBOR(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return r, nil
}

func loadNode(store blockstore.Blockstore, c cid.Cid) (*node, error) {
	data, err := store.Get(c)
	if err != nil {
		return nil, err
	}
	n := &node{}
	if err := n.unmarshalCBOR(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return n, nil
}

// MarshalCBOR encodes the root as the tuple [height, count, node].
func (r *Root) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 3); err != nil {
		return err
	}
	if err := cbor.WriteUInt(w, r.height); err != nil {
		return err
	}
	if err := cbor.WriteUInt(w, r.count); err != nil {
		return err
	}
	return r.node.marshalCBOR(w)
}

// UnmarshalCBOR decodes a root record previously written by MarshalCBOR.
func (r *Root) UnmarshalCBOR(rd io.Reader) error {
	cr := cbor.NewReader(rd)
	n, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if n != 3 {
		return fmt.Errorf("amt: expected 3-tuple root, got %d", n)
	}
	height, err := cr.ReadUInt()
	if err != nil {
		return err
	}
	count, err := cr.ReadUInt()
	if err != nil {
		return err
	}
	node, err := unmarshalNodeFrom(cr)
	if err != nil {
		return err
	}
	r.height, r.count, r.node = height, count, node
	return nil
}

func (n *node) marshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteUInt(w, uint64(n.bitmap)); err != nil {
		return err
	}
	if err := cbor.WriteArrayHeader(w, uint64(len(n.elts))); err != nil {
		return err
	}
	for _, e := range n.elts {
		if err := e.marshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (n *node) unmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	decoded, err := unmarshalNodeFrom(cr)
	if err != nil {
		return err
	}
	*n = *decoded
	return nil
}

func unmarshalNodeFrom(cr *cbor.Reader) (*node, error) {
	arrLen, err := cr.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	if arrLen != 2 {
		return nil, fmt.Errorf("amt: expected 2-tuple node, got %d", arrLen)
	}
	bitmap, err := cr.ReadUInt()
	if err != nil {
		return nil, err
	}
	count, err := cr.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	elts := make([]*elt, 0, count)
	for i := uint64(0); i < count; i++ {
		e, err := unmarshalElt(cr)
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
	}
	return &node{bitmap: uint8(bitmap), elts: elts}, nil
}

func (e *elt) marshalCBOR(w io.Writer) error {
	switch e.kind {
	case eltLink:
		if err := cbor.WriteMapHeader(w, 1); err != nil {
			return err
		}
		if err := cbor.WriteString(w, "0"); err != nil {
			return err
		}
		return cbor.WriteCid(w, e.link)
	case eltValue:
		if err := cbor.WriteMapHeader(w, 1); err != nil {
			return err
		}
		if err := cbor.WriteString(w, "1"); err != nil {
			return err
		}
		return cbor.WriteBytes(w, e.value)
	default:
		return fmt.Errorf("amt: unexpected cached element during marshal")
	}
}

func unmarshalElt(cr *cbor.Reader) (*elt, error) {
	mapLen, err := cr.ReadMapHeader()
	if err != nil {
		return nil, err
	}
	if mapLen != 1 {
		return nil, fmt.Errorf("amt: expected single-key element map, got %d", mapLen)
	}
	key, err := cr.ReadString()
	if err != nil {
		return nil, err
	}
	switch key {
	case "0":
		c, err := cr.ReadCid()
		if err != nil {
			return nil, err
		}
		return &elt{kind: eltLink, link: c}, nil
	case "1":
		v, err := cr.ReadBytes()
		if err != nil {
			return nil, err
		}
		return &elt{kind: eltValue, value: v}, nil
	default:
		return nil, fmt.Errorf("amt: unknown element map key %q", key)
	}
}
