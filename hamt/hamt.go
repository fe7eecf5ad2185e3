// Package hamt implements the persistent hash-array-mapped trie used as the
// backing structure for every keyed on-chain collection (actor state maps,
// BalanceTable, SetMultimap). Nodes are content-addressed: Flush persists the
// tree to a Blockstore and returns its root CID, and LoadNode reconstructs a
// tree lazily, paging child nodes in from the store only when a traversal
// reaches them. Grounded on the HAMT described in the reference pack's
// ipld/hamt/src/pointer.rs (Values / Link / Cache pointer variants and the
// clean/collapse-on-delete invariant), adapted from Rust ownership into a
// Go tree of *Node with explicit Blockstore round trips in place of a typed
// Ipld store.
package hamt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/synnergy-chain/actorcore/blockstore"
	"github.com/synnergy-chain/actorcore/cbor"
	"github.com/synnergy-chain/actorcore/cid"
)

// DefaultBitWidth is the number of hash bits consumed per trie level.
const DefaultBitWidth = 5

// MaxArrayWidth bounds how many key/value pairs a single bucket holds
// before it is split into a child node.
const MaxArrayWidth = 3

var (
	ErrNotFound      = errors.New("hamt: key not found")
	ErrZeroPointers  = errors.New("hamt: node collapsed to zero pointers")
	ErrCachedOnFlush = errors.New("hamt: unexpected cached pointer during marshal")
)

// KV is one key/value pair stored in a bucket. Value is an opaque,
// already-serialized blob; callers own their own CBOR encoding of V.
type KV struct {
	Key   []byte
	Value []byte
}

type pointerKind int

const (
	pointerValues pointerKind = iota
	pointerLink
	pointerCache
)

type pointer struct {
	kind  pointerKind
	vals  []KV
	link  cid.Cid
	cache *Node
}

// Node is one level of the trie: a sparse bitmap of populated slots and one
// pointer per populated slot.
type Node struct {
	bitmap   uint64
	pointers []*pointer
	bitWidth uint
}

// NewNode returns an empty root node. bitWidth of 0 selects DefaultBitWidth.
func NewNode(bitWidth uint) *Node {
	if bitWidth == 0 {
		bitWidth = DefaultBitWidth
	}
	return &Node{bitWidth: bitWidth}
}

func hashKey(key []byte) []byte {
	h := blake2b.Sum256(key)
	return h[:]
}

// hashBits consumes a hashed key bitWidth bits at a time, MSB-first.
type hashBits struct {
	data   []byte
	cursor uint
}

func (hb *hashBits) next(bits uint) (int, error) {
	if hb.cursor+bits > uint(len(hb.data))*8 {
		return 0, fmt.Errorf("hamt: hash bits exhausted at depth")
	}
	v := 0
	for i := uint(0); i < bits; i++ {
		pos := hb.cursor + i
		byteIdx := pos / 8
		bitIdx := 7 - (pos % 8)
		bit := (hb.data[byteIdx] >> bitIdx) & 1
		v = (v << 1) | int(bit)
	}
	hb.cursor += bits
	return v, nil
}

func (n *Node) indexForBit(bit int) int {
	mask := (uint64(1) << uint(bit)) - 1
	return popcount(n.bitmap & mask)
}

func popcount(v uint64) int {
	count := 0
	for v != 0 {
		count++
		v &= v - 1
	}
	return count
}

func (n *Node) has(bit int) bool {
	return n.bitmap&(uint64(1)<<uint(bit)) != 0
}

// insertKV inserts kv into vals at its key-byte lexicographic position, so
// bucket layout (and therefore its marshaled bytes and the flushed root CID)
// is independent of insertion order.
func insertKV(vals []KV, kv KV) []KV {
	i := sort.Search(len(vals), func(i int) bool {
		return bytes.Compare(vals[i].Key, kv.Key) >= 0
	})
	vals = append(vals, KV{})
	copy(vals[i+1:], vals[i:])
	vals[i] = kv
	return vals
}

// Set inserts or overwrites the value for key.
func (n *Node) Set(store blockstore.Blockstore, key []byte, val []byte) error {
	return n.set(store, key, &hashBits{data: hashKey(key)}, val)
}

func (n *Node) set(store blockstore.Blockstore, key []byte, hb *hashBits, val []byte) error {
	bit, err := hb.next(n.bitWidth)
	if err != nil {
		return err
	}
	if !n.has(bit) {
		idx := n.indexForBit(bit)
		p := &pointer{kind: pointerValues, vals: insertKV(nil, KV{Key: append([]byte(nil), key...), Value: val})}
		n.pointers = append(n.pointers[:idx], append([]*pointer{p}, n.pointers[idx:]...)...)
		n.bitmap |= uint64(1) << uint(bit)
		return nil
	}

	idx := n.indexForBit(bit)
	p := n.pointers[idx]
	switch p.kind {
	case pointerValues:
		for i, kv := range p.vals {
			if bytes.Equal(kv.Key, key) {
				p.vals[i].Value = val
				return nil
			}
		}
		if len(p.vals) < MaxArrayWidth {
			p.vals = insertKV(p.vals, KV{Key: append([]byte(nil), key...), Value: val})
			return nil
		}
		// Overflow: split the bucket into a child node and redistribute.
		child := NewNode(n.bitWidth)
		cursor := hb.cursor
		for _, kv := range p.vals {
			if err := child.set(store, kv.Key, &hashBits{data: hashKey(kv.Key), cursor: cursor}, kv.Value); err != nil {
				return err
			}
		}
		if err := child.set(store, key, &hashBits{data: hashKey(key), cursor: cursor}, val); err != nil {
			return err
		}
		p.kind = pointerCache
		p.vals = nil
		p.cache = child
		return nil
	case pointerLink:
		child, err := LoadNode(store, p.link, n.bitWidth)
		if err != nil {
			return err
		}
		if err := child.set(store, key, hb, val); err != nil {
			return err
		}
		p.kind = pointerCache
		p.cache = child
		p.link = cid.Undef
		return nil
	case pointerCache:
		return p.cache.set(store, key, hb, val)
	default:
		return fmt.Errorf("hamt: unknown pointer kind %d", p.kind)
	}
}

// Get looks up key, returning (value, true, nil) if present.
func (n *Node) Get(store blockstore.Blockstore, key []byte) ([]byte, bool, error) {
	return n.get(store, key, &hashBits{data: hashKey(key)})
}

func (n *Node) get(store blockstore.Blockstore, key []byte, hb *hashBits) ([]byte, bool, error) {
	bit, err := hb.next(n.bitWidth)
	if err != nil {
		return nil, false, err
	}
	if !n.has(bit) {
		return nil, false, nil
	}
	p := n.pointers[n.indexForBit(bit)]
	switch p.kind {
	case pointerValues:
		for _, kv := range p.vals {
			if bytes.Equal(kv.Key, key) {
				return kv.Value, true, nil
			}
		}
		return nil, false, nil
	case pointerLink:
		child, err := LoadNode(store, p.link, n.bitWidth)
		if err != nil {
			return nil, false, err
		}
		return child.get(store, key, hb)
	case pointerCache:
		return p.cache.get(store, key, hb)
	default:
		return nil, false, fmt.Errorf("hamt: unknown pointer kind %d", p.kind)
	}
}

// Delete removes key, reporting whether it was present. Deleting the last
// entry under a child node collapses that child's pointer back into this
// node, and a child left holding few enough values is flattened into a
// single bucket, mirroring the reference implementation's clean/collapse
// step.
func (n *Node) Delete(store blockstore.Blockstore, key []byte) (bool, error) {
	return n.delete(store, key, &hashBits{data: hashKey(key)})
}

func (n *Node) delete(store blockstore.Blockstore, key []byte, hb *hashBits) (bool, error) {
	bit, err := hb.next(n.bitWidth)
	if err != nil {
		return false, err
	}
	if !n.has(bit) {
		return false, nil
	}
	idx := n.indexForBit(bit)
	p := n.pointers[idx]
	switch p.kind {
	case pointerValues:
		for i, kv := range p.vals {
			if bytes.Equal(kv.Key, key) {
				p.vals = append(p.vals[:i], p.vals[i+1:]...)
				if len(p.vals) == 0 {
					n.removeSlot(bit, idx)
				}
				return true, nil
			}
		}
		return false, nil
	case pointerLink:
		child, err := LoadNode(store, p.link, n.bitWidth)
		if err != nil {
			return false, err
		}
		p.kind = pointerCache
		p.cache = child
		p.link = cid.Undef
		return n.deleteFromChild(bit, idx, p, store, key, hb)
	case pointerCache:
		return n.deleteFromChild(bit, idx, p, store, key, hb)
	default:
		return false, fmt.Errorf("hamt: unknown pointer kind %d", p.kind)
	}
}

func (n *Node) deleteFromChild(bit, idx int, p *pointer, store blockstore.Blockstore, key []byte, hb *hashBits) (bool, error) {
	removed, err := p.cache.delete(store, key, hb)
	if err != nil || !removed {
		return removed, err
	}
	switch {
	case p.cache.bitmap == 0:
		n.removeSlot(bit, idx)
	case len(p.cache.pointers) == 1 && p.cache.pointers[0].kind == pointerValues:
		p.kind = pointerValues
		p.vals = p.cache.pointers[0].vals
		p.cache = nil
	default:
		if vals, ok := p.cache.collapsibleValues(); ok {
			p.kind = pointerValues
			p.vals = vals
			p.cache = nil
		}
	}
	return true, nil
}

// collapsibleValues reports whether every pointer in n is a Values bucket
// whose combined length fits in one bucket, returning the merged list.
func (n *Node) collapsibleValues() ([]KV, bool) {
	var out []KV
	for _, p := range n.pointers {
		if p.kind != pointerValues {
			return nil, false
		}
		out = append(out, p.vals...)
		if len(out) > MaxArrayWidth {
			return nil, false
		}
	}
	return out, true
}

func (n *Node) removeSlot(bit, idx int) {
	n.pointers = append(n.pointers[:idx], n.pointers[idx+1:]...)
	n.bitmap &^= uint64(1) << uint(bit)
}

// ForEach visits every key/value pair in ascending bucket order.
func (n *Node) ForEach(store blockstore.Blockstore, fn func(key []byte, val []byte) error) error {
	for _, p := range n.pointers {
		switch p.kind {
		case pointerValues:
			for _, kv := range p.vals {
				if err := fn(kv.Key, kv.Value); err != nil {
					return err
				}
			}
		case pointerLink:
			child, err := LoadNode(store, p.link, n.bitWidth)
			if err != nil {
				return err
			}
			if err := child.ForEach(store, fn); err != nil {
				return err
			}
		case pointerCache:
			if err := p.cache.ForEach(store, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush persists every cached child node and this node itself to store,
// returning the root CID.
func (n *Node) Flush(store blockstore.Blockstore) (cid.Cid, error) {
	for _, p := range n.pointers {
		if p.kind == pointerCache {
			c, err := p.cache.Flush(store)
			if err != nil {
				return cid.Undef, err
			}
			p.kind = pointerLink
			p.link = c
			p.cache = nil
		}
	}
	var buf bytes.Buffer
	if err := n.MarshalCBOR(&buf); err != nil {
		return cid.Undef, err
	}
	return store.Put(buf.Bytes())
}

// LoadNode fetches and decodes the node stored at root.
func LoadNode(store blockstore.Blockstore, root cid.Cid, bitWidth uint) (*Node, error) {
	data, err := store.Get(root)
	if err != nil {
		return nil, err
	}
	n := NewNode(bitWidth)
	if err := n.UnmarshalCBOR(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return n, nil
}

// MarshalCBOR encodes the node as the tuple [bitmap, pointers], with each
// pointer a single-key map: {"0": link-CID} or {"1": [[key,value], ...]}.
func (n *Node) MarshalCBOR(w io.Writer) error {
	if err := cbor.WriteArrayHeader(w, 2); err != nil {
		return err
	}
	if err := cbor.WriteUInt(w, n.bitmap); err != nil {
		return err
	}
	if err := cbor.WriteArrayHeader(w, uint64(len(n.pointers))); err != nil {
		return err
	}
	for _, p := range n.pointers {
		if err := p.marshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (p *pointer) marshalCBOR(w io.Writer) error {
	switch p.kind {
	case pointerLink:
		if err := cbor.WriteMapHeader(w, 1); err != nil {
			return err
		}
		if err := cbor.WriteString(w, "0"); err != nil {
			return err
		}
		return cbor.WriteCid(w, p.link)
	case pointerValues:
		if err := cbor.WriteMapHeader(w, 1); err != nil {
			return err
		}
		if err := cbor.WriteString(w, "1"); err != nil {
			return err
		}
		if err := cbor.WriteArrayHeader(w, uint64(len(p.vals))); err != nil {
			return err
		}
		for _, kv := range p.vals {
			if err := cbor.WriteArrayHeader(w, 2); err != nil {
				return err
			}
			if err := cbor.WriteBytes(w, kv.Key); err != nil {
				return err
			}
			if err := cbor.WriteBytes(w, kv.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrCachedOnFlush
	}
}

// UnmarshalCBOR decodes a node previously written by MarshalCBOR.
func (n *Node) UnmarshalCBOR(r io.Reader) error {
	cr := cbor.NewReader(r)
	arrLen, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	if arrLen != 2 {
		return fmt.Errorf("hamt: expected 2-tuple node, got %d", arrLen)
	}
	bitmap, err := cr.ReadUInt()
	if err != nil {
		return err
	}
	n.bitmap = bitmap
	count, err := cr.ReadArrayHeader()
	if err != nil {
		return err
	}
	n.pointers = make([]*pointer, 0, count)
	for i := uint64(0); i < count; i++ {
		p, err := unmarshalPointer(cr)
		if err != nil {
			return err
		}
		n.pointers = append(n.pointers, p)
	}
	return nil
}

func unmarshalPointer(cr *cbor.Reader) (*pointer, error) {
	mapLen, err := cr.ReadMapHeader()
	if err != nil {
		return nil, err
	}
	if mapLen != 1 {
		return nil, fmt.Errorf("hamt: expected single-key pointer map, got %d", mapLen)
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
		return &pointer{kind: pointerLink, link: c}, nil
	case "1":
		n, err := cr.ReadArrayHeader()
		if err != nil {
			return nil, err
		}
		vals := make([]KV, 0, n)
		for i := uint64(0); i < n; i++ {
			pairLen, err := cr.ReadArrayHeader()
			if err != nil {
				return nil, err
			}
			if pairLen != 2 {
				return nil, fmt.Errorf("hamt: expected 2-tuple kv, got %d", pairLen)
			}
			k, err := cr.ReadBytes()
			if err != nil {
				return nil, err
			}
			v, err := cr.ReadBytes()
			if err != nil {
				return nil, err
			}
			vals = append(vals, KV{Key: k, Value: v})
		}
		return &pointer{kind: pointerValues, vals: vals}, nil
	default:
		return nil, fmt.Errorf("hamt: unknown pointer map key %q", key)
	}
}
