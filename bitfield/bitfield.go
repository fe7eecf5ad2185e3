// Package bitfield implements a sparse set of non-negative integers backed
// by a vector of disjoint, ascending, half-open ranges plus two buffered
// edit sets, with an RLE+ binary codec.
package bitfield

import (
	"errors"
	"sort"
)

var (
	ErrNotEnoughBits = errors.New("bitfield: not enough set bits for slice")
	ErrRLEZeroRun    = errors.New("bitfield: zero-length run in RLE+ stream")
	ErrRLEOverflow   = errors.New("bitfield: run length overflows bounded universe")
)

type run struct {
	start, end uint64 // half-open [start, end)
}

// BitField is a set of non-negative integers. Reads through Iter/Ranges (and
// First, Len, Copy) materialize ranges ∪ pending_set \ pending_unset and
// clear the pending buffers; Get answers from the buffers and ranges without
// materializing.
type BitField struct {
	ranges       []run
	pendingSet   map[uint64]struct{}
	pendingUnset map[uint64]struct{}
}

// New returns an empty BitField.
func New() *BitField {
	return &BitField{
		pendingSet:   make(map[uint64]struct{}),
		pendingUnset: make(map[uint64]struct{}),
	}
}

// NewFromSet builds a BitField containing exactly the given values.
func NewFromSet(vals []uint64) *BitField {
	b := New()
	for _, v := range vals {
		b.Set(v)
	}
	return b
}

// All returns a BitField containing every integer in [0, max).
func All(max uint64) *BitField {
	b := New()
	if max > 0 {
		b.ranges = []run{{0, max}}
	}
	return b
}

// Copy returns a deep clone, with pending buffers materialized into ranges.
func (b *BitField) Copy() *BitField {
	b.flush()
	out := New()
	out.ranges = append([]run(nil), b.ranges...)
	return out
}

// Set adds i to the set. It cancels any pending unset of i.
func (b *BitField) Set(i uint64) {
	delete(b.pendingUnset, i)
	if b.inRanges(i) {
		return
	}
	b.pendingSet[i] = struct{}{}
}

// Unset removes i from the set. It cancels any pending set of i.
func (b *BitField) Unset(i uint64) {
	delete(b.pendingSet, i)
	if b.inRanges(i) {
		b.pendingUnset[i] = struct{}{}
	}
}

// Get reports whether i is a member, consulting the pending buffers before
// binary-searching the committed ranges.
func (b *BitField) Get(i uint64) bool {
	if _, ok := b.pendingSet[i]; ok {
		return true
	}
	if _, ok := b.pendingUnset[i]; ok {
		return false
	}
	return b.inRanges(i)
}

func (b *BitField) inRanges(i uint64) bool {
	n := len(b.ranges)
	idx := sort.Search(n, func(k int) bool { return b.ranges[k].end > i })
	if idx >= n {
		return false
	}
	return b.ranges[idx].start <= i && i < b.ranges[idx].end
}

// flush materializes ranges ∪ pending_set \ pending_unset into a canonical
// disjoint ascending run list and clears the pending buffers.
func (b *BitField) flush() {
	if len(b.pendingSet) == 0 && len(b.pendingUnset) == 0 {
		return
	}
	vals := make(map[uint64]struct{})
	for _, r := range b.ranges {
		for v := r.start; v < r.end; v++ {
			vals[v] = struct{}{}
		}
	}
	for v := range b.pendingSet {
		vals[v] = struct{}{}
	}
	for v := range b.pendingUnset {
		delete(vals, v)
	}
	sorted := make([]uint64, 0, len(vals))
	for v := range vals {
		sorted = append(sorted, v)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var out []run
	for _, v := range sorted {
		if len(out) > 0 && out[len(out)-1].end == v {
			out[len(out)-1].end = v + 1
		} else {
			out = append(out, run{v, v + 1})
		}
	}
	b.ranges = out
	b.pendingSet = make(map[uint64]struct{})
	b.pendingUnset = make(map[uint64]struct{})
}

// Ranges returns the disjoint ascending half-open ranges covering the
// effective set, clearing pending edits.
func (b *BitField) Ranges() []([2]uint64) {
	b.flush()
	out := make([][2]uint64, len(b.ranges))
	for i, r := range b.ranges {
		out[i] = [2]uint64{r.start, r.end}
	}
	return out
}

// Iter yields every set member in strictly ascending order, clearing
// pending edits.
func (b *BitField) Iter() []uint64 {
	b.flush()
	var out []uint64
	for _, r := range b.ranges {
		for v := r.start; v < r.end; v++ {
			out = append(out, v)
		}
	}
	return out
}

// BoundedIter yields set members strictly less than max.
func (b *BitField) BoundedIter(max uint64) []uint64 {
	var out []uint64
	for _, v := range b.Iter() {
		if v >= max {
			break
		}
		out = append(out, v)
	}
	return out
}

// First returns the smallest set member, if any.
func (b *BitField) First() (uint64, bool) {
	b.flush()
	if len(b.ranges) == 0 {
		return 0, false
	}
	return b.ranges[0].start, true
}

// Len returns the number of set members.
func (b *BitField) Len() uint64 {
	b.flush()
	var n uint64
	for _, r := range b.ranges {
		n += r.end - r.start
	}
	return n
}

// Slice skips `start` set bits then takes `length` set bits, erroring if
// fewer than start+length bits are set.
func (b *BitField) Slice(start, length uint64) (*BitField, error) {
	all := b.Iter()
	if uint64(len(all)) < start+length {
		return nil, ErrNotEnoughBits
	}
	return NewFromSet(all[start : start+length]), nil
}

// Union (eager |) returns a new BitField with every member of either input.
func Union(a, b *BitField) *BitField {
	out := a.Copy()
	for _, v := range b.Iter() {
		out.Set(v)
	}
	out.flush()
	return out
}

// Intersection (eager &) returns a new BitField with members in both inputs.
func Intersection(a, b *BitField) *BitField {
	bSet := make(map[uint64]struct{})
	for _, v := range b.Iter() {
		bSet[v] = struct{}{}
	}
	out := New()
	for _, v := range a.Iter() {
		if _, ok := bSet[v]; ok {
			out.Set(v)
		}
	}
	return out
}

// Difference (eager -) returns a new BitField with members of a not in b.
func Difference(a, b *BitField) *BitField {
	bSet := make(map[uint64]struct{})
	for _, v := range b.Iter() {
		bSet[v] = struct{}{}
	}
	out := New()
	for _, v := range a.Iter() {
		if _, ok := bSet[v]; !ok {
			out.Set(v)
		}
	}
	return out
}

// LazyMerge returns a function yielding the merged ascending sequence of a
// and b without materializing either fully up-front.
func LazyMerge(a, b *BitField) func() (uint64, bool) {
	av, bv := a.Iter(), b.Iter()
	i, j := 0, 0
	var last uint64
	first := true
	return func() (uint64, bool) {
		for i < len(av) || j < len(bv) {
			var v uint64
			switch {
			case i >= len(av):
				v = bv[j]
				j++
			case j >= len(bv):
				v = av[i]
				i++
			case av[i] < bv[j]:
				v = av[i]
				i++
			default:
				v = bv[j]
				j++
			}
			if !first && v == last {
				continue
			}
			first = false
			last = v
			return v, true
		}
		return 0, false
	}
}
