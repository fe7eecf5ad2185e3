package bitfield

import "testing"

func TestSetGetUnset(t *testing.T) {
	b := New()
	b.Set(5)
	b.Set(7)
	if !b.Get(5) || !b.Get(7) {
		t.Fatalf("expected 5 and 7 set")
	}
	if b.Get(6) {
		t.Fatalf("6 should not be set")
	}
	b.Unset(5)
	if b.Get(5) {
		t.Fatalf("5 should be unset")
	}
}

func TestPendingSetCancelsPendingUnset(t *testing.T) {
	b := NewFromSet([]uint64{3})
	b.Unset(3)
	b.Set(3)
	if !b.Get(3) {
		t.Fatalf("expected 3 to remain set after set-after-unset")
	}
}

func TestIterAscending(t *testing.T) {
	b := NewFromSet([]uint64{9, 1, 5, 1})
	got := b.Iter()
	want := []uint64{1, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("Iter() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Iter() = %v, want %v", got, want)
		}
	}
}

func TestRangesCoalesce(t *testing.T) {
	b := NewFromSet([]uint64{1, 2, 3, 10})
	r := b.Ranges()
	if len(r) != 2 {
		t.Fatalf("expected 2 ranges, got %v", r)
	}
	if r[0] != [2]uint64{1, 4} || r[1] != [2]uint64{10, 11} {
		t.Fatalf("unexpected ranges: %v", r)
	}
}

func TestUnionIntersectionDifference(t *testing.T) {
	a := NewFromSet([]uint64{1, 2, 3})
	b := NewFromSet([]uint64{2, 3, 4})

	u := Union(a, b)
	if u.Len() != 4 {
		t.Fatalf("Union len = %d, want 4", u.Len())
	}

	i := Intersection(a, b)
	if i.Len() != 2 || !i.Get(2) || !i.Get(3) {
		t.Fatalf("Intersection incorrect: %v", i.Iter())
	}

	d := Difference(a, b)
	if d.Len() != 1 || !d.Get(1) {
		t.Fatalf("Difference incorrect: %v", d.Iter())
	}
}

func TestSliceErrorsWhenShort(t *testing.T) {
	b := NewFromSet([]uint64{1, 2})
	if _, err := b.Slice(0, 5); err != ErrNotEnoughBits {
		t.Fatalf("expected ErrNotEnoughBits, got %v", err)
	}
	s, err := b.Slice(1, 1)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if !s.Get(2) || s.Len() != 1 {
		t.Fatalf("unexpected slice result: %v", s.Iter())
	}
}

func TestRLERoundTrip(t *testing.T) {
	b := NewFromSet([]uint64{0, 1, 2, 10, 11, 20})
	encoded := b.MarshalRLE()
	decoded, err := UnmarshalRLE(encoded)
	if err != nil {
		t.Fatalf("UnmarshalRLE: %v", err)
	}
	if decoded.Len() != b.Len() {
		t.Fatalf("length mismatch: got %d want %d", decoded.Len(), b.Len())
	}
	for _, v := range b.Iter() {
		if !decoded.Get(v) {
			t.Fatalf("decoded missing member %d", v)
		}
	}
}

func TestRLERoundTripNotStartingAtZero(t *testing.T) {
	b := NewFromSet([]uint64{5, 6, 7, 100})
	encoded := b.MarshalRLE()
	decoded, err := UnmarshalRLE(encoded)
	if err != nil {
		t.Fatalf("UnmarshalRLE: %v", err)
	}
	want := b.Iter()
	got := decoded.Iter()
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestRLEEmpty(t *testing.T) {
	b := New()
	encoded := b.MarshalRLE()
	decoded, err := UnmarshalRLE(encoded)
	if err != nil {
		t.Fatalf("UnmarshalRLE: %v", err)
	}
	if decoded.Len() != 0 {
		t.Fatalf("expected empty decode, got %v", decoded.Iter())
	}
}

func TestUnmarshalRLERejectsSubsequentZeroRun(t *testing.T) {
	w := &bitWriter{}
	w.writeBit(1)
	w.writeVarint(3) // first run: 3 set bits
	w.writeVarint(0) // malformed: zero-length run after the first
	w.writeVarint(5) // more real data follows the malformed zero run
	_, err := UnmarshalRLE(w.buf)
	if err != ErrRLEZeroRun {
		t.Fatalf("expected ErrRLEZeroRun, got %v", err)
	}
}

func TestLazyMerge(t *testing.T) {
	a := NewFromSet([]uint64{1, 3, 5})
	b := NewFromSet([]uint64{2, 3, 4})
	next := LazyMerge(a, b)
	var got []uint64
	for {
		v, ok := next()
		if !ok {
			break
		}
		got = append(got, v)
	}
	want := []uint64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("LazyMerge() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("LazyMerge() = %v, want %v", got, want)
		}
	}
}
