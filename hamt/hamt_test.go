package hamt

import (
	"fmt"
	"testing"

	"github.com/synnergy-chain/actorcore/blockstore"
)

func TestSetGetDelete(t *testing.T) {
	store := blockstore.NewMemory()
	n := NewNode(0)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		val := []byte(fmt.Sprintf("val-%03d", i))
		if err := n.Set(store, key, val); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		want := fmt.Sprintf("val-%03d", i)
		got, ok, err := n.Get(store, key)
		if err != nil || !ok {
			t.Fatalf("Get(%s) = %v, %v, %v", key, got, ok, err)
		}
		if string(got) != want {
			t.Fatalf("Get(%s) = %q, want %q", key, got, want)
		}
	}

	for i := 0; i < 25; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		removed, err := n.Delete(store, key)
		if err != nil || !removed {
			t.Fatalf("Delete(%s) = %v, %v", key, removed, err)
		}
	}
	for i := 0; i < 25; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		if _, ok, _ := n.Get(store, key); ok {
			t.Fatalf("expected %s to be deleted", key)
		}
	}
	for i := 25; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		if _, ok, _ := n.Get(store, key); !ok {
			t.Fatalf("expected %s to remain", key)
		}
	}
}

func TestOverwriteExistingKey(t *testing.T) {
	store := blockstore.NewMemory()
	n := NewNode(0)
	if err := n.Set(store, []byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := n.Set(store, []byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := n.Get(store, []byte("k"))
	if err != nil || !ok || string(got) != "v2" {
		t.Fatalf("Get() = %q, %v, %v; want v2", got, ok, err)
	}
}

func TestForEachVisitsAll(t *testing.T) {
	store := blockstore.NewMemory()
	n := NewNode(0)
	want := map[string]string{}
	for i := 0; i < 30; i++ {
		key := fmt.Sprintf("item-%02d", i)
		val := fmt.Sprintf("payload-%02d", i)
		want[key] = val
		if err := n.Set(store, []byte(key), []byte(val)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	got := map[string]string{}
	err := n.ForEach(store, func(key, val []byte) error {
		got[string(key)] = string(val)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("ForEach visited %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("entry %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestFlushAndLoadRoundTrip(t *testing.T) {
	store := blockstore.NewMemory()
	n := NewNode(0)
	for i := 0; i < 40; i++ {
		key := []byte(fmt.Sprintf("rt-%02d", i))
		val := []byte(fmt.Sprintf("val-%02d", i))
		if err := n.Set(store, key, val); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	root, err := n.Flush(store)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	loaded, err := LoadNode(store, root, 0)
	if err != nil {
		t.Fatalf("LoadNode: %v", err)
	}
	for i := 0; i < 40; i++ {
		key := []byte(fmt.Sprintf("rt-%02d", i))
		want := fmt.Sprintf("val-%02d", i)
		got, ok, err := loaded.Get(store, key)
		if err != nil || !ok || string(got) != want {
			t.Fatalf("Get(%s) after reload = %q, %v, %v; want %q", key, got, ok, err, want)
		}
	}
}

func TestFlushIsDeterministic(t *testing.T) {
	store := blockstore.NewMemory()
	a := NewNode(0)
	b := NewNode(0)
	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("det-%02d", i))
		val := []byte(fmt.Sprintf("val-%02d", i))
		if err := a.Set(store, key, val); err != nil {
			t.Fatalf("Set a: %v", err)
		}
		if err := b.Set(store, key, val); err != nil {
			t.Fatalf("Set b: %v", err)
		}
	}
	rootA, err := a.Flush(store)
	if err != nil {
		t.Fatalf("Flush a: %v", err)
	}
	rootB, err := b.Flush(store)
	if err != nil {
		t.Fatalf("Flush b: %v", err)
	}
	if !rootA.Equals(rootB) {
		t.Fatalf("expected identical insert order to produce identical root CIDs: %s != %s", rootA, rootB)
	}
}

func TestFlushIsDeterministicAcrossInsertOrder(t *testing.T) {
	store := blockstore.NewMemory()
	forward := NewNode(0)
	reverse := NewNode(0)
	n := 20
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("det-%02d", i))
		val := []byte(fmt.Sprintf("val-%02d", i))
		if err := forward.Set(store, key, val); err != nil {
			t.Fatalf("Set forward: %v", err)
		}
	}
	for i := n - 1; i >= 0; i-- {
		key := []byte(fmt.Sprintf("det-%02d", i))
		val := []byte(fmt.Sprintf("val-%02d", i))
		if err := reverse.Set(store, key, val); err != nil {
			t.Fatalf("Set reverse: %v", err)
		}
	}
	rootForward, err := forward.Flush(store)
	if err != nil {
		t.Fatalf("Flush forward: %v", err)
	}
	rootReverse, err := reverse.Flush(store)
	if err != nil {
		t.Fatalf("Flush reverse: %v", err)
	}
	if !rootForward.Equals(rootReverse) {
		t.Fatalf("expected reverse insert order to produce identical root CID: %s != %s", rootForward, rootReverse)
	}
}
