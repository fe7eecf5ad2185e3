package adt

import (
	"testing"

	"github.com/synnergy-chain/actorcore/abi"
	"github.com/synnergy-chain/actorcore/address"
	"github.com/synnergy-chain/actorcore/blockstore"
)

func testAddr(id uint64) address.Address { return address.NewID(id) }

func TestBalanceTableAddAndSubtract(t *testing.T) {
	store := blockstore.NewMemory()
	bt := NewBalanceTable(store)
	a := testAddr(100)

	if err := bt.AddBalance(a, abi.NewTokenAmount(50)); err != nil {
		t.Fatalf("AddBalance: %v", err)
	}
	bal, err := bt.Get(a)
	if err != nil || bal.String() != "50" {
		t.Fatalf("Get() = %s, %v; want 50", bal, err)
	}

	if err := bt.MustSubtract(a, abi.NewTokenAmount(20)); err != nil {
		t.Fatalf("MustSubtract: %v", err)
	}
	bal, _ = bt.Get(a)
	if bal.String() != "30" {
		t.Fatalf("Get() after subtract = %s, want 30", bal)
	}

	if err := bt.MustSubtract(a, abi.NewTokenAmount(1000)); err != ErrBelowMinimum {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
}

func TestBalanceTableSubtractWithMinimum(t *testing.T) {
	store := blockstore.NewMemory()
	bt := NewBalanceTable(store)
	a := testAddr(7)
	if err := bt.Set(a, abi.NewTokenAmount(100)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	deducted, err := bt.SubtractWithMinimum(a, abi.NewTokenAmount(80), abi.NewTokenAmount(50))
	if err != nil {
		t.Fatalf("SubtractWithMinimum: %v", err)
	}
	if deducted.String() != "50" {
		t.Fatalf("deducted = %s, want 50 (clamped by floor)", deducted)
	}
	bal, _ := bt.Get(a)
	if bal.String() != "50" {
		t.Fatalf("balance = %s, want 50", bal)
	}
}

func TestBalanceTableFlushAndLoad(t *testing.T) {
	store := blockstore.NewMemory()
	bt := NewBalanceTable(store)
	a := testAddr(1)
	if err := bt.Set(a, abi.NewTokenAmount(999)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	root, err := bt.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	loaded, err := LoadBalanceTable(store, root)
	if err != nil {
		t.Fatalf("LoadBalanceTable: %v", err)
	}
	bal, err := loaded.Get(a)
	if err != nil || bal.String() != "999" {
		t.Fatalf("Get() after reload = %s, %v", bal, err)
	}
}

func TestSetMultimapPutHasForEach(t *testing.T) {
	store := blockstore.NewMemory()
	m := NewSetMultimap(store)
	epoch := abi.ChainEpoch(100)
	if err := m.Put(epoch, abi.DealID(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := m.Put(epoch, abi.DealID(2)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	has, err := m.Has(epoch, abi.DealID(1))
	if err != nil || !has {
		t.Fatalf("Has(1) = %v, %v", has, err)
	}
	if has, _ := m.Has(epoch, abi.DealID(3)); has {
		t.Fatalf("Has(3) should be false")
	}

	var seen []abi.DealID
	err = m.ForEach(epoch, func(id abi.DealID) error {
		seen = append(seen, id)
		return nil
	})
	if err != nil || len(seen) != 2 {
		t.Fatalf("ForEach = %v, %v", seen, err)
	}

	if err := m.RemoveAll(epoch); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if has, _ := m.Has(epoch, abi.DealID(1)); has {
		t.Fatalf("expected set to be removed")
	}
}

func TestMultimapAppendForEach(t *testing.T) {
	store := blockstore.NewMemory()
	m := NewMultimap(store)
	key := []byte("lane-0")
	for i := 0; i < 3; i++ {
		if _, err := m.Append(key, []byte{byte(i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	var vals []byte
	err := m.ForEach(key, func(idx uint64, val []byte) error {
		vals = append(vals, val...)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if string(vals) != string([]byte{0, 1, 2}) {
		t.Fatalf("ForEach order = %v, want [0 1 2]", vals)
	}
}
