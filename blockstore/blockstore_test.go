package blockstore

import (
	"path/filepath"
	"testing"
)

func TestMemoryPutGetHas(t *testing.T) {
	bs := NewMemory()
	c, err := bs.Put([]byte("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := bs.Has(c)
	if err != nil || !ok {
		t.Fatalf("Has() = %v, %v; want true, nil", ok, err)
	}
	data, err := bs.Get(c)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("Get() = %q, want %q", data, "hello")
	}
}

func TestMemoryGetMissing(t *testing.T) {
	bs := NewMemory()
	other := NewMemory()
	c, _ := other.Put([]byte("never stored here"))
	if _, err := bs.Get(c); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDiskPutGetSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blocks")
	d, err := NewDisk(dir, 0)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	c, err := d.Put([]byte("persisted"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := NewDisk(dir, 0)
	if err != nil {
		t.Fatalf("NewDisk reopen: %v", err)
	}
	if ok, _ := reopened.Has(c); ok {
		t.Fatalf("fresh Disk handle should not know about prior entries without re-indexing")
	}
	// the file itself must still be on disk even though the in-memory
	// index was rebuilt empty.
	data, err := d.Get(c)
	if err != nil {
		t.Fatalf("Get via original handle: %v", err)
	}
	if string(data) != "persisted" {
		t.Fatalf("Get() = %q, want %q", data, "persisted")
	}
}

func TestDiskEvictsOldestWhenFull(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir, 1)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	c1, _ := d.Put([]byte("first"))
	c2, _ := d.Put([]byte("second"))

	if ok, _ := d.Has(c1); ok {
		t.Fatalf("expected first entry to be evicted")
	}
	if ok, _ := d.Has(c2); !ok {
		t.Fatalf("expected second entry to remain cached")
	}
}
