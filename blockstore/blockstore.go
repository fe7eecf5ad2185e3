// Package blockstore provides content-addressed block storage used to back
// the HAMT/AMT state trees: a small Blockstore capability (Get/Put/Has) plus
// an in-memory implementation and a disk-backed LRU implementation adapted
// from the teacher's diskLRU cache in core/storage.go.
package blockstore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/synnergy-chain/actorcore/cid"
)

// ErrNotFound is returned by Get when no block exists for the given CID.
var ErrNotFound = errors.New("blockstore: block not found")

// Blockstore is the capability actor runtime state trees are built on: a
// content-addressed, write-once key/value store keyed by the Blake2b-256
// hash of its value.
type Blockstore interface {
	Get(c cid.Cid) ([]byte, error)
	Put(data []byte) (cid.Cid, error)
	Has(c cid.Cid) (bool, error)
}

// Memory is an in-memory Blockstore guarded by a mutex, the same shape the
// teacher uses for its in-process maps (see core/connection_pool.go).
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory Blockstore.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(c cid.Cid) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[c.KeyString()]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *Memory) Put(data []byte) (cid.Cid, error) {
	c, err := cid.NewFromBytes(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[c.KeyString()]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		m.data[c.KeyString()] = cp
	}
	return c, nil
}

func (m *Memory) Has(c cid.Cid) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[c.KeyString()]
	return ok, nil
}

// entry tracks an on-disk block's path, size and last-access time for LRU
// eviction, mirroring the teacher's diskEntry.
type entry struct {
	path string
	size int64
	at   time.Time
}

const defaultMaxEntries = 10_000

// Disk is a disk-backed Blockstore with in-memory LRU bookkeeping, adapted
// from the teacher's diskLRU cache (core/storage.go) to key entries by CID
// rather than an opaque cache tag.
type Disk struct {
	mu    sync.Mutex
	dir   string
	max   int
	index map[string]*entry
	order []*entry
}

// NewDisk wires a disk-backed Blockstore rooted at dir, creating it if
// necessary.
func NewDisk(dir string, maxEntries int) (*Disk, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Disk{
		dir:   dir,
		max:   maxEntries,
		index: make(map[string]*entry),
	}, nil
}

func (d *Disk) pathFor(key string) string {
	return filepath.Join(d.dir, encodeFilename(key))
}

func (d *Disk) Get(c cid.Cid) ([]byte, error) {
	key := c.KeyString()
	d.mu.Lock()
	ent, ok := d.index[key]
	if ok {
		ent.at = time.Now()
	}
	d.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(ent.path)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (d *Disk) Put(data []byte) (cid.Cid, error) {
	c, err := cid.NewFromBytes(data)
	if err != nil {
		return cid.Undef, err
	}
	key := c.KeyString()

	d.mu.Lock()
	defer d.mu.Unlock()
	if ent, ok := d.index[key]; ok {
		ent.at = time.Now()
		return c, nil
	}

	if len(d.index) >= d.max && len(d.order) > 0 {
		lru := 0
		for i, e := range d.order {
			if e.at.Before(d.order[lru].at) {
				lru = i
			}
		}
		oldest := d.order[lru]
		_ = os.Remove(oldest.path)
		for k, v := range d.index {
			if v == oldest {
				delete(d.index, k)
				break
			}
		}
		d.order = append(d.order[:lru], d.order[lru+1:]...)
	}

	p := d.pathFor(key)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return cid.Undef, err
	}
	ent := &entry{path: p, size: int64(len(data)), at: time.Now()}
	d.index[key] = ent
	d.order = append(d.order, ent)
	return c, nil
}

func (d *Disk) Has(c cid.Cid) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.index[c.KeyString()]
	return ok, nil
}

const hexDigits = "0123456789abcdef"

// encodeFilename hex-encodes a raw CID key so it is always a safe filename,
// regardless of multihash bytes.
func encodeFilename(key string) string {
	out := make([]byte, len(key)*2)
	for i := 0; i < len(key); i++ {
		out[i*2] = hexDigits[key[i]>>4]
		out[i*2+1] = hexDigits[key[i]&0xf]
	}
	return string(out)
}
