// Package stateadapter defines the capability a client can use to
// persist small pieces of its own state — most notably the highest
// address index consumed per wallet chain, so a restarted process
// doesn't re-scan gap windows it already resolved. The shapes here are
// adapted from the teacher's pkg/disksyncmap: a sync map that spills to
// disk, generalized from its Stringer-keyed records to raw
// string-keyed byte blobs so callers can store arbitrary state without
// a per-type disk format.
package stateadapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tangle-go/client/pkg/syncmap"
)

// Adapter is the capability a Client optionally persists state
// through. Load reports (nil, false, nil) for a key with no saved
// value, never an error.
type Adapter interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, data []byte) error
	Delete(key string) error
}

// memoryAdapter is the zero-configuration default: state lives only
// for the process lifetime, grounded on the teacher's plain SyncMap.
// syncmap.SyncMap deliberately has no delete support (mirroring the
// teacher's own choice there), so Delete records a tombstone in a
// companion map instead of removing the key; Save clears the tombstone
// again, since SyncMap.Store always overwrites.
type memoryAdapter struct {
	m       *syncmap.SyncMap[string, []byte]
	deleted *syncmap.SyncMap[string, bool]
}

// NewMemoryAdapter builds the in-memory default Adapter.
func NewMemoryAdapter() Adapter {
	return &memoryAdapter{
		m:       syncmap.NewSyncMap[string, []byte](),
		deleted: syncmap.NewSyncMap[string, bool](),
	}
}

func (a *memoryAdapter) Load(key string) ([]byte, bool, error) {
	if !a.m.Has(key) {
		return nil, false, nil
	}
	if a.deleted.Has(key) && a.deleted.Get(key) {
		return nil, false, nil
	}
	return a.m.Get(key), true, nil
}

func (a *memoryAdapter) Save(key string, data []byte) error {
	a.m.Store(key, data)
	a.deleted.Store(key, false)
	return nil
}

func (a *memoryAdapter) Delete(key string) error {
	a.deleted.Store(key, true)
	return nil
}

// diskAdapter persists each key as one file under baseDir, the same
// one-key-one-file layout as DiskSyncMap.
type diskAdapter struct {
	mem     *memoryAdapter
	baseDir string
}

// NewDiskAdapter builds an Adapter that additionally spills every Save
// to a file under baseDir, created if absent.
func NewDiskAdapter(baseDir string) (Adapter, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return &diskAdapter{
		mem:     &memoryAdapter{m: syncmap.NewSyncMap[string, []byte](), deleted: syncmap.NewSyncMap[string, bool]()},
		baseDir: baseDir,
	}, nil
}

func (a *diskAdapter) keyPath(key string) string {
	return filepath.Join(a.baseDir, key)
}

func (a *diskAdapter) Load(key string) ([]byte, bool, error) {
	if v, ok, _ := a.mem.Load(key); ok {
		return v, true, nil
	}
	raw, err := os.ReadFile(a.keyPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading state file %s: %w", key, err)
	}
	a.mem.Save(key, raw)
	return raw, true, nil
}

func (a *diskAdapter) Save(key string, data []byte) error {
	if err := os.WriteFile(a.keyPath(key), data, 0640); err != nil {
		return fmt.Errorf("writing state file %s: %w", key, err)
	}
	return a.mem.Save(key, data)
}

func (a *diskAdapter) Delete(key string) error {
	if err := os.Remove(a.keyPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting state file %s: %w", key, err)
	}
	return a.mem.Delete(key)
}
