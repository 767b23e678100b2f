package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
)

// Ref identifies a stored snapshot.
type Ref string

// Store keeps snapshots between execution and revert.
type Store interface {
	Put(snap *filesystem.Snapshot) (Ref, error)
	Get(ref Ref) (*filesystem.Snapshot, error)
	Delete(ref Ref) error
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	snaps  map[Ref]*filesystem.Snapshot
	nextID int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[Ref]*filesystem.Snapshot)}
}

// Put implements Store
func (s *MemoryStore) Put(snap *filesystem.Snapshot) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ref := Ref(fmt.Sprintf("mem-%d", s.nextID))
	s.snaps[ref] = snap
	return ref, nil
}

// Get implements Store
func (s *MemoryStore) Get(ref Ref) (*filesystem.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[ref]
	if !ok {
		return nil, core.Newf(core.KindUnavailable, "snapshot %s not found", ref)
	}
	return snap, nil
}

// Delete implements Store
func (s *MemoryStore) Delete(ref Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, ref)
	return nil
}

// Len returns the number of snapshots held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

// DirStore spools snapshots as JSON files into a directory on the host
// filesystem, keeping large deletes out of process memory.
type DirStore struct {
	mu     sync.Mutex
	dir    string
	prefix string
	nextID int
}

// DefaultDir returns $XDG_STATE_HOME/fsbatch/snapshots.
func DefaultDir() string {
	return filepath.Join(xdg.StateHome, "fsbatch", "snapshots")
}

// NewDirStore creates dir if needed and returns a store writing into it.
func NewDirStore(dir string) (*DirStore, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	return &DirStore{
		dir:    dir,
		prefix: fmt.Sprintf("%d", os.Getpid()),
	}, nil
}

// Dir returns the spool directory.
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) file(ref Ref) string {
	return filepath.Join(s.dir, string(ref)+".json")
}

// Put implements Store
func (s *DirStore) Put(snap *filesystem.Snapshot) (Ref, error) {
	s.mu.Lock()
	s.nextID++
	ref := Ref(fmt.Sprintf("%s-%d", s.prefix, s.nextID))
	s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot of %s: %w", snap.Path, err)
	}
	if err := os.WriteFile(s.file(ref), data, 0600); err != nil {
		return "", fmt.Errorf("failed to write snapshot of %s: %w", snap.Path, err)
	}
	return ref, nil
}

// Get implements Store
func (s *DirStore) Get(ref Ref) (*filesystem.Snapshot, error) {
	data, err := os.ReadFile(s.file(ref))
	if err != nil {
		return nil, core.Wrap(err, core.KindUnavailable, "snapshot", string(ref))
	}
	var snap filesystem.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", ref, err)
	}
	return &snap, nil
}

// Delete implements Store
func (s *DirStore) Delete(ref Ref) error {
	err := os.Remove(s.file(ref))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
