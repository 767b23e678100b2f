package snapshot

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
)

const bytesPerMB = 1024 * 1024

// Spool holds the snapshots taken by one execution. It charges each kept
// snapshot against a size limit and remembers every ref it put into the
// store, so that whatever a revert did not consume can be released.
type Spool struct {
	store Store
	limit int64

	mu   sync.Mutex
	used int64
	held map[Ref]int64
}

// NewSpool creates a spool over store limited to limitMB megabytes.
func NewSpool(store Store, limitMB int) *Spool {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Spool{
		store: store,
		limit: int64(limitMB) * bytesPerMB,
		held:  make(map[Ref]int64),
	}
}

// ErrOverLimit is returned by Keep when a snapshot does not fit.
var ErrOverLimit = core.Newf(core.KindUnavailable, "snapshot limit exceeded")

// Keep stores snap if it fits in the remaining space.
func (s *Spool) Keep(snap *filesystem.Snapshot) (Ref, error) {
	s.mu.Lock()
	if s.used+snap.Size > s.limit {
		remaining := s.limit - s.used
		s.mu.Unlock()
		return "", fmt.Errorf("%w: snapshot of %.2fMB, %.2fMB left", ErrOverLimit, mb(snap.Size), mb(remaining))
	}
	s.used += snap.Size
	s.mu.Unlock()

	ref, err := s.store.Put(snap)
	if err != nil {
		s.mu.Lock()
		s.used -= snap.Size
		s.mu.Unlock()
		return "", err
	}

	s.mu.Lock()
	s.held[ref] = snap.Size
	s.mu.Unlock()
	return ref, nil
}

// Get returns a held snapshot.
func (s *Spool) Get(ref Ref) (*filesystem.Snapshot, error) {
	s.mu.Lock()
	_, ok := s.held[ref]
	s.mu.Unlock()
	if !ok {
		return nil, core.Newf(core.KindUnavailable, "snapshot %s is not held", ref)
	}
	return s.store.Get(ref)
}

// Drop deletes ref from the store and frees its space. Dropping a ref that
// is not held is a no-op.
func (s *Spool) Drop(ref Ref) error {
	s.mu.Lock()
	size, ok := s.held[ref]
	if ok {
		delete(s.held, ref)
		s.used -= size
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.store.Delete(ref)
}

// Release drops every snapshot still held and returns the first error.
func (s *Spool) Release() error {
	s.mu.Lock()
	refs := make([]Ref, 0, len(s.held))
	for ref := range s.held {
		refs = append(refs, ref)
	}
	s.mu.Unlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })

	var first error
	for _, ref := range refs {
		if err := s.Drop(ref); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Held returns the number of snapshots currently kept.
func (s *Spool) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

// LimitMB returns the size limit.
func (s *Spool) LimitMB() float64 { return mb(s.limit) }

// UsedMB returns the size of the snapshots currently kept.
func (s *Spool) UsedMB() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mb(s.used)
}

// RemainingMB returns the space left.
func (s *Spool) RemainingMB() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mb(s.limit - s.used)
}

func mb(n int64) float64 {
	return float64(n) / bytesPerMB
}
