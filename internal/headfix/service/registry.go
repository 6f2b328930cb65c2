package service

import (
	"sync"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

// Handle refers to one animal record in a Registry. The zero Handle refers
// to no animal.
type Handle struct {
	tag types.TagID
	idx int // position + 1
}

func (h Handle) Tag() types.TagID { return h.tag }

func (h Handle) Valid() bool { return h.idx > 0 }

// Registry maps tags to per-animal counters for the life of the process.
// Records are never removed. Counter updates are increment-and-fetch under
// the registry lock, so snapshots taken from other goroutines (status API,
// periodic export) see consistent rows.
type Registry struct {
	mu      sync.RWMutex
	byTag   map[types.TagID]int
	animals []types.Animal
}

func NewRegistry() *Registry {
	return &Registry{byTag: make(map[types.TagID]int)}
}

// Resolve returns the handle for tag, creating a zeroed record on first
// sighting. created reports whether a record was added.
func (r *Registry) Resolve(tag types.TagID) (h Handle, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byTag[tag]; ok {
		return Handle{tag: tag, idx: idx + 1}, false
	}
	r.animals = append(r.animals, types.Animal{Tag: tag})
	idx := len(r.animals) - 1
	r.byTag[tag] = idx
	return Handle{tag: tag, idx: idx + 1}, true
}

// Get returns a copy of the record behind h.
func (r *Registry) Get(h Handle) (types.Animal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.owns(h) {
		return types.Animal{}, false
	}
	return r.animals[h.idx-1], true
}

func (r *Registry) AddEntry(h Handle) int {
	return r.update(h, func(a *types.Animal) int {
		a.Entries++
		return a.Entries
	})
}

// EntranceRewardAvailable reports whether the animal is still below max
// entrance rewards.
func (r *Registry) EntranceRewardAvailable(h Handle, max int) bool {
	a, ok := r.Get(h)
	return ok && a.EntranceRewards < max
}

// GrantEntranceReward increments the entrance reward count unless it has
// already reached max, reporting whether a reward may be dispensed.
func (r *Registry) GrantEntranceReward(h Handle, max int) bool {
	granted := false
	r.update(h, func(a *types.Animal) int {
		if a.EntranceRewards < max {
			a.EntranceRewards++
			granted = true
		}
		return a.EntranceRewards
	})
	return granted
}

func (r *Registry) AddHeadFix(h Handle) int {
	return r.update(h, func(a *types.Animal) int {
		a.HeadFixes++
		return a.HeadFixes
	})
}

func (r *Registry) AddHeadFixRewards(h Handle, n int) int {
	return r.update(h, func(a *types.Animal) int {
		if n > 0 {
			a.HeadFixedRewards += n
		}
		return a.HeadFixedRewards
	})
}

// Snapshot lists every known animal in first-sighting order.
func (r *Registry) Snapshot() []types.Animal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Animal, len(r.animals))
	copy(out, r.animals)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.animals)
}

func (r *Registry) update(h Handle, fn func(a *types.Animal) int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.owns(h) {
		return 0
	}
	return fn(&r.animals[h.idx-1])
}

func (r *Registry) owns(h Handle) bool {
	return h.Valid() && h.idx <= len(r.animals) && r.animals[h.idx-1].Tag == h.tag
}
