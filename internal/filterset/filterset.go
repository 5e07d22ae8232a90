// Package filterset deduplicates parsed filters across documents and indexes
// them for the optimizer.
//
// A FilterSet is built incrementally (Add may be called from several
// goroutines) and then frozen with Finalize. After Finalize the filters live
// in one append-only arena sorted by fingerprint; the grouping index stores
// arena indices only.
package filterset

import (
	"errors"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/bnema/contentblock-compiler/internal/models"
)

const numShards = 16

// ErrFrozen is returned by Add after Finalize
var ErrFrozen = errors.New("filter set is frozen")

// FilterSet owns the fingerprint map and the grouping index of one compile
type FilterSet struct {
	mu     sync.RWMutex // guards frozen; shards have their own locks
	frozen bool
	shards [numShards]shard

	filters   []models.Filter
	prints    []Fingerprint
	groups    map[string][]int
	groupKeys []string
	cancelled int
}

// A filter and its group key always hash to the same shard, so the
// fingerprint map and the group lists are updated under one lock.
type shard struct {
	mu     sync.Mutex
	byFP   map[Fingerprint]models.Filter
	groups map[string][]Fingerprint
	bad    map[Fingerprint]struct{}
}

// New creates an empty filter set
func New() *FilterSet {
	s := &FilterSet{}
	for i := range s.shards {
		s.shards[i] = shard{
			byFP:   make(map[Fingerprint]models.Filter),
			groups: make(map[string][]Fingerprint),
			bad:    make(map[Fingerprint]struct{}),
		}
	}
	return s
}

// Add inserts a filter. It returns false when an identical filter is already
// present; the copy with the earliest source position is kept so the result
// does not depend on insertion order. Badfilter entries are recorded and
// cancel their target at Finalize.
func (s *FilterSet) Add(f models.Filter) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frozen {
		return false, ErrFrozen
	}

	fp := FingerprintOf(f)
	key := GroupKey(f)
	sh := &s.shards[xxhash.Sum64String(key)%numShards]

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if f.Kind == models.KindNetwork && f.Network.Options.BadFilter {
		sh.bad[fp] = struct{}{}
		return true, nil
	}

	if existing, ok := sh.byFP[fp]; ok {
		if f.Source().Less(existing.Source()) {
			sh.byFP[fp] = f
		}
		return false, nil
	}
	sh.byFP[fp] = f
	sh.groups[key] = append(sh.groups[key], fp)
	return true, nil
}

// Finalize freezes the set, applies badfilter cancellations and builds the
// arena and grouping index. Calling it twice is a no-op.
func (s *FilterSet) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return
	}
	s.frozen = true

	type entry struct {
		fp Fingerprint
		f  models.Filter
	}
	var all []entry
	for i := range s.shards {
		sh := &s.shards[i]
		for fp, f := range sh.byFP {
			if _, bad := sh.bad[fp]; bad {
				s.cancelled++
				continue
			}
			all = append(all, entry{fp: fp, f: f})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].fp < all[j].fp })

	index := make(map[Fingerprint]int, len(all))
	s.filters = make([]models.Filter, len(all))
	s.prints = make([]Fingerprint, len(all))
	for i, e := range all {
		index[e.fp] = i
		s.filters[i] = e.f
		s.prints[i] = e.fp
	}

	s.groups = make(map[string][]int)
	for i := range s.shards {
		for key, fps := range s.shards[i].groups {
			var idx []int
			for _, fp := range fps {
				if n, ok := index[fp]; ok {
					idx = append(idx, n)
				}
			}
			if len(idx) == 0 {
				continue
			}
			sort.Ints(idx)
			s.groups[key] = idx
			s.groupKeys = append(s.groupKeys, key)
		}
	}
	sort.Strings(s.groupKeys)

	for i := range s.shards {
		s.shards[i].byFP = nil
		s.shards[i].groups = nil
		s.shards[i].bad = nil
	}
}

// Len returns the number of distinct filters. Only valid after Finalize.
func (s *FilterSet) Len() int {
	return len(s.filters)
}

// Filters returns the arena, sorted by fingerprint
func (s *FilterSet) Filters() []models.Filter {
	return s.filters
}

// Fingerprint returns the fingerprint of the filter at arena index i
func (s *FilterSet) Fingerprint(i int) Fingerprint {
	return s.prints[i]
}

// GroupKeys returns the grouping keys in sorted order
func (s *FilterSet) GroupKeys() []string {
	return s.groupKeys
}

// Group returns the arena indices sharing a grouping key
func (s *FilterSet) Group(key string) []int {
	return s.groups[key]
}

// Cancelled returns how many filters a badfilter removed
func (s *FilterSet) Cancelled() int {
	return s.cancelled
}
