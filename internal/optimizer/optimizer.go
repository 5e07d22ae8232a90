// Package optimizer shrinks a frozen filter set without changing what it
// matches: filters that differ only in domain scope are merged, filters whose
// scope is covered by a sibling are dropped, and cosmetic exceptions are
// folded into the hide rules they target.
//
// Every step works on groups sorted by fingerprint and uses set operations
// only, so the output does not depend on the order filters were added.
package optimizer

import (
	"sort"

	"github.com/bnema/contentblock-compiler/internal/filterset"
	"github.com/bnema/contentblock-compiler/internal/models"
	"github.com/bnema/contentblock-compiler/internal/scope"
)

// Optimizer merges and prunes filters
type Optimizer struct {
	stats Stats
}

// Stats tracks optimization statistics
type Stats struct {
	Input    int
	Merged   int // filters absorbed into a merged sibling
	Subsumed int // filters dropped because a sibling covers them
	Folded   int // cosmetic exceptions folded into hide rules
	Hidden   int // hide rules removed entirely by an exception
	Output   int
}

// New creates a new optimizer
func New() *Optimizer {
	return &Optimizer{}
}

// Stats returns optimization statistics
func (o *Optimizer) Stats() Stats {
	return o.stats
}

// Optimize returns the optimized filters sorted by fingerprint. The set is
// finalized first if needed.
func (o *Optimizer) Optimize(set *filterset.FilterSet) []models.Filter {
	set.Finalize()
	arena := set.Filters()
	o.stats.Input += len(arena)

	var out []models.Filter
	for _, key := range set.GroupKeys() {
		idx := set.Group(key)
		members := make([]models.Filter, len(idx))
		for i, n := range idx {
			members[i] = arena[n]
		}
		out = append(out, o.optimizeGroup(members)...)
	}

	sortByFingerprint(out)
	o.stats.Output += len(out)
	return out
}

// optimizeGroup runs merge, subsumption and folding on filters sharing a
// grouping key
func (o *Optimizer) optimizeGroup(members []models.Filter) []models.Filter {
	merged := o.mergeDomains(members)
	pruned := o.dropSubsumed(merged)
	return o.foldCosmeticExceptions(pruned)
}

// mergeDomains merges filters equal in everything but their domain scope.
// Members with the same exclusion list are merged by union of their include
// lists (an unrestricted member absorbs the rest). Unrestricted results are
// then merged by intersecting their exclusions.
func (o *Optimizer) mergeDomains(members []models.Filter) []models.Filter {
	byKey := make(map[string][]models.Filter)
	var keys []string
	for _, f := range members {
		k := filterset.MergeKey(f)
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], f)
	}
	sort.Strings(keys)

	var out []models.Filter
	for _, k := range keys {
		same := byKey[k]
		if len(same) == 1 {
			out = append(out, same[0])
			continue
		}

		byExclusion := make(map[string][]models.Filter)
		var exKeys []string
		for _, f := range same {
			_, exc := f.Domains()
			ek := models.JoinDomains(nil, exc, "|")
			if _, ok := byExclusion[ek]; !ok {
				exKeys = append(exKeys, ek)
			}
			byExclusion[ek] = append(byExclusion[ek], f)
		}
		sort.Strings(exKeys)

		var partial []models.Filter
		for _, ek := range exKeys {
			partial = append(partial, o.union(byExclusion[ek]))
		}

		var unrestricted, restricted []models.Filter
		for _, f := range partial {
			if scope.Of(f).Unrestricted() {
				unrestricted = append(unrestricted, f)
			} else {
				restricted = append(restricted, f)
			}
		}
		if len(unrestricted) > 1 {
			scopes := make([]scope.Scope, len(unrestricted))
			for i, f := range unrestricted {
				scopes[i] = scope.Of(f)
			}
			s := scope.IntersectExclusions(scopes...)
			o.stats.Merged += len(unrestricted) - 1
			unrestricted = []models.Filter{earliest(unrestricted).WithDomains(nil, s.Exclude)}
		}
		out = append(out, restricted...)
		out = append(out, unrestricted...)
	}
	return out
}

// union merges filters that share their exclusion list
func (o *Optimizer) union(fs []models.Filter) models.Filter {
	if len(fs) == 1 {
		return fs[0]
	}
	scopes := make([]scope.Scope, len(fs))
	for i, f := range fs {
		scopes[i] = scope.Of(f)
	}
	s := scope.Union(scopes...)
	o.stats.Merged += len(fs) - 1
	return earliest(fs).WithDomains(s.Include, s.Exclude)
}

// dropSubsumed removes filters whose match set is covered by a sibling with
// the same pattern and action. Candidates are visited in fingerprint order so
// ties between equivalent filters resolve the same way on every run.
func (o *Optimizer) dropSubsumed(fs []models.Filter) []models.Filter {
	if len(fs) < 2 {
		return fs
	}
	sortByFingerprint(fs)

	byPattern := make(map[string][]models.Filter)
	var keys []string
	for _, f := range fs {
		k := filterset.PatternKey(f)
		if _, ok := byPattern[k]; !ok {
			keys = append(keys, k)
		}
		byPattern[k] = append(byPattern[k], f)
	}
	sort.Strings(keys)

	var out []models.Filter
	for _, k := range keys {
		var kept []models.Filter
	candidates:
		for _, f := range byPattern[k] {
			for _, g := range kept {
				if Covers(g, f) {
					o.stats.Subsumed++
					continue candidates
				}
			}
			next := kept[:0]
			for _, g := range kept {
				if Covers(f, g) {
					o.stats.Subsumed++
					continue
				}
				next = append(next, g)
			}
			kept = append(next, f)
		}
		out = append(out, kept...)
	}
	return out
}

// Covers reports whether b matches everything a matches with the same action.
// Both filters must share a pattern key.
func Covers(b, a models.Filter) bool {
	if b.Kind != a.Kind || b.IsException() != a.IsException() {
		return false
	}
	if b.Kind == models.KindNetwork {
		bo, ao := b.Network.Options, a.Network.Options
		if bo.Important != ao.Important {
			return false
		}
		if !bo.ResourceTypes.Has(ao.ResourceTypes) {
			return false
		}
		if bo.ThirdParty != nil && (ao.ThirdParty == nil || *ao.ThirdParty != *bo.ThirdParty) {
			return false
		}
	}
	return scope.Subsumes(scope.Of(b), scope.Of(a))
}

// foldCosmeticExceptions applies "domain#@#sel" exceptions to the "##sel" hide
// rules of the same group. Every exception is consumed: the hides lose the
// domains it covers and keep the holes it carves out, so no exception is left
// to emit.
func (o *Optimizer) foldCosmeticExceptions(fs []models.Filter) []models.Filter {
	var hides, exceptions, rest []models.Filter
	for _, f := range fs {
		switch {
		case f.Kind != models.KindCosmetic:
			rest = append(rest, f)
		case f.Cosmetic.IsException:
			exceptions = append(exceptions, f)
		default:
			hides = append(hides, f)
		}
	}
	if len(exceptions) == 0 {
		return fs
	}

	for _, x := range exceptions {
		o.stats.Folded++
		xs := scope.Of(x)
		next := hides[:0:0]
		for _, h := range hides {
			parts := foldInto(scope.Of(h), xs)
			if len(parts) == 0 {
				o.stats.Hidden++
				continue
			}
			for _, s := range parts {
				next = append(next, h.WithDomains(s.Include, s.Exclude))
			}
		}
		hides = next
	}

	out := make([]models.Filter, 0, len(rest)+len(hides))
	out = append(out, rest...)
	return append(out, hides...)
}

// foldInto returns the parts of hide scope h left after the exception scope x.
// The domains x includes are subtracted; the holes x excludes come back as a
// separate scope restricted to them. An unrestricted x keeps only its holes.
func foldInto(h, x scope.Scope) []scope.Scope {
	var parts []scope.Scope
	if !x.Unrestricted() {
		exclude := append(append([]string{}, h.Exclude...), x.Include...)
		if s, ok := scope.Canonical(scope.Scope{Include: h.Include, Exclude: exclude}); ok {
			parts = append(parts, s)
		}
	}
	if s, ok := restrictTo(h, x.Exclude); ok {
		parts = append(parts, s)
	}
	return parts
}

// restrictTo intersects h with the domains covered by only. ok is false when
// the intersection is empty.
func restrictTo(h scope.Scope, only []string) (scope.Scope, bool) {
	var include []string
	if h.Unrestricted() {
		include = only
	} else {
		for _, i := range h.Include {
			for _, d := range only {
				switch {
				case scope.Covers(d, i):
					include = append(include, i)
				case scope.Covers(i, d):
					include = append(include, d)
				}
			}
		}
	}
	if len(include) == 0 {
		return scope.Scope{}, false
	}
	return scope.Canonical(scope.Scope{Include: include, Exclude: h.Exclude})
}

// earliest returns the filter with the smallest source position
func earliest(fs []models.Filter) models.Filter {
	best := fs[0]
	for _, f := range fs[1:] {
		if f.Source().Less(best.Source()) {
			best = f
		}
	}
	return best
}

func sortByFingerprint(fs []models.Filter) {
	keys := make([]filterset.Fingerprint, len(fs))
	for i, f := range fs {
		keys[i] = filterset.FingerprintOf(f)
	}
	sort.Stable(byFingerprint{filters: fs, keys: keys})
}

type byFingerprint struct {
	filters []models.Filter
	keys    []filterset.Fingerprint
}

func (b byFingerprint) Len() int           { return len(b.filters) }
func (b byFingerprint) Less(i, j int) bool { return b.keys[i] < b.keys[j] }
func (b byFingerprint) Swap(i, j int) {
	b.filters[i], b.filters[j] = b.filters[j], b.filters[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}
