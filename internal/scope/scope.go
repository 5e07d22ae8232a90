// Package scope implements the domain-scope algebra shared by the parser,
// the optimizer and the rule emitter.
//
// A scope is a pair of domain lists. A domain entry covers itself and every
// subdomain of it. An empty include list means "every domain". The domains a
// scope matches are the covered includes minus the covered excludes.
package scope

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"

	"github.com/bnema/contentblock-compiler/internal/models"
)

// Scope is the domain restriction of a filter
type Scope struct {
	Include []string
	Exclude []string
}

// Of returns the scope of a filter
func Of(f models.Filter) Scope {
	inc, exc := f.Domains()
	return Scope{Include: inc, Exclude: exc}
}

// Unrestricted reports whether the scope applies to every domain not excluded
func (s Scope) Unrestricted() bool {
	return len(s.Include) == 0
}

// NormalizeDomain lowercases a domain, strips wildcard and dot decorations
// and converts internationalized names to punycode. It returns "" when the
// domain cannot be used.
func NormalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "*")
	d = strings.TrimPrefix(d, ".")
	d = strings.TrimSuffix(d, ".")
	if d == "" || strings.ContainsAny(d, " \t/|,~") {
		return ""
	}
	if !isASCII(d) {
		ascii, err := idna.Punycode.ToASCII(d)
		if err != nil {
			return ""
		}
		d = ascii
	}
	return d
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// IsEntity reports whether d uses the "example.*" any-TLD form
func IsEntity(d string) bool {
	return strings.HasSuffix(d, ".*")
}

// Covers reports whether parent covers d (d is parent or one of its subdomains)
func Covers(parent, d string) bool {
	if d == parent {
		return true
	}
	return strings.HasSuffix(d, parent) && d[len(d)-len(parent)-1] == '.'
}

// CoveredBy reports whether some entry of set covers d
func CoveredBy(d string, set []string) bool {
	for _, p := range set {
		if Covers(p, d) {
			return true
		}
	}
	return false
}

// Reduce returns the sorted minimal list covering the same domains as ds
func Reduce(ds []string) []string {
	ds = models.SortedUnique(ds)
	if len(ds) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ds))
	for _, d := range ds {
		set[d] = struct{}{}
	}
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		if !hasAncestor(d, set) {
			out = append(out, d)
		}
	}
	return out
}

// hasAncestor reports whether a strict parent domain of d is in set
func hasAncestor(d string, set map[string]struct{}) bool {
	for i := strings.IndexByte(d, '.'); i >= 0; {
		parent := d[i+1:]
		if _, ok := set[parent]; ok {
			return true
		}
		next := strings.IndexByte(parent, '.')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return false
}

// Canonical rewrites s into its minimal form. Included entries that are fully
// excluded are removed; exclusions outside an explicit include list are
// redundant and removed. ok is false when the scope can never match.
func Canonical(s Scope) (out Scope, ok bool) {
	exclude := Reduce(s.Exclude)
	include := Reduce(s.Include)

	if len(include) > 0 {
		kept := include[:0:0]
		for _, d := range include {
			if !CoveredBy(d, exclude) {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			return Scope{}, false
		}
		include = kept

		var inner []string
		for _, e := range exclude {
			if CoveredBy(e, include) {
				inner = append(inner, e)
			}
		}
		exclude = inner
	}
	return Scope{Include: include, Exclude: exclude}, true
}

// Subsumes reports whether every domain matched by a is also matched by b.
// The check is sound but not complete: a false result may still hide a
// subset relation.
func Subsumes(b, a Scope) bool {
	if len(b.Include) > 0 {
		if len(a.Include) == 0 {
			return false
		}
		for _, d := range a.Include {
			if !CoveredBy(d, b.Include) {
				return false
			}
		}
	}
	for _, e := range b.Exclude {
		if !excludedFrom(e, a) {
			return false
		}
	}
	return true
}

// excludedFrom reports whether no domain under e is matched by a
func excludedFrom(e string, a Scope) bool {
	if CoveredBy(e, a.Exclude) {
		return true
	}
	if len(a.Include) == 0 {
		return false
	}
	for _, i := range a.Include {
		if Covers(i, e) {
			return false
		}
		if Covers(e, i) && !CoveredBy(i, a.Exclude) {
			return false
		}
	}
	return true
}

// Union merges scopes that share the same exclusion list. An unrestricted
// member absorbs every finite include list.
func Union(scopes ...Scope) Scope {
	if len(scopes) == 0 {
		return Scope{}
	}
	var include []string
	for _, s := range scopes {
		if s.Unrestricted() {
			include = nil
			break
		}
		include = append(include, s.Include...)
	}
	exclude := scopes[0].Exclude
	out, ok := Canonical(Scope{Include: include, Exclude: exclude})
	if !ok {
		return Scope{Include: Reduce(include), Exclude: Reduce(exclude)}
	}
	return out
}

// IntersectExclusions merges unrestricted scopes: a domain stays excluded only
// when every member excludes it.
func IntersectExclusions(scopes ...Scope) Scope {
	if len(scopes) == 0 {
		return Scope{}
	}
	exclude := scopes[0].Exclude
	for _, s := range scopes[1:] {
		var next []string
		for _, e := range exclude {
			if CoveredBy(e, s.Exclude) {
				next = append(next, e)
			}
		}
		for _, e := range s.Exclude {
			if CoveredBy(e, exclude) {
				next = append(next, e)
			}
		}
		exclude = Reduce(next)
	}
	return Scope{Exclude: exclude}
}
