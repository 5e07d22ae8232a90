package models

import (
	"sort"
	"strings"
)

// FilterKind distinguishes network filters from cosmetic filters
type FilterKind int

const (
	KindNetwork FilterKind = iota
	KindCosmetic
)

func (k FilterKind) String() string {
	if k == KindCosmetic {
		return "cosmetic"
	}
	return "network"
}

// Anchors constrain where in a URL a network pattern must match
type Anchors struct {
	Start  bool // |pattern
	End    bool // pattern|
	Domain bool // ||pattern
}

// NetworkOptions contains parsed network filter options
type NetworkOptions struct {
	DomainsIncluded []string     // domain= values, sorted
	DomainsExcluded []string     // ~domain values, sorted
	ResourceTypes   ResourceType // 0 = all types
	ThirdParty      *bool        // nil = any, true = 3p only, false = 1p only
	MatchCase       bool         // case-sensitive matching
	Important       bool         // override exceptions
	BadFilter       bool         // cancels the filter it mirrors
	Unrecognized    []string     // preserved, ignored by matching
}

// IsEmpty returns true if no options are set
func (o NetworkOptions) IsEmpty() bool {
	return o.ThirdParty == nil &&
		o.ResourceTypes == 0 &&
		len(o.DomainsIncluded) == 0 &&
		len(o.DomainsExcluded) == 0 &&
		!o.MatchCase &&
		!o.Important &&
		!o.BadFilter &&
		len(o.Unrecognized) == 0
}

// NetworkFilter is a parsed URL-blocking filter
type NetworkFilter struct {
	Raw         string // Original filter line
	Pattern     string // URL pattern with anchor markers stripped
	IsException bool
	IsRegex     bool // /regex/ pattern, bypasses wildcard translation
	Anchors     Anchors
	Options     NetworkOptions
	Source      Source
}

// CosmeticFilter is a parsed element-hiding filter
type CosmeticFilter struct {
	Raw             string
	Selector        string
	DomainsIncluded []string
	DomainsExcluded []string
	IsException     bool
	Extended        bool // came from #?# or #@?#
	Source          Source
}

// Filter wraps either a network or a cosmetic filter
type Filter struct {
	Kind     FilterKind
	Network  *NetworkFilter
	Cosmetic *CosmeticFilter
}

// Source returns where the filter came from
func (f Filter) Source() Source {
	if f.Kind == KindCosmetic {
		return f.Cosmetic.Source
	}
	return f.Network.Source
}

// IsException reports whether the filter negates other filters
func (f Filter) IsException() bool {
	if f.Kind == KindCosmetic {
		return f.Cosmetic.IsException
	}
	return f.Network.IsException
}

// Domains returns the included and excluded domain scope of the filter
func (f Filter) Domains() (include, exclude []string) {
	if f.Kind == KindCosmetic {
		return f.Cosmetic.DomainsIncluded, f.Cosmetic.DomainsExcluded
	}
	return f.Network.Options.DomainsIncluded, f.Network.Options.DomainsExcluded
}

// WithDomains returns a copy of the filter with a new domain scope
func (f Filter) WithDomains(include, exclude []string) Filter {
	if f.Kind == KindCosmetic {
		c := *f.Cosmetic
		c.DomainsIncluded = include
		c.DomainsExcluded = exclude
		return Filter{Kind: KindCosmetic, Cosmetic: &c}
	}
	n := *f.Network
	n.Options.DomainsIncluded = include
	n.Options.DomainsExcluded = exclude
	return Filter{Kind: KindNetwork, Network: &n}
}

// Raw returns the original filter text
func (f Filter) Raw() string {
	if f.Kind == KindCosmetic {
		return f.Cosmetic.Raw
	}
	return f.Network.Raw
}

// NewNetwork wraps a network filter
func NewNetwork(n *NetworkFilter) Filter {
	return Filter{Kind: KindNetwork, Network: n}
}

// NewCosmetic wraps a cosmetic filter
func NewCosmetic(c *CosmeticFilter) Filter {
	return Filter{Kind: KindCosmetic, Cosmetic: c}
}

// SortedUnique returns a sorted copy of xs without duplicates
func SortedUnique(xs []string) []string {
	if len(xs) == 0 {
		return nil
	}
	out := make([]string, len(xs))
	copy(out, xs)
	sort.Strings(out)
	j := 0
	for i := 1; i < len(out); i++ {
		if out[i] != out[j] {
			j++
			out[j] = out[i]
		}
	}
	return out[:j+1]
}

// JoinDomains renders a domain list the way it appears in filter text
func JoinDomains(include, exclude []string, sep string) string {
	parts := make([]string, 0, len(include)+len(exclude))
	parts = append(parts, include...)
	for _, d := range exclude {
		parts = append(parts, "~"+d)
	}
	return strings.Join(parts, sep)
}
