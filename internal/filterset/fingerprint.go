package filterset

import (
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/bnema/contentblock-compiler/internal/models"
)

// Fingerprint is the normalized equality key of a filter. Two filters with
// the same fingerprint are semantically identical.
type Fingerprint string

const sep = "\x00"

// FingerprintOf computes the fingerprint of a parsed filter. The badfilter
// flag is left out so a badfilter and its target share a fingerprint.
func FingerprintOf(f models.Filter) Fingerprint {
	inc, exc := f.Domains()
	return Fingerprint(MergeKey(f) + sep + strings.Join(inc, ",") + sep + strings.Join(exc, ","))
}

// MergeKey is the fingerprint without the domain scope: filters sharing a
// merge key differ only in where they apply
func MergeKey(f models.Filter) string {
	if f.Kind == models.KindCosmetic {
		c := f.Cosmetic
		return strings.Join([]string{"c", flag(c.IsException, "e"), c.Selector}, sep)
	}
	return PatternKey(f) + sep + typesKey(f.Network.Options)
}

// PatternKey identifies what a network filter matches and how it acts,
// ignoring resource-type, party and domain restrictions
func PatternKey(f models.Filter) string {
	if f.Kind == models.KindCosmetic {
		return MergeKey(f)
	}
	n := f.Network
	flags := flag(n.IsException, "e") + flag(n.Options.Important, "i") +
		flag(n.IsRegex, "r") + flag(n.Options.MatchCase, "m") +
		flag(n.Anchors.Start, "S") + flag(n.Anchors.End, "E") + flag(n.Anchors.Domain, "D")
	return strings.Join([]string{
		"n",
		flags,
		n.Pattern,
		strings.Join(n.Options.Unrecognized, ","),
	}, sep)
}

func typesKey(o models.NetworkOptions) string {
	tp := "*"
	if o.ThirdParty != nil {
		tp = strconv.FormatBool(*o.ThirdParty)
	}
	return strconv.Itoa(int(o.ResourceTypes)) + sep + tp
}

func flag(b bool, s string) string {
	if b {
		return s
	}
	return "-"
}

// GroupKey is the coarse matching key the optimizer groups by: the
// registrable domain of domain-anchored patterns, the first significant
// token of other patterns, or the selector of cosmetic filters
func GroupKey(f models.Filter) string {
	if f.Kind == models.KindCosmetic {
		return "c:" + f.Cosmetic.Selector
	}
	n := f.Network
	if n.IsRegex {
		return "r:" + n.Pattern
	}
	if n.Anchors.Domain {
		host := n.Pattern
		if i := strings.IndexAny(host, "^/*|?:"); i != -1 {
			host = host[:i]
		}
		host = strings.ToLower(host)
		if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			return "d:" + etld1
		}
		return "d:" + host
	}
	return "t:" + firstToken(strings.ToLower(n.Pattern))
}

// firstToken returns the first alphanumeric run of at least two characters
func firstToken(s string) string {
	start := -1
	for i := 0; i <= len(s); i++ {
		alnum := i < len(s) && (s[i] >= 'a' && s[i] <= 'z' || s[i] >= '0' && s[i] <= '9')
		if alnum && start == -1 {
			start = i
		}
		if !alnum && start != -1 {
			if i-start >= 2 {
				return s[start:i]
			}
			start = -1
		}
	}
	return "*"
}
