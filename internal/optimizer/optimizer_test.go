package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/contentblock-compiler/internal/filterset"
	"github.com/bnema/contentblock-compiler/internal/models"
	"github.com/bnema/contentblock-compiler/internal/parser"
	"github.com/bnema/contentblock-compiler/internal/scope"
)

func parseSet(t *testing.T, lines ...string) *filterset.FilterSet {
	t.Helper()
	p := parser.New()
	set := filterset.New()
	for i, line := range lines {
		for _, f := range p.ParseLine(models.RawLine{Text: line, Source: models.Source{Line: i + 1}}, models.FormatStandard) {
			_, err := set.Add(f)
			require.NoError(t, err)
		}
	}
	require.Empty(t, p.Diagnostics())
	return set
}

func optimize(t *testing.T, lines ...string) ([]models.Filter, Stats) {
	t.Helper()
	o := New()
	out := o.Optimize(parseSet(t, lines...))
	return out, o.Stats()
}

func prints(fs []models.Filter) []filterset.Fingerprint {
	out := make([]filterset.Fingerprint, len(fs))
	for i, f := range fs {
		out[i] = filterset.FingerprintOf(f)
	}
	return out
}

func TestMergeDomains(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		include []string
		exclude []string
		merged  int
	}{
		{
			name:    "includes are unioned",
			lines:   []string{"||a.com^$domain=x.com", "||a.com^$domain=y.com|www.x.com"},
			include: []string{"x.com", "y.com"},
			merged:  1,
		},
		{
			name:   "unrestricted absorbs scoped",
			lines:  []string{"||a.com^$domain=x.com", "||a.com^"},
			merged: 1,
		},
		{
			name:    "unrestricted exclusions are intersected",
			lines:   []string{"||a.com^$domain=~x.com|~y.com", "||a.com^$domain=~y.com"},
			exclude: []string{"y.com"},
			merged:  1,
		},
		{
			name:    "cosmetic scopes are unioned",
			lines:   []string{"a.com##.ad", "b.com##.ad"},
			include: []string{"a.com", "b.com"},
			merged:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stats := optimize(t, tt.lines...)
			require.Len(t, out, 1)
			inc, exc := out[0].Domains()
			assert.Equal(t, tt.include, inc)
			assert.Equal(t, tt.exclude, exc)
			assert.Equal(t, tt.merged, stats.Merged)
			assert.Equal(t, models.Source{Line: 1}, out[0].Source())
		})
	}
}

func TestDropSubsumed(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		want     int
		subsumed int
	}{
		{name: "all types cover one type", lines: []string{"||a.com^$script", "||a.com^"}, want: 1, subsumed: 1},
		{name: "any party covers third party", lines: []string{"||a.com^$third-party", "||a.com^"}, want: 1, subsumed: 1},
		{
			name:     "wider scope covers narrower",
			lines:    []string{"||a.com^$script,domain=x.com", "||a.com^$domain=x.com|y.com"},
			want:     1,
			subsumed: 1,
		},
		{name: "disjoint types", lines: []string{"||a.com^$script", "||a.com^$image"}, want: 2},
		{name: "opposite parties", lines: []string{"||a.com^$third-party", "||a.com^$first-party"}, want: 2},
		{name: "exception never covers block", lines: []string{"||a.com^", "@@||a.com^$script"}, want: 2},
		{name: "important is kept apart", lines: []string{"||a.com^", "||a.com^$important,script"}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stats := optimize(t, tt.lines...)
			assert.Len(t, out, tt.want)
			assert.Equal(t, tt.subsumed, stats.Subsumed)
		})
	}
}

func TestFoldCosmeticExceptions(t *testing.T) {
	type hide struct {
		include []string
		exclude []string
	}
	tests := []struct {
		name  string
		lines []string
		hides []hide
	}{
		{
			name:  "exception becomes an exclusion",
			lines: []string{"##.ad", "a.com#@#.ad"},
			hides: []hide{{exclude: []string{"a.com"}}},
		},
		{
			name:  "exception removes an include",
			lines: []string{"a.com,b.com##.ad", "a.com#@#.ad"},
			hides: []hide{{include: []string{"b.com"}}},
		},
		{
			name:  "exception removes the whole hide",
			lines: []string{"a.com##.ad", "a.com#@#.ad"},
		},
		{
			name:  "generic exception removes every hide",
			lines: []string{"#@#.ad", "##.ad", "x.com##.ad"},
		},
		{
			name:  "exception with exclusions restricts hides",
			lines: []string{"~a.com#@#.ad", "##.ad"},
			hides: []hide{{include: []string{"a.com"}}},
		},
		{
			name:  "exception nested in an include becomes a nested exclusion",
			lines: []string{"foo.com##.ad", "www.foo.com#@#.ad"},
			hides: []hide{{include: []string{"foo.com"}, exclude: []string{"www.foo.com"}}},
		},
		{
			name:  "holes in the exception stay hidden",
			lines: []string{"##.ad", "a.com,~b.a.com#@#.ad"},
			hides: []hide{{exclude: []string{"a.com"}}, {include: []string{"b.a.com"}}},
		},
		{
			name:  "exception without hide is dropped",
			lines: []string{"a.com#@#.ad"},
		},
		{
			name:  "other selectors are untouched",
			lines: []string{"##.ad", "a.com#@#.banner"},
			hides: []hide{{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := optimize(t, tt.lines...)

			var hides []hide
			for _, f := range out {
				require.Equal(t, models.KindCosmetic, f.Kind)
				require.False(t, f.Cosmetic.IsException, "exception left unfolded: %s", f.Raw())
				hides = append(hides, hide{include: f.Cosmetic.DomainsIncluded, exclude: f.Cosmetic.DomainsExcluded})
			}
			assert.ElementsMatch(t, tt.hides, hides)
		})
	}
}

func TestOptimizeStats(t *testing.T) {
	_, stats := optimize(t,
		"||a.com^$domain=x.com",
		"||a.com^$domain=y.com",
		"||a.com^$script",
		"a.com##.ad",
		"a.com#@#.ad",
	)
	assert.Equal(t, 5, stats.Input)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, 0, stats.Subsumed)
	assert.Equal(t, 1, stats.Folded)
	assert.Equal(t, 1, stats.Hidden)
	assert.Equal(t, 2, stats.Output)
}

func TestOptimizeIsOrderIndependent(t *testing.T) {
	lines := []string{
		"||a.com^$domain=x.com",
		"||a.com^$domain=~z.com",
		"||a.com^$script,domain=y.com",
		"||b.com^$third-party",
		"||b.com^",
		"##.ad",
		"x.com#@#.ad",
		"foo.com##.banner",
		"www.foo.com#@#.banner",
		"/ads/*/img",
	}
	reversed := make([]string, len(lines))
	for i, l := range lines {
		reversed[len(lines)-1-i] = l
	}

	a, _ := optimize(t, lines...)
	b, _ := optimize(t, reversed...)
	assert.Equal(t, prints(a), prints(b))

	// a second pass finds nothing left to merge
	set := filterset.New()
	for _, f := range a {
		_, err := set.Add(f)
		require.NoError(t, err)
	}
	o := New()
	again := o.Optimize(set)
	assert.Equal(t, prints(a), prints(again))
	assert.Zero(t, o.Stats().Merged+o.Stats().Subsumed)
}

func TestCovers(t *testing.T) {
	filter := func(text string) models.Filter {
		fs := parser.New().ParseLine(models.RawLine{Text: text}, models.FormatStandard)
		require.Len(t, fs, 1)
		return fs[0]
	}

	assert.True(t, Covers(filter("||a.com^"), filter("||a.com^$script,third-party")))
	assert.False(t, Covers(filter("||a.com^$script"), filter("||a.com^")))
	assert.False(t, Covers(filter("||a.com^$first-party"), filter("||a.com^")))
	assert.False(t, Covers(filter("||a.com^"), filter("@@||a.com^")))
	assert.False(t, Covers(filter("##.ad"), filter("||a.com^")))
	assert.True(t, Covers(filter("~x.com##.ad"), filter("a.com##.ad")))
	assert.False(t, Covers(filter("~a.com##.ad"), filter("www.a.com##.ad")))
}

func TestFoldInto(t *testing.T) {
	tests := []struct {
		name string
		h, x scope.Scope
		want []scope.Scope
	}{
		{
			name: "unrestricted hide gains the exclusion",
			h:    scope.Scope{Exclude: []string{"x.com"}},
			x:    scope.Scope{Include: []string{"a.com"}},
			want: []scope.Scope{{Exclude: []string{"a.com", "x.com"}}},
		},
		{
			name: "holes come back as their own scope",
			h:    scope.Scope{},
			x:    scope.Scope{Include: []string{"a.com"}, Exclude: []string{"b.a.com"}},
			want: []scope.Scope{{Exclude: []string{"a.com"}}, {Include: []string{"b.a.com"}}},
		},
		{
			name: "covered includes are removed",
			h:    scope.Scope{Include: []string{"www.a.com", "b.com"}},
			x:    scope.Scope{Include: []string{"a.com"}},
			want: []scope.Scope{{Include: []string{"b.com"}}},
		},
		{
			name: "nested exception becomes a nested exclusion",
			h:    scope.Scope{Include: []string{"foo.com"}},
			x:    scope.Scope{Include: []string{"www.foo.com"}},
			want: []scope.Scope{{Include: []string{"foo.com"}, Exclude: []string{"www.foo.com"}}},
		},
		{
			name: "equal scopes leave nothing",
			h:    scope.Scope{Include: []string{"a.com"}},
			x:    scope.Scope{Include: []string{"a.com"}},
		},
		{
			name: "unrestricted exception keeps only its holes",
			h:    scope.Scope{},
			x:    scope.Scope{Exclude: []string{"a.com"}},
			want: []scope.Scope{{Include: []string{"a.com"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, foldInto(tt.h, tt.x))
		})
	}
}

func TestRestrictTo(t *testing.T) {
	s, ok := restrictTo(scope.Scope{}, []string{"a.com"})
	assert.True(t, ok)
	assert.Equal(t, scope.Scope{Include: []string{"a.com"}}, s)

	s, ok = restrictTo(scope.Scope{Include: []string{"foo.com", "bar.com"}}, []string{"www.foo.com"})
	assert.True(t, ok)
	assert.Equal(t, scope.Scope{Include: []string{"www.foo.com"}}, s)

	_, ok = restrictTo(scope.Scope{Include: []string{"bar.com"}}, []string{"a.com"})
	assert.False(t, ok)

	_, ok = restrictTo(scope.Scope{}, nil)
	assert.False(t, ok)
}
