package filterset

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/contentblock-compiler/internal/models"
	"github.com/bnema/contentblock-compiler/internal/parser"
)

func filter(t *testing.T, doc, line int, text string) models.Filter {
	t.Helper()
	filters := parser.New().ParseLine(models.RawLine{
		Text:   text,
		Source: models.Source{Document: doc, Line: line},
	}, models.FormatStandard)
	require.Len(t, filters, 1, text)
	return filters[0]
}

func TestAddKeepsEarliestSource(t *testing.T) {
	s := New()

	added, err := s.Add(filter(t, 1, 4, "||ads.example^"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Add(filter(t, 0, 9, "||ads.example^"))
	require.NoError(t, err)
	assert.False(t, added)

	added, err = s.Add(filter(t, 2, 1, "||ADS.example^"))
	require.NoError(t, err)
	assert.False(t, added)

	s.Finalize()
	require.Equal(t, 1, s.Len())
	assert.Equal(t, models.Source{Document: 0, Line: 9}, s.Filters()[0].Source())
}

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{name: "domain order is irrelevant", a: "||a.com^$domain=x.com|y.com", b: "||a.com^$domain=y.com|x.com", equal: true},
		{name: "option order is irrelevant", a: "||a.com^$script,third-party", b: "||a.com^$3p,script", equal: true},
		{name: "trimmed wildcards", a: "ads*", b: "*ads", equal: true},
		{name: "badfilter mirrors its target", a: "||a.com^$script", b: "||a.com^$script,badfilter", equal: true},
		{name: "resource types differ", a: "||a.com^$script", b: "||a.com^$image"},
		{name: "exception differs", a: "||a.com^", b: "@@||a.com^"},
		{name: "anchors differ", a: "|ads", b: "ads"},
		{name: "cosmetic exception differs", a: "##.ad", b: "#@#.ad"},
		{name: "cosmetic scope differs", a: "a.com##.ad", b: "b.com##.ad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := FingerprintOf(filter(t, 0, 1, tt.a)), FingerprintOf(filter(t, 0, 2, tt.b))
			if tt.equal {
				assert.Equal(t, a, b)
			} else {
				assert.NotEqual(t, a, b)
			}
		})
	}

	x, y := filter(t, 0, 1, "||a.com^$domain=x.com"), filter(t, 0, 2, "||a.com^$domain=y.com")
	assert.Equal(t, MergeKey(x), MergeKey(y))
	assert.NotEqual(t, FingerprintOf(x), FingerprintOf(y))

	s, i := filter(t, 0, 1, "||a.com^$script"), filter(t, 0, 2, "||a.com^$image")
	assert.Equal(t, PatternKey(s), PatternKey(i))
	assert.NotEqual(t, MergeKey(s), MergeKey(i))
}

func TestGroupKey(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: "||ads.example.co.uk^", want: "d:example.co.uk"},
		{line: "||cdn.tracker.example/pixel.gif", want: "d:tracker.example"},
		{line: "@@||tracker.example^$domain=ok.example", want: "d:tracker.example"},
		{line: "/banner/*/img^", want: "t:banner"},
		{line: "-ad-", want: "t:ad"},
		{line: "/a/b/", want: "r:a/b"},
		{line: "example.com##.ad", want: "c:.ad"},
		{line: "&a=", want: "t:*"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, GroupKey(filter(t, 0, 1, tt.line)))
		})
	}
}

func TestBadfilterCancelsRegardlessOfOrder(t *testing.T) {
	for _, order := range [][]string{
		{"||a.com^$script", "||a.com^$script,badfilter", "||b.com^"},
		{"||a.com^$script,badfilter", "||b.com^", "||a.com^$script"},
	} {
		s := New()
		for i, line := range order {
			_, err := s.Add(filter(t, 0, i+1, line))
			require.NoError(t, err)
		}
		s.Finalize()

		require.Equal(t, 1, s.Len())
		assert.Equal(t, "b.com^", s.Filters()[0].Network.Pattern)
		assert.Equal(t, 1, s.Cancelled())
	}

	s := New()
	_, err := s.Add(filter(t, 0, 1, "||c.com^$badfilter"))
	require.NoError(t, err)
	s.Finalize()
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Cancelled())
}

func TestFinalize(t *testing.T) {
	s := New()
	for i, line := range []string{"||b.com^", "||a.com^", "##.ad", "||a.com/x", "a.com##.ad"} {
		_, err := s.Add(filter(t, 0, i+1, line))
		require.NoError(t, err)
	}
	s.Finalize()
	s.Finalize()

	require.Equal(t, 5, s.Len())
	prints := make([]string, s.Len())
	for i := range prints {
		prints[i] = string(s.Fingerprint(i))
	}
	assert.True(t, sort.StringsAreSorted(prints))

	keys := s.GroupKeys()
	assert.True(t, sort.StringsAreSorted(keys))
	assert.Equal(t, []string{"c:.ad", "d:a.com", "d:b.com"}, keys)

	for _, key := range keys {
		idx := s.Group(key)
		assert.True(t, sort.IntsAreSorted(idx))
		for _, i := range idx {
			assert.Equal(t, key, GroupKey(s.Filters()[i]))
		}
	}
	assert.Len(t, s.Group("d:a.com"), 2)

	_, err := s.Add(filter(t, 0, 9, "||c.com^"))
	assert.ErrorIs(t, err, ErrFrozen)
}

func TestConcurrentAddMatchesSerial(t *testing.T) {
	var lines []string
	for _, host := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		lines = append(lines,
			"||"+host+".example^",
			"||"+host+".example^$domain=foo.com",
			host+".example##.ad",
			"##."+host,
		)
	}

	serial := New()
	for i, line := range lines {
		_, err := serial.Add(filter(t, 0, i+1, line))
		require.NoError(t, err)
	}
	serial.Finalize()

	parallel := New()
	var wg sync.WaitGroup
	for copyNo := 0; copyNo < 4; copyNo++ {
		for i, line := range lines {
			f := filter(t, copyNo, i+1, line)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := parallel.Add(f)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()
	parallel.Finalize()

	require.Equal(t, serial.Len(), parallel.Len())
	assert.Equal(t, serial.Filters(), parallel.Filters())
	assert.Equal(t, serial.GroupKeys(), parallel.GroupKeys())
}
