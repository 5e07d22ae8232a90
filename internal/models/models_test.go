package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceType(t *testing.T) {
	tests := []struct {
		name  string
		t     ResourceType
		other ResourceType
		has   bool
	}{
		{name: "zero has everything", t: 0, other: TypeScript | TypeImage, has: true},
		{name: "subset", t: TypeScript | TypeImage, other: TypeScript, has: true},
		{name: "partial overlap", t: TypeScript, other: TypeScript | TypeImage, has: false},
		{name: "restricted lacks all", t: TypeScript, other: 0, has: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.has, tt.t.Has(tt.other))
		})
	}

	assert.Equal(t, "all", ResourceType(0).String())
	assert.Equal(t, "script|image", (TypeImage | TypeScript).String())

	var seen []ResourceType
	(TypeOther | TypeDocument | TypeFont).Each(func(rt ResourceType) { seen = append(seen, rt) })
	assert.Equal(t, []ResourceType{TypeDocument, TypeFont, TypeOther}, seen)
}

func TestFilterOptionString(t *testing.T) {
	assert.Equal(t, "~script", FilterOption{Name: "script", Negated: true}.String())
	assert.Equal(t, "domain=a.com|~b.com", FilterOption{Kind: OptionDomain, Name: "domain", Value: "a.com|~b.com"}.String())
	assert.Equal(t, "domain=", FilterOption{Kind: OptionDomain, Name: "domain"}.String())
}

func TestNetworkOptionsIsEmpty(t *testing.T) {
	assert.True(t, NetworkOptions{}.IsEmpty())

	tp := false
	assert.False(t, NetworkOptions{ThirdParty: &tp}.IsEmpty())
	assert.False(t, NetworkOptions{Unrecognized: []string{"foo"}}.IsEmpty())
	assert.False(t, NetworkOptions{DomainsExcluded: []string{"a.com"}}.IsEmpty())
}

func TestFilterCopiesDoNotAlias(t *testing.T) {
	n := &NetworkFilter{Pattern: "ads", Options: NetworkOptions{DomainsIncluded: []string{"a.com"}}}
	f := NewNetwork(n)

	g := f.WithDomains([]string{"b.com"}, nil)
	assert.Equal(t, []string{"a.com"}, n.Options.DomainsIncluded)
	assert.Equal(t, Source{}, f.Source())

	inc, exc := g.Domains()
	assert.Equal(t, []string{"b.com"}, inc)
	assert.Nil(t, exc)
	assert.Equal(t, "ads", g.Network.Pattern)

	c := NewCosmetic(&CosmeticFilter{Raw: "##.ad", Selector: ".ad", IsException: true})
	assert.True(t, c.IsException())
	assert.Equal(t, "##.ad", c.Raw())
	assert.Equal(t, "cosmetic", c.Kind.String())
}

func TestSortedUniqueAndJoinDomains(t *testing.T) {
	assert.Nil(t, SortedUnique(nil))
	in := []string{"b.com", "a.com", "b.com"}
	assert.Equal(t, []string{"a.com", "b.com"}, SortedUnique(in))
	assert.Equal(t, []string{"b.com", "a.com", "b.com"}, in)

	assert.Equal(t, "a.com,~b.com,~c.com", JoinDomains([]string{"a.com"}, []string{"b.com", "c.com"}, ","))
	assert.Equal(t, "", JoinDomains(nil, nil, "|"))
}

func TestSourceLess(t *testing.T) {
	assert.True(t, Source{Document: 0, Line: 9}.Less(Source{Document: 1, Line: 1}))
	assert.True(t, Source{Document: 1, Line: 1}.Less(Source{Document: 1, Line: 2}))
	assert.False(t, Source{Document: 1, Line: 2}.Less(Source{Document: 1, Line: 2}))
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		in      string
		want    TargetFormat
		wantErr bool
	}{
		{in: "webkit", want: TargetWebKit},
		{in: " WebKit-Network ", want: TargetWebKitNetwork},
		{in: "webkit-cosmetic", want: TargetWebKitCosmetic},
		{in: "json", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTargetFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, MaxWebKitRules, got.MaxRules())
		})
	}

	assert.True(t, TargetWebKit.EmitsNetwork() && TargetWebKit.EmitsCosmetic())
	assert.False(t, TargetWebKitNetwork.EmitsCosmetic())
	assert.False(t, TargetWebKitCosmetic.EmitsNetwork())

	f, err := ParseDocumentFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatStandard, f)
	f, err = ParseDocumentFormat("HOSTS")
	require.NoError(t, err)
	assert.Equal(t, FormatHosts, f)
	_, err = ParseDocumentFormat("yaml")
	assert.Error(t, err)
}

func TestReadDocument(t *testing.T) {
	doc, err := ReadDocument("list", FormatStandard, strings.NewReader("! comment\r\n||a.com^\n\nlast"))
	require.NoError(t, err)
	assert.Equal(t, "list", doc.Name)
	assert.Equal(t, []string{"! comment", "||a.com^", "", "last"}, doc.Lines)
}

func TestWebKitRuleKey(t *testing.T) {
	cs := true
	base := WebKitRule{
		Trigger: WebKitTrigger{URLFilter: "ads", IfDomain: []string{"*a.com"}},
		Action:  WebKitAction{Type: ActionBlock},
	}
	caseSensitive := base
	caseSensitive.Trigger.URLFilterIsCaseSensitive = &cs
	unless := base
	unless.Trigger.IfDomain = nil
	unless.Trigger.UnlessDomain = []string{"*a.com"}

	assert.Equal(t, base.Key(), base.Key())
	assert.NotEqual(t, base.Key(), caseSensitive.Key())
	assert.NotEqual(t, base.Key(), unless.Key())

	data, err := json.Marshal(base)
	require.NoError(t, err)
	assert.JSONEq(t, `{"trigger":{"url-filter":"ads","if-domain":["*a.com"]},"action":{"type":"block"}}`, string(data))
}

func TestDiagnostic(t *testing.T) {
	d := NewDiagnostic(Source{Document: 2, Line: 5}, DiagUnsupportedOption, "option %q", "csp")
	assert.Equal(t, `doc 2 line 5: unsupported-option: option "csp"`, d.String())

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"line":5,"document":2,"kind":"unsupported-option","message":"option \"csp\""}`, string(data))
	assert.Equal(t, "kind(42)", DiagnosticKind(42).String())
}

func TestConfigEnabledLists(t *testing.T) {
	cfg := Config{Lists: []FilterList{
		{Name: "a", URL: "https://a.example/list.txt", Enabled: true},
		{Name: "b", Enabled: false},
		{Name: "c", URL: "https://c.example/list.txt", Path: "./c.txt", Enabled: true},
	}}

	enabled := cfg.EnabledLists()
	require.Len(t, enabled, 2)
	assert.Equal(t, "https://a.example/list.txt", enabled[0].Location())
	assert.Equal(t, "./c.txt", enabled[1].Location())
}
