// Package converter emits WebKit content-blocker rules from optimized filters.
//
// Rules are emitted in classes so that every ignore-previous-rules rule
// follows the rules it overrides, and important blocks follow every
// exception. When the output exceeds the rule ceiling, the lowest-priority
// rules are dropped deterministically: cosmetic hides, then network
// exceptions, then network blocks, then important blocks. Within a class the
// most specific rules go first.
//
// Cosmetic exceptions have no rule of their own: the optimizer folds them
// into the hides they target, so no override can reach a network rule.
package converter

import (
	"cmp"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bnema/contentblock-compiler/internal/filterset"
	"github.com/bnema/contentblock-compiler/internal/models"
	"github.com/bnema/contentblock-compiler/internal/scope"
)

// translationCacheSize bounds the pattern translation cache
const translationCacheSize = 8192

// Converter converts optimized filters to WebKit rules
type Converter struct {
	format models.TargetFormat
	limit  int
	cache  *lru.Cache[translationKey, translation]
	stats  Stats
	diags  []models.Diagnostic
}

// Stats tracks conversion statistics
type Stats struct {
	Converted    int // rules emitted
	Skipped      int // filters that produced no rule
	Deduplicated int // rules identical to a later rule
	Dropped      int // rules removed by the rule ceiling
	CacheHits    int
	SkipReasons  map[string]int
}

// Skip reason constants
const (
	SkipInvalidRegex  = "invalid-regex"
	SkipEmptySelector = "empty-selector"
	SkipTargetFormat  = "excluded-by-target-format"
	SkipHideException = "unfolded-hide-exception"
)

// ruleClass orders emitted rules; higher classes override lower ones
type ruleClass int

const (
	classBlock ruleClass = iota
	classHide
	classException
	classImportant
)

// dropRank is the truncation priority of a class; lower ranks go first
func (c ruleClass) dropRank() int {
	switch c {
	case classHide:
		return 0
	case classException:
		return 1
	case classBlock:
		return 2
	}
	return 3
}

type candidate struct {
	rule    models.WebKitRule
	class   ruleClass
	fp      filterset.Fingerprint
	variant int
}

type translationKey struct {
	pattern   string
	anchors   models.Anchors
	regex     bool
	matchCase bool
	endTwin   bool
}

type translation struct {
	filter  string
	ok      bool
	problem string
}

// webkitResourceTypes maps resource-type bits to WebKit names
var webkitResourceTypes = map[models.ResourceType]string{
	models.TypeDocument:       models.ResourceDocument,
	models.TypeSubdocument:    models.ResourceDocument,
	models.TypeScript:         models.ResourceScript,
	models.TypeImage:          models.ResourceImage,
	models.TypeStylesheet:     models.ResourceStyleSheet,
	models.TypeFont:           models.ResourceFont,
	models.TypeMedia:          models.ResourceMedia,
	models.TypeXMLHTTPRequest: models.ResourceRaw,
	models.TypeObject:         models.ResourceRaw,
	models.TypePing:           models.ResourceRaw,
	models.TypeWebSocket:      models.ResourceRaw,
	models.TypePopup:          models.ResourcePopup,
	models.TypeOther:          models.ResourceRaw,
}

// New creates a converter for the target format. A positive limit lowers the
// format's own rule ceiling.
func New(format models.TargetFormat, limit int) *Converter {
	cache, err := lru.New[translationKey, translation](translationCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &Converter{
		format: format,
		limit:  limit,
		cache:  cache,
		stats: Stats{
			SkipReasons: make(map[string]int),
		},
	}
}

// skip records a skipped filter with reason
func (c *Converter) skip(reason string) {
	c.stats.Skipped++
	c.stats.SkipReasons[reason]++
}

func (c *Converter) note(src models.Source, kind models.DiagnosticKind, format string, args ...any) {
	c.diags = append(c.diags, models.NewDiagnostic(src, kind, format, args...))
}

// Stats returns conversion statistics
func (c *Converter) Stats() Stats {
	return c.stats
}

// Diagnostics returns the problems found while converting
func (c *Converter) Diagnostics() []models.Diagnostic {
	return c.diags
}

// Dropped returns how many rules the ceiling removed
func (c *Converter) Dropped() int {
	return c.stats.Dropped
}

// Limit returns the effective rule ceiling
func (c *Converter) Limit() int {
	ceiling := c.format.MaxRules()
	if c.limit > 0 && c.limit < ceiling {
		return c.limit
	}
	return ceiling
}

// Convert transforms optimized filters into ordered WebKit rules
func (c *Converter) Convert(filters []models.Filter) []models.WebKitRule {
	var cands []candidate
	for _, f := range filters {
		cands = append(cands, c.convertFilter(f)...)
	}

	slices.SortStableFunc(cands, func(a, b candidate) int {
		if r := cmp.Compare(a.class, b.class); r != 0 {
			return r
		}
		if r := strings.Compare(string(a.fp), string(b.fp)); r != 0 {
			return r
		}
		return cmp.Compare(a.variant, b.variant)
	})
	cands = c.deduplicate(cands)
	cands = c.truncate(cands)

	rules := make([]models.WebKitRule, len(cands))
	for i := range cands {
		rules[i] = cands[i].rule
	}
	c.stats.Converted += len(rules)
	return rules
}

func (c *Converter) convertFilter(f models.Filter) []candidate {
	switch f.Kind {
	case models.KindNetwork:
		if !c.format.EmitsNetwork() {
			c.skip(SkipTargetFormat)
			return nil
		}
		return c.convertNetwork(f)
	case models.KindCosmetic:
		if !c.format.EmitsCosmetic() {
			c.skip(SkipTargetFormat)
			return nil
		}
		return c.convertCosmetic(f)
	}
	return nil
}

// convertNetwork converts a network filter to one rule, or two when a
// trailing separator needs an end-anchored twin
func (c *Converter) convertNetwork(f models.Filter) []candidate {
	n := f.Network
	fp := filterset.FingerprintOf(f)

	class := classBlock
	action := models.WebKitAction{Type: models.ActionBlock}
	switch {
	case n.IsException:
		class = classException
		action.Type = models.ActionIgnorePreviousRule
	case n.Options.Important:
		class = classImportant
	}

	// "@@||host^$document" allowlists every load on the site
	host, ok, narrowed := documentAllowlist(n)
	if ok {
		return []candidate{{
			rule: models.WebKitRule{
				Trigger: models.WebKitTrigger{URLFilter: restrAny, IfDomain: []string{normalizeDomain(host)}},
				Action:  action,
			},
			class: class,
			fp:    fp,
		}}
	}
	if narrowed {
		c.note(n.Source, models.DiagUnsupportedOption,
			"$document exception with other options only exempts the document load, not the whole site: %s", n.Raw)
	}

	tr := c.translate(n, false)
	if !tr.ok {
		c.skip(SkipInvalidRegex)
		c.note(n.Source, models.DiagUnsupportedPattern,
			"url-filter %q is not supported by WebKit (%s): %s", tr.filter, tr.problem, n.Raw)
		return nil
	}
	filters := []string{tr.filter}
	if needsEndTwin(n) {
		if twin := c.translate(n, true); twin.ok && twin.filter != tr.filter {
			filters = append(filters, twin.filter)
		}
	}

	var trigger models.WebKitTrigger
	c.applyScope(&trigger, f)
	if n.Options.MatchCase {
		t := true
		trigger.URLFilterIsCaseSensitive = &t
	}
	trigger.ResourceType = resourceTypes(n.Options.ResourceTypes)
	trigger.LoadType = loadType(n.Options.ThirdParty)

	out := make([]candidate, 0, len(filters))
	for i, uf := range filters {
		t := trigger
		t.URLFilter = uf
		out = append(out, candidate{
			rule:    models.WebKitRule{Trigger: t, Action: action},
			class:   class,
			fp:      fp,
			variant: i,
		})
	}
	return out
}

// convertCosmetic converts a cosmetic filter to a WebKit rule
func (c *Converter) convertCosmetic(f models.Filter) []candidate {
	cf := f.Cosmetic
	if cf.Selector == "" {
		c.skip(SkipEmptySelector)
		return nil
	}

	if cf.IsException {
		c.skip(SkipHideException)
		c.note(cf.Source, models.DiagUnsupportedSelector,
			"exception for %q was not folded into a hide rule and has no WebKit form: %s", cf.Selector, cf.Raw)
		return nil
	}

	trigger := models.WebKitTrigger{URLFilter: restrAny}
	c.applyScope(&trigger, f)

	return []candidate{{
		rule: models.WebKitRule{
			Trigger: trigger,
			Action:  models.WebKitAction{Type: models.ActionCSSDisplayNone, Selector: cf.Selector},
		},
		class: classHide,
		fp:    filterset.FingerprintOf(f),
	}}
}

// applyScope sets if-domain or unless-domain. WebKit rejects triggers that
// carry both, so an include with exclusions nested under it is narrowed to
// its exact host and the exclusions are dropped. The rule never applies on a
// domain the filter excludes.
func (c *Converter) applyScope(t *models.WebKitTrigger, f models.Filter) {
	include, exclude := f.Domains()
	if len(include) == 0 || len(exclude) == 0 {
		t.IfDomain = normalizeDomains(include)
		t.UnlessDomain = normalizeDomains(exclude)
		return
	}

	var exact []string
	t.IfDomain = make([]string, len(include))
	for i, d := range include {
		if hasNested(d, exclude) {
			t.IfDomain[i] = strings.ToLower(d)
			exact = append(exact, d)
			continue
		}
		t.IfDomain[i] = normalizeDomain(d)
	}
	if len(exact) > 0 {
		c.note(f.Source(), models.DiagUnsupportedOption,
			"%s narrowed to the exact host, WebKit cannot exclude %s inside it: %s",
			strings.Join(exact, ","), strings.Join(exclude, ","), f.Raw())
	}
}

// hasNested reports whether some excluded domain lies under d
func hasNested(d string, exclude []string) bool {
	for _, e := range exclude {
		if scope.Covers(d, e) {
			return true
		}
	}
	return false
}

// translate returns the url-filter of a network filter, memoized across
// filters sharing a pattern
func (c *Converter) translate(n *models.NetworkFilter, endTwin bool) translation {
	key := translationKey{
		pattern:   n.Pattern,
		anchors:   n.Anchors,
		regex:     n.IsRegex,
		matchCase: n.Options.MatchCase,
		endTwin:   endTwin,
	}
	if t, ok := c.cache.Get(key); ok {
		c.stats.CacheHits++
		return t
	}

	var uf string
	switch {
	case n.IsRegex:
		uf = RegexURLFilter(n.Pattern)
	case endTwin:
		uf = URLFilterEndAnchor(n.Pattern, n.Anchors, n.Options.MatchCase)
	default:
		uf = URLFilter(n.Pattern, n.Anchors, n.Options.MatchCase)
	}

	t := translation{filter: uf, ok: ValidateRegex(uf)}
	if !t.ok {
		t.problem = DescribeIssues(CheckWebKitCompatibility(uf))
		if t.problem == "" {
			t.problem = "invalid regular expression"
		}
	}
	c.cache.Add(key, t)
	return t
}

// deduplicate removes rules identical to a later rule. The later copy is
// kept since it overrides at least as much.
func (c *Converter) deduplicate(cands []candidate) []candidate {
	keys := make([]string, len(cands))
	last := make(map[string]int, len(cands))
	for i := range cands {
		keys[i] = cands[i].rule.Key()
		last[keys[i]] = i
	}
	out := make([]candidate, 0, len(last))
	for i := range cands {
		if last[keys[i]] != i {
			c.stats.Deduplicated++
			continue
		}
		out = append(out, cands[i])
	}
	return out
}

// truncate enforces the rule ceiling. Candidates are ranked by class drop
// priority, then most specific first, then fingerprint, so the same input
// always loses the same rules.
func (c *Converter) truncate(cands []candidate) []candidate {
	limit := c.Limit()
	if len(cands) <= limit {
		return cands
	}
	excess := len(cands) - limit

	scores := make([]int, len(cands))
	order := make([]int, len(cands))
	for i := range cands {
		scores[i] = specificityScore(cands[i].rule)
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		x, y := cands[a], cands[b]
		if r := cmp.Compare(x.class.dropRank(), y.class.dropRank()); r != 0 {
			return r
		}
		if r := cmp.Compare(scores[b], scores[a]); r != 0 {
			return r
		}
		if r := strings.Compare(string(x.fp), string(y.fp)); r != 0 {
			return r
		}
		return cmp.Compare(y.variant, x.variant)
	})

	drop := make([]bool, len(cands))
	for _, i := range order[:excess] {
		drop[i] = true
	}
	kept := make([]candidate, 0, limit)
	for i := range cands {
		if !drop[i] {
			kept = append(kept, cands[i])
		}
	}

	c.stats.Dropped += excess
	c.note(models.Source{}, models.DiagLimitExceeded,
		"%d rules exceed the limit of %d and were dropped", excess, limit)
	return kept
}

// specificityScore ranks rules by how narrowly they match: higher is narrower
func specificityScore(r models.WebKitRule) int {
	score := 0
	if len(r.Trigger.IfDomain) > 0 {
		score += 2
	}
	if len(r.Trigger.UnlessDomain) > 0 {
		score++
	}
	if len(r.Trigger.ResourceType) > 0 {
		score++
	}
	if len(r.Trigger.LoadType) > 0 {
		score++
	}
	if r.Trigger.URLFilterIsCaseSensitive != nil {
		score++
	}
	return score + 3 - urlFilterBreadthScore(r.Trigger.URLFilter)
}

// urlFilterBreadthScore ranks url-filters by how broadly they match:
// higher is broader
func urlFilterBreadthScore(f string) int {
	if f == restrAny {
		return 3
	}
	for _, anchor := range []string{restrHostnameAnchor1, restrHostnameAnchor2} {
		if rest, ok := strings.CutPrefix(f, anchor); ok && !strings.Contains(rest, "/") {
			return 2
		}
	}
	return 1
}

// documentAllowlist reports whether n is a host-wide $document exception.
// narrowed is set when other options keep a host $document exception from
// covering the whole site.
func documentAllowlist(n *models.NetworkFilter) (host string, ok, narrowed bool) {
	if !n.IsException || n.IsRegex || !n.Anchors.Domain || n.Options.ResourceTypes != models.TypeDocument {
		return "", false, false
	}
	host, ok = hostOnly(n.Pattern)
	if !ok {
		return "", false, false
	}
	rest := n.Options
	rest.ResourceTypes = 0
	if !rest.IsEmpty() {
		return "", false, true
	}
	return host, true, false
}

// needsEndTwin reports whether a trailing separator sits after a path, where
// "^" may also mean the end of the URL
func needsEndTwin(n *models.NetworkFilter) bool {
	if n.IsRegex || !EndsWithSeparator(n.Pattern) {
		return false
	}
	if n.Anchors.Domain {
		if _, ok := hostOnly(n.Pattern); ok {
			return false
		}
	}
	return true
}

// hostOnly returns the hostname of a "host" or "host^" pattern
func hostOnly(pattern string) (string, bool) {
	host := strings.TrimSuffix(pattern, "^")
	if host == "" || strings.ContainsAny(host, "/^*|?:=&") {
		return "", false
	}
	return host, true
}

func resourceTypes(mask models.ResourceType) []string {
	if mask == 0 {
		return nil
	}
	var names []string
	mask.Each(func(rt models.ResourceType) {
		names = append(names, webkitResourceTypes[rt])
	})
	return models.SortedUnique(names)
}

func loadType(thirdParty *bool) []string {
	if thirdParty == nil {
		return nil
	}
	if *thirdParty {
		return []string{models.LoadThirdParty}
	}
	return []string{models.LoadFirstParty}
}

// normalizeDomains adds * prefix for wildcard matching
func normalizeDomains(domains []string) []string {
	if len(domains) == 0 {
		return nil
	}
	result := make([]string, len(domains))
	for i, d := range domains {
		result[i] = normalizeDomain(d)
	}
	return result
}

// normalizeDomain ensures domain has proper format for WebKit
func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	// WebKit expects domains with * prefix for subdomains
	if !strings.HasPrefix(d, "*") {
		return "*" + d
	}
	return d
}
