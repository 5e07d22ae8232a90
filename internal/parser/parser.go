package parser

import (
	"strings"

	"github.com/bnema/contentblock-compiler/internal/models"
	"github.com/bnema/contentblock-compiler/internal/scope"
)

// Parser parses ABP/uBlock filter lists. A Parser is not safe for concurrent
// use; parallel callers give each worker its own Parser and merge the stats.
type Parser struct {
	stats Stats
	diags []models.Diagnostic
}

// Stats tracks parsing statistics
type Stats struct {
	Total       int
	Network     int
	Exception   int
	Cosmetic    int
	Comments    int
	Blank       int
	Malformed   int
	Unsupported int
	SkipReasons map[string]int // Detailed breakdown of skipped filters
}

// Merge adds the counters of other into s
func (s *Stats) Merge(other Stats) {
	s.Total += other.Total
	s.Network += other.Network
	s.Exception += other.Exception
	s.Cosmetic += other.Cosmetic
	s.Comments += other.Comments
	s.Blank += other.Blank
	s.Malformed += other.Malformed
	s.Unsupported += other.Unsupported
	if s.SkipReasons == nil {
		s.SkipReasons = make(map[string]int)
	}
	for reason, count := range other.SkipReasons {
		s.SkipReasons[reason] += count
	}
}

// SkipReason constants
const (
	SkipScriptlet      = "scriptlet (##+js)"
	SkipHTMLFilter     = "html-filter (##^)"
	SkipInjection      = "css-injection (#$#)"
	SkipProcedural     = "procedural (:has-text, :xpath, etc)"
	SkipUnsupportedOpt = "unsupported-option (redirect, csp, etc)"
	SkipEntityDomain   = "entity-domain (example.*)"
	SkipMalformed      = "malformed"
)

// New creates a new parser
func New() *Parser {
	return &Parser{
		stats: Stats{
			SkipReasons: make(map[string]int),
		},
	}
}

// Stats returns parsing statistics
func (p *Parser) Stats() Stats {
	return p.stats
}

// Diagnostics returns the problems recorded so far, in line order
func (p *Parser) Diagnostics() []models.Diagnostic {
	return p.diags
}

// malformed records a line that cannot be parsed at all
func (p *Parser) malformed(src models.Source, format string, args ...any) {
	p.stats.Malformed++
	p.stats.SkipReasons[SkipMalformed]++
	p.diags = append(p.diags, models.NewDiagnostic(src, models.DiagMalformed, format, args...))
}

// skip records a parsed filter that the target cannot express
func (p *Parser) skip(reason string, src models.Source, kind models.DiagnosticKind, format string, args ...any) {
	p.stats.Unsupported++
	p.stats.SkipReasons[reason]++
	p.diags = append(p.diags, models.NewDiagnostic(src, kind, format, args...))
}

// note records a diagnostic for a filter that is kept
func (p *Parser) note(src models.Source, kind models.DiagnosticKind, format string, args ...any) {
	p.diags = append(p.diags, models.NewDiagnostic(src, kind, format, args...))
}

// ParseLines parses a batch of lines of one document
func (p *Parser) ParseLines(lines []models.RawLine, format models.DocumentFormat) []models.Filter {
	var filters []models.Filter
	for _, line := range lines {
		filters = append(filters, p.ParseLine(line, format)...)
	}
	return filters
}

// ParseLine parses a single line. Hosts lines may yield several filters;
// comments, blank and skipped lines yield none.
func (p *Parser) ParseLine(line models.RawLine, format models.DocumentFormat) []models.Filter {
	if format == models.FormatHosts {
		return p.parseHostsLine(line)
	}

	text := strings.TrimSpace(line.Text)
	c := Classify(text)
	if c.Kind == LineBlank {
		p.stats.Blank++
		return nil
	}
	p.stats.Total++

	switch c.Kind {
	case LineComment:
		p.stats.Comments++
		return nil
	case LineMalformed:
		p.malformed(line.Source, "empty filter %q", text)
		return nil
	case LineCosmetic:
		f, ok := p.parseCosmetic(line.Source, text, c)
		if !ok {
			return nil
		}
		p.stats.Cosmetic++
		return []models.Filter{f}
	}

	f, ok := p.parseNetwork(line.Source, text)
	if !ok {
		return nil
	}
	if f.Network.IsException {
		p.stats.Exception++
	} else {
		p.stats.Network++
	}
	return []models.Filter{f}
}

// normalizeScope normalizes a raw domain scope. It reports false, after
// recording a diagnostic, when the filter has to be dropped.
func (p *Parser) normalizeScope(src models.Source, raw string, include, exclude []string) (scope.Scope, bool) {
	var s scope.Scope
	for _, set := range []struct {
		in  []string
		out *[]string
	}{{include, &s.Include}, {exclude, &s.Exclude}} {
		for _, d := range set.in {
			if scope.IsEntity(d) {
				p.skip(SkipEntityDomain, src, models.DiagUnsupportedOption,
					"entity domain %q cannot be expressed: %s", d, raw)
				return scope.Scope{}, false
			}
			n := scope.NormalizeDomain(d)
			if n == "" {
				p.malformed(src, "invalid domain %q: %s", d, raw)
				return scope.Scope{}, false
			}
			*set.out = append(*set.out, n)
		}
	}

	canonical, ok := scope.Canonical(s)
	if !ok {
		p.malformed(src, "domain scope excludes every included domain: %s", raw)
		return scope.Scope{}, false
	}
	return canonical, true
}
