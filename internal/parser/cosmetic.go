package parser

import (
	"strings"

	"github.com/bnema/contentblock-compiler/internal/models"
)

// proceduralOperators are extended-css operators WebKit cannot evaluate.
// :has( and :not( are plain CSS that WebKit supports.
var proceduralOperators = []string{
	":has-text(", ":xpath(", ":matches-css(", ":matches-css-before(",
	":matches-css-after(", ":matches-attr(", ":matches-path(", ":min-text-length(",
	":upward(", ":remove(", ":style(", ":remove-attr(", ":remove-class(",
	":watch-attr(", ":others(", ":-abp-",
}

// containsProcedural checks for procedural cosmetic filter syntax
func containsProcedural(selector string) bool {
	for _, op := range proceduralOperators {
		if strings.Contains(selector, op) {
			return true
		}
	}
	return false
}

// parseCosmetic parses a cosmetic (CSS) filter
func (p *Parser) parseCosmetic(src models.Source, line string, c Classification) (models.Filter, bool) {
	f := &models.CosmeticFilter{Raw: line, Source: src}

	switch c.Separator {
	case SepHideException:
		f.IsException = true
	case SepExtended:
		f.Extended = true
	case SepExtendedException:
		f.Extended = true
		f.IsException = true
	case SepInject, SepInjectException:
		p.skip(SkipInjection, src, models.DiagUnsupportedSelector, "css injection cannot be expressed: %s", line)
		return models.Filter{}, false
	}

	selector := strings.TrimSpace(line[c.SepIndex+len(c.Separator):])
	if selector == "" {
		p.malformed(src, "empty selector: %s", line)
		return models.Filter{}, false
	}

	// Scriptlet injection - unsupported
	if strings.HasPrefix(selector, "+js(") {
		p.skip(SkipScriptlet, src, models.DiagUnsupportedSelector, "scriptlet cannot be expressed: %s", line)
		return models.Filter{}, false
	}

	// HTML filtering - unsupported
	if strings.HasPrefix(selector, "^") {
		p.skip(SkipHTMLFilter, src, models.DiagUnsupportedSelector, "html filter cannot be expressed: %s", line)
		return models.Filter{}, false
	}

	// Procedural cosmetic filters - unsupported
	if containsProcedural(selector) {
		p.skip(SkipProcedural, src, models.DiagUnsupportedSelector, "procedural selector cannot be expressed: %s", line)
		return models.Filter{}, false
	}

	if f.Extended {
		p.note(src, models.DiagUnsupportedSelector, "extended selector syntax downgraded to a plain hide rule: %s", line)
	}
	f.Selector = selector

	if c.SepIndex > 0 {
		include, exclude := parseDomainList(line[:c.SepIndex])
		s, ok := p.normalizeScope(src, line, include, exclude)
		if !ok {
			return models.Filter{}, false
		}
		f.DomainsIncluded = s.Include
		f.DomainsExcluded = s.Exclude
	}

	return models.NewCosmetic(f), true
}
