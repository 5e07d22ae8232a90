package parser

import (
	"strings"

	"github.com/bnema/contentblock-compiler/internal/models"
)

// parseNetwork parses a network filter
func (p *Parser) parseNetwork(src models.Source, line string) (models.Filter, bool) {
	f := &models.NetworkFilter{Raw: line, Source: src}

	text := line
	if strings.HasPrefix(text, "@@") {
		f.IsException = true
		text = text[2:]
	}

	pattern := text
	var optPart string
	hasOptions := false

	// Split pattern and options on the last unescaped $
	if idx := lastUnescapedDollar(text); idx != -1 {
		candidate := text[idx+1:]
		// /regex$/ keeps its end anchor
		if !(strings.HasPrefix(text, "/") && strings.Contains(candidate, "/")) {
			pattern = text[:idx]
			optPart = candidate
			hasOptions = true
		}
	}
	pattern = strings.ReplaceAll(pattern, `\$`, "$")

	if hasOptions {
		if strings.TrimSpace(optPart) == "" {
			p.malformed(src, "unterminated option list: %s", line)
			return models.Filter{}, false
		}
		if !p.applyOptions(src, line, optPart, &f.Options) {
			return models.Filter{}, false
		}
	}

	pattern, f.Anchors, f.IsRegex = splitAnchors(pattern)

	if f.Anchors.Domain && pattern != "" && strings.ContainsAny(pattern[:1], "/|^:") {
		p.malformed(src, "domain anchor not followed by a hostname: %s", line)
		return models.Filter{}, false
	}

	if !f.IsRegex {
		pattern = trimWildcards(pattern, f.Anchors)
		if !f.Options.MatchCase {
			pattern = strings.ToLower(pattern)
		}
	}

	if pattern == "" && !f.IsRegex {
		p.malformed(src, "empty pattern: %s", line)
		return models.Filter{}, false
	}
	f.Pattern = pattern

	return models.NewNetwork(f), true
}

// applyOptions parses the option list into opts. It reports false, after
// recording a diagnostic, when the filter has to be dropped.
func (p *Parser) applyOptions(src models.Source, line, optPart string, opts *models.NetworkOptions) bool {
	var include, exclude []string
	var types, negTypes models.ResourceType
	typed := false

	for _, token := range strings.Split(optPart, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		opt := parseOption(token)
		switch opt.Kind {
		case models.OptionDomain:
			if opt.Value == "" {
				p.malformed(src, "unterminated option list: %s= has no value: %s", opt.Name, line)
				return false
			}
			inc, exc := parseDomainOption(opt.Value)
			include = append(include, inc...)
			exclude = append(exclude, exc...)
		case models.OptionThirdParty:
			v := !opt.Negated
			opts.ThirdParty = &v
		case models.OptionMatchCase:
			opts.MatchCase = !opt.Negated
		case models.OptionImportant:
			opts.Important = true
		case models.OptionBadFilter:
			opts.BadFilter = true
		case models.OptionResourceType:
			typed = true
			if opt.Negated {
				negTypes |= opt.Type
			} else {
				types |= opt.Type
			}
		case models.OptionUnsupported:
			p.skip(SkipUnsupportedOpt, src, models.DiagUnsupportedOption,
				"option %q cannot be expressed: %s", opt.String(), line)
			return false
		default:
			opts.Unrecognized = append(opts.Unrecognized, opt.String())
			p.note(src, models.DiagUnsupportedOption, "unrecognized option %q ignored: %s", opt.String(), line)
		}
	}

	if typed {
		mask := types
		if mask == 0 {
			mask = models.DefaultResourceTypes
		}
		mask &^= negTypes
		if mask == 0 {
			p.malformed(src, "resource type options exclude every type: %s", line)
			return false
		}
		if mask == models.AllResourceTypes {
			mask = 0
		}
		opts.ResourceTypes = mask
	}

	if len(include) > 0 || len(exclude) > 0 {
		s, ok := p.normalizeScope(src, line, include, exclude)
		if !ok {
			return false
		}
		opts.DomainsIncluded = s.Include
		opts.DomainsExcluded = s.Exclude
	}
	opts.Unrecognized = models.SortedUnique(opts.Unrecognized)
	return true
}

// splitAnchors strips |, || and trailing | markers and detects /regex/
func splitAnchors(pattern string) (string, models.Anchors, bool) {
	var a models.Anchors
	s := pattern

	if strings.HasPrefix(s, "||") {
		a.Domain = true
		s = s[2:]
	} else if strings.HasPrefix(s, "|") {
		a.Start = true
		s = s[1:]
	}

	if strings.HasSuffix(s, "|") && !strings.HasSuffix(s, `\|`) {
		a.End = true
		s = s[:len(s)-1]
	}

	if a == (models.Anchors{}) && len(s) > 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		return s[1 : len(s)-1], a, true
	}
	return s, a, false
}

// trimWildcards drops leading and trailing * that an anchor does not pin,
// so "ads*" and "ads" fingerprint the same
func trimWildcards(pattern string, a models.Anchors) string {
	if pattern == "" {
		return ""
	}
	s := pattern
	if !a.Start && !a.Domain {
		s = strings.TrimLeft(s, "*")
	}
	if !a.End {
		s = strings.TrimRight(s, "*")
	}
	for strings.Contains(s, "**") {
		s = strings.ReplaceAll(s, "**", "*")
	}
	if s == "" {
		return "*"
	}
	return s
}

// lastUnescapedDollar returns the index of the last $ not preceded by \
func lastUnescapedDollar(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '$' && (i == 0 || s[i-1] != '\\') {
			return i
		}
	}
	return -1
}
