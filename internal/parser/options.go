package parser

import (
	"strings"

	"github.com/bnema/contentblock-compiler/internal/models"
)

// unsupportedOptions change request handling beyond block/allow; WebKit
// cannot express them so filters carrying them are dropped
var unsupportedOptions = map[string]bool{
	"redirect":      true,
	"redirect-rule": true,
	"csp":           true,
	"removeparam":   true,
	"replace":       true,
	"header":        true,
	"method":        true,
	"to":            true,
	"permissions":   true,
	"uritransform":  true,
	"denyallow":     true,
	"rewrite":       true,
	"empty":         true,
	"mp4":           true,
	"elemhide":      true,
	"ehide":         true,
	"generichide":   true,
	"ghide":         true,
	"specifichide":  true,
	"shide":         true,
	"genericblock":  true,
	"inline-script": true,
	"inline-font":   true,
	"cname":         true,
}

// parseOption turns one $option token into a typed option
func parseOption(token string) models.FilterOption {
	opt := models.FilterOption{}
	if strings.HasPrefix(token, "~") {
		opt.Negated = true
		token = token[1:]
	}

	name, value, _ := strings.Cut(token, "=")
	opt.Name = strings.ToLower(strings.TrimSpace(name))
	opt.Value = strings.TrimSpace(value)

	switch opt.Name {
	case "domain", "from":
		opt.Kind = models.OptionDomain
	case "third-party", "3p":
		opt.Kind = models.OptionThirdParty
	case "first-party", "1p":
		opt.Kind = models.OptionThirdParty
		opt.Negated = !opt.Negated
	case "match-case":
		opt.Kind = models.OptionMatchCase
	case "important":
		opt.Kind = models.OptionImportant
	case "badfilter":
		opt.Kind = models.OptionBadFilter
	default:
		if rt := mapResourceType(opt.Name); rt != 0 {
			opt.Kind = models.OptionResourceType
			opt.Type = rt
		} else if unsupportedOptions[opt.Name] {
			opt.Kind = models.OptionUnsupported
		}
	}
	return opt
}

// mapResourceType maps ABP resource type names and aliases to a type mask
func mapResourceType(s string) models.ResourceType {
	switch s {
	case "script":
		return models.TypeScript
	case "image", "img":
		return models.TypeImage
	case "stylesheet", "css":
		return models.TypeStylesheet
	case "font":
		return models.TypeFont
	case "media":
		return models.TypeMedia
	case "xmlhttprequest", "xhr":
		return models.TypeXMLHTTPRequest
	case "subdocument", "frame":
		return models.TypeSubdocument
	case "object", "object-subrequest":
		return models.TypeObject
	case "ping", "beacon":
		return models.TypePing
	case "popup":
		return models.TypePopup
	case "other":
		return models.TypeOther
	case "websocket":
		return models.TypeWebSocket
	case "document", "doc":
		return models.TypeDocument
	case "all":
		return models.AllResourceTypes
	}
	return 0
}

// parseDomainOption parses domain=example.com|~excluded.com
func parseDomainOption(s string) (include, exclude []string) {
	return splitDomains(s, "|")
}

// parseDomainList parses the comma-separated prefix of a cosmetic filter
func parseDomainList(s string) (include, exclude []string) {
	return splitDomains(s, ",")
}

func splitDomains(s, sep string) (include, exclude []string) {
	for _, d := range strings.Split(s, sep) {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if strings.HasPrefix(d, "~") {
			exclude = append(exclude, d[1:])
		} else {
			include = append(include, d)
		}
	}
	return include, exclude
}
