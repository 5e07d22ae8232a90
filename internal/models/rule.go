package models

import (
	"fmt"
	"strings"
)

// WebKitRule represents a Safari/WebKit content blocker rule
type WebKitRule struct {
	Trigger WebKitTrigger `json:"trigger"`
	Action  WebKitAction  `json:"action"`
}

// WebKitTrigger defines when a rule should activate
type WebKitTrigger struct {
	URLFilter                string   `json:"url-filter"`
	URLFilterIsCaseSensitive *bool    `json:"url-filter-is-case-sensitive,omitempty"`
	ResourceType             []string `json:"resource-type,omitempty"`
	LoadType                 []string `json:"load-type,omitempty"`
	IfDomain                 []string `json:"if-domain,omitempty"`
	UnlessDomain             []string `json:"unless-domain,omitempty"`
}

// WebKitAction defines what to do when a rule triggers
type WebKitAction struct {
	Type     string `json:"type"`               // block, css-display-none, ignore-previous-rules
	Selector string `json:"selector,omitempty"` // only for css-display-none
}

// Key returns a string identifying the full trigger/action pair
func (r WebKitRule) Key() string {
	cs := ""
	if r.Trigger.URLFilterIsCaseSensitive != nil && *r.Trigger.URLFilterIsCaseSensitive {
		cs = "cs"
	}
	return strings.Join([]string{
		r.Action.Type,
		r.Action.Selector,
		r.Trigger.URLFilter,
		cs,
		strings.Join(r.Trigger.ResourceType, ","),
		strings.Join(r.Trigger.LoadType, ","),
		strings.Join(r.Trigger.IfDomain, ","),
		strings.Join(r.Trigger.UnlessDomain, ","),
	}, "\x00")
}

// Action type constants
const (
	ActionBlock              = "block"
	ActionCSSDisplayNone     = "css-display-none"
	ActionIgnorePreviousRule = "ignore-previous-rules"
)

// Resource type constants (WebKit names)
const (
	ResourceDocument   = "document"
	ResourceImage      = "image"
	ResourceStyleSheet = "style-sheet"
	ResourceScript     = "script"
	ResourceFont       = "font"
	ResourceRaw        = "raw"
	ResourceMedia      = "media"
	ResourcePopup      = "popup"
)

// Load type constants
const (
	LoadFirstParty = "first-party"
	LoadThirdParty = "third-party"
)

// MaxWebKitRules is Safari/WebKit's limit per content blocker
const MaxWebKitRules = 50000

// TargetFormat selects which rules are emitted and the ceiling they obey
type TargetFormat string

const (
	TargetWebKit         TargetFormat = "webkit"
	TargetWebKitNetwork  TargetFormat = "webkit-network"
	TargetWebKitCosmetic TargetFormat = "webkit-cosmetic"
)

// ParseTargetFormat validates a target format name
func ParseTargetFormat(s string) (TargetFormat, error) {
	f := TargetFormat(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case TargetWebKit, TargetWebKitNetwork, TargetWebKitCosmetic:
		return f, nil
	}
	return "", fmt.Errorf("unknown target format: %q", s)
}

// MaxRules is the rule-count ceiling the format declares
func (f TargetFormat) MaxRules() int {
	return MaxWebKitRules
}

// EmitsNetwork reports whether network filters compile to rules in f
func (f TargetFormat) EmitsNetwork() bool {
	return f == TargetWebKit || f == TargetWebKitNetwork
}

// EmitsCosmetic reports whether cosmetic filters compile to rules in f
func (f TargetFormat) EmitsCosmetic() bool {
	return f == TargetWebKit || f == TargetWebKitCosmetic
}
