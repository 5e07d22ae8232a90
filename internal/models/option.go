package models

import "strings"

// OptionKind enumerates the filter options the parser understands
type OptionKind int

const (
	OptionUnrecognized OptionKind = iota
	OptionDomain
	OptionResourceType
	OptionThirdParty
	OptionMatchCase
	OptionImportant
	OptionBadFilter
	OptionUnsupported // recognized, but changes semantics beyond block/allow
)

// FilterOption is one $option token of a network filter
type FilterOption struct {
	Kind    OptionKind
	Name    string
	Value   string
	Negated bool
	Type    ResourceType // set for OptionResourceType
}

// String renders the option the way it appears in filter text
func (o FilterOption) String() string {
	var b strings.Builder
	if o.Negated {
		b.WriteByte('~')
	}
	b.WriteString(o.Name)
	if o.Value != "" || o.Kind == OptionDomain {
		b.WriteByte('=')
		b.WriteString(o.Value)
	}
	return b.String()
}

// ResourceType is a bitmask of request types; zero means unrestricted
type ResourceType uint16

const (
	TypeDocument ResourceType = 1 << iota
	TypeSubdocument
	TypeScript
	TypeImage
	TypeStylesheet
	TypeFont
	TypeMedia
	TypeXMLHTTPRequest
	TypeObject
	TypePing
	TypeWebSocket
	TypePopup
	TypeOther

	AllResourceTypes = TypeDocument | TypeSubdocument | TypeScript | TypeImage |
		TypeStylesheet | TypeFont | TypeMedia | TypeXMLHTTPRequest | TypeObject |
		TypePing | TypeWebSocket | TypePopup | TypeOther

	// DefaultResourceTypes are the types a filter matches when its type
	// options only exclude; top-level loads need an explicit option.
	DefaultResourceTypes = AllResourceTypes &^ (TypeDocument | TypePopup)
)

var resourceTypeNames = []struct {
	t    ResourceType
	name string
}{
	{TypeDocument, "document"},
	{TypeSubdocument, "subdocument"},
	{TypeScript, "script"},
	{TypeImage, "image"},
	{TypeStylesheet, "stylesheet"},
	{TypeFont, "font"},
	{TypeMedia, "media"},
	{TypeXMLHTTPRequest, "xmlhttprequest"},
	{TypeObject, "object"},
	{TypePing, "ping"},
	{TypeWebSocket, "websocket"},
	{TypePopup, "popup"},
	{TypeOther, "other"},
}

// Has reports whether every type in other is in t. Zero means all types.
func (t ResourceType) Has(other ResourceType) bool {
	if t == 0 {
		return true
	}
	if other == 0 {
		return false
	}
	return t&other == other
}

// Each calls fn for every single type in the mask, in declaration order
func (t ResourceType) Each(fn func(ResourceType)) {
	for _, rt := range resourceTypeNames {
		if t&rt.t != 0 {
			fn(rt.t)
		}
	}
}

// String lists the types in filter syntax, pipe-separated
func (t ResourceType) String() string {
	if t == 0 {
		return "all"
	}
	var names []string
	for _, rt := range resourceTypeNames {
		if t&rt.t != 0 {
			names = append(names, rt.name)
		}
	}
	return strings.Join(names, "|")
}
