package parser

import "strings"

// LineKind is the classification of a raw filter line
type LineKind int

const (
	LineBlank LineKind = iota
	LineComment
	LineNetwork
	LineCosmetic
	LineMalformed
)

// Cosmetic separators, longest first so #@?# wins over #?#
const (
	SepHide              = "##"
	SepHideException     = "#@#"
	SepExtended          = "#?#"
	SepExtendedException = "#@?#"
	SepInject            = "#$#"
	SepInjectException   = "#@$#"
)

var cosmeticSeparators = []string{
	SepExtendedException,
	SepInjectException,
	SepHideException,
	SepExtended,
	SepInject,
	SepHide,
}

// Classification describes a line and, for cosmetic lines, where the
// separator sits
type Classification struct {
	Kind      LineKind
	Separator string
	SepIndex  int
}

// Classify decides which parser handles a trimmed line
func Classify(line string) Classification {
	if line == "" {
		return Classification{Kind: LineBlank}
	}
	if strings.HasPrefix(line, "!") || strings.HasPrefix(line, "[") {
		return Classification{Kind: LineComment}
	}

	if idx, sep := findCosmeticSeparator(line); idx != -1 {
		return Classification{Kind: LineCosmetic, Separator: sep, SepIndex: idx}
	}

	// "# text" is a comment in most lists, "#" never starts a network filter
	if strings.HasPrefix(line, "#") {
		return Classification{Kind: LineComment}
	}

	switch strings.TrimRight(line, " ") {
	case "@@", "|", "||", "@@|", "@@||", "$", "@@$":
		return Classification{Kind: LineMalformed}
	}
	return Classification{Kind: LineNetwork}
}

// findCosmeticSeparator returns the first cosmetic separator whose prefix
// can be a domain list. Anything else before it (like $, | or /) means the
// # belongs to a network pattern.
func findCosmeticSeparator(line string) (int, string) {
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '#' {
			for _, sep := range cosmeticSeparators {
				if strings.HasPrefix(line[i:], sep) {
					return i, sep
				}
			}
			continue
		}
		if !isDomainListChar(c) {
			return -1, ""
		}
	}
	return -1, ""
}

func isDomainListChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '-', c == '_', c == '~', c == ',', c == '*', c == ':':
		return true
	case c >= 0x80: // internationalized domains
		return true
	}
	return false
}
