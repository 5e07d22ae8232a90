package converter

import (
	"regexp"
	"strings"

	"github.com/bnema/contentblock-compiler/internal/models"
)

// Regex fragments for adblock pattern translation
const (
	// Separator matches any non-alphanumeric character (WebKit doesn't support disjunctions)
	restrSeparator = `[^%.0-9a-z_-]`
	// Case-sensitive rules must not treat uppercase letters as separators
	restrSeparatorCase = `[^%.0-9a-zA-Z_-]`
	// Hostname anchor for ||host patterns
	restrHostnameAnchor1 = `^[a-z-]+://(?:[^/?#]+\.)?`
	// Hostname anchor for ||.host patterns
	restrHostnameAnchor2 = `^[a-z-]+://(?:[^/?#]+)?`
	// Matches every URL
	restrAny = ".*"
)

var (
	// Characters to escape in regex (except * and ^)
	rePlainChars = regexp.MustCompile(`[.+?${}()|[\]\\]`)
	// Runs of asterisks
	reAsterisks = regexp.MustCompile(`\*+`)
	// Separator placeholder
	reSeparators = regexp.MustCompile(`\^`)
	// Shorthand character classes (WebKit doesn't support these)
	reWordChar     = regexp.MustCompile(`\\w`)
	reNonWordChar  = regexp.MustCompile(`\\W`)
	reDigitChar    = regexp.MustCompile(`\\d`)
	reNonDigitChar = regexp.MustCompile(`\\D`)
	reSpaceChar    = regexp.MustCompile(`\\s`)
	reNonSpaceChar = regexp.MustCompile(`\\S`)
	// Numeric quantifiers: {n,} - can be approximated with +
	reNumericQuantifierOpen = regexp.MustCompile(`\{[0-9]+,\}`)
)

// URLFilter translates a network filter pattern, with its anchor markers
// already stripped, into a WebKit url-filter
func URLFilter(pattern string, a models.Anchors, matchCase bool) string {
	if pattern == "" || pattern == "*" {
		return restrAny
	}

	sep := restrSeparator
	if matchCase {
		sep = restrSeparatorCase
	}

	// Escape special regex characters (except * and ^)
	reStr := rePlainChars.ReplaceAllString(pattern, `\$0`)
	reStr = reSeparators.ReplaceAllLiteralString(reStr, sep)
	reStr = reAsterisks.ReplaceAllLiteralString(reStr, restrAny)

	switch {
	case a.Domain:
		if strings.HasPrefix(reStr, `\.`) {
			reStr = restrHostnameAnchor2 + reStr
		} else {
			reStr = restrHostnameAnchor1 + reStr
		}
	case a.Start:
		reStr = "^" + reStr
	}
	if a.End {
		reStr += "$"
	}
	return reStr
}

// RegexURLFilter turns the body of a /regex/ filter into a WebKit url-filter
func RegexURLFilter(body string) string {
	return expandCharacterClasses(body)
}

// EndsWithSeparator reports whether a pattern ends with the ^ separator
func EndsWithSeparator(pattern string) bool {
	return strings.HasSuffix(pattern, "^")
}

// URLFilterEndAnchor creates the variant of a pattern ending with ^ that
// matches URLs ending right where the pattern does
func URLFilterEndAnchor(pattern string, a models.Anchors, matchCase bool) string {
	a.End = false
	regex := URLFilter(strings.TrimSuffix(pattern, "^"), a, matchCase)
	if !strings.HasSuffix(regex, "$") {
		regex += "$"
	}
	return regex
}

// Patterns for detecting unsupported WebKit regex features
var (
	// Numeric quantifiers: {n} or {n,m} - WebKit doesn't support these
	reNumericQuantifier = regexp.MustCompile(`\{[0-9]+(,[0-9]+)?\}`)
	// Non-ASCII characters - WebKit doesn't support these in patterns
	reNonASCII = regexp.MustCompile(`[^\x00-\x7F]`)
	// Word boundary assertions - WebKit doesn't support these
	reWordBoundary = regexp.MustCompile(`\\[bB]`)
)

// unsupportedGroups are assertion and group prefixes WebKit rejects
var unsupportedGroups = []struct {
	pattern string
	name    string
}{
	{`(?<!`, "negative lookbehind"},
	{`(?<=`, "positive lookbehind"},
	{`(?=`, "positive lookahead"},
	{`(?!`, "negative lookahead"},
	{`(?P<`, "named group"},
	{`(?<`, "named group"},
	{`\p{`, "unicode property"},
	{`\P{`, "unicode property"},
}

// ValidateRegex checks if a regex is valid for WebKit
// WebKit has a strict subset of regex features
func ValidateRegex(pattern string) bool {
	if _, err := regexp.Compile(pattern); err != nil {
		return false
	}

	for _, u := range unsupportedGroups {
		if strings.Contains(pattern, u.pattern) {
			return false
		}
	}

	if containsDisjunction(pattern) {
		return false
	}
	if reNumericQuantifier.MatchString(pattern) || reNumericQuantifierOpen.MatchString(pattern) {
		return false
	}
	if reNonASCII.MatchString(pattern) {
		return false
	}
	if reWordBoundary.MatchString(pattern) {
		return false
	}

	// These should have been expanded by expandCharacterClasses
	if reWordChar.MatchString(pattern) || reNonWordChar.MatchString(pattern) ||
		reDigitChar.MatchString(pattern) || reNonDigitChar.MatchString(pattern) ||
		reSpaceChar.MatchString(pattern) || reNonSpaceChar.MatchString(pattern) {
		return false
	}

	return true
}

// containsDisjunction checks if a regex contains | outside of character classes
func containsDisjunction(pattern string) bool {
	inCharClass := false
	escaped := false

	for _, ch := range pattern {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '[' && !inCharClass {
			inCharClass = true
			continue
		}
		if ch == ']' && inCharClass {
			inCharClass = false
			continue
		}
		if ch == '|' && !inCharClass {
			return true
		}
	}
	return false
}

// expandCharacterClasses replaces shorthand character classes with explicit equivalents
// WebKit's Content Blocker regex engine doesn't support \w, \d, \s, etc.
func expandCharacterClasses(pattern string) string {
	// Uppercase (negated) first to avoid partial replacements
	pattern = reNonWordChar.ReplaceAllLiteralString(pattern, `[^a-zA-Z0-9_]`)
	pattern = reWordChar.ReplaceAllLiteralString(pattern, `[a-zA-Z0-9_]`)
	pattern = reNonDigitChar.ReplaceAllLiteralString(pattern, `[^0-9]`)
	pattern = reDigitChar.ReplaceAllLiteralString(pattern, `[0-9]`)
	pattern = reNonSpaceChar.ReplaceAllLiteralString(pattern, `[^ \t\n\r\f\v]`)
	pattern = reSpaceChar.ReplaceAllLiteralString(pattern, `[ \t\n\r\f\v]`)

	// Approximate {n,} with +
	pattern = reNumericQuantifierOpen.ReplaceAllLiteralString(pattern, `+`)

	return pattern
}
