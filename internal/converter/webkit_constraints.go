package converter

// WebKit Content Blocker Regex Constraints
//
// WebKit's Content Blocker uses a strict subset of JavaScript regular expressions.
// Many common regex features are NOT supported due to performance constraints.
//
// References:
// - https://webkit.org/blog/3476/content-blockers-first-look/
// - https://github.com/AdguardTeam/SafariConverterLib
//
// SUPPORTED FEATURES:
// - . (dot)           - Match any single character
// - [a-z]             - Character ranges/classes
// - [^a-z]            - Negated character classes
// - ()                - Grouping
// - *                 - Zero or more (greedy)
// - +                 - One or more (greedy)
// - ?                 - Zero or one (greedy)
// - ^                 - Start anchor (ONLY at beginning of pattern)
// - $                 - End anchor (ONLY at end of pattern)
// - \. \/ \\ etc      - Escaped literal characters
//
// UNSUPPORTED FEATURES:
// - \w \W \d \D \s \S - Shorthand classes (expanded before validation)
// - \b \B             - Word boundary
// - {n} {n,} {n,m}    - Numeric quantifiers ({n,} is approximated with +)
// - |                 - Alternation outside character classes
// - lookaround, named groups, \p{...}
// - Non-ASCII chars
//
// Limits: 50,000 rules per content blocker, and if-domain and
// unless-domain cannot appear in the same trigger.

import (
	"strings"
)

// WebKitRegexIssue describes a problem found in a regex pattern
type WebKitRegexIssue struct {
	Pattern     string
	Issue       string
	Fixable     bool
	Replacement string
}

// shorthandClasses are the escapes expandCharacterClasses rewrites, plus the
// word boundaries it cannot
var shorthandClasses = []struct {
	match       string
	replacement string
	fixable     bool
}{
	{`\w`, `[a-zA-Z0-9_]`, true},
	{`\W`, `[^a-zA-Z0-9_]`, true},
	{`\d`, `[0-9]`, true},
	{`\D`, `[^0-9]`, true},
	{`\s`, `[ \t\n\r\f\v]`, true},
	{`\S`, `[^ \t\n\r\f\v]`, true},
	{`\b`, "", false},
	{`\B`, "", false},
}

// CheckWebKitCompatibility analyzes a regex pattern for WebKit compatibility issues
func CheckWebKitCompatibility(pattern string) []WebKitRegexIssue {
	var issues []WebKitRegexIssue

	for _, sp := range shorthandClasses {
		if strings.Contains(pattern, sp.match) {
			issues = append(issues, WebKitRegexIssue{
				Pattern:     pattern,
				Issue:       "shorthand character class: " + sp.match,
				Fixable:     sp.fixable,
				Replacement: sp.replacement,
			})
		}
	}

	for _, m := range reNumericQuantifierOpen.FindAllString(pattern, -1) {
		issues = append(issues, WebKitRegexIssue{
			Pattern:     pattern,
			Issue:       "numeric quantifier: " + m,
			Fixable:     true,
			Replacement: "+",
		})
	}
	for _, m := range reNumericQuantifier.FindAllString(pattern, -1) {
		issues = append(issues, WebKitRegexIssue{
			Pattern: pattern,
			Issue:   "numeric quantifier: " + m,
			Fixable: false,
		})
	}

	if containsDisjunction(pattern) {
		issues = append(issues, WebKitRegexIssue{
			Pattern: pattern,
			Issue:   "disjunction (|) outside character class",
			Fixable: false,
		})
	}

	if reNonASCII.MatchString(pattern) {
		issues = append(issues, WebKitRegexIssue{
			Pattern: pattern,
			Issue:   "non-ASCII characters",
			Fixable: false,
		})
	}

	seen := make(map[string]bool)
	for _, ua := range unsupportedGroups {
		if strings.Contains(pattern, ua.pattern) && !seen[ua.name] {
			seen[ua.name] = true
			issues = append(issues, WebKitRegexIssue{
				Pattern: pattern,
				Issue:   ua.name,
				Fixable: false,
			})
		}
	}

	return issues
}

// HasUnfixableIssues returns true if the pattern has issues that cannot be fixed
func HasUnfixableIssues(pattern string) bool {
	for _, issue := range CheckWebKitCompatibility(pattern) {
		if !issue.Fixable {
			return true
		}
	}
	return false
}

// DescribeIssues returns a human-readable description of all issues
func DescribeIssues(issues []WebKitRegexIssue) string {
	if len(issues) == 0 {
		return ""
	}
	var parts []string
	for _, issue := range issues {
		parts = append(parts, issue.Issue)
	}
	return strings.Join(parts, ", ")
}
