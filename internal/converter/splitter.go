package converter

import (
	"fmt"

	"github.com/bnema/contentblock-compiler/internal/models"
)

// Splitter splits rules into chunks respecting the per-file limit
type Splitter struct {
	maxRules int
}

// Part is one output file worth of rules
type Part struct {
	Name  string
	Rules []models.WebKitRule
}

// NewSplitter creates a splitter with the given max rules per file
func NewSplitter(maxRules int) *Splitter {
	if maxRules <= 0 {
		maxRules = models.MaxWebKitRules
	}
	return &Splitter{maxRules: maxRules}
}

// Split divides rules into consecutive parts, preserving rule order. A rule
// set that fits in one file keeps baseName.
func (s *Splitter) Split(rules []models.WebKitRule, baseName string) []Part {
	if len(rules) <= s.maxRules {
		return []Part{{Name: baseName, Rules: rules}}
	}

	numParts := (len(rules) + s.maxRules - 1) / s.maxRules
	parts := make([]Part, 0, numParts)
	for i := 0; i < numParts; i++ {
		start := i * s.maxRules
		end := min(start+s.maxRules, len(rules))
		parts = append(parts, Part{
			Name:  fmt.Sprintf("%s-part%d", baseName, i+1),
			Rules: rules[start:end],
		})
	}
	return parts
}
