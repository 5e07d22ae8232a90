package models

import "fmt"

// DiagnosticKind classifies a problem found while compiling
type DiagnosticKind int

const (
	DiagMalformed DiagnosticKind = iota
	DiagUnsupportedOption
	DiagUnsupportedSelector
	DiagUnsupportedPattern
	DiagLimitExceeded
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagMalformed:
		return "malformed"
	case DiagUnsupportedOption:
		return "unsupported-option"
	case DiagUnsupportedSelector:
		return "unsupported-selector"
	case DiagUnsupportedPattern:
		return "unsupported-pattern"
	case DiagLimitExceeded:
		return "limit-exceeded"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText lets diagnostics kinds serialize by name
func (k DiagnosticKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Diagnostic reports a line that was skipped, downgraded or truncated
type Diagnostic struct {
	Line     int            `json:"line"`
	Document int            `json:"document"`
	Kind     DiagnosticKind `json:"kind"`
	Message  string         `json:"message"`
}

// NewDiagnostic creates a diagnostic for the given source position
func NewDiagnostic(src Source, kind DiagnosticKind, format string, args ...any) Diagnostic {
	return Diagnostic{
		Line:     src.Line,
		Document: src.Document,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	}
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("doc %d line %d: %s: %s", d.Document, d.Line, d.Kind, d.Message)
}
