package models

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DocumentFormat declares the syntax of a filter document
type DocumentFormat string

const (
	FormatStandard DocumentFormat = "standard" // adblock syntax
	FormatHosts    DocumentFormat = "hosts"    // hostfile syntax
)

// ParseDocumentFormat validates a format name; empty means standard
func ParseDocumentFormat(s string) (DocumentFormat, error) {
	switch DocumentFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatStandard:
		return FormatStandard, nil
	case FormatHosts:
		return FormatHosts, nil
	}
	return "", fmt.Errorf("unknown document format: %q", s)
}

// FilterDocument is one filter list handed to the compiler
type FilterDocument struct {
	Name   string
	Format DocumentFormat
	Lines  []string
}

// Source locates a filter in its input
type Source struct {
	Document int // index into the compiled document sequence
	Line     int // 1-based
}

// Less orders sources by document, then line
func (s Source) Less(o Source) bool {
	if s.Document != o.Document {
		return s.Document < o.Document
	}
	return s.Line < o.Line
}

// RawLine is a single line of a document with its position
type RawLine struct {
	Text   string
	Source Source
}

// ReadDocument splits r into lines
func ReadDocument(name string, format DocumentFormat, r io.Reader) (*FilterDocument, error) {
	scanner := bufio.NewScanner(r)
	// Filter lists can include long lines; bump the buffer.
	scanner.Buffer(make([]byte, 64*1024), 2*1024*1024)

	doc := &FilterDocument{Name: name, Format: format}
	for scanner.Scan() {
		doc.Lines = append(doc.Lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read document %s: %w", name, err)
	}
	return doc, nil
}
