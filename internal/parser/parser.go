package parser

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/notegest/internal/doctree"
)

// Parser converts one exported page into a Document.
type Parser interface {
	Parse(r io.Reader, name string) (*doctree.Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".xml": true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xml":
		return OneNote{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ErrMalformedInput matches every *MalformedInputError via errors.Is.
var ErrMalformedInput = errors.New("malformed input")

// Reason distinguishes input that is not XML from XML of the wrong shape.
type Reason int

const (
	ReasonUnparseable Reason = iota + 1
	ReasonWrongSchema
)

func (r Reason) String() string {
	switch r {
	case ReasonUnparseable:
		return "unparseable"
	case ReasonWrongSchema:
		return "wrong schema"
	default:
		return "unknown"
	}
}

// MalformedInputError is returned when a page cannot be turned into a
// Document. It is fatal for that page only.
type MalformedInputError struct {
	Name   string
	Reason Reason
	Detail string
	Err    error
}

func (e *MalformedInputError) Error() string {
	msg := fmt.Sprintf("malformed input %q: %s", e.Name, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }
