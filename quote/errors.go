package quote

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable means no usable quote rows exist at all.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrParse is wrapped by every ParseError.
	ErrParse = errors.New("parse error")
)

// ParseError describes an input block that could not be read into the canonical schema.
type ParseError struct {
	Block  string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %s", e.Block, e.Line, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.Block, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}
