package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks network, timeout, and non-2xx failures.
	ErrTransport = errors.New("transport failure")
	// ErrStructure marks markup that lacks an expected element or attribute.
	ErrStructure = errors.New("unexpected markup structure")
	// ErrConflict marks a store batch rejected by a constraint.
	ErrConflict = errors.New("uniqueness conflict")
	// ErrPathTooShort marks a download URL whose path has fewer than two segments.
	ErrPathTooShort = errors.New("url path has fewer than two segments")
)

// StructuralError describes the element a parser expected but did not find.
type StructuralError struct {
	Element string
	Detail  string
}

// NewStructuralError builds a StructuralError.
func NewStructuralError(element, detail string) *StructuralError {
	return &StructuralError{Element: element, Detail: detail}
}

func (e *StructuralError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: missing %s", ErrStructure, e.Element)
	}
	return fmt.Sprintf("%s: missing %s (%s)", ErrStructure, e.Element, e.Detail)
}

// Unwrap lets errors.Is match ErrStructure.
func (e *StructuralError) Unwrap() error {
	return ErrStructure
}
