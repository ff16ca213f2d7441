package hierarchy

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means the target id does not resolve to a stored node.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument covers malformed ids, empty update lists and disallowed values.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict means a name or position collided with a sibling.
	ErrConflict = errors.New("conflict")
)

func notFound(kind Kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

// ValidateID checks that id is a well-formed node identifier.
func ValidateID(id string) error {
	if id == "" {
		return invalidArg("id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return invalidArg("malformed id %q", id)
	}
	return nil
}

// NewID returns a fresh node identifier.
func NewID() string {
	return uuid.NewString()
}
