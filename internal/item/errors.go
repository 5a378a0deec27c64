package item

import (
	"errors"
	"fmt"
)

// Sentinel errors for item operations.
var (
	// ErrDuplicateIdentifier is returned when an identifier or unique
	// identifier is already registered.
	ErrDuplicateIdentifier = errors.New("item: duplicate identifier")

	// ErrItemNotFound is returned when no item has the identifier.
	ErrItemNotFound = errors.New("item: not found")

	// ErrUnknownState is returned for a state name the item does not declare.
	ErrUnknownState = errors.New("item: unknown state")

	// ErrInvalidStateValue is returned when a value fails the state schema.
	ErrInvalidStateValue = errors.New("item: invalid state value")

	// ErrUnknownAction is returned for an action the item does not declare.
	ErrUnknownAction = errors.New("item: unknown action")

	// ErrItemNotOnline is returned when an action or a state write targets
	// an item that is not online.
	ErrItemNotOnline = errors.New("item: not online")

	// ErrUnknownType is returned when no constructor exists for a type.
	ErrUnknownType = errors.New("item: unknown item type")

	// ErrDuplicateType is returned when a type constructor is registered
	// twice.
	ErrDuplicateType = errors.New("item: item type already registered")

	// ErrInvalidSpec is returned when an item spec is incomplete or its
	// defaults do not satisfy their schemas.
	ErrInvalidSpec = errors.New("item: invalid spec")
)

// StateError reports a failure for one state of one item. It unwraps to a
// sentinel or a setter error.
type StateError struct {
	Item  string
	State string
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("item %s state %s: %v", e.Item, e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}
