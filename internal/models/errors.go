package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel matched by errors.Is for any missing entity.
var ErrNotFound = errors.New("not found")

// NotFoundError reports that an entity with the given ID does not exist.
// It unwraps to ErrNotFound.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewContentNotFound builds a NotFoundError for advertisement content.
func NewContentNotFound(id string) error {
	return &NotFoundError{Entity: "advertisement content", ID: id}
}

// NewGroupNotFound builds a NotFoundError for a targeting group.
func NewGroupNotFound(id string) error {
	return &NotFoundError{Entity: "targeting group", ID: id}
}
