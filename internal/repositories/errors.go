package repositories

import (
	"errors"
	"fmt"
)

// RepositoryError wraps a storage failure with the operation and key involved.
type RepositoryError struct {
	Op  string
	Key string
	Err error
}

func (e *RepositoryError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("repository %s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a RepositoryError.
func NewRepositoryError(op, key string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Key: key, Err: err}
}

// NotFoundError signals that the requested entity does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// IsNotFound reports whether err signals a missing entity.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ContentConflictError signals that a finalize hit an existing paper with the
// same content identity.
type ContentConflictError struct {
	ContentID     string
	ExistingDocID string
}

func (e *ContentConflictError) Error() string {
	return fmt.Sprintf("content %s already stored as paper %s", e.ContentID, e.ExistingDocID)
}

// AsContentConflict extracts a ContentConflictError from an error chain.
func AsContentConflict(err error) (*ContentConflictError, bool) {
	var cc *ContentConflictError
	if errors.As(err, &cc) {
		return cc, true
	}
	return nil, false
}
