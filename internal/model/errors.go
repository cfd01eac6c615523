package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrPreconditionFailed is returned when an operation is requested on a
	// resource whose current state does not allow it.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrUnauthorized is returned when the caller is not allowed to access a resource.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoChanges is returned when a publish operation finds a clean working tree.
	ErrNoChanges = errors.New("no changes to commit")
)
