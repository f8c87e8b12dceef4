package model

import "errors"

var (
	// ErrNotFound is returned when a task, address, proxy or session doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when an entity already exists or a task is already queued.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned on invalid entities or requests.
	ErrNotValid = errors.New("not valid")
)
