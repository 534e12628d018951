// Copyright 2016 Aleksandr Demakin. All rights reserved.

package domain

import (
	ipc_sync "github.com/nxgtw/go-shmdomain/sync"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned for a zero capacity or participant count,
	// or for a negative extra space size.
	ErrInvalidArgument = errors.New("invalid domain argument")
	// ErrInvalidRank is returned, if a rank or a recipient is out of [0, processes).
	ErrInvalidRank = errors.New("rank is out of range")
	// ErrTerminating is returned by every blocking operation after the domain was shut down.
	// It is permanent.
	ErrTerminating = errors.New("domain is terminating")
	// ErrNotCreator is returned, if an operation reserved for the creator is called by another process.
	ErrNotCreator = errors.New("operation is allowed for the domain creator only")
	// ErrBadHeader is returned by Connect for an object, which does not hold a valid domain.
	ErrBadHeader = errors.New("invalid domain header")
	// ErrClosed is returned for operations on a closed handle.
	ErrClosed = errors.New("domain handle is closed")
	// ErrInconsistent is returned, if a process died holding one of the domain's locks.
	// The state stays inconsistent until Repair is called.
	ErrInconsistent = ipc_sync.ErrInconsistent
)
