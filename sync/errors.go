// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import "github.com/pkg/errors"

var (
	// ErrInconsistent is returned by Lock, if a previous owner of a robust mutex
	// died while holding it. The mutex is locked by the caller in this case.
	ErrInconsistent = errors.New("mutex owner died, protected state may be inconsistent")
	// ErrNotInitialized is returned, when an object was not initialized or was already destroyed.
	ErrNotInitialized = errors.New("object is not initialized")
	// ErrNotLocked is returned by Unlock for an unlocked mutex.
	ErrNotLocked = errors.New("mutex is not locked")
	// ErrNotOwner is returned, when a mutex is held by another process.
	ErrNotOwner = errors.New("mutex is held by another process")
	// ErrBusy is returned by Destroy for a locked mutex.
	ErrBusy = errors.New("mutex is locked")
	// ErrNotRobust is returned by MarkConsistent for a non-robust mutex.
	ErrNotRobust = errors.New("mutex is not robust")
	// ErrUnsupported is returned, when the platform lacks a required capability.
	ErrUnsupported = errors.New("operation is not supported on this platform")
)
