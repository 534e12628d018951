// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build unix

package common

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// TimeoutToTimeSpec converts a relative timeout into a timespec.
// It returns nil for negative timeouts, which means 'wait forever'.
func TimeoutToTimeSpec(timeout time.Duration) *unix.Timespec {
	if timeout >= 0 {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		return &ts
	}
	return nil
}

// IsInterruptedSyscallErr returns true, if a syscall was interrupted by a signal.
func IsInterruptedSyscallErr(err error) bool {
	return SyscallErrHasCode(err, syscall.EINTR)
}

// IsTimeoutErr returns true, if a timed wait has expired.
func IsTimeoutErr(err error) bool {
	return SyscallErrHasCode(err, syscall.ETIMEDOUT)
}

// IsWouldBlockErr returns true, if the value has changed before a wait could start.
func IsWouldBlockErr(err error) bool {
	return SyscallErrHasCode(err, syscall.EAGAIN)
}

// ProcessAlive checks whether the process with the given pid exists.
// EPERM means the process exists but belongs to somebody else.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
