// Copyright 2016 Aleksandr Demakin. All rights reserved.

package common

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// SyscallErrHasCode returns true, if the err is a syscall error with the given code.
// wrapped errors are unwrapped.
func SyscallErrHasCode(err error, code syscall.Errno) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if sysErr, ok := errors.Cause(err).(*os.SyscallError); ok {
		errno, ok = sysErr.Err.(syscall.Errno)
		if !ok {
			return false
		}
	} else if errno, ok = errors.Cause(err).(syscall.Errno); !ok {
		return false
	}
	return errno == code
}
