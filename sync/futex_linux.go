// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build linux

package sync

import (
	"math"
	"os"
	"time"
	"unsafe"

	"github.com/nxgtw/go-shmdomain/internal/allocator"
	"github.com/nxgtw/go-shmdomain/internal/common"

	"golang.org/x/sys/unix"
)

const (
	cFUTEX_WAIT = 0
	cFUTEX_WAKE = 1

	cFutexWakeAll = math.MaxInt32
)

// owner death is detected by probing the owner's pid while waiting for the lock.
const robustSupported = true

// futex operations are not private, as the words are shared among processes.
func futex(addr unsafe.Pointer, op int32, val uint32, ts unsafe.Pointer) (int32, error) {
	r1, _, err := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(addr),
		uintptr(op),
		uintptr(val),
		uintptr(ts),
		0,
		0)
	allocator.Use(addr)
	allocator.Use(ts)
	if err != 0 {
		return 0, os.NewSyscallError("FUTEX", err)
	}
	return int32(r1), nil
}

// futexWait blocks while *addr == value, but not longer, than timeout.
// Negative timeout means infinite wait.
func futexWait(addr *uint32, value uint32, timeout time.Duration) error {
	ts := common.TimeoutToTimeSpec(timeout)
	_, err := futex(unsafe.Pointer(addr), cFUTEX_WAIT, value, unsafe.Pointer(ts))
	return err
}

// futexWake wakes up to count waiters and returns the number of woken ones.
func futexWake(addr *uint32, count uint32) (int, error) {
	woken, err := futex(unsafe.Pointer(addr), cFUTEX_WAKE, count, nil)
	return int(woken), err
}

func futexWakeAll(addr *uint32) (int, error) {
	return futexWake(addr, cFutexWakeAll)
}
