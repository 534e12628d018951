// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build unix && !linux

package sync

import (
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const (
	robustSupported = false
	cPollInterval   = 200 * time.Microsecond
)

// futexWait emulates an address-based wait by polling the word.
func futexWait(addr *uint32, value uint32, timeout time.Duration) error {
	start := time.Now()
	for atomic.LoadUint32(addr) == value {
		if timeout >= 0 && time.Since(start) >= timeout {
			return os.NewSyscallError("FUTEX", unix.ETIMEDOUT)
		}
		time.Sleep(cPollInterval)
	}
	return nil
}

func futexWake(addr *uint32, count uint32) (int, error) {
	return 0, nil
}

func futexWakeAll(addr *uint32) (int, error) {
	return 0, nil
}
