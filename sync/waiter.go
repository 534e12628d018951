// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"github.com/nxgtw/go-shmdomain/internal/common"
)

// isSpuriousWakeup returns true for futex errors, after which the caller must
// simply re-check its condition.
func isSpuriousWakeup(err error) bool {
	return common.IsWouldBlockErr(err) || common.IsInterruptedSyscallErr(err) || common.IsTimeoutErr(err)
}

// RobustSupported returns true, if robust mutexes are available on this platform.
func RobustSupported() bool {
	return robustSupported
}
