// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"os"
	"sync"
)

// processState holds process-wide values used by the primitives.
// go programs never fork without exec, so it is computed once.
type processState struct {
	pid uint32
}

var (
	procOnce sync.Once
	proc     processState
)

func currentProcess() *processState {
	procOnce.Do(func() {
		proc.pid = uint32(os.Getpid()) & mutexOwnerMask
	})
	return &proc
}
