// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/nxgtw/go-shmdomain/internal/common"

	"github.com/pkg/errors"
)

const (
	cMutexSpinCount = 100

	// the lock word contains owner's pid and a 'have waiters' bit,
	// like the kernel's robust futex word does.
	mutexUnlocked  = uint32(0)
	mutexWaiters   = uint32(1 << 31)
	mutexOwnerMask = uint32(1<<30 - 1)

	mutexMagic        = uint32(0x4d580000)
	mutexMagicMask    = uint32(0xffff0000)
	mutexRobust       = uint32(1 << 0)
	mutexBlockSignals = uint32(1 << 1)

	mutexConsistent   = uint32(0)
	mutexInconsistent = uint32(1)

	// how often a waiter checks, if the owner of a robust mutex is still alive.
	ownerCheckInterval = 50 * time.Millisecond
)

// MutexSize is the size of a Mutex in shared memory.
const MutexSize = int(unsafe.Sizeof(Mutex{}))

// Mutex is a process-shared mutex. It must be placed into a shared memory region
// and initialized by Init before use. The zero value is not usable.
// Several goroutines of the same process may use it, as it was sync.Mutex.
type Mutex struct {
	state       uint32
	flags       uint32
	consistency uint32
	_           uint32
	blocked     SignalSet
	saved       SignalSet
}

// Init initializes the mutex.
//	robust - if true, and robust mutexes are supported, a death of the owner is reported
//	as ErrInconsistent to the next locker. If robust mutexes are not supported, the mutex
//	is created as a non-robust one.
//	mask - if not nil, these signals are blocked for the calling thread while the mutex is locked.
func (m *Mutex) Init(robust bool, mask *SignalSet) error {
	flags := mutexMagic
	if robust && robustSupported {
		flags |= mutexRobust
	}
	m.blocked = 0
	if mask != nil && !mask.Empty() {
		if !signalMaskSupported {
			return errors.Wrap(ErrUnsupported, "signal blocking")
		}
		flags |= mutexBlockSignals
		m.blocked = *mask
	}
	m.saved = 0
	atomic.StoreUint32(&m.state, mutexUnlocked)
	atomic.StoreUint32(&m.consistency, mutexConsistent)
	atomic.StoreUint32(&m.flags, flags)
	return nil
}

// Destroy makes the mutex unusable. It fails for a locked mutex.
func (m *Mutex) Destroy() error {
	if !validMutexFlags(atomic.LoadUint32(&m.flags)) {
		return ErrNotInitialized
	}
	if atomic.LoadUint32(&m.state) != mutexUnlocked {
		return ErrBusy
	}
	atomic.StoreUint32(&m.flags, 0)
	return nil
}

// Robust returns true, if the owner death is detected for this mutex.
func (m *Mutex) Robust() bool {
	return atomic.LoadUint32(&m.flags)&mutexRobust != 0
}

// Lock locks the mutex. If the lock is in use, the calling goroutine blocks until the mutex is available.
// If it returns ErrInconsistent, the mutex is locked.
func (m *Mutex) Lock() error {
	_, err := m.acquire(m.lock)
	return err
}

// TryLock makes one attempt to lock the mutex.
// The mutex is locked, if it returns true.
func (m *Mutex) TryLock() (bool, error) {
	return m.acquire(m.tryLock)
}

// Unlock releases the mutex. It fails, if the mutex is not locked, or is held by another process.
func (m *Mutex) Unlock() error {
	flags := atomic.LoadUint32(&m.flags)
	if !validMutexFlags(flags) {
		return ErrNotInitialized
	}
	old := atomic.LoadUint32(&m.state)
	if old == mutexUnlocked {
		return ErrNotLocked
	}
	if old&mutexOwnerMask != currentProcess().pid {
		return ErrNotOwner
	}
	saved := m.saved
	var result error
	if atomic.SwapUint32(&m.state, mutexUnlocked)&mutexWaiters != 0 {
		if _, err := futexWake(&m.state, 1); err != nil {
			result = errors.Wrap(err, "failed to wake a waiter")
		}
	}
	if flags&mutexBlockSignals != 0 {
		if err := restoreSignals(saved); err != nil && result == nil {
			result = err
		}
		runtime.UnlockOSThread()
	}
	return result
}

// MarkConsistent clears inconsistent state of a robust mutex.
// The mutex must be held by the calling process.
func (m *Mutex) MarkConsistent() error {
	flags := atomic.LoadUint32(&m.flags)
	if !validMutexFlags(flags) {
		return ErrNotInitialized
	}
	if flags&mutexRobust == 0 {
		if !robustSupported {
			return ErrUnsupported
		}
		return ErrNotRobust
	}
	if atomic.LoadUint32(&m.state)&mutexOwnerMask != currentProcess().pid {
		return ErrNotOwner
	}
	atomic.StoreUint32(&m.consistency, mutexConsistent)
	return nil
}

// acquire wraps a locking function with signal blocking.
func (m *Mutex) acquire(lockFunc func(flags uint32) (bool, error)) (bool, error) {
	flags := atomic.LoadUint32(&m.flags)
	if !validMutexFlags(flags) {
		return false, ErrNotInitialized
	}
	if flags&mutexBlockSignals == 0 {
		return lockFunc(flags)
	}
	runtime.LockOSThread()
	old, err := blockSignals(m.blocked)
	if err != nil {
		runtime.UnlockOSThread()
		return false, err
	}
	locked, err := lockFunc(flags)
	if !locked {
		restoreSignals(old)
		runtime.UnlockOSThread()
		return false, err
	}
	m.saved = old
	return true, err
}

func (m *Mutex) tryLock(flags uint32) (bool, error) {
	self := currentProcess().pid
	if atomic.CompareAndSwapUint32(&m.state, mutexUnlocked, self) {
		return true, m.checkConsistency()
	}
	if flags&mutexRobust != 0 {
		old := atomic.LoadUint32(&m.state)
		if old != mutexUnlocked && m.takeOverDead(old, self) {
			return true, ErrInconsistent
		}
	}
	return false, nil
}

// lock is based on 'Futexes Are Tricky' by Ulrich Drepper.
// After the first sleep the lock is always taken with the waiters bit set,
// as there may be other sleepers.
func (m *Mutex) lock(flags uint32) (bool, error) {
	self := currentProcess().pid
	for i := 0; i < cMutexSpinCount; i++ {
		if atomic.CompareAndSwapUint32(&m.state, mutexUnlocked, self) {
			return true, m.checkConsistency()
		}
	}
	robust := flags&mutexRobust != 0
	timeout := time.Duration(-1)
	if robust {
		timeout = ownerCheckInterval
	}
	for {
		old := atomic.LoadUint32(&m.state)
		if old == mutexUnlocked {
			if atomic.CompareAndSwapUint32(&m.state, mutexUnlocked, self|mutexWaiters) {
				return true, m.checkConsistency()
			}
			continue
		}
		if robust && m.takeOverDead(old, self) {
			return true, ErrInconsistent
		}
		if old&mutexWaiters == 0 {
			if !atomic.CompareAndSwapUint32(&m.state, old, old|mutexWaiters) {
				continue
			}
			old |= mutexWaiters
		}
		if err := futexWait(&m.state, old, timeout); err != nil && !isSpuriousWakeup(err) {
			return false, errors.Wrap(err, "mutex wait failed")
		}
	}
}

// takeOverDead locks the mutex, if its owner is not alive anymore.
func (m *Mutex) takeOverDead(old, self uint32) bool {
	owner := old & mutexOwnerMask
	if owner == self || common.ProcessAlive(int(owner)) {
		return false
	}
	if !atomic.CompareAndSwapUint32(&m.state, old, self|mutexWaiters) {
		return false
	}
	atomic.StoreUint32(&m.consistency, mutexInconsistent)
	return true
}

func (m *Mutex) checkConsistency() error {
	if atomic.LoadUint32(&m.consistency) != mutexConsistent {
		return ErrInconsistent
	}
	return nil
}

func validMutexFlags(flags uint32) bool {
	return flags&mutexMagicMask == mutexMagic
}
