// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

const condMagic = uint32(0x43560001)

// CondSize is the size of a Cond in shared memory.
const CondSize = int(unsafe.Sizeof(Cond{}))

// Cond is a process-shared condition variable. It must be placed into a shared memory region
// and initialized by Init before use. It is always used with a Mutex held by the waiter.
// Signal may wake any of the waiters, there is no fairness.
type Cond struct {
	seq   uint32
	flags uint32
}

// Init initializes the condvar.
func (c *Cond) Init() error {
	atomic.StoreUint32(&c.seq, 0)
	atomic.StoreUint32(&c.flags, condMagic)
	return nil
}

// Destroy makes the condvar unusable. There must be no waiters.
func (c *Cond) Destroy() error {
	if atomic.LoadUint32(&c.flags) != condMagic {
		return ErrNotInitialized
	}
	atomic.StoreUint32(&c.flags, 0)
	return nil
}

// Wait atomically unlocks m and suspends the calling goroutine.
// Wait locks m before returning. Spurious wakeups are possible, so the caller
// must re-check its condition in a loop. If it returns ErrInconsistent, m is locked.
func (c *Cond) Wait(m *Mutex) error {
	if atomic.LoadUint32(&c.flags) != condMagic {
		return ErrNotInitialized
	}
	seq := atomic.LoadUint32(&c.seq)
	if err := m.Unlock(); err != nil {
		return errors.Wrap(err, "cond: failed to release the mutex")
	}
	waitErr := futexWait(&c.seq, seq, -1)
	if err := m.Lock(); err != nil {
		return err
	}
	if waitErr != nil && !isSpuriousWakeup(waitErr) {
		return errors.Wrap(waitErr, "cond: wait failed")
	}
	return nil
}

// Signal wakes one waiter, if any.
func (c *Cond) Signal() error {
	if atomic.LoadUint32(&c.flags) != condMagic {
		return ErrNotInitialized
	}
	atomic.AddUint32(&c.seq, 1)
	if _, err := futexWake(&c.seq, 1); err != nil {
		return errors.Wrap(err, "cond: signal failed")
	}
	return nil
}

// Broadcast wakes all waiters.
func (c *Cond) Broadcast() error {
	if atomic.LoadUint32(&c.flags) != condMagic {
		return ErrNotInitialized
	}
	atomic.AddUint32(&c.seq, 1)
	if _, err := futexWakeAll(&c.seq); err != nil {
		return errors.Wrap(err, "cond: broadcast failed")
	}
	return nil
}
