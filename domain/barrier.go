// Copyright 2016 Aleksandr Demakin. All rights reserved.

package domain

import (
	"runtime"
	"sync/atomic"

	ipc_sync "github.com/nxgtw/go-shmdomain/sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Barrier blocks until all participants have called it. It can be used any number of times.
// It fails immediately, if the domain is terminating.
func (d *Domain) Barrier() error {
	defer runtime.KeepAlive(d)
	if d.isClosed() {
		return ErrClosed
	}
	if err := d.barrier(); err != nil {
		d.logFailure("barrier", err)
		return d.metrics.observe("barrier", err)
	}
	d.metrics.barriers.Inc()
	return nil
}

// barrier counts arrivals of the current round. The last one starts a new round
// and wakes everybody. Waiters watch the round number, not the counter,
// as the counter may be reused by the next round before they wake up.
func (d *Domain) barrier() (err error) {
	h := d.hdr
	if h.isTerminating() {
		return ErrTerminating
	}
	if err = lockShared(&h.mutex); err != nil {
		return err
	}
	defer func() {
		if unlockErr := h.mutex.Unlock(); unlockErr != nil && err == nil {
			err = errors.Wrap(unlockErr, "failed to unlock header")
		}
	}()
	if h.isTerminating() {
		return ErrTerminating
	}
	if h.barrierCount == 0 {
		h.barrierCount = h.processes - 1
	} else {
		h.barrierCount--
	}
	if h.barrierCount == 0 {
		h.barrierRound++
		if err = h.barrierCond.Broadcast(); err != nil {
			return errors.Wrap(err, "failed to release the barrier")
		}
		return nil
	}
	round := h.barrierRound
	for round == h.barrierRound {
		if err = waitShared(h, &h.barrierCond, &h.mutex); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown sets the termination flag and wakes all blocked operations of all participants,
// which then fail with ErrTerminating. It can be called by the creator only, and only once.
// No primitive is destroyed, this is done by Close.
func (d *Domain) Shutdown() error {
	defer runtime.KeepAlive(d)
	if d.isClosed() {
		return ErrClosed
	}
	if !d.creator {
		return ErrNotCreator
	}
	h := d.hdr
	if !atomic.CompareAndSwapUint32(&h.terminating, 0, 1) {
		return ErrTerminating
	}
	// waiters check the flag under the same mutex before waiting,
	// so a broadcast under the mutex can't be missed.
	var result error
	result = multierr.Append(result, wakeUnderLock(&h.mutex, h.barrierCond.Broadcast))
	for i, ref := range d.slots {
		result = multierr.Append(result, errors.Wrapf(wakeUnderLock(&ref.mutex, ref.wakeAll), "slot %d", i))
	}
	d.log.Info("domain shut down", zap.String("name", d.name), zap.Error(result))
	return result
}

func wakeUnderLock(m *ipc_sync.Mutex, wake func() error) error {
	if err := m.Lock(); err != nil && !errors.Is(err, ipc_sync.ErrInconsistent) {
		return errors.Wrap(err, "failed to lock")
	}
	wakeErr := wake()
	if err := m.Unlock(); err != nil && wakeErr == nil {
		wakeErr = err
	}
	return wakeErr
}

// Repair restores the domain after a participant died holding one of its locks.
// Any participant may call it. For every inconsistent slot buffered bytes are dropped,
// and the roles held by dead processes are released. An inconsistent barrier starts a new round,
// releasing current waiters. Repair returns the number of repaired primitives.
func (d *Domain) Repair() (int, error) {
	defer runtime.KeepAlive(d)
	if d.isClosed() {
		return 0, ErrClosed
	}
	repaired := 0
	ok, err := d.repairHeader()
	if err != nil {
		return repaired, errors.Wrap(err, "failed to repair the header")
	}
	if ok {
		repaired++
	}
	for i, ref := range d.slots {
		ok, err := ref.repair()
		if err != nil {
			return repaired, errors.Wrapf(err, "failed to repair slot %d", i)
		}
		if ok {
			repaired++
			d.log.Warn("slot repaired, buffered data dropped", zap.Int("slot", i))
		}
	}
	return repaired, nil
}

func (d *Domain) repairHeader() (bool, error) {
	h := d.hdr
	err := h.mutex.Lock()
	if err == nil {
		return false, h.mutex.Unlock()
	}
	if !errors.Is(err, ipc_sync.ErrInconsistent) {
		return false, err
	}
	h.barrierCount = 0
	h.barrierRound++
	result := h.barrierCond.Broadcast()
	if err := h.mutex.MarkConsistent(); err != nil && result == nil {
		result = err
	}
	if err := h.mutex.Unlock(); err != nil && result == nil {
		result = err
	}
	d.log.Warn("barrier repaired")
	return true, result
}
