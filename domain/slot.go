// Copyright 2016 Aleksandr Demakin. All rights reserved.

package domain

import (
	"sync/atomic"

	"github.com/nxgtw/go-shmdomain/internal/common"
	ipc_sync "github.com/nxgtw/go-shmdomain/sync"

	"github.com/pkg/errors"
)

// activity tells which roles are taken on a slot.
// At most one writer and one reader may be active at a time.
type activity uint32

const (
	slotIdle         activity = 0
	slotWriterActive activity = 1 << 0
	slotReaderActive activity = 1 << 1
	slotBothActive            = slotWriterActive | slotReaderActive
)

func (a activity) String() string {
	switch a {
	case slotIdle:
		return "idle"
	case slotWriterActive:
		return "writer"
	case slotReaderActive:
		return "reader"
	case slotBothActive:
		return "writer+reader"
	}
	return "invalid"
}

// level is the fill state of a ring buffer.
type level int

const (
	levelEmpty level = iota
	levelPartial
	levelFull
)

func (l level) String() string {
	switch l {
	case levelEmpty:
		return "empty"
	case levelPartial:
		return "partial"
	case levelFull:
		return "full"
	}
	return "invalid"
}

// role describes one side of a transfer: the activity bit it takes,
// the condition it waits for between chunks, and the one it notifies after each chunk.
type role struct {
	bit    activity
	idle   func(s *slot) *ipc_sync.Cond
	ready  func(s *slot) *ipc_sync.Cond
	notify func(s *slot) *ipc_sync.Cond
	pid    func(s *slot) *uint32
	// blocked returns true, if no bytes can be moved right now.
	blocked func(s *slot, capacity uint64) bool
	// move transfers a contiguous chunk and returns its size.
	move func(s *slot, data, buf []byte) int
}

var (
	writerRole = role{
		bit:     slotWriterActive,
		idle:    func(s *slot) *ipc_sync.Cond { return &s.writerIdle },
		ready:   func(s *slot) *ipc_sync.Cond { return &s.spaceReady },
		notify:  func(s *slot) *ipc_sync.Cond { return &s.dataReady },
		pid:     func(s *slot) *uint32 { return &s.writerPid },
		blocked: func(s *slot, capacity uint64) bool { return s.fill == capacity },
		move:    (*slot).put,
	}
	readerRole = role{
		bit:     slotReaderActive,
		idle:    func(s *slot) *ipc_sync.Cond { return &s.readerIdle },
		ready:   func(s *slot) *ipc_sync.Cond { return &s.dataReady },
		notify:  func(s *slot) *ipc_sync.Cond { return &s.spaceReady },
		pid:     func(s *slot) *uint32 { return &s.readerPid },
		blocked: func(s *slot, capacity uint64) bool { return s.fill == 0 },
		move:    (*slot).get,
	}
)

// slotRef is a local handle for a slot in the mapped region.
type slotRef struct {
	*slot
	data []byte
	hdr  *header
}

func (s *slot) init(opts *options) error {
	if err := s.mutex.Init(opts.robust, opts.mask); err != nil {
		return errors.Wrap(err, "failed to init slot mutex")
	}
	for i, c := range s.conds() {
		if err := c.Init(); err != nil {
			for _, prev := range s.conds()[:i] {
				prev.Destroy()
			}
			s.mutex.Destroy()
			return errors.Wrap(err, "failed to init slot cond")
		}
	}
	s.reset()
	return nil
}

func (s *slot) destroy() error {
	var result error
	for _, c := range s.conds() {
		if err := c.Destroy(); err != nil && result == nil {
			result = errors.Wrap(err, "failed to destroy slot cond")
		}
	}
	if err := s.mutex.Destroy(); err != nil && result == nil {
		result = errors.Wrap(err, "failed to destroy slot mutex")
	}
	return result
}

func (s *slot) conds() []*ipc_sync.Cond {
	return []*ipc_sync.Cond{&s.dataReady, &s.spaceReady, &s.writerIdle, &s.readerIdle}
}

func (s *slot) reset() {
	s.activity = slotIdle
	s.writerPid = 0
	s.readerPid = 0
	s.fill = 0
	s.readPos = 0
	s.writePos = 0
}

func (s *slot) level(capacity uint64) level {
	switch s.fill {
	case 0:
		return levelEmpty
	case capacity:
		return levelFull
	}
	return levelPartial
}

// valid checks ring buffer invariants.
func (s *slot) valid(capacity uint64) bool {
	return s.fill <= capacity && s.readPos < capacity && s.writePos < capacity &&
		(s.readPos+s.fill)%capacity == s.writePos &&
		s.activity&^slotBothActive == 0
}

// put copies the largest contiguous prefix of buf, that fits into the free space.
func (s *slot) put(data, buf []byte) int {
	capacity := uint64(len(data))
	chunk := min(uint64(len(buf)), capacity-s.fill, capacity-s.writePos)
	copy(data[s.writePos:s.writePos+chunk], buf[:chunk])
	s.writePos = (s.writePos + chunk) % capacity
	s.fill += chunk
	return int(chunk)
}

// get copies the largest contiguous chunk of buffered bytes into buf.
func (s *slot) get(data, buf []byte) int {
	capacity := uint64(len(data))
	chunk := min(uint64(len(buf)), s.fill, capacity-s.readPos)
	copy(buf[:chunk], data[s.readPos:s.readPos+chunk])
	s.readPos = (s.readPos + chunk) % capacity
	s.fill -= chunk
	return int(chunk)
}

// lock locks the slot. An inconsistent mutex is released, and ErrInconsistent is returned.
func (r slotRef) lock() error {
	return lockShared(&r.mutex)
}

// wait waits on c, checking the termination flag before and after the wait.
// The mutex is held on return, unless the returned error says otherwise.
func (r slotRef) wait(c *ipc_sync.Cond) error {
	return waitShared(r.hdr, c, &r.mutex)
}

// transfer moves all bytes of buf in the direction of the role.
func (r slotRef) transfer(ro role, buf []byte) (err error) {
	if err = r.lock(); err != nil {
		return err
	}
	defer func() {
		if unlockErr := r.mutex.Unlock(); unlockErr != nil && err == nil {
			err = errors.Wrap(unlockErr, "failed to unlock slot")
		}
	}()
	for r.activity&ro.bit != 0 {
		if err = r.wait(ro.idle(r.slot)); err != nil {
			return err
		}
	}
	r.activity |= ro.bit
	*ro.pid(r.slot) = currentPid()
	defer func() {
		r.activity &^= ro.bit
		*ro.pid(r.slot) = 0
		if signalErr := ro.idle(r.slot).Signal(); signalErr != nil && err == nil {
			err = errors.Wrap(signalErr, "failed to wake the next waiter")
		}
	}()
	capacity := uint64(len(r.data))
	for len(buf) > 0 {
		for ro.blocked(r.slot, capacity) {
			if err = r.wait(ro.ready(r.slot)); err != nil {
				return err
			}
		}
		buf = buf[ro.move(r.slot, r.data, buf):]
		if err = ro.notify(r.slot).Signal(); err != nil {
			return errors.Wrap(err, "failed to notify the peer")
		}
	}
	return nil
}

// wakeAll wakes every waiter of the slot. It is used by shutdown and repair.
func (r slotRef) wakeAll() error {
	var result error
	for _, c := range r.conds() {
		if err := c.Broadcast(); err != nil && result == nil {
			result = err
		}
	}
	return result
}

// repair resets the slot, if its mutex is inconsistent.
// The role of a dead process is released, and buffered bytes are dropped.
// It returns true, if the slot was repaired.
func (r slotRef) repair() (bool, error) {
	err := r.mutex.Lock()
	if err == nil {
		return false, r.mutex.Unlock()
	}
	if !errors.Is(err, ipc_sync.ErrInconsistent) {
		return false, errors.Wrap(err, "failed to lock slot")
	}
	act := r.activity & slotBothActive
	if act&slotWriterActive != 0 && !common.ProcessAlive(int(r.writerPid)) {
		act &^= slotWriterActive
		r.writerPid = 0
	}
	if act&slotReaderActive != 0 && !common.ProcessAlive(int(r.readerPid)) {
		act &^= slotReaderActive
		r.readerPid = 0
	}
	r.activity = act
	r.fill, r.readPos, r.writePos = 0, 0, 0
	result := r.wakeAll()
	if err := r.mutex.MarkConsistent(); err != nil && result == nil {
		result = err
	}
	if err := r.mutex.Unlock(); err != nil && result == nil {
		result = err
	}
	return true, result
}

// lockShared locks a mutex of the domain. An inconsistent mutex is released,
// and ErrInconsistent is returned.
func lockShared(m *ipc_sync.Mutex) error {
	err := m.Lock()
	if err == nil {
		return nil
	}
	if errors.Is(err, ipc_sync.ErrInconsistent) {
		m.Unlock()
		return ErrInconsistent
	}
	return errors.Wrap(err, "failed to lock")
}

func waitShared(hdr *header, c *ipc_sync.Cond, m *ipc_sync.Mutex) error {
	if hdr.isTerminating() {
		return ErrTerminating
	}
	if err := c.Wait(m); err != nil {
		if errors.Is(err, ipc_sync.ErrInconsistent) {
			return ErrInconsistent
		}
		return errors.Wrap(err, "wait failed")
	}
	if hdr.isTerminating() {
		return ErrTerminating
	}
	return nil
}

func (h *header) isTerminating() bool {
	return atomic.LoadUint32(&h.terminating) != 0
}
