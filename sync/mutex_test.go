// Copyright 2015 Aleksandr Demakin. All rights reserved.

package sync

import (
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func makeTestMutex(a *assert.Assertions, robust bool) *Mutex {
	m := new(Mutex)
	if !a.NoError(m.Init(robust, nil)) {
		return nil
	}
	return m
}

// deadPid returns a pid of a process, which has already exited and was reaped.
func deadPid(t *testing.T) uint32 {
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to run a child process: %v", err)
	}
	return uint32(cmd.Process.Pid)
}

func TestMutexLock(t *testing.T) {
	a := assert.New(t)
	m := makeTestMutex(a, false)
	if m == nil {
		return
	}
	a.NoError(m.Lock())
	a.Equal(ErrBusy, m.Destroy())
	a.NoError(m.Unlock())
	a.Equal(ErrNotLocked, m.Unlock())
	a.NoError(m.Destroy())
	a.Equal(ErrNotInitialized, m.Lock())
	a.Equal(ErrNotInitialized, m.Unlock())
	a.Equal(ErrNotInitialized, m.Destroy())
}

func TestMutexZeroValue(t *testing.T) {
	var m Mutex
	assert.Equal(t, ErrNotInitialized, m.Lock())
}

func TestMutexTryLock(t *testing.T) {
	a := assert.New(t)
	m := makeTestMutex(a, true)
	if m == nil {
		return
	}
	locked, err := m.TryLock()
	a.NoError(err)
	a.True(locked)
	locked, err = m.TryLock()
	a.NoError(err)
	a.False(locked)
	a.NoError(m.Unlock())
	a.NoError(m.Destroy())
}

func TestMutexValueInc(t *testing.T) {
	const (
		goroutines = 8
		iterations = 20000
	)
	a := assert.New(t)
	m := makeTestMutex(a, true)
	if m == nil {
		return
	}
	var value int
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				if !a.NoError(m.Lock()) {
					return
				}
				value++
				a.NoError(m.Unlock())
			}
		}()
	}
	wg.Wait()
	a.Equal(goroutines*iterations, value)
}

func TestMutexBlocksAnotherLocker(t *testing.T) {
	a := assert.New(t)
	m := makeTestMutex(a, false)
	if m == nil {
		return
	}
	a.NoError(m.Lock())
	var locked int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.NoError(m.Lock())
		atomic.StoreInt32(&locked, 1)
		a.NoError(m.Unlock())
	}()
	time.Sleep(time.Millisecond * 100)
	a.Equal(int32(0), atomic.LoadInt32(&locked))
	a.NoError(m.Unlock())
	select {
	case <-done:
	case <-time.After(time.Second * 3):
		t.Fatal("timeout")
	}
	a.Equal(int32(1), atomic.LoadInt32(&locked))
}

func TestMutexNotOwner(t *testing.T) {
	a := assert.New(t)
	m := makeTestMutex(a, true)
	if m == nil {
		return
	}
	m.state = uint32(os.Getppid()) & mutexOwnerMask
	a.Equal(ErrNotOwner, m.Unlock())
	if RobustSupported() {
		a.Equal(ErrNotOwner, m.MarkConsistent())
	}
	m.state = mutexUnlocked
	a.NoError(m.Destroy())
}

func TestMutexMarkConsistentNonRobust(t *testing.T) {
	a := assert.New(t)
	m := makeTestMutex(a, false)
	if m == nil {
		return
	}
	a.NoError(m.Lock())
	err := m.MarkConsistent()
	if RobustSupported() {
		a.Equal(ErrNotRobust, err)
	} else {
		a.Equal(ErrUnsupported, err)
	}
	a.NoError(m.Unlock())
}

func TestRobustMutexOwnerDied(t *testing.T) {
	if !RobustSupported() {
		t.Skipf("robust mutexes are not supported on %s", runtime.GOOS)
	}
	a := assert.New(t)
	m := makeTestMutex(a, true)
	if m == nil {
		return
	}
	a.True(m.Robust())
	m.state = deadPid(t)
	a.Equal(ErrInconsistent, m.Lock())
	a.NoError(m.Unlock())
	// the state is sticky until it is explicitly repaired.
	a.Equal(ErrInconsistent, m.Lock())
	a.NoError(m.MarkConsistent())
	a.NoError(m.Unlock())
	a.NoError(m.Lock())
	a.NoError(m.Unlock())
	a.NoError(m.Destroy())
}

func TestRobustMutexWaiterDetectsOwnerDeath(t *testing.T) {
	if !RobustSupported() {
		t.Skipf("robust mutexes are not supported on %s", runtime.GOOS)
	}
	a := assert.New(t)
	m := makeTestMutex(a, true)
	if m == nil {
		return
	}
	m.state = deadPid(t) | mutexWaiters
	ch := make(chan error, 1)
	go func() {
		ch <- m.Lock()
	}()
	select {
	case err := <-ch:
		a.True(errors.Is(err, ErrInconsistent))
	case <-time.After(time.Second * 3):
		t.Fatal("timeout")
	}
	a.NoError(m.MarkConsistent())
	a.NoError(m.Unlock())
}

func TestMutexSignalMask(t *testing.T) {
	if !signalMaskSupported {
		t.Skipf("signal masks are not supported on %s(%s)", runtime.GOOS, runtime.GOARCH)
	}
	a := assert.New(t)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	before, err := currentSignalMask()
	if !a.NoError(err) || before.Contains(syscall.SIGUSR1) {
		return
	}
	mask, err := NewSignalSet(syscall.SIGUSR1, syscall.SIGUSR2)
	if !a.NoError(err) {
		return
	}
	m := new(Mutex)
	if !a.NoError(m.Init(false, &mask)) {
		return
	}
	a.NoError(m.Lock())
	during, err := currentSignalMask()
	a.NoError(err)
	a.True(during.Contains(syscall.SIGUSR1))
	a.True(during.Contains(syscall.SIGUSR2))
	a.NoError(m.Unlock())
	after, err := currentSignalMask()
	a.NoError(err)
	a.Equal(before, after)
	a.NoError(m.Destroy())
}

func TestSignalSet(t *testing.T) {
	a := assert.New(t)
	set, err := NewSignalSet(syscall.SIGINT, syscall.SIGTERM)
	a.NoError(err)
	a.True(set.Contains(syscall.SIGINT))
	a.True(set.Contains(syscall.SIGTERM))
	a.False(set.Contains(syscall.SIGHUP))
	a.False(set.Contains(syscall.Signal(0)))
	a.False(set.Empty())
	a.Error(set.Add(syscall.Signal(65)))
	a.Error(set.Add(syscall.Signal(0)))
	var empty SignalSet
	a.True(empty.Empty())
}
