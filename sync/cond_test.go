// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testCond struct {
	m    Mutex
	c    Cond
	flag bool
}

func makeTestCond(a *assert.Assertions) *testCond {
	tc := new(testCond)
	if !a.NoError(tc.m.Init(true, nil)) || !a.NoError(tc.c.Init()) {
		return nil
	}
	return tc
}

func destroyTestCond(a *assert.Assertions, tc *testCond) {
	a.NoError(tc.c.Destroy())
	a.NoError(tc.m.Destroy())
}

func TestCondWait(t *testing.T) {
	a := assert.New(t)
	tc := makeTestCond(a)
	if tc == nil {
		return
	}
	defer destroyTestCond(a, tc)
	a.NoError(tc.m.Lock())
	go func() {
		time.Sleep(time.Millisecond * 50)
		a.NoError(tc.m.Lock())
		tc.flag = true
		a.NoError(tc.m.Unlock())
		a.NoError(tc.c.Signal())
	}()
	for !tc.flag {
		if !a.NoError(tc.c.Wait(&tc.m)) {
			return
		}
	}
	a.NoError(tc.m.Unlock())
}

func TestCondBroadcast(t *testing.T) {
	const waiters = 8
	a := assert.New(t)
	tc := makeTestCond(a)
	if tc == nil {
		return
	}
	defer destroyTestCond(a, tc)
	var wg1, wg2 sync.WaitGroup
	wg1.Add(waiters)
	wg2.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg2.Done()
			a.NoError(tc.m.Lock())
			wg1.Done()
			for !tc.flag {
				if !a.NoError(tc.c.Wait(&tc.m)) {
					return
				}
			}
			a.NoError(tc.m.Unlock())
		}()
	}
	wg1.Wait()
	time.Sleep(time.Millisecond * 100)
	a.NoError(tc.m.Lock())
	tc.flag = true
	a.NoError(tc.c.Broadcast())
	a.NoError(tc.m.Unlock())
	done := make(chan struct{})
	go func() {
		wg2.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second * 3):
		t.Fatal("timeout")
	}
}

func TestCondSignalWithoutWaiters(t *testing.T) {
	a := assert.New(t)
	tc := makeTestCond(a)
	if tc == nil {
		return
	}
	defer destroyTestCond(a, tc)
	a.NoError(tc.c.Signal())
	a.NoError(tc.c.Broadcast())
}

func TestCondNotInitialized(t *testing.T) {
	a := assert.New(t)
	var m Mutex
	var c Cond
	a.NoError(m.Init(false, nil))
	a.Equal(ErrNotInitialized, c.Signal())
	a.Equal(ErrNotInitialized, c.Broadcast())
	a.Equal(ErrNotInitialized, c.Wait(&m))
	a.Equal(ErrNotInitialized, c.Destroy())
}

func TestCondWaitWithoutLock(t *testing.T) {
	a := assert.New(t)
	tc := makeTestCond(a)
	if tc == nil {
		return
	}
	defer destroyTestCond(a, tc)
	a.Error(tc.c.Wait(&tc.m))
}
