// Copyright 2016 Aleksandr Demakin. All rights reserved.

package domain

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotRingInvariants(t *testing.T) {
	const capacity = 11
	a := assert.New(t)
	var s slot
	data := make([]byte, capacity)
	rnd := rand.New(rand.NewSource(1))
	var in, out bytes.Buffer
	var next byte
	for i := 0; i < 1000; i++ {
		a.True(s.valid(capacity), "iteration %d: %+v", i, s)
		if rnd.Intn(2) == 0 {
			buf := make([]byte, rnd.Intn(capacity+3))
			for j := range buf {
				buf[j] = next
				next++
			}
			n := s.put(data, buf)
			a.True(n <= len(buf))
			in.Write(buf[:n])
		} else {
			buf := make([]byte, rnd.Intn(capacity+3))
			n := s.get(data, buf)
			out.Write(buf[:n])
		}
	}
	rest := make([]byte, s.fill)
	for got := 0; got < len(rest); {
		got += s.get(data, rest[got:])
	}
	out.Write(rest)
	a.Equal(in.Bytes(), out.Bytes())
	a.Equal(levelEmpty, s.level(capacity))
}

func TestSlotChunksStopAtWrapPoint(t *testing.T) {
	a := assert.New(t)
	var s slot
	data := make([]byte, 8)
	a.Equal(6, s.put(data, []byte{1, 2, 3, 4, 5, 6}))
	a.Equal(levelPartial, s.level(8))
	a.Equal(4, s.get(data, make([]byte, 4)))
	// 2 bytes until the physical end, then the rest from the beginning.
	a.Equal(2, s.put(data, []byte{7, 8, 9, 10}))
	a.Equal(uint64(0), s.writePos)
	a.Equal(2, s.put(data, []byte{9, 10}))
	a.Equal(uint64(6), s.fill)
	buf := make([]byte, 6)
	a.Equal(4, s.get(data, buf))
	a.Equal(2, s.get(data, buf[4:]))
	a.Equal([]byte{5, 6, 7, 8, 9, 10}, buf)
	a.True(s.valid(8))
}

func TestSlotLevel(t *testing.T) {
	a := assert.New(t)
	var s slot
	data := make([]byte, 4)
	a.Equal(levelEmpty, s.level(4))
	s.put(data, []byte{1})
	a.Equal(levelPartial, s.level(4))
	s.put(data, []byte{2, 3, 4, 5})
	a.Equal(levelFull, s.level(4))
	a.Equal(0, s.put(data, []byte{6}))
	a.Equal("full", s.level(4).String())
	a.Equal("writer+reader", slotBothActive.String())
	a.Equal("idle", slotIdle.String())
}
