// Copyright 2016 Aleksandr Demakin. All rights reserved.

package domain

import (
	"math"
	"unsafe"

	"github.com/nxgtw/go-shmdomain/internal/allocator"
	ipc_sync "github.com/nxgtw/go-shmdomain/sync"
)

const (
	headerMagic   = uint32(0x444d4853)
	headerVersion = uint32(1)

	// extra space is aligned as the most demanding type of the platform would require.
	maxAlign = 16
)

var (
	headerSize = unsafe.Sizeof(header{})
	slotSize   = unsafe.Sizeof(slot{})
	slotAlign  = unsafe.Alignof(slot{})
)

// header is placed at offset 0 of the region. Its size does not depend on the domain
// parameters, so that a connecting process could read it before mapping the region.
type header struct {
	magic        uint32
	version      uint32
	processes    uint32
	terminating  uint32
	capacity     uint64
	extraSize    uint64
	extraOffset  int64
	barrierCount uint32
	barrierRound uint32
	mutex        ipc_sync.Mutex
	barrierCond  ipc_sync.Cond
}

// slot is the fixed part of a per-rank ring buffer. It is followed by capacity data bytes.
type slot struct {
	mutex      ipc_sync.Mutex
	dataReady  ipc_sync.Cond
	spaceReady ipc_sync.Cond
	writerIdle ipc_sync.Cond
	readerIdle ipc_sync.Cond
	activity   activity
	writerPid  uint32
	readerPid  uint32
	_          uint32
	fill       uint64
	readPos    uint64
	writePos   uint64
}

// Layout describes the placement of the domain's parts in the shared region.
// It is a pure function of the capacity, the number of participants and the extra space size.
type Layout struct {
	// Capacity is the size of every ring buffer in bytes.
	Capacity int
	// Processes is the number of participants.
	Processes int
	// ExtraSize is the size of the extra space.
	ExtraSize int
	// HeaderSize is the size of the header rounded up to the slot alignment.
	HeaderSize int
	// SlotSize is the size of the fixed part of a slot.
	SlotSize int
	// Stride is the distance between two consecutive slots.
	Stride int
	// ExtraOffset is the offset of the extra space. It is 0 if there is no extra space.
	ExtraOffset int
	// Size is the total region size.
	Size int
}

// NewLayout computes the layout for the given parameters.
func NewLayout(capacity, processes, extra int) (Layout, error) {
	if capacity <= 0 || processes <= 0 || extra < 0 {
		return Layout{}, ErrInvalidArgument
	}
	if uint64(processes) > math.MaxUint32 {
		return Layout{}, ErrInvalidArgument
	}
	const limit = uint64(math.MaxInt64 / 2)
	if uint64(capacity) > limit || uint64(extra) > limit {
		return Layout{}, ErrInvalidArgument
	}
	hdr := uint64(allocator.AlignUp(headerSize, slotAlign))
	stride := (uint64(slotSize) + uint64(capacity) + uint64(slotAlign) - 1) &^ (uint64(slotAlign) - 1)
	if stride > (limit-hdr)/uint64(processes) {
		return Layout{}, ErrInvalidArgument
	}
	end := hdr + stride*uint64(processes)
	var extraOffset uint64
	if extra > 0 {
		extraOffset = (end + maxAlign - 1) &^ (maxAlign - 1)
		end = extraOffset + uint64(extra)
	}
	return Layout{
		Capacity:    capacity,
		Processes:   processes,
		ExtraSize:   extra,
		HeaderSize:  int(hdr),
		SlotSize:    int(slotSize),
		Stride:      int(stride),
		ExtraOffset: int(extraOffset),
		Size:        int(end),
	}, nil
}

// SlotOffset returns the offset of the slot of the given rank.
func (l Layout) SlotOffset(rank int) int {
	return l.HeaderSize + rank*l.Stride
}

// DataOffset returns the offset of the data bytes of the slot of the given rank.
func (l Layout) DataOffset(rank int) int {
	return l.SlotOffset(rank) + l.SlotSize
}

func newHeaderView(pointer unsafe.Pointer) *header {
	return (*header)(pointer)
}

func newSlotView(pointer unsafe.Pointer) *slot {
	return (*slot)(pointer)
}
