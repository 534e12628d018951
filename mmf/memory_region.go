// Copyright 2015 Aleksandr Demakin. All rights reserved.

// Package mmf maps shared memory objects and files into the address space of a process.
package mmf

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
)

// Mapping modes.
const (
	MEM_READ_ONLY     = 0x00000001
	MEM_READ_PRIVATE  = 0x00000002
	MEM_READWRITE     = 0x00000004
	MEM_COPY_ON_WRITE = 0x00000008
)

// Mappable is a named object with a descriptor, which can be passed to mmap.
type Mappable interface {
	Fd() uintptr
	Name() string
}

type statter interface {
	Stat() (os.FileInfo, error)
}

// MemoryRegion is a mapped area of an object.
// A finalizer unmaps the region, if it was not closed explicitly,
// so keep a reference to the region while its data is in use.
type MemoryRegion struct {
	// mapping starts at a page boundary, data is the requested range.
	mapping []byte
	data    []byte
}

// NewMemoryRegion maps a part of the object.
//	mode - one of MEM_* constants.
//	offset - offset in bytes from the beginning of the object. It does not need to be page-aligned.
//	size - mapping size. If 0, the object is mapped from offset to its end.
func NewMemoryRegion(object Mappable, mode int, offset int64, size int) (*MemoryRegion, error) {
	if offset < 0 || size < 0 {
		return nil, errors.New("negative mapping offset or size")
	}
	prot, flags, err := protAndFlags(mode)
	if err != nil {
		return nil, err
	}
	objSize, known, err := objectSize(object)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get size of %q", object.Name())
	}
	if size == 0 {
		if !known || objSize <= offset {
			return nil, errors.New("must provide a valid mapping size")
		}
		size = int(objSize - offset)
	} else if known && offset+int64(size) > objSize {
		// an access past the end of the object raises SIGBUS.
		return nil, errors.Errorf("mapping [%d, %d) exceeds object size %d", offset, offset+int64(size), objSize)
	}
	shift := offset % int64(os.Getpagesize())
	mapping, err := mmap(object.Fd(), offset-shift, size+int(shift), prot, flags)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to map %q", object.Name())
	}
	region := &MemoryRegion{mapping: mapping, data: mapping[shift : int(shift)+size]}
	runtime.SetFinalizer(region, (*MemoryRegion).Close)
	return region, nil
}

// Close unmaps the region. The data must not be used after that.
func (region *MemoryRegion) Close() error {
	if region.mapping == nil {
		return nil
	}
	runtime.SetFinalizer(region, nil)
	err := munmap(region.mapping)
	region.mapping, region.data = nil, nil
	return err
}

// Data returns region's mapped data, or nil for a closed region.
func (region *MemoryRegion) Data() []byte {
	return region.data
}

// Flush syncs mapped content with the object.
func (region *MemoryRegion) Flush(async bool) error {
	if region.mapping == nil {
		return errors.New("region is closed")
	}
	return msync(region.mapping, async)
}

// Size returns mapping size.
func (region *MemoryRegion) Size() int {
	return len(region.data)
}

// objectSize returns the size of the object, if it can be obtained.
func objectSize(object Mappable) (int64, bool, error) {
	st, ok := object.(statter)
	if !ok {
		return 0, false, nil
	}
	fi, err := st.Stat()
	if err != nil {
		return 0, false, err
	}
	return fi.Size(), true, nil
}
