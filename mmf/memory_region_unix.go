// Copyright 2015 Aleksandr Demakin. All rights reserved.

//go:build unix

package mmf

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func mmap(fd uintptr, offset int64, length, prot, flags int) ([]byte, error) {
	data, err := unix.Mmap(int(fd), offset, length, prot, flags)
	if err != nil {
		return nil, errors.Wrap(err, "mmap failed")
	}
	return data, nil
}

func munmap(data []byte) error {
	return errors.Wrap(unix.Munmap(data), "munmap failed")
}

func msync(data []byte, async bool) error {
	flag := unix.MS_SYNC
	if async {
		flag = unix.MS_ASYNC
	}
	return errors.Wrap(unix.Msync(data, flag), "msync failed")
}

func protAndFlags(mode int) (prot, flags int, err error) {
	switch mode {
	case MEM_READ_ONLY:
		return unix.PROT_READ, unix.MAP_SHARED, nil
	case MEM_READ_PRIVATE:
		return unix.PROT_READ, unix.MAP_PRIVATE, nil
	case MEM_READWRITE:
		return unix.PROT_READ | unix.PROT_WRITE, unix.MAP_SHARED, nil
	case MEM_COPY_ON_WRITE:
		return unix.PROT_READ | unix.PROT_WRITE, unix.MAP_PRIVATE, nil
	}
	return 0, 0, errors.Errorf("invalid memory region mode %d", mode)
}
