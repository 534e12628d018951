// Copyright 2015 Aleksandr Demakin. All rights reserved.

// Package shm implements file-backed shared memory objects.
// Objects are created in a directory shared by all processes of the machine,
// which is a tmpfs mount on linux, if there is one.
package shm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultPrefix is the prefix of generated object names.
const DefaultPrefix = ".SHM-"

const cCreateAttempts = 16

// MemoryObject represents an object which can be used to
// map shared memory regions into the process' address space.
type MemoryObject struct {
	file *os.File
}

// CreateMemoryObject creates a new uniquely named object in dir.
//	dir - target directory. if empty, the shared memory directory is used.
//	prefix - name prefix. if empty, DefaultPrefix is used.
//	perm - file's mode and permission bits.
func CreateMemoryObject(dir, prefix string, perm os.FileMode) (*MemoryObject, error) {
	if len(dir) == 0 {
		var err error
		if dir, err = Directory(); err != nil {
			return nil, err
		}
	}
	if len(prefix) == 0 {
		prefix = DefaultPrefix
	}
	if strings.Contains(prefix, string(os.PathSeparator)) {
		return nil, errors.New("invalid shm name prefix")
	}
	var lastErr error
	for attempt := 0; attempt < cCreateAttempts; attempt++ {
		path := filepath.Join(dir, prefix+strings.ReplaceAll(uuid.NewString(), "-", ""))
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return &MemoryObject{file: file}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(err, "failed to create shm object")
		}
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, "failed to find a unique shm name")
}

// OpenMemoryObject opens an existing object for reading and writing.
func OpenMemoryObject(path string) (*MemoryObject, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open shm object")
	}
	return &MemoryObject{file: file}, nil
}

// Name returns the full path of the object. It is the only handle other processes
// need to open it.
func (obj *MemoryObject) Name() string {
	return obj.file.Name()
}

// Fd returns object's file descriptor.
func (obj *MemoryObject) Fd() uintptr {
	return obj.file.Fd()
}

// Stat returns object's file info.
func (obj *MemoryObject) Stat() (os.FileInfo, error) {
	return obj.file.Stat()
}

// Size returns current object size.
func (obj *MemoryObject) Size() int64 {
	fileInfo, err := obj.file.Stat()
	if err != nil {
		return 0
	}
	return fileInfo.Size()
}

// Truncate resizes the object.
func (obj *MemoryObject) Truncate(size int64) error {
	if err := obj.file.Truncate(size); err != nil {
		return errors.Wrap(err, "failed to resize shm object")
	}
	return nil
}

// ReadAt is to implement io.ReaderAt. It allows to inspect object's contents without mapping it.
func (obj *MemoryObject) ReadAt(p []byte, off int64) (int, error) {
	return obj.file.ReadAt(p, off)
}

// Close closes object's file. Existing mappings stay valid.
func (obj *MemoryObject) Close() error {
	return obj.file.Close()
}

// Destroy closes the object and removes it.
func (obj *MemoryObject) Destroy() error {
	obj.file.Close()
	return DestroyMemoryObject(obj.Name())
}

// DestroyMemoryObject permanently removes the object with the given path.
// It is not an error, if the object does not exist.
func DestroyMemoryObject(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return errors.Wrap(err, "failed to remove shm object")
}
