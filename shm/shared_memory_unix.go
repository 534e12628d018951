// Copyright 2015 Aleksandr Demakin. All rights reserved.

//go:build unix && !linux

package shm

import "os"

// Directory returns the directory, where shared memory objects are created.
func Directory() (string, error) {
	return os.TempDir(), nil
}
