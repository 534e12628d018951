// Copyright 2015 Aleksandr Demakin. All rights reserved.

//go:build linux

package shm

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	defaultShmPath = "/dev/shm/"

	tmpfsMagic = 0x01021994
	ramfsMagic = 0x858458f6
)

var (
	shmDirOnce sync.Once
	shmDir     string
)

// mountEntry is a record of /proc/mounts or /etc/fstab.
type mountEntry struct {
	source string
	dir    string
	fstype string
}

// Directory returns the directory, where shared memory objects are created.
// It is a tmpfs mount, usually /dev/shm. If there is none, os.TempDir() is used.
func Directory() (string, error) {
	shmDirOnce.Do(func() {
		shmDir = locateShmFs()
	})
	return shmDir, nil
}

// locateShmFs looks for a tmpfs mount the same way glibc does for shm_open.
func locateShmFs() string {
	if isShmFs(defaultShmPath) {
		return defaultShmPath
	}
	for _, table := range []string{"/proc/mounts", "/etc/fstab"} {
		f, err := os.Open(table)
		if err != nil {
			continue
		}
		dir := shmFsFromReader(f)
		f.Close()
		if len(dir) > 0 {
			return dir
		}
	}
	return os.TempDir()
}

func isShmFs(path string) bool {
	var st unix.Statfs_t
	if len(path) == 0 || unix.Statfs(path, &st) != nil {
		return false
	}
	// the type of Statfs_t.Type differs among platforms.
	fsType := int64(st.Type)
	return fsType == tmpfsMagic || fsType == ramfsMagic
}

// shmFsFromReader returns the first mounted tmpfs directory from a mount table.
func shmFsFromReader(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		entry, ok := parseMountEntry(scanner.Text())
		if !ok || (entry.fstype != "tmpfs" && entry.fstype != "shm") {
			continue
		}
		if isShmFs(entry.dir) {
			return strings.TrimSuffix(entry.dir, "/") + "/"
		}
	}
	return ""
}

// parseMountEntry parses first three fields of a mount table line.
// Comments, blank and short lines are skipped.
func parseMountEntry(line string) (mountEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || strings.HasPrefix(fields[0], "#") {
		return mountEntry{}, false
	}
	return mountEntry{source: fields[0], dir: fields[1], fstype: fields[2]}, true
}
