// Copyright 2015 Aleksandr Demakin. All rights reserved.

package shm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMemoryObject(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()
	obj, err := CreateMemoryObject(dir, "", 0600)
	require.NoError(t, err)
	defer obj.Destroy()
	a.Equal(dir, filepath.Dir(obj.Name()))
	a.True(strings.HasPrefix(filepath.Base(obj.Name()), DefaultPrefix))
	a.Equal(int64(0), obj.Size())
	a.NoError(obj.Truncate(4096))
	a.Equal(int64(4096), obj.Size())
	fi, err := obj.Stat()
	if a.NoError(err) {
		a.Equal(os.FileMode(0600), fi.Mode().Perm())
	}

	obj2, err := CreateMemoryObject(dir, "", 0600)
	require.NoError(t, err)
	defer obj2.Destroy()
	a.NotEqual(obj.Name(), obj2.Name())
}

func TestCreateMemoryObjectPrefix(t *testing.T) {
	a := assert.New(t)
	obj, err := CreateMemoryObject(t.TempDir(), "custom-", 0600)
	if a.NoError(err) {
		a.True(strings.HasPrefix(filepath.Base(obj.Name()), "custom-"))
		a.NoError(obj.Destroy())
	}
	_, err = CreateMemoryObject(t.TempDir(), "a/b", 0600)
	a.Error(err)
	_, err = CreateMemoryObject(filepath.Join(t.TempDir(), "missing"), "", 0600)
	a.Error(err)
}

func TestOpenMemoryObject(t *testing.T) {
	a := assert.New(t)
	obj, err := CreateMemoryObject(t.TempDir(), "", 0600)
	require.NoError(t, err)
	require.NoError(t, obj.Truncate(16))
	_, err = obj.file.WriteAt([]byte("hello"), 4)
	require.NoError(t, err)

	opened, err := OpenMemoryObject(obj.Name())
	require.NoError(t, err)
	defer opened.Close()
	a.Equal(int64(16), opened.Size())
	buf := make([]byte, 5)
	n, err := opened.ReadAt(buf, 4)
	a.NoError(err)
	a.Equal(5, n)
	a.Equal("hello", string(buf))

	a.NoError(obj.Destroy())
	_, err = os.Stat(obj.Name())
	a.True(os.IsNotExist(err))
	_, err = OpenMemoryObject(obj.Name())
	a.Error(err)
	a.NoError(DestroyMemoryObject(obj.Name()))
}

func TestDefaultDirectory(t *testing.T) {
	a := assert.New(t)
	dir, err := Directory()
	if !a.NoError(err) {
		return
	}
	fi, err := os.Stat(dir)
	if a.NoError(err) {
		a.True(fi.IsDir())
	}
	obj, err := CreateMemoryObject("", "", 0600)
	if a.NoError(err) {
		a.Equal(filepath.Clean(dir), filepath.Dir(obj.Name()))
		a.NoError(obj.Destroy())
	}
}
