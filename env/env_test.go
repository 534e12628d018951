// Copyright 2016 Aleksandr Demakin. All rights reserved.

package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreLoad(t *testing.T) {
	a := assert.New(t)
	t.Setenv("ENVTEST_NAME", "")
	t.Setenv("ENVTEST_RANK", "")
	p := Params{Name: "/dev/shm/.SHMDOMAIN-0123", Rank: 7}
	a.NoError(Store("ENVTEST", p))
	loaded, err := Load("ENVTEST")
	a.NoError(err)
	a.Equal(p, loaded)
}

func TestEnviron(t *testing.T) {
	a := assert.New(t)
	kv := Environ("shared", Params{Name: "x", Rank: 3})
	a.Equal([]string{"SHARED_NAME=x", "SHARED_RANK=3"}, kv)
}

func TestLoadErrors(t *testing.T) {
	a := assert.New(t)
	t.Setenv("ENVTEST_NAME", "name")
	t.Setenv("ENVTEST_RANK", "-1")
	_, err := Load("ENVTEST")
	a.Error(err)
	t.Setenv("ENVTEST_RANK", "1x")
	_, err = Load("ENVTEST")
	a.Error(err)
	t.Setenv("ENVTEST_RANK", "0x10")
	p, err := Load("ENVTEST")
	a.NoError(err)
	a.Equal(uint(16), p.Rank)
	t.Setenv("ENVTEST_NAME", "")
	_, err = Load("ENVTEST")
	a.Error(err)
	_, err = Load("ENVTEST_MISSING")
	a.Error(err)
	_, err = Load("")
	a.Error(err)
	a.Error(Store("", Params{}))
}

func TestLoadIgnoresUnprefixed(t *testing.T) {
	t.Setenv("NAME", "global")
	t.Setenv("RANK", "1")
	_, err := Load("ENVTEST_UNSET")
	assert.Error(t, err)
}
