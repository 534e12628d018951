// Copyright 2016 Aleksandr Demakin. All rights reserved.

package ipc_testing

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBytesToString(t *testing.T) {
	a := assert.New(t)
	data := []byte{0, 1, 0x0a, 0xff, 0x7f}
	str := BytesToString(data)
	a.Equal("00010AFF7F", str)
	back, err := StringToBytes(str)
	a.NoError(err)
	a.Equal(data, back)
	_, err = StringToBytes("ABC")
	a.Error(err)
	back, err = StringToBytes("0a0B")
	a.NoError(err)
	a.Equal([]byte{0x0a, 0x0b}, back)
	_, err = StringToBytes("ZZ")
	a.Error(err)
	back, err = StringToBytes("")
	a.NoError(err)
	a.Empty(back)
}

func TestWaitForFunc(t *testing.T) {
	a := assert.New(t)
	a.True(WaitForFunc(func() {}, time.Second))
	a.False(WaitForFunc(func() { time.Sleep(time.Second) }, time.Millisecond*10))
}

func TestHelperEcho(t *testing.T) {
	if !IsHelper() {
		return
	}
	os.Stdout.WriteString("echo:" + os.Getenv("ECHO_VALUE") + "\n")
	if os.Getenv("ECHO_FAIL") == "1" {
		os.Exit(3)
	}
}

func TestRunHelper(t *testing.T) {
	if IsHelper() {
		return
	}
	a := assert.New(t)
	result := RunHelper(context.Background(), "TestHelperEcho", []string{"ECHO_VALUE=abc"})
	a.NoError(result.Err)
	a.True(strings.Contains(result.Output, "echo:abc"), result.Output)

	ch := RunHelperAsync(context.Background(), "TestHelperEcho", []string{"ECHO_FAIL=1"})
	result, ok := WaitForAppResultChan(ch, time.Second*10)
	if a.True(ok) {
		a.Error(result.Err)
	}
}

func TestRunHelperKill(t *testing.T) {
	if IsHelper() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch := RunHelperAsync(ctx, "TestHelperSleep", nil)
	cancel()
	result, ok := WaitForAppResultChan(ch, time.Second*10)
	if assert.True(t, ok) {
		assert.Error(t, result.Err)
	}
}

func TestHelperSleep(t *testing.T) {
	if !IsHelper() {
		return
	}
	time.Sleep(time.Minute)
}
