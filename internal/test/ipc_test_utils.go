// Copyright 2015 Aleksandr Demakin. All rights reserved.

// Package ipc_testing contains helpers for multi-process tests.
// A test starts a copy of its own binary, which runs a single helper test
// with additional environment variables set.
package ipc_testing

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// HelperEnvVar is set for the processes started by RunHelper and RunHelperAsync.
const HelperEnvVar = "SHMDOMAIN_TEST_HELPER"

// TestAppResult is a result of a helper process launch.
type TestAppResult struct {
	Output string
	Err    error
}

// IsHelper returns true, if the process was started as a helper.
func IsHelper() bool {
	return os.Getenv(HelperEnvVar) == "1"
}

// StringToBytes decodes a string produced by BytesToString.
func StringToBytes(input string) ([]byte, error) {
	data, err := hex.DecodeString(input)
	if err != nil {
		return nil, errors.Wrap(err, "invalid byte string")
	}
	return data, nil
}

// BytesToString encodes data as upper-case hex, two symbols per byte,
// so that it can be passed through the environment.
func BytesToString(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}

// startHelper starts the test with the given name in a copy of the current test binary.
// The process is killed, when ctx is done.
func startHelper(ctx context.Context, testName string, env []string) (func() TestAppResult, error) {
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^"+testName+"$", "-test.count=1")
	cmd.Env = append(append(os.Environ(), HelperEnvVar+"=1"), env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start helper %s", testName)
	}
	return func() TestAppResult {
		err := cmd.Wait()
		if exitErr, ok := err.(*exec.ExitError); ok {
			err = errors.Errorf("helper %s: %v, status code = %d", testName, exitErr, exitErr.ExitCode())
		}
		return TestAppResult{Output: out.String(), Err: err}
	}, nil
}

// RunHelper runs the test with the given name in a helper process and waits for it to finish.
// env contains additional KEY=VALUE pairs.
func RunHelper(ctx context.Context, testName string, env []string) TestAppResult {
	wait, err := startHelper(ctx, testName, env)
	if err != nil {
		return TestAppResult{Err: err}
	}
	return wait()
}

// RunHelperAsync runs the test with the given name in a helper process and returns immediately.
// The result is sent to the returned chan, when the process exits.
func RunHelperAsync(ctx context.Context, testName string, env []string) <-chan TestAppResult {
	ch := make(chan TestAppResult, 1)
	wait, err := startHelper(ctx, testName, env)
	if err != nil {
		ch <- TestAppResult{Err: err}
		return ch
	}
	go func() {
		ch <- wait()
	}()
	return ch
}

// WaitForFunc calls f asynchronously leaving it some time to finish.
// It returns true, if f completed.
func WaitForFunc(f func(), d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		f()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// WaitForAppResultChan waits for a value from ch with a timeout.
func WaitForAppResultChan(ch <-chan TestAppResult, d time.Duration) (TestAppResult, bool) {
	select {
	case value := <-ch:
		return value, true
	case <-time.After(d):
		return TestAppResult{}, false
	}
}
