// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build linux && (amd64 || arm64)

package sync

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const signalMaskSupported = true

// the kernel uses only the first word of the set for signals 1..64.
func toSigset(s SignalSet) unix.Sigset_t {
	var set unix.Sigset_t
	set.Val[0] = uint64(s)
	return set
}

// blockSignals adds s to the mask of the calling thread and returns the previous mask.
// The caller must be locked to its os thread.
func blockSignals(s SignalSet) (SignalSet, error) {
	set := toSigset(s)
	var old unix.Sigset_t
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, &old); err != nil {
		return 0, errors.Wrap(err, "failed to block signals")
	}
	return SignalSet(old.Val[0]), nil
}

// restoreSignals sets the mask of the calling thread to s.
func restoreSignals(s SignalSet) error {
	set := toSigset(s)
	if err := unix.PthreadSigmask(unix.SIG_SETMASK, &set, nil); err != nil {
		return errors.Wrap(err, "failed to restore signal mask")
	}
	return nil
}

// currentSignalMask returns the mask of the calling thread.
func currentSignalMask() (SignalSet, error) {
	var old unix.Sigset_t
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, nil, &old); err != nil {
		return 0, errors.Wrap(err, "failed to get signal mask")
	}
	return SignalSet(old.Val[0]), nil
}
