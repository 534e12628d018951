// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

const maxSignal = 64

// SignalSet is a set of signals 1..64, which can be stored in shared memory.
// Bit n-1 represents signal n.
type SignalSet uint64

// NewSignalSet returns a set containing given signals.
func NewSignalSet(signals ...os.Signal) (SignalSet, error) {
	var result SignalSet
	for _, sig := range signals {
		sysSig, ok := sig.(syscall.Signal)
		if !ok {
			return 0, errors.Errorf("unsupported signal type %T", sig)
		}
		if err := result.Add(sysSig); err != nil {
			return 0, err
		}
	}
	return result, nil
}

// Add adds a signal to the set.
func (s *SignalSet) Add(sig syscall.Signal) error {
	if sig < 1 || sig > maxSignal {
		return errors.Errorf("invalid signal number %d", int(sig))
	}
	*s |= 1 << uint(sig-1)
	return nil
}

// Contains returns true, if the signal is in the set.
func (s SignalSet) Contains(sig syscall.Signal) bool {
	if sig < 1 || sig > maxSignal {
		return false
	}
	return s&(1<<uint(sig-1)) != 0
}

// Empty returns true for an empty set.
func (s SignalSet) Empty() bool {
	return s == 0
}
