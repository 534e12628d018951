// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build !(linux && (amd64 || arm64))

package sync

const signalMaskSupported = false

func blockSignals(s SignalSet) (SignalSet, error) {
	return 0, ErrUnsupported
}

func restoreSignals(s SignalSet) error {
	return ErrUnsupported
}

func currentSignalMask() (SignalSet, error) {
	return 0, ErrUnsupported
}
