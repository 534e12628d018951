// Copyright 2016 Aleksandr Demakin. All rights reserved.

package domain

import (
	"os"

	ipc_sync "github.com/nxgtw/go-shmdomain/sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a domain handle.
type Option func(*options)

type options struct {
	robust     bool
	signals    []os.Signal
	mask       *ipc_sync.SignalSet
	dir        string
	prefix     string
	perm       os.FileMode
	logger     *zap.Logger
	registerer prometheus.Registerer
}

func defaultOptions() *options {
	return &options{
		robust: true,
		prefix: DefaultPrefix,
		perm:   0600,
		logger: zap.NewNop(),
	}
}

func buildOptions(opts []Option) (*options, error) {
	result := defaultOptions()
	for _, opt := range opts {
		opt(result)
	}
	if len(result.signals) > 0 {
		set, err := ipc_sync.NewSignalSet(result.signals...)
		if err != nil {
			return nil, err
		}
		result.mask = &set
	}
	return result, nil
}

// DefaultPrefix is the name prefix of domain backing objects.
const DefaultPrefix = ".SHMDOMAIN-"

// WithSignalMask makes every lock of the domain block the given signals
// for the calling thread while it is held. It is used by Setup only.
func WithSignalMask(sigs ...os.Signal) Option {
	return func(o *options) {
		o.signals = append(o.signals, sigs...)
	}
}

// WithRobust sets whether the domain's locks detect a death of their owners.
// It is true by default. It is used by Setup only.
func WithRobust(robust bool) Option {
	return func(o *options) {
		o.robust = robust
	}
}

// WithDir sets the directory for the backing object. It is used by Setup only.
// The default is shm.Directory().
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithPrefix sets the name prefix of the backing object. It is used by Setup only.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithPerm sets permission bits of the backing object. It is used by Setup only.
func WithPerm(perm os.FileMode) Option {
	return func(o *options) {
		o.perm = perm
	}
}

// WithLogger sets the logger. The default one discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics registers domain metrics with the given registerer.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = registerer
	}
}
