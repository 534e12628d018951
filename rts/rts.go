// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package rts is a runtime for processes sharing a communication domain.
// A master process calls Run, which creates the domain and starts the workers.
// Workers call Init to connect to the domain, and Finish, when they are done.
package rts

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nxgtw/go-shmdomain/domain"
	"github.com/nxgtw/go-shmdomain/env"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ConfigPrefix is the prefix of environment variables read by LoadConfig.
const ConfigPrefix = "SMRUN"

// ErrInvalidConfig is returned by Run for a zero buffer size.
var ErrInvalidConfig = errors.New("invalid runtime config")

// Config describes a domain created by Run.
type Config struct {
	Processes  uint `envconfig:"PROCESSES" default:"2"`
	BufferSize uint `envconfig:"BUFFER_SIZE" default:"1024"`
	ExtraSpace uint `envconfig:"EXTRA_SPACE" default:"0"`
}

// LoadConfig reads the config from SMRUN_* environment variables, using defaults for missing ones.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(ConfigPrefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to load runtime config")
	}
	return cfg, nil
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger     *zap.Logger
	envPrefix  string
	domainOpts []domain.Option
	stdout     io.Writer
	stderr     io.Writer
	killDelay  time.Duration
}

// WithLogger sets the logger for the runtime and the domain.
func WithLogger(logger *zap.Logger) Option {
	return func(o *runOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDomainOptions passes options to domain.Setup.
func WithDomainOptions(opts ...domain.Option) Option {
	return func(o *runOptions) {
		o.domainOpts = append(o.domainOpts, opts...)
	}
}

// WithEnvPrefix sets the prefix of variables, which pass domain params to the workers.
// Workers started with a non-default prefix must use InitWithPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *runOptions) {
		o.envPrefix = prefix
	}
}

// WithOutput sets workers' stdout and stderr. By default, they are inherited.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *runOptions) {
		o.stdout, o.stderr = stdout, stderr
	}
}

// WithKillDelay sets the time given to workers to exit after SIGTERM. Then they are killed.
func WithKillDelay(delay time.Duration) Option {
	return func(o *runOptions) {
		o.killDelay = delay
	}
}

// Run creates a domain for cfg.Processes workers, and starts every worker as path with args.
// The workers get the domain name and their ranks through the environment.
// It blocks until all workers exit. If one of them fails, or ctx is done,
// the domain is shut down, and the remaining workers get SIGTERM.
func Run(ctx context.Context, cfg Config, path string, args []string, opts ...Option) (err error) {
	o := &runOptions{
		logger:    zap.NewNop(),
		envPrefix: env.DefaultPrefix,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		killDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	stdout, stderr := serializeOutput(o.stdout, o.stderr)
	if cfg.Processes == 0 {
		return nil
	}
	if cfg.BufferSize == 0 {
		return errors.Wrap(ErrInvalidConfig, "zero buffer size")
	}
	domainOpts := append([]domain.Option{domain.WithLogger(o.logger)}, o.domainOpts...)
	d, err := domain.Setup(int(cfg.BufferSize), int(cfg.Processes), int(cfg.ExtraSpace), domainOpts...)
	if err != nil {
		return errors.Wrap(err, "failed to setup domain")
	}
	defer func() {
		err = multierr.Append(err, d.Close())
	}()
	log := o.logger.With(zap.String("domain", d.Name()))

	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			if err := d.Shutdown(); err != nil {
				log.Warn("domain shutdown failed", zap.Error(err))
			}
		})
	}
	stop := context.AfterFunc(ctx, shutdown)
	defer func() {
		stop()
		// waits for a shutdown in progress, as the domain is closed next.
		shutdownOnce.Do(func() {})
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	for rank := uint(0); rank < cfg.Processes; rank++ {
		rank := rank // per-iteration copy; go directive is 1.21 (pre-loopvar semantics)
		cmd := exec.CommandContext(gctx, path, args...)
		cmd.Env = append(os.Environ(), env.Environ(o.envPrefix, env.Params{Name: d.Name(), Rank: rank})...)
		cmd.Stdin = nil
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmd.Cancel = func() error {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		cmd.WaitDelay = o.killDelay
		if err := cmd.Start(); err != nil {
			shutdown()
			cancel()
			return multierr.Append(errors.Wrapf(err, "failed to start worker %d", rank), g.Wait())
		}
		log.Debug("worker started", zap.Uint("rank", rank), zap.Int("pid", cmd.Process.Pid))
		g.Go(func() error {
			if err := cmd.Wait(); err != nil {
				log.Info("worker failed", zap.Uint("rank", rank), zap.Error(err))
				// blocked workers are woken before the others get SIGTERM.
				shutdown()
				return errors.Wrapf(err, "worker %d", rank)
			}
			log.Debug("worker finished", zap.Uint("rank", rank))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// workers may exit successfully after a shutdown caused by ctx.
	return errors.Wrap(ctx.Err(), "run canceled")
}

// Init connects a worker to the domain, which was created by Run.
func Init(opts ...domain.Option) (*domain.Domain, error) {
	return InitWithPrefix(env.DefaultPrefix, opts...)
}

// InitWithPrefix connects a worker to the domain, which was created by Run with WithEnvPrefix.
func InitWithPrefix(prefix string, opts ...domain.Option) (*domain.Domain, error) {
	params, err := env.Load(prefix)
	if err != nil {
		return nil, errors.Wrap(err, "the process was not started by the runtime")
	}
	return domain.Connect(params.Name, int(params.Rank), opts...)
}

// Finish releases worker's handle.
func Finish(d *domain.Domain) error {
	return d.Close()
}

// lockedWriter serializes writes of several workers into one writer.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// serializeOutput wraps writers, which are not files, as exec copies
// the output of every worker in its own goroutine.
func serializeOutput(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	mu := new(sync.Mutex)
	wrap := func(w io.Writer) io.Writer {
		if _, ok := w.(*os.File); ok || w == nil {
			return w
		}
		return lockedWriter{mu: mu, w: w}
	}
	return wrap(stdout), wrap(stderr)
}
