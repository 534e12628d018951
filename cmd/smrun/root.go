// Copyright 2016 Aleksandr Demakin. All rights reserved.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/nxgtw/go-shmdomain/domain"
	"github.com/nxgtw/go-shmdomain/internal/logging"
	"github.com/nxgtw/go-shmdomain/rts"

	"github.com/spf13/cobra"
)

func newRootCmd(cfg rts.Config) *cobra.Command {
	var (
		debug bool
		dir   string
	)
	cmd := &cobra.Command{
		Use:   "smrun [flags] cmd args...",
		Short: "Run workers sharing a communication domain",
		Long: `smrun creates a shared memory communication domain and starts
the given command once per rank. If one of the workers fails,
the others are terminated.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logCfg := logging.DefaultConfig()
			if debug {
				logCfg = logging.DebugConfig()
			}
			logger := logging.NewOrNop(logCfg)
			defer logger.Sync()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			opts := []rts.Option{
				rts.WithLogger(logger),
				rts.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
			}
			if len(dir) > 0 {
				opts = append(opts, rts.WithDomainOptions(domain.WithDir(dir)))
			}
			return rts.Run(ctx, cfg, args[0], args[1:], opts...)
		},
	}
	flags := cmd.Flags()
	// everything after the command belongs to it.
	flags.SetInterspersed(false)
	flags.UintVar(&cfg.Processes, "np", cfg.Processes, "number of worker processes")
	flags.UintVar(&cfg.BufferSize, "bufsize", cfg.BufferSize, "size of every ring buffer in bytes")
	flags.UintVar(&cfg.ExtraSpace, "extra", cfg.ExtraSpace, "size of the extra shared space in bytes")
	flags.StringVar(&dir, "dir", "", "directory for the shared memory object")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}
