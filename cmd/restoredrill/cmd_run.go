package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/restoredrill/internal/config"
	"github.com/Ning0612/restoredrill/internal/logger"
	"github.com/Ning0612/restoredrill/internal/progress"
	"github.com/Ning0612/restoredrill/internal/service"
)

var progressOutput io.Writer = os.Stdout

var (
	argVersions   int
	argSeed       uint64
	argNoCache    bool
	argNoProgress bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "generate versions, back them up, then restore and verify each one",
	Long: `Runs a complete drill. Every version of the test directory is backed up
right after its snapshot is recorded. Afterwards each version is restored in
order and compared with its snapshot; the first difference fails the run.

Exit status is 2 when a restored version differs and 3 when another run
holds the workspace.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd, false)
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		h, err := newHarness(cfg, !argNoProgress)
		if err != nil {
			return err
		}
		defer h.Close()

		ctx, stop := signalContext()
		defer stop()

		result, err := h.svc.Run(ctx)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), result)
		if result.Failure != nil {
			return result.Failure
		}
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "generate and back up versions without verifying them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd, true)
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		h, err := newHarness(cfg, !argNoProgress)
		if err != nil {
			return err
		}
		defer h.Close()

		if err := h.lock.Acquire("generate"); err != nil {
			return err
		}
		defer h.lock.Release()

		ctx, stop := signalContext()
		defer stop()

		record, err := h.svc.Generate(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "generated %d versions (seed %d)\n", record.Len(), h.svc.Seed())
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "restore and verify the versions recorded by an earlier generate",
	Long: `Restores every cached version and compares it with its snapshot. The
configuration (seed, versions, content and mutation settings) must match the
generate run, because it selects the cached record.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd, true)
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		h, err := newHarness(cfg, !argNoProgress)
		if err != nil {
			return err
		}
		defer h.Close()

		record, err := h.svc.CachedRecord()
		if err != nil {
			return fmt.Errorf("no generated versions for this configuration: %w", err)
		}

		if err := h.lock.Acquire("verify"); err != nil {
			return err
		}
		defer h.lock.Release()

		ctx, stop := signalContext()
		defer stop()

		if err := h.svc.Verify(ctx, record); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "FAILED: %v\n", err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "verified %d versions\n", record.Len())
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, generateCmd, verifyCmd} {
		cmd.Flags().IntVarP(&argVersions, "versions", "n", 0, "number of versions (overrides run.versions)")
		cmd.Flags().Uint64Var(&argSeed, "seed", 0, "random seed (overrides run.seed; 0 keeps the configured value)")
		cmd.Flags().BoolVar(&argNoProgress, "no-progress", false, "disable the progress bar")
		rootCmd.AddCommand(cmd)
	}
	runCmd.Flags().BoolVar(&argNoCache, "no-cache", false, "always regenerate versions")
}

// loadRunConfig applies the per-run flags on top of the configuration.
// forceCache keeps the version cache on for commands that hand versions to a later verify.
func loadRunConfig(cmd *cobra.Command, forceCache bool) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("versions") {
		cfg.Run.Versions = argVersions
	}
	if argSeed != 0 {
		cfg.Run.Seed = argSeed
	}
	if argNoCache {
		cfg.Run.Cache = false
	}
	if forceCache {
		cfg.Run.Cache = true
	}

	if err := cfg.Validate(); err != nil {
		logger.Shutdown()
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printResult(w io.Writer, r *service.RunResult) {
	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(w, "%s run %s\n", status, r.ID)
	fmt.Fprintf(w, "  seed:     %d\n", r.Seed)
	fmt.Fprintf(w, "  versions: %d", r.Versions)
	if r.Cached {
		fmt.Fprint(w, " (cached)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  backup:   %s\n", progress.FormatBytes(r.BackupSize))
	fmt.Fprintf(w, "  elapsed:  %s\n", r.EndTime.Sub(r.StartTime).Round(time.Millisecond))
	if r.Failure != nil {
		fmt.Fprintf(w, "  failure:  %v\n", r.Failure)
	}
}
