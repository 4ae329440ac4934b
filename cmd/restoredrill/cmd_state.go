package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/restoredrill/internal/lock"
	"github.com/Ning0612/restoredrill/internal/logger"
	"github.com/Ning0612/restoredrill/internal/state"
)

var (
	argLimit int
	argForce bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "list recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		store, err := state.NewManager(cfg.StatePath())
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.GetHistory(argLimit)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), runs)
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "generate the key material used by backups",
	Long: `Runs the backup program's key generation script. Runs do this
automatically when the key file is missing; use --force to replace an
existing key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		if _, err := os.Stat(cfg.KeyPath()); err == nil && !argForce {
			return fmt.Errorf("key file %s already exists (use --force to replace it)", cfg.KeyPath())
		}

		tool, err := newTool(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		if err := tool.GenerateKey(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "key written to %s\n", cfg.KeyPath())
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "remove the workspace lock left by a crashed run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		l, err := lock.NewFileLock(cfg.StatePath())
		if err != nil {
			return err
		}

		holder, err := l.GetHolder()
		if err == nil && !argForce {
			return fmt.Errorf("run %s (PID %d on %s) is still active (use --force to remove its lock)",
				holder.RunID, holder.PID, holder.Hostname)
		}
		if err := l.ForceRelease(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "lock removed")
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&argLimit, "limit", "l", 20, "number of runs to show")
	keygenCmd.Flags().BoolVar(&argForce, "force", false, "replace an existing key file")
	unlockCmd.Flags().BoolVar(&argForce, "force", false, "remove the lock even if its holder looks alive")
	rootCmd.AddCommand(historyCmd, keygenCmd, unlockCmd)
}

func printHistory(w io.Writer, runs []state.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSTATUS\tVERSIONS\tSEED\tFAILED AT")
	for _, r := range runs {
		failed := "-"
		if r.FailedVersion != state.NoFailedVersion {
			failed = fmt.Sprint(r.FailedVersion)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID,
			r.StartTime.Local().Format(time.DateTime),
			r.EndTime.Sub(r.StartTime).Round(time.Second),
			r.Status,
			r.Versions,
			r.Seed,
			failed,
		)
	}
	tw.Flush()
}
