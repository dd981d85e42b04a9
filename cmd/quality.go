package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/quality"
)

var errGatesFailed = errors.New("quality gates failed")

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Corpus quality reports",
}

var qualitySnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print coverage, average quality and gate results",
	RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
		s, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		snap, err := quality.TakeSnapshot(ctx, s, e.cfg.Quality.Gates)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), snap); err != nil {
			return err
		}
		if strict, _ := cmd.Flags().GetBool("strict"); strict && !snap.Passed() {
			return errGatesFailed
		}
		return nil
	}),
}

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Deactivate junk postings or bring them back",
}

var quarantineRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Deactivate active jobs that fail the junk heuristics",
	RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
		s, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		reg, err := e.registry()
		if err != nil {
			return err
		}

		q := quality.NewQuarantiner(s, reg, e.logger)
		q.DryRun, _ = cmd.Flags().GetBool("dry-run")
		flagged, err := q.Run(ctx)
		if err != nil {
			return err
		}
		for _, f := range flagged {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", f.JobID, f.Reason, f.URL)
		}
		e.logger.Info("quarantine finished", zap.Int("flagged", len(flagged)), zap.Bool("dry_run", q.DryRun))
		return nil
	}),
}

var quarantineRestoreCmd = &cobra.Command{
	Use:   "restore <job-id>...",
	Short: "Reactivate quarantined jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
		s, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		for _, arg := range args {
			id, err := parseJobID(arg)
			if err != nil {
				return err
			}
			if err := s.Restore(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored job %d\n", id)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(qualityCmd, quarantineCmd)
	qualityCmd.AddCommand(qualitySnapshotCmd)
	quarantineCmd.AddCommand(quarantineRunCmd, quarantineRestoreCmd)

	qualitySnapshotCmd.Flags().Bool("strict", false, "exit non-zero when a gate fails")
	quarantineRunCmd.Flags().Bool("dry-run", false, "report without deactivating")
}
