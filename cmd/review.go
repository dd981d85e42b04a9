package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spigell/jobnorm/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review near-duplicate candidates",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending duplicate candidates",
	RunE: withReview(func(ctx context.Context, svc *review.Service, cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		candidates, err := svc.Pending(ctx, limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tTITLE\tCANONICAL\tCANONICAL TITLE\tSIMILARITY")
		for _, c := range candidates {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%.3f\n", c.Job.ID, c.Job.TitleRaw, c.Canonical.ID, c.Canonical.TitleRaw, c.Map.Similarity)
		}
		return w.Flush()
	}),
}

var reviewMergeCmd = &cobra.Command{
	Use:   "merge <job-id>",
	Short: "Confirm a job as a duplicate of its canonical job",
	Args:  cobra.ExactArgs(1),
	RunE: withReview(func(ctx context.Context, svc *review.Service, cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		moved, err := svc.Merge(ctx, id, reviewer(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "merged job %d (%d rows re-pointed)\n", id, moved)
		return nil
	}),
}

var reviewDismissCmd = &cobra.Command{
	Use:   "dismiss <job-id>",
	Short: "Mark a job as not a duplicate",
	Args:  cobra.ExactArgs(1),
	RunE: withReview(func(ctx context.Context, svc *review.Service, cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		if err := svc.Dismiss(ctx, id, reviewer(cmd)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dismissed job %d\n", id)
		return nil
	}),
}

var reviewExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Dismiss pending duplicates older than --older-than",
	RunE: withReview(func(ctx context.Context, svc *review.Service, cmd *cobra.Command, _ []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		n, err := svc.Expire(ctx, age)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d pending duplicates\n", n)
		return nil
	}),
}

var reviewExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write pending duplicate candidates to an XLSX file",
	RunE: withReview(func(ctx context.Context, svc *review.Service, cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		out, _ := cmd.Flags().GetString("out")
		data, err := svc.Export(ctx, limit)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
		return nil
	}),
}

var reviewInteractiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Walk pending duplicates and merge or dismiss them",
	RunE: withReview(func(ctx context.Context, svc *review.Service, cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		tally, err := svc.Interactive(ctx, review.Terminal{}, reviewer(cmd), limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "merged %d, dismissed %d, skipped %d\n", tally.Merged, tally.Dismissed, tally.Skipped)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewListCmd, reviewMergeCmd, reviewDismissCmd, reviewExpireCmd, reviewExportCmd, reviewInteractiveCmd)

	reviewCmd.PersistentFlags().String("reviewer", os.Getenv("USER"), "name recorded on reviewed rows")
	for _, c := range []*cobra.Command{reviewListCmd, reviewExportCmd, reviewInteractiveCmd} {
		c.Flags().Int("limit", 100, "maximum candidates, 0 for all")
	}
	reviewExpireCmd.Flags().Duration("older-than", 0, "age of pending rows to dismiss, e.g. 720h")
	_ = reviewExpireCmd.MarkFlagRequired("older-than")
	reviewExportCmd.Flags().StringP("out", "o", "pending-duplicates.xlsx", "output file")
}

func withReview(fn func(ctx context.Context, svc *review.Service, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
		s, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, review.New(s, nil, e.logger), cmd, args)
	})
}

func reviewer(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("reviewer")
	return name
}

func parseJobID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}
