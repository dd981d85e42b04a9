package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spigell/jobnorm/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Query normalized jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs filtered by normalized fields",
	RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
		s, err := e.openStore(ctx)
		if err != nil {
			return err
		}

		f := store.JobFilter{}
		f.TitleFamily, _ = cmd.Flags().GetString("family")
		f.Seniority, _ = cmd.Flags().GetString("seniority")
		f.Location, _ = cmd.Flags().GetString("location")
		f.Company, _ = cmd.Flags().GetString("company")
		f.Limit, _ = cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")
		f.ActiveOnly = !all

		jobs, err := s.ListJobs(ctx, f)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("output-json"); asJSON {
			return printJSON(cmd.OutOrStdout(), jobs)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFAMILY\tTITLE\tSENIORITY\tLOCATION\tCOMPANY")
		for _, j := range jobs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", j.ID, j.TitleFamily, j.TitleCanonical, j.Seniority, j.LocationCanonical, j.CompanyCanonical)
		}
		return w.Flush()
	}),
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Pipeline run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent pipeline runs",
	RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
		s, err := e.openStore(ctx)
		if err != nil {
			return err
		}
		stage, _ := cmd.Flags().GetString("stage")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := s.ListRuns(ctx, stage, limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTAGE\tSTARTED\tSTATUS\tPROCESSED\tFOUND\tFAILED\tBASELINE")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				r.RunID, r.Stage, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status,
				r.Processed, r.Found, r.Failed, r.BaselineSize)
		}
		return w.Flush()
	}),
}

func init() {
	rootCmd.AddCommand(jobsCmd, runsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	runsCmd.AddCommand(runsListCmd)

	jobsListCmd.Flags().String("family", "", "title family, e.g. data_analytics")
	jobsListCmd.Flags().String("seniority", "", "seniority level")
	jobsListCmd.Flags().String("location", "", "canonical location")
	jobsListCmd.Flags().String("company", "", "canonical company")
	jobsListCmd.Flags().Int("limit", 50, "maximum jobs")
	jobsListCmd.Flags().Bool("all", false, "include quarantined jobs")
	jobsListCmd.Flags().Bool("output-json", false, "print jobs as JSON")

	runsListCmd.Flags().String("stage", "", "only runs of this stage")
	runsListCmd.Flags().Int("limit", 20, "maximum runs")
}
