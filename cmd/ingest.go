package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/ingest"
	"github.com/spigell/jobnorm/internal/source"
	"github.com/spigell/jobnorm/internal/source/headhunter"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load raw job postings into the store",
}

var ingestJSONLCmd = &cobra.Command{
	Use:   "jsonl <file>",
	Short: "Ingest a JSON Lines file of raw job records",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
		src, err := source.OpenJSONL(args[0])
		if err != nil {
			return err
		}
		return runIngest(ctx, e, cmd, src)
	}),
}

var ingestHHCmd = &cobra.Command{
	Use:   "hh",
	Short: "Ingest vacancies from the hh.ru search configured under headhunter",
	RunE: withEnv(func(ctx context.Context, e *env, cmd *cobra.Command, _ []string) error {
		token, err := e.cfg.HeadhunterToken()
		if err != nil {
			return err
		}
		client := headhunter.New(e.logger, token)
		if e.cfg.Headhunter.UserAgent != "" {
			client.UserAgent = e.cfg.Headhunter.UserAgent
		}

		opts := e.cfg.Headhunter.Options
		if text, _ := cmd.Flags().GetString("text"); text != "" {
			opts.Search.Text = text
		}
		if pages, _ := cmd.Flags().GetInt("max-pages"); pages > 0 {
			opts.MaxPages = pages
		}
		if opts.Search.Text == "" {
			return fmt.Errorf("headhunter.search.text is required")
		}

		e.logger.Info("starting the search", zap.String("search", opts.Search.Text), zap.Int("max_pages", opts.MaxPages))
		return runIngest(ctx, e, cmd, headhunter.NewSource(client, opts))
	}),
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestJSONLCmd, ingestHHCmd)

	ingestHHCmd.Flags().String("text", "", "search text, overrides headhunter.search.text")
	ingestHHCmd.Flags().Int("max-pages", 0, "pages to read, overrides headhunter.max_pages")
}

func runIngest(ctx context.Context, e *env, cmd *cobra.Command, src source.Source) error {
	defer src.Close()

	s, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	ingester, err := ingest.New(s, e.logger)
	if err != nil {
		return err
	}
	res, err := ingester.Run(ctx, src)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
