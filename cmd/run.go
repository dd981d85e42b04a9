package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/dedupe"
	"github.com/spigell/jobnorm/internal/embedding"
	"github.com/spigell/jobnorm/internal/embedding/gemini"
	"github.com/spigell/jobnorm/internal/embedding/openai"
	"github.com/spigell/jobnorm/internal/normalize"
	"github.com/spigell/jobnorm/internal/pipeline"
	"github.com/spigell/jobnorm/internal/runlock"
	"github.com/spigell/jobnorm/internal/skills"
	"github.com/spigell/jobnorm/internal/store/sqlstore"
)

var runCmd = &cobra.Command{
	Use:       "run [stage...]",
	Short:     "Run pipeline stages over jobs that lack their output",
	Long:      "Run the entities, dedupe and embeddings stages incrementally. Without arguments every stage runs in that order.",
	ValidArgs: []string{"entities", "dedupe", "embeddings"},
	Args:      cobra.OnlyValidArgs,
	RunE:      withEnv(run),
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("list", false, "list stages and whether they are enabled")
}

func run(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
	s, err := e.openStore(ctx)
	if err != nil {
		return err
	}

	locker, closeLocker, err := newLocker(e, s)
	if err != nil {
		return err
	}
	defer closeLocker()

	coordinator, err := newCoordinator(ctx, e, s, locker)
	if err != nil {
		return err
	}

	if list, _ := cmd.Flags().GetBool("list"); list {
		for _, st := range coordinator.Describe() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s enabled=%t %s\n", st.Name, st.Enabled, st.Reason)
		}
		return nil
	}

	stages := args
	if len(stages) == 0 {
		stages = []string{"entities", "dedupe", "embeddings"}
	}

	for _, name := range stages {
		sum, err := coordinator.RunIncremental(ctx, name)
		if err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
		if err := printJSON(cmd.OutOrStdout(), sum); err != nil {
			return err
		}
	}
	return nil
}

func newCoordinator(ctx context.Context, e *env, s *sqlstore.Store, locker runlock.Locker) (*pipeline.Coordinator, error) {
	reg, err := e.registry()
	if err != nil {
		return nil, err
	}
	extractor, err := skills.New(reg, e.cfg.SkillMode(), e.logger)
	if err != nil {
		return nil, err
	}
	detector, err := dedupe.NewDetector(e.cfg.Dedupe, e.logger)
	if err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(ctx, e)
	if err != nil {
		return nil, err
	}

	var embeddings *pipeline.Embeddings
	if embedder != nil {
		embeddings = pipeline.NewEmbeddings(s, embedding.NewService(embedder, e.cfg.Embedding, e.logger))
	} else {
		embeddings = pipeline.NewEmbeddings(s, nil)
	}

	return pipeline.New(e.cfg.Pipeline, s, locker, e.logger,
		pipeline.NewEntities(s, normalize.New(reg), extractor),
		pipeline.NewDedupe(s, detector, nil, e.logger),
		embeddings,
	)
}

// newEmbedder returns nil when no provider is configured.
func newEmbedder(ctx context.Context, e *env) (embedding.Embedder, error) {
	cfg := e.cfg.Embedding
	if cfg.Provider == embedding.ProviderNone {
		return nil, nil
	}

	apiKey, err := e.cfg.EmbeddingAPIKey()
	if err != nil {
		return nil, fmt.Errorf("%w (set embedding.api_key_file)", err)
	}

	e.logger.Info("embedding provider",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimension", cfg.Dimension),
	)

	switch cfg.Provider {
	case embedding.ProviderOpenAI:
		return openai.New(apiKey, cfg.Model, cfg.Dimension)
	case embedding.ProviderGemini:
		return gemini.New(ctx, apiKey, cfg.Model, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// newLocker prefers redis, then a postgres advisory lock.
func newLocker(e *env, s *sqlstore.Store) (runlock.Locker, func(), error) {
	if e.cfg.Redis.Addr != "" {
		locker, closer, err := runlock.New(e.cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return locker, func() {
			if err := closer(); err != nil {
				e.logger.Warn("closing redis client", zap.Error(err))
			}
		}, nil
	}
	if s.Dialect() == sqlstore.DriverPostgres {
		return runlock.NewPostgres(s.DB()), func() {}, nil
	}
	return runlock.Noop{}, func() {}, nil
}
