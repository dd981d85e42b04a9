package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/config"
	"github.com/spigell/jobnorm/internal/logger"
	"github.com/spigell/jobnorm/internal/registry"
	"github.com/spigell/jobnorm/internal/store/sqlstore"
)

const (
	app = config.App
)

var (
	// Used for flags.
	cfgFile string
	envFile string

	rootCmd = &cobra.Command{
		Use:           app,
		Short:         "jobnorm normalizes job postings, extracts skills and finds near-duplicates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// ExecuteContext executes the root command.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobnorm.yaml in current directory)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "a dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if err := config.LoadEnvFile(envFile); err != nil {
		log.Fatal(err)
	}
	if err := config.Prepare(viper.GetViper()); err != nil {
		log.Fatal(err)
	}
	// We can't proceed if the config file parsed with error.
	if err := config.ReadFile(viper.GetViper(), cfgFile); err != nil {
		log.Fatal(err)
	}
}

// env holds what every command needs. Parts are built on demand.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	store  *sqlstore.Store
	reg    *registry.Registry
}

func newEnv() (*env, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logger.New(cfg.JSON, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func (e *env) openStore(ctx context.Context) (*sqlstore.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	dbCfg, err := e.cfg.DatabaseConfig()
	if err != nil {
		return nil, err
	}
	s, err := sqlstore.Open(ctx, dbCfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.store = s
	return s, nil
}

func (e *env) registry() (*registry.Registry, error) {
	if e.reg != nil {
		return e.reg, nil
	}
	reg, err := registry.Load(e.cfg.RegistryFile)
	if err != nil {
		return nil, err
	}
	e.reg = reg
	return reg, nil
}

func (e *env) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn("closing store", zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}

// withEnv wraps a command body with env setup and teardown.
func withEnv(fn func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()
		return fn(cmd.Context(), e, cmd, args)
	}
}
