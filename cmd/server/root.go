package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hongminglow/passgate/internal/config"
	"github.com/hongminglow/passgate/internal/logging"
)

const serviceName = "passgate"

type rootFlags struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Username/password authentication service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(flags), newMigrateCmd(flags))
	return cmd
}

// load reads the dotenv file, then the layered configuration, and builds the
// logger described by it.
func (f *rootFlags) load(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	envLoaded := loadLocalEnv(f.envFile)

	cfg, err := config.Load(config.Options{File: f.configFile, Flags: cmd.Flags()})
	if err != nil {
		return config.Config{}, nil, err
	}

	logger := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	if !envLoaded {
		logger.Debug("no .env file found; relying on existing environment", "path", f.envFile)
	}
	return cfg, logger, nil
}

func loadLocalEnv(path string) bool {
	if path == "" {
		return false
	}
	return godotenv.Load(path) == nil
}
