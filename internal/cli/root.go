// Package cli holds the graphsync command tree.
package cli

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agenthands/graphsync/internal/config"
	"github.com/agenthands/graphsync/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string

	cfg *config.Config
}

// NewRootCommand creates the root command for the graphsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "graphsync",
		Short: "Temporal knowledge graph fed by provider sync webhooks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a TOML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewValidateEnvCommand(opts))

	return cmd
}

// load reads the dotenv file (when present), the config file and the environment overrides.
func (o *RootOptions) load() error {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	o.cfg = cfg
	return nil
}

func (o *RootOptions) logger() (*logger.Logger, error) {
	return logger.New(o.cfg.Log.Mode)
}
