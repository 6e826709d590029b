package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewValidateEnvCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "validate-env",
		Short:        "Check that every required setting is present",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			out := cmd.OutOrStdout()
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "❌ %v\n", err)
				return err
			}

			fmt.Fprintln(out, "✅ All required environment variables are set")
			fmt.Fprintf(out, "  memgraph: %s\n", cfg.Memgraph.URI)
			fmt.Fprintf(out, "  nango:    %s\n", cfg.Nango.Host)
			fmt.Fprintf(out, "  redis:    %s\n", orNone(cfg.Redis.Addr))
			fmt.Fprintf(out, "  postgres: %s\n", orNone(redactDSN(cfg.Postgres.DSN)))
			fmt.Fprintf(out, "  llm:      %s\n", orNone(cfg.LLM.Provider))
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// redactDSN hides everything but the scheme of a connection string.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	for i := 0; i+2 < len(dsn); i++ {
		if dsn[i:i+3] == "://" {
			return dsn[:i+3] + "***"
		}
	}
	return "***"
}
