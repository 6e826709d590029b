package cli

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

type ingestOptions struct {
	OrgID     string
	ProjectID string
}

// NewIngestCommand runs an initial ingestion for one connection and prints the
// per-provider results as JSON.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:          "ingest",
		Short:        "Pull every provider's synced records into a project graph",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.OrgID == "" || opts.ProjectID == "" {
				return errors.New("--org and --project are required")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			log, err := rootOpts.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			deps, err := Connect(ctx, rootOpts.cfg, log)
			if err != nil {
				return err
			}
			app, err := NewApp(rootOpts.cfg, deps, log)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			result := app.Pipeline.Initial(ctx, opts.OrgID, opts.ProjectID)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			return result.Err()
		},
	}

	cmd.Flags().StringVar(&opts.OrgID, "org", "", "organization id")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	return cmd
}
