package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite stored sessions at the current document version",
		Long: `Rewrite every stored session document at the current schema version.

Older documents are upgraded whenever they are read, so this is only
needed to bring a whole store, such as an imported directory of legacy
session files, up to date at once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(a *app) error {
				n, err := a.sessions.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				version, err := a.db.SchemaVersion()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d sessions (database schema version %d).\n", n, version)
				return nil
			})
		},
	}
}
