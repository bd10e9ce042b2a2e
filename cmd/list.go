package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var catalogID string
	var accessCode string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the books on a bookshelf",
		Example: `  # List books using the access code from the environment
  SHELFRIPPER_ACCESS_CODE=secret shelfripper list --catalog abc12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := a.credential(catalogID, accessCode)
			if err != nil {
				return err
			}
			o, err := a.orchestrator()
			if err != nil {
				return err
			}

			_, entries, err := o.Open(cmd.Context(), cred)
			if err != nil {
				return runError(err)
			}

			out := cmd.OutOrStdout()
			for _, entry := range entries {
				fmt.Fprintf(out, "%3d. %s\n", entry.Ordinal, entry.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogID, "catalog", "", "Bookshelf catalog code")
	cmd.Flags().StringVar(&accessCode, "access-code", "", "Bookshelf access code (default $"+accessCodeEnv+")")

	return cmd
}
