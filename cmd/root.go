package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "shelfripper",
		Short: "Download bookshelf ebooks as PDF files",
		Long: `Shelfripper signs in to an access-code protected ebook bookshelf,
lists its books and downloads the selected ones page by page, assembling
each book into a single PDF.

Expired sessions are replaced transparently while pages download.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return a.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose logging")

	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	// Add subcommands
	cmd.AddCommand(newListCmd(a))
	cmd.AddCommand(newDownloadCmd(a))
	cmd.AddCommand(newServeCmd(a))

	return cmd
}
