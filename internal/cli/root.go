package cli

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base docsmcp command.
var rootCmd = &cobra.Command{
	Use:   "docsmcp",
	Short: "Crawl, index, and search documentation sites",
	Long: `docsmcp crawls documentation sites, chunks and embeds their content,
and serves semantic search over the result, either from the command line
or as a Model Context Protocol tool server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "directory holding config.toml, metadata.db, vectors/, and the indexer lock")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}

// Execute runs the root command, returning its terminal error (if any) so
// cmd/docsmcp can translate it into an exit code.
func Execute() error {
	return rootCmd.Execute()
}
