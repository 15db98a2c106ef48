package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	validateCleanupOrphans    bool
	validateRegenerateMissing bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check consistency between the metadata store and the vector store",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateCleanupOrphans, "cleanup-orphans", false, "delete vectors with no matching metadata row")
	validateCmd.Flags().BoolVar(&validateRegenerateMissing, "regenerate-missing", false, "re-embed and restore vectors missing for a known chunk")
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(dataDir)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	report, err := a.validator.Validate(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("sqlite chunks: %d, vector embeddings: %d\n", report.SQLiteChunks, report.VecEmbeddings)
	fmt.Printf("missing in vector store: %d, orphaned in vector store: %d\n", len(report.MissingInVec), len(report.OrphanedInVec))
	if report.IsConsistent {
		fmt.Println("consistent")
	} else {
		fmt.Printf("inconsistent sites: %v\n", report.InconsistentSites)
	}

	if validateCleanupOrphans && len(report.OrphanedInVec) > 0 {
		removed, err := a.validator.CleanupOrphans(report.OrphanedInVec)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d orphaned vectors\n", removed)
	}

	if validateRegenerateMissing && len(report.MissingInVec) > 0 {
		regenerated, unresolved, err := a.validator.RegenerateMissing(ctx, report.MissingInVec)
		if err != nil {
			return err
		}
		fmt.Printf("regenerated %d vectors\n", len(regenerated))
		if len(unresolved) > 0 {
			fmt.Printf("could not regenerate %d vectors (no embedder configured, or re-embedding failed): %v\n", len(unresolved), unresolved)
		}
	}

	return nil
}
