package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	searchSiteID int64
	searchLimit  int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over indexed documentation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Int64Var(&searchSiteID, "site-id", 0, "restrict results to a single site id")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	a, err := newApp(dataDir)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	queryVec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return err
	}

	var siteFilter *int64
	if searchSiteID != 0 {
		siteFilter = &searchSiteID
	}

	hits, err := a.vectors.Search(queryVec, searchLimit, siteFilter)
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		fmt.Println("no matches")
		return nil
	}

	for i, hit := range hits {
		site, err := a.store.GetSiteByID(ctx, hit.SiteID)
		siteName := "?"
		if err == nil {
			siteName = site.Name
		}
		fmt.Printf("%d. [%.3f] %s (%s) — %s\n   %s\n", i+1, hit.Similarity, hit.PageURL, siteName, hit.HeadingPath, truncate(hit.Content, 160))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
