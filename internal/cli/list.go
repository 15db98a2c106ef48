package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked documentation sites",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(dataDir)
	if err != nil {
		return err
	}
	defer a.Close()

	sites, err := a.store.ListSites(cmd.Context())
	if err != nil {
		return err
	}

	if len(sites) == 0 {
		fmt.Println("no sites tracked yet")
		return nil
	}

	for _, site := range sites {
		fmt.Printf("%d\t%-10s\t%3d%%\t%d/%d pages\t%s (%s)\n",
			site.ID, site.Status, site.ProgressPercent, site.IndexedPages, site.TotalPages, site.Name, site.BaseURL)
	}
	return nil
}
