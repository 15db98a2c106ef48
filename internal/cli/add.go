package cli

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"docsmcp/internal/errs"
)

var (
	addName    string
	addVersion string
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Crawl and index a documentation site",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "display name for the site (default: derived from the URL host)")
	addCmd.Flags().StringVar(&addVersion, "version", "1.0", "version label for the site")
}

func runAdd(cmd *cobra.Command, args []string) error {
	rawURL := args[0]
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return userError("invalid URL %q: must be an absolute http(s) URL", rawURL)
	}

	name := addName
	if name == "" {
		name = parsed.Host
	}

	a, err := newApp(dataDir)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	if existing, err := a.store.GetSiteByBaseURL(ctx, rawURL); err == nil {
		return userError("site %q is already tracked (id %d, status %s)", rawURL, existing.ID, existing.Status)
	}

	siteID, err := a.store.CreateSite(ctx, rawURL, name, addVersion)
	if err != nil {
		return err
	}

	fmt.Printf("crawling %s (site id %d)...\n", rawURL, siteID)
	start := time.Now()
	stats, err := a.crawler.CrawlSite(ctx, siteID, rawURL)
	if err != nil {
		_ = a.store.UpdateSiteStatus(ctx, siteID, "failed", err.Error())
		return err
	}
	fmt.Printf("crawl complete: %d urls, %d ok, %d failed, %d robots-blocked (%s)\n",
		stats.TotalURLs, stats.SuccessfulCrawls, stats.FailedCrawls, stats.RobotsBlocked, stats.Duration.Round(time.Millisecond))

	fmt.Println("embedding and indexing...")
	if err := a.indexer.Run(ctx); err != nil {
		if errs.Is(err, errs.KindLeaseDenied) {
			fmt.Println("another indexer is already running; embeddings will be picked up by it")
			return nil
		}
		return err
	}

	site, err := a.store.GetSiteByID(ctx, siteID)
	if err != nil {
		return err
	}
	fmt.Printf("done in %s: site %q is %s (%d/%d pages indexed)\n",
		time.Since(start).Round(time.Millisecond), site.Name, site.Status, site.IndexedPages, site.TotalPages)
	return nil
}
