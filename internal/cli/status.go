package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"docsmcp/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the health of every subsystem",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, cfgErr := config.Load(dataDir)
	reportLine("config", cfgErr)

	if cfgErr != nil {
		// Nothing downstream can be wired without a valid config; every
		// remaining line reports the same root cause rather than a chain
		// of confusing follow-on errors.
		for _, name := range []string{"metadata store", "vector store", "embedding service", "queue", "indexer lease"} {
			reportLine(name, cfgErr)
		}
		return nil
	}

	a, appErr := newApp(dataDir)
	if appErr != nil {
		reportLine("metadata store", appErr)
		for _, name := range []string{"vector store", "embedding service", "queue", "indexer lease"} {
			reportLine(name, appErr)
		}
		return nil
	}
	defer a.Close()
	reportLine("metadata store", nil)

	reportLine("vector store", nil)
	fmt.Printf("  %d vectors on disk\n", a.vectors.Count())

	embedErr := a.embedder.HealthCheck(ctx)
	reportLine("embedding service", embedErr)
	if embedErr == nil {
		fmt.Printf("  %s\n", cfg.Ollama.BaseURL())
	}

	stats, queueErr := a.queue.Stats(ctx, nil)
	reportLine("queue", queueErr)
	if queueErr == nil {
		fmt.Printf("  %d pending, %d processing, %d completed, %d failed\n", stats.Pending, stats.Processing, stats.Completed, stats.Failed)
	}

	reportLine("indexer lease", lockStatus(cfg.DataDir))
	return nil
}

func reportLine(name string, err error) {
	if err == nil {
		fmt.Printf("%-20s OK\n", name)
		return
	}
	fmt.Printf("%-20s ERROR: %v\n", name, err)
}

// lockStatus reports whether the indexer lock file is currently present,
// without attempting to acquire it (status must never block or mutate).
func lockStatus(dir string) error {
	_, err := os.Stat(filepath.Join(dir, ".indexer.lock"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("lock file present, an indexer may currently be running (checked at %s)", time.Now().Format(time.RFC3339))
}
