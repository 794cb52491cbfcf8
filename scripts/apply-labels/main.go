// apply-labels turns the error messages of a cleansing run into labels on the
// affected buildings, from the command line.
//
// Usage:
//
//	apply-labels labels  --org 1 --import-file 5
//	apply-labels results --org 1 --import-file 5 --sort pm_property_id --filter message=missing
//	apply-labels apply   --org 1 --import-file 5 --select "Missing PM ID" --select "Bad Tax Lot"
//
// Sort, filter and page size choices of the results command are remembered
// per organization in a local SQLite file (--prefs).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/client"
	"github.com/ekaya-inc/cleansing-engine/pkg/logging"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

var (
	serverURL      string
	organizationID int64
	importFileID   int64
	timeout        time.Duration
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:          "apply-labels",
	Short:        "Apply labels to buildings from cleansing results",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if organizationID <= 0 {
			return fmt.Errorf("--org must be a positive integer")
		}
		if importFileID <= 0 {
			return fmt.Errorf("--import-file must be a positive integer")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CLEANSING_SERVER", "http://localhost:3443"), "cleansing-engine base URL")
	rootCmd.PersistentFlags().Int64Var(&organizationID, "org", 0, "Organization ID")
	rootCmd.PersistentFlags().Int64Var(&importFileID, "import-file", 0, "Import file ID")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "Server request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(labelsCmd, resultsCmd, applyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger() (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return logging.NewLogger("local")
}

// session holds what every subcommand needs: a logger, a client and the
// cleansing results of the selected import file.
type session struct {
	logger  *zap.Logger
	client  *client.Client
	results *models.CleansingResults
}

func openSession(ctx context.Context) (*session, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	c := client.NewClient(serverURL, organizationID, timeout, logger)
	results, err := c.GetCleansingResults(ctx, importFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cleansing results: %w", err)
	}
	return &session{logger: logger, client: c, results: results}, nil
}

// defaultPrefsPath is the per-user preference database.
func defaultPrefsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "cleansing-prefs.db"
	}
	return filepath.Join(dir, "cleansing-engine", "prefs.db")
}
