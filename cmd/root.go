// =============================================================================
// PRF Budget Import - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every subcommand is
// attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (prfimport)
//   ├── sheetsCmd   (prfimport sheets FILE)
//   ├── validateCmd (prfimport validate FILE)
//   ├── importCmd   (prfimport import FILE...)
//   ├── serveCmd    (prfimport serve)
//   └── versionCmd  (prfimport version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the configuration before any subcommand runs
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/prf-budget-import/internal/config"
	"github.com/ginjaninja78/prf-budget-import/internal/logger"
	"github.com/ginjaninja78/prf-budget-import/internal/pipeline"
	"github.com/ginjaninja78/prf-budget-import/internal/store"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// appConfig and log are set by loadConfig before any subcommand runs.
var (
	appConfig *config.Config
	log       *zap.Logger
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "prfimport",
	Short: "PRF Budget Import - load purchase requests and budget allocations from spreadsheets",
	Long: `prfimport reads Purchase Request Form (PRF) workbooks, groups their rows
into purchase requests, validates them against the business rules and the
chart of accounts, and writes them to the record store.

Key Features:
  - .xlsx, .xls and .csv uploads
  - Multi-row requests grouped by request number
  - Budget allocation sheets with per-fiscal-year conflict handling
  - Per-request transactions; one bad request never blocks the rest
  - JSON, CSV and XLSX reports

Example Usage:
  prfimport sheets prf_march.xlsx
  prfimport validate prf_march.xlsx
  prfimport import prf_march.xlsx --skip-duplicates
  prfimport import --input-dir ./inbox --archive
  prfimport serve --addr :8080`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	ctx, stop := signalContext()
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// loadConfig reads the configuration and builds the logger.
func loadConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	l, err := logger.New(cfg.Logging, verbose)
	if err != nil {
		return err
	}

	appConfig = cfg
	log = l
	log.Debug("Configuration loaded", zap.String("path", cfgFile))
	return nil
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// openStore connects to PostgreSQL when a database URL is configured and
// falls back to the in-memory store otherwise.
func openStore(ctx context.Context) (store.Store, error) {
	if appConfig.Database.URL == "" {
		log.Warn("No database configured; using the in-memory store")
		return store.NewMemory(), nil
	}

	pg, err := store.NewPostgres(ctx, appConfig.Database.URL, appConfig.Database.MaxConns, log)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

// newPipeline opens the store and builds a pipeline over it. The caller
// closes the store.
func newPipeline(ctx context.Context) (*pipeline.Pipeline, store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	p, err := pipeline.New(appConfig, st, log)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return p, st, nil
}
