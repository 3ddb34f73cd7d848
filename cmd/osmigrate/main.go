// Package main is the CLI entry point for osmigrate.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/osmigrate/internal/config"
	"github.com/eliteGoblin/osmigrate/internal/infra"
	"github.com/eliteGoblin/osmigrate/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

const (
	jsonStartMarker = "### JSON START ###"
	jsonEndMarker   = "### JSON END ###"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "osmigrate",
	Short: "Unattended one-shot OS conversion worker",
	Long: `osmigrate drives an external conversion tool to migrate a running
system to a different distribution. It runs unattended, detects partial
failures including failed rollbacks, reconciles the tool's structured and
free-text output into a single severity-ranked verdict, and undoes its own
host-state changes when the run did not succeed.

The run command always emits exactly one JSON verdict on stdout and exits 0;
all failure signaling is inside the JSON payload.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one conversion run and print the verdict",
	Long: `Runs the full sequence: eligibility check, setup, precondition checks,
transactional install, tool execution, rollback detection, report
reconciliation and compensating cleanup.`,
	RunE: runRun,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List verdicts of previous runs on this host",
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	configPath   string
	historyLimit int
	jsonOutput   bool
)

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Optional YAML config overriding built-in defaults")
	historyCmd.Flags().StringVar(&configPath, "config", "", "Optional YAML config overriding built-in defaults")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Maximum number of runs to list")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		// The worker runs unattended; a broken override file must not leave
		// the task without a verdict.
		logger.Warn("failed to load config, using defaults", zap.Error(err))
		cfg = config.Default()
	}

	runner := infra.NewExecRunner(logger)

	var history *infra.HistoryStore
	history, err = infra.NewHistoryStore(cfg.HistoryDBPath, logger)
	if err != nil {
		logger.Warn("run history unavailable", zap.Error(err))
		history = nil
	} else {
		defer history.Close()
	}

	deps := usecase.Deps{
		Exec:       runner,
		Downloader: infra.NewHTTPDownloader(logger),
		Packages:   infra.NewYumManager(runner, cfg.YumPath, cfg.RPMPath, logger),
		Services:   infra.NewSystemdManager(runner, cfg.SystemctlPath, logger),
		Inventory:  infra.NewInsightsClient(runner, cfg.InventoryPath, logger),
		Preserver:  infra.NewBackupManager(logger),
		Host:       infra.NewHostInfo(cfg.SystemReleasePath, logger),
		Processes:  infra.NewProcessScanner(),
	}
	if history != nil {
		deps.History = history
	}

	verdict := usecase.NewRunner(cfg, deps, logger).Run(cmd.Context())

	payload, err := json.MarshalIndent(verdict, "", "    ")
	if err != nil {
		// Should not happen for a plain struct; emit a minimal verdict so the
		// exit contract still holds.
		logger.Error("failed to marshal verdict", zap.Error(err))
		payload = []byte(`{"status": "ERROR", "alert": true, "error": false, ` +
			`"message": "Failed to serialize the run verdict.", "report": "", "report_json": null}`)
	}

	fmt.Println(jsonStartMarker)
	fmt.Println(string(payload))
	fmt.Println(jsonEndMarker)

	// Exit 0 regardless of the run outcome; failure signaling lives in the
	// JSON payload.
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	history, err := infra.NewHistoryStore(cfg.HistoryDBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer history.Close()

	records, err := history.Recent(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read run history: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	for _, rec := range records {
		alert := ""
		if rec.Alert {
			alert = " [alert]"
		}
		fmt.Printf("%s  %s%s  %s\n",
			rec.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
			rec.Status, alert, rec.Message)
	}
	return nil
}

func createLogger() *zap.Logger {
	// stdout carries the verdict markers; all logging goes to stderr.
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("osmigrate %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
