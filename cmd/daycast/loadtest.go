package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/daycast/syncengine/internal/offline/loadtest"
	"github.com/daycast/syncengine/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Exercise the offline engine under concurrent writes",
	Long: `Exercise the offline engine against an in-memory server.

Concurrent writers create and edit items while the server is unreachable and
readers read the cache. The server then comes back, the queue is drained and
the server's content is compared with what was written. Nothing is sent to
the configured API.

Examples:
  # Default run (10 writers x 20 writes)
  daycast loadtest

  # Heavier run with simulated server latency
  daycast loadtest --writers 50 --ops 40 --latency 5ms

  # Output the report as JSON
  daycast loadtest --json
`,
	Run:     runLoadtest,
	GroupID: "advanced",
}

func init() {
	loadtestCmd.Flags().Int("writers", 10, "Number of concurrent offline writers")
	loadtestCmd.Flags().Int("ops", 20, "Writes per writer")
	loadtestCmd.Flags().Int("readers", 2, "Number of concurrent cache readers")
	loadtestCmd.Flags().Int("days", 3, "Number of days writes are spread over")
	loadtestCmd.Flags().Int("edit-every", 3, "Make every Nth write an edit (0 disables edits)")
	loadtestCmd.Flags().Duration("latency", 0, "Latency added to each server call")
	loadtestCmd.Flags().Bool("keep", false, "Keep the scratch database")
	rootCmd.AddCommand(loadtestCmd)
}

func runLoadtest(cmd *cobra.Command, args []string) {
	writers, _ := cmd.Flags().GetInt("writers")
	ops, _ := cmd.Flags().GetInt("ops")
	readers, _ := cmd.Flags().GetInt("readers")
	days, _ := cmd.Flags().GetInt("days")
	editEvery, _ := cmd.Flags().GetInt("edit-every")
	latency, _ := cmd.Flags().GetDuration("latency")
	keep, _ := cmd.Flags().GetBool("keep")

	// Validate flags
	if writers <= 0 {
		fatal("--writers must be positive")
	}
	if ops <= 0 {
		fatal("--ops must be positive")
	}
	if readers < 0 || days <= 0 || editEvery < 0 {
		fatal("--readers and --edit-every must not be negative and --days must be positive")
	}

	dir, err := os.MkdirTemp("", "daycast-loadtest-")
	if err != nil {
		fatal("failed to create scratch directory: %v", err)
	}
	if !keep {
		defer func() { _ = os.RemoveAll(dir) }()
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	report, err := loadtest.Run(ctx, &loadtest.Config{
		DataDir:       dir,
		Writers:       writers,
		OpsPerWriter:  ops,
		Readers:       readers,
		Days:          days,
		EditEvery:     editEvery,
		ServerLatency: latency,
		Logger:        logger.WithPrefix("loadtest"),
	})
	if err != nil {
		fatal("load test failed: %v", err)
	}

	if jsonOutput {
		outputJSON(report)
	} else {
		fmt.Println(ui.Section("Load test"))
		report.Print(os.Stdout)
		fmt.Println(ui.KV("Elapsed", time.Since(start).Round(time.Millisecond)))
		if keep {
			fmt.Println(ui.KV("Database", dir))
		}
		if report.OK() {
			fmt.Println(ui.Success("Server content matches every offline write"))
		}
	}

	if !report.OK() {
		fmt.Fprintln(os.Stderr, ui.Error("%d mismatches between offline writes and server content", len(report.Mismatches)))
		os.Exit(1)
	}
}
