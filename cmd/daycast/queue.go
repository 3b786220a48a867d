package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daycast/syncengine/internal/offline/migrate"
	"github.com/daycast/syncengine/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "Inspect and manage the pending operation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued operations, oldest first",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(nil)
		defer a.Close()

		ops, err := a.queue.Pending(context.Background())
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			outputJSON(ops)
			return
		}
		if len(ops) == 0 {
			fmt.Println(ui.Success("Queue is empty"))
			return
		}
		for _, op := range ops {
			line := fmt.Sprintf("  %4d %s %s", op.Seq, ui.Badge.Render(string(op.Kind)), op.EntityID)
			if op.Date != "" {
				line += " " + ui.Muted.Render(op.Date)
			}
			if op.RetryCount > 0 {
				line += " " + ui.WarningStyle.Render(fmt.Sprintf("retries=%d", op.RetryCount))
			}
			fmt.Println(line)
			if op.LastError != nil && *op.LastError != "" {
				fmt.Println("       " + ui.Muted.Render(ui.Truncate(*op.LastError, 70)))
			}
		}
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every queued operation",
	Long: `Discard every queued operation and its pending image files. Local items
that were never synced stay in the cache until they age out.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		if !force {
			fmt.Printf("This discards %d queued operations. Re-run with --force to confirm.\n", a.queue.Count(ctx))
			return
		}
		n, err := a.queue.Clear(ctx)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(ui.Success("Discarded %d operations", n))
	},
}

var queueExportCmd = &cobra.Command{
	Use:   "export <file.jsonl>",
	Short: "Write the queue to a JSONL file",
	Long: `Write the queue to a JSONL file that another device can import. Pending
image bytes are embedded in the file.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		backup, _ := cmd.Flags().GetBool("backup")

		a := mustOpenApp(nil)
		defer a.Close()

		result, err := migrate.Export(context.Background(), a.queue, migrate.ExportOptions{
			ToJSONL: args[0],
			Backup:  backup,
		})
		if err != nil {
			fatal("%v", err)
		}
		printMigrateResult(result, "Exported")
	},
}

var queueImportCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Append operations from a JSONL export",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a := mustOpenApp(nil)
		defer a.Close()

		result, err := migrate.Import(context.Background(), a.queue, migrate.ImportOptions{
			FromJSONL: args[0],
			DryRun:    dryRun,
		})
		if err != nil {
			fatal("%v", err)
		}
		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		printMigrateResult(result, verb)
	},
}

func printMigrateResult(result *migrate.Result, verb string) {
	if jsonOutput {
		outputJSON(result)
		return
	}
	fmt.Println(ui.Success("%s %d operations (%d with images)", verb, result.Operations, result.Attachments))
	if result.BackupCreated != "" {
		fmt.Println(ui.KV("Backup", result.BackupCreated))
	}
	if result.Skipped > 0 {
		fmt.Println(ui.Warning("Skipped %d:\n  %s", result.Skipped, strings.Join(result.Errors, "\n  ")))
	}
}

func init() {
	queueClearCmd.Flags().Bool("force", false, "Discard without asking")
	queueExportCmd.Flags().Bool("backup", false, "Keep a copy of an existing file")
	queueImportCmd.Flags().Bool("dry-run", false, "Validate without enqueueing")

	queueCmd.AddCommand(queueListCmd, queueClearCmd, queueExportCmd, queueImportCmd)
	rootCmd.AddCommand(queueCmd)
}
