package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/daycast/syncengine/internal/ui"
)

var dayCmd = &cobra.Command{
	Use:     "day",
	GroupID: "journal",
	Short:   "Browse and manage days",
}

var dayListCmd = &cobra.Command{
	Use:   "list",
	Short: "List days with content",
	Long: `List days with content, newest first.

Without --search the list comes from the server when it is reachable and from
the local cache otherwise. Search needs the server.`,
	Run: func(cmd *cobra.Command, args []string) {
		search, _ := cmd.Flags().GetString("search")

		a := mustOpenApp(nil)
		defer a.Close()

		days := a.repo.FetchDays(context.Background(), search)
		if jsonOutput {
			outputJSON(days)
			return
		}
		if len(days) == 0 {
			if search != "" && !a.repo.Operational() {
				fmt.Println(ui.Warning("Search is unavailable offline"))
			} else {
				fmt.Println(ui.Muted.Render("No days"))
			}
			return
		}
		for _, d := range days {
			fmt.Printf("  %s  %s\n", d.Date,
				ui.Muted.Render(fmt.Sprintf("%d items, %d generations", d.InputCount, d.GenerationCount)))
		}
	},
}

var dayShowCmd = &cobra.Command{
	Use:   "show [date]",
	Short: "Show a day's items and generations",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		date := dateFlag(firstArg(args))

		a := mustOpenApp(nil)
		defer a.Close()

		day := a.repo.FetchDay(context.Background(), date)
		if jsonOutput {
			outputJSON(day)
			return
		}

		fmt.Printf("%s  %s\n", ui.Section(day.Date), ui.Connectivity(a.repo.Operational()))
		printItems(day.InputItems)
		for _, gen := range day.Generations {
			fmt.Printf("\n%s %s\n", ui.Title.Render("Generation"), ui.Muted.Render(gen.ID))
			for _, r := range gen.Results {
				fmt.Printf("  %s %s\n    %s\n", ui.Badge.Render(r.ChannelID),
					ui.Truncate(r.Text, 72), ui.Muted.Render(r.ID))
			}
		}
	},
}

var dayClearCmd = &cobra.Command{
	Use:   "clear <date>",
	Short: "Remove every item of a day",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		date := dateFlag(args[0])

		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		a.repo.ClearDay(ctx, date)
		reportDay(ctx, a, date, "Cleared")
	},
}

var dayDeleteCmd = &cobra.Command{
	Use:   "delete <date>",
	Short: "Delete a day with its items and generations",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		date := dateFlag(args[0])

		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		a.repo.DeleteDay(ctx, date)
		reportDay(ctx, a, date, "Deleted")
	},
}

var dayExportCmd = &cobra.Command{
	Use:   "export [date]",
	Short: "Export a day as rendered text",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		date := dateFlag(firstArg(args))
		output, _ := cmd.Flags().GetString("output")

		a := mustOpenApp(nil)
		defer a.Close()

		export, err := a.repo.ExportDay(context.Background(), date)
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			outputJSON(export)
			return
		}
		if output == "" {
			fmt.Print(export.Content)
			return
		}
		if err := os.WriteFile(output, []byte(export.Content), 0600); err != nil {
			fatal("failed to write %s: %v", output, err)
		}
		fmt.Println(ui.Success("Exported %s to %s", date, output))
	},
}

var dayPrefetchCmd = &cobra.Command{
	Use:   "prefetch",
	Short: "Refresh the cache for recent days",
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			days = cfg.Sync.PrefetchDays
		}

		a := mustOpenApp(nil)
		defer a.Close()

		dates := recentDates(time.Now(), days)
		n := a.repo.Prefetch(context.Background(), dates)
		if jsonOutput {
			outputJSON(map[string]int{"requested": len(dates), "refreshed": n})
			return
		}
		if n < len(dates) {
			fmt.Println(ui.Warning("Refreshed %d of %d days", n, len(dates)))
			return
		}
		fmt.Println(ui.Success("Refreshed %d days", n))
	},
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func reportDay(ctx context.Context, a *app, date, verb string) {
	pending := a.repo.PendingCount(ctx)
	if jsonOutput {
		outputJSON(map[string]any{"date": date, "pending": pending})
		return
	}
	if pending > 0 {
		fmt.Println(ui.Warning("%s %s (%d pending)", verb, date, pending))
		return
	}
	fmt.Println(ui.Success("%s %s", verb, date))
}

func init() {
	dayListCmd.Flags().StringP("search", "s", "", "Search text (server only)")
	dayExportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	dayPrefetchCmd.Flags().Int("days", 0, "Number of days to refresh (default: sync.prefetch_days)")

	dayCmd.AddCommand(dayListCmd, dayShowCmd, dayClearCmd, dayDeleteCmd, dayExportCmd, dayPrefetchCmd)
	rootCmd.AddCommand(dayCmd)
}
