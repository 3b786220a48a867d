package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daycast/syncengine/internal/offline/schema"
	"github.com/daycast/syncengine/internal/ui"
)

var itemCmd = &cobra.Command{
	Use:     "item",
	GroupID: "journal",
	Short:   "Add, edit and remove journal items",
}

var itemAddCmd = &cobra.Command{
	Use:   "add <content...>",
	Short: "Add a text or URL item to a day",
	Long: `Add a text or URL item to a day.

When the server is unreachable the item is stored locally with a temporary
ID and the create is queued.

Examples:
  daycast item add "Walked to the harbour"
  daycast item add --type url https://example.com/article
  daycast item add --date yesterday "Forgot to note this"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		typ, _ := cmd.Flags().GetString("type")
		if schema.ItemType(typ) == schema.ItemImage {
			fatal("use \"daycast item upload\" for images")
		}
		dateValue, _ := cmd.Flags().GetString("date")
		date := dateFlag(dateValue)

		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		item, err := a.repo.CreateItem(ctx, schema.ItemType(typ), strings.Join(args, " "), date)
		if err != nil {
			fatal("%v", err)
		}
		reportWrite(ctx, a, *item, "Added")
	},
}

var itemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the items of a day",
	Run: func(cmd *cobra.Command, args []string) {
		dateValue, _ := cmd.Flags().GetString("date")
		date := dateFlag(dateValue)

		a := mustOpenApp(nil)
		defer a.Close()

		items := a.repo.FetchItems(context.Background(), date)
		if jsonOutput {
			outputJSON(items)
			return
		}

		fmt.Printf("%s  %s\n", ui.Section(date), ui.Connectivity(a.repo.Operational()))
		printItems(items)
	},
}

var itemEditCmd = &cobra.Command{
	Use:   "edit <id> <content...>",
	Short: "Replace an item's content",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		id := args[0]
		a.repo.UpdateItem(ctx, id, strings.Join(args[1:], " "))
		reportID(ctx, a, id, "Edited")
	},
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an item",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		a.repo.DeleteItem(ctx, args[0])
		reportID(ctx, a, args[0], "Deleted")
	},
}

var itemImportanceCmd = &cobra.Command{
	Use:   "importance <id> <1-5|none>",
	Short: "Set or clear an item's importance",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		importance, err := parseImportance(args[1])
		if err != nil {
			fatal("%v", err)
		}

		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		if err := a.repo.UpdateItemImportance(ctx, args[0], importance); err != nil {
			fatal("%v", err)
		}
		reportID(ctx, a, args[0], "Updated importance of")
	},
}

var itemIncludeCmd = &cobra.Command{
	Use:   "include <id> <true|false>",
	Short: "Include or exclude an item from generation",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		include, err := strconv.ParseBool(args[1])
		if err != nil {
			fatal("invalid value %q (use true or false)", args[1])
		}

		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		a.repo.UpdateItemIncludeInGeneration(ctx, args[0], include)
		reportID(ctx, a, args[0], "Updated")
	},
}

var itemUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an image item",
	Long: `Upload an image item.

When the server is unreachable the image bytes are kept in the pending
upload directory and a placeholder item is shown until the upload lands.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dateValue, _ := cmd.Flags().GetString("date")
		date := dateFlag(dateValue)

		// #nosec G304 - path supplied by the user
		data, err := os.ReadFile(args[0])
		if err != nil {
			fatal("failed to read %s: %v", args[0], err)
		}

		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		item, err := a.repo.UploadImage(ctx, data, date, filepath.Base(args[0]))
		if err != nil {
			fatal("%v", err)
		}
		reportWrite(ctx, a, *item, "Uploaded")
	},
}

// parseImportance accepts 1-5, or "none" to clear.
func parseImportance(s string) (*int, error) {
	if strings.EqualFold(s, "none") {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 5 {
		return nil, fmt.Errorf("importance must be 1-5 or none (got %q)", s)
	}
	return &n, nil
}

// reportWrite prints the outcome of a create.
func reportWrite(ctx context.Context, a *app, item schema.Item, verb string) {
	if jsonOutput {
		outputJSON(item)
		return
	}
	if item.IsLocal {
		fmt.Println(ui.Warning("%s %s locally (%d pending)", verb, item.ID, a.repo.PendingCount(ctx)))
		return
	}
	fmt.Println(ui.Success("%s %s", verb, item.ID))
}

// reportID prints the outcome of a write to an existing item.
func reportID(ctx context.Context, a *app, id, verb string) {
	pending := a.repo.PendingCount(ctx)
	if jsonOutput {
		outputJSON(map[string]any{"id": id, "pending": pending})
		return
	}
	if a.queue.HasPending(ctx, id) {
		fmt.Println(ui.Warning("%s %s; queued until the server is reachable (%d pending)", verb, id, pending))
		return
	}
	fmt.Println(ui.Success("%s %s", verb, id))
}

// printItems renders items oldest first.
func printItems(items []schema.Item) {
	if len(items) == 0 {
		fmt.Println(ui.Muted.Render("  no items"))
		return
	}
	for _, item := range items {
		marker := ""
		if item.IsLocal {
			marker = " " + ui.WarningStyle.Render("(unsynced)")
		}
		if item.Importance != nil && *item.Importance > 0 {
			marker += " " + ui.Muted.Render(strings.Repeat("*", *item.Importance))
		}
		if !item.IncludeInGeneration {
			marker += " " + ui.Muted.Render("(excluded)")
		}
		fmt.Printf("  %s %s%s\n    %s\n",
			ui.Badge.Render(string(item.Type)), ui.Truncate(item.Content, 72), marker, ui.Muted.Render(item.ID))
	}
}

func init() {
	itemAddCmd.Flags().StringP("type", "t", string(schema.ItemText), "Item type: text or url")
	for _, c := range []*cobra.Command{itemAddCmd, itemListCmd, itemUploadCmd} {
		c.Flags().StringP("date", "d", "", "Day the item belongs to (default: today)")
	}

	itemCmd.AddCommand(itemAddCmd, itemListCmd, itemEditCmd, itemDeleteCmd,
		itemImportanceCmd, itemIncludeCmd, itemUploadCmd)
	rootCmd.AddCommand(itemCmd)
}
