package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daycast/syncengine/internal/offline/repository"
	"github.com/daycast/syncengine/internal/offline/schema"
	"github.com/daycast/syncengine/internal/ui"
)

var generateCmd = &cobra.Command{
	Use:     "generate [date]",
	GroupID: "journal",
	Short:   "Generate posts from a day's items",
	Long: `Generate posts from a day's items. Generation runs on the server, so this
command fails while offline; queued writes for the day should be synced first.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		channels, _ := cmd.Flags().GetStringSlice("channel")
		style, _ := cmd.Flags().GetString("style")
		language, _ := cmd.Flags().GetString("language")

		a := mustOpenApp(nil)
		defer a.Close()

		gen, err := a.repo.Generate(context.Background(), schema.GenerateRequest{
			Date:             dateFlag(firstArg(args)),
			Channels:         channels,
			StyleOverride:    style,
			LanguageOverride: language,
		})
		exitOnRemoteError(err)
		printGeneration(gen)
	},
}

var regenerateCmd = &cobra.Command{
	Use:     "regenerate <generation-id>",
	GroupID: "journal",
	Short:   "Regenerate an existing generation",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		channels, _ := cmd.Flags().GetStringSlice("channel")

		a := mustOpenApp(nil)
		defer a.Close()

		gen, err := a.repo.Regenerate(context.Background(), args[0], channels)
		exitOnRemoteError(err)
		printGeneration(gen)
	},
}

var publishCmd = &cobra.Command{
	Use:     "publish <result-id>",
	GroupID: "journal",
	Short:   "Publish a generated result to the public blog",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		item, _ := cmd.Flags().GetBool("item")

		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		var post *schema.PublishedPost
		var err error
		if item {
			post, err = a.repo.PublishInputItem(ctx, args[0])
		} else {
			post, err = a.repo.PublishPost(ctx, args[0])
		}
		exitOnRemoteError(err)

		if jsonOutput {
			outputJSON(post)
			return
		}
		fmt.Println(ui.Success("Published %s", post.Slug))
	},
}

var unpublishCmd = &cobra.Command{
	Use:     "unpublish <post-id>",
	GroupID: "journal",
	Short:   "Remove a post from the public blog",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(nil)
		defer a.Close()

		exitOnRemoteError(a.repo.UnpublishPost(context.Background(), args[0]))
		if jsonOutput {
			outputJSON(map[string]string{"unpublished": args[0]})
			return
		}
		fmt.Println(ui.Success("Unpublished %s", args[0]))
	},
}

var publishStatusCmd = &cobra.Command{
	Use:     "publish-status <id...>",
	GroupID: "journal",
	Short:   "Show which results or items are published",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		items, _ := cmd.Flags().GetBool("item")

		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		status := make(map[string]string, len(args))
		if items {
			out, err := a.repo.InputPublishStatus(ctx, args)
			exitOnRemoteError(err)
			status = out
		} else {
			out, err := a.repo.PublishStatus(ctx, args)
			exitOnRemoteError(err)
			for id, post := range out {
				if post != nil {
					status[id] = *post
				}
			}
		}

		if jsonOutput {
			outputJSON(status)
			return
		}
		for _, id := range args {
			if post, ok := status[id]; ok && post != "" {
				fmt.Println(ui.KV(id, post))
			} else {
				fmt.Println(ui.KV(id, ui.Muted.Render("not published")))
			}
		}
	},
}

var postsCmd = &cobra.Command{
	Use:     "posts [slug]",
	GroupID: "journal",
	Short:   "Browse public posts",
	Long: `Browse public posts. The newest page is cached, so the list and any
cached post remain readable offline.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		channel, _ := cmd.Flags().GetString("channel")
		limit, _ := cmd.Flags().GetInt("limit")
		cursor, _ := cmd.Flags().GetString("cursor")

		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		if len(args) == 1 {
			post, err := a.repo.FetchPublicPost(ctx, args[0])
			exitOnRemoteError(err)
			if jsonOutput {
				outputJSON(post)
				return
			}
			fmt.Printf("%s  %s\n\n%s\n", ui.Section(post.Slug), ui.Muted.Render(post.Date), post.Text)
			return
		}

		list := a.repo.FetchPublicPosts(ctx, schema.PostQuery{Cursor: cursor, Limit: limit, Channel: channel})
		if jsonOutput {
			outputJSON(list)
			return
		}
		for _, p := range list.Posts {
			fmt.Printf("  %s  %s\n    %s\n", p.Date, ui.Truncate(p.Text, 64), ui.Muted.Render(p.Slug))
		}
		if list.Cursor != nil {
			fmt.Println(ui.Muted.Render("next page: --cursor " + *list.Cursor))
		}
	},
}

// exitOnRemoteError exits with a friendly message for server-only
// operations attempted offline.
func exitOnRemoteError(err error) {
	if err == nil {
		return
	}
	if repository.IsOffline(err) {
		fmt.Fprintln(os.Stderr, ui.Warning("%v", err))
		os.Exit(2)
	}
	fatal("%v", err)
}

func printGeneration(gen *schema.Generation) {
	if jsonOutput {
		outputJSON(gen)
		return
	}
	fmt.Printf("%s %s  %s\n", ui.Section("Generation"), gen.Date, ui.Muted.Render(gen.ID))
	for _, r := range gen.Results {
		fmt.Printf("\n%s %s\n%s\n", ui.Badge.Render(r.ChannelID), ui.Muted.Render(r.ID), r.Text)
	}
}

func init() {
	generateCmd.Flags().StringSlice("channel", nil, "Channels to generate for (default: active channels)")
	generateCmd.Flags().String("style", "", "Style override")
	generateCmd.Flags().String("language", "", "Language override")
	regenerateCmd.Flags().StringSlice("channel", nil, "Channels to regenerate")
	publishCmd.Flags().Bool("item", false, "Publish an input item instead of a generated result")
	publishStatusCmd.Flags().Bool("item", false, "IDs are input items")
	postsCmd.Flags().String("channel", "", "Filter by channel")
	postsCmd.Flags().Int("limit", 20, "Page size")
	postsCmd.Flags().String("cursor", "", "Page cursor from a previous listing")

	rootCmd.AddCommand(generateCmd, regenerateCmd, publishCmd, unpublishCmd, publishStatusCmd, postsCmd)
}
