package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daycast/syncengine/internal/offline/schema"
	"github.com/daycast/syncengine/internal/ui"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	GroupID: "journal",
	Short:   "Show and change channel and generation settings",
}

var settingsChannelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List channel settings",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(nil)
		defer a.Close()

		settings := a.repo.FetchChannelSettings(context.Background())
		if jsonOutput {
			outputJSON(settings)
			return
		}
		for _, s := range settings {
			state := ui.Muted.Render("inactive")
			if s.IsActive {
				state = ui.SuccessStyle.Render("active")
			}
			fmt.Printf("  %s %s  %s\n", ui.Label.Render(s.ChannelID), state,
				ui.Muted.Render(fmt.Sprintf("%s / %s / %s", s.DefaultStyle, s.DefaultLanguage, s.DefaultLength)))
		}
	},
}

var settingsChannelCmd = &cobra.Command{
	Use:   "channel <channel-id>",
	Short: "Change one channel's settings",
	Long: `Change one channel's settings. The full settings list is saved; while
offline it is cached and the save is queued.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		settings := a.repo.FetchChannelSettings(ctx)
		idx := -1
		for i := range settings {
			if settings[i].ChannelID == args[0] {
				idx = i
				break
			}
		}
		if idx < 0 {
			settings = append(settings, schema.ChannelSetting{ChannelID: args[0]})
			idx = len(settings) - 1
		}

		s := &settings[idx]
		if cmd.Flags().Changed("active") {
			s.IsActive, _ = cmd.Flags().GetBool("active")
		}
		if cmd.Flags().Changed("style") {
			s.DefaultStyle, _ = cmd.Flags().GetString("style")
		}
		if cmd.Flags().Changed("language") {
			s.DefaultLanguage, _ = cmd.Flags().GetString("language")
		}
		if cmd.Flags().Changed("length") {
			s.DefaultLength, _ = cmd.Flags().GetString("length")
		}

		a.repo.SaveChannelSettings(ctx, settings)
		if jsonOutput {
			outputJSON(settings[idx])
			return
		}
		if a.queue.HasPending(ctx, schema.ChannelSettingsEntityID) {
			fmt.Println(ui.Warning("Saved %s locally; queued until the server is reachable", args[0]))
			return
		}
		fmt.Println(ui.Success("Saved %s", args[0]))
	},
}

var settingsGenerationCmd = &cobra.Command{
	Use:   "generation",
	Short: "Show or change generation settings",
	Long: `Show or change account-wide generation settings. These live on the server
only and are unavailable offline.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		settings, err := a.repo.FetchGenerationSettings(ctx)
		exitOnRemoteError(err)

		changed := false
		for flag, field := range map[string]*string{
			"style":        &settings.DefaultStyle,
			"language":     &settings.DefaultLanguage,
			"length":       &settings.DefaultLength,
			"instructions": &settings.Instructions,
		} {
			if cmd.Flags().Changed(flag) {
				*field, _ = cmd.Flags().GetString(flag)
				changed = true
			}
		}
		if changed {
			settings, err = a.repo.SaveGenerationSettings(ctx, *settings)
			exitOnRemoteError(err)
		}

		if jsonOutput {
			outputJSON(settings)
			return
		}
		fmt.Println(ui.KV("Style", settings.DefaultStyle))
		fmt.Println(ui.KV("Language", settings.DefaultLanguage))
		fmt.Println(ui.KV("Length", settings.DefaultLength))
		if settings.Instructions != "" {
			fmt.Println(ui.KV("Instructions", ui.Truncate(settings.Instructions, 60)))
		}
	},
}

func init() {
	settingsChannelCmd.Flags().Bool("active", false, "Enable or disable the channel")
	for _, c := range []*cobra.Command{settingsChannelCmd, settingsGenerationCmd} {
		c.Flags().String("style", "", "Default style")
		c.Flags().String("language", "", "Default language")
		c.Flags().String("length", "", "Default length")
	}
	settingsGenerationCmd.Flags().String("instructions", "", "Custom generation instructions")

	settingsCmd.AddCommand(settingsChannelsCmd, settingsChannelCmd, settingsGenerationCmd)
	rootCmd.AddCommand(settingsCmd)
}
