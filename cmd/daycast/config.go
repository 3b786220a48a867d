package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/daycast/syncengine/internal/config"
	"github.com/daycast/syncengine/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Create and inspect the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective settings to the config file",
	Long: `Write the effective settings (defaults, environment and flags) to the config
file so they can be edited. Tokens are never written to the config file; use
"daycast auth login".`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path := configPath()
		if err := config.WriteFile(path, *cfg, force); err != nil {
			fatal("%v", err)
		}
		fmt.Println(ui.Success("Wrote %s", path))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Run: func(cmd *cobra.Command, args []string) {
		shown := *cfg
		if shown.API.Token != "" {
			shown.API.Token = "********"
		}

		if jsonOutput {
			outputJSON(shown)
			return
		}
		data, err := yaml.Marshal(shown)
		if err != nil {
			fatal("failed to marshal config: %v", err)
		}
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Println(ui.Muted.Render("# " + used))
		}
		_, _ = os.Stdout.Write(data)
	},
}

// configPath is the explicit --config file, or the default one in the home.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home := homeDir
	if home == "" {
		home = config.Home()
	}
	return filepath.Join(home, config.FileName)
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
