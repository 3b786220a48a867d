// Command daycast is the offline-first client for the Daycast journal API.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/daycast/syncengine/internal/config"
	"github.com/daycast/syncengine/internal/logging"
)

var (
	cfg     *config.Config
	logger  *logging.Logger
	v       = viper.New()
	cfgFile string
	homeDir string

	jsonOutput bool
	verbose    bool
	offline    bool
)

var rootCmd = &cobra.Command{
	Use:   "daycast",
	Short: "Offline-first journal client",
	Long: `daycast records journal items for a day and syncs them with the Daycast API.

Writes made while the server is unreachable are stored locally and queued;
they are replayed in order once connectivity returns, either by "daycast sync"
or by a running "daycast daemon".`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		opts := config.Options{Home: homeDir, File: cfgFile}
		if cmd.CommandPath() == "daycast config init" {
			// The file it names is about to be created
			opts.File = ""
		}

		var err error
		cfg, err = config.Load(v, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		logOpts := logging.Options{Level: cfg.Log.Level, File: cfg.LogPath()}
		if verbose {
			logOpts.Console = os.Stderr
		}
		logger, err = logging.New(logOpts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to set up logging: %v\n", err)
			os.Exit(1)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "journal", Title: "Journal:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: <home>/daycast.yaml)")
	flags.StringVar(&homeDir, "home", "", "Daycast home directory (default: $DAYCAST_HOME or ~/.daycast)")
	flags.String("api-url", "", "API base URL")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&jsonOutput, "json", false, "Output JSON")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log to stderr as well as the log file")
	flags.BoolVar(&offline, "offline", false, "Do not contact the server; queue writes locally")

	_ = v.BindPFlag("api.base_url", flags.Lookup("api-url"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
}

// outputJSON writes data to stdout as indented JSON.
func outputJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}

// fatal prints an error and exits.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
