package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/daycast/syncengine/internal/offline/remote"
	"github.com/daycast/syncengine/internal/ui"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	GroupID: "advanced",
	Short:   "Store or remove the API token",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API token",
	Long: `Store an API token in the daycast home. The token is read from --token,
from stdin when it is not a terminal, or prompted for without echo.

A running daemon notices the new token and retries a drain that stopped on
the expired one.`,
	Run: func(cmd *cobra.Command, args []string) {
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			var err error
			token, err = readToken()
			if err != nil {
				fatal("%v", err)
			}
		}
		token = strings.TrimSpace(token)
		if token == "" {
			fatal("token cannot be empty")
		}

		tokens := remote.FileTokenSource{Path: cfg.TokenPath()}
		if err := tokens.Save(token); err != nil {
			fatal("%v", err)
		}
		fmt.Println(ui.Success("Token saved to %s", tokens.Path))

		if cfg.API.Token != "" {
			fmt.Println(ui.Warning("DAYCAST_API_TOKEN or api.token is set and takes precedence over the saved token"))
		}

		a := mustOpenApp(nil)
		defer a.Close()

		if verify, _ := cmd.Flags().GetBool("verify"); verify && a.repo.Operational() {
			// Settings need a valid token, so a successful read confirms it
			if _, err := a.repo.FetchGenerationSettings(context.Background()); err != nil {
				fmt.Println(ui.Warning("Token stored but not accepted: %v", err))
				os.Exit(2)
			}
			fmt.Println(ui.Success("Token accepted by %s", cfg.API.BaseURL))
		}
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored API token",
	Run: func(cmd *cobra.Command, args []string) {
		path := cfg.TokenPath()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fatal("failed to remove token: %v", err)
		}
		fmt.Println(ui.Success("Token removed"))
	},
}

// readToken prompts for a token on a terminal, or reads one line from a
// piped stdin.
func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "API token: ")
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return string(data), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read token from stdin: %w", err)
	}
	return line, nil
}

func init() {
	authLoginCmd.Flags().String("token", "", "Token value (prompted for when omitted)")
	authLoginCmd.Flags().Bool("verify", true, "Check the token against the server")

	authCmd.AddCommand(authLoginCmd, authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}
