package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/daycast/syncengine/internal/offline/schema"
	offsync "github.com/daycast/syncengine/internal/offline/sync"
	"github.com/daycast/syncengine/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Replay queued operations against the server",
	Long: `Replay queued operations against the server in the order they were made.

Operations that fail are retried on the next sync; after sync.max_retries
failures an operation is abandoned and reported. The drain stops early when
the server becomes unreachable or rejects the token.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(&consoleListener{})
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if !a.repo.Operational() {
			fmt.Fprintln(os.Stderr, ui.Warning("Offline; %d operations remain queued", a.repo.PendingCount(ctx)))
			os.Exit(2)
		}

		result, err := a.processor.ProcessQueue(ctx)
		if err != nil {
			if errors.Is(err, offsync.ErrBusy) {
				fmt.Println(ui.Warning("A sync is already running"))
				return
			}
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(result)
			return
		}
		switch {
		case result.AuthHalted:
			fmt.Println(ui.Error("Sync stopped: the server rejected the token. Run \"daycast auth login\"."))
		case result.NetworkHalted:
			fmt.Println(ui.Warning("Sync stopped: server unreachable"))
		case result.Remaining == 0:
			fmt.Println(ui.Success("Synced %d operations", result.Applied))
		default:
			fmt.Println(ui.Warning("Synced %d operations, %d remain", result.Applied, result.Remaining))
		}
		fmt.Println(ui.Muted.Render(result.String()))
		if result.Halted() {
			os.Exit(2)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show connectivity, queue and cache status",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(nil)
		defer a.Close()

		ctx := context.Background()
		if a.monitor.HasNetwork() {
			probeCtx, cancel := context.WithTimeout(ctx, cfg.Reachability.ProbeTimeout)
			if err := a.client.Health(probeCtx); err != nil {
				a.monitor.ReportFailure(err)
			} else {
				a.monitor.ReportSuccess()
			}
			cancel()
		}

		ops, err := a.queue.Pending(ctx)
		if err != nil {
			fatal("%v", err)
		}
		items, _ := a.store.CountItems(ctx)
		token, _ := a.tokens.Token()
		state := a.monitor.State()

		status := struct {
			Network     bool   `json:"network"`
			Server      bool   `json:"server_reachable"`
			Operational bool   `json:"operational"`
			Pending     int    `json:"pending"`
			Oldest      string `json:"oldest,omitempty"`
			CachedItems int    `json:"cached_items"`
			Token       bool   `json:"token"`
			DataDir     string `json:"data_dir"`
			API         string `json:"api"`
		}{
			Network:     state.HasNetwork,
			Server:      state.ServerReachable,
			Operational: state.Operational(),
			Pending:     len(ops),
			CachedItems: items,
			Token:       token != "" || cfg.API.Token != "",
			DataDir:     cfg.DataDir,
			API:         cfg.API.BaseURL,
		}
		if len(ops) > 0 {
			status.Oldest = ops[0].CreatedAt
		}

		if jsonOutput {
			outputJSON(status)
			return
		}
		fmt.Println(ui.Section("daycast") + "  " + ui.Connectivity(status.Operational))
		fmt.Println(ui.KV("API", status.API))
		fmt.Println(ui.KV("Network", yesNo(status.Network)))
		fmt.Println(ui.KV("Server", yesNo(status.Server)))
		fmt.Println(ui.KV("Token", yesNo(status.Token)))
		fmt.Println(ui.KV("Pending", status.Pending))
		if status.Oldest != "" {
			fmt.Println(ui.KV("Oldest", age(status.Oldest)))
		}
		fmt.Println(ui.KV("Cached items", status.CachedItems))
		fmt.Println(ui.KV("Data", status.DataDir))
	},
}

// consoleListener prints drain events that need the user's attention.
type consoleListener struct{}

func (consoleListener) OperationAbandoned(op schema.PendingOperation, err error) {
	fmt.Fprintln(os.Stderr, ui.Error("Gave up on %s %s (%s) after %d attempts: %v",
		op.Kind, op.EntityID, op.Date, op.RetryCount+1, err))
}

func (consoleListener) AuthExpired() {}

func (consoleListener) DrainComplete(offsync.Result) {}

func yesNo(b bool) string {
	if b {
		return ui.SuccessStyle.Render("yes")
	}
	return ui.WarningStyle.Render("no")
}

// age renders a queue timestamp with how long ago it was.
func age(ts string) string {
	t, ok := schema.ParseTimestamp(ts)
	if !ok {
		return ts
	}
	return fmt.Sprintf("%s (%s ago)", ts, time.Since(t).Truncate(time.Second))
}
