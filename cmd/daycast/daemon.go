package main

import (
	"context"
	"fmt"
	"os"
	gosync "sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/daycast/syncengine/internal/offline/daemon"
	"github.com/daycast/syncengine/internal/offline/dashboard"
	"github.com/daycast/syncengine/internal/offline/reachability"
	"github.com/daycast/syncengine/internal/offline/schema"
	offsync "github.com/daycast/syncengine/internal/offline/sync"
	"github.com/daycast/syncengine/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the background sync daemon.

The daemon watches the network interfaces and the server's health, and drains
the pending operation queue every time connectivity returns. It also applies
the cache retention window hourly and, when an inbox directory is configured,
imports files dropped into it as journal items for today.

Example usage:
  daycast daemon                        # Drain on reconnect
  daycast daemon --dashboard            # Also serve the live dashboard
  daycast daemon --inbox ~/Shared       # Import files shared into ~/Shared`,
	Run: func(cmd *cobra.Command, args []string) {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		port, _ := cmd.Flags().GetInt("port")
		inbox, _ := cmd.Flags().GetString("inbox")
		if inbox == "" {
			inbox = cfg.Inbox.Dir
		}

		listeners := &fanoutListener{}
		listeners.Add(logListener{logger: logger.WithPrefix("sync")})

		a := mustOpenApp(listeners)
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		watchNetwork(ctx, a)

		if withDashboard {
			server, handler, err := startDashboard(ctx, a, port)
			if err != nil {
				fatal("failed to start dashboard: %v", err)
			}
			defer func() { _ = server.Stop() }()
			listeners.Add(handler)
			fmt.Printf("Dashboard: http://%s\n", server.GetAddr())
		}

		d, err := daemon.NewWithConfig(a.repo, a.processor, a.cache, &daemon.Config{
			PollInterval:  cfg.Sync.PollInterval,
			RetentionDays: cfg.Cache.RetentionDays,
			PrefetchDays:  cfg.Sync.PrefetchDays,
			InboxDir:      inbox,
			Logger:        logger.WithPrefix("daemon"),
		})
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("%s  %s\n", ui.Section("daycast daemon"), ui.Connectivity(a.repo.Operational()))
		fmt.Println(ui.KV("Pending", a.repo.PendingCount(ctx)))
		if inbox != "" {
			fmt.Println(ui.KV("Inbox", inbox))
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		go watchToken(ctx, a, d, cfg.Sync.PollInterval)

		if err := d.Start(ctx); err != nil {
			fatal("%v", err)
		}
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Serve the live connectivity and queue dashboard",
	Long: `Serve a WebSocket dashboard showing connectivity and the pending queue.

This does not drain the queue; run "daycast daemon --dashboard" for that.

WebSocket messages include:
- reachability: network and server reachability changed
- queue: pending operation count changed
- stats: drain totals

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")

		a := mustOpenApp(nil)
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		watchNetwork(ctx, a)

		server, _, err := startDashboard(ctx, a, port)
		if err != nil {
			fatal("failed to start dashboard: %v", err)
		}

		addr := server.GetAddr()
		fmt.Printf("Dashboard server started on http://%s\n", addr)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
		fmt.Printf("Health check: http://%s/health\n", addr)
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fatal("error during shutdown: %v", err)
		}
		fmt.Println("Dashboard server stopped")
	},
}

// watchNetwork feeds interface changes into the monitor until ctx ends.
func watchNetwork(ctx context.Context, a *app) {
	if offline {
		return
	}
	observer := reachability.NewInterfaceObserver(a.monitor, cfg.Reachability.InterfacePoll, logger.WithPrefix("network"))
	go observer.Run(ctx)
}

// watchToken retries the drain once the token file changes after the
// server rejected the previous token.
func watchToken(ctx context.Context, a *app, d *daemon.Daemon, interval time.Duration) {
	last := modTime(a.tokens.Path)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mt := modTime(a.tokens.Path)
			if mt.Equal(last) {
				continue
			}
			last = mt
			if !a.processor.AuthExpired() {
				continue
			}
			logger.Info("Token changed, retrying queue")
			a.processor.ResetAuthExpired()
			if !a.repo.Operational() {
				continue
			}
			if _, err := d.Drain(ctx); err != nil {
				logger.Debug("Drain after token change failed", "error", err)
			}
		}
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// startDashboard starts the dashboard server and keeps it fed with
// reachability and queue updates until ctx ends.
func startDashboard(ctx context.Context, a *app, port int) (*dashboard.Server, *dashboard.Handler, error) {
	if port <= 0 {
		port = cfg.Dashboard.Port
	}
	server := dashboard.NewServer(&dashboard.Config{
		Host:   cfg.Dashboard.Host,
		Port:   port,
		Logger: logger.WithPrefix("dashboard"),
	})
	handler := dashboard.NewHandler(server, a.queue, logger.WithPrefix("dashboard"))

	if err := server.Start(); err != nil {
		return nil, nil, err
	}

	states, unsubscribe := a.monitor.Subscribe()
	handler.OnReachability(a.monitor.State())
	go func() {
		defer unsubscribe()
		handler.WatchReachability(ctx, states)
	}()
	go handler.PollQueue(ctx, time.Second)

	return server, handler, nil
}

// fanoutListener forwards drain events to every registered listener.
type fanoutListener struct {
	mu        gosync.RWMutex
	listeners []offsync.Listener
}

func (f *fanoutListener) Add(l offsync.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

func (f *fanoutListener) each(fn func(offsync.Listener)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, l := range f.listeners {
		fn(l)
	}
}

func (f *fanoutListener) OperationAbandoned(op schema.PendingOperation, err error) {
	f.each(func(l offsync.Listener) { l.OperationAbandoned(op, err) })
}

func (f *fanoutListener) AuthExpired() {
	f.each(func(l offsync.Listener) { l.AuthExpired() })
}

func (f *fanoutListener) DrainComplete(result offsync.Result) {
	f.each(func(l offsync.Listener) { l.DrainComplete(result) })
}

// logListener logs drain events that need the user's attention.
type logListener struct {
	logger *log.Logger
}

func (l logListener) OperationAbandoned(op schema.PendingOperation, err error) {
	l.logger.Error("Abandoned operation", "kind", op.Kind, "id", op.EntityID, "date", op.Date, "error", err)
}

func (l logListener) AuthExpired() {
	l.logger.Error("Server rejected the token; run \"daycast auth login\"")
}

func (l logListener) DrainComplete(offsync.Result) {}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Serve the live dashboard while running")
	daemonCmd.Flags().String("inbox", "", "Directory to import shared files from (default: inbox.dir)")
	for _, c := range []*cobra.Command{daemonCmd, dashboardCmd} {
		c.Flags().IntP("port", "p", 0, "Dashboard port (default: dashboard.port)")
	}

	rootCmd.AddCommand(daemonCmd, dashboardCmd)
}
