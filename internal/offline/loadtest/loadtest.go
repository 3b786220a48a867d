// Package loadtest exercises the offline write path under concurrency.
//
// A run starts with the engine offline. Writers create and edit items
// concurrently while readers list days from the cache. The engine then
// comes back online and the queue is drained against an in-memory server,
// after which the server's contents are checked against what the writers
// produced.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/daycast/syncengine/internal/offline/cache"
	"github.com/daycast/syncengine/internal/offline/db"
	"github.com/daycast/syncengine/internal/offline/queue"
	"github.com/daycast/syncengine/internal/offline/remote/remotetest"
	"github.com/daycast/syncengine/internal/offline/repository"
	"github.com/daycast/syncengine/internal/offline/schema"
	offsync "github.com/daycast/syncengine/internal/offline/sync"
)

// Config holds load test parameters.
type Config struct {
	// DataDir holds the database and attachments (required)
	DataDir string

	// Writers is the number of concurrent offline writers (default: 10)
	Writers int

	// OpsPerWriter is the number of writes each writer performs (default: 20)
	OpsPerWriter int

	// Readers is the number of concurrent cache readers (default: 2)
	Readers int

	// Days spreads writes over this many owning dates (default: 3)
	Days int

	// EditEvery makes every Nth write an edit of the writer's last item (default: 3)
	EditEvery int

	// ServerLatency is added to every call on the in-memory server
	ServerLatency time.Duration

	// Logger for engine activity (default: discard)
	Logger *log.Logger
}

// DefaultConfig returns a small run suitable for a laptop.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:      dataDir,
		Writers:      10,
		OpsPerWriter: 20,
		Readers:      2,
		Days:         3,
		EditEvery:    3,
	}
}

// LatencyStats captures latency percentiles for one kind of call.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration // Median
	P95        time.Duration
	P99        time.Duration
	TotalCalls int
	Errors     int
}

// Report is the outcome of a run.
type Report struct {
	Created int
	Edited  int

	Writes *LatencyStats
	Reads  *LatencyStats

	QueuedBeforeDrain int
	Drain             offsync.Result
	DrainPasses       int
	DrainDuration     time.Duration

	ServerItems int
	Mismatches  []string
}

// Throughput returns applied operations per second during the drain.
func (r *Report) Throughput() float64 {
	if r.DrainDuration <= 0 {
		return 0
	}
	return float64(r.Drain.Applied) / r.DrainDuration.Seconds()
}

// OK reports whether the server ended up with exactly what was written.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0 && r.Drain.Remaining == 0
}

// toggle is a reachability signal the run flips by hand.
type toggle struct {
	up atomic.Bool
}

func (t *toggle) Operational() bool       { return t.up.Load() }
func (t *toggle) ReportSuccess()          {}
func (t *toggle) ReportFailure(err error) {}

// recorder collects durations from many goroutines.
type recorder struct {
	mu        sync.Mutex
	durations []time.Duration
	errors    int
}

func (r *recorder) add(d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations = append(r.durations, d)
	if err != nil {
		r.errors++
	}
}

func (r *recorder) stats() *LatencyStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := computeLatencyStats(r.durations)
	stats.Errors = r.errors
	return stats
}

// Run performs one load test.
func Run(ctx context.Context, config *Config) (*Report, error) {
	cfg := withDefaults(config)
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("loadtest requires a data directory")
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := db.Open(filepath.Join(cfg.DataDir, "loadtest.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	if err := store.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	c := cache.NewWithConfig(store, &cache.Config{RetentionDays: cfg.Days + 1, Logger: cfg.Logger})
	q := queue.NewWithConfig(store, &queue.Config{
		AttachmentDir: filepath.Join(cfg.DataDir, "pending_images"),
		Logger:        cfg.Logger,
	})
	server := remotetest.New()
	server.SetLatency(cfg.ServerLatency)

	signal := &toggle{}
	repo := repository.NewWithConfig(server, c, q, signal, &repository.Config{Logger: cfg.Logger})

	dates := make([]string, cfg.Days)
	today := time.Now()
	for i := range dates {
		dates[i] = schema.FormatDate(today.AddDate(0, 0, -i))
	}

	report := &Report{}
	expected, err := runOffline(ctx, cfg, repo, dates, report)
	if err != nil {
		return nil, err
	}
	report.QueuedBeforeDrain = q.Count(ctx)

	signal.up.Store(true)
	processor := offsync.NewWithConfig(repo.API(), q, c, &offsync.Config{Logger: cfg.Logger})
	start := time.Now()
	for report.DrainPasses < 3 {
		result, err := processor.ProcessQueue(ctx)
		if err != nil {
			return nil, fmt.Errorf("drain failed: %w", err)
		}
		report.DrainPasses++
		merge(&report.Drain, result)
		if result.Remaining == 0 || result.Applied == 0 {
			break
		}
	}
	report.DrainDuration = time.Since(start)

	var onServer []string
	for _, date := range dates {
		for _, item := range server.Items(date) {
			onServer = append(onServer, item.Content)
		}
	}
	report.ServerItems = len(onServer)
	report.Mismatches = diff(expected, onServer)

	return report, nil
}

// runOffline runs the writers and readers and returns the content every
// created item should end with.
func runOffline(ctx context.Context, cfg *Config, repo *repository.Repository, dates []string, report *Report) ([]string, error) {
	writes := &recorder{}
	reads := &recorder{}

	var mu sync.Mutex
	var expected []string

	g, gctx := errgroup.WithContext(ctx)
	var writersDone atomic.Int32

	for w := 0; w < cfg.Writers; w++ {
		g.Go(func() error {
			defer writersDone.Add(1)

			var last *schema.Item
			var final []string
			created, edited := 0, 0

			for j := 0; j < cfg.OpsPerWriter; j++ {
				if err := gctx.Err(); err != nil {
					return err
				}

				if last != nil && cfg.EditEvery > 0 && (j+1)%cfg.EditEvery == 0 {
					content := last.Content + " (edited)"
					start := time.Now()
					repo.UpdateItem(gctx, last.ID, content)
					writes.add(time.Since(start), nil)
					last.Content = content
					final[len(final)-1] = content
					edited++
					continue
				}

				content := fmt.Sprintf("writer %d note %d", w, j)
				date := dates[j%len(dates)]
				start := time.Now()
				item, err := repo.CreateItem(gctx, schema.ItemText, content, date)
				writes.add(time.Since(start), err)
				if err != nil {
					return fmt.Errorf("writer %d create %d failed: %w", w, j, err)
				}
				last = item
				final = append(final, content)
				created++
			}

			mu.Lock()
			expected = append(expected, final...)
			report.Created += created
			report.Edited += edited
			mu.Unlock()
			return nil
		})
	}

	for r := 0; r < cfg.Readers; r++ {
		g.Go(func() error {
			for i := 0; writersDone.Load() < int32(cfg.Writers); i++ {
				if err := gctx.Err(); err != nil {
					return nil
				}
				start := time.Now()
				items := repo.FetchItems(gctx, dates[i%len(dates)])
				var err error
				for _, item := range items {
					if item.ID == "" {
						err = fmt.Errorf("reader %d saw an item without an id", r)
					}
				}
				reads.add(time.Since(start), err)
				time.Sleep(time.Millisecond)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Writes = writes.stats()
	report.Reads = reads.stats()
	return expected, nil
}

func withDefaults(config *Config) *Config {
	defaults := DefaultConfig("")
	if config == nil {
		return defaults
	}
	cfg := *config
	if cfg.Writers <= 0 {
		cfg.Writers = defaults.Writers
	}
	if cfg.OpsPerWriter <= 0 {
		cfg.OpsPerWriter = defaults.OpsPerWriter
	}
	if cfg.Readers < 0 {
		cfg.Readers = 0
	}
	if cfg.Days <= 0 {
		cfg.Days = defaults.Days
	}
	if cfg.EditEvery < 0 {
		cfg.EditEvery = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	return &cfg
}

func merge(total *offsync.Result, r *offsync.Result) {
	total.Applied += r.Applied
	total.Failed += r.Failed
	total.Abandoned += r.Abandoned
	total.Skipped += r.Skipped
	total.Remapped += r.Remapped
	total.AuthHalted = r.AuthHalted
	total.NetworkHalted = r.NetworkHalted
	total.Remaining = r.Remaining
}

// diff compares two multisets of contents.
func diff(want, got []string) []string {
	counts := make(map[string]int, len(want))
	for _, s := range want {
		counts[s]++
	}
	for _, s := range got {
		counts[s]--
	}

	var out []string
	for s, n := range counts {
		switch {
		case n > 0:
			out = append(out, fmt.Sprintf("missing on server: %q", s))
		case n < 0:
			out = append(out, fmt.Sprintf("unexpected on server: %q", s))
		}
	}
	sort.Strings(out)
	return out
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	// Sort durations for percentile calculation
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(durations)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		TotalCalls: len(durations),
	}
}

// Print writes a human-readable summary of the report.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Offline writes: %d created, %d edited\n", r.Created, r.Edited)
	r.Writes.print(w, "Write latency")
	r.Reads.print(w, "Read latency")
	fmt.Fprintf(w, "Drain:\n")
	fmt.Fprintf(w, "  Queued:        %d\n", r.QueuedBeforeDrain)
	fmt.Fprintf(w, "  Result:        %s\n", r.Drain.String())
	fmt.Fprintf(w, "  Passes:        %d\n", r.DrainPasses)
	fmt.Fprintf(w, "  Duration:      %v\n", r.DrainDuration)
	fmt.Fprintf(w, "  Throughput:    %.1f ops/s\n", r.Throughput())
	fmt.Fprintf(w, "Server items:    %d\n", r.ServerItems)
	for _, m := range r.Mismatches {
		fmt.Fprintf(w, "  %s\n", m)
	}
}

func (s *LatencyStats) print(w io.Writer, title string) {
	if s == nil {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	fmt.Fprintf(w, "  Total Calls:   %d\n", s.TotalCalls)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
