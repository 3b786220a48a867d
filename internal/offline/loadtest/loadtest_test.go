package loadtest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

// TestRun_Small verifies that every offline write reaches the server.
func TestRun_Small(t *testing.T) {
	report, err := Run(context.Background(), &Config{
		DataDir:      t.TempDir(),
		Writers:      4,
		OpsPerWriter: 6,
		Readers:      1,
		Days:         2,
		EditEvery:    3,
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	// Per writer: creates at 0,1,3,4 and edits at 2,5
	if report.Created != 16 || report.Edited != 8 {
		t.Errorf("Created=%d Edited=%d, want 16 and 8", report.Created, report.Edited)
	}
	if report.QueuedBeforeDrain != 24 {
		t.Errorf("QueuedBeforeDrain = %d, want 24", report.QueuedBeforeDrain)
	}
	if report.Drain.Applied != 24 || report.Drain.Remapped != 16 {
		t.Errorf("Drain = %+v, want 24 applied and 16 remapped", report.Drain)
	}
	if report.ServerItems != 16 {
		t.Errorf("ServerItems = %d, want 16", report.ServerItems)
	}
	if !report.OK() {
		t.Errorf("Run should be clean, mismatches: %v", report.Mismatches)
	}
	if report.Writes.TotalCalls != 24 || report.Writes.Errors != 0 {
		t.Errorf("Writes = %+v", report.Writes)
	}
	if report.Reads.Errors != 0 {
		t.Errorf("Reads saw %d errors", report.Reads.Errors)
	}
}

// TestRun_NoEdits checks a create-only run with no readers.
func TestRun_NoEdits(t *testing.T) {
	report, err := Run(context.Background(), &Config{
		DataDir:      t.TempDir(),
		Writers:      3,
		OpsPerWriter: 5,
		Readers:      0,
		EditEvery:    0,
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Created != 15 || report.Edited != 0 {
		t.Errorf("Created=%d Edited=%d, want 15 and 0", report.Created, report.Edited)
	}
	if report.Reads.TotalCalls != 0 {
		t.Errorf("Reads.TotalCalls = %d, want 0", report.Reads.TotalCalls)
	}
	if !report.OK() {
		t.Errorf("Run should be clean, mismatches: %v", report.Mismatches)
	}
}

func TestRun_RequiresDataDir(t *testing.T) {
	if _, err := Run(context.Background(), &Config{Writers: 1}); err == nil {
		t.Error("Run() without a data directory should fail")
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, &Config{DataDir: t.TempDir(), Writers: 2, OpsPerWriter: 2}); err == nil {
		t.Error("Run() with a cancelled context should fail")
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	stats := computeLatencyStats(durations)

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"min", stats.Min, time.Millisecond},
		{"max", stats.Max, 100 * time.Millisecond},
		{"p50", stats.P50, 51 * time.Millisecond},
		{"p95", stats.P95, 96 * time.Millisecond},
		{"p99", stats.P99, 100 * time.Millisecond},
		{"mean", stats.Mean, 50500 * time.Microsecond},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if stats.TotalCalls != 100 {
		t.Errorf("TotalCalls = %d, want 100", stats.TotalCalls)
	}

	if empty := computeLatencyStats(nil); empty.TotalCalls != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		want []string
		got  []string
		out  int
	}{
		{"equal", []string{"a", "b"}, []string{"b", "a"}, 0},
		{"missing", []string{"a", "b"}, []string{"a"}, 1},
		{"unexpected", []string{"a"}, []string{"a", "c"}, 1},
		{"duplicate on server", []string{"a"}, []string{"a", "a"}, 1},
		{"both", []string{"a", "b"}, []string{"c"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := diff(tt.want, tt.got); len(got) != tt.out {
				t.Errorf("diff() = %v, want %d entries", got, tt.out)
			}
		})
	}
}

func TestReportPrint(t *testing.T) {
	report, err := Run(context.Background(), &Config{DataDir: t.TempDir(), Writers: 2, OpsPerWriter: 3})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	var buf bytes.Buffer
	report.Print(&buf)
	out := buf.String()
	for _, want := range []string{"Offline writes:", "Write latency:", "Throughput:", "Server items:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Print() output missing %q:\n%s", want, out)
		}
	}
}
