package main

import (
	"errors"
	"testing"

	"github.com/daycast/syncengine/internal/offline/schema"
	offsync "github.com/daycast/syncengine/internal/offline/sync"
)

func TestParseImportance(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantNil bool
		wantErr bool
	}{
		{input: "1", want: 1},
		{input: "5", want: 5},
		{input: "none", wantNil: true},
		{input: "NONE", wantNil: true},
		{input: "0", wantErr: true},
		{input: "6", wantErr: true},
		{input: "high", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseImportance(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseImportance(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("parseImportance(%q) = %d, want nil", tt.input, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("parseImportance(%q) = %v, want %d", tt.input, got, tt.want)
			}
		})
	}
}

type recordingListener struct {
	abandoned []string
	expired   int
	drains    []offsync.Result
}

func (r *recordingListener) OperationAbandoned(op schema.PendingOperation, err error) {
	r.abandoned = append(r.abandoned, op.EntityID)
}

func (r *recordingListener) AuthExpired() {
	r.expired++
}

func (r *recordingListener) DrainComplete(result offsync.Result) {
	r.drains = append(r.drains, result)
}

func TestFanoutListener(t *testing.T) {
	first := &recordingListener{}
	second := &recordingListener{}

	var f fanoutListener
	f.Add(first)
	f.OperationAbandoned(schema.PendingOperation{EntityID: "item-1"}, errors.New("boom"))

	f.Add(second)
	f.AuthExpired()
	f.DrainComplete(offsync.Result{Applied: 2})

	if len(first.abandoned) != 1 || first.abandoned[0] != "item-1" {
		t.Errorf("first.abandoned = %v, want [item-1]", first.abandoned)
	}
	if len(second.abandoned) != 0 {
		t.Errorf("listener added later should not see earlier events, got %v", second.abandoned)
	}
	for name, l := range map[string]*recordingListener{"first": first, "second": second} {
		if l.expired != 1 {
			t.Errorf("%s.expired = %d, want 1", name, l.expired)
		}
		if len(l.drains) != 1 || l.drains[0].Applied != 2 {
			t.Errorf("%s.drains = %+v", name, l.drains)
		}
	}
}

func TestFirstArg(t *testing.T) {
	if got := firstArg(nil); got != "" {
		t.Errorf("firstArg(nil) = %q", got)
	}
	if got := firstArg([]string{"2025-01-10", "x"}); got != "2025-01-10" {
		t.Errorf("firstArg() = %q", got)
	}
}
