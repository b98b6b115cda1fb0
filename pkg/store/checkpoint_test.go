package store

import (
	"path/filepath"
	"testing"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

func openTest(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckpoint(t *testing.T) {
	s := openTest(t)

	if _, ok, err := s.LoadCheckpoint("tick-1"); ok || err != nil {
		t.Fatalf("LoadCheckpoint() on empty store = %v, %v", ok, err)
	}
	if err := s.SaveCheckpoint("tick-1", Checkpoint{Token: "CAE=", Timestamp: 100}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveCheckpoint("tick-1", Checkpoint{Token: "CAEQAQ==", Timestamp: 200}); err != nil {
		t.Fatal(err)
	}
	cp, ok, err := s.LoadCheckpoint("tick-1")
	if err != nil || !ok {
		t.Fatalf("LoadCheckpoint() = %v, %v", ok, err)
	}
	if cp.Token != "CAEQAQ==" || cp.Timestamp != 200 || cp.SavedAt.IsZero() {
		t.Errorf("checkpoint = %+v", cp)
	}
	if _, ok, _ := s.LoadCheckpoint("tick-2"); ok {
		t.Error("checkpoints must be per trader")
	}
}

func TestDecisions(t *testing.T) {
	s := openTest(t)
	for _, ts := range []int64{300, 100, 200, 1000} {
		d := market.Decision{Timestamp: ts, Conversions: int(ts / 100)}
		if err := s.AppendDecision("a", d); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendDecision("b", market.Decision{Timestamp: 150}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		from  int64
		limit int
		want  []int64
	}{
		{"all in timestamp order", 0, 0, []int64{100, 200, 300, 1000}},
		{"from", 200, 0, []int64{200, 300, 1000}},
		{"limit", 0, 2, []int64{100, 200}},
		{"past the end", 5000, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Decisions("a", tt.from, tt.limit)
			if err != nil {
				t.Fatalf("Decisions() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Decisions() = %d entries, want %d", len(got), len(tt.want))
			}
			for i, d := range got {
				if d.Timestamp != tt.want[i] {
					t.Errorf("entry %d timestamp = %d, want %d", i, d.Timestamp, tt.want[i])
				}
			}
		})
	}
}

func TestOpen_Disk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.SaveCheckpoint("x", Checkpoint{Token: "abc"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if cp, ok, _ := s.LoadCheckpoint("x"); !ok || cp.Token != "abc" {
		t.Errorf("checkpoint after reopen = %+v, %v", cp, ok)
	}
}
