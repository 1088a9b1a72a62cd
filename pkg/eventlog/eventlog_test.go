package eventlog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"fleetsim/pkg/fleet"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndQuery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Record(ctx, KindCommandSent, "u1", "cmd_1", "move"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, KindTelemetry, "u1", "", "status=idle"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, KindCommandSent, "u2", "cmd_2", "report"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	all, err := store.Query(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	// Newest first.
	if all[0].CommandID != "cmd_2" {
		t.Errorf("first event = %+v, want cmd_2", all[0])
	}
}

func TestQueryFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.Record(ctx, KindCommandSent, "u1", "cmd_1", "move")
	store.Record(ctx, KindTelemetry, "u1", "", "")
	store.Record(ctx, KindTelemetry, "u2", "", "")

	byUnit, err := store.Query(ctx, QueryOpts{UnitID: "u1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byUnit) != 2 {
		t.Errorf("unit filter: len = %d, want 2", len(byUnit))
	}

	byKind, err := store.Query(ctx, QueryOpts{Kind: KindTelemetry})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byKind) != 2 {
		t.Errorf("kind filter: len = %d, want 2", len(byKind))
	}

	limited, err := store.Query(ctx, QueryOpts{Limit: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit: len = %d, want 1", len(limited))
	}
}

func TestRecorderObserverEvents(t *testing.T) {
	store := openTestStore(t)
	rec := NewRecorder(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cmd := fleet.NewMoveCommand("u1", fleet.Position{X: 1})
	rec.OnCommandSent(cmd)
	rec.OnCommandCompleted(cmd.ID, true)
	rec.OnCommandCompleted("cmd_bad", false)
	rec.OnTelemetryReceived(fleet.NewTelemetryData("u1", fleet.Position{}, fleet.StatusIdle))

	ctx := context.Background()
	for kind, want := range map[string]int{
		KindCommandSent:      1,
		KindCommandCompleted: 1,
		KindCommandFailed:    1,
		KindTelemetry:        1,
	} {
		events, err := store.Query(ctx, QueryOpts{Kind: kind})
		if err != nil {
			t.Fatalf("Query(%s): %v", kind, err)
		}
		if len(events) != want {
			t.Errorf("%s: len = %d, want %d", kind, len(events), want)
		}
	}
}
