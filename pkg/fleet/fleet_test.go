package fleet

import (
	"strings"
	"testing"
	"time"
)

func TestNewUnitDefaults(t *testing.T) {
	u := NewUnit("u1", Position{})
	if u.Status() != StatusIdle {
		t.Errorf("status = %v, want idle", u.Status())
	}
	if u.Position() != (Position{}) {
		t.Errorf("position = %+v, want origin", u.Position())
	}
	if !u.Online() {
		t.Error("freshly created unit should be online")
	}
}

func TestUnitSettersAdvanceLastUpdate(t *testing.T) {
	u := NewUnit("u1", Position{})
	before := u.LastUpdate()

	now := before.Add(time.Second)
	u.SetNowFunc(func() time.Time { return now })

	u.SetPosition(Position{X: 1})
	if !u.LastUpdate().After(before) {
		t.Error("SetPosition did not advance lastUpdate")
	}

	mid := u.LastUpdate()
	now = now.Add(time.Second)
	u.SetStatus(StatusBusy)
	if !u.LastUpdate().After(mid) {
		t.Error("SetStatus did not advance lastUpdate")
	}
	if u.Status() != StatusBusy {
		t.Errorf("status = %v, want busy", u.Status())
	}
}

func TestUnitOnlineStalenessWindow(t *testing.T) {
	u := NewUnit("u1", Position{})
	base := u.LastUpdate()

	u.SetNowFunc(func() time.Time { return base.Add(StalenessWindow - time.Millisecond) })
	if !u.Online() {
		t.Error("unit inside the staleness window should be online")
	}

	u.SetNowFunc(func() time.Time { return base.Add(StalenessWindow) })
	if u.Online() {
		t.Error("unit at the staleness window should be offline")
	}
}

func TestCommandIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		cmd := NewReportCommand("u1")
		if !strings.HasPrefix(cmd.ID, "cmd_") {
			t.Fatalf("id %q lacks cmd_ prefix", cmd.ID)
		}
		if seen[cmd.ID] {
			t.Fatalf("duplicate command id %q", cmd.ID)
		}
		seen[cmd.ID] = true
	}
}

func TestMoveCommandPayload(t *testing.T) {
	dest := Position{X: 100, Y: 200, Z: 300}
	cmd := NewMoveCommand("u1", dest)
	if cmd.Type != CommandMove {
		t.Fatalf("type = %v, want move", cmd.Type)
	}
	got, ok := cmd.MoveDestination()
	if !ok || got != dest {
		t.Errorf("destination = %+v ok=%v, want %+v", got, ok, dest)
	}

	// A non-move command has no destination.
	if _, ok := NewReportCommand("u1").MoveDestination(); ok {
		t.Error("report command yielded a move destination")
	}
}

func TestAlertCommandPayload(t *testing.T) {
	cmd := NewAlertCommand("u1", "low battery", 2)
	msg, sev, ok := cmd.AlertContent()
	if !ok || msg != "low battery" || sev != 2 {
		t.Errorf("alert content = (%q, %d, %v)", msg, sev, ok)
	}
}

func TestShutdownAndReportPayloadsEmpty(t *testing.T) {
	for _, cmd := range []*Command{NewReportCommand("u1"), NewShutdownCommand("u1")} {
		if string(cmd.Payload) != "{}" {
			t.Errorf("%v payload = %s, want empty object", cmd.Type, cmd.Payload)
		}
	}
}
