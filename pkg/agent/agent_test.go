package agent

import (
	"testing"
	"time"

	"fleetsim/pkg/fleet"
	"fleetsim/pkg/protocol"
	"fleetsim/pkg/transport"
)

func startTestServer(t *testing.T) *transport.Server {
	t.Helper()
	s := transport.NewServer("127.0.0.1:0", testLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestAgentReportsTelemetry(t *testing.T) {
	s := startTestServer(t)

	reports := make(chan fleet.TelemetryData, 8)
	s.SetMessageHandler(func(_ string, payload []byte) {
		env, ok := protocol.DecodeEnvelope(payload)
		if !ok || env.Type != protocol.TypeTelemetry {
			return
		}
		if data, ok := protocol.DecodeTelemetry(env.Payload); ok {
			reports <- data
		}
	})

	a := New("scout_9", s.Addr(), 20*time.Millisecond, testLogger())
	a.Executor().SetPosition(fleet.Position{X: 7})
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(a.Stop)

	select {
	case data := <-reports:
		if data.UnitID != "scout_9" {
			t.Errorf("unit = %q", data.UnitID)
		}
		if data.Position.X != 7 {
			t.Errorf("position = %+v", data.Position)
		}
		if data.BatteryLevel >= 100 {
			t.Errorf("battery = %v, want drained below 100", data.BatteryLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no telemetry received")
	}
}

func TestAgentExecutesAndAcksCommand(t *testing.T) {
	s := startTestServer(t)

	acks := make(chan protocol.Acknowledgment, 4)
	sessionCh := make(chan string, 4)
	s.SetMessageHandler(func(clientID string, payload []byte) {
		env, ok := protocol.DecodeEnvelope(payload)
		if !ok {
			return
		}
		switch env.Type {
		case protocol.TypeTelemetry:
			sessionCh <- clientID
		case protocol.TypeAcknowledgment:
			if ack, ok := protocol.DecodeAck(env.Payload); ok {
				acks <- ack
			}
		}
	})

	a := New("scout_9", s.Addr(), 20*time.Millisecond, testLogger())
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(a.Stop)

	var session string
	select {
	case session = <-sessionCh:
	case <-time.After(3 * time.Second):
		t.Fatal("agent never reported")
	}

	cmd := fleet.NewMoveCommand("scout_9", fleet.Position{X: 42})
	env, err := protocol.NewCommandEnvelope(cmd)
	if err != nil {
		t.Fatalf("NewCommandEnvelope: %v", err)
	}
	body, err := protocol.EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	s.SendMessage(session, body)

	select {
	case ack := <-acks:
		if ack.CommandID != cmd.ID {
			t.Errorf("ack = %+v, want command %s", ack, cmd.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("command never acknowledged")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.Executor().Position() == (fleet.Position{X: 42}) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("position = %+v, want move applied", a.Executor().Position())
}

func TestAgentStartStopIdempotent(t *testing.T) {
	s := startTestServer(t)
	a := New("scout_9", s.Addr(), 50*time.Millisecond, testLogger())
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	a.Stop()
	a.Stop()
	if a.Running() || a.Connected() {
		t.Error("agent still running after Stop")
	}
}

func TestAgentStartFailsWithoutServer(t *testing.T) {
	a := New("scout_9", "127.0.0.1:1", 50*time.Millisecond, testLogger())
	if err := a.Start(); err == nil {
		t.Fatal("Start succeeded with no server")
	}
	if a.Running() {
		t.Error("agent reports running after failed Start")
	}
}
