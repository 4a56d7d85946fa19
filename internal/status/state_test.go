package status

import (
	"testing"
	"time"

	"github.com/ovidiomatos/waweb/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want %s", m.Current(), Disconnected)
	}
}

func TestValidTransitionPath(t *testing.T) {
	m := NewMachine(nil)
	path := []State{Connecting, AwaitingQR, Open, Closed, Connecting, Open}
	for _, s := range path {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}
	if m.Current() != Open {
		t.Errorf("final state = %s, want %s", m.Current(), Open)
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Open); err == nil {
		t.Error("Transition(Disconnected -> Open) should fail")
	}
	if m.Current() != Disconnected {
		t.Errorf("state after failed transition = %s, want %s", m.Current(), Disconnected)
	}
}

func TestQRReplacedOnReissue(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}
	if err := m.SetQR("data:image/png;base64,first"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetQR("data:image/png;base64,second"); err != nil {
		t.Fatal(err)
	}
	if got := m.QR(); got != "data:image/png;base64,second" {
		t.Errorf("QR() = %q, want the re-issued code", got)
	}
}

func TestQRClearedOnOpen(t *testing.T) {
	m := NewMachine(nil)
	_ = m.Transition(Connecting)
	_ = m.SetQR("data:image/png;base64,xxx")

	if err := m.Transition(Open); err != nil {
		t.Fatal(err)
	}
	if m.QR() != "" {
		t.Error("QR should be cleared once the session is open")
	}
	if m.PairingCode() != "" {
		t.Error("pairing code should be cleared once the session is open")
	}
}

func TestPairingSupersedesQR(t *testing.T) {
	m := NewMachine(nil)
	_ = m.Transition(Connecting)
	_ = m.SetQR("data:image/png;base64,xxx")

	if err := m.SetPairingCode("ABCD-1234"); err != nil {
		t.Fatal(err)
	}
	if m.Current() != AwaitingPairing {
		t.Errorf("state = %s, want %s", m.Current(), AwaitingPairing)
	}
	if m.QR() != "" {
		t.Error("QR should be dropped while a pairing code is active")
	}
	if m.PairingCode() != "ABCD-1234" {
		t.Errorf("PairingCode() = %q", m.PairingCode())
	}
}

// Logout-classified close: Closed -> LoggedOut, artifacts cleared, and the
// machine refuses a plain reconnect path (Open is unreachable without
// going through Connecting again).
func TestLogoutIsTerminalForArtifacts(t *testing.T) {
	m := NewMachine(nil)
	_ = m.Transition(Connecting)
	_ = m.SetQR("data:image/png;base64,xxx")
	_ = m.Transition(Open)
	_ = m.Transition(Closed)

	if err := m.Transition(LoggedOut); err != nil {
		t.Fatal(err)
	}
	if m.QR() != "" || m.PairingCode() != "" {
		t.Error("session artifacts must be cleared on logout")
	}
	if err := m.Transition(Open); err == nil {
		t.Error("LoggedOut -> Open must be invalid; re-linking is required")
	}
}

func TestTransitionPublishesStateChange(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.state_changed", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StateChange)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if change.From != Disconnected || change.To != Connecting {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for state change event")
	}
}

func TestReconnectPolicyDelays(t *testing.T) {
	p := DefaultReconnectPolicy
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},  // capped
		{20, 30 * time.Second}, // shift overflow guarded
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestReconnectorBudget(t *testing.T) {
	r := NewReconnector(ReconnectPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	defer r.Stop()

	done := make(chan struct{}, 4)
	connect := func() { done <- struct{}{} }

	if !r.Schedule(connect) {
		t.Fatal("first attempt should be granted")
	}
	if !r.Schedule(connect) {
		t.Fatal("second attempt should be granted")
	}
	if r.Schedule(connect) {
		t.Error("third attempt should exceed the budget")
	}

	r.Reset()
	if !r.Schedule(connect) {
		t.Error("Reset should restore the attempt budget")
	}
}
