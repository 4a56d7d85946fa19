package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ovidiomatos/waweb/internal/bus"
)

// State represents a connection lifecycle state.
type State string

const (
	Disconnected    State = "DISCONNECTED"
	Connecting      State = "CONNECTING"
	AwaitingQR      State = "AWAITING_QR"
	AwaitingPairing State = "AWAITING_PAIRING_CODE"
	Open            State = "OPEN"
	Closed          State = "CLOSED"
	LoggedOut       State = "LOGGED_OUT"
)

// validTransitions defines allowed state transitions. From Closed the
// machine either reconnects (transient close) or lands in LoggedOut
// (deliberate logout, requires fresh credential linking).
var validTransitions = map[State][]State{
	Disconnected:    {Connecting},
	Connecting:      {AwaitingQR, AwaitingPairing, Open, Closed},
	AwaitingQR:      {AwaitingQR, AwaitingPairing, Open, Closed},
	AwaitingPairing: {AwaitingQR, Open, Closed},
	Open:            {Closed},
	Closed:          {Connecting, LoggedOut},
	LoggedOut:       {Connecting},
}

// Machine tracks the connection lifecycle and owns the QR / pairing-code
// artifacts shown to unauthenticated clients. All mutation goes through
// Transition, SetQR and SetPairingCode; the machine is the single writer.
type Machine struct {
	mu          sync.RWMutex
	current     State
	qr          string // data-URI PNG, valid only before Open
	pairingCode string
	bus         *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// Entering Open or LoggedOut clears any stored QR image and pairing code.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	if to == Open || to == LoggedOut {
		m.qr = ""
		m.pairingCode = ""
	}
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Emit("session.state_changed", StateChange{From: from, To: to})
	}
	return nil
}

// SetQR stores a freshly issued QR image (replacing any previous one) and
// moves the machine to AwaitingQR.
func (m *Machine) SetQR(dataURI string) error {
	m.mu.Lock()
	m.qr = dataURI
	m.pairingCode = ""
	m.mu.Unlock()

	if err := m.Transition(AwaitingQR); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Emit("session.qr", dataURI)
	}
	return nil
}

// SetPairingCode stores a pairing code. Pairing supersedes QR display
// while active.
func (m *Machine) SetPairingCode(code string) error {
	m.mu.Lock()
	m.pairingCode = code
	m.qr = ""
	m.mu.Unlock()

	if err := m.Transition(AwaitingPairing); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Emit("session.pairing_code", code)
	}
	return nil
}

// QR returns the last stored QR data URI, empty once the session is open.
func (m *Machine) QR() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.qr
}

// PairingCode returns the last stored pairing code, if any.
func (m *Machine) PairingCode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pairingCode
}

// StateChange is the payload for session.state_changed events.
type StateChange struct {
	From State `json:"from"`
	To   State `json:"to"`
}
