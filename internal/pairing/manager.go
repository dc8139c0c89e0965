// Package pairing runs the push-protocol handshake state machine:
// Began -> Completed|Failed, with the handshake handle released on every
// path. Sessions live in memory only and do not survive a restart.
package pairing

import (
	"context"
	"sync"

	"github.com/alex/castmasta/internal/adapters"
	"github.com/alex/castmasta/internal/credentials"
	"github.com/alex/castmasta/internal/domain"
)

// BeginResult reports which side supplies the PIN.
type BeginResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Manager struct {
	pairer adapters.AirPlayPairer
	creds  *credentials.Store
	logf   func(format string, args ...any)

	mu       sync.Mutex
	sessions map[string]adapters.PairingHandle
}

func NewManager(pairer adapters.AirPlayPairer, creds *credentials.Store, logf func(format string, args ...any)) *Manager {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Manager{
		pairer:   pairer,
		creds:    creds,
		logf:     logf,
		sessions: map[string]adapters.PairingHandle{},
	}
}

func sessionKey(identifier string, protocol domain.PairingProtocol) string {
	return identifier + ":" + string(protocol)
}

// Begin opens a handshake and stores its handle keyed by
// (identifier, protocol). An existing session for the same key is
// silently replaced.
func (m *Manager) Begin(ctx context.Context, target adapters.ConnectTarget, protocol domain.PairingProtocol) (BeginResult, error) {
	if m.pairer == nil {
		return BeginResult{}, domain.Internal("AirPlay pairing adapter is not configured")
	}

	handle, err := m.pairer.BeginPairing(ctx, target, protocol)
	if err != nil {
		return BeginResult{}, err
	}

	key := sessionKey(target.Identifier, protocol)
	m.mu.Lock()
	m.sessions[key] = handle
	m.mu.Unlock()
	m.logf("pairing session opened for %s", key)

	if !handle.DeviceProvidesPIN() {
		return BeginResult{Status: "pin_required", Message: "Enter PIN on the device itself"}, nil
	}
	return BeginResult{Status: "ready", Message: "PIN required - use pair_with_pin method"}, nil
}

// FinishWithPIN submits the PIN to the Began session for
// (identifier, protocol), persists the credential blob on success, and
// releases the handle and session entry on every outcome.
func (m *Manager) FinishWithPIN(ctx context.Context, identifier string, protocol domain.PairingProtocol, pin string) (paired bool, err error) {
	key := sessionKey(identifier, protocol)

	m.mu.Lock()
	handle, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return false, domain.NoActiveSession(identifier)
	}

	defer func() {
		if closeErr := handle.Close(ctx); closeErr != nil {
			m.logf("pairing handle close failed for %s: %v", key, closeErr)
		}
		m.mu.Lock()
		delete(m.sessions, key)
		m.mu.Unlock()
	}()

	handle.SetPIN(pin)
	if err := handle.Finish(ctx); err != nil {
		return false, err
	}
	if !handle.HasPaired() {
		return false, nil
	}

	if blob := handle.Credentials(); blob != "" && m.creds != nil {
		if err := m.creds.Set(identifier, protocol, blob); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ActiveSessions reports how many handshakes are currently open.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
