// Package alert owns the alert lifecycle: creation on notable transitions
// and one-way acknowledgement. Alerts are immutable once created except for
// the acknowledgement fields, which transition exactly once.
package alert

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cloudburst-engine/internal/domain"
)

// ErrNotFound is returned when acknowledging an alert ID that does not exist.
var ErrNotFound = errors.New("alert not found")

// Manager is the explicit owner of alert state. All methods are safe for
// concurrent use.
type Manager struct {
	clock  clockwork.Clock
	logger *slog.Logger

	mu     sync.RWMutex
	alerts map[string]domain.Alert
}

// NewManager creates an empty alert store.
func NewManager(clock clockwork.Clock, logger *slog.Logger) *Manager {
	return &Manager{
		clock:  clock,
		logger: logger,
		alerts: make(map[string]domain.Alert),
	}
}

// Create records a new unacknowledged alert and returns it.
func (m *Manager) Create(sectorID string, typ domain.AlertType, severity domain.AlertLevel, message string, probability float64) domain.Alert {
	a := domain.Alert{
		ID:          uuid.NewString(),
		SectorID:    sectorID,
		Type:        typ,
		Severity:    severity,
		Message:     message,
		Probability: probability,
		Timestamp:   domain.NewTimestamp(m.clock.Now()),
	}

	m.mu.Lock()
	m.alerts[a.ID] = a
	m.mu.Unlock()

	m.logger.Info("alert created",
		"alert_id", a.ID,
		"sector_id", sectorID,
		"type", typ,
		"severity", severity,
		"probability", probability,
	)
	return a
}

// Acknowledge marks an alert acknowledged by userID. Acknowledging an
// already-acknowledged alert is a no-op that returns the original
// acknowledgement data, not an error.
func (m *Manager) Acknowledge(alertID, userID string) (domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[alertID]
	if !ok {
		return domain.Alert{}, fmt.Errorf("acknowledge %s: %w", alertID, ErrNotFound)
	}
	if a.Acknowledged {
		return a, nil
	}

	a.Acknowledged = true
	a.AcknowledgedBy = userID
	a.AcknowledgedAt = domain.NewTimestamp(m.clock.Now())
	m.alerts[alertID] = a
	return a, nil
}

// Get returns the alert with the given ID.
func (m *Manager) Get(alertID string) (domain.Alert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[alertID]
	return a, ok
}

// List returns every alert, newest first.
func (m *Manager) List() []domain.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp.Time)
	})
	return out
}

// Unacknowledged returns the alerts still awaiting acknowledgement, newest first.
func (m *Manager) Unacknowledged() []domain.Alert {
	all := m.List()
	out := all[:0]
	for _, a := range all {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	return out
}
