package engine

import (
	"context"
	"fmt"

	"github.com/couchcryptid/cloudburst-engine/internal/deployment"
	"github.com/couchcryptid/cloudburst-engine/internal/domain"
)

// Deploy launches an aerial unit over the named sector, subject to the
// controller's launch conditions. When conditions reject the launch the
// returned Decision carries the operator-facing reason and unit is nil.
func (e *Engine) Deploy(ctx context.Context, sectorID string) (*domain.AerialUnit, deployment.Decision, error) {
	e.mu.Lock()
	sector, ok := e.sectors[sectorID]
	if !ok {
		e.mu.Unlock()
		return nil, deployment.Decision{}, fmt.Errorf("%w: %s", ErrSectorNotFound, sectorID)
	}
	if e.wind == nil {
		e.mu.Unlock()
		return nil, deployment.Decision{Reason: ErrNoWindData.Error()}, ErrNoWindData
	}

	unit, decision := e.controller.Deploy(sectorID, sector.Centroid, sector.CurrentProbability, e.wind.Speed)
	if unit != nil {
		sector.AerialDeployed = true
		sector.LastUpdated = domain.NewTimestamp(e.clock.Now())
	}
	var updated domain.Sector
	if unit != nil {
		updated = *sector
	}
	e.mu.Unlock()

	if unit == nil {
		e.metrics.Deployments.WithLabelValues("rejected").Inc()
		return nil, decision, nil
	}

	e.metrics.Deployments.WithLabelValues("launched").Inc()
	if err := e.store.PutUnit(ctx, *unit); err != nil {
		e.logger.Warn("publish unit failed", "unit_id", unit.ID, "error", err)
	}
	if err := e.store.PutSector(ctx, updated); err != nil {
		e.logger.Warn("publish sector failed", "sector_id", updated.ID, "error", err)
	}
	return unit, decision, nil
}

// Recall brings the named unit down. Only active units can be recalled.
func (e *Engine) Recall(ctx context.Context, unitID string) (*domain.AerialUnit, error) {
	unit, err := e.controller.Recall(unitID)
	if err != nil {
		return nil, err
	}
	e.metrics.Deployments.WithLabelValues("recalled").Inc()
	if err := e.store.PutUnit(ctx, *unit); err != nil {
		e.logger.Warn("publish unit failed", "unit_id", unit.ID, "error", err)
	}
	return unit, nil
}

// AcknowledgeAlert marks an alert as handled by the given user and persists
// the change.
func (e *Engine) AcknowledgeAlert(ctx context.Context, alertID, userID string) (domain.Alert, error) {
	a, err := e.alerts.Acknowledge(alertID, userID)
	if err != nil {
		return domain.Alert{}, err
	}
	e.metrics.AlertsAcked.Inc()
	if err := e.store.PutAlert(ctx, a); err != nil {
		e.logger.Warn("persist alert failed", "alert_id", a.ID, "error", err)
	}
	return a, nil
}

// RefreshPartition forces a full partition rebuild from the current node
// registry, regardless of how far nodes have moved. It returns the number of
// sectors in the new partition.
func (e *Engine) RefreshPartition(ctx context.Context) (int, error) {
	nodes, err := e.store.Nodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("read node registry: %w", err)
	}
	active := make([]domain.SensorNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Status == domain.NodeActive {
			active = append(active, n)
		}
	}

	e.mu.Lock()
	e.maybeRegenerate(active, "operator refresh")
	sectors := e.snapshotLocked()
	e.mu.Unlock()

	for _, sector := range sectors {
		if err := e.store.PutSector(ctx, sector); err != nil {
			e.logger.Warn("publish sector failed", "sector_id", sector.ID, "error", err)
		}
	}
	return len(sectors), nil
}

// Sectors returns a snapshot of the current sector state.
func (e *Engine) Sectors() []domain.Sector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// Sector returns a single sector by ID.
func (e *Engine) Sector(id string) (domain.Sector, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sectors[id]
	if !ok {
		return domain.Sector{}, false
	}
	return *s, true
}

// Alerts returns all alerts, newest first.
func (e *Engine) Alerts() []domain.Alert {
	return e.alerts.List()
}

// Units returns the aerial fleet.
func (e *Engine) Units() []domain.AerialUnit {
	return e.controller.Units()
}

// PendingEvents returns the scheduled propagation events ordered by arrival.
func (e *Engine) PendingEvents() []domain.PropagationEvent {
	return e.scheduler.Pending()
}
