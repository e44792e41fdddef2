// Package engine owns the live sector state and orchestrates the monitoring
// cycle: pull sensor data from the realtime store, regenerate the spatial
// partition when the node set changes, fuse per-sector probability, detect
// cloudbursts, cascade propagation downwind, advance aerial deployments, and
// publish the results back to the store.
//
// The engine is an explicit service object; there are no package-level
// registries. All cross-component mutation funnels through the cycle or the
// actuator methods, both of which serialize on the engine lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cloudburst-engine/internal/alert"
	"github.com/couchcryptid/cloudburst-engine/internal/deployment"
	"github.com/couchcryptid/cloudburst-engine/internal/domain"
	"github.com/couchcryptid/cloudburst-engine/internal/fusion"
	"github.com/couchcryptid/cloudburst-engine/internal/observability"
	"github.com/couchcryptid/cloudburst-engine/internal/partition"
	"github.com/couchcryptid/cloudburst-engine/internal/propagation"
)

var (
	// ErrSectorNotFound is returned by actuator calls naming an unknown sector.
	ErrSectorNotFound = errors.New("sector not found")

	// ErrNoWindData is returned when a deploy is requested before any wind
	// observation has been read from the store.
	ErrNoWindData = errors.New("no current wind data")
)

// Store is the engine's contract with the realtime key-value store. Readings
// that do not exist return nil with no error; only transport failures error.
type Store interface {
	Nodes(ctx context.Context) ([]domain.SensorNode, error)
	Wind(ctx context.Context) (*domain.WindData, error)
	Weather(ctx context.Context, nodeID string) (*domain.WeatherReading, error)
	Rainfall(ctx context.Context, nodeID string) (*domain.RainfallReading, error)
	Aerial(ctx context.Context, nodeID string) (*domain.AerialReading, error)

	PutSector(ctx context.Context, sector domain.Sector) error
	PutUnit(ctx context.Context, unit domain.AerialUnit) error
	PutAlert(ctx context.Context, a domain.Alert) error
}

// AlertPublisher pushes new alerts to an external stream. Optional.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, a domain.Alert) error
}

// Options collects the engine's tunables.
type Options struct {
	TickInterval time.Duration
	Propagation  propagation.Config
	Deployment   deployment.Config
	// Window for the per-sector rolling pressure history feeding the detector.
	PressureWindow time.Duration
}

// Engine is the monitoring core service.
type Engine struct {
	opts      Options
	store     Store
	publisher AlertPublisher // may be nil
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	scheduler  *propagation.Scheduler
	controller *deployment.Controller
	alerts     *alert.Manager

	ready atomic.Bool

	mu      sync.RWMutex
	nodes   []domain.SensorNode // active nodes behind the current partition
	sectors map[string]*domain.Sector
	wind    *domain.WindData
	trends  map[string]*fusion.PressureTrend
	trendAt map[string]time.Time // last pressure sample time per sector
}

// New wires an Engine from its dependencies. publisher may be nil to disable
// external alert streaming.
func New(opts Options, store Store, publisher AlertPublisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 5 * time.Second
	}
	if opts.PressureWindow <= 0 {
		opts.PressureWindow = time.Hour
	}

	e := &Engine{
		opts:      opts,
		store:     store,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		scheduler: propagation.New(opts.Propagation, clock, logger),
		alerts:    alert.NewManager(clock, logger),
		sectors:   make(map[string]*domain.Sector),
		trends:    make(map[string]*fusion.PressureTrend),
		trendAt:   make(map[string]time.Time),
	}
	// The engine sits between the controller and the alert manager so every
	// deployment alert is also persisted and published.
	e.controller = deployment.NewController(opts.Deployment, clock, logger, e)
	return e
}

// CheckReadiness returns nil once the engine has completed at least one
// full cycle.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("engine has not completed a monitoring cycle yet")
	}
	return nil
}

// Run executes the monitoring loop until the context is cancelled. Store
// failures are recoverable: the cycle that hit one is skipped and the next
// tick retries.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started", "tick_interval", e.opts.TickInterval)
	e.metrics.EngineRunning.Set(1)
	defer e.metrics.EngineRunning.Set(0)

	ticker := e.clock.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		if err := e.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				e.logger.Info("engine stopping", "reason", ctx.Err())
				return nil
			}
			e.metrics.CycleErrors.Inc()
			e.logger.Error("cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// Cycle runs one complete pull-fuse-detect-propagate-deploy-publish pass.
func (e *Engine) Cycle(ctx context.Context) error {
	start := e.clock.Now()

	nodes, err := e.store.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("read node registry: %w", err)
	}
	active := make([]domain.SensorNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Status == domain.NodeActive {
			active = append(active, n)
		}
	}

	wind, err := e.store.Wind(ctx)
	if err != nil {
		return fmt.Errorf("read wind: %w", err)
	}

	readings, err := e.collectReadings(ctx, active)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.wind = wind
	e.maybeRegenerate(active, "")
	e.fuseAndDetect(readings)
	if wind != nil {
		e.cascadeFromHotSectors(*wind)
	}
	e.applyDueEvents()
	transitions := e.controller.Tick()
	e.applyTransitions(transitions)
	updated := e.snapshotLocked()
	e.mu.Unlock()

	e.syncUnits(ctx)
	for _, sector := range updated {
		if err := e.store.PutSector(ctx, sector); err != nil {
			return fmt.Errorf("publish sector %s: %w", sector.ID, err)
		}
	}

	e.metrics.CycleDuration.Observe(e.clock.Now().Sub(start).Seconds())
	e.metrics.PendingEvents.Set(float64(len(e.scheduler.Pending())))
	e.ready.Store(true)
	return nil
}

// sectorReadings pairs a sector with whatever raw data its node produced.
type sectorReadings struct {
	sectorID string
	input    fusion.Input
}

func (e *Engine) collectReadings(ctx context.Context, active []domain.SensorNode) ([]sectorReadings, error) {
	out := make([]sectorReadings, 0, len(active))
	for _, n := range active {
		weather, err := e.store.Weather(ctx, n.ID)
		if err != nil {
			return nil, fmt.Errorf("read weather for %s: %w", n.ID, err)
		}
		rainfall, err := e.store.Rainfall(ctx, n.ID)
		if err != nil {
			return nil, fmt.Errorf("read rainfall for %s: %w", n.ID, err)
		}
		aerial, err := e.store.Aerial(ctx, n.ID)
		if err != nil {
			return nil, fmt.Errorf("read aerial for %s: %w", n.ID, err)
		}
		out = append(out, sectorReadings{
			sectorID: partition.SectorID(n.ID),
			input:    fusion.Input{Weather: weather, Rainfall: rainfall, Aerial: aerial},
		})
	}
	return out, nil
}

// maybeRegenerate rebuilds the partition when the node set warrants it.
// Regeneration is a full replace: sector state restarts clean, pending
// propagation events against the old topology are dropped, and stale
// pressure trends are discarded. Caller holds the lock.
func (e *Engine) maybeRegenerate(active []domain.SensorNode, forcedReason string) {
	reason := forcedReason
	if reason == "" {
		stale, why := partition.NeedsRegeneration(e.nodes, active)
		if !stale && len(e.sectors) > 0 {
			return
		}
		if !stale && len(active) == 0 {
			return
		}
		reason = why
		if reason == "" {
			reason = "initial partition"
		}
	}

	result := partition.Partition(active, nil)

	sectors := make(map[string]*domain.Sector, len(result.Cells))
	for _, cell := range result.Cells {
		sectors[cell.ID] = &domain.Sector{
			ID:               cell.ID,
			NodeID:           cell.NodeID,
			Centroid:         cell.Centroid,
			Boundary:         cell.Polygon,
			Neighbors:        cell.Neighbors,
			PredictionSource: domain.SourceUnavailable,
			AlertLevel:       domain.LevelNormal,
			LastUpdated:      domain.NewTimestamp(e.clock.Now()),
		}
	}

	e.nodes = active
	e.sectors = sectors
	e.scheduler.Clear()
	for id := range e.trends {
		if _, ok := sectors[id]; !ok {
			delete(e.trends, id)
			delete(e.trendAt, id)
		}
	}

	e.metrics.PartitionRebuilds.Inc()
	e.metrics.SectorCount.Set(float64(len(sectors)))
	e.logger.Info("partition regenerated", "sectors", len(sectors), "reason", reason)
}

// fuseAndDetect updates every sector's probability, confidence, and
// detection state from this cycle's readings. Caller holds the lock.
func (e *Engine) fuseAndDetect(readings []sectorReadings) {
	now := domain.NewTimestamp(e.clock.Now())

	for _, r := range readings {
		sector, ok := e.sectors[r.sectorID]
		if !ok {
			continue
		}

		est := fusion.Fuse(r.input)
		e.metrics.SectorsFused.Inc()

		previousLevel := sector.AlertLevel
		previouslyDetected := sector.CloudburstDetected

		sector.CurrentProbability = est.Probability
		sector.Confidence = est.Confidence
		sector.PredictionSource = est.Source
		sector.LastUpdated = now

		var rainfallRate float64
		if r.input.Rainfall != nil {
			rainfallRate = r.input.Rainfall.Rate
		}
		if r.input.Weather != nil {
			e.recordPressure(r.sectorID, r.input.Weather)
		}
		detection := fusion.Detect(rainfallRate, e.dropRate(r.sectorID))
		sector.CloudburstDetected = detection.Detected
		sector.CloudburstConfidence = detection.Confidence

		sector.AlertLevel = domain.AlertLevelForProbability(sector.CurrentProbability)

		if detection.Detected && !previouslyDetected {
			e.metrics.CloudburstsDetected.Inc()
			e.Create(sector.ID, domain.AlertCloudburstDetected, sector.AlertLevel,
				fmt.Sprintf("cloudburst detected: rainfall %.1f mm/hr, pressure dropping %.1f hPa/hr",
					detection.RainfallRate, detection.PressureDropRate),
				sector.CurrentProbability)
		}
		e.alertOnLevelCrossing(sector, previousLevel)

		e.controller.ObserveProbability(sector.ID, sector.CurrentProbability)
	}
}

func (e *Engine) recordPressure(sectorID string, weather *domain.WeatherReading) {
	at := weather.Timestamp.Time
	if at.IsZero() {
		at = e.clock.Now()
	}
	if last, ok := e.trendAt[sectorID]; ok && !at.After(last) {
		return
	}
	trend, ok := e.trends[sectorID]
	if !ok {
		trend = fusion.NewPressureTrend(e.opts.PressureWindow)
		e.trends[sectorID] = trend
	}
	trend.Record(weather.Pressure, at)
	e.trendAt[sectorID] = at
}

func (e *Engine) dropRate(sectorID string) float64 {
	if trend, ok := e.trends[sectorID]; ok {
		return trend.DropRate()
	}
	return 0
}

// cascadeFromHotSectors schedules propagation from every sector at or above
// the cascade threshold. Caller holds the lock.
func (e *Engine) cascadeFromHotSectors(wind domain.WindData) {
	views := e.sectorViewsLocked()
	for id, view := range views {
		if view.Probability < e.scheduler.Threshold() {
			continue
		}
		stored := e.scheduler.ScheduleCascade(id, views, wind)
		e.metrics.EventsScheduled.Add(float64(len(stored)))
	}
}

// applyDueEvents folds due propagation events into their target sectors.
// Propagation never lowers a probability. Caller holds the lock.
func (e *Engine) applyDueEvents() {
	due := e.scheduler.ApplyDue()
	if len(due) == 0 {
		return
	}
	now := domain.NewTimestamp(e.clock.Now())

	for _, event := range due {
		sector, ok := e.sectors[event.TargetSectorID]
		if !ok {
			// Target vanished in a regeneration after scheduling; discard.
			continue
		}
		e.metrics.EventsApplied.Inc()
		if event.Probability <= sector.CurrentProbability {
			continue
		}

		previousLevel := sector.AlertLevel
		sector.CurrentProbability = event.Probability
		sector.AlertLevel = domain.AlertLevelForProbability(event.Probability)
		sector.LastUpdated = now
		e.alertOnLevelCrossing(sector, previousLevel)
		e.controller.ObserveProbability(sector.ID, sector.CurrentProbability)

		e.logger.Info("propagation applied",
			"source", event.SourceSectorID,
			"target", event.TargetSectorID,
			"probability", event.Probability,
		)
	}
}

// alertOnLevelCrossing emits an alert when a sector rises into high or
// critical. Caller holds the lock.
func (e *Engine) alertOnLevelCrossing(sector *domain.Sector, previous domain.AlertLevel) {
	if levelRank(sector.AlertLevel) <= levelRank(previous) {
		return
	}
	if sector.AlertLevel != domain.LevelHigh && sector.AlertLevel != domain.LevelCritical {
		return
	}
	e.Create(sector.ID, domain.AlertLevelRaised, sector.AlertLevel,
		fmt.Sprintf("sector alert level raised to %s at probability %.1f",
			sector.AlertLevel, sector.CurrentProbability),
		sector.CurrentProbability)
}

func levelRank(l domain.AlertLevel) int {
	switch l {
	case domain.LevelElevated:
		return 1
	case domain.LevelHigh:
		return 2
	case domain.LevelCritical:
		return 3
	default:
		return 0
	}
}

// applyTransitions reflects unit state changes onto sector flags.
// Caller holds the lock.
func (e *Engine) applyTransitions(transitions []deployment.Transition) {
	for _, tr := range transitions {
		sector, ok := e.sectors[tr.SectorID]
		if !ok {
			continue
		}
		if tr.To == domain.UnitStandby {
			sector.AerialDeployed = false
			sector.LastUpdated = domain.NewTimestamp(e.clock.Now())
		}
	}
}

// syncUnits publishes the fleet and updates the airborne gauge.
func (e *Engine) syncUnits(ctx context.Context) {
	units := e.controller.Units()
	airborne := 0
	for _, unit := range units {
		if unit.Status != domain.UnitStandby {
			airborne++
		}
		if err := e.store.PutUnit(ctx, unit); err != nil {
			e.logger.Warn("publish unit failed", "unit_id", unit.ID, "error", err)
		}
	}
	e.metrics.AirborneUnits.Set(float64(airborne))
}

func (e *Engine) sectorViewsLocked() map[string]propagation.SectorView {
	views := make(map[string]propagation.SectorView, len(e.sectors))
	for id, s := range e.sectors {
		views[id] = propagation.SectorView{
			ID:          id,
			Centroid:    s.Centroid,
			Neighbors:   s.Neighbors,
			Probability: s.CurrentProbability,
		}
	}
	return views
}

func (e *Engine) snapshotLocked() []domain.Sector {
	out := make([]domain.Sector, 0, len(e.sectors))
	for _, s := range e.sectors {
		out = append(out, *s)
	}
	return out
}

// Create implements deployment.Alerter and is the single funnel for alert
// creation: it records the alert, counts it, and best-effort persists and
// publishes it.
func (e *Engine) Create(sectorID string, typ domain.AlertType, severity domain.AlertLevel, message string, probability float64) domain.Alert {
	a := e.alerts.Create(sectorID, typ, severity, message, probability)
	e.metrics.AlertsCreated.WithLabelValues(string(typ)).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.PutAlert(ctx, a); err != nil {
		e.logger.Warn("persist alert failed", "alert_id", a.ID, "error", err)
	}
	if e.publisher != nil {
		if err := e.publisher.PublishAlert(ctx, a); err != nil {
			e.logger.Warn("publish alert failed", "alert_id", a.ID, "error", err)
		}
	}
	return a
}
