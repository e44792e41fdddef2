// Package deployment drives the aerial-unit state machine:
//
//	standby -> deploying -> active -> descending -> standby
//
// The cycle only moves forward. Launch requires a sustained probability
// signal and safe wind; ascent and descent complete on rate-based time
// estimates; an active unit is recalled explicitly or forced down by the
// battery floor.
package deployment

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cloudburst-engine/internal/domain"
)

var (
	// ErrUnitNotFound is returned when recalling an unknown unit ID.
	ErrUnitNotFound = errors.New("aerial unit not found")

	// ErrNotRecallable is returned when recalling a unit that is not active.
	ErrNotRecallable = errors.New("unit is not active")
)

// Alerter is the slice of the alert manager the controller needs.
type Alerter interface {
	Create(sectorID string, typ domain.AlertType, severity domain.AlertLevel, message string, probability float64) domain.Alert
}

// Config tunes the launch conditions and flight profile.
type Config struct {
	ProbabilityThreshold float64       // deploy requires probability >= this
	SustainDuration      time.Duration // ... continuously for at least this long
	MaxWindSpeed         float64       // m/s; at or above is an unsafe launch
	TargetAltitudeM      float64
	AscentRateMS         float64
	DescentRateMS        float64
	BatteryFloorPct      float64 // active units below this are forced down
	BatteryDrainPerMin   float64 // percent per minute while airborne
}

// DefaultConfig matches the operational profile of the tethered sounding units.
func DefaultConfig() Config {
	return Config{
		ProbabilityThreshold: 50,
		SustainDuration:      30 * time.Second,
		MaxWindSpeed:         15,
		TargetAltitudeM:      400,
		AscentRateMS:         2.5,
		DescentRateMS:        2.0,
		BatteryFloorPct:      15,
		BatteryDrainPerMin:   0.5,
	}
}

// Decision is the outcome of a launch evaluation. Reason is empty when
// ShouldDeploy is true, otherwise it names the specific failed condition.
type Decision struct {
	ShouldDeploy bool   `json:"shouldDeploy"`
	Reason       string `json:"reason,omitempty"`
}

// Transition records one unit state change from a Tick, Deploy, or Recall.
type Transition struct {
	UnitID   string
	SectorID string
	From, To domain.UnitStatus
}

// Controller owns the aerial-unit fleet state. All methods are safe for
// concurrent use.
type Controller struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
	alerts Alerter

	mu         sync.Mutex
	units      map[string]*domain.AerialUnit
	aboveSince map[string]time.Time // sector -> when probability first held the threshold
	lastTick   time.Time
}

// NewController creates a Controller with an empty fleet.
func NewController(cfg Config, clock clockwork.Clock, logger *slog.Logger, alerts Alerter) *Controller {
	return &Controller{
		cfg:        cfg,
		clock:      clock,
		logger:     logger,
		alerts:     alerts,
		units:      make(map[string]*domain.AerialUnit),
		aboveSince: make(map[string]time.Time),
		lastTick:   clock.Now(),
	}
}

// ObserveProbability feeds the controller a sector's current probability so
// it can track how long the deploy threshold has been continuously held.
// Call it every engine cycle for every sector.
func (c *Controller) ObserveProbability(sectorID string, probability float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if probability >= c.cfg.ProbabilityThreshold {
		if _, ok := c.aboveSince[sectorID]; !ok {
			c.aboveSince[sectorID] = c.clock.Now()
		}
		return
	}
	// Any dip below threshold resets the sustain timer.
	delete(c.aboveSince, sectorID)
}

// EvaluateDeploy checks every launch condition for the sector without
// changing any state.
func (c *Controller) EvaluateDeploy(sectorID string, probability, windSpeed float64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evaluateLocked(sectorID, probability, windSpeed)
}

func (c *Controller) evaluateLocked(sectorID string, probability, windSpeed float64) Decision {
	if probability < c.cfg.ProbabilityThreshold {
		return Decision{Reason: fmt.Sprintf(
			"sector probability %.1f below deployment threshold %.1f",
			probability, c.cfg.ProbabilityThreshold)}
	}

	since, ok := c.aboveSince[sectorID]
	if !ok {
		return Decision{Reason: "probability has not been observed above threshold yet"}
	}
	held := c.clock.Now().Sub(since)
	if held < c.cfg.SustainDuration {
		return Decision{Reason: fmt.Sprintf(
			"probability above threshold for %s, need %s sustained",
			held.Round(time.Second), c.cfg.SustainDuration)}
	}

	if windSpeed >= c.cfg.MaxWindSpeed {
		return Decision{Reason: fmt.Sprintf(
			"wind speed %.1f m/s at or above safe launch limit %.1f m/s",
			windSpeed, c.cfg.MaxWindSpeed)}
	}

	if unit := c.unitForSectorLocked(sectorID); unit != nil {
		return Decision{Reason: fmt.Sprintf(
			"unit %s already assigned to sector (status %s)", unit.ID, unit.Status)}
	}

	return Decision{ShouldDeploy: true}
}

// Deploy evaluates the launch conditions and, when they hold, creates a unit
// in the deploying state assigned to the sector, emits an aerial_deployed
// alert, and returns the unit. The Decision is returned either way.
func (c *Controller) Deploy(sectorID string, position domain.Coordinates, probability, windSpeed float64) (*domain.AerialUnit, Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	decision := c.evaluateLocked(sectorID, probability, windSpeed)
	if !decision.ShouldDeploy {
		c.logger.Info("deploy rejected", "sector_id", sectorID, "reason", decision.Reason)
		return nil, decision
	}

	unit := &domain.AerialUnit{
		ID:               uuid.NewString(),
		Status:           domain.UnitDeploying,
		AssignedSectorID: sectorID,
		Position:         position,
		AscentRate:       c.cfg.AscentRateMS,
		BatteryLevel:     100,
		LastTransition:   domain.NewTimestamp(c.clock.Now()),
	}
	c.units[unit.ID] = unit

	c.alerts.Create(sectorID, domain.AlertAerialDeployed, domain.AlertLevelForProbability(probability),
		fmt.Sprintf("aerial unit %s deploying to sector", unit.ID), probability)
	c.logger.Info("aerial unit deploying", "unit_id", unit.ID, "sector_id", sectorID)

	snapshot := *unit
	return &snapshot, decision
}

// Recall transitions an active unit to descending and emits an
// aerial_recalled alert.
func (c *Controller) Recall(unitID string) (*domain.AerialUnit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recallLocked(unitID, "operator recall")
}

func (c *Controller) recallLocked(unitID, cause string) (*domain.AerialUnit, error) {
	unit, ok := c.units[unitID]
	if !ok {
		return nil, fmt.Errorf("recall %s: %w", unitID, ErrUnitNotFound)
	}
	if unit.Status != domain.UnitActive {
		return nil, fmt.Errorf("recall %s in status %s: %w", unitID, unit.Status, ErrNotRecallable)
	}

	unit.Status = domain.UnitDescending
	unit.AscentRate = -c.cfg.DescentRateMS
	unit.LastTransition = domain.NewTimestamp(c.clock.Now())

	c.alerts.Create(unit.AssignedSectorID, domain.AlertAerialRecalled, domain.LevelNormal,
		fmt.Sprintf("aerial unit %s descending: %s", unitID, cause), 0)
	c.logger.Info("aerial unit recalled", "unit_id", unitID, "cause", cause)

	snapshot := *unit
	return &snapshot, nil
}

// Tick advances every unit along its flight profile and returns the
// transitions that occurred: ascent completion (deploying -> active),
// battery-floor recalls (active -> descending), and touchdown
// (descending -> standby, unassigning the sector).
func (c *Controller) Tick() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	elapsedMin := now.Sub(c.lastTick).Minutes()
	c.lastTick = now

	var transitions []Transition
	for _, unit := range c.units {
		switch unit.Status {
		case domain.UnitDeploying:
			sinceLaunch := now.Sub(unit.LastTransition.Time)
			unit.Altitude = min(c.cfg.TargetAltitudeM, c.cfg.AscentRateMS*sinceLaunch.Seconds())
			if c.ascentComplete(sinceLaunch) {
				transitions = append(transitions, c.setStatus(unit, domain.UnitActive))
				unit.Altitude = c.cfg.TargetAltitudeM
				unit.AscentRate = 0
			}

		case domain.UnitActive:
			unit.BatteryLevel = max(0, unit.BatteryLevel-c.cfg.BatteryDrainPerMin*elapsedMin)
			if unit.BatteryLevel <= c.cfg.BatteryFloorPct {
				id := unit.ID
				if _, err := c.recallLocked(id, fmt.Sprintf("battery at %.0f%%", unit.BatteryLevel)); err == nil {
					transitions = append(transitions, Transition{
						UnitID: id, SectorID: unit.AssignedSectorID,
						From: domain.UnitActive, To: domain.UnitDescending,
					})
				}
			}

		case domain.UnitDescending:
			sinceRecall := now.Sub(unit.LastTransition.Time)
			unit.Altitude = max(0, c.cfg.TargetAltitudeM-c.cfg.DescentRateMS*sinceRecall.Seconds())
			if unit.Altitude <= 0 {
				tr := c.setStatus(unit, domain.UnitStandby)
				unit.AscentRate = 0
				unit.AssignedSectorID = ""
				transitions = append(transitions, tr)
			}
		}
	}

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].UnitID < transitions[j].UnitID
	})
	return transitions
}

func (c *Controller) ascentComplete(sinceLaunch time.Duration) bool {
	if c.cfg.AscentRateMS <= 0 {
		return false
	}
	needed := c.cfg.TargetAltitudeM / c.cfg.AscentRateMS
	return sinceLaunch.Seconds() >= needed
}

func (c *Controller) setStatus(unit *domain.AerialUnit, to domain.UnitStatus) Transition {
	tr := Transition{
		UnitID:   unit.ID,
		SectorID: unit.AssignedSectorID,
		From:     unit.Status,
		To:       to,
	}
	unit.Status = to
	unit.LastTransition = domain.NewTimestamp(c.clock.Now())
	c.logger.Info("aerial unit transition",
		"unit_id", unit.ID, "from", tr.From, "to", tr.To, "sector_id", tr.SectorID)
	return tr
}

// Units returns a snapshot of the fleet sorted by unit ID.
func (c *Controller) Units() []domain.AerialUnit {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.AerialUnit, 0, len(c.units))
	for _, unit := range c.units {
		out = append(out, *unit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnitForSector returns the unit assigned to the sector, if any.
func (c *Controller) UnitForSector(sectorID string) (domain.AerialUnit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	unit := c.unitForSectorLocked(sectorID)
	if unit == nil {
		return domain.AerialUnit{}, false
	}
	return *unit, true
}

func (c *Controller) unitForSectorLocked(sectorID string) *domain.AerialUnit {
	for _, unit := range c.units {
		if unit.AssignedSectorID == sectorID && unit.Status != domain.UnitStandby {
			return unit
		}
	}
	return nil
}
