// Package propagation models how a high-probability cloudburst signal
// spreads from a source sector to downwind neighbors with physically
// motivated delay and decay.
//
// The scheduler is an explicit service object: it owns the pending-event set
// behind a mutex and is polled by the engine tick. There are no per-event
// timers; pending events are indexed by target sector and a new event only
// replaces an existing one when its probability is strictly higher, so a
// weak cascade branch can never downgrade a stronger scheduled impact.
package propagation

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cloudburst-engine/internal/domain"
	"github.com/couchcryptid/cloudburst-engine/internal/geo"
)

const (
	// DefaultThreshold is the source probability below which no cascade starts.
	DefaultThreshold = 30.0

	// DefaultMaxHops bounds cascade depth across the adjacency graph.
	DefaultMaxHops = 4

	// decayScaleKM is the e-folding distance of the transmitted probability.
	// Sector radii are clipped to at most 10 km, so a direct neighbor keeps
	// roughly 30-80% of the source signal.
	decayScaleKM = 8.0

	// calmWindSpeed is the wind speed in m/s below which weather is treated
	// as stationary: the event is scheduled so far out it never fires inside
	// any practical horizon.
	calmWindSpeed = 0.1

	// calmDelayMinutes is the "never arrives" delay used for calm wind
	// (one year).
	calmDelayMinutes = 365 * 24 * 60

	// negligibleProbability prunes cascade branches not worth scheduling.
	negligibleProbability = 1.0
)

// SectorView is the read-only slice of sector state the scheduler needs.
type SectorView struct {
	ID          string
	Centroid    domain.Coordinates
	Neighbors   []string
	Probability float64
}

// Config tunes cascade behavior. Zero values fall back to defaults.
type Config struct {
	Threshold float64
	MaxHops   int
}

// Scheduler owns the pending propagation-event set. All methods are safe for
// concurrent use; scheduling and the tick's apply step serialize on one lock
// so a clear between them can never leak a half-applied event.
type Scheduler struct {
	threshold float64
	maxHops   int
	clock     clockwork.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]domain.PropagationEvent // target sector -> best pending event
}

// New creates a Scheduler with the given tuning, clock, and logger.
func New(cfg Config, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = DefaultMaxHops
	}
	return &Scheduler{
		threshold: cfg.Threshold,
		maxHops:   cfg.MaxHops,
		clock:     clock,
		logger:    logger,
		pending:   make(map[string]domain.PropagationEvent),
	}
}

// Threshold reports the source probability required to start a cascade.
func (s *Scheduler) Threshold() float64 {
	return s.threshold
}

// ScheduleCascade seeds a cascade from the given source sector and schedules
// delayed events across the adjacency graph, up to maxHops out. It returns
// the events that were stored (new targets, or strictly better than what was
// already pending). A source below the trigger threshold schedules nothing.
func (s *Scheduler) ScheduleCascade(sourceID string, sectors map[string]SectorView, wind domain.WindData) []domain.PropagationEvent {
	source, ok := sectors[sourceID]
	if !ok || source.Probability < s.threshold {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var stored []domain.PropagationEvent

	// best probability seen per sector within this cascade pass; guards
	// against revisiting on cyclic adjacency.
	visited := map[string]float64{sourceID: source.Probability}

	type frontierItem struct {
		sector      SectorView
		probability float64
		delayMin    float64
	}
	frontier := []frontierItem{{sector: source, probability: source.Probability}}

	for hop := 1; hop <= s.maxHops && len(frontier) > 0; hop++ {
		var next []frontierItem

		for _, item := range frontier {
			for _, neighborID := range item.sector.Neighbors {
				neighbor, ok := sectors[neighborID]
				if !ok {
					continue
				}

				event := transmit(item.sector, neighbor, item.probability, wind)
				if event.Probability < negligibleProbability {
					continue
				}
				if best, seen := visited[neighborID]; seen && best >= event.Probability {
					continue
				}
				visited[neighborID] = event.Probability

				// Delay accumulates along the path: the parcel reaches this
				// sector only after traversing every hop before it.
				event.SourceSectorID = sourceID
				event.DelayMinutes += item.delayMin
				event.ScheduledTime = domain.NewTimestamp(
					now.Add(minutesToDuration(event.DelayMinutes)))

				if s.storeIfBetter(event) {
					stored = append(stored, event)
				}
				next = append(next, frontierItem{
					sector:      neighbor,
					probability: event.Probability,
					delayMin:    event.DelayMinutes,
				})
			}
		}
		frontier = next
	}

	if len(stored) > 0 {
		s.logger.Info("propagation cascade scheduled",
			"source", sourceID,
			"events", len(stored),
			"wind_speed", wind.Speed,
			"wind_direction", wind.Direction,
		)
	}
	return stored
}

// storeIfBetter applies the merge rule: a pending event for the same target
// is replaced only by a strictly higher probability. Caller holds the lock.
func (s *Scheduler) storeIfBetter(event domain.PropagationEvent) bool {
	existing, ok := s.pending[event.TargetSectorID]
	if ok && existing.Probability >= event.Probability {
		return false
	}
	s.pending[event.TargetSectorID] = event
	return true
}

// ApplyDue removes and returns every pending event whose scheduled time has
// arrived. Events still in the future stay pending. Applying twice in a row
// without new scheduling returns nothing the second time, which makes the
// tick idempotent. Because pending events are keyed by target, at most one
// event per sector can come due in a batch, so per-sector max semantics are
// structural rather than order-dependent.
func (s *Scheduler) ApplyDue() []domain.PropagationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var due []domain.PropagationEvent
	for target, event := range s.pending {
		if !event.ScheduledTime.After(now) {
			due = append(due, event)
			delete(s.pending, target)
		}
	}

	// Map iteration order is random; present due events deterministically.
	sort.Slice(due, func(i, j int) bool {
		return due[i].TargetSectorID < due[j].TargetSectorID
	})
	return due
}

// Pending returns a snapshot of the pending events sorted by scheduled time.
func (s *Scheduler) Pending() []domain.PropagationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PropagationEvent, 0, len(s.pending))
	for _, event := range s.pending {
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledTime.Before(out[j].ScheduledTime.Time)
	})
	return out
}

// Clear drops every pending event. The operation is idempotent and atomic
// with respect to ScheduleCascade and ApplyDue.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]domain.PropagationEvent)
}

// transmit computes the single-hop event from one sector to a neighbor.
func transmit(from, to SectorView, probability float64, wind domain.WindData) domain.PropagationEvent {
	distanceKM := geo.HaversineDistance(
		from.Centroid.Lat, from.Centroid.Lng,
		to.Centroid.Lat, to.Centroid.Lng,
	)
	bearing := geo.Bearing(
		from.Centroid.Lat, from.Centroid.Lng,
		to.Centroid.Lat, to.Centroid.Lng,
	)

	wf := windFactor(geo.AngleDifference(bearing, wind.Direction))
	decay := distanceDecay(distanceKM)

	transmitted := math.Max(0, math.Min(100, probability*wf*decay))

	return domain.PropagationEvent{
		SourceSectorID: from.ID,
		TargetSectorID: to.ID,
		Probability:    transmitted,
		WindFactor:     wf,
		DistanceDecay:  decay,
		DelayMinutes:   travelMinutes(distanceKM, wind.Speed),
	}
}

// windFactor maps the angle between the propagation bearing and the wind
// direction to [0, 1]: 1 when the neighbor is directly downwind, 0.5 at
// crosswind, approaching 0 when the wind blows the other way.
func windFactor(angleDeg float64) float64 {
	return (1 + math.Cos(angleDeg*math.Pi/180)) / 2
}

// distanceDecay attenuates the transmitted probability exponentially with
// centroid distance, e-folding every decayScaleKM.
func distanceDecay(distanceKM float64) float64 {
	return math.Exp(-distanceKM / decayScaleKM)
}

// travelMinutes estimates how long weather takes to cover distanceKM at the
// given wind speed in m/s. Calm wind yields a delay that never comes due.
func travelMinutes(distanceKM, windSpeedMS float64) float64 {
	if windSpeedMS < calmWindSpeed {
		return calmDelayMinutes
	}
	return distanceKM * 1000 / windSpeedMS / 60
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
