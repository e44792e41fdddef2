package propagation

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cloudburst-engine/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(cfg Config) (*Scheduler, *clockwork.FakeClock) {
	fake := clockwork.NewFakeClock()
	return New(cfg, fake, testLogger()), fake
}

func sector(id string, lat, lng, probability float64, neighbors ...string) SectorView {
	return SectorView{
		ID:          id,
		Centroid:    domain.Coordinates{Lat: lat, Lng: lng},
		Neighbors:   neighbors,
		Probability: probability,
	}
}

// northChain builds sectors in a south-to-north line, spacingDeg degrees of
// latitude apart, each adjacent to its predecessor and successor.
func northChain(spacingDeg float64, probabilities ...float64) map[string]SectorView {
	ids := []string{"s0", "s1", "s2", "s3", "s4", "s5"}[:len(probabilities)]
	sectors := make(map[string]SectorView, len(ids))
	for i, id := range ids {
		var neighbors []string
		if i > 0 {
			neighbors = append(neighbors, ids[i-1])
		}
		if i < len(ids)-1 {
			neighbors = append(neighbors, ids[i+1])
		}
		sectors[id] = sector(id, 30.0+float64(i)*spacingDeg, 78.0, probabilities[i], neighbors...)
	}
	return sectors
}

// northWind blows toward the north at the given speed, pushing weather from
// s0 up the chain.
func northWind(speed float64) domain.WindData {
	return domain.WindData{Speed: speed, Direction: 0}
}

func TestScheduleCascade_BelowThreshold(t *testing.T) {
	s, _ := newTestScheduler(Config{})
	sectors := northChain(0.03, 29.9, 0)

	stored := s.ScheduleCascade("s0", sectors, northWind(5))
	assert.Empty(t, stored)
	assert.Empty(t, s.Pending())
}

func TestScheduleCascade_UnknownSource(t *testing.T) {
	s, _ := newTestScheduler(Config{})
	stored := s.ScheduleCascade("nope", northChain(0.03, 80, 0), northWind(5))
	assert.Empty(t, stored)
}

func TestScheduleCascade_SingleHopFields(t *testing.T) {
	s, fake := newTestScheduler(Config{MaxHops: 1})
	sectors := northChain(0.03, 80, 0) // ~3.3 km apart
	wind := northWind(5)

	stored := s.ScheduleCascade("s0", sectors, wind)
	require.Len(t, stored, 1)

	event := stored[0]
	assert.Equal(t, "s0", event.SourceSectorID)
	assert.Equal(t, "s1", event.TargetSectorID)

	// Target is directly downwind: wind factor at its ceiling.
	assert.InDelta(t, 1.0, event.WindFactor, 1e-6)
	assert.Greater(t, event.DistanceDecay, 0.0)
	assert.Less(t, event.DistanceDecay, 1.0)
	assert.InDelta(t, 80*event.WindFactor*event.DistanceDecay, event.Probability, 1e-9)

	// ~3.3 km at 5 m/s is ~11 minutes.
	assert.InDelta(t, 11.1, event.DelayMinutes, 0.5)
	wantDue := fake.Now().Add(time.Duration(event.DelayMinutes * float64(time.Minute)))
	assert.WithinDuration(t, wantDue, event.ScheduledTime.Time, time.Second)
}

func TestScheduleCascade_WindAlignmentMatters(t *testing.T) {
	// One source with neighbors due north and due south; wind blowing north.
	sectors := map[string]SectorView{
		"src":   sector("src", 30.00, 78.0, 80, "north", "south"),
		"north": sector("north", 30.03, 78.0, 0, "src"),
		"south": sector("south", 29.97, 78.0, 0, "src"),
	}

	s, _ := newTestScheduler(Config{MaxHops: 1})
	s.ScheduleCascade("src", sectors, northWind(5))

	pending := s.Pending()
	byTarget := make(map[string]domain.PropagationEvent)
	for _, e := range pending {
		byTarget[e.TargetSectorID] = e
	}

	require.Contains(t, byTarget, "north")
	downwind := byTarget["north"]
	assert.InDelta(t, 1.0, downwind.WindFactor, 1e-6)

	// The upwind neighbor gets a near-zero factor; its event is either
	// pruned as negligible or far weaker than the downwind one.
	if upwind, ok := byTarget["south"]; ok {
		assert.Less(t, upwind.Probability, downwind.Probability/10)
	}
}

func TestScheduleCascade_DistanceDecayMonotonic(t *testing.T) {
	sectors := map[string]SectorView{
		"src":  sector("src", 30.00, 78.0, 90, "near", "far"),
		"near": sector("near", 30.02, 78.0, 0, "src"),
		"far":  sector("far", 30.08, 78.0, 0, "src"),
	}

	s, _ := newTestScheduler(Config{MaxHops: 1})
	s.ScheduleCascade("src", sectors, northWind(5))

	events := s.Pending()
	require.Len(t, events, 2)

	byTarget := map[string]domain.PropagationEvent{}
	for _, e := range events {
		byTarget[e.TargetSectorID] = e
	}
	assert.Greater(t, byTarget["near"].Probability, byTarget["far"].Probability)
	assert.Less(t, byTarget["near"].DelayMinutes, byTarget["far"].DelayMinutes)
}

func TestScheduleCascade_CalmWindNeverArrives(t *testing.T) {
	s, fake := newTestScheduler(Config{MaxHops: 1})
	sectors := northChain(0.03, 80, 0)

	stored := s.ScheduleCascade("s0", sectors, northWind(0))
	require.Len(t, stored, 1)
	assert.GreaterOrEqual(t, stored[0].DelayMinutes, float64(calmDelayMinutes))

	// Even a generous horizon never sees the event come due.
	fake.Advance(48 * time.Hour)
	assert.Empty(t, s.ApplyDue())
	assert.Len(t, s.Pending(), 1)
}

func TestScheduleCascade_MergeKeepsBest(t *testing.T) {
	// The same target scheduled from a weak and a strong pass must end up
	// holding the strong event, regardless of arrival order.
	weak := northChain(0.03, 40, 0)
	strong := northChain(0.03, 70, 0)

	t.Run("weak then strong", func(t *testing.T) {
		s, _ := newTestScheduler(Config{MaxHops: 1})
		s.ScheduleCascade("s0", weak, northWind(5))
		s.ScheduleCascade("s0", strong, northWind(5))

		pending := s.Pending()
		require.Len(t, pending, 1)
		wantProbability := 70 * pending[0].WindFactor * pending[0].DistanceDecay
		assert.InDelta(t, wantProbability, pending[0].Probability, 1e-9)
	})

	t.Run("strong then weak", func(t *testing.T) {
		s, _ := newTestScheduler(Config{MaxHops: 1})
		s.ScheduleCascade("s0", strong, northWind(5))
		stored := s.ScheduleCascade("s0", weak, northWind(5))
		assert.Empty(t, stored, "weaker pass must not replace pending event")

		pending := s.Pending()
		require.Len(t, pending, 1)
		wantProbability := 70 * pending[0].WindFactor * pending[0].DistanceDecay
		assert.InDelta(t, wantProbability, pending[0].Probability, 1e-9)
	})
}

func TestScheduleCascade_MultiHop(t *testing.T) {
	// Six sectors in a line, ~2.2 km apart, wind straight up the chain.
	// With maxHops 4 the cascade reaches s4 but never s5.
	sectors := northChain(0.02, 80, 0, 0, 0, 0, 0)

	s, _ := newTestScheduler(Config{MaxHops: 4})
	s.ScheduleCascade("s0", sectors, northWind(5))

	targets := make(map[string]domain.PropagationEvent)
	var lastProbability = 100.0
	for _, e := range s.Pending() {
		targets[e.TargetSectorID] = e
	}

	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		event, ok := targets[id]
		require.True(t, ok, "expected event for %s", id)
		assert.Less(t, event.Probability, lastProbability,
			"probability must decay along the chain at %s", id)
		lastProbability = event.Probability
	}
	assert.NotContains(t, targets, "s5", "cascade must stop at maxHops")

	// Delay accumulates along the path.
	assert.Greater(t, targets["s4"].DelayMinutes, targets["s1"].DelayMinutes)
}

func TestScheduleCascade_CyclicAdjacencyTerminates(t *testing.T) {
	// A triangle with wind blowing north; every sector neighbors the others.
	sectors := map[string]SectorView{
		"a": sector("a", 30.00, 78.00, 85, "b", "c"),
		"b": sector("b", 30.02, 78.00, 0, "a", "c"),
		"c": sector("c", 30.01, 78.02, 0, "a", "b"),
	}

	s, _ := newTestScheduler(Config{MaxHops: 4})
	stored := s.ScheduleCascade("a", sectors, northWind(5))

	assert.NotEmpty(t, stored)
	assert.LessOrEqual(t, len(s.Pending()), 2, "at most one pending event per target")
}

func TestApplyDue(t *testing.T) {
	sectors := map[string]SectorView{
		"src":  sector("src", 30.00, 78.0, 90, "near", "far"),
		"near": sector("near", 30.02, 78.0, 0, "src"),
		"far":  sector("far", 30.08, 78.0, 0, "src"),
	}

	s, fake := newTestScheduler(Config{MaxHops: 1})
	s.ScheduleCascade("src", sectors, northWind(5))
	require.Len(t, s.Pending(), 2)

	// Nothing is due yet.
	assert.Empty(t, s.ApplyDue())

	// Advance past the near event's delay (~7.4 min) but not the far (~30 min).
	fake.Advance(10 * time.Minute)
	due := s.ApplyDue()
	require.Len(t, due, 1)
	assert.Equal(t, "near", due[0].TargetSectorID)
	assert.Len(t, s.Pending(), 1)

	// Idempotent: a second apply with no time advance changes nothing.
	assert.Empty(t, s.ApplyDue())
	assert.Len(t, s.Pending(), 1)

	fake.Advance(30 * time.Minute)
	due = s.ApplyDue()
	require.Len(t, due, 1)
	assert.Equal(t, "far", due[0].TargetSectorID)
	assert.Empty(t, s.Pending())
}

func TestClear(t *testing.T) {
	s, fake := newTestScheduler(Config{MaxHops: 2})
	s.ScheduleCascade("s0", northChain(0.02, 80, 0, 0), northWind(5))
	require.NotEmpty(t, s.Pending())

	s.Clear()
	assert.Empty(t, s.Pending())

	// Events cancelled before their due time never fire.
	fake.Advance(2 * time.Hour)
	assert.Empty(t, s.ApplyDue())

	// Clearing an empty scheduler is a no-op.
	s.Clear()
	assert.Empty(t, s.Pending())
}
