package deployment

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cloudburst-engine/internal/alert"
	"github.com/couchcryptid/cloudburst-engine/internal/domain"
)

const testSector = "sector-n1"

var testPosition = domain.Coordinates{Lat: 30.32, Lng: 78.03}

func newTestController(t *testing.T) (*Controller, *clockwork.FakeClock, *alert.Manager) {
	t.Helper()
	fake := clockwork.NewFakeClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	alerts := alert.NewManager(fake, logger)
	return NewController(DefaultConfig(), fake, logger, alerts), fake, alerts
}

// sustain observes the probability and holds it past the sustain window.
func sustain(c *Controller, fake *clockwork.FakeClock, probability float64) {
	c.ObserveProbability(testSector, probability)
	fake.Advance(35 * time.Second)
	c.ObserveProbability(testSector, probability)
}

func TestEvaluateDeploy_SpecScenarios(t *testing.T) {
	t.Run("sustained probability with calm wind deploys", func(t *testing.T) {
		c, fake, _ := newTestController(t)
		sustain(c, fake, 60)

		d := c.EvaluateDeploy(testSector, 60, 5)
		assert.True(t, d.ShouldDeploy)
		assert.Empty(t, d.Reason)
	})

	t.Run("high wind blocks launch", func(t *testing.T) {
		c, fake, _ := newTestController(t)
		sustain(c, fake, 60)

		d := c.EvaluateDeploy(testSector, 60, 20)
		assert.False(t, d.ShouldDeploy)
		assert.Contains(t, d.Reason, "wind speed")
	})
}

func TestEvaluateDeploy_Conditions(t *testing.T) {
	t.Run("probability below threshold", func(t *testing.T) {
		c, fake, _ := newTestController(t)
		sustain(c, fake, 60)

		d := c.EvaluateDeploy(testSector, 40, 5)
		assert.False(t, d.ShouldDeploy)
		assert.Contains(t, d.Reason, "below deployment threshold")
	})

	t.Run("not sustained long enough", func(t *testing.T) {
		c, fake, _ := newTestController(t)
		c.ObserveProbability(testSector, 60)
		fake.Advance(10 * time.Second)

		d := c.EvaluateDeploy(testSector, 60, 5)
		assert.False(t, d.ShouldDeploy)
		assert.Contains(t, d.Reason, "sustained")
	})

	t.Run("dip below threshold resets the timer", func(t *testing.T) {
		c, fake, _ := newTestController(t)
		c.ObserveProbability(testSector, 60)
		fake.Advance(25 * time.Second)
		c.ObserveProbability(testSector, 45) // dip
		fake.Advance(10 * time.Second)
		c.ObserveProbability(testSector, 60)

		d := c.EvaluateDeploy(testSector, 60, 5)
		assert.False(t, d.ShouldDeploy, "sustain window must restart after a dip")
	})

	t.Run("wind at exactly the limit is unsafe", func(t *testing.T) {
		c, fake, _ := newTestController(t)
		sustain(c, fake, 60)

		d := c.EvaluateDeploy(testSector, 60, 15)
		assert.False(t, d.ShouldDeploy)
		assert.Contains(t, d.Reason, "wind speed")
	})

	t.Run("unit already assigned", func(t *testing.T) {
		c, fake, _ := newTestController(t)
		sustain(c, fake, 60)

		_, d := c.Deploy(testSector, testPosition, 60, 5)
		require.True(t, d.ShouldDeploy)

		d = c.EvaluateDeploy(testSector, 60, 5)
		assert.False(t, d.ShouldDeploy)
		assert.Contains(t, d.Reason, "already assigned")
	})
}

func TestDeploy(t *testing.T) {
	c, fake, alerts := newTestController(t)
	sustain(c, fake, 60)

	unit, d := c.Deploy(testSector, testPosition, 60, 5)
	require.True(t, d.ShouldDeploy)
	require.NotNil(t, unit)

	assert.Equal(t, domain.UnitDeploying, unit.Status)
	assert.Equal(t, testSector, unit.AssignedSectorID)
	assert.Equal(t, testPosition, unit.Position)
	assert.Equal(t, 100.0, unit.BatteryLevel)
	assert.Equal(t, 2.5, unit.AscentRate)

	// Deployment emitted an alert.
	list := alerts.List()
	require.Len(t, list, 1)
	assert.Equal(t, domain.AlertAerialDeployed, list[0].Type)
	assert.Equal(t, testSector, list[0].SectorID)
}

func TestDeploy_RejectedDoesNotCreateUnit(t *testing.T) {
	c, _, alerts := newTestController(t)

	unit, d := c.Deploy(testSector, testPosition, 20, 5)
	assert.Nil(t, unit)
	assert.False(t, d.ShouldDeploy)
	assert.Empty(t, c.Units())
	assert.Empty(t, alerts.List())
}

func TestFullDeploymentCycle(t *testing.T) {
	c, fake, alerts := newTestController(t)
	sustain(c, fake, 60)

	unit, d := c.Deploy(testSector, testPosition, 60, 5)
	require.True(t, d.ShouldDeploy)

	// Ascent: 400 m at 2.5 m/s is 160 s. Halfway up, still deploying.
	fake.Advance(80 * time.Second)
	assert.Empty(t, c.Tick())
	got, ok := c.UnitForSector(testSector)
	require.True(t, ok)
	assert.Equal(t, domain.UnitDeploying, got.Status)
	assert.InDelta(t, 200, got.Altitude, 1)

	// Complete the ascent.
	fake.Advance(80 * time.Second)
	transitions := c.Tick()
	require.Len(t, transitions, 1)
	assert.Equal(t, Transition{
		UnitID: unit.ID, SectorID: testSector,
		From: domain.UnitDeploying, To: domain.UnitActive,
	}, transitions[0])

	got, _ = c.UnitForSector(testSector)
	assert.Equal(t, domain.UnitActive, got.Status)
	assert.Equal(t, 400.0, got.Altitude)

	// Recall and descend: 400 m at 2 m/s is 200 s.
	recalled, err := c.Recall(unit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UnitDescending, recalled.Status)
	assert.Equal(t, -2.0, recalled.AscentRate)

	fake.Advance(100 * time.Second)
	assert.Empty(t, c.Tick())

	fake.Advance(110 * time.Second)
	transitions = c.Tick()
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.UnitStandby, transitions[0].To)

	// Back on standby the unit is unassigned and the sector is free again.
	_, ok = c.UnitForSector(testSector)
	assert.False(t, ok)
	units := c.Units()
	require.Len(t, units, 1)
	assert.Equal(t, domain.UnitStandby, units[0].Status)
	assert.Empty(t, units[0].AssignedSectorID)
	assert.Zero(t, units[0].Altitude)

	// Alerts: one for deploy, one for recall.
	types := []domain.AlertType{}
	for _, a := range alerts.List() {
		types = append(types, a.Type)
	}
	assert.ElementsMatch(t, []domain.AlertType{domain.AlertAerialDeployed, domain.AlertAerialRecalled}, types)
}

func TestRecall_Errors(t *testing.T) {
	c, fake, _ := newTestController(t)

	_, err := c.Recall("missing")
	assert.ErrorIs(t, err, ErrUnitNotFound)

	sustain(c, fake, 60)
	unit, d := c.Deploy(testSector, testPosition, 60, 5)
	require.True(t, d.ShouldDeploy)

	// Still ascending: not recallable yet.
	_, err = c.Recall(unit.ID)
	assert.ErrorIs(t, err, ErrNotRecallable)
}

func TestTick_BatteryFloorForcesRecall(t *testing.T) {
	c, fake, alerts := newTestController(t)
	sustain(c, fake, 60)

	unit, d := c.Deploy(testSector, testPosition, 60, 5)
	require.True(t, d.ShouldDeploy)

	// Reach active.
	fake.Advance(160 * time.Second)
	require.Len(t, c.Tick(), 1)

	// Drain below the 15% floor: at 0.5%/min that takes 170 min.
	fake.Advance(175 * time.Minute)
	transitions := c.Tick()
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.UnitDescending, transitions[0].To)
	assert.Equal(t, unit.ID, transitions[0].UnitID)

	var recallAlert *domain.Alert
	for _, a := range alerts.List() {
		if a.Type == domain.AlertAerialRecalled {
			recallAlert = &a
			break
		}
	}
	require.NotNil(t, recallAlert)
	assert.Contains(t, recallAlert.Message, "battery")
}
