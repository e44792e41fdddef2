package domain

import (
	"github.com/couchcryptid/cloudburst-engine/internal/geo"
)

// Coordinates is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are inside their legal ranges.
func (c Coordinates) Valid() bool {
	return geo.IsValidLatitude(c.Lat) && geo.IsValidLongitude(c.Lng)
}

// NodeStatus is the operational state of a sensor node.
type NodeStatus string

const (
	NodeActive   NodeStatus = "active"
	NodeInactive NodeStatus = "inactive"
)

// SensorNode is a registered ground station. ID, name, and coordinates are
// fixed at registration; only status and lastSeen change afterwards.
type SensorNode struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
	Status      NodeStatus  `json:"status"`
	LastSeen    Timestamp   `json:"lastSeen"`
}

// PredictionSource records which sensor feeds produced a sector's current
// probability estimate.
type PredictionSource string

const (
	SourceGround       PredictionSource = "ground"
	SourceGroundAerial PredictionSource = "ground+aerial"
	SourceUnavailable  PredictionSource = "unavailable"
)

// AlertLevel is the four-tier classification derived from probability.
type AlertLevel string

const (
	LevelNormal   AlertLevel = "normal"
	LevelElevated AlertLevel = "elevated"
	LevelHigh     AlertLevel = "high"
	LevelCritical AlertLevel = "critical"
)

// AlertLevelForProbability derives the alert level from a probability in
// [0, 100]. This is the single source of truth for the tier thresholds.
func AlertLevelForProbability(probability float64) AlertLevel {
	switch {
	case probability < 25:
		return LevelNormal
	case probability < 50:
		return LevelElevated
	case probability < 75:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// DetectionConfidence qualifies a positive cloudburst detection. Empty means
// no detection has been evaluated yet.
type DetectionConfidence string

const (
	DetectionHigh   DetectionConfidence = "high"
	DetectionMedium DetectionConfidence = "medium"
	DetectionLow    DetectionConfidence = "low"
)

// Sector is a polygonal region of responsibility around one sensor node.
// Sectors are produced by partitioning and mutated in place by the fusion
// engine, detector, propagation scheduler, and deployment controller. They
// are only ever removed as part of a full partition regeneration.
type Sector struct {
	ID       string      `json:"id"`
	NodeID   string      `json:"nodeId"`
	Centroid Coordinates `json:"centroid"`
	// Boundary is a closed ring: the last vertex repeats the first.
	Boundary  []Coordinates `json:"boundary"`
	Neighbors []string      `json:"neighbors"`

	CurrentProbability   float64             `json:"currentProbability"`
	Confidence           float64             `json:"confidence"`
	PredictionSource     PredictionSource    `json:"predictionSource"`
	AlertLevel           AlertLevel          `json:"alertLevel"`
	CloudburstDetected   bool                `json:"cloudburstDetected"`
	CloudburstConfidence DetectionConfidence `json:"cloudburstConfidence,omitempty"`
	AerialDeployed       bool                `json:"aerialDeployed"`
	LastUpdated          Timestamp           `json:"lastUpdated"`
}

// WindData is the current regional wind observation.
type WindData struct {
	Speed     float64   `json:"speed"`     // m/s, >= 0
	Direction float64   `json:"direction"` // degrees [0, 360), 0 = north
	Timestamp Timestamp `json:"timestamp"`
}

// WeatherReading is a ground station's ambient observation.
type WeatherReading struct {
	Temperature float64   `json:"temperature"` // °C
	Pressure    float64   `json:"pressure"`    // hPa
	Humidity    float64   `json:"humidity"`    // percent
	Timestamp   Timestamp `json:"timestamp"`
}

// RainfallReading is a ground station's rain-gauge observation.
type RainfallReading struct {
	Rate      float64   `json:"rate"` // mm/hr
	Timestamp Timestamp `json:"timestamp"`
}

// AerialReading is an observation from an airborne unit over a sector.
type AerialReading struct {
	Altitude    float64   `json:"altitude"`    // meters AGL
	Temperature float64   `json:"temperature"` // °C
	Pressure    float64   `json:"pressure"`    // hPa
	Humidity    float64   `json:"humidity"`    // percent
	PWV         float64   `json:"pwv"`         // precipitable water vapor, mm
	Timestamp   Timestamp `json:"timestamp"`
}

// PropagationEvent is a scheduled, delayed probability transfer from one
// sector to a downwind neighbor. Events are ephemeral: created by the
// scheduler, then either applied once due or discarded when superseded.
type PropagationEvent struct {
	SourceSectorID string    `json:"sourceSectorId"`
	TargetSectorID string    `json:"targetSectorId"`
	Probability    float64   `json:"probability"`
	WindFactor     float64   `json:"windFactor"`
	DistanceDecay  float64   `json:"distanceDecay"`
	DelayMinutes   float64   `json:"delayMinutes"`
	ScheduledTime  Timestamp `json:"scheduledTime"`
}

// UnitStatus is an aerial unit's position in its deployment cycle.
type UnitStatus string

const (
	UnitStandby    UnitStatus = "standby"
	UnitDeploying  UnitStatus = "deploying"
	UnitActive     UnitStatus = "active"
	UnitDescending UnitStatus = "descending"
)

// AerialUnit is a deployable airborne sensor platform. A unit occupies
// exactly one status at a time; state transitions are the only mutation path.
type AerialUnit struct {
	ID               string      `json:"id"`
	Status           UnitStatus  `json:"status"`
	AssignedSectorID string      `json:"assignedSectorId,omitempty"`
	Position         Coordinates `json:"position"`
	Altitude         float64     `json:"altitude"`     // meters AGL
	AscentRate       float64     `json:"ascentRate"`   // m/s, negative while descending
	BatteryLevel     float64     `json:"batteryLevel"` // percent [0, 100]
	LastTransition   Timestamp   `json:"lastTransition"`
}

// AlertType identifies what caused an alert.
type AlertType string

const (
	AlertCloudburstDetected AlertType = "cloudburst_detected"
	AlertLevelRaised        AlertType = "alert_level_raised"
	AlertAerialDeployed     AlertType = "aerial_deployed"
	AlertAerialRecalled     AlertType = "aerial_recalled"
)

// Alert is an immutable record of a notable transition. Only the
// acknowledgement fields change after creation, and only once.
type Alert struct {
	ID          string     `json:"id"`
	SectorID    string     `json:"sectorId"`
	Type        AlertType  `json:"type"`
	Severity    AlertLevel `json:"severity"`
	Message     string     `json:"message"`
	Probability float64    `json:"probability"`
	Timestamp   Timestamp  `json:"timestamp"`

	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedBy string    `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt Timestamp `json:"acknowledgedAt,omitzero"`
}
