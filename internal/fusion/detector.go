package fusion

import (
	"sort"
	"time"

	"github.com/couchcryptid/cloudburst-engine/internal/domain"
)

// CloudburstRainfallThreshold is the rainfall rate in mm/hr above which a
// cloudburst is considered in progress. The comparison is strictly greater:
// exactly 100 mm/hr does not trip detection.
const CloudburstRainfallThreshold = 100.0

// RapidPressureDropThreshold is the pressure-drop rate in hPa/hr that
// upgrades a detection to high confidence.
const RapidPressureDropThreshold = 3.0

// Detection is the detector verdict for one sector. Rates are echoed back
// even on a negative verdict so operators can watch the approach to
// threshold.
type Detection struct {
	Detected         bool                       `json:"detected"`
	Confidence       domain.DetectionConfidence `json:"confidence"`
	RainfallRate     float64                    `json:"rainfallRate"`
	PressureDropRate float64                    `json:"pressureDropRate"`
}

// Detect evaluates the cloudburst criteria for the given rainfall rate
// (mm/hr) and pressure-drop rate (hPa/hr, positive = falling).
func Detect(rainfallRate, pressureDropRate float64) Detection {
	d := Detection{
		RainfallRate:     rainfallRate,
		PressureDropRate: pressureDropRate,
	}

	if rainfallRate > CloudburstRainfallThreshold {
		d.Detected = true
		if pressureDropRate > RapidPressureDropThreshold {
			d.Confidence = domain.DetectionHigh
		} else {
			d.Confidence = domain.DetectionMedium
		}
		return d
	}

	d.Confidence = domain.DetectionLow
	return d
}

// PressureTrend is a rolling window of pressure samples for one sector, used
// to derive the drop rate the detector consumes. Samples older than the
// window are discarded on every Record.
type PressureTrend struct {
	window  time.Duration
	samples []pressureSample
}

type pressureSample struct {
	pressure float64
	at       time.Time
}

// NewPressureTrend creates a trend tracker keeping samples for the given
// window (typically an hour).
func NewPressureTrend(window time.Duration) *PressureTrend {
	return &PressureTrend{window: window}
}

// Record appends a sample and evicts everything older than the window.
// Out-of-order samples are kept sorted so replayed store reads don't corrupt
// the rate.
func (p *PressureTrend) Record(pressure float64, at time.Time) {
	p.samples = append(p.samples, pressureSample{pressure: pressure, at: at})
	sort.Slice(p.samples, func(i, j int) bool {
		return p.samples[i].at.Before(p.samples[j].at)
	})

	newest := p.samples[len(p.samples)-1].at
	cutoff := newest.Add(-p.window)
	firstKept := 0
	for firstKept < len(p.samples)-1 && p.samples[firstKept].at.Before(cutoff) {
		firstKept++
	}
	p.samples = p.samples[firstKept:]
}

// DropRate returns the pressure fall in hPa/hr across the window:
// (oldest - newest) / hours. Positive means pressure is falling. Returns 0
// until two samples with distinct timestamps exist.
func (p *PressureTrend) DropRate() float64 {
	if len(p.samples) < 2 {
		return 0
	}
	oldest := p.samples[0]
	newest := p.samples[len(p.samples)-1]

	hours := newest.at.Sub(oldest.at).Hours()
	if hours <= 0 {
		return 0
	}
	return (oldest.pressure - newest.pressure) / hours
}
