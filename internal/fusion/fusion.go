// Package fusion computes a sector's cloudburst probability and confidence
// from ground weather, rainfall, and optional aerial readings, and detects
// in-progress cloudbursts from rainfall and pressure trends.
package fusion

import (
	"math"
	"time"

	"github.com/couchcryptid/cloudburst-engine/internal/domain"
)

// Standard sea-level pressure reference for the pressure factor, hPa.
const referencePressureHPa = 1013.0

// Weights of the three ground factors in the weighted sum.
const (
	rainfallWeight = 0.5
	pressureWeight = 0.3
	humidityWeight = 0.2
)

// aerialConfidence is the fixed confidence assigned to aerial estimates.
// Aerial sensors sample in-cloud and are treated as more reliable than any
// ground freshness score.
const aerialConfidence = 0.85

// Input bundles the sensor readings available for one sector. Any field may
// be nil; the engine degrades rather than failing.
type Input struct {
	Weather  *domain.WeatherReading
	Rainfall *domain.RainfallReading
	Aerial   *domain.AerialReading
}

// Estimate is the fused output for one sector.
type Estimate struct {
	Probability float64                 // [0, 100]
	Confidence  float64                 // [0, 1]
	Source      domain.PredictionSource // which feeds contributed
}

// Fuse combines whatever readings exist into a probability estimate.
// With both ground and aerial data the result is a 40/60 weighted blend with
// root-mean-square confidence; with neither, probability and confidence are
// zero and the source is marked unavailable.
func Fuse(in Input) Estimate {
	hasGround := in.Weather != nil || in.Rainfall != nil

	var ground Estimate
	if hasGround {
		ground = groundEstimate(in.Weather, in.Rainfall)
	}

	if in.Aerial == nil {
		if !hasGround {
			return Estimate{Source: domain.SourceUnavailable}
		}
		ground.Source = domain.SourceGround
		return ground
	}

	aerial := aerialEstimate(*in.Aerial)
	if !hasGround {
		// Aerial-only still counts as an aerial-augmented estimate; there is
		// no separate source tier for it.
		aerial.Source = domain.SourceGroundAerial
		return aerial
	}

	return Estimate{
		Probability: clampProbability(0.4*ground.Probability + 0.6*aerial.Probability),
		Confidence:  math.Sqrt((ground.Confidence*ground.Confidence + aerial.Confidence*aerial.Confidence) / 2),
		Source:      domain.SourceGroundAerial,
	}
}

// groundEstimate scores rainfall rate, pressure deficit, and humidity.
func groundEstimate(weather *domain.WeatherReading, rainfall *domain.RainfallReading) Estimate {
	var rainFactor, pressFactor, humidFactor float64
	if rainfall != nil {
		rainFactor = RainfallFactor(rainfall.Rate)
	}
	if weather != nil {
		pressFactor = PressureFactor(weather.Pressure)
		humidFactor = HumidityFactor(weather.Humidity)
	}

	return Estimate{
		Probability: weightedProbability(rainFactor, pressFactor, humidFactor),
		Confidence:  groundConfidence(weather, rainfall),
	}
}

// aerialEstimate reuses the ground formula with aerial substitutes: PWV for
// rainfall and a temperature-inversion proxy for the pressure deficit.
func aerialEstimate(r domain.AerialReading) Estimate {
	return Estimate{
		Probability: weightedProbability(
			PWVFactor(r.PWV),
			InversionFactor(r.Temperature, r.Humidity),
			HumidityFactor(r.Humidity),
		),
		Confidence: aerialConfidence,
	}
}

func weightedProbability(rainLike, pressureLike, humidityLike float64) float64 {
	return clampProbability(
		rainfallWeight*rainLike + pressureWeight*pressureLike + humidityWeight*humidityLike,
	)
}

// groundConfidence scores data freshness additively: each present source
// contributes a 0.1 baseline, plus 0.4 when under 5 minutes old or 0.2 when
// under 15. Two fresh sources reach the 1.0 ceiling.
func groundConfidence(weather *domain.WeatherReading, rainfall *domain.RainfallReading) float64 {
	var score float64
	if weather != nil {
		score += 0.1 + freshnessBonus(weather.Timestamp)
	}
	if rainfall != nil {
		score += 0.1 + freshnessBonus(rainfall.Timestamp)
	}
	return math.Min(score, 1)
}

func freshnessBonus(ts domain.Timestamp) float64 {
	age := ts.Age()
	switch {
	case age < 5*time.Minute:
		return 0.4
	case age < 15*time.Minute:
		return 0.2
	default:
		return 0
	}
}

// RainfallFactor maps rainfall rate in mm/hr to [0, 100], saturating at
// 100 mm/hr (the cloudburst threshold).
func RainfallFactor(rate float64) float64 {
	return clampProbability(math.Min(rate/100, 1) * 100)
}

// PressureFactor maps the deficit below standard pressure to [0, 100];
// a 50 hPa deficit saturates the factor.
func PressureFactor(pressure float64) float64 {
	return clampProbability(math.Max(0, (referencePressureHPa-pressure)/50) * 100)
}

// HumidityFactor maps relative humidity percent to [0, 100].
func HumidityFactor(humidity float64) float64 {
	return clampProbability(humidity)
}

// PWVFactor maps precipitable water vapor in mm to [0, 100], saturating at
// 50 mm. Substitutes for the rainfall factor in aerial estimates.
func PWVFactor(pwv float64) float64 {
	return clampProbability(math.Min(pwv/50, 1) * 100)
}

// InversionFactor is a coarse temperature-inversion proxy: cold saturated air
// aloft (below 10°C at over 80% humidity) scores 80, anything else 40.
// Substitutes for the pressure factor in aerial estimates.
func InversionFactor(temperature, humidity float64) float64 {
	if temperature < 10 && humidity > 80 {
		return 80
	}
	return 40
}

func clampProbability(p float64) float64 {
	return math.Max(0, math.Min(100, p))
}
