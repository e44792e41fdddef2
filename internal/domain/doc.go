// Package domain models the cloudburst monitoring domain: sensor nodes,
// Voronoi sectors, wind and aerial observations, propagation events, aerial
// units, and alerts.
//
// # Probability and confidence
//
// Cloudburst probability is a float in [0, 100]; confidence is a float in
// [0, 1]. Probability alone drives the four-tier alert level:
//
//	<25 normal | <50 elevated | <75 high | ≥75 critical
//
// The derivation lives in [AlertLevelForProbability] and is the only place
// the thresholds are defined; a sector's alertLevel is never set directly.
//
// # Sensor data conventions
//
// Rainfall rate is mm/hr. Pressure is hPa (sea-level standard 1013).
// Humidity is a percentage. Wind speed is m/s with direction in degrees
// [0, 360), 0 = north, following meteorological bearing convention. PWV
// (precipitable water vapor) is mm, reported only by aerial sensors.
//
// # Timestamps
//
// Data crossing the store boundary carries timestamps as either ISO-8601
// strings or Unix-epoch milliseconds, depending on which upstream service
// wrote it. [Timestamp] accepts both on decode and always encodes RFC 3339
// UTC, so everything internal works with plain time.Time.
//
// # Identity
//
// Sector IDs are derived from the owning node ID ("sector-<nodeID>") so a
// partition regeneration over the same node set produces stable IDs. Alert
// and aerial-unit IDs are random UUIDs assigned at creation.
package domain
