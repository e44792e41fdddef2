// Command seed populates the realtime store with a development sensor
// network: a grid of ground stations around a center point, a regional wind
// observation, and baseline readings. One station can be given
// cloudburst-grade readings to light up the monitoring pipeline.
//
// Usage:
//
//	go run ./cmd/seed \
//	  -redis localhost:6379 \
//	  -nodes 9 \
//	  -center-lat 30.32 -center-lng 78.03 \
//	  -wind-speed 5 -wind-direction 0 \
//	  -storm-node nd-1
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/couchcryptid/cloudburst-engine/internal/adapter/redisstore"
	"github.com/couchcryptid/cloudburst-engine/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	nodeCount := flag.Int("nodes", 9, "number of sensor nodes to register")
	centerLat := flag.Float64("center-lat", 30.32, "grid center latitude")
	centerLng := flag.Float64("center-lng", 78.03, "grid center longitude")
	spacingKM := flag.Float64("spacing", 5, "grid spacing in km")
	windSpeed := flag.Float64("wind-speed", 5, "wind speed in m/s")
	windDirection := flag.Float64("wind-direction", 0, "wind direction in degrees, 0 = toward north")
	stormNode := flag.String("storm-node", "", "node ID to seed with cloudburst-grade readings")
	flag.Parse()

	if *nodeCount < 1 {
		return fmt.Errorf("-nodes must be at least 1, got %d", *nodeCount)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := redisstore.NewFromAddr(ctx, *redisAddr, "", 0)
	if err != nil {
		return err
	}
	defer store.Close()

	now := domain.NewTimestamp(time.Now())

	if err := store.PutWind(ctx, domain.WindData{
		Speed:     *windSpeed,
		Direction: *windDirection,
		Timestamp: now,
	}); err != nil {
		return err
	}

	side := int(math.Ceil(math.Sqrt(float64(*nodeCount))))
	latStep := *spacingKM / 111.0
	lngStep := *spacingKM / (111.0 * math.Cos(*centerLat*math.Pi/180))

	seeded := 0
	for row := 0; row < side && seeded < *nodeCount; row++ {
		for col := 0; col < side && seeded < *nodeCount; col++ {
			seeded++
			id := fmt.Sprintf("nd-%d", seeded)
			node := domain.SensorNode{
				ID:   id,
				Name: fmt.Sprintf("station %d", seeded),
				Coordinates: domain.Coordinates{
					Lat: *centerLat + (float64(row)-float64(side-1)/2)*latStep,
					Lng: *centerLng + (float64(col)-float64(side-1)/2)*lngStep,
				},
				Status:   domain.NodeActive,
				LastSeen: now,
			}
			if err := store.PutNode(ctx, node); err != nil {
				return err
			}

			weather := domain.WeatherReading{Temperature: 24, Pressure: 1009, Humidity: 65, Timestamp: now}
			rainfall := domain.RainfallReading{Rate: 2, Timestamp: now}
			if id == *stormNode {
				weather = domain.WeatherReading{Temperature: 21, Pressure: 985, Humidity: 95, Timestamp: now}
				rainfall = domain.RainfallReading{Rate: 120, Timestamp: now}
			}
			if err := store.PutWeather(ctx, id, weather); err != nil {
				return err
			}
			if err := store.PutRainfall(ctx, id, rainfall); err != nil {
				return err
			}
		}
	}

	if *stormNode != "" {
		found := false
		for i := 1; i <= seeded; i++ {
			if fmt.Sprintf("nd-%d", i) == *stormNode {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("-storm-node %q is not among the seeded nodes", *stormNode)
		}
	}

	log.Printf("seeded %d nodes around (%.4f, %.4f), wind %.1f m/s toward %.0f°",
		seeded, *centerLat, *centerLng, *windSpeed, *windDirection)
	if *stormNode != "" {
		log.Printf("storm readings on %s", *stormNode)
	}
	return nil
}
