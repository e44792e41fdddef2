// Package geo provides the spherical and planar geometry primitives used by
// the partitioner and the propagation scheduler: great-circle distance,
// bearings, an equirectangular projection for local planar work, and
// bounding-box math.
//
// All functions are pure. Invalid coordinates propagate NaN rather than
// returning errors; callers validate with IsValidLatitude/IsValidLongitude
// before doing arithmetic.
package geo

import "math"

// earthRadiusKM is the mean Earth radius used for all spherical math.
const earthRadiusKM = 6371.0

// IsValidLatitude reports whether lat is a real number in [-90, 90].
func IsValidLatitude(lat float64) bool {
	return !math.IsNaN(lat) && lat >= -90 && lat <= 90
}

// IsValidLongitude reports whether lng is a real number in [-180, 180].
func IsValidLongitude(lng float64) bool {
	return !math.IsNaN(lng) && lng >= -180 && lng <= 180
}

// HaversineDistance returns the great-circle distance in kilometers between
// two points given in decimal degrees.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	radLat1 := lat1 * math.Pi / 180
	radLat2 := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(radLat1)*math.Cos(radLat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

// Bearing returns the initial great-circle bearing in degrees [0, 360) from
// the first point to the second. 0 is north, 90 is east.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	radLat1 := lat1 * math.Pi / 180
	radLat2 := lat2 * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(deltaLon) * math.Cos(radLat2)
	x := math.Cos(radLat1)*math.Sin(radLat2) -
		math.Sin(radLat1)*math.Cos(radLat2)*math.Cos(deltaLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// AngleDifference returns the smallest absolute difference between two
// bearings in degrees, always in [0, 180].
func AngleDifference(a, b float64) float64 {
	diff := math.Mod(math.Abs(a-b), 360)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// Destination returns the point reached by traveling distanceKM from the
// given origin along the given bearing (degrees, 0 = north).
func Destination(lat, lng, bearingDeg, distanceKM float64) (float64, float64) {
	radLat := lat * math.Pi / 180
	radLng := lng * math.Pi / 180
	radBearing := bearingDeg * math.Pi / 180
	angular := distanceKM / earthRadiusKM

	destLat := math.Asin(math.Sin(radLat)*math.Cos(angular) +
		math.Cos(radLat)*math.Sin(angular)*math.Cos(radBearing))
	destLng := radLng + math.Atan2(
		math.Sin(radBearing)*math.Sin(angular)*math.Cos(radLat),
		math.Cos(angular)-math.Sin(radLat)*math.Sin(destLat),
	)

	lngDeg := destLng * 180 / math.Pi
	if lngDeg > 180 {
		lngDeg -= 360
	} else if lngDeg < -180 {
		lngDeg += 360
	}
	return destLat * 180 / math.Pi, lngDeg
}

// ToProjected maps a lat/lng pair onto a local planar frame in kilometers
// using an equirectangular approximation. centerLat sets the parallel along
// which longitudes are scaled; valid for regions that do not cross a pole or
// the antimeridian.
func ToProjected(lat, lng, centerLat float64) (x, y float64) {
	x = lng * math.Cos(centerLat*math.Pi/180) * math.Pi / 180 * earthRadiusKM
	y = lat * math.Pi / 180 * earthRadiusKM
	return x, y
}

// FromProjected inverts ToProjected for the same centerLat.
func FromProjected(x, y, centerLat float64) (lat, lng float64) {
	lat = y / earthRadiusKM * 180 / math.Pi
	lng = x / (math.Cos(centerLat*math.Pi/180) * earthRadiusKM) * 180 / math.Pi
	return lat, lng
}

// Bounds is a latitude/longitude axis-aligned bounding box.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// CenterLat returns the latitude midline of the bounds, the reference
// parallel for projection.
func (b Bounds) CenterLat() float64 {
	return (b.MinLat + b.MaxLat) / 2
}

// BoundsFromCoordinates returns the tightest bounds containing every given
// point. ok is false when the input is empty.
func BoundsFromCoordinates(lats, lngs []float64) (Bounds, bool) {
	if len(lats) == 0 || len(lats) != len(lngs) {
		return Bounds{}, false
	}
	b := Bounds{
		MinLat: lats[0], MaxLat: lats[0],
		MinLng: lngs[0], MaxLng: lngs[0],
	}
	for i := 1; i < len(lats); i++ {
		b.MinLat = math.Min(b.MinLat, lats[i])
		b.MaxLat = math.Max(b.MaxLat, lats[i])
		b.MinLng = math.Min(b.MinLng, lngs[i])
		b.MaxLng = math.Max(b.MaxLng, lngs[i])
	}
	return b, true
}

// PadBounds grows the bounds outward by the given distance in kilometers on
// every side. Latitude padding is constant; longitude padding widens with
// latitude so the padded box stays roughly paddingKM wide on the ground.
func PadBounds(b Bounds, paddingKM float64) Bounds {
	latPad := paddingKM / 111.0
	cosLat := math.Cos(b.CenterLat() * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lngPad := paddingKM / (111.0 * cosLat)

	return Bounds{
		MinLat: math.Max(b.MinLat-latPad, -90),
		MaxLat: math.Min(b.MaxLat+latPad, 90),
		MinLng: math.Max(b.MinLng-lngPad, -180),
		MaxLng: math.Min(b.MaxLng+lngPad, 180),
	}
}
