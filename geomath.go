package citynet

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	earthRadiusMeters = 6370986.884258304
	pi180             = math.Pi / 180.0
	pi180Rev          = 180.0 / math.Pi
)

// degreesToRadians deg = r * pi / 180
func degreesToRadians(d float64) float64 {
	return d * pi180
}

// radiansToDegrees r = deg * 180 / pi
func radiansToDegrees(d float64) float64 {
	return d * pi180Rev
}

// greatCircleDistance returns distance between two geo-points (meters)
func greatCircleDistance(p, q orb.Point) float64 {
	lat1 := degreesToRadians(p.Y())
	lon1 := degreesToRadians(p.X())
	lat2 := degreesToRadians(q.Y())
	lon2 := degreesToRadians(q.X())
	diffLat := lat2 - lat1
	diffLon := lon2 - lon1
	a := math.Pow(math.Sin(diffLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(diffLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return c * earthRadiusMeters
}

// lineLength returns length of given line (meters)
func lineLength(line orb.LineString) float64 {
	totalLength := 0.0
	if len(line) < 2 {
		return totalLength
	}
	for i := 1; i < len(line); i++ {
		totalLength += greatCircleDistance(line[i-1], line[i])
	}
	return totalLength
}

// middlePointSegment returns middle point for given segment
func middlePointSegment(p, q orb.Point) orb.Point {
	lat1 := degreesToRadians(p.Y())
	lon1 := degreesToRadians(p.X())
	lat2 := degreesToRadians(q.Y())
	lon2 := degreesToRadians(q.X())

	bx := math.Cos(lat2) * math.Cos(lon2-lon1)
	by := math.Cos(lat2) * math.Sin(lon2-lon1)

	latMid := math.Atan2(math.Sin(lat1)+math.Sin(lat2), math.Sqrt((math.Cos(lat1)+bx)*(math.Cos(lat1)+bx)+by*by))
	lonMid := lon1 + math.Atan2(by, math.Cos(lat1)+bx)
	return orb.Point{radiansToDegrees(lonMid), radiansToDegrees(latMid)}
}

// lineBearing returns planar angle (degrees, counter-clockwise from east,
// normalized to [0, 360)) between first and last points of the line, using
// the same local equirectangular projection as distancePointToSegment.
// Raw degree deltas would skew diagonal bearings by up to ~12 degrees at
// mid latitudes.
func lineBearing(line orb.LineString) float64 {
	if len(line) < 2 {
		return 0.0
	}
	start, end := line[0], line[len(line)-1]
	cosLat := math.Cos(degreesToRadians(start.Y()))
	angle := radiansToDegrees(math.Atan2(end.Y()-start.Y(), (end.X()-start.X())*cosLat))
	if angle < 0 {
		angle += 360.0
	}
	return angle
}

// CardinalDirection is a compass bucket of an edge bearing used to pair
// count-station approach columns with inbound edges.
type CardinalDirection uint8

const (
	DIRECTION_EB = CardinalDirection(iota + 1)
	DIRECTION_NB
	DIRECTION_WB
	DIRECTION_SB
)

func (iotaIdx CardinalDirection) String() string {
	return [...]string{"eb", "nb", "wb", "sb"}[iotaIdx-1]
}

var cardinalCenters = map[CardinalDirection]float64{
	DIRECTION_EB: 0.0,
	DIRECTION_NB: 90.0,
	DIRECTION_WB: 180.0,
	DIRECTION_SB: 270.0,
}

// cardinalDirection assigns a compass bucket for the angle. Buckets are 90
// degrees wide, widened by epsilon on both sides; an angle outside every
// widened bucket falls back to the closest bucket center.
func cardinalDirection(angle, epsilon float64) CardinalDirection {
	switch {
	case angle < 45+epsilon || angle >= 315-epsilon:
		return DIRECTION_EB
	case 45-epsilon <= angle && angle < 135+epsilon:
		return DIRECTION_NB
	case 135-epsilon <= angle && angle < 225+epsilon:
		return DIRECTION_WB
	case 225-epsilon <= angle && angle < 315+epsilon:
		return DIRECTION_SB
	}
	best := DIRECTION_EB
	bestDiff := math.Inf(1)
	for dir, center := range cardinalCenters {
		diff := math.Abs(angle - center)
		if 360-diff < diff {
			diff = 360 - diff
		}
		if diff < bestDiff || (diff == bestDiff && dir < best) {
			best = dir
			bestDiff = diff
		}
	}
	return best
}

// oppositeDirection returns the reverse compass bucket.
func oppositeDirection(dir CardinalDirection) CardinalDirection {
	switch dir {
	case DIRECTION_EB:
		return DIRECTION_WB
	case DIRECTION_WB:
		return DIRECTION_EB
	case DIRECTION_NB:
		return DIRECTION_SB
	default:
		return DIRECTION_NB
	}
}

// distancePointToSegment returns the distance (meters) between a point and
// the closest position on segment a-b, using a local equirectangular
// projection around the point. Accurate at municipal scales.
func distancePointToSegment(p, a, b orb.Point) float64 {
	cosLat := math.Cos(degreesToRadians(p.Y()))
	ax := (a.X() - p.X()) * cosLat
	ay := a.Y() - p.Y()
	bx := (b.X() - p.X()) * cosLat
	by := b.Y() - p.Y()

	dx := bx - ax
	dy := by - ay
	lengthSq := dx*dx + dy*dy
	t := 0.0
	if lengthSq > 0 {
		t = -(ax*dx + ay*dy) / lengthSq
		t = math.Max(0.0, math.Min(1.0, t))
	}
	cx := ax + t*dx
	cy := ay + t*dy
	return math.Sqrt(cx*cx+cy*cy) * metersPerDegree
}

// distancePointToLine returns the distance (meters) between a point and the
// closest position on the line.
func distancePointToLine(p orb.Point, line orb.LineString) float64 {
	if len(line) == 0 {
		return math.Inf(1)
	}
	if len(line) == 1 {
		return greatCircleDistance(p, line[0])
	}
	best := math.Inf(1)
	for i := 1; i < len(line); i++ {
		best = math.Min(best, distancePointToSegment(p, line[i-1], line[i]))
	}
	return best
}

// bearingDelta returns the signed angle difference (degrees) normalized to
// (-180, 180].
func bearingDelta(from, to float64) float64 {
	delta := to - from
	for delta <= -180.0 {
		delta += 360.0
	}
	for delta > 180.0 {
		delta -= 360.0
	}
	return delta
}
