package spatialmath

import (
	"math"

	"github.com/golang/geo/r2"
)

// NormalizeAngle maps an angle in radians onto [-π, π]. It is built on atan2 rather than a modulo
// loop so that its derivative is 1 everywhere except exactly at ±π.
func NormalizeAngle(theta float64) float64 {
	return math.Atan2(math.Sin(theta), math.Cos(theta))
}

// AngleDifference returns the normalized signed angle a - b.
func AngleDifference(a, b float64) float64 {
	return NormalizeAngle(a - b)
}

// RotateR2 rotates p counterclockwise by theta radians about the origin.
func RotateR2(p r2.Point, theta float64) r2.Point {
	sin, cos := math.Sincos(theta)
	return r2.Point{X: cos*p.X - sin*p.Y, Y: sin*p.X + cos*p.Y}
}

// R2AlmostEqual returns whether two points are within epsilon of each other on both axes.
func R2AlmostEqual(a, b r2.Point, epsilon float64) bool {
	return math.Abs(a.X-b.X) <= epsilon && math.Abs(a.Y-b.Y) <= epsilon
}
