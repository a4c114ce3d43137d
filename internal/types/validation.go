package types

// Physical ranges accepted from field devices.
const (
	MinMoisturePct    = 0.0
	MaxMoisturePct    = 100.0
	MinTemperatureC   = -20.0
	MaxTemperatureC   = 60.0
	MaxDeviceIDLength = 64
)

// ClampPercent bounds v to [0, 100].
func ClampPercent(v float64) float64 {
	switch {
	case v < MinMoisturePct:
		return MinMoisturePct
	case v > MaxMoisturePct:
		return MaxMoisturePct
	}
	return v
}

// ValidMonth reports whether m is a calendar month number.
func ValidMonth(m int) bool {
	return m >= 1 && m <= 12
}
