// Package moisture converts raw soil-moisture samples into a percentage.
package moisture

// Default calibration for a capacitive probe on a 12-bit ADC.
const (
	DefaultAir   = 2600
	DefaultWater = 1150
)

// Converter maps raw samples onto 0..100 percent.
// Air is the reading in dry air (0%), Water the reading fully submerged (100%).
type Converter struct {
	Air   int
	Water int
}

// NewConverter returns a converter for the given calibration endpoints.
func NewConverter(air, water int) Converter {
	return Converter{Air: air, Water: water}
}

// Percent interpolates raw between the calibration endpoints and clamps the
// result to [0,100]. Integer arithmetic truncates toward zero.
func (c Converter) Percent(raw int) int {
	if c.Air == c.Water {
		return 0
	}
	p := (raw - c.Air) * 100 / (c.Water - c.Air)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
