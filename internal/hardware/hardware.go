// Package hardware provides the moisture sensor and light actuator drivers.
package hardware

import "errors"

var (
	// ErrClosed indicates the driver has been closed.
	ErrClosed = errors.New("driver closed")

	// ErrBadResponse indicates the device answered with something unexpected.
	ErrBadResponse = errors.New("unexpected device response")
)

// Sensor samples the soil-moisture probe.
type Sensor interface {
	// ReadRaw returns one raw ADC sample.
	ReadRaw() (int, error)
}

// Actuator drives the grow light's PWM output.
type Actuator interface {
	// SetDuty writes a duty level; 0 is off.
	SetDuty(duty uint8) error
}

// Driver is a combined sensor and actuator.
type Driver interface {
	Sensor
	Actuator
	Close() error
}
