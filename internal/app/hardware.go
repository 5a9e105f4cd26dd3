package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plantd/internal/config"
	"github.com/dokzlo13/plantd/internal/hardware"
)

// openDriver opens the configured sensor/actuator driver.
func openDriver(cfg config.HardwareConfig) (hardware.Driver, error) {
	switch cfg.Driver {
	case "serial":
		drv, err := hardware.OpenSerial(cfg.Port, cfg.Baud, cfg.Timeout.Duration())
		if err != nil {
			return nil, err
		}
		return drv, nil
	case "null":
		log.Warn().Int("raw", cfg.NullRaw).Msg("Using null hardware driver")
		return hardware.NewNull(cfg.NullRaw), nil
	default:
		return nil, fmt.Errorf("unknown hardware driver %q", cfg.Driver)
	}
}
