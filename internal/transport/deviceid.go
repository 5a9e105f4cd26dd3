package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ClientIDPrefix is prepended to the device id to form the MQTT client id.
const ClientIDPrefix = "plant-esp-"

// ErrNoHardwareAddr is returned when no interface has a usable MAC address.
var ErrNoHardwareAddr = errors.New("no hardware address found")

// FormatDeviceID renders a MAC address as 12 upper-case hex characters.
func FormatDeviceID(mac net.HardwareAddr) string {
	return strings.ToUpper(strings.ReplaceAll(mac.String(), ":", ""))
}

// DeviceID derives the device id from the first non-loopback interface with a
// 6-byte hardware address.
func DeviceID() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}
	return deviceIDFrom(ifaces)
}

func deviceIDFrom(ifaces []net.Interface) (string, error) {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) != 6 {
			continue
		}
		return FormatDeviceID(iface.HardwareAddr), nil
	}
	return "", ErrNoHardwareAddr
}

// ClientID returns the MQTT client id for a device.
func ClientID(deviceID string) string {
	return ClientIDPrefix + deviceID
}
