package rodsession

import (
	"strings"

	"github.com/go-rod/rod/lib/devices"
)

// ResolveDevice returns the emulated device for a configured name.
// Supported names:
//   - "clear" - No emulation, pages fill the window (default)
//   - "laptop" or "laptop-mdpi" - LaptopWithMDPIScreen (1280x800)
//   - "laptop-hidpi" - LaptopWithHiDPIScreen
//   - "iphone-x", "ipad", "pixel-2", "galaxy-s5"
//
// Unknown names fall back to clear.
func ResolveDevice(name string) devices.Device {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "laptop", "laptop-mdpi":
		return devices.LaptopWithMDPIScreen
	case "laptop-hidpi":
		return devices.LaptopWithHiDPIScreen
	case "iphone-x":
		return devices.IPhoneX
	case "ipad":
		return devices.IPad
	case "pixel-2":
		return devices.Pixel2
	case "galaxy-s5":
		return devices.GalaxyS5
	}
	return devices.Clear
}
