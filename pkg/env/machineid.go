package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

const machineIDApp = "iebus.go"

// MachineID returns a stable ID of this machine, hashed per application
// so the raw machine ID is not published. The hostname is used if the
// machine ID is unavailable.
func MachineID() string {
	id, err := machineid.ProtectedID(machineIDApp)
	if err == nil && len(id) >= 12 {
		return id[:12]
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "iebus"
}
