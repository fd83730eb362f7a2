package serialcomm

import (
	"strconv"

	"go.bug.st/serial/enumerator"
)

// UnknownDeviceIdentifier is reported for ports without a USB product ID.
const UnknownDeviceIdentifier = "unknown"

// allow tests to override external dependencies
var getDetailedPortsList = enumerator.GetDetailedPortsList

// PortInfo describes a serial port as reported by the OS.
type PortInfo struct {
	Name         string
	IsUSB        bool
	HasUSBIDs    bool
	VendorID     uint16
	ProductID    uint16
	SerialNumber string
	Product      string
}

// DeviceIdentifier returns the USB product ID in hexadecimal, or "unknown".
func (pi PortInfo) DeviceIdentifier() string {
	if !pi.HasUSBIDs {
		return UnknownDeviceIdentifier
	}
	return strconv.FormatUint(uint64(pi.ProductID), 16)
}

func portInfoFromDetails(d *enumerator.PortDetails) PortInfo {
	info := PortInfo{
		Name:         d.Name,
		IsUSB:        d.IsUSB,
		SerialNumber: d.SerialNumber,
		Product:      d.Product,
	}
	if !d.IsUSB {
		return info
	}
	vid, verr := strconv.ParseUint(d.VID, 16, 16)
	pid, perr := strconv.ParseUint(d.PID, 16, 16)
	if verr == nil && perr == nil {
		info.VendorID = uint16(vid)
		info.ProductID = uint16(pid)
		info.HasUSBIDs = true
	}
	return info
}

// ListDevices returns the serial ports the OS currently exposes. It never
// prompts and never fails: when enumeration is unavailable the list is empty.
func ListDevices() []PortInfo {
	details, err := getDetailedPortsList()
	if err != nil {
		return []PortInfo{}
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		ports = append(ports, portInfoFromDetails(d))
	}
	return ports
}

// lookupPortInfo returns what the enumerator knows about name, or a bare
// PortInfo when the port is not listed.
func lookupPortInfo(name string) PortInfo {
	for _, p := range ListDevices() {
		if p.Name == name {
			return p
		}
	}
	return PortInfo{Name: name}
}
