// Package identity derives the device identifier sent with every alert.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
)

// ID is the lowercase hex device identifier.
type ID string

func (id ID) String() string { return string(id) }

// FromHardwareID hex-encodes raw identifier bytes.
func FromHardwareID(raw []byte) ID {
	return ID(hex.EncodeToString(raw))
}

// Parse normalizes a textual hex identifier to lowercase. Separators such as
// ':' and '-' are removed.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\x00")
	s = strings.NewReplacer(":", "", "-", "").Replace(s)
	s = strings.ToLower(s)
	if s == "" {
		return "", errors.New("identity: empty identifier")
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return "", fmt.Errorf("identity: %q is not hexadecimal", s)
		}
	}
	return ID(s), nil
}

// Sources are tried in order; swapped in tests.
var (
	serialNumberPaths = []string{
		"/sys/firmware/devicetree/base/serial-number",
		"/proc/device-tree/serial-number",
	}
	machineIDPaths = []string{
		"/etc/machine-id",
		"/var/lib/dbus/machine-id",
	}
	readFileFn   = os.ReadFile
	interfacesFn = net.Interfaces
)

// Source names where an ID came from, for logging.
type Source string

const (
	SourceOverride  Source = "override"
	SourceSerial    Source = "serial-number"
	SourceMAC       Source = "mac"
	SourceMachineID Source = "machine-id"
)

// Derive walks the hardware sources and returns the first usable identifier.
// A non-empty override wins and must itself be hexadecimal.
func Derive(override string) (ID, Source, error) {
	if strings.TrimSpace(override) != "" {
		id, err := Parse(override)
		if err != nil {
			return "", "", fmt.Errorf("device.id: %w", err)
		}
		return id, SourceOverride, nil
	}
	if id, ok := fromFiles(serialNumberPaths); ok {
		return id, SourceSerial, nil
	}
	if id, ok := fromInterfaces(); ok {
		return id, SourceMAC, nil
	}
	if id, ok := fromFiles(machineIDPaths); ok {
		return id, SourceMachineID, nil
	}
	return "", "", errors.New("identity: no hardware identifier available")
}

func fromFiles(paths []string) (ID, bool) {
	for _, p := range paths {
		b, err := readFileFn(p)
		if err != nil {
			continue
		}
		id, err := Parse(string(b))
		if err != nil {
			continue
		}
		// An all-zero serial means the firmware did not fill it in.
		if strings.Trim(string(id), "0") == "" {
			continue
		}
		return id, true
	}
	return "", false
}

func fromInterfaces() (ID, bool) {
	ifaces, err := interfacesFn()
	if err != nil {
		return "", false
	}
	for _, iface := range ifaces {
		if (iface.Flags & net.FlagLoopback) != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		zero := true
		for _, b := range iface.HardwareAddr {
			if b != 0 {
				zero = false
				break
			}
		}
		if zero {
			continue
		}
		return FromHardwareID(iface.HardwareAddr), true
	}
	return "", false
}

// Resolver computes the identity once and returns the same value afterwards.
type Resolver struct {
	Override string

	once   sync.Once
	id     ID
	source Source
	err    error
}

func (r *Resolver) Resolve() (ID, Source, error) {
	r.once.Do(func() {
		r.id, r.source, r.err = Derive(r.Override)
	})
	return r.id, r.source, r.err
}
