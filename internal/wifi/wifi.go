// Package wifi brings up the station-mode uplink through NetworkManager.
package wifi

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// runCommandFn runs a command and returns its combined output; swapped in
// tests.
var runCommandFn = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

const connName = "SOSBeaconClient"

type Config struct {
	SSID       string
	Passphrase string
	Interface  string
	Timeout    time.Duration
}

// Connect joins the configured network on the client interface and waits
// at most cfg.Timeout for NetworkManager to report the result.
func Connect(ctx context.Context, cfg Config) error {
	if strings.TrimSpace(cfg.SSID) == "" {
		return fmt.Errorf("wifi.ssid is required")
	}
	iface := cfg.Interface
	if iface == "" {
		iface = "wlan0"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	// Give nmcli a few seconds beyond its own wait before killing it.
	ctx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	// Ensure the interface is managed so NetworkManager can use it.
	_, _ = runCommandFn(ctx, "nmcli", "dev", "set", iface, "managed", "yes")

	// Delete any stale profile to avoid duplicates; it may not exist.
	_, _ = runCommandFn(ctx, "nmcli", "con", "delete", connName)

	// 'device wifi connect' auto-detects the security settings.
	args := []string{
		"--wait", strconv.Itoa(int(timeout.Round(time.Second) / time.Second)),
		"device", "wifi", "connect", cfg.SSID,
		"ifname", iface,
		"name", connName,
	}
	if cfg.Passphrase != "" {
		args = append(args, "password", cfg.Passphrase)
	}
	if out, err := runCommandFn(ctx, "nmcli", args...); err != nil {
		return fmt.Errorf("failed to connect client: %w, output: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Connected reports whether a wifi connection is active on iface.
func Connected(ctx context.Context, iface string) (bool, error) {
	if iface == "" {
		iface = "wlan0"
	}
	out, err := runCommandFn(ctx, "nmcli", "-t", "-f", "NAME,TYPE,DEVICE,STATE", "con", "show", "--active")
	if err != nil {
		return false, fmt.Errorf("nmcli con show: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		parts := strings.Split(strings.TrimSpace(line), ":")
		if len(parts) < 4 {
			continue
		}
		if parts[2] != iface || parts[1] != "802-11-wireless" {
			continue
		}
		return parts[3] == "activated", nil
	}
	return false, nil
}
