// Package hardware discovers which encoders are usable on this host.
package hardware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"squeeze-worker/pkg/models"
)

// ErrNotPresent is returned by a probe when the host simply has no hardware
// of its kind. Any other error means the probe itself is broken.
var ErrNotPresent = errors.New("hardware not present")

// Contribution is what a single vendor probe adds to the capabilities.
type Contribution struct {
	Encoders []models.EncoderKind
	Devices  []models.Device
}

// Probe detects one family of accelerators.
type Probe interface {
	Name() string
	Probe(ctx context.Context, env Environment) (Contribution, error)
}

// CommandRunner runs an external tool and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return out.Bytes(), nil
}

// Environment is the shared context handed to every probe: what ffmpeg
// reports plus how to reach the host.
type Environment struct {
	// Listed is false when ffmpeg could not be queried; probes then rely on
	// their own evidence only.
	Listed   bool
	HWAccels map[string]bool
	Encoders map[string]bool

	Run  CommandRunner
	Root string // filesystem root, "/" outside tests
	GOOS string
}

// HasHWAccel reports whether ffmpeg listed any hwaccel containing one of names.
// Without a listing it answers true so probes fall through to their own checks.
func (e Environment) HasHWAccel(names ...string) bool {
	if !e.Listed {
		return true
	}
	for accel := range e.HWAccels {
		for _, n := range names {
			if strings.Contains(accel, n) {
				return true
			}
		}
	}
	return false
}

func (e Environment) path(p string) string {
	root := e.Root
	if root == "" {
		root = "/"
	}
	return filepath.Join(root, p)
}

func (e Environment) exists(p string) bool {
	_, err := os.Stat(e.path(p))
	return err == nil
}

func (e Environment) glob(pattern string) []string {
	matches, _ := filepath.Glob(e.path(pattern))
	return matches
}

func (e Environment) readFile(p string) (string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// pciVendorPresent scans DRM cards for a PCI vendor id such as 0x10de.
func (e Environment) pciVendorPresent(vendorID string) bool {
	for _, f := range e.glob("sys/class/drm/card*/device/vendor") {
		if v, err := e.readFile(f); err == nil && strings.EqualFold(v, vendorID) {
			return true
		}
	}
	return false
}

// lspciMentions reports whether a display controller line from lspci names vendor.
func (e Environment) lspciMentions(ctx context.Context, vendor string) bool {
	if e.Run == nil {
		return false
	}
	out, err := e.Run(ctx, "lspci")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(strings.ToLower(string(out)), "\n") {
		if !strings.Contains(line, vendor) {
			continue
		}
		if strings.Contains(line, "vga") || strings.Contains(line, "display") || strings.Contains(line, "3d") {
			return true
		}
	}
	return false
}
