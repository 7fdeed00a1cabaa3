package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// LaunchMode is how a plugin's code is run.
type LaunchMode string

const (
	LaunchNative  LaunchMode = "native"
	LaunchWine    LaunchMode = "wine"
	LaunchWebview LaunchMode = "webview"
)

// ErrUnsupportedPlatform is returned when a plugin cannot run on this OS.
var ErrUnsupportedPlatform = errors.New("plugin unsupported on platform")

// Launch is the resolved way to start a plugin.
type Launch struct {
	Mode     LaunchMode
	CodePath string
}

// Platform maps a GOOS value to the manifest platform name.
func Platform(goos string) string {
	switch goos {
	case "darwin":
		return "mac"
	default:
		return goos
	}
}

// ResolveLaunch picks the code path for goos. A manifest that lists the
// current platform runs natively, preferring the platform specific code path.
// Otherwise a manifest that lists windows runs under Wine. HTML code paths
// are reported as webview plugins.
func ResolveLaunch(m *Manifest, goos string) (Launch, error) {
	platform := Platform(goos)

	codePath := m.CodePath
	supported := false
	wine := false

	for _, os := range m.OS {
		if os.Platform == platform {
			if override := m.platformCodePath(platform); override != "" {
				codePath = override
			}
			supported = true
			wine = false
			break
		}
		if os.Platform == "windows" {
			supported = true
			wine = true
		}
	}

	if codePath == "" && wine {
		codePath = m.CodePathWin
	}
	if !supported || codePath == "" {
		return Launch{}, fmt.Errorf("%w %s", ErrUnsupportedPlatform, platform)
	}

	switch {
	case strings.HasSuffix(strings.ToLower(codePath), ".html"):
		return Launch{Mode: LaunchWebview, CodePath: codePath}, nil
	case wine:
		return Launch{Mode: LaunchWine, CodePath: codePath}, nil
	default:
		return Launch{Mode: LaunchNative, CodePath: codePath}, nil
	}
}

func (m *Manifest) platformCodePath(platform string) string {
	switch platform {
	case "windows":
		return m.CodePathWin
	case "mac":
		return m.CodePathMac
	case "linux":
		return m.CodePathLin
	}
	return ""
}
