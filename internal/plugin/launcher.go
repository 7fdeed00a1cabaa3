package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/roach88/deckd/internal/device"
)

// RegisterEvent is the event name plugins are told to register with.
const RegisterEvent = "registerPlugin"

// Launcher starts plugin processes pointed at the hub.
type Launcher struct {
	// Port is the hub's WebSocket port.
	Port int
	// GOOS selects the platform; empty means runtime.GOOS.
	GOOS string
	// Devices reports the devices to include in -info.
	Devices func() []device.Info
	// Start runs a prepared command. Defaults to (*exec.Cmd).Start.
	Start func(*exec.Cmd) error
	// Wait reaps a started command. Defaults to (*exec.Cmd).Wait.
	Wait func(*exec.Cmd) error
}

// Args returns the command line arguments passed to every plugin.
func (l *Launcher) Args(pluginUUID, info string) []string {
	return []string{
		"-port", strconv.Itoa(l.Port),
		"-pluginUUID", pluginUUID,
		"-registerEvent", RegisterEvent,
		"-info", info,
	}
}

func (l *Launcher) goos() string {
	if l.GOOS != "" {
		return l.GOOS
	}
	return runtime.GOOS
}

// Command prepares the process for a plugin. Webview plugins have no
// process and yield a nil command.
func (l *Launcher) Command(ctx context.Context, p *Plugin) (*exec.Cmd, Launch, error) {
	launch, err := ResolveLaunch(&p.Manifest, l.goos())
	if err != nil {
		return nil, launch, fmt.Errorf("plugin %s: %w", p.UUID, err)
	}
	if launch.Mode == LaunchWebview {
		return nil, launch, nil
	}

	var devices []device.Info
	if l.Devices != nil {
		devices = l.Devices()
	}
	info, err := MakeInfo(p.UUID, p.Manifest.Version, l.goos(), devices).JSON()
	if err != nil {
		return nil, launch, fmt.Errorf("plugin %s: info: %w", p.UUID, err)
	}
	args := l.Args(p.UUID, info)

	var cmd *exec.Cmd
	if launch.Mode == LaunchWine {
		cmd = exec.CommandContext(ctx, "wine", append([]string{launch.CodePath}, args...)...)
	} else {
		cmd = exec.CommandContext(ctx, p.resolve(launch.CodePath), args...)
	}
	cmd.Dir = p.Dir
	return cmd, launch, nil
}

// StartAll starts every plugin in the catalog. Failures are logged and the
// remaining plugins still start. Each started process is reaped in its own
// goroutine, which logs how it exited. It returns the number of processes
// started.
func (l *Launcher) StartAll(ctx context.Context, c *Catalog) int {
	start := l.Start
	if start == nil {
		start = (*exec.Cmd).Start
	}
	wait := l.Wait
	if wait == nil {
		wait = (*exec.Cmd).Wait
	}

	started := 0
	for _, p := range c.Plugins() {
		cmd, launch, err := l.Command(ctx, p)
		if err != nil {
			slog.Warn("failed to initialise plugin", "plugin", p.UUID, "error", err)
			continue
		}
		if cmd == nil {
			slog.Info("webview plugin not started", "plugin", p.UUID, "code", launch.CodePath)
			continue
		}
		if err := start(cmd); err != nil {
			slog.Warn("failed to start plugin", "plugin", p.UUID, "mode", launch.Mode, "error", err)
			continue
		}
		slog.Info("plugin started", "plugin", p.UUID, "mode", launch.Mode)
		started++
		go reap(p.UUID, cmd, wait)
	}
	return started
}

func reap(uuid string, cmd *exec.Cmd, wait func(*exec.Cmd) error) {
	if err := wait(cmd); err != nil {
		slog.Warn("plugin exited", "plugin", uuid, "error", err)
		return
	}
	slog.Info("plugin exited", "plugin", uuid)
}
