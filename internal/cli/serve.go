package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/deckd/internal/config"
	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/engine"
	"github.com/roach88/deckd/internal/hub"
	"github.com/roach88/deckd/internal/plugin"
	"github.com/roach88/deckd/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	SerialPorts []string
	NoPlugins   bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the device daemon",
		Long: `Run the device daemon.

Opens the profile database, starts the plugin WebSocket hub, launches every
plugin in the plugins directory and reads input from the configured serial
devices until interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.SerialPorts, "serial", nil, "serial ports with ProntoKey pads (adds to serial_ports)")
	cmd.Flags().BoolVar(&opts.NoPlugins, "no-plugins", false, "do not launch plugin processes")

	return cmd
}

// daemon wires the long-running components together.
type daemon struct {
	cfg      *config.Config
	store    *store.Store
	catalog  *plugin.Catalog
	registry *device.Registry
	hub      *hub.Hub
	engine   *engine.Engine
}

// newDaemon connects registry, hub and engine. Nothing runs until run.
func newDaemon(cfg *config.Config, st *store.Store, catalog *plugin.Catalog, opener engine.Opener) *daemon {
	d := &daemon{
		cfg:      cfg,
		store:    st,
		catalog:  catalog,
		registry: device.NewRegistry(),
	}

	d.hub = hub.New(nil)
	d.engine = engine.New(st, d.hub,
		engine.WithOpener(opener),
		engine.WithPlugins(d.pluginUUIDs),
	)

	d.hub.SetHandler(func(_ context.Context, m hub.Message) {
		d.engine.Enqueue(engine.InboundEvent(engine.Inbound{
			FromInspector: m.Kind == hub.PeerInspector,
			Source:        m.ID,
			Data:          m.Data,
		}))
	})
	d.registry.Subscribe(func(c device.Change) {
		if c.Connected {
			d.engine.Enqueue(engine.DeviceConnectedEvent(c.Info))
		} else {
			d.engine.Enqueue(engine.DeviceDisconnectedEvent(c.Info))
		}
	})
	return d
}

func (d *daemon) pluginUUIDs() []string {
	plugins := d.catalog.Plugins()
	out := make([]string, len(plugins))
	for i, p := range plugins {
		out[i] = p.UUID
	}
	return out
}

func (d *daemon) sink(in device.Input) {
	d.engine.Enqueue(engine.InputEvent(in))
}

// serveSerial drives one pad until ctx ends.
func (d *daemon) serveSerial(ctx context.Context, name string) {
	port, err := device.OpenPort(name)
	if err != nil {
		slog.Error("failed to open serial port", "port", name, "error", err)
		return
	}
	slog.Info("serial port opened", "port", name)
	if err := device.RunProntoKey(ctx, port, d.registry, d.sink); err != nil {
		slog.Error("serial device failed", "port", name, "error", err)
	}
}

// run blocks until ctx is cancelled. The engine runs on the calling
// goroutine; hub and serial readers run alongside it.
func (d *daemon) run(ctx context.Context, ports []string, launch bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	hubErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.hub.ListenAndServe(ctx, d.cfg.Addr()); err != nil {
			hubErr <- err
			cancel()
		}
	}()
	slog.Info("hub listening", "addr", d.cfg.Addr())

	if launch {
		launcher := &plugin.Launcher{Port: d.cfg.Port, Devices: d.registry.List}
		started := launcher.StartAll(ctx, d.catalog)
		slog.Info("plugins started", "count", started, "available", len(d.catalog.Plugins()))
	}

	for _, name := range ports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.serveSerial(ctx, name)
		}()
	}

	err := d.engine.Run(ctx)
	cancel()
	wg.Wait()

	select {
	case herr := <-hubErr:
		return fmt.Errorf("hub: %w", herr)
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	cfg, err := loadConfig(opts.RootOptions, f)
	if err != nil {
		return err
	}
	setupLogging(opts.RootOptions, cfg)

	slog.Info("opening database", "path", cfg.Database)
	st, err := openStore(cfg, f)
	if err != nil {
		return err
	}
	defer closeStore(st)

	catalog, err := plugin.Scan(cfg.PluginsDir)
	if err != nil {
		slog.Warn("no plugins loaded", "dir", cfg.PluginsDir, "error", err)
		catalog = plugin.NewCatalog()
	}

	d := newDaemon(cfg, st, catalog, OpenURL)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ports := append(append([]string{}, cfg.SerialPorts...), opts.SerialPorts...)
	fmt.Fprintf(cmd.OutOrStdout(), "deckd listening on %s. Press Ctrl-C to stop.\n", cfg.Addr())

	if err := d.run(ctx, ports, !opts.NoPlugins); err != nil {
		_ = f.Error(ErrCodeGeneric, fmt.Sprintf("daemon error: %v", err), nil)
		return WrapExitError(ExitFailure, "daemon error", err)
	}

	slog.Info("daemon stopped gracefully")
	return nil
}
