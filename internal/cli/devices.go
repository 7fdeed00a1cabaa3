package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/store"
)

// DeviceSummary is the listing entry for one known device.
type DeviceSummary struct {
	device.Info
	SelectedProfile string `json:"selected_profile"`
}

// DevicesResult lists known devices and the serial ports present now.
type DevicesResult struct {
	Devices     []DeviceSummary `json:"devices"`
	SerialPorts []string        `json:"serial_ports"`
}

// NewDevicesCommand creates the devices command.
func NewDevicesCommand(rootOpts *RootOptions) *cobra.Command {
	var listPorts bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices seen by the daemon",
		Long: `List devices seen by the daemon.

Devices are recorded the first time they connect. With --ports the serial
ports currently present are listed as well.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ports []string
			if listPorts {
				var err error
				ports, err = device.ListPorts()
				if err != nil {
					slog.Warn("serial port enumeration failed", "error", err)
				}
			}
			return withStore(rootOpts, cmd, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				return runDevices(ctx, st, f, ports)
			})
		},
	}
	cmd.Flags().BoolVar(&listPorts, "ports", false, "also list serial ports")
	return cmd
}

func runDevices(ctx context.Context, st *store.Store, f *OutputFormatter, ports []string) error {
	infos, err := st.ListDevices(ctx)
	if err != nil {
		return storeError(f, "list devices", err)
	}

	result := DevicesResult{Devices: []DeviceSummary{}, SerialPorts: ports}
	if result.SerialPorts == nil {
		result.SerialPorts = []string{}
	}
	rows := make([][]string, 0, len(infos)+len(ports))
	for _, info := range infos {
		selected, err := st.SelectedProfile(ctx, info.ID)
		if err != nil {
			return storeError(f, "list devices", err)
		}
		result.Devices = append(result.Devices, DeviceSummary{Info: info, SelectedProfile: selected})
		rows = append(rows, []string{
			info.ID,
			info.Name,
			strconv.Itoa(info.Type),
			fmt.Sprintf("%dx%d+%d", info.Layout.Rows, info.Layout.Columns, info.Layout.Dials),
			selected,
		})
	}
	for _, port := range ports {
		rows = append(rows, []string{port, "(serial port)", "", "", ""})
	}
	return f.Table(result, []string{"ID", "NAME", "TYPE", "LAYOUT", "PROFILE"}, rows)
}
