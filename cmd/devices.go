package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cwbudde/saxpycl/internal/cl"
	"github.com/cwbudde/saxpycl/internal/pipeline"
)

var (
	devicesBackend string
	devicesType    string
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List compute platforms and their devices",
	RunE:  runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&devicesBackend, "backend", "", "Compute backend: host, opencl (default from config)")
	devicesCmd.Flags().StringVar(&devicesType, "device-type", "", "Device filter (default from config)")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	backend := cfg.Backend
	if cmd.Flags().Changed("backend") {
		backend = devicesBackend
	}
	filter := cfg.DeviceFilter()
	if cmd.Flags().Changed("device-type") {
		dt, err := cl.ParseDeviceType(devicesType)
		if err != nil {
			return err
		}
		filter = dt
	}

	driver, cleanup, err := cl.NewDriver(backend)
	if err != nil {
		return err
	}
	defer cleanup()

	return listDevices(cmd.OutOrStdout(), pipeline.NewRuntime(driver, logger), filter)
}

// listDevices prints every platform and the devices passing filter. Only a
// runtime without platforms is an error.
func listDevices(out io.Writer, rt *pipeline.Runtime, filter cl.DeviceType) error {
	platforms, err := rt.Platforms()
	if err != nil {
		return err
	}

	p := newPainter(out)
	for i, platform := range platforms {
		fmt.Fprintf(out, "%s %s (%s, %s)\n",
			p.paint(titleStyle, fmt.Sprintf("Platform %d:", i+1)), platform.Name, platform.Vendor, platform.Version)

		devices, err := rt.Devices(platform, filter)
		if errors.Is(err, pipeline.ErrNoDevice) {
			fmt.Fprintf(out, "  no %s devices\n\n", filter)
			continue
		}
		if err != nil {
			slog.Warn("Device enumeration failed", "platform", platform.Name, "error", err)
			fmt.Fprintf(out, "  %s\n\n", p.status(false, err.Error()))
			continue
		}

		t := newTable(p, "#", "NAME", "TYPE", "UNITS", "GLOBAL MEM", "MAX ALLOC")
		for j, d := range devices {
			t.Row(
				strconv.Itoa(j+1),
				d.Name,
				string(d.Type),
				strconv.FormatUint(uint64(d.MaxComputeUnits), 10),
				humanize.IBytes(d.GlobalMemSize),
				humanize.IBytes(d.MaxMemAllocSize),
			)
		}
		fmt.Fprintln(out, t.String())
		fmt.Fprintln(out)
	}
	return nil
}
