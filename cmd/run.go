package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/saxpycl/internal/cl"
	"github.com/cwbudde/saxpycl/internal/config"
	"github.com/cwbudde/saxpycl/internal/pipeline"
	"github.com/cwbudde/saxpycl/internal/store"
)

var (
	kernelPath   string
	entryPoint   string
	buildOptions string
	backendName  string
	deviceType   string
	outPath      string
	runDataDir   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the SAXPY pipeline once",
	Long: `Runs y = x + 2*y over 1024 elements on the first device of the first
platform, reads the result back and verifies it against the host.

Flags override the matching config keys.`,
	RunE: runSAXPY,
}

func init() {
	runCmd.Flags().StringVar(&kernelPath, "kernel", "", "Kernel source path (default kernels/saxpy.cl, \"\" for the embedded copy)")
	runCmd.Flags().StringVar(&entryPoint, "entry", "", "Kernel entry point (default SAXPY)")
	runCmd.Flags().StringVar(&buildOptions, "build-options", "", "Options passed to the kernel compiler")
	runCmd.Flags().StringVar(&backendName, "backend", "", "Compute backend: host, opencl")
	runCmd.Flags().StringVar(&deviceType, "device-type", "", "Device filter: all, gpu, cpu, accelerator, default")
	runCmd.Flags().StringVar(&outPath, "out", "", "Write the run record as JSON to this path")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Also store the run record under <dir>/runs/")

	rootCmd.AddCommand(runCmd)
}

func runSAXPY(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("kernel") {
		cfg.Kernel.Path = kernelPath
	}
	if flags.Changed("entry") {
		cfg.Kernel.EntryPoint = entryPoint
	}
	if flags.Changed("build-options") {
		cfg.Kernel.BuildOptions = buildOptions
	}
	if flags.Changed("backend") {
		cfg.Backend = backendName
	}
	if flags.Changed("device-type") {
		cfg.DeviceType = deviceType
	}
	if flags.Changed("out") {
		cfg.Output.Path = outPath
	}
	if flags.Changed("data-dir") {
		cfg.Output.Dir = runDataDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	_, err := executeRun(cmd.OutOrStdout(), cfg, logger)
	return err
}

// executeRun runs the pipeline described by c, verifies the output, prints
// a summary to out and persists the record where configured. A verification
// failure is returned after the record has been written.
func executeRun(out io.Writer, c *config.Config, log *slog.Logger) (*store.Record, error) {
	if log == nil {
		log = slog.Default()
	}

	source, err := pipeline.LoadKernelSource(c.Kernel.Path)
	if err != nil {
		return nil, err
	}

	backend := cl.NormalizeBackend(c.Backend)
	driver, cleanup, err := cl.NewDriver(string(backend))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	log.Info("Starting SAXPY", "backend", backend, "device_type", c.DeviceFilter(), "entry", c.Kernel.EntryPoint)

	start := time.Now()
	rt := pipeline.NewRuntime(driver, log)
	res, err := rt.RunSAXPY(pipeline.Options{
		Source:       source,
		EntryPoint:   c.Kernel.EntryPoint,
		BuildOptions: c.Kernel.BuildOptions,
		DeviceType:   c.DeviceFilter(),
		Progress:     out,
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	a, b := pipeline.TestVectors(pipeline.ElementCount)
	verifyErr := pipeline.Verify(res.Output, pipeline.ExpectedSAXPY(a, b, pipeline.Scalar))

	rec := &store.Record{
		RunID:      res.RunID,
		Timestamp:  time.Now(),
		Backend:    string(backend),
		Platform:   res.Platforms[0].Name,
		Device:     res.Device.Name,
		EntryPoint: c.Kernel.EntryPoint,
		Elements:   len(res.Output),
		Scalar:     pipeline.Scalar,
		Verified:   verifyErr == nil,
		Output:     res.Output,
	}

	log.Info("SAXPY finished", "run", rec.RunID, "elapsed", elapsed, "verified", rec.Verified)

	if err := saveRecord(c, rec); err != nil {
		return rec, err
	}

	p := newPainter(out)
	if verifyErr != nil {
		fmt.Fprintf(out, "%s %v\n", p.status(false, "FAILED"), verifyErr)
		return rec, verifyErr
	}
	fmt.Fprintf(out, "%s %d elements on %s in %s\n",
		p.status(true, "PASSED"), rec.Elements, p.paint(titleStyle, rec.Device), elapsed.Round(time.Microsecond))
	return rec, nil
}

func saveRecord(c *config.Config, rec *store.Record) error {
	if c.Output.Path != "" {
		if err := store.WriteRecordFile(c.Output.Path, rec); err != nil {
			return fmt.Errorf("failed to write run record: %w", err)
		}
		slog.Info("Wrote run record", "path", c.Output.Path)
	}

	if c.Output.Dir != "" {
		fs, err := store.NewFSStore(c.Output.Dir)
		if err != nil {
			return fmt.Errorf("failed to open record store: %w", err)
		}
		if err := fs.SaveRecord(rec); err != nil {
			return fmt.Errorf("failed to store run record: %w", err)
		}
	}
	return nil
}
