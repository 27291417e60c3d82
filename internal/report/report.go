// Package report turns pipeline failures into a console diagnostic and a
// process exit status.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/saxpycl/internal/pipeline"
)

// ExitFailure is the exit status for every failed run.
const ExitFailure = 1

// Reporter prints a failure and ends the process.
type Reporter struct {
	Out  io.Writer
	Exit func(code int)
}

// New returns a Reporter writing to stderr and calling os.Exit.
func New() *Reporter {
	return &Reporter{Out: os.Stderr, Exit: os.Exit}
}

// Check does nothing for a nil error. Otherwise it prints Message(err) and
// exits with ExitCode(err).
func (r *Reporter) Check(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(r.Out, Message(err))
	r.Exit(ExitCode(err))
}

// Message renders err as the single diagnostic line shown to the user.
func Message(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrNoPlatform):
		return "No OpenCL platform found"
	case errors.Is(err, pipeline.ErrNoDevice):
		return "No OpenCL devices found"
	}

	var se *pipeline.StageError
	if errors.As(err, &se) {
		return fmt.Sprintf("OpenCL call failed with error %d (%s: %s)", int32(se.Code), se.Stage, se.Code.String())
	}
	return "Error: " + err.Error()
}

// ExitCode is 0 for nil and ExitFailure otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return ExitFailure
}
