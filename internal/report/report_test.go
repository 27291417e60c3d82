package report

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cwbudde/saxpycl/internal/cl"
	"github.com/cwbudde/saxpycl/internal/pipeline"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no platform", pipeline.ErrNoPlatform, "No OpenCL platform found"},
		{"no device wrapped", fmt.Errorf("run: %w", pipeline.ErrNoDevice), "No OpenCL devices found"},
		{
			"build failure",
			&pipeline.StageError{Stage: pipeline.StageBuild, Code: cl.BuildProgramFailure, Err: cl.BuildProgramFailure},
			"OpenCL call failed with error -11 (program build: CL_BUILD_PROGRAM_FAILURE)",
		},
		{
			"enqueue failure",
			&pipeline.StageError{Stage: pipeline.StageEnqueue, Code: cl.InvalidKernelArgs},
			"OpenCL call failed with error -52 (kernel enqueue: CL_INVALID_KERNEL_ARGS)",
		},
		{"other", errors.New("config file broken"), "Error: config file broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestCheck(t *testing.T) {
	var out bytes.Buffer
	code := -1
	r := &Reporter{Out: &out, Exit: func(c int) { code = c }}

	r.Check(nil)
	assert.Equal(t, -1, code, "nil must not exit")
	assert.Empty(t, out.String())

	r.Check(pipeline.ErrNoPlatform)
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, "No OpenCL platform found\n", out.String())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(pipeline.ErrBuild))
}
