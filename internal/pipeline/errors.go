package pipeline

import (
	"errors"
	"fmt"

	"github.com/cwbudde/saxpycl/internal/cl"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StagePlatform Stage = "platform enumeration"
	StageDevice   Stage = "device enumeration"
	StageContext  Stage = "context creation"
	StageProgram  Stage = "program creation"
	StageBuild    Stage = "program build"
	StageKernel   Stage = "kernel creation"
	StageBuffer   Stage = "buffer creation"
	StageQueue    Stage = "queue creation"
	StageSetArg   Stage = "kernel argument"
	StageEnqueue  Stage = "kernel enqueue"
	StageReadBack Stage = "read-back"
)

var (
	// ErrNoPlatform is returned when the runtime reports zero platforms.
	ErrNoPlatform = errors.New("no OpenCL platform found")
	// ErrNoDevice is returned when the chosen platform has no matching device.
	ErrNoDevice = errors.New("no OpenCL devices found")

	ErrPlatformEnumeration = errors.New("platform enumeration failed")
	ErrDeviceEnumeration   = errors.New("device enumeration failed")
	ErrContextCreation     = errors.New("context creation failed")
	ErrProgramCreation     = errors.New("program creation failed")
	ErrBuild               = errors.New("program build failed")
	ErrKernelCreation      = errors.New("kernel creation failed")
	ErrBufferCreation      = errors.New("buffer creation failed")
	ErrQueueCreation       = errors.New("queue creation failed")
	ErrSetArg              = errors.New("kernel argument binding failed")
	ErrEnqueue             = errors.New("kernel enqueue failed")
	ErrReadBack            = errors.New("read-back failed")
)

var stageSentinels = map[Stage]error{
	StagePlatform: ErrPlatformEnumeration,
	StageDevice:   ErrDeviceEnumeration,
	StageContext:  ErrContextCreation,
	StageProgram:  ErrProgramCreation,
	StageBuild:    ErrBuild,
	StageKernel:   ErrKernelCreation,
	StageBuffer:   ErrBufferCreation,
	StageQueue:    ErrQueueCreation,
	StageSetArg:   ErrSetArg,
	StageEnqueue:  ErrEnqueue,
	StageReadBack: ErrReadBack,
}

// StageError wraps the runtime status a pipeline stage failed with.
// errors.Is matches the stage's sentinel (ErrBuild, ErrEnqueue, ...) as well
// as the underlying cl.Status.
type StageError struct {
	Stage Stage
	Code  cl.Status
	// Log holds the compiler output when Stage is StageBuild.
	Log string
	Err error
}

func (e *StageError) Error() string {
	if e.Err == nil || e.Err == error(e.Code) {
		return fmt.Sprintf("%s: %s", e.Stage, e.Code.Error())
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Code
}

func (e *StageError) Is(target error) bool {
	sentinel, ok := stageSentinels[e.Stage]
	return ok && target == sentinel
}

func stageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Code: cl.StatusOf(err), Err: err}
}
