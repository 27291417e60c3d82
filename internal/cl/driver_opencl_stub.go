//go:build !gpu

package cl

import "fmt"

// ErrNotBuilt indicates the binary was built without native OpenCL support.
var ErrNotBuilt = fmt.Errorf("opencl support requires building with '-tags gpu'")

type openCLDriver struct {
	Driver
}

func newOpenCLDriver() (*openCLDriver, error) {
	return nil, ErrNotBuilt
}

// Close is a no-op without native OpenCL support.
func (d *openCLDriver) Close() {}
