// Package kernels embeds the OpenCL C sources shipped with saxpycl.
package kernels

import _ "embed"

// SAXPYEntryPoint is the kernel function defined in SAXPY.
const SAXPYEntryPoint = "SAXPY"

// SAXPY computes y[i] = x[i] + a*y[i] over float buffers.
//
//go:embed saxpy.cl
var SAXPY string
