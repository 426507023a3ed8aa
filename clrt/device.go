package clrt

import (
	"fmt"

	"github.com/goclrt/goclrt/hal"
	"github.com/goclrt/goclrt/shader"
	"github.com/pkg/errors"
)

// defaultPrintfBufferSize is used when a device does not specify one.
const defaultPrintfBufferSize = 1024 * 1024

// Limits holds the device capabilities the runtime depends on.
type Limits struct {
	// AddressBits is the width of device pointers, 32 or 64.
	AddressBits uint32

	// MaxMemAlloc is the largest single allocation in bytes.
	MaxMemAlloc uint64

	// MaxBlockSizes is the per-dimension work-group size limit.
	MaxBlockSizes [3]uint32

	// PrintfBufferSize is the byte size of the per-launch debug output
	// buffer.
	PrintfBufferSize uint32
}

// Device is a compute target: a backend screen paired with a shader
// lowerer and its capability limits. Devices are immutable once created
// and may be shared freely.
type Device struct {
	name   string
	screen hal.Screen
	lower  shader.Lowerer
	limits Limits
}

// NewDevice wraps a backend screen and a shader lowerer as a compute
// device. Zero limits are filled with defaults.
func NewDevice(name string, screen hal.Screen, lower shader.Lowerer, limits Limits) (*Device, error) {
	if screen == nil {
		return nil, errors.New("device requires a backend screen")
	}
	if lower == nil {
		return nil, errors.New("device requires a shader lowerer")
	}
	if name == "" {
		name = screen.Name()
	}
	if limits.AddressBits == 0 {
		limits.AddressBits = 64
	}
	if limits.MaxMemAlloc == 0 {
		limits.MaxMemAlloc = 1 << 30
	}
	for i := range limits.MaxBlockSizes {
		if limits.MaxBlockSizes[i] == 0 {
			limits.MaxBlockSizes[i] = 256
		}
	}
	if limits.PrintfBufferSize == 0 {
		limits.PrintfBufferSize = defaultPrintfBufferSize
	}
	return &Device{name: name, screen: screen, lower: lower, limits: limits}, nil
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Limits returns the device capability limits.
func (d *Device) Limits() Limits { return d.limits }

func (d *Device) String() string {
	return fmt.Sprintf("Device(%s)", d.name)
}

func (d *Device) shaderOptions() shader.DeviceOptions {
	return shader.DeviceOptions{
		AddressBits:      d.limits.AddressBits,
		PrintfBufferSize: d.limits.PrintfBufferSize,
	}
}
