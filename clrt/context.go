// Package clrt implements the command execution and kernel-launch pipeline
// of a GPU compute runtime: memory objects, program builds, kernel argument
// resolution, and per-queue asynchronous command streams ordered by an
// event dependency graph.
//
// The hardware is reached through the adapter contracts in the hal package
// (resource creation, mapping, compute-state launch) and shaders are
// compiled through the shader package (opaque lowering service). Both are
// pluggable; hal/softdev and shader/wgsllower are the in-tree
// implementations.
package clrt

import (
	"math"
	"sync"

	"github.com/goclrt/goclrt/hal"
	"k8s.io/klog/v2"
)

// Context owns a set of devices and the per-device resource-creation
// capability. Memory objects, programs, kernels and queues are all created
// within one context and may not be mixed across contexts.
//
// Contexts are reference counted: Release drops one reference, and the
// final release runs the registered destructor callbacks in reverse
// registration order.
type Context struct {
	devs []*Device

	mu    sync.Mutex
	refs  int
	dtors []func()
}

// NewContext creates a context over the given devices. The returned
// context holds one reference.
func NewContext(devices []*Device) (*Context, error) {
	if len(devices) == 0 {
		return nil, errorf(ErrInvalidArgument, "context requires at least one device")
	}
	for i, d := range devices {
		if d == nil {
			return nil, errorf(ErrInvalidHandle, "device #%d is nil", i)
		}
	}
	devs := make([]*Device, len(devices))
	copy(devs, devices)
	return &Context{devs: devs, refs: 1}, nil
}

// Devices returns the context's devices.
func (c *Context) Devices() []*Device {
	devs := make([]*Device, len(c.devs))
	copy(devs, c.devs)
	return devs
}

func (c *Context) hasDevice(d *Device) bool {
	for _, cd := range c.devs {
		if cd == d {
			return true
		}
	}
	return false
}

// Retain adds a reference to the context.
func (c *Context) Retain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
}

// Release drops one reference. The final release runs destructor callbacks
// in reverse registration order. Releasing an already-destroyed context is
// a no-op.
func (c *Context) Release() {
	c.mu.Lock()
	if c.refs == 0 {
		c.mu.Unlock()
		klog.Errorf("Release called on already-destroyed context")
		return
	}
	c.refs--
	if c.refs > 0 {
		c.mu.Unlock()
		return
	}
	dtors := c.dtors
	c.dtors = nil
	c.mu.Unlock()

	klog.V(2).Infof("destroying context with %d devices", len(c.devs))
	for i := len(dtors) - 1; i >= 0; i-- {
		dtors[i]()
	}
}

// SetDestructorCallback registers fn to run when the context is destroyed.
// Callbacks run in reverse registration order.
func (c *Context) SetDestructorCallback(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dtors = append(c.dtors, fn)
}

// createBuffers allocates one backend buffer per device, optionally
// pre-populated from (and sharing, per the flags) the user slice.
func (c *Context) createBuffers(size uint64, user []byte) (map[*Device]hal.Resource, error) {
	if size == 0 || size > math.MaxUint32 {
		return nil, errorf(ErrInvalidSize, "buffer size %d out of range", size)
	}
	res := make(map[*Device]hal.Resource, len(c.devs))
	for _, d := range c.devs {
		if size > d.limits.MaxMemAlloc {
			return nil, errorf(ErrInvalidSize, "buffer size %d exceeds %s max allocation %d", size, d, d.limits.MaxMemAlloc)
		}
		var (
			r   hal.Resource
			err error
		)
		if user != nil {
			r, err = d.screen.ResourceCreateBufferFromUser(uint32(size), user)
		} else {
			r, err = d.screen.ResourceCreateBuffer(uint32(size))
		}
		if err != nil {
			return nil, errorf(ErrResourceExhaustion, "allocating %d bytes on %s: %v", size, d, err)
		}
		res[d] = r
	}
	return res, nil
}

// createTextures allocates one backend texture per device.
func (c *Context) createTextures(desc *ImageDesc, format hal.Format, user []byte) (map[*Device]hal.Resource, error) {
	res := make(map[*Device]hal.Resource, len(c.devs))
	for _, d := range c.devs {
		var (
			r   hal.Resource
			err error
		)
		if user != nil {
			r, err = d.screen.ResourceCreateTextureFromUser(
				uint32(desc.Width), uint32(desc.Height), uint32(desc.Depth),
				uint32(desc.ArraySize), desc.Type.target(), format, user)
		} else {
			r, err = d.screen.ResourceCreateTexture(
				uint32(desc.Width), uint32(desc.Height), uint32(desc.Depth),
				uint32(desc.ArraySize), desc.Type.target(), format)
		}
		if err != nil {
			return nil, errorf(ErrResourceExhaustion, "allocating %s image on %s: %v", desc.Type, d, err)
		}
		res[d] = r
	}
	return res, nil
}
