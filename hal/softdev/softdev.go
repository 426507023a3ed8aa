// Package softdev implements hal on plain host memory.
//
// It is a real, if slow, device: buffers are byte slices, mapping returns a
// window into the backing slice, and grid launches are recorded rather than
// executed (an optional hook can interpret them). The runtime's tests run
// against it, and it serves as a CPU fallback device.
package softdev

import (
	"fmt"
	"sync"

	"github.com/goclrt/goclrt/hal"
	"github.com/pkg/errors"
)

// Screen is a software device.
type Screen struct {
	name string

	mu       sync.Mutex
	nextAddr uint64
}

// New returns a software device with the given name.
func New(name string) *Screen {
	return &Screen{name: name, nextAddr: 0x1000}
}

// Name implements hal.Screen.
func (s *Screen) Name() string { return s.name }

func (s *Screen) allocAddr(size uint32) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := s.nextAddr
	// Keep addresses 256-byte aligned so they look like real allocations in
	// dumps.
	s.nextAddr += (uint64(size) + 0xff) &^ 0xff
	return addr
}

// CreateContext implements hal.Screen.
func (s *Screen) CreateContext() (hal.Context, error) {
	return &Context{screen: s}, nil
}

// ResourceCreateBuffer implements hal.Screen.
func (s *Screen) ResourceCreateBuffer(size uint32) (hal.Resource, error) {
	if size == 0 {
		return nil, errors.New("softdev: zero-sized buffer")
	}
	return &Resource{data: make([]byte, size), buffer: true, addr: s.allocAddr(size)}, nil
}

// ResourceCreateBufferFromUser implements hal.Screen. The resource shares
// the caller's slice, so host writes through the slice are device-visible.
func (s *Screen) ResourceCreateBufferFromUser(size uint32, data []byte) (hal.Resource, error) {
	if uint32(len(data)) < size {
		return nil, errors.Errorf("softdev: user buffer holds %d bytes, need %d", len(data), size)
	}
	return &Resource{data: data[:size], buffer: true, addr: s.allocAddr(size)}, nil
}

func textureSize(width, height, depth, arraySize uint32, format hal.Format) (uint32, error) {
	elem := hal.FormatSize(format)
	if elem == 0 {
		return 0, errors.Errorf("softdev: unknown format %d", format)
	}
	if height == 0 {
		height = 1
	}
	if depth == 0 {
		depth = 1
	}
	if arraySize == 0 {
		arraySize = 1
	}
	return width * height * depth * arraySize * elem, nil
}

// ResourceCreateTexture implements hal.Screen.
func (s *Screen) ResourceCreateTexture(width, height, depth, arraySize uint32, target hal.TextureTarget, format hal.Format) (hal.Resource, error) {
	size, err := textureSize(width, height, depth, arraySize, format)
	if err != nil {
		return nil, err
	}
	return &Resource{data: make([]byte, size), addr: s.allocAddr(size)}, nil
}

// ResourceCreateTextureFromUser implements hal.Screen.
func (s *Screen) ResourceCreateTextureFromUser(width, height, depth, arraySize uint32, target hal.TextureTarget, format hal.Format, data []byte) (hal.Resource, error) {
	size, err := textureSize(width, height, depth, arraySize, format)
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) < size {
		return nil, errors.Errorf("softdev: user texture holds %d bytes, need %d", len(data), size)
	}
	return &Resource{data: data[:size], addr: s.allocAddr(size)}, nil
}

// Resource is a host-memory device allocation.
type Resource struct {
	data   []byte
	buffer bool
	addr   uint64
}

// Size implements hal.Resource.
func (r *Resource) Size() uint32 { return uint32(len(r.data)) }

// IsBuffer implements hal.Resource.
func (r *Resource) IsBuffer() bool { return r.buffer }

// Addr returns the fake device address of the resource.
func (r *Resource) Addr() uint64 { return r.addr }

type mapping struct {
	bytes []byte
}

func (m *mapping) Bytes() []byte { return m.bytes }
func (m *mapping) Unmap()        {}

type computeState struct {
	object    []byte
	inputSize uint32
	localSize uint32
}

type binding struct {
	res  *Resource
	slot []byte
}

// LaunchRecord captures one grid launch for inspection by tests and hooks.
type LaunchRecord struct {
	WorkDim      uint32
	Block, Grid  [3]uint32
	Input        []byte
	Bindings     []*Resource
	LocalSize    uint32
	ShaderObject []byte
}

// Context is a software execution context.
type Context struct {
	screen *Screen

	mu        sync.Mutex
	bound     *computeState
	bindings  []binding
	destroyed bool

	launches      []LaunchRecord
	statesCreated int
	statesDeleted int

	// LaunchHook, when set, interprets each grid launch and may fail it.
	LaunchHook func(*LaunchRecord) error
}

// BufferSubdata implements hal.Context.
func (c *Context) BufferSubdata(res hal.Resource, offset uint32, data []byte) error {
	r := res.(*Resource)
	if int(offset)+len(data) > len(r.data) {
		return errors.Errorf("softdev: subdata [%d, %d) outside resource of %d bytes", offset, int(offset)+len(data), len(r.data))
	}
	copy(r.data[offset:], data)
	return nil
}

// BufferMap implements hal.Context. All softdev operations are synchronous,
// so the blocking flag is irrelevant.
func (c *Context) BufferMap(res hal.Resource, offset, size uint32, blocking bool) (hal.Mapping, error) {
	r := res.(*Resource)
	if offset+size > uint32(len(r.data)) {
		return nil, errors.Errorf("softdev: map [%d, %d) outside resource of %d bytes", offset, offset+size, len(r.data))
	}
	return &mapping{bytes: r.data[offset : offset+size]}, nil
}

// CreateComputeState implements hal.Context.
func (c *Context) CreateComputeState(object []byte, inputSize, localSize uint32) (hal.ComputeState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statesCreated++
	return &computeState{object: object, inputSize: inputSize, localSize: localSize}, nil
}

// BindComputeState implements hal.Context.
func (c *Context) BindComputeState(cs hal.ComputeState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound = cs.(*computeState)
}

// DeleteComputeState implements hal.Context.
func (c *Context) DeleteComputeState(cs hal.ComputeState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bound == cs {
		c.bound = nil
	}
	c.statesDeleted++
}

// SetGlobalBindings implements hal.Context, adding each resource's fake
// device address to the little-endian byte offset already in its slot.
func (c *Context) SetGlobalBindings(resources []hal.Resource, slots [][]byte) error {
	if len(resources) != len(slots) {
		return errors.Errorf("softdev: %d resources but %d binding slots", len(resources), len(slots))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, res := range resources {
		r := res.(*Resource)
		slot := slots[i]
		if len(slot) < 8 {
			return errors.Errorf("softdev: binding slot %d is %d bytes, need 8", i, len(slot))
		}
		var offset uint64
		for b := 0; b < 8; b++ {
			offset |= uint64(slot[b]) << (8 * b)
		}
		addr := r.addr + offset
		for b := 0; b < 8; b++ {
			slot[b] = byte(addr >> (8 * b))
		}
		c.bindings = append(c.bindings, binding{res: r, slot: slot})
	}
	return nil
}

// ClearGlobalBindings implements hal.Context.
func (c *Context) ClearGlobalBindings(n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if uint32(len(c.bindings)) <= n {
		c.bindings = c.bindings[:0]
	} else {
		c.bindings = c.bindings[:uint32(len(c.bindings))-n]
	}
}

// LaunchGrid implements hal.Context. The launch is recorded; when a
// LaunchHook is installed it runs and may fail the launch.
func (c *Context) LaunchGrid(workDim uint32, block, grid [3]uint32, input []byte) error {
	c.mu.Lock()
	if c.bound == nil {
		c.mu.Unlock()
		return errors.New("softdev: launch without bound compute state")
	}
	rec := LaunchRecord{
		WorkDim:      workDim,
		Block:        block,
		Grid:         grid,
		Input:        append([]byte(nil), input...),
		LocalSize:    c.bound.localSize,
		ShaderObject: c.bound.object,
	}
	for _, b := range c.bindings {
		rec.Bindings = append(rec.Bindings, b.res)
	}
	c.launches = append(c.launches, rec)
	hook := c.LaunchHook
	c.mu.Unlock()
	if hook != nil {
		return hook(&rec)
	}
	return nil
}

// MemoryBarrier implements hal.Context. Host memory is always coherent here.
func (c *Context) MemoryBarrier(flags hal.BarrierFlags) {}

type fence struct{}

func (fence) Wait() {}

// Flush implements hal.Context.
func (c *Context) Flush() hal.Fence { return fence{} }

// Destroy implements hal.Context.
func (c *Context) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
}

// LaunchCount returns how many grid launches reached the backend.
func (c *Context) LaunchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.launches)
}

// LastLaunch returns the most recent launch record, or nil.
func (c *Context) LastLaunch() *LaunchRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.launches) == 0 {
		return nil
	}
	rec := c.launches[len(c.launches)-1]
	return &rec
}

// ComputeStateCounts returns how many compute states were created and
// deleted on this context.
func (c *Context) ComputeStateCounts() (created, deleted int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statesCreated, c.statesDeleted
}

// String implements fmt.Stringer.
func (c *Context) String() string {
	return fmt.Sprintf("softdev.Context[%s]", c.screen.name)
}
