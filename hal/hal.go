// Package hal defines the contract between the compute runtime and a
// hardware device backend.
//
// A backend exposes one Screen per physical device. The Screen creates
// device resources (buffers and textures) and execution Contexts. A Context
// is the unit the runtime binds compute state to and issues grid launches
// on; each command queue owns exactly one Context.
//
// Implementations must make every Context method safe to call from the
// single goroutine that owns the Context; the runtime never shares a
// Context between goroutines. Screen methods may be called concurrently.
package hal

// Format identifies a texture element layout.
type Format int32

const (
	FormatInvalid Format = iota
	FormatR8Unorm
	FormatRG8Unorm
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatR16Float
	FormatRGBA16Float
	FormatR32Float
	FormatRGBA32Float
	FormatR32Uint
	FormatRGBA32Uint
)

// FormatSize returns the byte size of one element of f, or 0 when f is not
// a known format.
func FormatSize(f Format) uint32 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRG8Unorm, FormatR16Float:
		return 2
	case FormatRGBA8Unorm, FormatBGRA8Unorm, FormatR32Float, FormatR32Uint:
		return 4
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float, FormatRGBA32Uint:
		return 16
	}
	return 0
}

// TextureTarget selects the dimensionality of a texture resource.
type TextureTarget int32

const (
	Target1D TextureTarget = iota
	Target1DArray
	Target2D
	Target2DArray
	Target3D
	TargetBuffer
)

// BarrierFlags selects which memory domains a barrier covers.
type BarrierFlags uint32

const (
	// BarrierGlobalBuffer orders all prior global-buffer writes before
	// subsequent reads.
	BarrierGlobalBuffer BarrierFlags = 1 << iota
)

// Screen is the per-device resource factory.
type Screen interface {
	// Name identifies the device, e.g. a driver or adapter name.
	Name() string

	// CreateContext creates a new execution context on the device.
	CreateContext() (Context, error)

	// ResourceCreateBuffer allocates a device buffer of the given size.
	ResourceCreateBuffer(size uint32) (Resource, error)

	// ResourceCreateBufferFromUser allocates a device buffer backed by (or
	// initialized from) the caller's bytes. The backend may keep a
	// reference to data for the lifetime of the resource.
	ResourceCreateBufferFromUser(size uint32, data []byte) (Resource, error)

	// ResourceCreateTexture allocates a texture resource.
	ResourceCreateTexture(width, height, depth, arraySize uint32, target TextureTarget, format Format) (Resource, error)

	// ResourceCreateTextureFromUser allocates a texture pre-populated from
	// the caller's bytes.
	ResourceCreateTextureFromUser(width, height, depth, arraySize uint32, target TextureTarget, format Format, data []byte) (Resource, error)
}

// Resource is an opaque device allocation.
type Resource interface {
	// Size returns the byte size of the allocation.
	Size() uint32

	// IsBuffer reports whether the resource is a linear buffer as opposed
	// to a texture.
	IsBuffer() bool
}

// Mapping is an active host-visible window into a buffer resource.
type Mapping interface {
	// Bytes returns the host-visible bytes of the mapped range. Writes are
	// reflected into the resource per the backend's coherency rules.
	Bytes() []byte

	// Unmap releases the mapping. Bytes must not be used afterwards.
	Unmap()
}

// ComputeState is an opaque bound-shader object created from a lowered
// kernel artifact.
type ComputeState interface{}

// Fence is a waitable marker returned by Context.Flush.
type Fence interface {
	// Wait blocks until all work submitted before the fence has retired.
	Wait()
}

// Context is a device execution context. All mutation of device state goes
// through a Context.
type Context interface {
	// BufferSubdata uploads data into res starting at offset.
	BufferSubdata(res Resource, offset uint32, data []byte) error

	// BufferMap maps size bytes of res at offset into host memory. When
	// blocking is true the call synchronizes with all prior work touching
	// the resource.
	BufferMap(res Resource, offset, size uint32, blocking bool) (Mapping, error)

	// CreateComputeState creates a bound-shader object from a lowered
	// kernel artifact, its serialized input size and its total local
	// (work-group shared) memory size.
	CreateComputeState(object []byte, inputSize, localSize uint32) (ComputeState, error)

	// BindComputeState makes cs the current compute state.
	BindComputeState(cs ComputeState)

	// DeleteComputeState destroys cs. It must not be bound.
	DeleteComputeState(cs ComputeState)

	// SetGlobalBindings binds resources for the next launch. Each 8-byte
	// slot aliases the launch input blob and arrives pre-loaded with a
	// little-endian byte offset into the resource; the backend adds the
	// resource's device address to it in place.
	SetGlobalBindings(resources []Resource, slots [][]byte) error

	// ClearGlobalBindings unbinds the n most recently bound global
	// bindings.
	ClearGlobalBindings(n uint32)

	// LaunchGrid issues a compute dispatch of grid blocks of block threads
	// with the serialized kernel input.
	LaunchGrid(workDim uint32, block, grid [3]uint32, input []byte) error

	// MemoryBarrier orders memory traffic per flags.
	MemoryBarrier(flags BarrierFlags)

	// Flush submits all buffered work and returns a waitable fence.
	Flush() Fence

	// Destroy releases the context. No further calls are allowed.
	Destroy()
}
