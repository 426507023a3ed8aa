package clrt

// AddressingMode selects how out-of-range image coordinates resolve.
type AddressingMode uint32

const (
	AddressNone AddressingMode = iota
	AddressClampToEdge
	AddressClamp
	AddressRepeat
	AddressMirroredRepeat
)

// FilterMode selects the sampling filter.
type FilterMode uint32

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

// Sampler describes how kernels sample image arguments.
type Sampler struct {
	ctx        *Context
	normalized bool
	addressing AddressingMode
	filter     FilterMode
}

// CreateSampler creates a sampler in the given context.
func CreateSampler(ctx *Context, normalizedCoords bool, addressing AddressingMode, filter FilterMode) (*Sampler, error) {
	if ctx == nil {
		return nil, errorf(ErrInvalidHandle, "nil context")
	}
	if addressing > AddressMirroredRepeat {
		return nil, errorf(ErrInvalidArgument, "unknown addressing mode %d", addressing)
	}
	if filter > FilterLinear {
		return nil, errorf(ErrInvalidArgument, "unknown filter mode %d", filter)
	}
	return &Sampler{
		ctx:        ctx,
		normalized: normalizedCoords,
		addressing: addressing,
		filter:     filter,
	}, nil
}

// Context returns the owning context.
func (s *Sampler) Context() *Context { return s.ctx }

// NormalizedCoords reports whether the sampler uses normalized coordinates.
func (s *Sampler) NormalizedCoords() bool { return s.normalized }

// Addressing returns the addressing mode.
func (s *Sampler) Addressing() AddressingMode { return s.addressing }

// Filter returns the filter mode.
func (s *Sampler) Filter() FilterMode { return s.filter }
