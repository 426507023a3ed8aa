// Package shader defines the lowering-service contract: the seam between
// the compute runtime and whatever compiler turns kernel sources into
// device-executable artifacts.
//
// The runtime never inspects artifacts. It consumes two things from a
// Lowerer: the declared kernel signatures of a compiled Binary, and the
// Module a Binary lowers to for one kernel on one device — in particular
// the module's surviving-variable table, which maps declared parameter
// indices to their final byte offsets in the serialized launch input.
package shader

// ArgKind classifies a declared kernel parameter.
type ArgKind int32

const (
	// ArgValue is passed by value (a plain constant payload).
	ArgValue ArgKind = iota
	// ArgSampler is a sampler object reference.
	ArgSampler
	// ArgMemGlobal is a pointer into global memory.
	ArgMemGlobal
	// ArgMemConstant is a pointer into constant memory.
	ArgMemConstant
	// ArgMemLocal is a work-group local allocation; its size is chosen per
	// launch, so the declared Size is zero.
	ArgMemLocal
)

// Arg describes one declared kernel parameter.
type Arg struct {
	Name     string
	TypeName string
	Kind     ArgKind
	// Size is the declared byte size of the parameter, zero for ArgMemLocal.
	Size uint32
}

// KernelSig is the declared signature of one exported kernel.
type KernelSig struct {
	Name string
	Args []Arg
}

// Header is an include made available while compiling a source.
type Header struct {
	Name   string
	Source string
}

// Binary is a portable compiled artifact plus the kernels it exports.
type Binary struct {
	// Data is the opaque artifact payload.
	Data []byte
	// Library marks a linkable library rather than an executable.
	Library bool
	// Kernels lists the exported kernels with their declared signatures.
	Kernels []KernelSig
}

// Signature returns the declared arguments of the named kernel.
func (b *Binary) Signature(kernel string) ([]Arg, bool) {
	for _, k := range b.Kernels {
		if k.Name == kernel {
			return k.Args, true
		}
	}
	return nil, false
}

// SigsEqual reports whether two declared argument lists match in count,
// kind and size. Names do not participate: two devices may rename a
// parameter without changing the definition.
func SigsEqual(a, b []Arg) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].Size != b[i].Size || a[i].TypeName != b[i].TypeName {
			return false
		}
	}
	return true
}

// Variable is one surviving uniform/image variable of an optimized module.
// Location is the declared parameter index; indices at or past the declared
// argument count identify backend-injected internal arguments in their
// fixed order.
type Variable struct {
	Location     int32
	DriverOffset uint32
}

// Module is the optimized, device-specific form of one kernel.
type Module struct {
	// Object is the artifact handed to hal.Context.CreateComputeState.
	Object []byte
	// WorkgroupSize is the compile-time work-group size, zero when the
	// kernel leaves it to the launch.
	WorkgroupSize [3]uint32
	// SharedSize is the static local-memory footprint in bytes.
	SharedSize uint32
	// Variables lists surviving variables; declared parameters absent here
	// were eliminated by optimization.
	Variables []Variable
	// ConstantData is the kernel's extracted constant-memory initializer;
	// non-empty means the module takes a constant-buffer internal argument.
	ConstantData []byte
	// PrintfFormats holds the kernel's format strings; non-empty means the
	// module takes a printf-buffer internal argument.
	PrintfFormats []string
}

// DeviceOptions carries the device properties lowering depends on.
type DeviceOptions struct {
	AddressBits      uint32
	PrintfBufferSize uint32
}

// Lowerer compiles, links and lowers kernels for one backend family.
type Lowerer interface {
	// Compile translates source into a portable Binary. The second return
	// is the build log, populated on success and failure alike.
	Compile(source string, options []string, headers []Header) (*Binary, string, error)

	// Link combines binaries into an executable, or a library when library
	// is set. The second return is the link log.
	Link(binaries []*Binary, library bool) (*Binary, string, error)

	// Load reconstructs a Binary from a previously serialized artifact
	// payload.
	Load(data []byte, executable bool) (*Binary, error)

	// Lower produces the device-specific Module for one kernel of bin.
	Lower(bin *Binary, kernel string, opts DeviceOptions) (*Module, error)
}
