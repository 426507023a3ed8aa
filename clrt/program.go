package clrt

import (
	"encoding/binary"
	"sort"
	"strings"
	"sync"

	"github.com/goclrt/goclrt/shader"
	"k8s.io/klog/v2"
)

// BuildStatus is the per-device state of a program build.
type BuildStatus int32

const (
	BuildNone BuildStatus = iota
	BuildError
	BuildSuccess
	BuildInProgress
)

// BinaryType tags what kind of artifact a per-device binary holds.
type BinaryType int32

const (
	BinTypeNone BinaryType = iota
	BinTypeCompiledObject
	BinTypeLibrary
	BinTypeExecutable
)

// binaryVersion is the only defined persisted-binary format version. The
// header is three little-endian uint32 fields: version, payload length,
// binary type; the opaque payload follows.
const (
	binaryVersion    = 1
	binaryHeaderSize = 12
)

// devBuild is the per-device build record of a program. Guarded by the
// owning Program's mutex.
type devBuild struct {
	bin     *shader.Binary
	status  BuildStatus
	options string
	log     string
	binType BinaryType
	modules map[string]*shader.Module
}

// Program owns source text or deserialized binaries and a per-device build
// record. Build state is per device, not atomic across devices: one device
// may hold a successful build while another holds an error.
type Program struct {
	ctx        *Context
	source     string
	fromBinary bool

	mu     sync.Mutex
	refs   int
	builds map[*Device]*devBuild
}

func newProgram(ctx *Context) *Program {
	p := &Program{ctx: ctx, refs: 1, builds: make(map[*Device]*devBuild, len(ctx.devs))}
	for _, d := range ctx.devs {
		p.builds[d] = &devBuild{modules: map[string]*shader.Module{}}
	}
	return p
}

// CreateProgramWithSource creates a program from kernel source text. No
// device is built until Build or Compile+Link run.
func CreateProgramWithSource(ctx *Context, source string) (*Program, error) {
	if ctx == nil {
		return nil, errorf(ErrInvalidHandle, "nil context")
	}
	if source == "" {
		return nil, errorf(ErrInvalidArgument, "empty program source")
	}
	p := newProgram(ctx)
	p.source = source
	return p, nil
}

// CreateProgramWithBinary restores a program from persisted binaries, one
// per listed device. Unknown format versions fail.
func CreateProgramWithBinary(ctx *Context, devices []*Device, bins [][]byte) (*Program, error) {
	if ctx == nil {
		return nil, errorf(ErrInvalidHandle, "nil context")
	}
	if len(devices) == 0 || len(devices) != len(bins) {
		return nil, errorf(ErrInvalidArgument, "%d devices but %d binaries", len(devices), len(bins))
	}
	p := newProgram(ctx)
	p.fromBinary = true
	for i, d := range devices {
		if d == nil || !ctx.hasDevice(d) {
			return nil, errorf(ErrInvalidHandle, "device #%d is not part of the context", i)
		}
		payload, bt, err := parseBinary(bins[i])
		if err != nil {
			return nil, err
		}
		bin, err := d.lower.Load(payload, bt == BinTypeExecutable)
		if err != nil {
			return nil, errorf(ErrInvalidArgument, "loading binary for %s: %v", d, err)
		}
		b := p.builds[d]
		b.bin = bin
		b.status = BuildSuccess
		b.binType = bt
	}
	return p, nil
}

// Context returns the owning context.
func (p *Program) Context() *Context { return p.ctx }

// Retain adds a reference to the program.
func (p *Program) Retain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs++
}

// Release drops one reference.
func (p *Program) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refs == 0 {
		klog.Errorf("Release called on already-destroyed program")
		return
	}
	p.refs--
}

func (p *Program) devicesOrAll(devices []*Device) ([]*Device, error) {
	if len(devices) == 0 {
		return p.ctx.devs, nil
	}
	for i, d := range devices {
		if d == nil || !p.ctx.hasDevice(d) {
			return nil, errorf(ErrInvalidHandle, "device #%d is not part of the context", i)
		}
	}
	return devices, nil
}

// Build compiles and links the program source for the given devices (all
// context devices when nil). Programs created from binaries are already
// built and return immediately. Options are space separated;
// "-create-library" produces a library instead of an executable.
func (p *Program) Build(devices []*Device, options string) error {
	if p.fromBinary {
		return nil
	}
	devs, err := p.devicesOrAll(devices)
	if err != nil {
		return err
	}
	lib := strings.Contains(options, "-create-library")
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range devs {
		b := p.builds[d]
		b.options = options
		b.status = BuildInProgress
		b.modules = map[string]*shader.Module{}

		obj, log, cerr := d.lower.Compile(p.source, strings.Fields(options), nil)
		if cerr != nil {
			b.status = BuildError
			b.log = log
			return errorf(ErrUnbuiltExecutable, "building program for %s: %v", d, cerr)
		}
		out, log, lerr := d.lower.Link([]*shader.Binary{obj}, lib)
		if lerr != nil {
			b.status = BuildError
			b.log = log
			return errorf(ErrUnbuiltExecutable, "linking program for %s: %v", d, lerr)
		}
		b.bin = out
		b.log = log
		b.status = BuildSuccess
		if lib {
			b.binType = BinTypeLibrary
		} else {
			b.binType = BinTypeExecutable
		}
	}
	return nil
}

// Compile compiles the program source to a per-device object without
// linking. Headers are embedded sources made available to the compiler.
func (p *Program) Compile(devices []*Device, options string, headers []shader.Header) error {
	if p.fromBinary {
		return errorf(ErrInvalidArgument, "cannot compile a program created from binaries")
	}
	devs, err := p.devicesOrAll(devices)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range devs {
		b := p.builds[d]
		b.options = options
		b.status = BuildInProgress
		b.modules = map[string]*shader.Module{}

		obj, log, cerr := d.lower.Compile(p.source, strings.Fields(options), headers)
		if cerr != nil {
			b.status = BuildError
			b.log = log
			return errorf(ErrUnbuiltExecutable, "compiling program for %s: %v", d, cerr)
		}
		b.bin = obj
		b.log = log
		b.status = BuildSuccess
		b.binType = BinTypeCompiledObject
	}
	return nil
}

// LinkPrograms links the per-device objects of the input programs into a
// new program in the context.
func LinkPrograms(ctx *Context, devices []*Device, options string, progs []*Program) (*Program, error) {
	if ctx == nil {
		return nil, errorf(ErrInvalidHandle, "nil context")
	}
	if len(progs) == 0 {
		return nil, errorf(ErrInvalidArgument, "no programs to link")
	}
	for _, in := range progs {
		if in.ctx != ctx {
			return nil, errorf(ErrIncompatibleContext, "program belongs to a different context")
		}
	}
	out := newProgram(ctx)
	devs, err := out.devicesOrAll(devices)
	if err != nil {
		return nil, err
	}
	lib := strings.Contains(options, "-create-library")
	for _, d := range devs {
		bins := make([]*shader.Binary, 0, len(progs))
		for _, in := range progs {
			in.mu.Lock()
			b := in.builds[d]
			if b == nil || b.status != BuildSuccess || b.bin == nil {
				in.mu.Unlock()
				return nil, errorf(ErrUnbuiltExecutable, "input program has no successful build for %s", d)
			}
			bins = append(bins, b.bin)
			in.mu.Unlock()
		}
		linked, log, lerr := d.lower.Link(bins, lib)
		ob := out.builds[d]
		ob.options = options
		ob.log = log
		if lerr != nil {
			ob.status = BuildError
			return nil, errorf(ErrUnbuiltExecutable, "linking for %s: %v", d, lerr)
		}
		ob.bin = linked
		ob.status = BuildSuccess
		if lib {
			ob.binType = BinTypeLibrary
		} else {
			ob.binType = BinTypeExecutable
		}
	}
	return out, nil
}

// BuildStatusFor returns the device's build status.
func (p *Program) BuildStatusFor(d *Device) BuildStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b := p.builds[d]; b != nil {
		return b.status
	}
	return BuildNone
}

// BuildLogFor returns the device's build log.
func (p *Program) BuildLogFor(d *Device) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b := p.builds[d]; b != nil {
		return b.log
	}
	return ""
}

// BinaryTypeFor returns the device's binary type.
func (p *Program) BinaryTypeFor(d *Device) BinaryType {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b := p.builds[d]; b != nil {
		return b.binType
	}
	return BinTypeNone
}

// Binary serializes the device's built artifact in the persisted format.
func (p *Program) Binary(d *Device) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.builds[d]
	if b == nil || b.status != BuildSuccess || b.bin == nil {
		return nil, errorf(ErrUnbuiltExecutable, "no successful build for %s", d)
	}
	out := make([]byte, binaryHeaderSize+len(b.bin.Data))
	binary.LittleEndian.PutUint32(out[0:], binaryVersion)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(b.bin.Data)))
	binary.LittleEndian.PutUint32(out[8:], uint32(b.binType))
	copy(out[binaryHeaderSize:], b.bin.Data)
	return out, nil
}

// parseBinary validates the persisted header and returns the payload and
// binary type.
func parseBinary(data []byte) ([]byte, BinaryType, error) {
	if len(data) < binaryHeaderSize {
		return nil, BinTypeNone, errorf(ErrInvalidArgument, "binary of %d bytes is shorter than the header", len(data))
	}
	version := binary.LittleEndian.Uint32(data[0:])
	if version != binaryVersion {
		return nil, BinTypeNone, errorf(ErrInvalidArgument, "unknown binary format version %d", version)
	}
	length := binary.LittleEndian.Uint32(data[4:])
	bt := BinaryType(binary.LittleEndian.Uint32(data[8:]))
	if uint64(length)+binaryHeaderSize != uint64(len(data)) {
		return nil, BinTypeNone, errorf(ErrInvalidSize, "binary payload length %d does not match %d bytes of data", length, len(data)-binaryHeaderSize)
	}
	switch bt {
	case BinTypeCompiledObject, BinTypeLibrary, BinTypeExecutable:
	default:
		return nil, BinTypeNone, errorf(ErrInvalidArgument, "unknown binary type %d", bt)
	}
	return data[binaryHeaderSize:], bt, nil
}

// Kernels returns the union of kernel names exported by the successful
// per-device builds, sorted.
func (p *Program) Kernels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := map[string]bool{}
	for _, b := range p.builds {
		if b.status != BuildSuccess || b.bin == nil {
			continue
		}
		for _, k := range b.bin.Kernels {
			seen[k.Name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// builtDevices returns the devices holding a successful executable build
// that exports the kernel, in context device order.
func (p *Program) builtDevices(kernel string) []*Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	var devs []*Device
	for _, d := range p.ctx.devs {
		b := p.builds[d]
		if b == nil || b.status != BuildSuccess || b.bin == nil || b.binType != BinTypeExecutable {
			continue
		}
		if _, ok := b.bin.Signature(kernel); !ok {
			continue
		}
		devs = append(devs, d)
	}
	return devs
}

// signature returns the kernel's declared argument list on the device.
func (p *Program) signature(d *Device, kernel string) ([]shader.Arg, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.builds[d]
	if b == nil || b.bin == nil {
		return nil, false
	}
	return b.bin.Signature(kernel)
}

// module lowers (or returns the cached lowering of) the kernel for the
// device.
func (p *Program) module(d *Device, kernel string) (*shader.Module, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.builds[d]
	if b == nil || b.status != BuildSuccess || b.bin == nil {
		return nil, errorf(ErrUnbuiltExecutable, "no successful build for %s", d)
	}
	if m, ok := b.modules[kernel]; ok {
		return m, nil
	}
	m, err := d.lower.Lower(b.bin, kernel, d.shaderOptions())
	if err != nil {
		return nil, errorf(ErrInvalidArgument, "lowering %q for %s: %v", kernel, d, err)
	}
	b.modules[kernel] = m
	return m, nil
}
