package clrt

import (
	"encoding/binary"
	"sync"

	"github.com/goclrt/goclrt/hal"
	"github.com/goclrt/goclrt/shader"
)

// Backend-injected kernel arguments, appended after the user arguments in
// this fixed order.
type internalKind int

const (
	internalGlobalOffsets internalKind = iota
	internalConstantBuffer
	internalPrintfBuffer
)

const globalOffsetsSize = 24

func internalSize(k internalKind) uint32 {
	if k == internalGlobalOffsets {
		return globalOffsetsSize
	}
	return 8
}

// KernelArg is the declared, device-independent description of one kernel
// argument.
type KernelArg struct {
	Name     string
	TypeName string
	Kind     shader.ArgKind
	Size     uint32
}

// argLoc is an argument's resolved location on one device. Arguments the
// optimizer eliminated are dead: they accept values but contribute nothing
// to a launch.
type argLoc struct {
	offset uint32
	dead   bool
}

type internalArg struct {
	kind   internalKind
	offset uint32
}

// kernelDevState is the per-device compiled layout of a kernel.
type kernelDevState struct {
	module    *shader.Module
	args      []argLoc
	internal  []internalArg
	inputSize uint32
}

// Tagged per-argument value cell.
type argValueKind int

const (
	valueUnset argValueKind = iota
	valueNone
	valueBytes
	valueMem
	valueSampler
	valueLocal
)

type argValue struct {
	kind    argValueKind
	bytes   []byte
	mem     *Mem
	sampler *Sampler
	local   uint64
}

// Kernel binds a name within a program to resolved per-device layouts and
// a mutable set of argument value cells. Clones share the layouts but not
// the cells.
type Kernel struct {
	prog          *Program
	name          string
	args          []KernelArg
	dead          []bool
	dev           map[*Device]*kernelDevState
	workgroupSize [3]uint32

	mu     sync.Mutex
	values []argValue
}

// CreateKernel creates the named kernel from a program. At least one
// device must hold a successful executable build exporting the name, and
// the declared signature and injected-argument layout must agree across
// all such devices.
func CreateKernel(p *Program, name string) (*Kernel, error) {
	if p == nil {
		return nil, errorf(ErrInvalidHandle, "nil program")
	}
	devs := p.builtDevices(name)
	if len(devs) == 0 {
		return nil, errorf(ErrUnbuiltExecutable, "no device holds a built executable exporting %q", name)
	}

	sig, _ := p.signature(devs[0], name)
	for _, d := range devs[1:] {
		other, _ := p.signature(d, name)
		if !shader.SigsEqual(sig, other) {
			return nil, errorf(ErrInvalidArgument, "kernel %q is defined with different signatures across devices", name)
		}
	}

	k := &Kernel{
		prog:   p,
		name:   name,
		dev:    make(map[*Device]*kernelDevState, len(devs)),
		values: make([]argValue, len(sig)),
	}
	for _, a := range sig {
		k.args = append(k.args, KernelArg{Name: a.Name, TypeName: a.TypeName, Kind: a.Kind, Size: a.Size})
	}

	var internalKinds []internalKind
	for i, d := range devs {
		ds, err := resolveLayout(p, d, name, sig)
		if err != nil {
			return nil, err
		}
		kinds := make([]internalKind, len(ds.internal))
		for j, ia := range ds.internal {
			kinds[j] = ia.kind
		}
		if i == 0 {
			internalKinds = kinds
		} else if !kindsEqual(internalKinds, kinds) {
			return nil, errorf(ErrInvalidArgument, "kernel %q has mismatched injected-argument layouts across devices", name)
		}
		k.dev[d] = ds
	}
	k.workgroupSize = k.dev[devs[0]].module.WorkgroupSize

	// An argument is dead for the kernel when no device kept it alive.
	k.dead = make([]bool, len(sig))
	for i := range k.dead {
		dead := true
		for _, ds := range k.dev {
			if !ds.args[i].dead {
				dead = false
				break
			}
		}
		k.dead[i] = dead
	}
	return k, nil
}

// CreateKernelsInProgram creates every kernel the program exports with a
// uniform definition, skipping names whose definitions differ across
// devices.
func CreateKernelsInProgram(p *Program) ([]*Kernel, error) {
	if p == nil {
		return nil, errorf(ErrInvalidHandle, "nil program")
	}
	names := p.Kernels()
	if len(names) == 0 {
		return nil, errorf(ErrUnbuiltExecutable, "program exports no kernels")
	}
	var kernels []*Kernel
	for _, name := range names {
		k, err := CreateKernel(p, name)
		if err != nil {
			if CodeOf(err) == ErrInvalidArgument {
				continue
			}
			return nil, err
		}
		kernels = append(kernels, k)
	}
	return kernels, nil
}

func kindsEqual(a, b []internalKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// resolveLayout runs the two-pass mapping for one device: pass 1 is the
// declared signature (kind and byte size per argument), pass 2 walks the
// optimized module's surviving variables by declared index, marking
// arguments live and recording their final offsets. Variables past the
// declared arguments are the backend-injected arguments, in fixed order.
func resolveLayout(p *Program, d *Device, name string, sig []shader.Arg) (*kernelDevState, error) {
	mod, err := p.module(d, name)
	if err != nil {
		return nil, err
	}
	ds := &kernelDevState{
		module: mod,
		args:   make([]argLoc, len(sig)),
	}
	for i := range ds.args {
		ds.args[i].dead = true
	}
	var inputEnd uint32
	for _, v := range mod.Variables {
		if v.Location < 0 {
			return nil, errorf(ErrInternal, "kernel %q on %s has a variable at negative location %d", name, d, v.Location)
		}
		idx := int(v.Location)
		var size uint32
		switch {
		case idx < len(sig):
			ds.args[idx] = argLoc{offset: v.DriverOffset}
			size = payloadSize(sig[idx])
		case idx < len(sig)+3:
			kind := internalKind(idx - len(sig))
			ds.internal = append(ds.internal, internalArg{kind: kind, offset: v.DriverOffset})
			size = internalSize(kind)
		default:
			return nil, errorf(ErrInternal, "kernel %q on %s has a variable at unexpected location %d", name, d, v.Location)
		}
		if end := v.DriverOffset + size; end > inputEnd {
			inputEnd = end
		}
	}
	ds.inputSize = inputEnd
	return ds, nil
}

// payloadSize is the number of input-blob bytes an argument occupies:
// inline values take their declared size, everything else is an 8-byte
// pointer slot.
func payloadSize(a shader.Arg) uint32 {
	if a.Kind == shader.ArgValue {
		return a.Size
	}
	return 8
}

// Program returns the kernel's program.
func (k *Kernel) Program() *Program { return k.prog }

// Name returns the kernel name.
func (k *Kernel) Name() string { return k.name }

// Args returns the declared argument list.
func (k *Kernel) Args() []KernelArg {
	args := make([]KernelArg, len(k.args))
	copy(args, k.args)
	return args
}

// WorkgroupSize returns the compiled work-group size hint.
func (k *Kernel) WorkgroupSize() [3]uint32 { return k.workgroupSize }

// Clone duplicates the kernel, including the current argument values. The
// clone's value cells are independent of the original's.
func (k *Kernel) Clone() *Kernel {
	k.mu.Lock()
	values := make([]argValue, len(k.values))
	copy(values, k.values)
	k.mu.Unlock()
	return &Kernel{
		prog:          k.prog,
		name:          k.name,
		args:          k.args,
		dead:          k.dead,
		dev:           k.dev,
		workgroupSize: k.workgroupSize,
		values:        values,
	}
}

// SetArg stores a value into the argument cell at index. The size must
// match the declared argument size, except for local-memory arguments
// where size is the requested allocation (non-zero) and value must be nil.
// Dead arguments accept any well-formed value but store nothing.
func (k *Kernel) SetArg(index uint32, size uint64, value any) error {
	if int(index) >= len(k.args) {
		return errorf(ErrInvalidArgument, "argument index %d out of range, kernel has %d arguments", index, len(k.args))
	}
	arg := k.args[index]

	var v argValue
	switch arg.Kind {
	case shader.ArgMemLocal:
		if size == 0 {
			return errorf(ErrInvalidSize, "local argument #%d requires a non-zero allocation size", index)
		}
		if value != nil {
			return errorf(ErrInvalidArgument, "local argument #%d requires a nil value", index)
		}
		v = argValue{kind: valueLocal, local: size}

	case shader.ArgValue:
		b, ok := value.([]byte)
		if !ok || b == nil {
			return errorf(ErrInvalidArgument, "argument #%d requires value bytes", index)
		}
		if size != uint64(arg.Size) || uint64(len(b)) != size {
			return errorf(ErrInvalidSize, "argument #%d takes %d bytes, got %d", index, arg.Size, size)
		}
		v = argValue{kind: valueBytes, bytes: append([]byte(nil), b...)}

	case shader.ArgSampler:
		if size != uint64(arg.Size) {
			return errorf(ErrInvalidSize, "argument #%d takes %d bytes, got %d", index, arg.Size, size)
		}
		s, ok := value.(*Sampler)
		if !ok || s == nil {
			return errorf(ErrInvalidArgument, "argument #%d requires a sampler", index)
		}
		v = argValue{kind: valueSampler, sampler: s}

	case shader.ArgMemGlobal, shader.ArgMemConstant:
		if size != uint64(arg.Size) {
			return errorf(ErrInvalidSize, "argument #%d takes %d bytes, got %d", index, arg.Size, size)
		}
		switch m := value.(type) {
		case nil:
			v = argValue{kind: valueMem}
		case *Mem:
			if m == nil {
				v = argValue{kind: valueMem}
			} else {
				v = argValue{kind: valueMem, mem: m}
			}
		default:
			return errorf(ErrInvalidArgument, "argument #%d requires a memory object or nil", index)
		}

	default:
		return errorf(ErrInternal, "argument #%d has unknown kind %d", index, arg.Kind)
	}

	if k.dead[index] {
		v = argValue{kind: valueNone}
	}
	k.mu.Lock()
	k.values[index] = v
	k.mu.Unlock()
	return nil
}

// argsSet reports whether every argument cell holds a value.
func (k *Kernel) argsSet() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, v := range k.values {
		if v.kind == valueUnset {
			return false
		}
	}
	return true
}

// launch captures the current argument values, the resolved layout for the
// queue's device and the work shape into a retained closure. The closure,
// run by the queue worker, creates the backend compute state, binds the
// recorded resources, issues the grid and tears everything down again.
//
// A zero grid component makes the launch trivial: the closure succeeds
// without touching the backend.
func (k *Kernel) launch(q *Queue, workDim uint32, block, grid [3]uint32, offsets [3]uint64) (eventWork, error) {
	for i := uint32(0); i < workDim; i++ {
		if grid[i] == 0 {
			return func(*Queue) error { return nil }, nil
		}
	}

	ds := k.dev[q.dev]
	if ds == nil {
		return nil, errorf(ErrUnbuiltExecutable, "kernel %q has no build for %s", k.name, q.dev)
	}
	mod := ds.module

	// Auto-select unspecified block sizes: the first dimension prefers the
	// device maximum when it divides the grid evenly, the rest fall back
	// to 1. The grid is in blocks afterwards.
	maxBlock := q.dev.limits.MaxBlockSizes
	for i := range block {
		if block[i] == 0 {
			if i == 0 && grid[0]%maxBlock[0] == 0 {
				block[0] = maxBlock[0]
			} else {
				block[i] = 1
			}
		}
		grid[i] /= block[i]
	}

	input := make([]byte, ds.inputSize)
	var resources []hal.Resource
	var slots [][]byte
	localSize := mod.SharedSize

	k.mu.Lock()
	values := make([]argValue, len(k.values))
	copy(values, k.values)
	k.mu.Unlock()

	for i, v := range values {
		loc := ds.args[i]
		if loc.dead || v.kind == valueNone {
			continue
		}
		switch v.kind {
		case valueBytes:
			copy(input[loc.offset:], v.bytes)
		case valueMem:
			if v.mem == nil {
				continue
			}
			res, err := v.mem.resource(q.dev)
			if err != nil {
				return nil, err
			}
			slot := input[loc.offset : loc.offset+8]
			binary.LittleEndian.PutUint64(slot, v.mem.offset)
			resources = append(resources, res)
			slots = append(slots, slot)
		case valueLocal:
			binary.LittleEndian.PutUint64(input[loc.offset:loc.offset+8], uint64(localSize))
			localSize += uint32(v.local)
		case valueSampler:
			// Samplers carry no payload; the lowered module resolves
			// them statically.
		}
	}

	var printfRes hal.Resource
	printfSize := q.dev.limits.PrintfBufferSize
	for _, ia := range ds.internal {
		switch ia.kind {
		case internalGlobalOffsets:
			for i, off := range offsets {
				binary.LittleEndian.PutUint64(input[int(ia.offset)+8*i:], off)
			}
		case internalConstantBuffer:
			if len(mod.ConstantData) == 0 {
				continue
			}
			res, err := q.dev.screen.ResourceCreateBufferFromUser(uint32(len(mod.ConstantData)), mod.ConstantData)
			if err != nil {
				return nil, errorf(ErrResourceExhaustion, "allocating constant buffer: %v", err)
			}
			slot := input[ia.offset : ia.offset+8]
			resources = append(resources, res)
			slots = append(slots, slot)
		case internalPrintfBuffer:
			if len(mod.PrintfFormats) == 0 {
				continue
			}
			res, err := q.dev.screen.ResourceCreateBuffer(printfSize)
			if err != nil {
				return nil, errorf(ErrResourceExhaustion, "allocating printf buffer: %v", err)
			}
			printfRes = res
			slot := input[ia.offset : ia.offset+8]
			resources = append(resources, res)
			slots = append(slots, slot)
		}
	}

	return func(q *Queue) error {
		if printfRes != nil {
			var hdr [4]byte
			binary.LittleEndian.PutUint32(hdr[:], printfHeaderSize)
			if err := q.exec.BufferSubdata(printfRes, 0, hdr[:]); err != nil {
				return err
			}
		}

		cs, err := q.exec.CreateComputeState(mod.Object, ds.inputSize, localSize)
		if err != nil {
			return errorf(ErrResourceExhaustion, "creating compute state for %q: %v", k.name, err)
		}
		q.exec.BindComputeState(cs)
		if err := q.exec.SetGlobalBindings(resources, slots); err != nil {
			return err
		}
		err = q.exec.LaunchGrid(workDim, block, grid, input)
		q.exec.ClearGlobalBindings(uint32(len(resources)))
		q.exec.DeleteComputeState(cs)
		if err != nil {
			return err
		}
		q.exec.MemoryBarrier(hal.BarrierGlobalBuffer)

		if printfRes != nil {
			mp, err := q.exec.BufferMap(printfRes, 0, printfSize, true)
			if err != nil {
				return err
			}
			drainPrintf(q.debugWriter(), mp.Bytes(), mod.PrintfFormats)
			mp.Unmap()
		}
		return nil
	}, nil
}
