package clrt

// Test support: a lowerer with a fixed kernel table and softdev-backed
// devices. The fake lowerer compiles any source into the same binary, so
// tests control argument layouts precisely.

import (
	"sort"
	"testing"

	"github.com/goclrt/goclrt/hal/softdev"
	"github.com/goclrt/goclrt/shader"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeKernel struct {
	args          []shader.Arg
	vars          []shader.Variable
	constData     []byte
	printfFormats []string
	workgroupSize [3]uint32
	sharedSize    uint32
}

type fakeLowerer struct {
	kernels    map[string]fakeKernel
	compileErr string
}

func (l *fakeLowerer) binary(data []byte, lib bool) *shader.Binary {
	bin := &shader.Binary{Data: data, Library: lib}
	names := make([]string, 0, len(l.kernels))
	for name := range l.kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		bin.Kernels = append(bin.Kernels, shader.KernelSig{Name: name, Args: l.kernels[name].args})
	}
	return bin
}

func (l *fakeLowerer) Compile(source string, options []string, headers []shader.Header) (*shader.Binary, string, error) {
	if l.compileErr != "" {
		return nil, l.compileErr, errors.New(l.compileErr)
	}
	return l.binary([]byte(source), false), "", nil
}

func (l *fakeLowerer) Link(binaries []*shader.Binary, library bool) (*shader.Binary, string, error) {
	var data []byte
	for _, b := range binaries {
		data = append(data, b.Data...)
	}
	return l.binary(data, library), "", nil
}

func (l *fakeLowerer) Load(data []byte, executable bool) (*shader.Binary, error) {
	return l.binary(data, !executable), nil
}

func (l *fakeLowerer) Lower(bin *shader.Binary, kernel string, opts shader.DeviceOptions) (*shader.Module, error) {
	k, ok := l.kernels[kernel]
	if !ok {
		return nil, errors.Errorf("kernel %q not exported", kernel)
	}
	return &shader.Module{
		Object:        bin.Data,
		WorkgroupSize: k.workgroupSize,
		SharedSize:    k.sharedSize,
		Variables:     k.vars,
		ConstantData:  k.constData,
		PrintfFormats: k.printfFormats,
	}, nil
}

// vaddLowerer exposes one kernel "vadd" with a value argument, a global
// memory argument and a local-memory argument, all live, followed by the
// injected global-offsets vector.
func vaddLowerer() *fakeLowerer {
	return &fakeLowerer{kernels: map[string]fakeKernel{
		"vadd": {
			args: []shader.Arg{
				{Name: "n", TypeName: "ulong", Kind: shader.ArgValue, Size: 8},
				{Name: "out", TypeName: "float*", Kind: shader.ArgMemGlobal, Size: 8},
				{Name: "tmp", TypeName: "float*", Kind: shader.ArgMemLocal},
			},
			vars: []shader.Variable{
				{Location: 0, DriverOffset: 0},
				{Location: 1, DriverOffset: 8},
				{Location: 2, DriverOffset: 16},
				{Location: 3, DriverOffset: 24}, // global offsets
			},
			workgroupSize: [3]uint32{1, 1, 1},
		},
	}}
}

func newFakeDevice(t *testing.T, name string, low shader.Lowerer) *Device {
	t.Helper()
	dev, err := NewDevice(name, softdev.New(name), low, Limits{})
	require.NoError(t, err)
	return dev
}

func newTestContext(t *testing.T, low shader.Lowerer) (*Context, *Device) {
	t.Helper()
	dev := newFakeDevice(t, "soft0", low)
	ctx, err := NewContext([]*Device{dev})
	require.NoError(t, err)
	return ctx, dev
}

// softCtx digs out the softdev execution context behind a queue.
func softCtx(q *Queue) *softdev.Context {
	return q.exec.(*softdev.Context)
}

// builtKernel compiles and builds the vadd program and creates its kernel.
func builtKernel(t *testing.T, ctx *Context) *Kernel {
	t.Helper()
	p, err := CreateProgramWithSource(ctx, "__kernel void vadd() {}")
	require.NoError(t, err)
	require.NoError(t, p.Build(nil, ""))
	k, err := CreateKernel(p, "vadd")
	require.NoError(t, err)
	return k
}
