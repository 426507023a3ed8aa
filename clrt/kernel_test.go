package clrt

import (
	"encoding/binary"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/goclrt/goclrt/shader"
)

func TestKernelArgs(t *testing.T) {
	ctx, _ := newTestContext(t, vaddLowerer())
	k := builtKernel(t, ctx)

	args := k.Args()
	require.Len(t, args, 3)
	assert.Equal(t, "n", args[0].Name)
	assert.Equal(t, "ulong", args[0].TypeName)
	assert.Equal(t, shader.ArgValue, args[0].Kind)
	assert.Equal(t, "out", args[1].Name)
	assert.Equal(t, shader.ArgMemGlobal, args[1].Kind)
	assert.Equal(t, "tmp", args[2].Name)
	assert.Equal(t, shader.ArgMemLocal, args[2].Kind)
	assert.Equal(t, [3]uint32{1, 1, 1}, k.WorkgroupSize())
	assert.Equal(t, "vadd", k.Name())
}

func TestSetArgValidation(t *testing.T) {
	ctx, _ := newTestContext(t, vaddLowerer())
	k := builtKernel(t, ctx)
	buf := must.M1(CreateBuffer(ctx, 0, 64, nil))
	defer buf.Release()

	// Index out of range.
	err := k.SetArg(3, 8, make([]byte, 8))
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))

	// Value argument: wrong size, wrong type, nil.
	err = k.SetArg(0, 4, make([]byte, 4))
	assert.Equal(t, ErrInvalidSize, CodeOf(err))
	err = k.SetArg(0, 8, "not bytes")
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
	err = k.SetArg(0, 8, nil)
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
	require.NoError(t, k.SetArg(0, 8, make([]byte, 8)))

	// Memory argument: wrong size, wrong type; nil is a legal null binding.
	err = k.SetArg(1, 4, buf)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))
	err = k.SetArg(1, 8, "not a mem")
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
	require.NoError(t, k.SetArg(1, 8, nil))
	require.NoError(t, k.SetArg(1, 8, buf))

	// Local argument: zero size, non-nil value.
	err = k.SetArg(2, 0, nil)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))
	err = k.SetArg(2, 16, buf)
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
	require.NoError(t, k.SetArg(2, 16, nil))

	assert.True(t, k.argsSet())
}

func TestLaunchUnsetArguments(t *testing.T) {
	ctx, dev := newTestContext(t, vaddLowerer())
	k := builtKernel(t, ctx)
	q := must.M1(CreateQueue(ctx, dev))
	defer q.Release()

	_, err := q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{4, 0, 0}, [3]uint32{}, nil)
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
}

func TestLaunchPayload(t *testing.T) {
	ctx, dev := newTestContext(t, vaddLowerer())
	k := builtKernel(t, ctx)
	q := must.M1(CreateQueue(ctx, dev))
	defer q.Release()

	parent := must.M1(CreateBuffer(ctx, 0, 256, nil))
	defer parent.Release()
	sub := must.M1(parent.CreateSubBuffer(0, 32, 64))
	defer sub.Release()

	// Pack a half-precision 1.5 into the low bytes of the value argument.
	var n [8]byte
	binary.LittleEndian.PutUint16(n[:2], float16.Fromfloat32(1.5).Bits())
	n[7] = 0xab
	require.NoError(t, k.SetArg(0, 8, n[:]))
	require.NoError(t, k.SetArg(1, 8, sub))
	require.NoError(t, k.SetArg(2, 64, nil))

	ev, err := q.EnqueueNDRangeKernel(k, 1, [3]uint64{5, 0, 0}, [3]uint64{4, 0, 0}, [3]uint32{2, 0, 0}, nil)
	require.NoError(t, err)
	q.Finish()
	require.Equal(t, Success, ev.Wait())

	exec := softCtx(q)
	require.Equal(t, 1, exec.LaunchCount())
	rec := exec.LastLaunch()
	require.NotNil(t, rec)

	assert.Equal(t, uint32(1), rec.WorkDim)
	assert.Equal(t, [3]uint32{2, 1, 1}, rec.Block)
	assert.Equal(t, [3]uint32{2, 1, 1}, rec.Grid)
	require.Len(t, rec.Input, 48)

	// Value argument bytes at their resolved offset.
	assert.Equal(t, n[:], rec.Input[0:8])

	// The memory slot holds the root resource address plus the sub-buffer
	// origin.
	require.Len(t, rec.Bindings, 1)
	wantAddr := rec.Bindings[0].Addr() + 32
	assert.Equal(t, wantAddr, binary.LittleEndian.Uint64(rec.Input[8:16]))

	// The local argument slot holds its offset into scratch memory, and the
	// launch carries the total scratch size.
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(rec.Input[16:24]))
	assert.Equal(t, uint32(64), rec.LocalSize)

	// Global offsets follow the user arguments.
	assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(rec.Input[24:32]))
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(rec.Input[32:40]))
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(rec.Input[40:48]))

	// The compute state was torn down after the launch.
	created, deleted := exec.ComputeStateCounts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, deleted)
}

func TestLaunchNullMemArgument(t *testing.T) {
	ctx, dev := newTestContext(t, vaddLowerer())
	k := builtKernel(t, ctx)
	q := must.M1(CreateQueue(ctx, dev))
	defer q.Release()

	require.NoError(t, k.SetArg(0, 8, make([]byte, 8)))
	require.NoError(t, k.SetArg(1, 8, nil))
	require.NoError(t, k.SetArg(2, 8, nil))

	ev, err := q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{1, 0, 0}, [3]uint32{}, nil)
	require.NoError(t, err)
	q.Finish()
	require.Equal(t, Success, ev.Wait())

	rec := softCtx(q).LastLaunch()
	require.NotNil(t, rec)
	assert.Empty(t, rec.Bindings)
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(rec.Input[8:16]))
}

func TestLaunchBlockAutoSelect(t *testing.T) {
	ctx, dev := newTestContext(t, vaddLowerer())
	k := builtKernel(t, ctx)
	q := must.M1(CreateQueue(ctx, dev))
	defer q.Release()
	buf := must.M1(CreateBuffer(ctx, 0, 64, nil))
	defer buf.Release()

	require.NoError(t, k.SetArg(0, 8, make([]byte, 8)))
	require.NoError(t, k.SetArg(1, 8, buf))
	require.NoError(t, k.SetArg(2, 8, nil))

	// 512 divides evenly by the device maximum of 256.
	_, err := q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{512, 0, 0}, [3]uint32{}, nil)
	require.NoError(t, err)
	q.Finish()
	rec := softCtx(q).LastLaunch()
	require.NotNil(t, rec)
	assert.Equal(t, [3]uint32{256, 1, 1}, rec.Block)
	assert.Equal(t, [3]uint32{2, 1, 1}, rec.Grid)

	// 100 does not, so the block falls back to single work-items.
	_, err = q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{100, 0, 0}, [3]uint32{}, nil)
	require.NoError(t, err)
	q.Finish()
	rec = softCtx(q).LastLaunch()
	assert.Equal(t, [3]uint32{1, 1, 1}, rec.Block)
	assert.Equal(t, [3]uint32{100, 1, 1}, rec.Grid)
}

func TestLaunchShapeValidation(t *testing.T) {
	ctx, dev := newTestContext(t, vaddLowerer())
	k := builtKernel(t, ctx)
	q := must.M1(CreateQueue(ctx, dev))
	defer q.Release()

	require.NoError(t, k.SetArg(0, 8, make([]byte, 8)))
	require.NoError(t, k.SetArg(1, 8, nil))
	require.NoError(t, k.SetArg(2, 8, nil))

	_, err := q.EnqueueNDRangeKernel(k, 0, [3]uint64{}, [3]uint64{}, [3]uint32{}, nil)
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
	_, err = q.EnqueueNDRangeKernel(k, 4, [3]uint64{}, [3]uint64{1, 1, 1}, [3]uint32{}, nil)
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))

	// Sizes in dimensions beyond workDim must be zero.
	_, err = q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{4, 2, 0}, [3]uint32{}, nil)
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))

	// Global size overflowing 32 bits.
	_, err = q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{1 << 32, 0, 0}, [3]uint32{}, nil)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))

	// Local size over the device limit, or not dividing the global size.
	_, err = q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{512, 0, 0}, [3]uint32{512, 0, 0}, nil)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))
	_, err = q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{10, 0, 0}, [3]uint32{3, 0, 0}, nil)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))
}

func TestLaunchZeroGlobalSize(t *testing.T) {
	ctx, dev := newTestContext(t, vaddLowerer())
	k := builtKernel(t, ctx)
	q := must.M1(CreateQueue(ctx, dev))
	defer q.Release()

	require.NoError(t, k.SetArg(0, 8, make([]byte, 8)))
	require.NoError(t, k.SetArg(1, 8, nil))
	require.NoError(t, k.SetArg(2, 8, nil))

	// A zero-sized global range completes successfully without reaching the
	// backend.
	ev, err := q.EnqueueNDRangeKernel(k, 2, [3]uint64{}, [3]uint64{4, 0, 0}, [3]uint32{}, nil)
	require.NoError(t, err)
	q.Finish()
	assert.Equal(t, Success, ev.Wait())
	assert.Equal(t, 0, softCtx(q).LaunchCount())
	created, _ := softCtx(q).ComputeStateCounts()
	assert.Equal(t, 0, created)
}

// deadArgLowerer exposes a kernel whose first argument was optimized away:
// its variable never appears in the lowered module.
func deadArgLowerer() *fakeLowerer {
	return &fakeLowerer{kernels: map[string]fakeKernel{
		"scale": {
			args: []shader.Arg{
				{Name: "unused", TypeName: "float", Kind: shader.ArgValue, Size: 4},
				{Name: "data", TypeName: "float*", Kind: shader.ArgMemGlobal, Size: 8},
			},
			vars: []shader.Variable{
				{Location: 1, DriverOffset: 0},
				{Location: 2, DriverOffset: 8}, // global offsets
			},
			workgroupSize: [3]uint32{1, 1, 1},
		},
	}}
}

func TestDeadArgument(t *testing.T) {
	ctx, dev := newTestContext(t, deadArgLowerer())
	q := must.M1(CreateQueue(ctx, dev))
	defer q.Release()

	p := must.M1(CreateProgramWithSource(ctx, "__kernel void scale() {}"))
	require.NoError(t, p.Build(nil, ""))
	k := must.M1(CreateKernel(p, "scale"))
	buf := must.M1(CreateBuffer(ctx, 0, 64, nil))
	defer buf.Release()

	// Dead arguments still validate their values.
	err := k.SetArg(0, 8, make([]byte, 8))
	assert.Equal(t, ErrInvalidSize, CodeOf(err))
	require.NoError(t, k.SetArg(0, 4, make([]byte, 4)))
	require.NoError(t, k.SetArg(1, 8, buf))

	ev, err := q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{1, 0, 0}, [3]uint32{}, nil)
	require.NoError(t, err)
	q.Finish()
	require.Equal(t, Success, ev.Wait())

	rec := softCtx(q).LastLaunch()
	require.NotNil(t, rec)
	require.Len(t, rec.Input, 32)
	require.Len(t, rec.Bindings, 1)
	assert.Equal(t, rec.Bindings[0].Addr(), binary.LittleEndian.Uint64(rec.Input[0:8]))
}

func TestKernelClone(t *testing.T) {
	ctx, dev := newTestContext(t, vaddLowerer())
	k := builtKernel(t, ctx)
	q := must.M1(CreateQueue(ctx, dev))
	defer q.Release()
	buf := must.M1(CreateBuffer(ctx, 0, 64, nil))
	defer buf.Release()

	require.NoError(t, k.SetArg(0, 8, []byte{1, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, k.SetArg(1, 8, buf))

	clone := k.Clone()
	assert.False(t, clone.argsSet(), "local argument is still unset on the clone")
	require.NoError(t, clone.SetArg(2, 8, nil))
	assert.True(t, clone.argsSet())
	assert.False(t, k.argsSet(), "setting the clone's argument must not affect the original")

	// Changing a clone's value leaves the original intact.
	require.NoError(t, clone.SetArg(0, 8, []byte{2, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, k.SetArg(2, 8, nil))

	_, err := q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{1, 0, 0}, [3]uint32{}, nil)
	require.NoError(t, err)
	q.Finish()
	rec := softCtx(q).LastLaunch()
	assert.Equal(t, byte(1), rec.Input[0])

	_, err = q.EnqueueNDRangeKernel(clone, 1, [3]uint64{}, [3]uint64{1, 0, 0}, [3]uint32{}, nil)
	require.NoError(t, err)
	q.Finish()
	rec = softCtx(q).LastLaunch()
	assert.Equal(t, byte(2), rec.Input[0])
}

func TestCreateKernelErrors(t *testing.T) {
	ctx, _ := newTestContext(t, vaddLowerer())

	// Unbuilt program.
	p := must.M1(CreateProgramWithSource(ctx, "__kernel void vadd() {}"))
	_, err := CreateKernel(p, "vadd")
	assert.Equal(t, ErrUnbuiltExecutable, CodeOf(err))

	// Unknown kernel name.
	require.NoError(t, p.Build(nil, ""))
	_, err = CreateKernel(p, "nope")
	assert.Equal(t, ErrUnbuiltExecutable, CodeOf(err))

	_, err = CreateKernel(nil, "vadd")
	assert.Equal(t, ErrInvalidHandle, CodeOf(err))
}

func TestCreateKernelSignatureMismatch(t *testing.T) {
	// Two devices whose lowerers disagree on the signature of "vadd" but
	// agree on "scale".
	low1 := vaddLowerer()
	low1.kernels["scale"] = deadArgLowerer().kernels["scale"]
	low2 := vaddLowerer()
	low2.kernels["vadd"] = fakeKernel{
		args: []shader.Arg{
			{Name: "n", TypeName: "uint", Kind: shader.ArgValue, Size: 4},
		},
		vars:          []shader.Variable{{Location: 0, DriverOffset: 0}},
		workgroupSize: [3]uint32{1, 1, 1},
	}
	low2.kernels["scale"] = deadArgLowerer().kernels["scale"]

	d1 := newFakeDevice(t, "soft0", low1)
	d2 := newFakeDevice(t, "soft1", low2)
	ctx := must.M1(NewContext([]*Device{d1, d2}))

	p := must.M1(CreateProgramWithSource(ctx, "__kernel void vadd() {} __kernel void scale() {}"))
	require.NoError(t, p.Build(nil, ""))

	_, err := CreateKernel(p, "vadd")
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))

	// CreateKernelsInProgram skips the mismatched name and returns the rest.
	kernels, err := CreateKernelsInProgram(p)
	require.NoError(t, err)
	require.Len(t, kernels, 1)
	assert.Equal(t, "scale", kernels[0].Name())
}
