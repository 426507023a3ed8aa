package clrt

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclrt/goclrt/shader"
)

func TestCreateSampler(t *testing.T) {
	ctx, _ := newTestContext(t, vaddLowerer())

	s := must.M1(CreateSampler(ctx, true, AddressRepeat, FilterLinear))
	assert.Equal(t, ctx, s.Context())
	assert.True(t, s.NormalizedCoords())
	assert.Equal(t, AddressRepeat, s.Addressing())
	assert.Equal(t, FilterLinear, s.Filter())

	_, err := CreateSampler(nil, false, AddressNone, FilterNearest)
	assert.Equal(t, ErrInvalidHandle, CodeOf(err))
	_, err = CreateSampler(ctx, false, AddressingMode(99), FilterNearest)
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
	_, err = CreateSampler(ctx, false, AddressNone, FilterMode(99))
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
}

// samplerLowerer exposes a kernel taking a sampler and an image pointer.
func samplerLowerer() *fakeLowerer {
	return &fakeLowerer{kernels: map[string]fakeKernel{
		"sample": {
			args: []shader.Arg{
				{Name: "smp", TypeName: "sampler_t", Kind: shader.ArgSampler},
				{Name: "img", TypeName: "image2d_t", Kind: shader.ArgMemGlobal, Size: 8},
			},
			vars: []shader.Variable{
				{Location: 0, DriverOffset: 0},
				{Location: 1, DriverOffset: 8},
				{Location: 2, DriverOffset: 16}, // global offsets
			},
			workgroupSize: [3]uint32{1, 1, 1},
		},
	}}
}

func TestSamplerKernelArgument(t *testing.T) {
	ctx, dev := newTestContext(t, samplerLowerer())
	q := must.M1(CreateQueue(ctx, dev))
	defer q.Release()

	p := must.M1(CreateProgramWithSource(ctx, "__kernel void sample() {}"))
	require.NoError(t, p.Build(nil, ""))
	k := must.M1(CreateKernel(p, "sample"))

	img := must.M1(CreateImage(ctx, 0, ImageFormat{Order: OrderRGBA, Type: ChannelUnormInt8}, ImageDesc{Type: Image2D, Width: 2, Height: 2}, nil))
	defer img.Release()
	s := must.M1(CreateSampler(ctx, false, AddressClamp, FilterNearest))

	// A sampler argument takes a *Sampler, nothing else, at its declared size.
	err := k.SetArg(0, 0, nil)
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
	err = k.SetArg(0, 0, img)
	assert.Equal(t, ErrInvalidArgument, CodeOf(err))
	err = k.SetArg(0, 12345, s)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))
	require.NoError(t, k.SetArg(0, 0, s))
	require.NoError(t, k.SetArg(1, 8, img))

	ev, err := q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{1, 0, 0}, [3]uint32{}, nil)
	require.NoError(t, err)
	q.Finish()
	require.Equal(t, Success, ev.Wait())

	// Samplers contribute no payload; the image resource is still bound.
	rec := softCtx(q).LastLaunch()
	require.NotNil(t, rec)
	require.Len(t, rec.Bindings, 1)
}
