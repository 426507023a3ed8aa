package clrt

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclrt/goclrt/hal/softdev"
	"github.com/goclrt/goclrt/shader"
)

// printfBuf builds a printf buffer: the 4-byte total length followed by the
// encoded records.
func printfBuf(records ...[]byte) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	for _, r := range records {
		buf = append(buf, r...)
	}
	binary.LittleEndian.PutUint32(buf, uint32(len(buf)))
	return buf
}

func printfRecord(fmtIdx uint32, args ...any) []byte {
	rec := binary.LittleEndian.AppendUint32(nil, fmtIdx)
	for _, a := range args {
		switch v := a.(type) {
		case int32:
			rec = binary.LittleEndian.AppendUint32(rec, uint32(v))
		case uint32:
			rec = binary.LittleEndian.AppendUint32(rec, v)
		case int64:
			rec = binary.LittleEndian.AppendUint64(rec, uint64(v))
		case float64:
			rec = binary.LittleEndian.AppendUint64(rec, math.Float64bits(v))
		default:
			panic("unsupported printf test argument")
		}
	}
	return rec
}

func TestDrainPrintf(t *testing.T) {
	formats := []string{
		"v=%d %u %x!\n",
		"f=%f\n",
		"pct=%%\n",
		"big=%ld\n",
		"odd=%q\n",
	}

	var out bytes.Buffer
	drainPrintf(&out, printfBuf(
		printfRecord(0, int32(-3), uint32(7), uint32(255)),
		printfRecord(1, 1.5),
		printfRecord(2),
		printfRecord(3, int64(-10)),
		printfRecord(4),
	), formats)
	assert.Equal(t, "v=-3 7 ff!\nf=1.500000\npct=%\nbig=-10\nodd=%q\n", out.String())
}

func TestDrainPrintfEmpty(t *testing.T) {
	var out bytes.Buffer

	// A buffer still at the initial header length produced no output.
	drainPrintf(&out, printfBuf(), nil)
	assert.Empty(t, out.String())

	// Shorter than the header, or length past the buffer: nothing.
	drainPrintf(&out, []byte{1, 2}, nil)
	assert.Empty(t, out.String())
	drainPrintf(&out, []byte{255, 0, 0, 0, 1, 2, 3, 4}, []string{"%d"})
	assert.Empty(t, out.String())
}

func TestDrainPrintfTruncation(t *testing.T) {
	formats := []string{"a=%d\n", "b=%ld\n"}

	// The second record's argument is cut short; output before it survives.
	var out bytes.Buffer
	full := printfRecord(0, int32(1))
	short := printfRecord(1, int64(5))[:6]
	drainPrintf(&out, printfBuf(full, short), formats)
	assert.Equal(t, "a=1\n", out.String())

	// An out-of-range format index ends the drain.
	out.Reset()
	drainPrintf(&out, printfBuf(printfRecord(9, int32(1)), full), formats)
	assert.Empty(t, out.String())
}

// helloLowerer exposes an argument-less kernel that carries constant data
// and one printf format, so a launch allocates both injected buffers.
func helloLowerer() *fakeLowerer {
	return &fakeLowerer{kernels: map[string]fakeKernel{
		"hello": {
			vars: []shader.Variable{
				{Location: 0, DriverOffset: 0},  // global offsets
				{Location: 1, DriverOffset: 24}, // constant buffer
				{Location: 2, DriverOffset: 32}, // printf buffer
			},
			constData:     []byte{0xde, 0xad, 0xbe, 0xef},
			printfFormats: []string{"x=%d\n"},
			workgroupSize: [3]uint32{1, 1, 1},
		},
	}}
}

func TestLaunchPrintfAndConstants(t *testing.T) {
	ctx, dev := newTestContext(t, helloLowerer())
	q := must.M1(CreateQueue(ctx, dev))
	defer q.Release()
	var debug bytes.Buffer
	q.SetDebugWriter(&debug)

	p := must.M1(CreateProgramWithSource(ctx, "__kernel void hello() {}"))
	require.NoError(t, p.Build(nil, ""))
	k := must.M1(CreateKernel(p, "hello"))
	assert.Empty(t, k.Args())

	// The hook plays the kernel's part: check the constant buffer contents
	// and append one printf record.
	exec := softCtx(q)
	exec.LaunchHook = func(rec *softdev.LaunchRecord) error {
		if len(rec.Bindings) != 2 {
			return errors.Errorf("expected 2 injected bindings, got %d", len(rec.Bindings))
		}
		constMp, err := exec.BufferMap(rec.Bindings[0], 0, 4, true)
		if err != nil {
			return err
		}
		if !bytes.Equal(constMp.Bytes(), []byte{0xde, 0xad, 0xbe, 0xef}) {
			return errors.New("constant buffer holds the wrong data")
		}
		constMp.Unmap()
		return exec.BufferSubdata(rec.Bindings[1], 0, printfBuf(printfRecord(0, int32(42))))
	}

	ev, err := q.EnqueueNDRangeKernel(k, 1, [3]uint64{}, [3]uint64{1, 0, 0}, [3]uint32{}, nil)
	require.NoError(t, err)
	q.Finish()
	require.Equal(t, Success, ev.Wait())
	assert.Equal(t, "x=42\n", debug.String())

	// The injected slots hold the two buffers' device addresses.
	rec := exec.LastLaunch()
	require.NotNil(t, rec)
	require.Len(t, rec.Input, 40)
	assert.Equal(t, rec.Bindings[0].Addr(), binary.LittleEndian.Uint64(rec.Input[24:32]))
	assert.Equal(t, rec.Bindings[1].Addr(), binary.LittleEndian.Uint64(rec.Input[32:40]))
}
