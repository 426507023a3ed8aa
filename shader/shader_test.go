package shader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinarySignature(t *testing.T) {
	bin := &Binary{
		Data: []byte{1},
		Kernels: []KernelSig{
			{Name: "fill", Args: []Arg{{Name: "v", TypeName: "uint", Kind: ArgValue, Size: 4}}},
			{Name: "copy"},
		},
	}

	args, ok := bin.Signature("fill")
	assert.True(t, ok)
	assert.Len(t, args, 1)
	assert.Equal(t, "v", args[0].Name)

	args, ok = bin.Signature("copy")
	assert.True(t, ok)
	assert.Empty(t, args)

	_, ok = bin.Signature("missing")
	assert.False(t, ok)
}

func TestSigsEqual(t *testing.T) {
	base := []Arg{
		{Name: "n", TypeName: "ulong", Kind: ArgValue, Size: 8},
		{Name: "dst", TypeName: "float*", Kind: ArgMemGlobal, Size: 8},
		{Name: "tmp", TypeName: "float*", Kind: ArgMemLocal},
	}

	same := []Arg{
		{Name: "count", TypeName: "ulong", Kind: ArgValue, Size: 8},
		{Name: "out", TypeName: "float*", Kind: ArgMemGlobal, Size: 8},
		{Name: "scratch", TypeName: "float*", Kind: ArgMemLocal},
	}
	// Parameter names do not participate.
	assert.True(t, SigsEqual(base, same))
	assert.True(t, SigsEqual(nil, nil))
	assert.True(t, SigsEqual(nil, []Arg{}))

	shorter := base[:2]
	assert.False(t, SigsEqual(base, shorter))

	kind := append([]Arg(nil), base...)
	kind[1].Kind = ArgMemConstant
	assert.False(t, SigsEqual(base, kind))

	size := append([]Arg(nil), base...)
	size[0].Size = 4
	assert.False(t, SigsEqual(base, size))

	typ := append([]Arg(nil), base...)
	typ[0].TypeName = "uint"
	assert.False(t, SigsEqual(base, typ))
}
