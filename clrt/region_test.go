package clrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVecMath(t *testing.T) {
	assert.Equal(t, Vec{5, 7, 9}, Vec{1, 2, 3}.Add(Vec{4, 5, 6}))
	// {x,y,z} · {1,row,slice} is the flattened byte offset.
	assert.Equal(t, uint64(2+3*16+4*256), Vec{2, 3, 4}.Dot(pitches(16, 256)))
}

func TestDefaultPitches(t *testing.T) {
	region := Vec{16, 4, 2}

	row, slice, err := defaultPitches(region, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, region[0], row)
	assert.Equal(t, region[1]*region[0], slice)

	// Zero pitches behave exactly like the explicitly computed defaults.
	row2, slice2, err := defaultPitches(region, region[0], region[1]*region[0])
	require.NoError(t, err)
	assert.Equal(t, row, row2)
	assert.Equal(t, slice, slice2)

	// Row pitch below region[0] is invalid.
	_, _, err = defaultPitches(region, 8, 0)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))

	// A slice pitch that is a multiple of the row pitch passes even when
	// it is below region[1]*row.
	_, slice3, err := defaultPitches(region, 32, 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), slice3)

	// Not a multiple and too small: invalid.
	_, _, err = defaultPitches(region, 32, 63)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))

	// A zero region component is invalid.
	_, _, err = defaultPitches(Vec{16, 0, 1}, 0, 0)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))
}

func TestCopyPitches(t *testing.T) {
	region := Vec{16, 4, 2}

	row, slice, err := copyPitches(region, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, region[0], row)
	assert.Equal(t, region[1]*region[0], slice)

	// Unlike read/write transfers, copies reject an undersized slice
	// pitch even when it is a multiple of the row pitch.
	_, _, err = copyPitches(region, 32, 64)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))

	// A slice pitch that clears region[1]*row must still divide evenly.
	_, _, err = copyPitches(region, 32, 200)
	assert.Equal(t, ErrInvalidSize, CodeOf(err))

	_, slice2, err := copyPitches(region, 32, 160)
	require.NoError(t, err)
	assert.Equal(t, uint64(160), slice2)
}

func TestRectEnd(t *testing.T) {
	// The last byte touched is the start of the final row plus region[0],
	// not the flattened origin+region corner.
	assert.Equal(t, uint64(28), rectEnd(Vec{0, 0, 0}, Vec{4, 2, 2}, 8, 16))
	assert.Equal(t, uint64(8), rectEnd(Vec{0, 0, 0}, Vec{4, 2, 1}, 4, 8))
	assert.Equal(t, uint64(31), rectEnd(Vec{3, 0, 0}, Vec{4, 2, 2}, 8, 16))
}

func TestRegionsOverlap(t *testing.T) {
	region := Vec{8, 4, 2}
	row, slice, err := defaultPitches(region, 0, 0)
	require.NoError(t, err)

	// Identical regions at the same origin always overlap.
	assert.True(t, regionsOverlap(Vec{0, 0, 0}, 0, Vec{0, 0, 0}, 0, region, row, slice))

	// Same origin, but the objects are disjoint sub-buffers of one root.
	assert.False(t, regionsOverlap(Vec{0, 0, 0}, 0, Vec{0, 0, 0}, 4096, region, row, slice))

	// Separated by more than the region extent in every dimension.
	assert.False(t, regionsOverlap(Vec{0, 0, 0}, 0, Vec{0, 0, 0}.Add(Vec{0, 0, region[2]}), 0, region, row, slice))

	// Flattened ranges intersect and the row windows collide.
	assert.True(t, regionsOverlap(Vec{0, 0, 0}, 0, Vec{4, 0, 0}, 0, region, row, slice))

	// Row windows fit into the gap between region[0] and the row pitch.
	wideRow := uint64(32)
	wideSlice := region[1] * wideRow
	assert.False(t, regionsOverlap(Vec{0, 0, 0}, 0, Vec{16, 0, 0}, 0, region, wideRow, wideSlice))

	// One-dimensional copies degenerate to a range check.
	one := Vec{64, 1, 1}
	assert.True(t, regionsOverlap(Vec{0, 0, 0}, 0, Vec{32, 0, 0}, 0, one, 64, 64))
	assert.False(t, regionsOverlap(Vec{0, 0, 0}, 0, Vec{64, 0, 0}, 0, one, 64, 64))
}
