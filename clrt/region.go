package clrt

// Vec is a 3-component {x, y, z} vector used for origins, regions and
// pitch weights of rectangular buffer operations.
type Vec [3]uint64

// Add returns the componentwise sum v + o.
func (v Vec) Add(o Vec) Vec {
	return Vec{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Dot flattens v against a weight vector, typically {1, rowPitch,
// slicePitch}, yielding a linear byte offset.
func (v Vec) Dot(o Vec) uint64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// pitches builds the {1, row, slice} weight vector for Dot.
func pitches(row, slice uint64) Vec {
	return Vec{1, row, slice}
}

// defaultPitches applies the zero-pitch rules for rectangular transfers:
// a zero row pitch becomes region[0], then a zero slice pitch becomes
// region[1] times the (already defaulted) row pitch. A non-zero row pitch
// below region[0] is invalid; a non-zero slice pitch is invalid when it is
// both below region[1]*row and not a multiple of row.
func defaultPitches(region Vec, row, slice uint64) (uint64, uint64, error) {
	if region[0] == 0 || region[1] == 0 || region[2] == 0 {
		return 0, 0, errorf(ErrInvalidSize, "region %v has a zero component", region)
	}
	if row != 0 && row < region[0] {
		return 0, 0, errorf(ErrInvalidSize, "row pitch %d is smaller than region[0]=%d", row, region[0])
	}
	if row == 0 {
		row = region[0]
	}
	if slice != 0 && slice < region[1]*row && slice%row != 0 {
		return 0, 0, errorf(ErrInvalidSize, "slice pitch %d is invalid for region %v and row pitch %d", slice, region, row)
	}
	if slice == 0 {
		slice = region[1] * row
	}
	return row, slice, nil
}

// copyPitches applies the stricter pitch rules of rectangular copies: a
// non-zero slice pitch must be at least region[1]*row AND a multiple of
// the row pitch, each violation rejected on its own.
func copyPitches(region Vec, row, slice uint64) (uint64, uint64, error) {
	if region[0] == 0 || region[1] == 0 || region[2] == 0 {
		return 0, 0, errorf(ErrInvalidSize, "region %v has a zero component", region)
	}
	if row != 0 && row < region[0] {
		return 0, 0, errorf(ErrInvalidSize, "row pitch %d is smaller than region[0]=%d", row, region[0])
	}
	if row == 0 {
		row = region[0]
	}
	if slice != 0 {
		if slice < region[1]*row {
			return 0, 0, errorf(ErrInvalidSize, "slice pitch %d is smaller than region[1]*row=%d", slice, region[1]*row)
		}
		if slice%row != 0 {
			return 0, 0, errorf(ErrInvalidSize, "slice pitch %d is not a multiple of row pitch %d", slice, row)
		}
	} else {
		slice = region[1] * row
	}
	return row, slice, nil
}

// rectEnd returns one past the last byte a rectangular transfer touches in
// a tightly indexed slice: the start of the final row plus region[0].
func rectEnd(origin, region Vec, row, slice uint64) uint64 {
	return origin.Add(Vec{0, region[1] - 1, region[2] - 1}).Dot(pitches(row, slice)) + region[0]
}

// regionsOverlap reports whether two equally-sized regions of the same
// flattened address space alias. srcOffset and dstOffset are the byte
// offsets of the two objects within that space (non-zero for sub-buffers).
//
// Three tests, all of which must pass for "no overlap": the flattened
// ranges are disjoint; the row-local windows cannot intersect within the
// row pitch; the slice-local windows cannot intersect within the slice
// pitch.
func regionsOverlap(srcOrigin Vec, srcOffset uint64, dstOrigin Vec, dstOffset uint64, region Vec, rowPitch, slicePitch uint64) bool {
	sliceSize := (region[1]-1)*rowPitch + region[0]
	blockSize := (region[2]-1)*slicePitch + sliceSize
	srcStart := srcOrigin[2]*slicePitch + srcOrigin[1]*rowPitch + srcOrigin[0] + srcOffset
	srcEnd := srcStart + blockSize
	dstStart := dstOrigin[2]*slicePitch + dstOrigin[1]*rowPitch + dstOrigin[0] + dstOffset
	dstEnd := dstStart + blockSize

	if dstEnd <= srcStart || srcEnd <= dstStart {
		return false
	}

	srcDx := (srcOrigin[0] + srcOffset) % rowPitch
	dstDx := (dstOrigin[0] + dstOffset) % rowPitch
	if (dstDx >= srcDx+region[0] && dstDx+region[0] <= srcDx+rowPitch) ||
		(srcDx >= dstDx+region[0] && srcDx+region[0] <= dstDx+rowPitch) {
		return false
	}

	srcDy := (srcOrigin[1]*rowPitch + srcOrigin[0] + srcOffset) % slicePitch
	dstDy := (dstOrigin[1]*rowPitch + dstOrigin[0] + dstOffset) % slicePitch
	if (dstDy >= srcDy+sliceSize && dstDy+sliceSize <= srcDy+slicePitch) ||
		(srcDy >= dstDy+sliceSize && srcDy+sliceSize <= dstDy+slicePitch) {
		return false
	}

	return true
}
