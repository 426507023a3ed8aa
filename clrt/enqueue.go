package clrt

// Enqueue operations. Each validates synchronously, builds an event whose
// retained closure performs the work on the queue worker, and appends the
// event to the pending list. Failures after enqueue surface through the
// event's status, never through the enqueue call.

// validateDeps checks the wait list. Blocking operations additionally fail
// synchronously when a wait-list event already resolved to an error.
func (q *Queue) validateDeps(deps []*Event, blocking bool) error {
	for _, e := range deps {
		if e == nil {
			return errorf(ErrInvalidHandle, "nil event in wait list")
		}
		if e.ctx != q.ctx {
			return errorf(ErrIncompatibleContext, "wait-list event belongs to a different context")
		}
	}
	if blocking {
		for _, e := range deps {
			if s := e.Status(); s < 0 {
				return errorf(ErrDependencyFailed, "blocking operation with a failed wait-list event (status %d)", s)
			}
		}
	}
	return nil
}

// checkBuffer validates a buffer operand against the queue and the host
// access direction of the operation.
func (q *Queue) checkBuffer(m *Mem, hostReads, hostWrites bool) error {
	if m == nil {
		return errorf(ErrInvalidHandle, "nil memory object")
	}
	if m.image {
		return errorf(ErrInvalidHandle, "operation requires a buffer, got an image")
	}
	if m.ctx != q.ctx {
		return errorf(ErrIncompatibleContext, "memory object belongs to a different context")
	}
	if hostReads && bitCheck(m.flags, MemHostWriteOnly|MemHostNoAccess) {
		return errorf(ErrInvalidArgument, "buffer flags %#x forbid host reads", uint32(m.flags))
	}
	if hostWrites && bitCheck(m.flags, MemHostReadOnly|MemHostNoAccess) {
		return errorf(ErrInvalidArgument, "buffer flags %#x forbid host writes", uint32(m.flags))
	}
	return nil
}

// finishBlocking flushes and waits on ev for the blocking operation
// variants, converting an event failure into a synchronous error.
func (q *Queue) finishBlocking(ev *Event) (*Event, error) {
	q.Flush(true)
	if c := ev.Wait(); c != Success {
		return ev, c
	}
	return ev, nil
}

// EnqueueReadBuffer reads len(dst) bytes from the buffer at offset into
// dst. With blocking set, the call flushes and waits for completion.
func (q *Queue) EnqueueReadBuffer(m *Mem, blocking bool, offset uint64, dst []byte, deps []*Event) (*Event, error) {
	if err := q.checkBuffer(m, true, false); err != nil {
		return nil, err
	}
	if err := q.validateDeps(deps, blocking); err != nil {
		return nil, err
	}
	if dst == nil {
		return nil, errorf(ErrInvalidArgument, "nil destination slice")
	}
	size := uint64(len(dst))
	if size == 0 {
		return nil, errorf(ErrInvalidSize, "zero-sized read")
	}
	if offset+size > m.size {
		return nil, errorf(ErrOutOfBoundsRegion, "read [%d, %d) exceeds buffer size %d", offset, offset+size, m.size)
	}
	ev := newEvent(q, deps, func(q *Queue) error {
		return m.read(q, offset, dst)
	})
	q.queueEvent(ev)
	if blocking {
		return q.finishBlocking(ev)
	}
	return ev, nil
}

// EnqueueWriteBuffer writes src into the buffer at offset.
func (q *Queue) EnqueueWriteBuffer(m *Mem, blocking bool, offset uint64, src []byte, deps []*Event) (*Event, error) {
	if err := q.checkBuffer(m, false, true); err != nil {
		return nil, err
	}
	if err := q.validateDeps(deps, blocking); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errorf(ErrInvalidArgument, "nil source slice")
	}
	size := uint64(len(src))
	if size == 0 {
		return nil, errorf(ErrInvalidSize, "zero-sized write")
	}
	if offset+size > m.size {
		return nil, errorf(ErrOutOfBoundsRegion, "write [%d, %d) exceeds buffer size %d", offset, offset+size, m.size)
	}
	ev := newEvent(q, deps, func(q *Queue) error {
		return m.write(q, offset, src)
	})
	q.queueEvent(ev)
	if blocking {
		return q.finishBlocking(ev)
	}
	return ev, nil
}

// EnqueueReadBufferRect reads a rectangular region from the buffer into
// host memory. Zero pitches default to region[0] (row) and region[1]*row
// (slice), per side.
func (q *Queue) EnqueueReadBufferRect(m *Mem, blocking bool, bufOrigin, hostOrigin, region Vec, bufRow, bufSlice, hostRow, hostSlice uint64, host []byte, deps []*Event) (*Event, error) {
	if err := q.checkBuffer(m, true, false); err != nil {
		return nil, err
	}
	if err := q.validateDeps(deps, blocking); err != nil {
		return nil, err
	}
	if host == nil {
		return nil, errorf(ErrInvalidArgument, "nil host slice")
	}
	bufRow, bufSlice, err := defaultPitches(region, bufRow, bufSlice)
	if err != nil {
		return nil, err
	}
	hostRow, hostSlice, err = defaultPitches(region, hostRow, hostSlice)
	if err != nil {
		return nil, err
	}
	if region.Add(bufOrigin).Dot(pitches(bufRow, bufSlice)) > m.size {
		return nil, errorf(ErrOutOfBoundsRegion, "region %v at %v exceeds buffer size %d", region, bufOrigin, m.size)
	}
	if rectEnd(hostOrigin, region, hostRow, hostSlice) > uint64(len(host)) {
		return nil, errorf(ErrOutOfBoundsRegion, "region %v at %v exceeds host slice of %d bytes", region, hostOrigin, len(host))
	}
	ev := newEvent(q, deps, func(q *Queue) error {
		return m.readRect(q, host, bufOrigin, hostOrigin, region, bufRow, bufSlice, hostRow, hostSlice)
	})
	q.queueEvent(ev)
	if blocking {
		return q.finishBlocking(ev)
	}
	return ev, nil
}

// EnqueueWriteBufferRect writes a rectangular region from host memory into
// the buffer.
func (q *Queue) EnqueueWriteBufferRect(m *Mem, blocking bool, bufOrigin, hostOrigin, region Vec, bufRow, bufSlice, hostRow, hostSlice uint64, host []byte, deps []*Event) (*Event, error) {
	if err := q.checkBuffer(m, false, true); err != nil {
		return nil, err
	}
	if err := q.validateDeps(deps, blocking); err != nil {
		return nil, err
	}
	if host == nil {
		return nil, errorf(ErrInvalidArgument, "nil host slice")
	}
	bufRow, bufSlice, err := defaultPitches(region, bufRow, bufSlice)
	if err != nil {
		return nil, err
	}
	hostRow, hostSlice, err = defaultPitches(region, hostRow, hostSlice)
	if err != nil {
		return nil, err
	}
	if region.Add(bufOrigin).Dot(pitches(bufRow, bufSlice)) > m.size {
		return nil, errorf(ErrOutOfBoundsRegion, "region %v at %v exceeds buffer size %d", region, bufOrigin, m.size)
	}
	if rectEnd(hostOrigin, region, hostRow, hostSlice) > uint64(len(host)) {
		return nil, errorf(ErrOutOfBoundsRegion, "region %v at %v exceeds host slice of %d bytes", region, hostOrigin, len(host))
	}
	ev := newEvent(q, deps, func(q *Queue) error {
		return m.writeRect(q, host, hostOrigin, bufOrigin, region, hostRow, hostSlice, bufRow, bufSlice)
	})
	q.queueEvent(ev)
	if blocking {
		return q.finishBlocking(ev)
	}
	return ev, nil
}

// EnqueueCopyBuffer copies size bytes between two buffers. Aliasing ranges
// of the same buffer (or of two sub-buffers with a common root) are
// rejected.
func (q *Queue) EnqueueCopyBuffer(src, dst *Mem, srcOffset, dstOffset, size uint64, deps []*Event) (*Event, error) {
	if err := q.checkBuffer(src, false, false); err != nil {
		return nil, err
	}
	if err := q.checkBuffer(dst, false, false); err != nil {
		return nil, err
	}
	if err := q.validateDeps(deps, false); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errorf(ErrInvalidSize, "zero-sized copy")
	}
	if srcOffset+size > src.size {
		return nil, errorf(ErrOutOfBoundsRegion, "copy source [%d, %d) exceeds buffer size %d", srcOffset, srcOffset+size, src.size)
	}
	if dstOffset+size > dst.size {
		return nil, errorf(ErrOutOfBoundsRegion, "copy destination [%d, %d) exceeds buffer size %d", dstOffset, dstOffset+size, dst.size)
	}
	if src.hasSameParent(dst) &&
		regionsOverlap(Vec{srcOffset, 0, 0}, src.offset, Vec{dstOffset, 0, 0}, dst.offset, Vec{size, 1, 1}, size, size) {
		return nil, errorf(ErrOverlappingRegion, "copy source and destination overlap")
	}
	ev := newEvent(q, deps, func(q *Queue) error {
		return src.copyTo(q, dst, srcOffset, dstOffset, size)
	})
	q.queueEvent(ev)
	return ev, nil
}

// EnqueueCopyBufferRect copies a rectangular region between two buffers.
func (q *Queue) EnqueueCopyBufferRect(src, dst *Mem, srcOrigin, dstOrigin, region Vec, srcRow, srcSlice, dstRow, dstSlice uint64, deps []*Event) (*Event, error) {
	if err := q.checkBuffer(src, false, false); err != nil {
		return nil, err
	}
	if err := q.checkBuffer(dst, false, false); err != nil {
		return nil, err
	}
	if err := q.validateDeps(deps, false); err != nil {
		return nil, err
	}
	srcRow, srcSlice, err := copyPitches(region, srcRow, srcSlice)
	if err != nil {
		return nil, err
	}
	dstRow, dstSlice, err = copyPitches(region, dstRow, dstSlice)
	if err != nil {
		return nil, err
	}
	if src == dst && srcSlice != dstSlice && srcRow != dstRow {
		return nil, errorf(ErrInvalidArgument, "copy within one buffer requires matching pitches")
	}
	if region.Add(srcOrigin).Dot(pitches(srcRow, srcSlice)) > src.size {
		return nil, errorf(ErrOutOfBoundsRegion, "region %v at %v exceeds source size %d", region, srcOrigin, src.size)
	}
	if region.Add(dstOrigin).Dot(pitches(dstRow, dstSlice)) > dst.size {
		return nil, errorf(ErrOutOfBoundsRegion, "region %v at %v exceeds destination size %d", region, dstOrigin, dst.size)
	}
	if src.hasSameParent(dst) &&
		regionsOverlap(srcOrigin, src.offset, dstOrigin, dst.offset, region, srcRow, srcSlice) {
		return nil, errorf(ErrOverlappingRegion, "copy source and destination regions overlap")
	}
	ev := newEvent(q, deps, func(q *Queue) error {
		return src.copyRectTo(q, dst, srcOrigin, dstOrigin, region, srcRow, srcSlice, dstRow, dstSlice)
	})
	q.queueEvent(ev)
	return ev, nil
}

// EnqueueMapBuffer maps [offset, offset+size) of the buffer and returns
// the host-visible bytes. Only the blocking variant is implemented;
// non-blocking maps fail with ErrNotImplemented.
func (q *Queue) EnqueueMapBuffer(m *Mem, blocking bool, offset, size uint64, deps []*Event) ([]byte, *Event, error) {
	if err := q.checkBuffer(m, false, false); err != nil {
		return nil, nil, err
	}
	if err := q.validateDeps(deps, blocking); err != nil {
		return nil, nil, err
	}
	if !blocking {
		return nil, nil, errorf(ErrNotImplemented, "non-blocking map is not implemented")
	}
	if size == 0 {
		return nil, nil, errorf(ErrInvalidSize, "zero-sized map")
	}
	if offset+size > m.size {
		return nil, nil, errorf(ErrOutOfBoundsRegion, "map [%d, %d) exceeds buffer size %d", offset, offset+size, m.size)
	}
	var ptr []byte
	ev := newEvent(q, deps, func(q *Queue) error {
		b, err := m.mapRange(q, offset, size)
		if err != nil {
			return err
		}
		ptr = b
		return nil
	})
	q.queueEvent(ev)
	if _, err := q.finishBlocking(ev); err != nil {
		return nil, ev, err
	}
	return ptr, ev, nil
}

// EnqueueUnmapMemObject releases a mapping previously returned by
// EnqueueMapBuffer. A pointer that is not an active mapping of m fails
// synchronously.
func (q *Queue) EnqueueUnmapMemObject(m *Mem, ptr []byte, deps []*Event) (*Event, error) {
	if m == nil {
		return nil, errorf(ErrInvalidHandle, "nil memory object")
	}
	if m.ctx != q.ctx {
		return nil, errorf(ErrIncompatibleContext, "memory object belongs to a different context")
	}
	if err := q.validateDeps(deps, false); err != nil {
		return nil, err
	}
	if !m.hasMapping(ptr) {
		return nil, errorf(ErrInvalidArgument, "pointer is not an active mapping")
	}
	ev := newEvent(q, deps, func(q *Queue) error {
		if !m.unmap(ptr) {
			return errorf(ErrInvalidArgument, "pointer is not an active mapping")
		}
		return nil
	})
	q.queueEvent(ev)
	return ev, nil
}

// EnqueueNDRangeKernel enqueues a kernel launch over the given global work
// shape. Zero localSize components are auto-selected; explicit ones must
// divide the global size and respect the device limits.
func (q *Queue) EnqueueNDRangeKernel(k *Kernel, workDim uint32, globalOffset, globalSize [3]uint64, localSize [3]uint32, deps []*Event) (*Event, error) {
	if k == nil {
		return nil, errorf(ErrInvalidHandle, "nil kernel")
	}
	if k.prog.ctx != q.ctx {
		return nil, errorf(ErrIncompatibleContext, "kernel belongs to a different context")
	}
	if err := q.validateDeps(deps, false); err != nil {
		return nil, err
	}
	if workDim < 1 || workDim > 3 {
		return nil, errorf(ErrInvalidArgument, "work dimension %d out of range 1..3", workDim)
	}
	if k.dev[q.dev] == nil {
		return nil, errorf(ErrUnbuiltExecutable, "kernel %q has no build for %s", k.name, q.dev)
	}
	if !k.argsSet() {
		return nil, errorf(ErrInvalidArgument, "kernel %q has unset arguments", k.name)
	}

	grid := [3]uint32{1, 1, 1}
	limits := q.dev.limits
	for i := uint32(0); i < 3; i++ {
		if i >= workDim {
			if globalSize[i] != 0 || localSize[i] != 0 {
				return nil, errorf(ErrInvalidArgument, "dimension %d is beyond work dimension %d", i, workDim)
			}
			continue
		}
		if globalSize[i] > 1<<32-1 {
			return nil, errorf(ErrInvalidSize, "global size %d in dimension %d overflows", globalSize[i], i)
		}
		if localSize[i] > limits.MaxBlockSizes[i] {
			return nil, errorf(ErrInvalidSize, "local size %d exceeds device limit %d in dimension %d", localSize[i], limits.MaxBlockSizes[i], i)
		}
		if localSize[i] != 0 && globalSize[i]%uint64(localSize[i]) != 0 {
			return nil, errorf(ErrInvalidSize, "local size %d does not divide global size %d in dimension %d", localSize[i], globalSize[i], i)
		}
		grid[i] = uint32(globalSize[i])
	}

	work, err := k.launch(q, workDim, localSize, grid, globalOffset)
	if err != nil {
		return nil, err
	}
	ev := newEvent(q, deps, work)
	q.queueEvent(ev)
	return ev, nil
}

// EnqueueMarker enqueues a trivial event that completes when the given
// events (or, with an empty list, everything currently pending) complete.
func (q *Queue) EnqueueMarker(deps []*Event) (*Event, error) {
	if err := q.validateDeps(deps, false); err != nil {
		return nil, err
	}
	if len(deps) == 0 {
		deps = q.pendingSnapshot()
	}
	ev := newTrivialEvent(q, deps)
	q.queueEvent(ev)
	return ev, nil
}

// EnqueueBarrier enqueues a trivial event depending on the given events
// or, with an empty list, on everything currently pending. Later commands
// order after it by depending on it.
func (q *Queue) EnqueueBarrier(deps []*Event) (*Event, error) {
	return q.EnqueueMarker(deps)
}
