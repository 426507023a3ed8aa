package clrt

import (
	"math/bits"
	"sync"
	"unsafe"

	"github.com/goclrt/goclrt/hal"
	"k8s.io/klog/v2"
)

// MemFlags control the access and host-pointer semantics of a memory
// object. The bits form three groups — device access, host-pointer origin
// and host access — and at most one flag per group may be set.
type MemFlags uint32

const (
	MemReadWrite     MemFlags = 1 << 0
	MemWriteOnly     MemFlags = 1 << 1
	MemReadOnly      MemFlags = 1 << 2
	MemUseHostPtr    MemFlags = 1 << 3
	MemAllocHostPtr  MemFlags = 1 << 4
	MemCopyHostPtr   MemFlags = 1 << 5
	MemHostWriteOnly MemFlags = 1 << 7
	MemHostReadOnly  MemFlags = 1 << 8
	MemHostNoAccess  MemFlags = 1 << 9
)

const (
	accessGroup     = MemReadWrite | MemWriteOnly | MemReadOnly
	hostPtrGroup    = MemUseHostPtr | MemAllocHostPtr | MemCopyHostPtr
	hostAccessGroup = MemHostWriteOnly | MemHostReadOnly | MemHostNoAccess
)

func bitCheck(flags, bits MemFlags) bool { return flags&bits != 0 }

// validateMemFlags rejects unknown bits and more than one flag per group.
// Images additionally disallow the host-pointer group.
func validateMemFlags(flags MemFlags, image bool) error {
	valid := accessGroup | hostPtrGroup | hostAccessGroup
	if image {
		valid &^= hostPtrGroup
	}
	if flags&^valid != 0 {
		return errorf(ErrInvalidArgument, "unknown or disallowed memory flags %#x", uint32(flags&^valid))
	}
	for _, group := range []MemFlags{accessGroup, hostPtrGroup, hostAccessGroup} {
		if bits.OnesCount32(uint32(flags&group)) > 1 {
			return errorf(ErrInvalidArgument, "conflicting memory flags %#x", uint32(flags&group))
		}
	}
	return nil
}

// inheritMemFlags fills flags from the parent: unset access and host-access
// groups copy from the parent, the host-pointer group is always overwritten
// from the parent.
func inheritMemFlags(flags MemFlags, parent MemFlags) MemFlags {
	if flags&accessGroup == 0 {
		flags |= parent & accessGroup
	}
	flags &^= hostPtrGroup
	flags |= parent & hostPtrGroup
	if flags&hostAccessGroup == 0 {
		flags |= parent & hostAccessGroup
	}
	return flags
}

// validateMatchingBufferFlags rejects requested flags that contradict the
// parent's restrictions, and any host-pointer flag (those are inherited,
// never requested).
func validateMatchingBufferFlags(parent *Mem, flags MemFlags) error {
	if bitCheck(parent.flags, MemWriteOnly) && bitCheck(flags, MemReadWrite|MemReadOnly) ||
		bitCheck(parent.flags, MemReadOnly) && bitCheck(flags, MemReadWrite|MemWriteOnly) ||
		bitCheck(flags, hostPtrGroup) ||
		bitCheck(parent.flags, MemHostWriteOnly) && bitCheck(flags, MemHostReadOnly) ||
		bitCheck(parent.flags, MemHostReadOnly) && bitCheck(flags, MemHostWriteOnly) ||
		bitCheck(parent.flags, MemHostNoAccess) && bitCheck(flags, MemHostReadOnly|MemHostWriteOnly) {
		return errorf(ErrInvalidArgument, "flags %#x contradict parent flags %#x", uint32(flags), uint32(parent.flags))
	}
	return nil
}

// validateHostPtr enforces the pairing between the host slice and the
// host-pointer flags.
func validateHostPtr(flags MemFlags, host []byte, size uint64) error {
	if host == nil && bitCheck(flags, MemUseHostPtr|MemCopyHostPtr) {
		return errorf(ErrInvalidArgument, "flags %#x require a host slice", uint32(flags))
	}
	if host != nil && !bitCheck(flags, MemUseHostPtr|MemCopyHostPtr) {
		return errorf(ErrInvalidArgument, "host slice given without MemUseHostPtr or MemCopyHostPtr")
	}
	if host != nil && uint64(len(host)) < size {
		return errorf(ErrInvalidSize, "host slice holds %d bytes, object needs %d", len(host), size)
	}
	return nil
}

// Mem is a buffer or image memory object. A root object owns one backend
// resource per context device; a sub-buffer owns no resources and defers
// to its root's table, offset by its origin.
//
// The resource table is written once at creation and read-only afterwards.
// The mapping table and the destructor list are guarded by mu.
type Mem struct {
	ctx    *Context
	parent *Mem
	flags  MemFlags
	size   uint64
	offset uint64
	image  bool
	format ImageFormat
	desc   ImageDesc

	host []byte
	res  map[*Device]hal.Resource

	mu    sync.Mutex
	refs  int
	maps  map[*byte]hal.Mapping
	dtors []func()
}

// CreateBuffer creates a root buffer of the given size. A zero access
// group defaults to MemReadWrite. With MemUseHostPtr or MemCopyHostPtr the
// host slice provides the initial contents; with MemUseHostPtr the backend
// may keep sharing it.
func CreateBuffer(ctx *Context, flags MemFlags, size uint64, host []byte) (*Mem, error) {
	if ctx == nil {
		return nil, errorf(ErrInvalidHandle, "nil context")
	}
	if err := validateMemFlags(flags, false); err != nil {
		return nil, err
	}
	if flags&accessGroup == 0 {
		flags |= MemReadWrite
	}
	if err := validateHostPtr(flags, host, size); err != nil {
		return nil, err
	}

	var user []byte
	if bitCheck(flags, MemUseHostPtr|MemCopyHostPtr) {
		user = host[:size]
	}
	res, err := ctx.createBuffers(size, user)
	if err != nil {
		return nil, err
	}
	m := &Mem{
		ctx:   ctx,
		flags: flags,
		size:  size,
		res:   res,
		refs:  1,
		maps:  map[*byte]hal.Mapping{},
	}
	if bitCheck(flags, MemUseHostPtr) {
		m.host = host[:size]
	}
	return m, nil
}

// CreateSubBuffer creates a view of [origin, origin+size) within a root
// buffer. Unset flag groups inherit from the parent; the host-pointer
// group always does.
func (m *Mem) CreateSubBuffer(flags MemFlags, origin, size uint64) (*Mem, error) {
	if m.image {
		return nil, errorf(ErrInvalidHandle, "sub-buffer of an image")
	}
	if m.parent != nil {
		return nil, errorf(ErrInvalidHandle, "sub-buffer of a sub-buffer")
	}
	if err := validateMatchingBufferFlags(m, flags); err != nil {
		return nil, err
	}
	flags = inheritMemFlags(flags, m.flags)
	if err := validateMemFlags(flags, false); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errorf(ErrInvalidSize, "zero-sized sub-buffer")
	}
	if origin+size > m.size {
		return nil, errorf(ErrOutOfBoundsRegion, "sub-buffer [%d, %d) exceeds parent size %d", origin, origin+size, m.size)
	}
	m.Retain()
	return &Mem{
		ctx:    m.ctx,
		parent: m,
		flags:  flags,
		size:   size,
		offset: origin,
		refs:   1,
		maps:   map[*byte]hal.Mapping{},
	}, nil
}

// CreateImage creates an image object. Images reject the host-pointer flag
// group; initial contents, when given, are uploaded at creation.
func CreateImage(ctx *Context, flags MemFlags, format ImageFormat, desc ImageDesc, host []byte) (*Mem, error) {
	if ctx == nil {
		return nil, errorf(ErrInvalidHandle, "nil context")
	}
	if err := validateMemFlags(flags, true); err != nil {
		return nil, err
	}
	if flags&accessGroup == 0 {
		flags |= MemReadWrite
	}
	hf, err := format.halFormat()
	if err != nil {
		return nil, err
	}
	desc, err = desc.validate(format, host != nil)
	if err != nil {
		return nil, err
	}
	size := desc.byteSize()
	if host != nil && uint64(len(host)) < size {
		return nil, errorf(ErrInvalidSize, "host slice holds %d bytes, image needs %d", len(host), size)
	}
	var user []byte
	if host != nil {
		user = host[:size]
	}
	res, err := ctx.createTextures(&desc, hf, user)
	if err != nil {
		return nil, err
	}
	return &Mem{
		ctx:    ctx,
		flags:  flags,
		size:   size,
		image:  true,
		format: format,
		desc:   desc,
		res:    res,
		refs:   1,
		maps:   map[*byte]hal.Mapping{},
	}, nil
}

// IsBuffer reports whether m is a buffer (possibly a sub-buffer).
func (m *Mem) IsBuffer() bool { return !m.image }

// IsImage reports whether m is an image.
func (m *Mem) IsImage() bool { return m.image }

// Size returns the byte size of the object.
func (m *Mem) Size() uint64 { return m.size }

// Flags returns the object's memory flags after defaulting and
// inheritance.
func (m *Mem) Flags() MemFlags { return m.flags }

// Context returns the owning context. The reference is non-owning.
func (m *Mem) Context() *Context { return m.ctx }

// Format returns the image format. Only meaningful for images.
func (m *Mem) Format() ImageFormat { return m.format }

// Desc returns the validated image descriptor. Only meaningful for images.
func (m *Mem) Desc() ImageDesc { return m.desc }

func (m *Mem) root() *Mem {
	if m.parent != nil {
		return m.parent
	}
	return m
}

func (m *Mem) hasSameParent(o *Mem) bool {
	return m.root() == o.root()
}

// resource returns the backend resource backing m on the given device.
func (m *Mem) resource(d *Device) (hal.Resource, error) {
	r, ok := m.root().res[d]
	if !ok {
		return nil, errorf(ErrInvalidHandle, "no resource for %s", d)
	}
	return r, nil
}

// Retain adds a reference to the memory object.
func (m *Mem) Retain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs++
}

// Release drops one reference. The final release unmaps any leftover
// mappings, runs destructor callbacks in reverse registration order and
// drops the reference held on the parent.
func (m *Mem) Release() {
	m.mu.Lock()
	if m.refs == 0 {
		m.mu.Unlock()
		klog.Errorf("Release called on already-destroyed memory object")
		return
	}
	m.refs--
	if m.refs > 0 {
		m.mu.Unlock()
		return
	}
	maps := m.maps
	dtors := m.dtors
	m.maps = nil
	m.dtors = nil
	m.mu.Unlock()

	if len(maps) > 0 {
		klog.V(2).Infof("releasing memory object with %d active mappings", len(maps))
		for _, mp := range maps {
			mp.Unmap()
		}
	}
	for i := len(dtors) - 1; i >= 0; i-- {
		dtors[i]()
	}
	if m.parent != nil {
		m.parent.Release()
	}
}

// SetDestructorCallback registers fn to run when the object is destroyed.
// Callbacks run in reverse registration order.
func (m *Mem) SetDestructorCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dtors = append(m.dtors, fn)
}

// write uploads src to the object at the given byte offset.
func (m *Mem) write(q *Queue, offset uint64, src []byte) error {
	res, err := m.resource(q.dev)
	if err != nil {
		return err
	}
	return q.exec.BufferSubdata(res, uint32(m.offset+offset), src)
}

// read copies len(dst) bytes from the object at the given byte offset.
func (m *Mem) read(q *Queue, offset uint64, dst []byte) error {
	res, err := m.resource(q.dev)
	if err != nil {
		return err
	}
	mp, err := q.exec.BufferMap(res, uint32(m.offset+offset), uint32(len(dst)), true)
	if err != nil {
		return err
	}
	copy(dst, mp.Bytes())
	mp.Unmap()
	return nil
}

// mapWhole maps the object's full range on the queue's device.
func (m *Mem) mapWhole(q *Queue) (hal.Mapping, error) {
	res, err := m.resource(q.dev)
	if err != nil {
		return nil, err
	}
	return q.exec.BufferMap(res, uint32(m.offset), uint32(m.size), true)
}

// readRect copies a rectangular region from the object into host memory.
// All pitches must already be defaulted.
func (m *Mem) readRect(q *Queue, dst []byte, bufOrigin, hostOrigin, region Vec, bufRow, bufSlice, hostRow, hostSlice uint64) error {
	mp, err := m.mapWhole(q)
	if err != nil {
		return err
	}
	swCopy(mp.Bytes(), bufOrigin, bufRow, bufSlice, dst, hostOrigin, hostRow, hostSlice, region)
	mp.Unmap()
	return nil
}

// writeRect copies a rectangular region from host memory into the object.
func (m *Mem) writeRect(q *Queue, src []byte, hostOrigin, bufOrigin, region Vec, hostRow, hostSlice, bufRow, bufSlice uint64) error {
	mp, err := m.mapWhole(q)
	if err != nil {
		return err
	}
	swCopy(src, hostOrigin, hostRow, hostSlice, mp.Bytes(), bufOrigin, bufRow, bufSlice, region)
	mp.Unmap()
	return nil
}

// copyTo copies size bytes from m to dst.
func (m *Mem) copyTo(q *Queue, dst *Mem, srcOffset, dstOffset, size uint64) error {
	tmp := make([]byte, size)
	if err := m.read(q, srcOffset, tmp); err != nil {
		return err
	}
	return dst.write(q, dstOffset, tmp)
}

// copyRectTo copies a rectangular region from m to dst.
func (m *Mem) copyRectTo(q *Queue, dst *Mem, srcOrigin, dstOrigin, region Vec, srcRow, srcSlice, dstRow, dstSlice uint64) error {
	smp, err := m.mapWhole(q)
	if err != nil {
		return err
	}
	dmp, err := dst.mapWhole(q)
	if err != nil {
		smp.Unmap()
		return err
	}
	swCopy(smp.Bytes(), srcOrigin, srcRow, srcSlice, dmp.Bytes(), dstOrigin, dstRow, dstSlice, region)
	dmp.Unmap()
	smp.Unmap()
	return nil
}

// mapRange maps [offset, offset+size) and records the mapping keyed by the
// returned slice's address.
func (m *Mem) mapRange(q *Queue, offset, size uint64) ([]byte, error) {
	res, err := m.resource(q.dev)
	if err != nil {
		return nil, err
	}
	mp, err := q.exec.BufferMap(res, uint32(m.offset+offset), uint32(size), true)
	if err != nil {
		return nil, err
	}
	b := mp.Bytes()
	m.mu.Lock()
	if old, ok := m.maps[unsafe.SliceData(b)]; ok {
		old.Unmap()
	}
	m.maps[unsafe.SliceData(b)] = mp
	m.mu.Unlock()
	return b, nil
}

// hasMapping reports whether ptr is a currently mapped range of m.
func (m *Mem) hasMapping(ptr []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.maps[unsafe.SliceData(ptr)]
	return ok
}

// unmap removes the mapping registered for ptr, reporting whether ptr was
// mapped at all.
func (m *Mem) unmap(ptr []byte) bool {
	key := unsafe.SliceData(ptr)
	m.mu.Lock()
	mp, ok := m.maps[key]
	if ok {
		delete(m.maps, key)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	mp.Unmap()
	return true
}

// swCopy moves a 3-dimensional region between two flat byte spaces, row by
// row.
func swCopy(src []byte, srcOrigin Vec, srcRow, srcSlice uint64, dst []byte, dstOrigin Vec, dstRow, dstSlice uint64, region Vec) {
	srcPitch := pitches(srcRow, srcSlice)
	dstPitch := pitches(dstRow, dstSlice)
	for z := uint64(0); z < region[2]; z++ {
		for y := uint64(0); y < region[1]; y++ {
			so := srcOrigin.Add(Vec{0, y, z}).Dot(srcPitch)
			do := dstOrigin.Add(Vec{0, y, z}).Dot(dstPitch)
			copy(dst[do:do+region[0]], src[so:so+region[0]])
		}
	}
}
