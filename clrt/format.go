package clrt

import "github.com/goclrt/goclrt/hal"

// ChannelOrder is the channel layout of an image format.
type ChannelOrder uint32

const (
	OrderR ChannelOrder = iota + 1
	OrderRG
	OrderRGBA
	OrderBGRA
)

// ChannelType is the per-channel data type of an image format.
type ChannelType uint32

const (
	ChannelUnormInt8 ChannelType = iota + 1
	ChannelHalfFloat
	ChannelFloat
	ChannelUnsignedInt32
)

// ImageFormat pairs a channel order with a channel data type.
type ImageFormat struct {
	Order ChannelOrder
	Type  ChannelType
}

// halFormats maps the supported order/type combinations to backend formats.
var halFormats = map[ImageFormat]hal.Format{
	{OrderR, ChannelUnormInt8}:        hal.FormatR8Unorm,
	{OrderRG, ChannelUnormInt8}:       hal.FormatRG8Unorm,
	{OrderRGBA, ChannelUnormInt8}:     hal.FormatRGBA8Unorm,
	{OrderBGRA, ChannelUnormInt8}:     hal.FormatBGRA8Unorm,
	{OrderR, ChannelHalfFloat}:        hal.FormatR16Float,
	{OrderRGBA, ChannelHalfFloat}:     hal.FormatRGBA16Float,
	{OrderR, ChannelFloat}:            hal.FormatR32Float,
	{OrderRGBA, ChannelFloat}:         hal.FormatRGBA32Float,
	{OrderR, ChannelUnsignedInt32}:    hal.FormatR32Uint,
	{OrderRGBA, ChannelUnsignedInt32}: hal.FormatRGBA32Uint,
}

// halFormat resolves f to a backend format, or fails with
// ErrUnsupportedFormat.
func (f ImageFormat) halFormat() (hal.Format, error) {
	hf, ok := halFormats[f]
	if !ok {
		return hal.FormatInvalid, errorf(ErrUnsupportedFormat, "image format {order=%d type=%d} not supported", f.Order, f.Type)
	}
	return hf, nil
}

// ElemSize returns the byte size of one pixel, or 0 for unsupported
// formats.
func (f ImageFormat) ElemSize() uint32 {
	hf, ok := halFormats[f]
	if !ok {
		return 0
	}
	return hal.FormatSize(hf)
}

// ImageType is the dimensionality of an image.
type ImageType uint32

const (
	Image1D ImageType = iota + 1
	Image1DArray
	Image2D
	Image2DArray
	Image3D
)

func (t ImageType) String() string {
	switch t {
	case Image1D:
		return "Image1D"
	case Image1DArray:
		return "Image1DArray"
	case Image2D:
		return "Image2D"
	case Image2DArray:
		return "Image2DArray"
	case Image3D:
		return "Image3D"
	}
	return "Image(invalid)"
}

func (t ImageType) target() hal.TextureTarget {
	switch t {
	case Image1D:
		return hal.Target1D
	case Image1DArray:
		return hal.Target1DArray
	case Image2D:
		return hal.Target2D
	case Image2DArray:
		return hal.Target2DArray
	case Image3D:
		return hal.Target3D
	}
	return hal.TargetBuffer
}

// dims returns how many of width/height/depth are meaningful for t.
func (t ImageType) dims() int {
	switch t {
	case Image1D, Image1DArray:
		return 1
	case Image2D, Image2DArray:
		return 2
	case Image3D:
		return 3
	}
	return 0
}

// ImageDesc describes the shape of an image.
type ImageDesc struct {
	Type      ImageType
	Width     uint64
	Height    uint64
	Depth     uint64
	ArraySize uint64

	// RowPitch and SlicePitch only apply when the image is created from a
	// host slice; zero values are computed from the dimensions.
	RowPitch   uint64
	SlicePitch uint64
}

// validate checks the descriptor shape and fills the defaulted fields of a
// copy, returning it.
func (d ImageDesc) validate(f ImageFormat, hostGiven bool) (ImageDesc, error) {
	if d.Type.dims() == 0 {
		return d, errorf(ErrInvalidArgument, "image type %d is not a known type", d.Type)
	}
	if d.Width == 0 {
		return d, errorf(ErrInvalidSize, "image width is zero")
	}
	dims := d.Type.dims()
	if dims < 2 {
		d.Height = 1
	} else if d.Height == 0 {
		return d, errorf(ErrInvalidSize, "image height is zero")
	}
	if dims < 3 {
		d.Depth = 1
	} else if d.Depth == 0 {
		return d, errorf(ErrInvalidSize, "image depth is zero")
	}
	array := d.Type == Image1DArray || d.Type == Image2DArray
	if !array {
		d.ArraySize = 1
	} else if d.ArraySize == 0 {
		return d, errorf(ErrInvalidSize, "image array size is zero")
	}

	elem := uint64(f.ElemSize())
	if !hostGiven && (d.RowPitch != 0 || d.SlicePitch != 0) {
		return d, errorf(ErrInvalidArgument, "pitches require a host slice")
	}
	if d.RowPitch != 0 && d.RowPitch < d.Width*elem {
		return d, errorf(ErrInvalidSize, "image row pitch %d is smaller than width*elem=%d", d.RowPitch, d.Width*elem)
	}
	if d.RowPitch == 0 {
		d.RowPitch = d.Width * elem
	}
	if d.SlicePitch != 0 && d.SlicePitch < d.Height*d.RowPitch {
		return d, errorf(ErrInvalidSize, "image slice pitch %d is smaller than height*row=%d", d.SlicePitch, d.Height*d.RowPitch)
	}
	if d.SlicePitch == 0 {
		d.SlicePitch = d.Height * d.RowPitch
	}
	return d, nil
}

// byteSize is the total allocation size implied by the (validated)
// descriptor.
func (d ImageDesc) byteSize() uint64 {
	slices := d.Depth
	if d.ArraySize > 1 {
		slices = d.ArraySize
	}
	return d.SlicePitch * slices
}
