package clrt

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// The printf buffer starts with a 4-byte little-endian total length that
// includes the header itself; kernels append length-prefixed records after
// it. A buffer left at the initial length produced no output.
const printfHeaderSize = 4

// drainPrintf formats the records accumulated in a printf buffer to w.
// Each record is a 4-byte format index followed by the arguments the
// format's verbs describe: %d, %i, %u and %x consume 4 bytes, %ld and %f
// consume 8. Truncated or malformed records end the drain silently.
func drainPrintf(w io.Writer, buf []byte, formats []string) {
	if len(buf) < printfHeaderSize {
		return
	}
	total := binary.LittleEndian.Uint32(buf)
	if total <= printfHeaderSize || uint64(total) > uint64(len(buf)) {
		return
	}
	data := buf[printfHeaderSize:total]
	for len(data) >= 4 {
		idx := binary.LittleEndian.Uint32(data)
		data = data[4:]
		if int(idx) >= len(formats) {
			return
		}
		data = formatPrintfRecord(w, formats[idx], data)
	}
}

// formatPrintfRecord renders one record and returns the remaining bytes,
// or nil when the record is truncated.
func formatPrintfRecord(w io.Writer, format string, data []byte) []byte {
	var out strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			continue
		}
		i++
		if i >= len(format) {
			break
		}
		switch format[i] {
		case '%':
			out.WriteByte('%')
		case 'd', 'i':
			if len(data) < 4 {
				return nil
			}
			fmt.Fprintf(&out, "%d", int32(binary.LittleEndian.Uint32(data)))
			data = data[4:]
		case 'u':
			if len(data) < 4 {
				return nil
			}
			fmt.Fprintf(&out, "%d", binary.LittleEndian.Uint32(data))
			data = data[4:]
		case 'x':
			if len(data) < 4 {
				return nil
			}
			fmt.Fprintf(&out, "%x", binary.LittleEndian.Uint32(data))
			data = data[4:]
		case 'f':
			if len(data) < 8 {
				return nil
			}
			fmt.Fprintf(&out, "%f", math.Float64frombits(binary.LittleEndian.Uint64(data)))
			data = data[8:]
		case 'l':
			if i+1 >= len(format) || format[i+1] != 'd' {
				out.WriteByte('%')
				out.WriteByte('l')
				continue
			}
			i++
			if len(data) < 8 {
				return nil
			}
			fmt.Fprintf(&out, "%d", int64(binary.LittleEndian.Uint64(data)))
			data = data[8:]
		default:
			// Unknown verb, emit verbatim.
			out.WriteByte('%')
			out.WriteByte(format[i])
		}
	}
	io.WriteString(w, out.String())
	return data
}
