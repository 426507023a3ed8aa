// Package wgsllower lowers WGSL compute kernels through naga.
//
// WGSL kernels take their inputs through bind groups rather than declared
// parameters, so every entry point has an empty declared argument list and
// a launch carries only the backend-injected arguments. Lowering performs
// no dead-code elimination: every variable survives with a sequential,
// 8-byte aligned offset.
package wgsllower

import (
	"strings"

	"github.com/goclrt/goclrt/shader"
	"github.com/gogpu/naga"
	"github.com/pkg/errors"
)

// globalOffsetsSize is the byte size of the injected global-work-offset
// vector (three 64-bit components).
const globalOffsetsSize = 24

// Lowerer compiles WGSL to SPIR-V via naga.
type Lowerer struct{}

// New returns a WGSL lowerer.
func New() *Lowerer { return &Lowerer{} }

// Compile implements shader.Lowerer. Headers are prepended to the source in
// registration order.
func (l *Lowerer) Compile(source string, options []string, headers []shader.Header) (*shader.Binary, string, error) {
	var sb strings.Builder
	for _, h := range headers {
		sb.WriteString(h.Source)
		sb.WriteString("\n")
	}
	sb.WriteString(source)
	full := sb.String()

	data, err := naga.Compile(full)
	if err != nil {
		return nil, err.Error(), errors.WithMessage(err, "wgsllower: compile failed")
	}
	return &shader.Binary{
		Data:    data,
		Kernels: entryPoints(full),
	}, "", nil
}

// Link implements shader.Lowerer. naga has no module linker; a single
// binary passes through, anything else fails.
func (l *Lowerer) Link(binaries []*shader.Binary, library bool) (*shader.Binary, string, error) {
	if len(binaries) != 1 {
		return nil, "", errors.Errorf("wgsllower: cannot link %d binaries, WGSL modules are monolithic", len(binaries))
	}
	in := binaries[0]
	return &shader.Binary{Data: in.Data, Library: library, Kernels: in.Kernels}, "", nil
}

// Load implements shader.Lowerer. SPIR-V payloads carry no recoverable
// signature table, so loaded binaries export no kernels; programs restored
// this way can only be re-linked, not queried for kernels.
func (l *Lowerer) Load(data []byte, executable bool) (*shader.Binary, error) {
	if len(data) == 0 {
		return nil, errors.New("wgsllower: empty artifact payload")
	}
	return &shader.Binary{Data: data, Library: !executable}, nil
}

// Lower implements shader.Lowerer.
func (l *Lowerer) Lower(bin *shader.Binary, kernel string, opts shader.DeviceOptions) (*shader.Module, error) {
	args, ok := bin.Signature(kernel)
	if !ok {
		return nil, errors.Errorf("wgsllower: kernel %q not exported", kernel)
	}

	mod := &shader.Module{
		Object:        bin.Data,
		WorkgroupSize: [3]uint32{1, 1, 1},
	}
	offset := uint32(0)
	for i, arg := range args {
		mod.Variables = append(mod.Variables, shader.Variable{
			Location:     int32(i),
			DriverOffset: offset,
		})
		size := arg.Size
		if arg.Kind != shader.ArgValue {
			size = 8
		}
		offset += (size + 7) &^ 7
	}
	// Injected arguments: global-work-offsets, constant buffer, printf buffer.
	for i, size := range []uint32{globalOffsetsSize, 8, 8} {
		mod.Variables = append(mod.Variables, shader.Variable{
			Location:     int32(len(args) + i),
			DriverOffset: offset,
		})
		offset += (size + 7) &^ 7
	}
	return mod, nil
}

// entryPoints scans WGSL for @compute entry points. The scan is textual:
// it only has to agree with naga on sources naga accepted.
func entryPoints(source string) []shader.KernelSig {
	var sigs []shader.KernelSig
	pending := false
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		if strings.Contains(line, "@compute") {
			pending = true
		}
		if !pending {
			continue
		}
		i := strings.Index(line, "fn ")
		if i < 0 {
			continue
		}
		rest := line[i+len("fn "):]
		j := strings.IndexAny(rest, "( \t")
		if j <= 0 {
			continue
		}
		sigs = append(sigs, shader.KernelSig{Name: rest[:j]})
		pending = false
	}
	return sigs
}
