// Package validator checks graph manifests before the engine allocates
// anything for them.
package validator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/geometry"
	"github.com/aretw0/hetcore/pkg/ports"
)

// ValidateManifest checks names, sizes, formats and that every node binds
// declared operands of the right kind and count.
func ValidateManifest(m *domain.GraphManifest) error {
	var errors []string
	add := func(format string, args ...any) {
		errors = append(errors, fmt.Sprintf(format, args...))
	}

	if m.Name == "" {
		add("manifest has no name")
	}

	kinds := make(map[string]domain.OperandKind)
	for i, img := range m.Images {
		if img.Name == "" {
			add("image %d has no name", i)
			continue
		}
		if _, dup := kinds[img.Name]; dup {
			add("operand '%s' declared twice", img.Name)
		}
		kinds[img.Name] = domain.KindImage
		if _, _, err := domain.ParseSize(img.Size); err != nil {
			add("image '%s': %v", img.Name, err)
		}
		color, err := domain.ParseFourCC(img.Color)
		if err != nil {
			add("image '%s': %v", img.Name, err)
		} else if _, ok := geometry.Lookup(color); !ok {
			add("image '%s': unsupported color %s", img.Name, color)
		}
		if _, err := domain.ParseMemClass(img.Memory); err != nil {
			add("image '%s': %v", img.Name, err)
		}
		if _, err := ParseFill(img.Fill); err != nil {
			add("image '%s': %v", img.Name, err)
		}
	}
	for i, buf := range m.Buffers {
		if buf.Name == "" {
			add("buffer %d has no name", i)
			continue
		}
		if _, dup := kinds[buf.Name]; dup {
			add("operand '%s' declared twice", buf.Name)
		}
		kinds[buf.Name] = domain.KindBuffer
		if buf.Bytes <= 0 {
			add("buffer '%s': bytes must be positive", buf.Name)
		}
		if _, err := domain.ParseMemClass(buf.Memory); err != nil {
			add("buffer '%s': %v", buf.Name, err)
		}
	}

	if len(m.Sections) == 0 {
		add("manifest has no sections")
	}
	for s, sec := range m.Sections {
		if sec.Order < 0 {
			add("section %d: negative order %d", s, sec.Order)
		}
		for n, node := range sec.Nodes {
			where := fmt.Sprintf("section %d node %d", s, n)
			k, err := domain.ParseKernel(node.Kernel)
			if err != nil {
				add("%s: %v", where, err)
				continue
			}
			if node.Affinity != "" {
				if _, err := domain.ParseCore(node.Affinity); err != nil {
					add("%s: %v", where, err)
				}
			}
			spec, _ := domain.LookupKernel(k)
			if len(node.Operands) != len(spec.Operands) {
				add("%s: %s takes %d operands, got %d", where, spec.Name, len(spec.Operands), len(node.Operands))
				continue
			}
			for i, name := range node.Operands {
				kind, ok := kinds[name]
				switch {
				case !ok:
					add("%s: undeclared operand '%s'", where, name)
				case kind != spec.Operands[i].Kind:
					add("%s: operand '%s' is not usable as %s", where, name, spec.Operands[i].Name)
				}
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w: found %d errors:\n- %s", domain.ErrManifestFormat, len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}

// Fill is a decoded image fill pattern.
type Fill struct {
	Ramp  bool
	Value byte
}

// ParseFill reads "ramp", "zero", "" or a byte value.
func ParseFill(s string) (Fill, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero":
		return Fill{}, nil
	case "ramp":
		return Fill{Ramp: true}, nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return Fill{}, fmt.Errorf("fill %q is not ramp, zero or a byte", s)
	}
	return Fill{Value: byte(v)}, nil
}

// ValidateAll loads and checks every manifest the loader lists.
func ValidateAll(ctx context.Context, loader ports.ManifestLoader) error {
	names, err := loader.List(ctx)
	if err != nil {
		return fmt.Errorf("list manifests: %w", err)
	}
	var errors []string
	for _, name := range names {
		m, err := loader.Load(ctx, name)
		if err != nil {
			errors = append(errors, fmt.Sprintf("'%s': %v", name, err))
			continue
		}
		if err := ValidateManifest(m); err != nil {
			errors = append(errors, fmt.Sprintf("'%s': %v", name, err))
		}
	}
	if len(errors) > 0 {
		return fmt.Errorf("found %d invalid manifests:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}
