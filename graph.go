package hetcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/hetcore/internal/validator"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/geometry"
	"github.com/google/uuid"
)

// Prepared is a graph built from a manifest together with the memory
// allocated for its operands.
type Prepared struct {
	Graph   *domain.Graph
	Images  map[string]domain.Image
	Buffers map[string]domain.Buffer
}

// Prepare validates m, allocates and seeds its images and buffers, and binds
// them to the nodes of each section. Release frees what Prepare allocated.
func (e *Engine) Prepare(m *domain.GraphManifest) (*Prepared, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if err := validator.ValidateManifest(m); err != nil {
		return nil, err
	}

	p := &Prepared{
		Images:  make(map[string]domain.Image, len(m.Images)),
		Buffers: make(map[string]domain.Buffer, len(m.Buffers)),
	}
	fail := func(err error) (*Prepared, error) {
		if rerr := e.Release(p); rerr != nil {
			e.logger.Warn("Failed to release partial graph", "graph", m.Name, "err", rerr)
		}
		return nil, err
	}

	for _, im := range m.Images {
		img, err := e.prepareImage(im)
		if err != nil {
			return fail(fmt.Errorf("image '%s': %w", im.Name, err))
		}
		p.Images[im.Name] = img
	}
	for _, bm := range m.Buffers {
		class, _ := domain.ParseMemClass(bm.Memory)
		addr, err := e.fabric.Alloc(bm.Bytes, class)
		if err != nil {
			return fail(fmt.Errorf("buffer '%s': %w", bm.Name, err))
		}
		elem := bm.ElemSize
		if elem <= 0 {
			elem = 1
		}
		p.Buffers[bm.Name] = domain.Buffer{
			Data:     addr,
			ElemSize: uint32(elem),
			NumBytes: uint32(bm.Bytes),
			MemClass: class,
		}
	}

	g := &domain.Graph{Name: m.Name}
	for s, sm := range m.Sections {
		sec := &domain.Section{Skip: sm.Skip, Nodes: make([]domain.KernelNode, 0, len(sm.Nodes))}
		for n, nm := range sm.Nodes {
			node, err := p.bind(nm)
			if err != nil {
				return fail(fmt.Errorf("section %d node %d: %w", s, n, err))
			}
			sec.Nodes = append(sec.Nodes, node)
		}
		g.Sections = append(g.Sections, sec)
		g.Order = append(g.Order, sm.Order)
	}
	p.Graph = g
	return p, nil
}

func (e *Engine) prepareImage(im domain.ImageManifest) (domain.Image, error) {
	w, h, err := domain.ParseSize(im.Size)
	if err != nil {
		return domain.Image{}, err
	}
	color, err := domain.ParseFourCC(im.Color)
	if err != nil {
		return domain.Image{}, err
	}
	class, err := domain.ParseMemClass(im.Memory)
	if err != nil {
		return domain.Image{}, err
	}
	fill, err := validator.ParseFill(im.Fill)
	if err != nil {
		return domain.Image{}, err
	}
	img, err := e.AllocImage(w, h, color, class)
	if err != nil {
		return domain.Image{}, err
	}
	if !fill.Ramp && fill.Value == 0 {
		return img, nil
	}
	for p := uint32(0); p < img.Planes; p++ {
		size := geometry.Planar{}.PlaneSize(&img, int(p))
		data := make([]byte, size)
		for i := range data {
			if fill.Ramp {
				data[i] = byte(i)
			} else {
				data[i] = fill.Value
			}
		}
		if err := e.fabric.Write(img.Buffer[p], data); err != nil {
			_ = e.FreeImage(img)
			return domain.Image{}, err
		}
	}
	return img, nil
}

func (p *Prepared) bind(nm domain.NodeManifest) (domain.KernelNode, error) {
	k, err := domain.ParseKernel(nm.Kernel)
	if err != nil {
		return domain.KernelNode{}, err
	}
	node := domain.NewNode(k)
	if nm.Affinity != "" {
		core, err := domain.ParseCore(nm.Affinity)
		if err != nil {
			return node, err
		}
		node.Header.Affinity = core
	}
	spec, _ := domain.LookupKernel(k)
	for i, name := range nm.Operands {
		op, _ := spec.Slot(i)
		if op.Kind == domain.KindBuffer {
			err = node.SetBuffer(i, p.Buffers[name])
		} else {
			err = node.SetImage(i, p.Images[name])
		}
		if err != nil {
			return node, err
		}
	}
	return node, nil
}

// Release frees every image and buffer of p and drops their translations.
func (e *Engine) Release(p *Prepared) error {
	var errs []error
	for name, img := range p.Images {
		if err := e.FreeImage(img); err != nil {
			errs = append(errs, fmt.Errorf("image '%s': %w", name, err))
		}
	}
	for name, b := range p.Buffers {
		if err := e.Free(b.Data, int(b.NumBytes), b.MemClass); err != nil {
			errs = append(errs, fmt.Errorf("buffer '%s': %w", name, err))
		}
	}
	p.Images, p.Buffers = nil, nil
	return errors.Join(errs...)
}

// Run processes g and records the outcome. The record is saved and sent to
// watchers even when the graph stops early; the returned error says why.
func (e *Engine) Run(ctx context.Context, g *domain.Graph) (*domain.RunRecord, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	began := time.Now()
	run := &domain.RunRecord{
		ID:        uuid.NewString(),
		Graph:     g.Name,
		StartedAt: began.UTC(),
		Nodes:     g.NumNodes(),
		Sections:  make([]domain.SectionResult, len(g.Sections)),
	}
	for i, s := range g.Sections {
		run.Sections[i] = domain.SectionResult{Index: i, Nodes: len(s.Nodes), Skipped: s.Skip}
	}

	var mu sync.Mutex
	_, err := e.boss.ProcessGraph(ctx, g, func(index, executed int) {
		mu.Lock()
		defer mu.Unlock()
		run.Sections[index].Executed = executed
		run.Sections[index].Duration = g.Sections[index].Perf.Snapshot().Last
	})
	run.Duration = time.Since(began)
	for _, s := range run.Sections {
		run.Executed += s.Executed
	}
	if err != nil {
		run.Error = err.Error()
	}

	if serr := e.runs.Save(context.WithoutCancel(ctx), run); serr != nil {
		e.logger.Error("Failed to save run", "run", run.ID, "err", serr)
	}
	e.watchers.broadcast(run)
	e.logger.Info("Graph run finished", "run", run.ID, "graph", g.Name,
		"executed", run.Executed, "nodes", run.Nodes, "elapsed", run.Duration)
	return run, err
}

// RunManifest loads the named manifest, runs it once and releases its
// memory.
func (e *Engine) RunManifest(ctx context.Context, name string) (*domain.RunRecord, error) {
	if e.loader == nil {
		return nil, errors.New("no manifest loader configured")
	}
	m, err := e.loader.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.RunGraphManifest(ctx, m)
}

// RunGraphManifest prepares m, runs it once and releases its memory.
func (e *Engine) RunGraphManifest(ctx context.Context, m *domain.GraphManifest) (*domain.RunRecord, error) {
	p, err := e.Prepare(m)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := e.Release(p); rerr != nil {
			e.logger.Warn("Failed to release graph memory", "graph", m.Name, "err", rerr)
		}
	}()
	return e.Run(ctx, p.Graph)
}
