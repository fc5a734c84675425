package hetcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/hetcore/internal/coherency"
	"github.com/aretw0/hetcore/internal/config"
	"github.com/aretw0/hetcore/internal/dispatch"
	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/internal/metrics"
	"github.com/aretw0/hetcore/internal/remote"
	"github.com/aretw0/hetcore/internal/scheduler"
	"github.com/aretw0/hetcore/internal/verifier"
	"github.com/aretw0/hetcore/internal/xlate"
	"github.com/aretw0/hetcore/pkg/adapters/file"
	httpAdapter "github.com/aretw0/hetcore/pkg/adapters/http"
	loamAdapter "github.com/aretw0/hetcore/pkg/adapters/loam"
	"github.com/aretw0/hetcore/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/hetcore/pkg/adapters/redis"
	"github.com/aretw0/hetcore/pkg/corelock"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/geometry"
	"github.com/aretw0/hetcore/pkg/ports"
	"github.com/aretw0/hetcore/pkg/rpc"
)

// Version is the build version reported by the CLI and the servers.
var Version = "dev"

// Engine wires the translation cache, the coherency controller, the RPC
// client, one dispatch worker per remote core and the scheduler into a
// single entry point.
type Engine struct {
	cfg *config.Config

	fabric   *memory.Fabric
	cache    *xlate.Cache
	coh      *coherency.Controller
	verifier *verifier.Verifier
	loop     *rpc.Loopback
	client   *rpc.Client
	locks    *corelock.Manager
	managers map[domain.Core]*dispatch.Manager
	boss     *scheduler.Boss

	runs    ports.RunStore
	loader  ports.ManifestLoader
	metrics *metrics.Metrics
	redis   *redisAdapter.Store

	watchers *watchers

	mu     sync.Mutex
	closed bool

	logger *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRunStore injects a run store, bypassing the one the configuration
// selects.
func WithRunStore(s ports.RunStore) Option {
	return func(e *Engine) {
		e.runs = s
	}
}

// WithLoader injects a manifest loader, bypassing the Loam repository named
// by the configuration.
func WithLoader(l ports.ManifestLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithMetrics reports engine events to m instead of a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New builds an engine from cfg and starts a manager for every enabled
// remote core. A nil cfg means config.Default().
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{cfg: cfg, managers: make(map[domain.Core]*dispatch.Manager)}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.metrics == nil {
		e.metrics = metrics.New(false)
	}
	e.watchers = newWatchers(e.logger)

	if err := e.openStores(); err != nil {
		return nil, err
	}

	cores, err := enabledCores(cfg)
	if err != nil {
		return nil, err
	}

	e.fabric = memory.NewFabric(memory.WithLogger(e.logger))
	var remotes []domain.Core
	for _, c := range cores {
		if c.id.Remote() {
			remotes = append(remotes, c.id)
		}
	}
	e.cache = xlate.New(e.fabric, remotes,
		xlate.WithFanout(cfg.Fanout),
		xlate.WithSharedMapper(e.fabric),
		xlate.WithObserver(e.metrics),
		xlate.WithLogger(e.logger),
	)
	e.coh = coherency.New(e.fabric, e.cache,
		coherency.WithGeometry(geometry.Planar{}),
		coherency.WithObserver(e.metrics),
		coherency.WithLogger(e.logger),
	)

	e.loop = rpc.NewLoopback()
	router := rpc.NewRouter(e.loop)
	for _, c := range cores {
		if !c.id.Remote() {
			continue
		}
		if c.cfg.Transport == config.TransportHTTP {
			router.Route(c.id, httpAdapter.NewTransport(c.cfg.URL))
			continue
		}
		simOpts := []remote.Option{
			remote.WithVersion(cfg.Version),
			remote.WithLatency(c.cfg.Latency),
			remote.WithLogger(e.logger),
		}
		if len(c.kernels) > 0 {
			simOpts = append(simOpts, remote.WithKernels(c.kernels...))
		}
		e.loop.Attach(remote.New(c.id, e.fabric.Space(c.id), simOpts...).Server())
	}
	e.client = rpc.NewClient(router,
		rpc.WithTimeout(cfg.CallTimeout),
		rpc.WithObserver(e.metrics),
		rpc.WithLogger(e.logger),
	)

	lockOpts := []corelock.Option{corelock.WithLogger(e.logger)}
	if e.redis != nil {
		lockOpts = append(lockOpts,
			corelock.WithLocker(redisAdapter.NewLocker(e.redis.Client(), cfg.Redis.Prefix)),
			corelock.WithTTL(cfg.Redis.LockTTL),
		)
	}
	e.locks = corelock.NewManager(lockOpts...)

	var execs []dispatch.Executor
	for _, c := range cores {
		if !c.id.Remote() {
			execs = append(execs, dispatch.NewLocal(e.fabric,
				dispatch.WithLocalName(c.cfg.Name),
				dispatch.WithLocalLocks(e.locks),
				dispatch.WithLocalObserver(e.metrics),
				dispatch.WithLocalLogger(e.logger),
			))
			continue
		}
		m := dispatch.NewManager(dispatch.Config{
			Core:       c.id,
			Name:       c.cfg.Name,
			Priority:   c.cfg.Priority,
			Kernels:    c.kernels,
			QueueDepth: cfg.QueueDepth,
			Capacity:   cfg.Capacity,
			Version:    cfg.Version,
		}, e.client, e.coh, e.cache, e.fabric,
			dispatch.WithLocks(e.locks),
			dispatch.WithObserver(e.metrics),
			dispatch.WithLogger(e.logger),
		)
		e.managers[c.id] = m
		if err := m.Start(ctx); err != nil {
			_ = e.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("failed to start %s: %w", c.cfg.Name, err)
		}
		execs = append(execs, m)
	}

	e.verifier = verifier.New(verifier.WithGeometry(geometry.Planar{}), verifier.WithLogger(e.logger))
	e.boss = scheduler.New(execs,
		scheduler.WithVerifier(e.verifier),
		scheduler.WithObserver(e.metrics),
		scheduler.WithLogger(e.logger),
	)
	for _, c := range cores {
		if c.cfg.MaxLoad > 0 {
			if err := e.boss.SetMaxLoad(c.id, c.cfg.MaxLoad); err != nil {
				_ = e.Close(context.WithoutCancel(ctx))
				return nil, err
			}
		}
	}

	e.logger.Info("Engine started", "cores", len(execs), "fanout", cfg.Fanout)
	return e, nil
}

type coreSetup struct {
	id      domain.Core
	cfg     config.CoreConfig
	kernels []domain.Kernel
}

func enabledCores(cfg *config.Config) ([]coreSetup, error) {
	var out []coreSetup
	for _, cc := range cfg.Cores {
		if !cc.Enabled {
			continue
		}
		id, err := domain.ParseCore(cc.Core)
		if err != nil {
			return nil, err
		}
		if cc.Name == "" {
			cc.Name = id.String()
		}
		c := coreSetup{id: id, cfg: cc}
		for _, name := range cc.Kernels {
			k, err := domain.ParseKernel(name)
			if err != nil {
				return nil, err
			}
			c.kernels = append(c.kernels, k)
		}
		out = append(out, c)
	}
	return out, nil
}

func (e *Engine) openStores() error {
	if e.runs == nil {
		if e.cfg.Redis.Addr != "" {
			e.redis = redisAdapter.New(e.cfg.Redis.Addr, e.cfg.Redis.Password, e.cfg.Redis.DB,
				redisAdapter.WithTTL(e.cfg.Redis.TTL),
				redisAdapter.WithPrefix(e.cfg.Redis.Prefix),
			)
			e.runs = e.redis
		} else if e.cfg.RunsDir != "" {
			e.runs = file.New(e.cfg.RunsDir)
		} else {
			e.runs = memory.NewStore()
		}
	}
	if e.loader == nil && e.cfg.Manifests != "" {
		l, err := loamAdapter.Open(e.cfg.Manifests)
		if err != nil {
			return err
		}
		e.loader = l
	}
	return nil
}

// Close stops every manager, drops the remaining translations and releases
// the stores the engine opened.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var errs []error
	for _, m := range e.managers {
		if err := m.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.cache != nil {
		if err := e.cache.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.watchers.close()
	e.logger.Info("Engine stopped")
	return errors.Join(errs...)
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.ErrClosed
	}
	return nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// Boss exposes the scheduler for callers that build sections by hand.
func (e *Engine) Boss() *scheduler.Boss { return e.boss }

// Memory is the issuing core's address space.
func (e *Engine) Memory() *memory.Fabric { return e.fabric }

// Loader returns the manifest loader, or nil when none is configured.
func (e *Engine) Loader() ports.ManifestLoader { return e.loader }

// Runs returns the store run records are saved to.
func (e *Engine) Runs() ports.RunStore { return e.runs }

// MetricsHandler serves the engine's Prometheus registry.
func (e *Engine) MetricsHandler() http.Handler { return e.metrics.Handler() }

// QueryCores reports every core with its executor, if any, and its load.
func (e *Engine) QueryCores() []scheduler.CoreInfo { return e.boss.QueryCores() }

// SetMaxLoad caps the load sections may place on core. Zero removes the cap.
func (e *Engine) SetMaxLoad(core domain.Core, limit uint32) error {
	return e.boss.SetMaxLoad(core, limit)
}

// GetMaxLoad returns core's current and maximum load.
func (e *Engine) GetMaxLoad(core domain.Core) (scheduler.Load, error) {
	return e.boss.GetMaxLoad(core)
}

// Translations snapshots the translation cache counters.
func (e *Engine) Translations() xlate.Stats { return e.cache.Stats() }

// CoreStats asks a remote core for its activity record.
func (e *Engine) CoreStats(ctx context.Context, core domain.Core) (domain.CoreStats, error) {
	m, ok := e.managers[core]
	if !ok {
		return domain.CoreStats{}, fmt.Errorf("%w: %s has no manager", domain.ErrUnknownCore, core)
	}
	return m.Stats(ctx)
}

// Restart re-runs the init handshake with core.
func (e *Engine) Restart(ctx context.Context, core domain.Core) error {
	m, ok := e.managers[core]
	if !ok {
		return fmt.Errorf("%w: %s has no manager", domain.ErrUnknownCore, core)
	}
	return m.Restart(ctx)
}

// Relay serves a marshaled call on a core simulated by this engine, for
// peers reaching it over HTTP.
func (e *Engine) Relay(ctx context.Context, core domain.Core, fn int, msg []byte) (domain.Status, []byte, error) {
	return e.loop.Serve(ctx, core, fn, msg)
}

// Functions lists the entry points of a core simulated by this engine.
func (e *Engine) Functions(ctx context.Context, core domain.Core) ([]domain.EntryPoint, error) {
	return e.loop.Functions(ctx, core)
}

// Verify checks count nodes from start and returns how many of them are
// valid. Rejected nodes carry their status in Header.Error.
func (e *Engine) Verify(nodes []domain.KernelNode, start, count int) int {
	return e.verifier.Verify(nodes, start, count)
}

// Alloc reserves size bytes of class in the issuing core's memory.
func (e *Engine) Alloc(size int, class domain.MemClass) (domain.Addr, error) {
	return e.fabric.Alloc(size, class)
}

// Free releases an allocation and every translation of it.
func (e *Engine) Free(addr domain.Addr, size int, class domain.MemClass) error {
	var errs []error
	if err := e.cache.Remove(addr, size, class); err != nil {
		errs = append(errs, err)
	}
	if err := e.fabric.Free(addr); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AllocImage lays out and allocates a tightly packed w x h image, one
// allocation per plane.
func (e *Engine) AllocImage(w, h uint32, color domain.FourCC, class domain.MemClass) (domain.Image, error) {
	img, sizes, err := geometry.Layout(w, h, color, class)
	if err != nil {
		return img, err
	}
	for p, size := range sizes {
		addr, err := e.fabric.Alloc(size, class)
		if err != nil {
			for q := 0; q < p; q++ {
				_ = e.fabric.Free(img.Buffer[q])
			}
			return domain.Image{}, fmt.Errorf("allocate plane %d: %w", p, err)
		}
		img.Buffer[p] = addr
	}
	img.Rebase()
	return img, nil
}

// FreeImage releases every plane of img.
func (e *Engine) FreeImage(img domain.Image) error {
	var g geometry.Planar
	var errs []error
	for p := uint32(0); p < img.Planes && p < domain.MaxPlanes; p++ {
		if img.Buffer[p] == 0 {
			continue
		}
		if err := e.Free(img.Buffer[p], g.PlaneSize(&img, int(p)), img.MemClass); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Submit places nodes on executors and runs them as one section, returning
// how many executed.
func (e *Engine) Submit(ctx context.Context, nodes []domain.KernelNode) (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	return e.boss.ProcessSection(ctx, &domain.Section{Nodes: nodes}, true)
}

// Watch streams every finished run until ctx ends.
func (e *Engine) Watch(ctx context.Context) (<-chan *domain.RunRecord, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.watchers.subscribe(ctx), nil
}
