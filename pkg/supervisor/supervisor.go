// Package supervisor wires together the agent's long-lived workers —
// the page cache collector, the upload engine and watcher, the HTTP
// and timeseries proxies, and the status hub — and drives their
// lifecycle as one unit.
//
// Grounded on the teacher's pkg/controlplane/runtime.Runtime.Serve:
// each worker is started in its own goroutine reporting into a
// buffered error channel, a select waits on ctx.Done or the first
// worker error, and shutdown is best-effort (log and continue) rather
// than coordinated, since none of these workers holds state another
// depends on releasing first. The status-hub and metrics listeners
// route through the teacher's chi router
// (pkg/controlplane/api/router.go) rather than a bare ServeMux.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pennsieve/agent/internal/config"
	"github.com/pennsieve/agent/internal/logger"
	"github.com/pennsieve/agent/internal/metrics"
	"github.com/pennsieve/agent/pkg/cacheengine"
	"github.com/pennsieve/agent/pkg/collector"
	"github.com/pennsieve/agent/pkg/httpproxy"
	"github.com/pennsieve/agent/pkg/platform"
	"github.com/pennsieve/agent/pkg/registry"
	"github.com/pennsieve/agent/pkg/statushub"
	"github.com/pennsieve/agent/pkg/store"
	"github.com/pennsieve/agent/pkg/tsproxy"
	"github.com/pennsieve/agent/pkg/upload"
	"github.com/pennsieve/agent/pkg/uploadwatcher"
)

// engineStepInterval is how often the upload engine re-evaluates
// Queued/InProgress rows. Not pinned by spec.md; chosen to feel
// responsive to a newly queued upload without busy-polling the store.
const engineStepInterval = 2 * time.Second

// Supervisor owns every long-lived worker and the registry/status hub
// that connect them.
type Supervisor struct {
	cfg       *config.Config
	store     *store.Store
	registry  *registry.Registry
	hub       *statushub.Hub
	startedAt time.Time

	collector    *collector.Collector
	uploadEngine *upload.Engine
	watcher      *uploadwatcher.Watcher
	httpProxy    *httpproxy.Proxy
	tsProxy      *tsproxy.Proxy
}

// New opens the store, validates the configured ports, and constructs
// every enabled worker. The Supervisor does not start anything until
// Run is called.
func New(ctx context.Context, cfg *config.Config, stopMode uploadwatcher.StopMode) (*Supervisor, error) {
	if err := checkPortCollisions(cfg); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DatabasePath, cfg.DisableMigrations)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	reg := registry.New()

	if metrics.IsEnabled() {
		logger.Info("metrics enabled")
	}

	plat := platform.NewHTTPClient(cfg.Platform.APIHost, cfg.Platform.APIToken, cfg.Platform.APISecret)

	var uploadRequester statushub.UploadRequester
	s := &Supervisor{cfg: cfg, store: st, registry: reg}

	s.collector = collector.New(
		st, cfg.Cache.BasePath, int64(cfg.Cache.SoftCacheSize), int64(cfg.Cache.HardCacheSize),
		reg, metrics.NewCacheMetrics(),
	)

	if cfg.Uploader.Enabled {
		objects, err := newObjectStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("configuring object store: %w", err)
		}
		engine := upload.New(
			st, objects, plat, upload.LocalFS{}, cfg.Uploader.Bucket, cfg.Uploader.Parallelism,
			reg, metrics.NewUploadMetrics(),
		)
		s.uploadEngine = engine
		uploadRequester = upload.NewHandler(st, plat, engine, upload.LocalFS{}, reg)
		s.watcher = uploadwatcher.New(st, stopMode, reg)
	}

	hub := statushub.New(uploadRequester)
	reg.Register(registry.ComponentStatusHub, hub)
	s.hub = hub

	if cfg.Proxy.Enabled {
		p, err := httpproxy.New(cfg.Proxy.Upstream, reg)
		if err != nil {
			return nil, fmt.Errorf("configuring http proxy: %w", err)
		}
		s.httpProxy = p
	}

	if cfg.Timeseries.Enabled {
		engine := cacheengine.New(st, cfg.Cache.BasePath, cfg.Cache.PageSize)
		s.tsProxy = tsproxy.New(engine, tsproxy.WSDialer{}, cfg.Timeseries.Upstream, reg)
	}

	return s, nil
}

func newObjectStore(ctx context.Context) (upload.ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return upload.NewS3ObjectStore(s3.NewFromConfig(awsCfg)), nil
}

// checkPortCollisions rejects a configuration where two enabled
// listeners would bind the same local port.
func checkPortCollisions(cfg *config.Config) error {
	seen := make(map[int]string)
	add := func(enabled bool, port int, name string) error {
		if !enabled || port == 0 {
			return nil
		}
		if owner, ok := seen[port]; ok {
			return fmt.Errorf("port %d is configured for both %s and %s", port, owner, name)
		}
		seen[port] = name
		return nil
	}
	if err := add(cfg.Proxy.Enabled, cfg.Proxy.LocalPort, "http proxy"); err != nil {
		return err
	}
	if err := add(cfg.Timeseries.Enabled, cfg.Timeseries.LocalPort, "timeseries proxy"); err != nil {
		return err
	}
	if err := add(true, cfg.Status.Port, "status hub"); err != nil {
		return err
	}
	if err := add(cfg.Metrics.Enabled, cfg.Metrics.Port, "metrics"); err != nil {
		return err
	}
	return nil
}

// Run starts every configured worker and blocks until ctx is
// cancelled or a worker fails.
func (s *Supervisor) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	errCh := make(chan error, 8)

	go func() { errCh <- s.collector.Run(ctx) }()

	if s.uploadEngine != nil {
		if err := s.uploadEngine.Start(ctx); err != nil {
			return fmt.Errorf("starting upload engine: %w", err)
		}
		go s.runUploadEngine(ctx, errCh)
		go func() { errCh <- s.watcher.Run(ctx) }()
	}

	if s.httpProxy != nil {
		go func() { errCh <- httpproxy.Run(ctx, fmt.Sprintf(":%d", s.cfg.Proxy.LocalPort), s.httpProxy) }()
	}

	if s.tsProxy != nil {
		go func() { errCh <- tsproxy.Run(ctx, fmt.Sprintf(":%d", s.cfg.Timeseries.LocalPort), s.tsProxy) }()
	}

	go s.hub.Reap(ctx)
	go func() { errCh <- s.runStatusHub(ctx) }()

	if s.cfg.Metrics.Enabled && metrics.IsEnabled() {
		go func() { errCh <- s.runMetricsServer(ctx) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("supervisor shutdown requested", "reason", ctx.Err())
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			logger.Error("worker failed, shutting down", "error", err)
		}
		return err
	}
}

// runUploadEngine drives Engine.Step on a fixed interval until ctx is
// cancelled. A failing step is logged and the loop continues, per
// spec.md §5 ("a failing upload step warns and continues").
func (s *Supervisor) runUploadEngine(ctx context.Context, errCh chan<- error) {
	ticker := time.NewTicker(engineStepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case <-ticker.C:
			if err := s.uploadEngine.Step(ctx); err != nil {
				logger.Warn("upload engine step failed", "error", err)
			}
		}
	}
}

// healthResponse mirrors internal/cli/health.Response, the shape
// cmd/agent's status command expects back from the status hub's
// liveness endpoint.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		Service   string `json:"service"`
		StartedAt string `json:"started_at"`
		Uptime    string `json:"uptime"`
		UptimeSec int64  `json:"uptime_sec"`
	} `json:"data"`
}

func (s *Supervisor) handleHealthz(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startedAt)

	resp := healthResponse{Status: "healthy", Timestamp: time.Now().Format(time.RFC3339)}
	resp.Data.Service = "pennsieve-agent"
	resp.Data.StartedAt = s.startedAt.Format(time.RFC3339)
	resp.Data.Uptime = uptime.String()
	resp.Data.UptimeSec = int64(uptime.Seconds())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Supervisor) runStatusHub(ctx context.Context) error {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/*", s.hub)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", s.cfg.Status.Port), Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		_ = srv.Close()
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// runMetricsServer exposes the process-wide Prometheus registry over
// HTTP, mirroring the teacher's metrics server goroutine in
// pkg/controlplane/runtime.Runtime.serve.
func (s *Supervisor) runMetricsServer(ctx context.Context) error {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", s.cfg.Metrics.Port), Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		_ = srv.Close()
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Store returns the underlying store, for callers (e.g. a migrate
// subcommand) that need direct access outside of Run.
func (s *Supervisor) Store() *store.Store {
	return s.store
}

// Close releases resources not tied to ctx cancellation (the store's
// underlying DB connection).
func (s *Supervisor) Close() error {
	return s.store.Close()
}
