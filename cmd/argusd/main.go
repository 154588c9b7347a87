package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/tbbooher/argus-panoptes/internal/adapter"
	"github.com/tbbooher/argus-panoptes/internal/api"
	"github.com/tbbooher/argus-panoptes/internal/cache"
	"github.com/tbbooher/argus-panoptes/internal/concurrency"
	"github.com/tbbooher/argus-panoptes/internal/coordinator"
	"github.com/tbbooher/argus-panoptes/internal/health"
	"github.com/tbbooher/argus-panoptes/internal/logging"
	"github.com/tbbooher/argus-panoptes/internal/metrics"
	"github.com/tbbooher/argus-panoptes/internal/registry"
)

// cli contains our command-line flags.
type cli struct {
	Serve       server      `cmd:"" help:"Run the federated search HTTP server."`
	Healthcheck healthcheck `cmd:"" help:"Validate the registry directory and exit."`
}

type registryConfig struct {
	RegistryDir string `default:"./registry" help:"Directory of per-system YAML registry documents."`
}

type logconfig struct {
	Verbose bool `help:"increase log verbosity"`
}

func (c *logconfig) apply() {
	logging.SetVerbose(c.Verbose)
}

type server struct {
	registryConfig
	logconfig

	Port                  int           `default:"8080" env:"PORT" help:"Port to serve traffic on."`
	SearchRPM             int           `default:"60" help:"Maximum /search requests per client per minute."`
	TrustProxy            bool          `env:"TRUST_PROXY" help:"Honor X-Forwarded-For/X-Real-IP for client identity."`
	Production            bool          `help:"Scrub internal error messages from HTTP responses."`
	MaxConcurrency        int           `default:"20" help:"Global outbound request concurrency cap."`
	MaxPerHostConcurrency int           `default:"2" help:"Per-system outbound request concurrency cap."`
	CacheEntries          int           `default:"10000" help:"Search cache capacity."`
	CacheTTL              time.Duration `default:"1h" help:"Search cache entry TTL."`
	CacheEnabled          bool          `default:"true" help:"Enable the search result cache."`
	GlobalTimeout         time.Duration `default:"10s" help:"Maximum time for one federated search's fan-out."`
	PerSystemTimeout      time.Duration `default:"8s" help:"Maximum time to spend on one system, including fallbacks."`
	OutboundRPS           float64       `default:"0" help:"Pace outbound ILS requests to this rate; 0 disables pacing."`
}

type healthcheck struct {
	registryConfig
	logconfig
}

func (c *healthcheck) Run() error {
	c.apply()
	result, err := registry.LoadDirectory(c.RegistryDir)
	if err != nil {
		return err
	}
	for path, loadErr := range result.Errors {
		logging.Log(context.Background()).Error("registry file failed to load", "path", path, "err", loadErr)
	}
	if len(result.Systems) == 0 {
		return fmt.Errorf("registry directory %s produced zero valid systems", c.RegistryDir)
	}
	fmt.Printf("loaded %d systems from %s\n", len(result.Systems), c.RegistryDir)
	return nil
}

func (s *server) Run() error {
	s.apply()
	ctx := context.Background()

	result, err := registry.LoadDirectory(s.RegistryDir)
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}
	for path, loadErr := range result.Errors {
		logging.Log(ctx).Warn("registry file skipped", "path", path, "err", loadErr)
	}
	if len(result.Systems) == 0 {
		return fmt.Errorf("registry directory %s produced zero valid systems", s.RegistryDir)
	}

	tracker := health.New()
	httpClient := adapter.NewHTTPClient(s.OutboundRPS)

	adapterRegistry, err := registry.BuildAdapterRegistry(result.Systems, tracker, httpClient)
	if err != nil {
		return fmt.Errorf("building adapter registry: %w", err)
	}

	pool := concurrency.New(s.MaxConcurrency, s.MaxPerHostConcurrency)
	searchCache := cache.NewSearchCache(s.CacheEntries, s.CacheTTL, s.CacheEnabled)
	metricsReg := metrics.New()

	coord := coordinator.New(adapterRegistry, pool, searchCache, coordinator.Config{
		GlobalTimeout:    s.GlobalTimeout,
		PerSystemTimeout: s.PerSystemTimeout,
	})
	coord.SetMetrics(metricsReg)

	handler := api.NewHandler(coord, tracker, api.Config{
		TrustProxy: s.TrustProxy,
		SearchRPM:  s.SearchRPM,
		Production: s.Production,
	})
	router := api.NewRouter(handler, metricsReg)

	addr := fmt.Sprintf(":%d", s.Port)
	httpServer := &http.Server{
		Handler:  router,
		Addr:     addr,
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}

	logging.Log(ctx).Info("listening", "addr", addr, "systems", len(result.Systems))
	return httpServer.ListenAndServe()
}

func main() {
	kctx := kong.Parse(&cli{})
	err := kctx.Run()
	if err != nil {
		logging.Log(context.Background()).Error("fatal", "err", err)
		os.Exit(1)
	}
}
