package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/hydrosignal/waternet-simulator/core"
	"github.com/hydrosignal/waternet-simulator/internal/logging"
	"github.com/hydrosignal/waternet-simulator/internal/observability"
	"github.com/hydrosignal/waternet-simulator/network"
	"github.com/hydrosignal/waternet-simulator/scada"
	"github.com/hydrosignal/waternet-simulator/solver"
)

func main() {
	networkPath := flag.String("network", "configs/network.json", "Path to the network description JSON")
	scenarioPath := flag.String("scenario", "configs/scenario.yaml", "Path to the scenario YAML")
	outputPath := flag.String("output", "scada.json", "Path the SCADA dataset is written to")
	exportPath := flag.String("hydraulic-export", "", "Optional path for per-substep hydraulic state lines")
	metricsAddr := flag.String("metrics-addr", "", "Optional HTTP address for Prometheus /metrics")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	var collector *observability.ScenarioCollector
	var metricsSrv *http.Server
	if *metricsAddr != "" {
		collector, err = observability.NewScenarioCollector(nil)
		if err != nil {
			log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
			os.Exit(1)
		}
		metricsSrv = serveMetrics(*metricsAddr, collector, log)
	}

	store := network.NewStore()
	if err := loadNetwork(store, *networkPath); err != nil {
		log.Error(ctx, "failed to load network", logging.String("path", *networkPath), logging.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info(ctx, "network loaded",
		logging.String("path", *networkPath),
		logging.Int("nodes", len(store.NodeIDs())),
		logging.Int("links", len(store.LinkIDs())),
	)

	cfg, err := loadScenario(store, *scenarioPath)
	if err != nil {
		log.Error(ctx, "failed to load scenario", logging.String("path", *scenarioPath), logging.String("error", err.Error()))
		os.Exit(1)
	}

	engine, err := core.NewEngine(cfg, solver.NewSynthetic(),
		core.WithLogger(log),
		core.WithMetrics(collector),
	)
	if err != nil {
		log.Error(ctx, "failed to construct engine", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer engine.Close()

	var opts core.RunOptions
	if *exportPath != "" {
		f, err := os.Create(*exportPath)
		if err != nil {
			log.Error(ctx, "failed to open hydraulic export file", logging.String("path", *exportPath), logging.String("error", err.Error()))
			os.Exit(1)
		}
		defer f.Close()
		opts.HydraulicExport = f
	}

	started := time.Now()
	data, err := engine.RunWithOptions(ctx, opts)
	if err != nil {
		log.Error(ctx, "scenario run failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		log.Error(ctx, "failed to open output file", logging.String("path", *outputPath), logging.String("error", err.Error()))
		os.Exit(1)
	}
	if err := scada.Dump(out, data); err != nil {
		out.Close()
		log.Error(ctx, "failed to write SCADA dataset", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if err := out.Close(); err != nil {
		log.Error(ctx, "failed to close output file", logging.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info(ctx, "scenario complete",
		logging.String("run_id", engine.RunID()),
		logging.String("output", *outputPath),
		logging.Int("reported_steps", data.Len()),
		logging.Any("elapsed", time.Since(started).Round(time.Millisecond)),
	)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func loadNetwork(store *network.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = network.Load(store, f)
	return err
}

func loadScenario(store *network.Store, path string) (core.ScenarioConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.ScenarioConfig{}, err
	}
	defer f.Close()
	return core.LoadScenario(store, f)
}

func serveMetrics(addr string, collector *observability.ScenarioCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
