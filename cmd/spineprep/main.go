// Command spineprep is the thin CLI entrypoint spec.md treats as an
// external collaborator: it wires a dataset root, a derivatives root,
// and an optional configuration file into internal/config,
// internal/manifest, and internal/steps, then hands the resulting DAG
// to internal/dag.Execute.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/spineprep/spineprep/internal/config"
	"github.com/spineprep/spineprep/internal/dag"
	"github.com/spineprep/spineprep/internal/manifest"
	"github.com/spineprep/spineprep/internal/observability"
	"github.com/spineprep/spineprep/internal/steps"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		datasetRoot  = flag.String("dataset-root", "", "input dataset root (required)")
		derivRoot    = flag.String("deriv-root", "", "output derivatives root (required)")
		configPath   = flag.String("config", "", "path to a YAML configuration file")
		manifestPath = flag.String("manifest", "", "manifest CSV produced by the dataset-discovery collaborator (default: <dataset-root>/manifest.csv)")
		anatPath     = flag.String("anatomicals", "", "anatomicals CSV (default: <dataset-root>/anatomicals.csv); only read when registration.enable is set")
		dryRun       = flag.Bool("dry-run", false, "plan the DAG but run no step")
		saveDAG      = flag.String("save-dag", "", "write the planned DAG description as JSON to this path")
		printConfig  = flag.Bool("print-config", false, "print the effective configuration before running")
		strict       = flag.Bool("strict", false, "promote SKIP outcomes to a fatal exit code")
	)
	flag.Parse()

	if *datasetRoot == "" || *derivRoot == "" {
		fmt.Fprintln(os.Stderr, "spineprep: -dataset-root and -deriv-root are required")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spineprep: load config: %v\n", err)
		return 1
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	if *printConfig {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			log.Error().Err(err).Msg("spineprep: marshal effective config")
		} else {
			fmt.Fprintln(os.Stdout, string(data))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.InitOTel(ctx, observability.TelemetryOptions{
		Endpoint: cfg.OTel.Endpoint, Insecure: cfg.OTel.Insecure, ServiceName: cfg.OTel.ServiceName,
	})
	if err != nil {
		log.Warn().Err(err).Msg("spineprep: otel init failed, continuing without telemetry")
		shutdown = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdown(context.Background()) }()

	if *manifestPath == "" {
		*manifestPath = filepath.Join(*datasetRoot, "manifest.csv")
	}
	if *anatPath == "" {
		*anatPath = filepath.Join(*datasetRoot, "anatomicals.csv")
	}

	m, err := manifest.LoadCSV(*manifestPath)
	if err != nil {
		log.Error().Err(err).Str("manifest", *manifestPath).Msg("spineprep: load manifest")
		return 1
	}
	if cfg.Registration.Enable {
		anat, err := manifest.LoadAnatomicalsCSV(*anatPath)
		if err != nil {
			log.Error().Err(err).Str("anatomicals", *anatPath).Msg("spineprep: load anatomicals")
			return 1
		}
		m.Anatomicals = anat
	}

	p := dag.NewPlanner()
	for _, r := range m.Runs {
		rp, err := steps.ComposeRunPaths(*derivRoot, r)
		if err != nil {
			log.Error().Err(err).Str("run", dag.KeyFromRun(r).String()).Msg("spineprep: compose paths")
			return 1
		}
		steps.BuildRun(p, cfg, r, rp, *derivRoot, time.Now)
	}
	if cfg.Registration.Enable {
		for _, a := range m.Anatomicals {
			steps.BuildSubjectRegistration(p, *derivRoot, a, time.Now)
		}
	}

	g, err := p.Build()
	if err != nil {
		log.Error().Err(err).Msg("spineprep: build DAG")
		return 1
	}

	if *saveDAG != "" {
		if err := dag.Export(g, *saveDAG); err != nil {
			log.Error().Err(err).Str("path", *saveDAG).Msg("spineprep: export DAG")
			return 1
		}
	}

	mode := dag.ModeRun
	if *dryRun {
		mode = dag.ModeDryRun
	}

	results := dag.Execute(ctx, g, mode, cfg.Workers)
	return summarize(results, *strict)
}

// summarize logs the per-stage {OK, SKIP, FAILED} counts spec section
// 4.1 requires at the end of a run and derives the process exit code:
// 1 on any FAILED_FATAL step, 1 on any SKIP/FAILED_RETRIED when strict
// is set (promoting warnings to failures), 2 on any SKIP/FAILED_RETRIED
// otherwise, 0 when every step completed OK.
func summarize(results []dag.StepResult, strict bool) int {
	counts := map[dag.State]int{}
	perStage := map[dag.Stage]map[dag.State]int{}
	var anyFatal, anyWarning bool
	for _, r := range results {
		counts[r.State]++
		if perStage[r.ID.Stage] == nil {
			perStage[r.ID.Stage] = map[dag.State]int{}
		}
		perStage[r.ID.Stage][r.State]++
		switch r.State {
		case dag.StateFailedFatal:
			anyFatal = true
			log.Error().Str("step", r.ID.String()).Err(r.Err).Msg("spineprep: step failed")
		case dag.StateSkip, dag.StateFailedRetried:
			anyWarning = true
		}
	}

	for _, stage := range dag.StageOrder {
		c, ok := perStage[stage]
		if !ok {
			continue
		}
		log.Info().Str("stage", string(stage)).
			Int("ok", c[dag.StateOK]).
			Int("skip", c[dag.StateSkip]).
			Int("failed_retried", c[dag.StateFailedRetried]).
			Int("failed_fatal", c[dag.StateFailedFatal]).
			Msg("spineprep: stage summary")
	}

	log.Info().
		Int("ok", counts[dag.StateOK]).
		Int("skip", counts[dag.StateSkip]).
		Int("failed_retried", counts[dag.StateFailedRetried]).
		Int("failed_fatal", counts[dag.StateFailedFatal]).
		Msg("spineprep: run complete")

	switch {
	case anyFatal:
		return 1
	case anyWarning && strict:
		return 1
	case anyWarning:
		return 2
	default:
		return 0
	}
}
