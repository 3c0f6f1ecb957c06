// Compile bootstraps exemplar sets from the labeled case bank and
// persists them for the triage server to load at startup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/acuity/internal/acuity"
	"github.com/linnemanlabs/acuity/internal/casebank"
	ac "github.com/linnemanlabs/acuity/internal/cfg"
	"github.com/linnemanlabs/acuity/internal/classify"
	"github.com/linnemanlabs/acuity/internal/exemplar"
	"github.com/linnemanlabs/acuity/internal/exemplar/filestore"
	"github.com/linnemanlabs/acuity/internal/exemplar/memstore"
	"github.com/linnemanlabs/acuity/internal/exemplar/pgstore"
	"github.com/linnemanlabs/acuity/internal/llm/claude"
	"github.com/linnemanlabs/acuity/internal/llm/gemini"
	"github.com/linnemanlabs/acuity/internal/postgres"
	"github.com/linnemanlabs/acuity/internal/specialize"
)

const appName = "acuity"
const component = "compile"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is a local-dev convenience; absent in production
	_ = godotenv.Load()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	var (
		appCfg ac.Config
		logCfg log.Config
	)
	appCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)

	var only string
	flag.StringVar(&only, "spec", "", "compile a single specialization (empty = all)")
	var dryRun bool
	flag.BoolVar(&dryRun, "dry-run", false, "compile and report without persisting the results")

	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, "ACUITY_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		logCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "starting exemplar compilation",
		"version", vi.Version,
		"provider", appCfg.Provider,
		"cases_path", appCfg.CasesPath,
		"max_bootstrapped", appCfg.MaxBootstrappedDemos,
		"max_labeled", appCfg.MaxLabeledDemos,
		"concurrency", appCfg.CompileConcurrency,
		"rate_limit", appCfg.ClassifierRPS,
	)

	// Load the labeled case bank.
	bank, err := casebank.Load(appCfg.CasesPath)
	if err != nil {
		return fmt.Errorf("load cases: %w", err)
	}
	for level, count := range casebank.Distribution(bank.All()) {
		L.Info(ctx, "case bank distribution", "level", string(level), "cases", count)
	}

	// Specialization profiles: external file or the builtin roles.
	var registry *specialize.Registry
	if appCfg.SpecializationsPath != "" {
		registry, err = specialize.LoadRegistry(appCfg.SpecializationsPath)
		if err != nil {
			return fmt.Errorf("load specializations: %w", err)
		}
	} else {
		registry = specialize.Builtin()
	}

	// Initialize the exemplar store. A dry run compiles into a
	// throwaway in-memory store so nothing published changes.
	var store exemplar.Store
	if dryRun {
		store = memstore.New()
		L.Info(ctx, "dry run, results will not be persisted")
	} else if appCfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, appCfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
		pgStore, err := pgstore.New(ctx, pool)
		if err != nil {
			return fmt.Errorf("pgstore init: %w", err)
		}
		store = pgStore
	} else {
		fileStore, err := filestore.New(appCfg.ExemplarDir)
		if err != nil {
			return fmt.Errorf("filestore init: %w", err)
		}
		store = fileStore
	}

	// Initialize the classifier provider.
	var classifier classify.Classifier
	switch appCfg.Provider {
	case ac.ProviderGemini:
		gc, err := gemini.New(ctx, appCfg.GeminiAPIKey, appCfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("gemini init: %w", err)
		}
		defer func() { _ = gc.Close() }()
		classifier = gc
	default:
		classifier = claude.New(appCfg.ClaudeAPIKey, appCfg.ClaudeModel)
	}

	selector := exemplar.NewSelector(classifier, L, exemplar.SelectorOptions{
		Weights: acuity.Weights{
			OverTriage:  appCfg.OverTriageScore,
			UnderTriage: appCfg.UnderTriageScore,
		},
		Concurrency: appCfg.CompileConcurrency,
		RateLimit:   appCfg.ClassifierRPS,
	})

	targets := registry.IDs()
	if only != "" {
		if _, ok := registry.Get(only); !ok {
			return fmt.Errorf("unknown specialization %q", only)
		}
		targets = []string{only}
	}

	// Compile each target independently. One failing role must not
	// block the others; a stale set for it stays in effect.
	var failed int
	for _, id := range targets {
		profile, _ := registry.Get(id)
		set, err := selector.Compile(ctx, profile, bank, appCfg.MaxBootstrappedDemos, appCfg.MaxLabeledDemos)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("compilation interrupted: %w", ctx.Err())
			}
			var insufficient *exemplar.InsufficientDataError
			if errors.As(err, &insufficient) {
				L.Warn(ctx, "skipping specialization, not enough labeled cases",
					"specialization", id,
					"have", insufficient.Have,
					"need", insufficient.Need,
				)
			} else {
				L.Error(ctx, err, "compilation failed", "specialization", id)
			}
			failed++
			continue
		}
		if err := store.Save(ctx, set); err != nil {
			L.Error(ctx, err, "failed to save exemplar set", "specialization", id, "version", set.Version)
			failed++
			continue
		}
		L.Info(ctx, "saved exemplar set",
			"specialization", id,
			"version", set.Version,
			"exemplars", len(set.Exemplars),
			"pool", len(set.BootstrapPool),
		)
	}

	if failed == len(targets) {
		return fmt.Errorf("all %d specializations failed to compile", failed)
	}
	L.Info(ctx, "compilation complete", "compiled", len(targets)-failed, "failed", failed)
	return nil
}
