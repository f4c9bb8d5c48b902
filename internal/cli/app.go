package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/ppiankov/cogito/internal/cache"
	"github.com/ppiankov/cogito/internal/canon"
	"github.com/ppiankov/cogito/internal/grounding"
	"github.com/ppiankov/cogito/internal/llm"
	"github.com/ppiankov/cogito/internal/model"
	"github.com/ppiankov/cogito/internal/pipeline"
	"github.com/ppiankov/cogito/internal/planner"
	"github.com/ppiankov/cogito/internal/policy"
	"github.com/ppiankov/cogito/internal/resolve"
	"github.com/ppiankov/cogito/internal/store"
	"github.com/ppiankov/cogito/internal/tools"
	"github.com/ppiankov/cogito/internal/util"
	"github.com/ppiankov/cogito/internal/worker"
)

// app holds every wired component for one command invocation
type app struct {
	cfg      *model.Config
	logger   *slog.Logger
	store    *store.Store
	canon    *canon.Store
	gate     *grounding.Gate
	registry *tools.Registry
	policy   *policy.Engine
	audit    *planner.AuditQueue
	pipeline *pipeline.CognitionPipeline
	closers  []io.Closer
}

// buildApp wires the pipeline from configuration. Close must be called
// to flush the audit queue and close the store.
func buildApp(cfg *model.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = store.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.store)

	a.canon = canon.NewStore(canon.NewAuthorityClassifier(cfg.Canon.Authority), logger)
	if len(cfg.Canon.Paths) > 0 {
		if err := a.canon.LoadPaths(cfg.Canon.Paths); err != nil {
			return nil, fmt.Errorf("load canon: %w", err)
		}
		logger.Info("canon loaded", "entities", a.canon.Len())
	}

	canonResolver := resolve.NewCanonResolver(a.canon, cache.New(cfg.Cache), logger)
	memoryResolver := resolve.NewMemoryResolver(a.store, cfg.Memory, logger)
	a.gate = grounding.NewGate(canonResolver,
		grounding.WithMemory(memoryResolver),
		grounding.WithWorkers(cfg.Concurrency.ClaimWorkers),
		grounding.WithLogger(logger),
	)

	var robots *util.RobotsChecker
	if cfg.Tools.RespectRobots {
		robots = util.NewRobotsChecker(cfg.Tools.UserAgent, &http.Client{Timeout: cfg.Tools.Timeout}, logger)
	}
	fetcher := tools.NewFetcher(cfg.Tools.Timeout, cfg.Tools.UserAgent, cfg.Tools.MaxBodyBytes, robots,
		worker.NewLimiter(cfg.Tools.RequestsPerSecond, 1), logger)
	a.registry = tools.NewRegistry(tools.Deps{
		Canon:   a.canon,
		Memory:  memoryResolver,
		Fetcher: fetcher,
	}, logger).EnsureBuiltins()

	a.policy, err = policy.NewEngine(cfg.Policy, logger)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	a.audit = planner.NewAuditQueue(a.store, cfg.Planner.AuditQueueSize, logger)

	gateway, err := llm.NewGateway(llm.ConfigFromModel(cfg.LLM), worker.NewLimiter(cfg.LLM.RequestsPerSecond, 1), logger)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	plannerOpts := []planner.Option{
		planner.WithSelector(a.registry),
		planner.WithStrictValidation(cfg.Planner.StrictValidation),
		planner.WithAudit(a.audit),
		planner.WithLogger(logger),
	}
	var (
		classifier pipeline.IntentClassifier
		responder  pipeline.ResponseGenerator
	)
	if gateway != nil {
		classifier, responder = gateway, gateway
		plannerOpts = append(plannerOpts, planner.WithGenerator(gateway))
		logger.Debug("llm gateway enabled", "provider", gateway.Name())
	} else {
		offline := llm.NewOfflineGateway()
		classifier, responder = offline, offline
		logger.Debug("no llm provider configured, running offline")
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Classifier: classifier,
		Planner:    planner.New(plannerOpts...),
		Responder:  responder,
		Gate:       a.gate,
		Tools:      a.registry,
		Policy:     a.policy,
		Store:      a.store,
		Continuity: a.store,
	},
		pipeline.WithRequirements(cfg.Grounding),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// observer opens the --events sink, or returns a no-op observer
func (a *app) observer() (pipeline.Observer, error) {
	if eventsPath == "" {
		return pipeline.NopObserver{}, nil
	}
	f, err := os.OpenFile(eventsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	a.closers = append(a.closers, f)
	return pipeline.NewJSONLObserver(f, a.logger), nil
}

// Close drains the audit queue before closing the store it writes to
func (a *app) Close() {
	if a.audit != nil {
		a.audit.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// setup loads config, installs the logger and wires the app
func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(os.Stderr, cfg.Logging, verbose)
	slog.SetDefault(logger)

	return buildApp(cfg, logger)
}
