package pipeline

import (
	"context"
	stderrors "errors"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/config"
	"github.com/matzehuels/stackaudit/pkg/deps"
	"github.com/matzehuels/stackaudit/pkg/deps/python"
	"github.com/matzehuels/stackaudit/pkg/license"
	"github.com/matzehuels/stackaudit/pkg/metadata"
	"github.com/matzehuels/stackaudit/pkg/report"
	"github.com/matzehuels/stackaudit/pkg/vuln"
)

// WireOptions adjusts what [FromConfig] builds.
type WireOptions struct {
	// Refresh bypasses cached registry responses and trees.
	Refresh bool

	// Sinks replaces the sinks derived from the configuration.
	Sinks []report.Sink
}

// FromConfig assembles a Runner with every collaborator built from cfg.
// The returned function releases the cache and any database client.
func FromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger, wo WireOptions) (*Runner, func() error, error) {
	if logger == nil {
		logger = log.Default()
	}

	c, err := cfg.OpenCache(ctx)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{c.Close}
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return stderrors.Join(errs...)
	}

	clients, err := cfg.NewClients(c, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	var backend deps.Backend
	switch cfg.Resolver.Backend {
	case config.ResolverPipgrip:
		backend = python.NewPipgripBackend(
			python.WithCommand(cfg.Resolver.Pipgrip),
			python.WithPipgripLogger(logger),
		)
	default:
		backend = python.NewPyPIBackend(clients.PyPI,
			python.WithRefresh(wo.Refresh),
			python.WithLogger(logger),
		)
	}
	resolver := deps.NewResolver(backend, deps.Options{
		Concurrency: cfg.Resolver.Concurrency,
		Timeout:     cfg.Resolver.Timeout,
		Refresh:     wo.Refresh,
		Cache:       c,
		Keyer:       cache.NewDefaultKeyer(),
		Retry:       cfg.Retry(logger),
		Logger:      logger,
	})

	validator := license.NewValidator()
	enricher := metadata.NewEnricher(clients.PyPI,
		metadata.WithGitHub(clients.GitHub),
		metadata.WithGitLab(clients.GitLab),
		metadata.WithValidator(validator),
		metadata.WithLogger(logger),
		metadata.WithRefresh(wo.Refresh),
	)

	sinks := wo.Sinks
	if sinks == nil {
		var closeSinks func() error
		sinks, closeSinks, err = Sinks(ctx, cfg)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, closeSinks)
	}

	return &Runner{
		Resolver:    resolver,
		Scanner:     vuln.NewOSVScanner(clients.OSV, vuln.WithLogger(logger)),
		Metadata:    enricher,
		Policy:      cfg.Policy(),
		Validator:   validator,
		Sink:        report.MultiSink(sinks),
		Logger:      logger,
		Concurrency: cfg.Resolver.Concurrency,
	}, closeAll, nil
}

// Sinks builds the sinks named by the report configuration: the output
// file, the run archive and MongoDB, each only when configured.
func Sinks(ctx context.Context, cfg *config.Config) ([]report.Sink, func() error, error) {
	var sinks []report.Sink
	closeFn := func() error { return nil }

	if cfg.Report.OutputPath != "" {
		sinks = append(sinks, report.NewFileSink(cfg.Report.OutputPath, report.Format(cfg.Report.Format)))
	}
	if cfg.Report.ArchiveDir != "" {
		store, err := report.NewStore(cfg.Report.ArchiveDir)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, store)
	}
	if cfg.Report.MongoURI != "" {
		m, err := report.NewMongoSink(ctx, cfg.Report.MongoURI, cfg.Report.MongoDatabase, "")
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, m)
		closeFn = func() error { return m.Close(context.Background()) }
	}
	return sinks, closeFn, nil
}
