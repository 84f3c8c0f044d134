// Package job wires configuration into a label cache, extraction engine,
// output writer and coordinator, and runs one extraction end to end.
package job

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/yourorg/kb-extract/internal/config"
	"github.com/yourorg/kb-extract/internal/extract"
	"github.com/yourorg/kb-extract/internal/iopkg"
	"github.com/yourorg/kb-extract/internal/pipeline"
	"github.com/yourorg/kb-extract/internal/resolve"
	"github.com/yourorg/kb-extract/internal/rules"
	"github.com/yourorg/kb-extract/internal/writer"
)

// Result describes a finished extraction.
type Result struct {
	Stats  pipeline.Stats
	Output writer.Stats
	// Files maps each entity type, and "kv", to the path written for it.
	Files map[string]string
	// CachedLabels is the label cache size at the end of the run.
	CachedLabels int
}

type options struct {
	log  *zap.Logger
	hook func(pipeline.Report)
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithProgressHook is called with every progress report.
func WithProgressHook(fn func(pipeline.Report)) Option { return func(o *options) { o.hook = fn } }

// Run extracts inputURI into cfg.OutputDir.
func Run(ctx context.Context, cfg *config.Config, inputURI string, opts ...Option) (Result, error) {
	o := options{log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	log := o.log

	maxLine, err := cfg.MaxLineBytes()
	if err != nil {
		return Result{}, err
	}

	in, size, err := iopkg.OpenInput(ctx, inputURI)
	if err != nil {
		return Result{}, errors.Wrap(err, "open input")
	}
	defer in.Close()
	log.Info("input opened", zap.String("uri", inputURI), zap.String("size", humanize.Bytes(uint64(size))))

	var cache *resolve.Cache
	if cfg.Resolver.Enabled {
		store, err := resolve.OpenBadgerStore(cfg.CachePath())
		if err != nil {
			return Result{}, err
		}
		lookup := resolve.NewWikidataLookup(cfg.Resolver.Endpoint, cfg.Resolver.Timeout, cfg.Resolver.Rate)
		cache, err = resolve.Open(store, lookup, resolve.Options{
			Lang:      cfg.Lang,
			BatchSize: cfg.Resolver.BatchSize,
			Logger:    log.Named("resolve"),
		})
		if err != nil {
			_ = store.Close()
			return Result{}, errors.Wrap(err, "load label cache")
		}
		defer func() {
			if err := cache.Close(); err != nil {
				log.Warn("closing label cache", zap.Error(err))
			}
		}()
	}

	out, err := writer.Open(cfg.OutputDir, cfg.EntityTypes, cfg.OutputFormat(), cfg.BatchSize)
	if err != nil {
		return Result{}, err
	}

	tbl := rules.Default()
	engineOpts := []extract.Option{
		extract.WithThumbnailWidth(cfg.Images.Width),
		extract.WithLogger(log.Named("extract")),
	}
	if cfg.ProcessImages {
		engineOpts = append(engineOpts, extract.WithImageFetcher(extract.NewHTTPImageFetcher(cfg.Images.Timeout, cfg.Images.Rate)))
	}

	var res pipeline.Resolver
	if cache != nil {
		res = cache
	}
	coord, err := pipeline.New(pipeline.Config{
		EntityTypes:   cfg.EntityTypes,
		Lang:          cfg.Lang,
		Workers:       cfg.Workers,
		ProcessImages: cfg.ProcessImages,
		MaxLineSize:   maxLine,
	}, tbl, extract.NewEngine(tbl, engineOpts...), res, out,
		pipeline.WithLogger(log.Named("pipeline")),
		pipeline.WithProgressHook(o.hook),
	)
	if err != nil {
		_ = out.Finalize()
		return Result{}, err
	}

	stats, runErr := coord.Run(ctx, in, size)
	finErr := out.Finalize()
	if err := errors.CombineErrors(errors.Wrap(runErr, "extract"), errors.Wrap(finErr, "finalize output")); err != nil {
		return Result{Stats: stats}, err
	}

	r := Result{Stats: stats, Output: out.Stats(), Files: out.Files()}
	if cache != nil {
		r.CachedLabels = cache.Len()
	}
	return r, nil
}
