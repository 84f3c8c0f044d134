package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourorg/kb-extract/internal/config"
	"github.com/yourorg/kb-extract/internal/job"
	"github.com/yourorg/kb-extract/internal/metrics"
	"github.com/yourorg/kb-extract/internal/storage"
)

func newExtractCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <dump-uri>",
		Short: "Extract entities from a dump (file path, file:// or s3://, optionally .gz/.bz2)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runExtract(ctx, cmd.OutOrStdout(), cfg, args[0])
		},
	}
	f := cmd.Flags()
	f.StringSlice("types", nil, "entity types to extract")
	f.String("lang", "en", "label language")
	f.String("format", "MessagePack", "key-value store encoding: JSONLines|MessagePack")
	f.StringP("output", "o", "output", "output directory")
	f.Bool("images", false, "download thumbnails and embed them base64-encoded")
	f.Int("workers", 0, "worker goroutines (0 = one per CPU)")
	f.Int("batch-size", 1000, "records buffered between flushes")
	f.String("cache", "", "label cache directory (default <output>/label_cache)")
	f.Bool("resolve", true, "replace referenced ids with their labels")
	f.String("publish", "", "copy outputs to this s3:// or file:// prefix when done")
	f.Bool("cleanup", false, "remove local outputs after a successful publish")
	f.String("metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func runExtract(ctx context.Context, out io.Writer, cfg *config.Config, input string) error {
	log, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.MetricsAddr != "" {
		metrics.Init()
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	log.Info("starting extraction",
		zap.String("input", input),
		zap.Strings("types", cfg.EntityTypes),
		zap.String("lang", cfg.Lang),
		zap.String("format", cfg.Format),
		zap.String("output", cfg.OutputDir),
		zap.Bool("images", cfg.ProcessImages),
		zap.Bool("resolve", cfg.Resolver.Enabled),
	)
	res, err := job.Run(ctx, cfg, input, job.WithLogger(log))
	if err != nil {
		log.Error("extraction failed", zap.Error(err))
		return err
	}

	if cfg.PublishURI != "" {
		store, err := storage.ForURI(ctx, cfg.PublishURI)
		if err != nil {
			return err
		}
		uris, err := storage.Publish(ctx, store, res.Files, cfg.PublishURI)
		if err != nil {
			return err
		}
		log.Info("outputs published", zap.Strings("uris", uris))
		if cfg.Cleanup {
			for _, p := range res.Files {
				if err := os.Remove(p); err != nil {
					log.Warn("cleanup", zap.String("path", p), zap.Error(err))
				}
			}
		}
	}

	st := res.Stats
	fmt.Fprintf(out, "Extraction completed in %s: %d lines, %d matched, %d written, %d malformed, %d flushes\n",
		st.Elapsed.Round(time.Millisecond), st.Lines, st.Matched, st.Written, st.Malformed, res.Output.Flushes)
	return nil
}
