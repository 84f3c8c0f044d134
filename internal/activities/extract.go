package activities

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/yourorg/kb-extract/internal/job"
	"github.com/yourorg/kb-extract/internal/pipeline"
	"github.com/yourorg/kb-extract/internal/types"
)

// heartbeatEvery bounds the gap between heartbeats when the input size is
// unknown and no progress reports arrive.
const heartbeatEvery = 10 * time.Second

// ExtractDump runs one extraction into <scratch>/<OutputSubdir>. Unless the
// base config names a cache path, labels are cached in <scratch>/label_cache
// and shared by every run of this worker.
func (a *Activities) ExtractDump(ctx context.Context, p types.ExtractParams) (types.ExtractResult, error) {
	if p.InputURI == "" {
		return types.ExtractResult{}, invalidParams(errors.New("input uri is required"))
	}
	sub, err := safeSubdir(p.OutputSubdir)
	if err != nil {
		return types.ExtractResult{}, invalidParams(err)
	}

	cfg := a.cfg.Base
	if len(p.EntityTypes) > 0 {
		cfg.EntityTypes = p.EntityTypes
	}
	if p.Lang != "" {
		cfg.Lang = p.Lang
	}
	if p.Format != "" {
		cfg.Format = p.Format
	}
	cfg.ProcessImages = cfg.ProcessImages || p.ProcessImages
	cfg.OutputDir = filepath.Join(a.cfg.ScratchDir, sub)
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(a.cfg.ScratchDir, labelCacheDir)
	}
	if err := cfg.Validate(); err != nil {
		return types.ExtractResult{}, invalidParams(err)
	}

	// Heartbeat on progress, and time-based as a safety net.
	var permille atomic.Int64
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(heartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				activity.RecordHeartbeat(ctx, permille.Load())
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	hook := func(r pipeline.Report) {
		permille.Store(r.Permille)
		activity.RecordHeartbeat(ctx, r.Permille)
	}

	log := a.log.With(zap.String("input", p.InputURI), zap.String("output", cfg.OutputDir))
	res, err := job.Run(ctx, &cfg, p.InputURI, job.WithLogger(log), job.WithProgressHook(hook))
	if err != nil {
		return types.ExtractResult{}, err
	}

	st := res.Stats
	return types.ExtractResult{
		OutputDir: cfg.OutputDir,
		Files:     res.Files,
		Stats: types.ExtractStats{
			Lines:      st.Lines,
			Bytes:      st.Bytes,
			Blank:      st.Blank,
			Oversize:   st.Oversize,
			Malformed:  st.Malformed,
			Incomplete: st.Incomplete,
			Unlabeled:  st.Unlabeled,
			Unmatched:  st.Unmatched,
			Matched:    st.Matched,
			Written:    st.Written,
		},
		Flushes:      res.Output.Flushes,
		CachedLabels: res.CachedLabels,
		ElapsedMS:    st.Elapsed.Milliseconds(),
	}, nil
}

// invalidParams marks err as not worth retrying.
func invalidParams(err error) error {
	return temporal.NewNonRetryableApplicationError(err.Error(), "InvalidParams", err)
}
