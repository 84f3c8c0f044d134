package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yourorg/kb-extract/internal/types"
)

// ExtractWorkflow extracts a dump, then optionally loads the KV store into
// badger, publishes the outputs and removes the local copy.
func ExtractWorkflow(ctx workflow.Context, p types.ExtractParams) (types.ExtractResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 24 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	shortAO := ao
	shortAO.StartToCloseTimeout = 2 * time.Hour
	shortCtx := workflow.WithActivityOptions(ctx, shortAO)

	if p.OutputSubdir == "" {
		p.OutputSubdir = workflow.GetInfo(ctx).WorkflowExecution.RunID
	}
	logger := workflow.GetLogger(ctx)

	var res types.ExtractResult
	if err := workflow.ExecuteActivity(ctx, types.ActivityExtractDump, p).Get(ctx, &res); err != nil {
		return types.ExtractResult{}, err
	}
	logger.Info("extraction finished", "matched", res.Stats.Matched, "written", res.Stats.Written)

	if p.LoadKV {
		lp := types.LoadKVParams{KVPath: res.Files["kv"], DBSubdir: p.OutputSubdir + "/kv_db"}
		var lr types.LoadKVResult
		if err := workflow.ExecuteActivity(shortCtx, types.ActivityLoadKVStore, lp).Get(ctx, &lr); err != nil {
			return res, err
		}
		res.KVEntries = lr.Entries
	}

	if p.PublishURI == "" {
		return res, nil
	}
	var pr types.PublishResult
	pp := types.PublishParams{Files: res.Files, DestURI: p.PublishURI}
	if err := workflow.ExecuteActivity(shortCtx, types.ActivityPublishOutputs, pp).Get(ctx, &pr); err != nil {
		return res, err
	}
	res.Published = pr.URIs

	if !p.KeepOutputs {
		cp := types.CleanupParams{ScratchSubdir: p.OutputSubdir}
		if err := workflow.ExecuteActivity(shortCtx, types.ActivityCleanupOutputs, cp).Get(ctx, nil); err != nil {
			logger.Warn("cleanup failed", "subdir", p.OutputSubdir, "error", err)
		}
	}
	return res, nil
}
