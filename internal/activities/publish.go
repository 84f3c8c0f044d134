package activities

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/yourorg/kb-extract/internal/storage"
	"github.com/yourorg/kb-extract/internal/types"
)

// PublishOutputs copies every output file under p.DestURI.
func (a *Activities) PublishOutputs(ctx context.Context, p types.PublishParams) (types.PublishResult, error) {
	store, err := storage.ForURI(ctx, p.DestURI)
	if err != nil {
		return types.PublishResult{}, err
	}
	activity.RecordHeartbeat(ctx, len(p.Files))
	uris, err := storage.Publish(ctx, store, p.Files, p.DestURI)
	if err != nil {
		return types.PublishResult{}, err
	}
	a.log.Info("outputs published", zap.String("dest", p.DestURI), zap.Int("files", len(uris)))
	return types.PublishResult{URIs: uris}, nil
}
