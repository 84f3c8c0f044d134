package activities

import (
	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/yourorg/kb-extract/internal/config"
	"github.com/yourorg/kb-extract/internal/types"
)

type Config struct {
	// ScratchDir is the root under which every run writes its outputs.
	ScratchDir string
	// Base supplies defaults for fields an ExtractParams leaves empty.
	Base   config.Config
	Logger *zap.Logger
}

type Activities struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config) *Activities {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Activities{cfg: cfg, log: l}
}

// Registry is implemented by worker.Worker and the workflow test environment.
type Registry interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register registers every activity under the name the workflow calls it by.
func (a *Activities) Register(r Registry) {
	r.RegisterActivityWithOptions(a.ExtractDump, activity.RegisterOptions{Name: types.ActivityExtractDump})
	r.RegisterActivityWithOptions(a.PublishOutputs, activity.RegisterOptions{Name: types.ActivityPublishOutputs})
	r.RegisterActivityWithOptions(a.LoadKVStore, activity.RegisterOptions{Name: types.ActivityLoadKVStore})
	r.RegisterActivityWithOptions(a.CleanupOutputs, activity.RegisterOptions{Name: types.ActivityCleanupOutputs})
}
