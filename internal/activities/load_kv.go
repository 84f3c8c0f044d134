package activities

import (
	"context"
	"path/filepath"

	"go.temporal.io/sdk/activity"

	"github.com/yourorg/kb-extract/internal/kvstore"
	"github.com/yourorg/kb-extract/internal/types"
)

// LoadKVStore loads a finished KV store file into a badger database under
// the scratch root, heartbeating the running entry count.
func (a *Activities) LoadKVStore(ctx context.Context, p types.LoadKVParams) (types.LoadKVResult, error) {
	sub, err := safeSubdir(p.DBSubdir)
	if err != nil {
		return types.LoadKVResult{}, err
	}
	dbPath := filepath.Join(a.cfg.ScratchDir, sub)
	db, err := kvstore.Open(dbPath)
	if err != nil {
		return types.LoadKVResult{}, err
	}
	defer db.Close()

	n, err := db.LoadFile(ctx, p.KVPath, func(n uint64) { activity.RecordHeartbeat(ctx, n) })
	if err != nil {
		return types.LoadKVResult{}, err
	}
	return types.LoadKVResult{Entries: n, DBPath: dbPath}, nil
}
