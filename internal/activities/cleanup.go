package activities

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/yourorg/kb-extract/internal/types"
)

// ErrInvalidSubdir is returned for subdirs that would escape the scratch root
// or reach into the shared label cache.
var ErrInvalidSubdir = errors.New("invalid scratch subdir")

// labelCacheDir holds the label cache under the scratch root. It outlives
// every run.
const labelCacheDir = "label_cache"

func safeSubdir(sub string) (string, error) {
	clean := filepath.Clean(sub)
	if sub == "" || clean == "." || clean == "/" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Wrapf(ErrInvalidSubdir, "%q", sub)
	}
	if clean == labelCacheDir || strings.HasPrefix(clean, labelCacheDir+"/") {
		return "", errors.Wrapf(ErrInvalidSubdir, "%q is reserved", sub)
	}
	return clean, nil
}

// CleanupOutputs removes a run's subdirectory under the scratch root.
// It is safe to call even if the directory doesn't exist.
func (a *Activities) CleanupOutputs(ctx context.Context, p types.CleanupParams) error {
	sub, err := safeSubdir(p.ScratchSubdir)
	if err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(a.cfg.ScratchDir, sub))
}
