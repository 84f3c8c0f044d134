package storage

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnsupportedScheme is returned for destinations other than s3:// and file://.
var ErrUnsupportedScheme = errors.New("unsupported publish scheme")

// ObjectStore receives finished output files.
type ObjectStore interface {
	// Put writes content to uri and returns the final URI.
	Put(ctx context.Context, uri string, body io.Reader) (string, error)
}

// LocalStore publishes to file:// URIs or bare paths.
type LocalStore struct{}

func (LocalStore) Put(_ context.Context, uri string, body io.Reader) (string, error) {
	p := strings.TrimPrefix(uri, "file://")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", filepath.Dir(p))
	}
	f, err := os.Create(p)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", p)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return "", errors.Wrapf(err, "write %s", p)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", p)
	}
	return "file://" + p, nil
}

// newS3Store is overridden in tests.
var newS3Store = func(ctx context.Context) (ObjectStore, error) { return NewS3(ctx) }

// ForURI returns the store able to write under dest.
func ForURI(ctx context.Context, dest string) (ObjectStore, error) {
	u, err := url.Parse(dest)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", dest)
	}
	switch u.Scheme {
	case "s3":
		return newS3Store(ctx)
	case "file", "":
		return LocalStore{}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedScheme, "%q", u.Scheme)
	}
}

// Publish uploads every local file in files under the dest prefix, keeping
// base names, and returns the resulting URIs in name order.
func Publish(ctx context.Context, store ObjectStore, files map[string]string, dest string) ([]string, error) {
	local := make([]string, 0, len(files))
	for _, p := range files {
		local = append(local, p)
	}
	sort.Strings(local)

	dest = strings.TrimSuffix(dest, "/")
	out := make([]string, 0, len(local))
	for _, p := range local {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		uri, err := putFile(ctx, store, p, joinURI(dest, filepath.Base(p)))
		if err != nil {
			return out, err
		}
		out = append(out, uri)
	}
	return out, nil
}

func putFile(ctx context.Context, store ObjectStore, local, uri string) (string, error) {
	f, err := os.Open(local)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", local)
	}
	defer f.Close()
	final, err := store.Put(ctx, uri, f)
	if err != nil {
		return "", errors.Wrapf(err, "publish %s", local)
	}
	return final, nil
}

func joinURI(prefix, name string) string {
	if strings.HasPrefix(prefix, "s3://") {
		return "s3://" + path.Join(strings.TrimPrefix(prefix, "s3://"), name)
	}
	return filepath.Join(strings.TrimPrefix(prefix, "file://"), name)
}
