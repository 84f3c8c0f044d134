package iopkg

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
)

// ErrUnsupportedScheme is returned for URIs other than file:// and s3://.
var ErrUnsupportedScheme = errors.New("unsupported scheme")

// s3iface is the minimal subset of s3 client methods we use; allows test fakes.
type s3iface interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// newS3Client constructs an s3 client; overridden in tests.
var newS3Client = func(ctx context.Context) (s3iface, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

// Open returns a ReadCloser and (if known) size for file://, bare-path or s3:// URIs.
func Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "parse %s", uri)
	}
	switch u.Scheme {
	case "file", "":
		p := strings.TrimPrefix(uri, "file://")
		f, err := os.Open(p)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "open %s", p)
		}
		st, _ := f.Stat()
		var sz int64
		if st != nil {
			sz = st.Size()
		}
		return f, sz, nil
	case "s3":
		cl, err := newS3Client(ctx)
		if err != nil {
			return nil, 0, errors.Wrap(err, "s3 client")
		}
		resp, err := cl.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(u.Host), Key: aws.String(strings.TrimPrefix(u.Path, "/")),
		})
		if err != nil {
			return nil, 0, errors.Wrapf(err, "get %s", uri)
		}
		var sz int64
		if resp.ContentLength != nil {
			sz = *resp.ContentLength
		}
		return resp.Body, sz, nil
	default:
		return nil, 0, errors.Wrapf(ErrUnsupportedScheme, "%q", u.Scheme)
	}
}

// OpenInput opens uri like Open and transparently decompresses .gz and .bz2
// inputs. The size reported for compressed inputs is 0 (unknown) since it
// would not describe the bytes the caller reads.
func OpenInput(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	rc, size, err := Open(ctx, uri)
	if err != nil {
		return nil, 0, err
	}
	lower := strings.ToLower(uri)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		gr, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, 0, errors.Wrapf(err, "gzip %s", uri)
		}
		return readCloser{Reader: gr, closers: []io.Closer{gr, rc}}, 0, nil
	case strings.HasSuffix(lower, ".bz2"):
		return readCloser{Reader: bzip2.NewReader(rc), closers: []io.Closer{rc}}, 0, nil
	default:
		return rc, size, nil
	}
}

// Create creates a local file, making parent directories as needed.
func Create(path string) (io.Writer, io.Closer, error) {
	path = strings.TrimPrefix(path, "file://")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
