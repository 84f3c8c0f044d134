// Package kvstore loads a finished key-value store file into a badger
// database keyed by entity id and serves lookups from it.
package kvstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenko/msgpack/v5"

	"github.com/yourorg/kb-extract/internal/models"
	"github.com/yourorg/kb-extract/internal/writer"
)

// ErrNotFound is returned by Get for ids with no stored entry.
var ErrNotFound = errors.New("entity not found")

// progressEvery is how many entries Load writes between progress callbacks.
const progressEvery = 10000

// DB is a badger database of entries under "entity/<id>/<type>".
type DB struct {
	db *badger.DB
}

func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create db dir %s", dir)
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, errors.Wrapf(err, "open db %s", dir)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// FormatForPath infers the encoding of a store file from its extension.
func FormatForPath(path string) (writer.Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, f := range []writer.Format{writer.JSONLines, writer.MessagePack} {
		if ext == f.Ext() {
			return f, nil
		}
	}
	return "", errors.Wrapf(writer.ErrUnknownFormat, "extension %q", ext)
}

func entityPrefix(id string) []byte { return []byte("entity/" + id + "/") }

// Load reads every entry from r and stores it. progress, if set, is called
// periodically with the running count. Entries for an id and type already
// present are replaced.
func (d *DB) Load(ctx context.Context, r io.Reader, f writer.Format, progress func(n uint64)) (uint64, error) {
	dec := writer.NewDecoder(f, r)
	wb := d.db.NewWriteBatch()
	defer wb.Cancel()

	var n uint64
	for {
		e, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, errors.Wrapf(err, "decode entry %d", n+1)
		}
		if e.ID == "" {
			continue
		}
		v, err := msgpack.Marshal(&e)
		if err != nil {
			return n, errors.Wrapf(err, "encode %s", e.ID)
		}
		k := append(entityPrefix(e.ID), e.Type...)
		if err := wb.Set(k, v); err != nil {
			return n, errors.Wrapf(err, "store %s", e.ID)
		}
		n++
		if n%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			if progress != nil {
				progress(n)
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return n, errors.Wrap(err, "flush")
	}
	if progress != nil {
		progress(n)
	}
	return n, nil
}

// LoadFile loads the store file at path, inferring its encoding.
func (d *DB) LoadFile(ctx context.Context, path string, progress func(n uint64)) (uint64, error) {
	f, err := FormatForPath(path)
	if err != nil {
		return 0, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer fh.Close()
	return d.Load(ctx, fh, f, progress)
}

// Get returns every entry stored for id, one per entity type, ordered by type.
func (d *DB) Get(id string) ([]models.Entry, error) {
	var out []models.Entry
	prefix := entityPrefix(id)
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e models.Entry
			err := it.Item().Value(func(v []byte) error {
				return msgpack.Unmarshal(v, &e)
			})
			if err != nil {
				return errors.Wrapf(err, "decode %s", it.Item().Key())
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "%s", id)
	}
	return out, nil
}
