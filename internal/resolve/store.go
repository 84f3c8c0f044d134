package resolve

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
)

// Store is the durable, append-only side of the label cache.
type Store interface {
	// Load calls fn for every stored label in lang.
	Load(lang string, fn func(id, label string)) error
	// Append persists labels in lang. Existing ids are overwritten.
	Append(lang string, labels map[string]string) error
	Close() error
}

// BadgerStore keeps labels in a badger database under "label/<lang>/<id>".
type BadgerStore struct {
	db *badger.DB
	// serialises Append so batches land in the value log one after another
	mu sync.Mutex
}

// OpenBadgerStore opens (or creates) the store at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create cache dir %s", dir)
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open label cache %s", dir)
	}
	return &BadgerStore{db: db}, nil
}

func labelPrefix(lang string) []byte { return []byte("label/" + lang + "/") }

func (s *BadgerStore) Load(lang string, fn func(id, label string)) error {
	prefix := labelPrefix(lang)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			fn(string(item.Key()[len(prefix):]), string(v))
		}
		return nil
	})
}

func (s *BadgerStore) Append(lang string, labels map[string]string) error {
	if len(labels) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := labelPrefix(lang)
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for id, label := range labels {
		k := append(append([]byte(nil), prefix...), id...)
		if err := wb.Set(k, []byte(label)); err != nil {
			return errors.Wrapf(err, "append label %s", id)
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
