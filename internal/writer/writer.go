// Package writer buffers pipeline output and flushes it in batches to the
// per-type index files and the consolidated key-value store.
package writer

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	iopkg "github.com/yourorg/kb-extract/internal/iopkg"
	"github.com/yourorg/kb-extract/internal/metrics"
	"github.com/yourorg/kb-extract/internal/models"
)

const (
	// DefaultBatchSize is the key-value buffer length that triggers a flush.
	DefaultBatchSize = 1000
	// KVBaseName is the key-value store file name without extension.
	KVBaseName = "entity_kv_store"
	// ManifestName is written next to the outputs on Finalize.
	ManifestName = "manifest.json"
)

var (
	// ErrClosed is returned for calls after Finalize.
	ErrClosed = errors.New("writer: finalized")
	// ErrUnknownType is returned for index entries of a type without a sink.
	ErrUnknownType = errors.New("writer: no index sink for entity type")
)

// Sinks are the destinations a Writer drains into.
type Sinks struct {
	Index map[string]io.Writer
	KV    io.Writer
	// Closers are closed, in order, by Finalize.
	Closers []io.Closer
}

// Stats describes what a Writer has persisted so far.
type Stats struct {
	Flushes       int
	RecordEntries int
	IndexEntries  map[string]int
}

// Writer is safe for concurrent use; every mutating call holds one lock.
type Writer struct {
	mu        sync.Mutex
	batchSize int
	format    Format

	index   map[string][]models.IndexEntry
	records []models.Entry

	indexSinks map[string]*csv.Writer
	kv         *bufio.Writer
	enc        entryEncoder
	closers    []io.Closer

	stats  Stats
	closed bool

	// set by Open
	dir       string
	files     map[string]string
	runID     string
	startedAt time.Time
}

// New creates a writer over explicit sinks. batchSize <= 0 means DefaultBatchSize.
func New(s Sinks, format Format, batchSize int) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	kv := bufio.NewWriterSize(s.KV, 1<<20)
	w := &Writer{
		batchSize:  batchSize,
		format:     format,
		index:      make(map[string][]models.IndexEntry),
		records:    make([]models.Entry, 0, batchSize),
		indexSinks: make(map[string]*csv.Writer, len(s.Index)),
		kv:         kv,
		enc:        newEncoder(format, kv),
		closers:    s.Closers,
		stats:      Stats{IndexEntries: make(map[string]int)},
	}
	for typ, iw := range s.Index {
		w.indexSinks[typ] = csv.NewWriter(iw)
	}
	return w
}

// Open creates <dir>/<type>.csv for every type and <dir>/entity_kv_store.<ext>.
func Open(dir string, types []string, format Format, batchSize int) (*Writer, error) {
	s := Sinks{Index: make(map[string]io.Writer, len(types))}
	files := make(map[string]string, len(types)+1)
	fail := func(err error) (*Writer, error) {
		for _, c := range s.Closers {
			_ = c.Close()
		}
		return nil, err
	}
	for _, typ := range types {
		p := filepath.Join(dir, typ+".csv")
		iw, c, err := iopkg.Create(p)
		if err != nil {
			return fail(errors.Wrapf(err, "create index sink %s", p))
		}
		s.Index[typ] = iw
		s.Closers = append(s.Closers, c)
		files[typ] = p
	}
	kvPath := filepath.Join(dir, KVBaseName+"."+format.Ext())
	kw, c, err := iopkg.Create(kvPath)
	if err != nil {
		return fail(errors.Wrapf(err, "create kv sink %s", kvPath))
	}
	s.KV = kw
	s.Closers = append(s.Closers, c)
	files["kv"] = kvPath

	w := New(s, format, batchSize)
	w.dir = dir
	w.files = files
	w.runID = uuid.NewString()
	w.startedAt = time.Now().UTC()
	return w, nil
}

// AddIndexEntry buffers one (name, id) row for typ.
func (w *Writer) AddIndexEntry(typ, name, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, ok := w.indexSinks[typ]; !ok {
		return errors.Wrapf(ErrUnknownType, "%q", typ)
	}
	w.index[typ] = append(w.index[typ], models.IndexEntry{Name: name, ID: id})
	if len(w.records) >= w.batchSize {
		return w.flushLocked()
	}
	return nil
}

// AddRecordEntry buffers one key-value entry and flushes once the buffer
// reaches the batch size.
func (w *Writer) AddRecordEntry(e models.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.records = append(w.records, e)
	if len(w.records) >= w.batchSize {
		return w.flushLocked()
	}
	return nil
}

// Flush drains both buffers into the sinks.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	for typ, entries := range w.index {
		cw := w.indexSinks[typ]
		for _, e := range entries {
			if err := cw.Write([]string{e.Name, e.ID}); err != nil {
				return errors.Wrapf(err, "write %s index", typ)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return errors.Wrapf(err, "flush %s index", typ)
		}
		w.stats.IndexEntries[typ] += len(entries)
	}
	clear(w.index)

	for i := range w.records {
		if err := w.enc.Encode(&w.records[i]); err != nil {
			return errors.Wrapf(err, "encode entry %s", w.records[i].ID)
		}
	}
	if err := w.kv.Flush(); err != nil {
		return errors.Wrap(err, "flush kv store")
	}
	w.stats.RecordEntries += len(w.records)
	clear(w.records)
	w.records = w.records[:0]

	w.stats.Flushes++
	metrics.Flushes.Inc()
	return nil
}

// Finalize flushes what is left, persists every sink, writes the manifest
// (for writers created with Open) and closes the sinks. The sinks are closed
// even when the flush fails. The writer cannot be used afterwards.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	flushErr := w.flushLocked()
	w.closed = true

	var closeErr error
	for _, c := range w.closers {
		if err := c.Close(); err != nil {
			closeErr = errors.CombineErrors(closeErr, errors.Wrap(err, "close sink"))
		}
	}
	if err := errors.CombineErrors(flushErr, closeErr); err != nil {
		return err
	}
	if w.dir != "" {
		return w.writeManifest()
	}
	return nil
}

// Stats returns a snapshot of the writer's counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Stats{Flushes: w.stats.Flushes, RecordEntries: w.stats.RecordEntries, IndexEntries: make(map[string]int, len(w.stats.IndexEntries))}
	for k, v := range w.stats.IndexEntries {
		s.IndexEntries[k] = v
	}
	return s
}

// Files returns the output paths keyed by entity type, plus "kv" and,
// once finalized, "manifest".
func (w *Writer) Files() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.files))
	for k, v := range w.files {
		out[k] = v
	}
	return out
}

func (w *Writer) writeManifest() error {
	types := make([]string, 0, len(w.indexSinks))
	for typ := range w.indexSinks {
		types = append(types, typ)
	}
	sort.Strings(types)

	man := map[string]any{
		"run_id":        w.runID,
		"format":        w.format,
		"entity_types":  types,
		"files":         w.files,
		"records":       w.stats.RecordEntries,
		"index_entries": w.stats.IndexEntries,
		"flushes":       w.stats.Flushes,
		"started_at":    w.startedAt.Format(time.RFC3339),
		"finished_at":   time.Now().UTC().Format(time.RFC3339),
	}
	mb, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	p := filepath.Join(w.dir, ManifestName)
	mw, c, err := iopkg.Create(p)
	if err != nil {
		return errors.Wrapf(err, "create manifest %s", p)
	}
	if _, err := mw.Write(mb); err != nil {
		_ = c.Close()
		return errors.Wrapf(err, "write manifest %s", p)
	}
	if err := c.Close(); err != nil {
		return errors.Wrapf(err, "close manifest %s", p)
	}
	w.files["manifest"] = p
	return nil
}
