package writer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/kb-extract/internal/models"
)

func entry(i int) models.Entry {
	return models.Entry{
		ID:         fmt.Sprintf("Q%d", i),
		Type:       "person",
		Label:      fmt.Sprintf("name %d", i),
		Properties: models.Attributes{"P569": "1900-01-01T00:00:00Z"},
	}
}

func decodeAll(t *testing.T, f Format, r io.Reader) []models.Entry {
	t.Helper()
	d := NewDecoder(f, r)
	var out []models.Entry
	for {
		e, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func memWriter(format Format, batch int) (*Writer, *bytes.Buffer, *bytes.Buffer) {
	var idx, kv bytes.Buffer
	w := New(Sinks{Index: map[string]io.Writer{"person": &idx}, KV: &kv}, format, batch)
	return w, &idx, &kv
}

func TestAutoFlushAtBatchSize(t *testing.T) {
	const batch = 5
	w, _, kv := memWriter(JSONLines, batch)

	for i := 0; i < batch-1; i++ {
		require.NoError(t, w.AddRecordEntry(entry(i)))
	}
	assert.Zero(t, w.Stats().Flushes)
	assert.Zero(t, kv.Len())

	require.NoError(t, w.AddRecordEntry(entry(batch-1)))
	st := w.Stats()
	assert.Equal(t, 1, st.Flushes)
	assert.Equal(t, batch, st.RecordEntries)
	assert.Len(t, decodeAll(t, JSONLines, bytes.NewReader(kv.Bytes())), batch)
}

func TestFinalizeFlushesRemainderInOrder(t *testing.T) {
	for _, format := range []Format{JSONLines, MessagePack} {
		t.Run(string(format), func(t *testing.T) {
			const batch = 4
			w, idx, kv := memWriter(format, batch)
			for i := 0; i < batch-1; i++ {
				require.NoError(t, w.AddIndexEntry("person", fmt.Sprintf("name %d", i), fmt.Sprintf("Q%d", i)))
				require.NoError(t, w.AddRecordEntry(entry(i)))
			}
			require.Zero(t, w.Stats().Flushes)
			require.NoError(t, w.Finalize())
			assert.Equal(t, 1, w.Stats().Flushes)

			got := decodeAll(t, format, bytes.NewReader(kv.Bytes()))
			require.Len(t, got, batch-1)
			for i, e := range got {
				assert.Equal(t, fmt.Sprintf("Q%d", i), e.ID)
				assert.Equal(t, "1900-01-01T00:00:00Z", e.Properties["P569"])
			}

			rows, err := csv.NewReader(bytes.NewReader(idx.Bytes())).ReadAll()
			require.NoError(t, err)
			assert.Equal(t, [][]string{{"name 0", "Q0"}, {"name 1", "Q1"}, {"name 2", "Q2"}}, rows)

			assert.ErrorIs(t, w.AddRecordEntry(entry(9)), ErrClosed)
			assert.ErrorIs(t, w.Finalize(), ErrClosed)
		})
	}
}

func TestIndexEntryForUnknownType(t *testing.T) {
	w, _, _ := memWriter(JSONLines, 10)
	assert.ErrorIs(t, w.AddIndexEntry("spaceship", "x", "Q1"), ErrUnknownType)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestFlushErrorIsReturned(t *testing.T) {
	w := New(Sinks{Index: map[string]io.Writer{"person": io.Discard}, KV: failingWriter{}}, JSONLines, 2)
	require.NoError(t, w.AddRecordEntry(entry(1)))
	err := w.AddRecordEntry(entry(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

type countingCloser struct{ closed int }

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func TestFinalizeClosesSinksWhenFlushFails(t *testing.T) {
	closer := &countingCloser{}
	w := New(Sinks{
		Index:   map[string]io.Writer{"person": io.Discard},
		KV:      failingWriter{},
		Closers: []io.Closer{closer},
	}, JSONLines, 10)
	require.NoError(t, w.AddRecordEntry(entry(1)))

	err := w.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, closer.closed)

	assert.ErrorIs(t, w.Finalize(), ErrClosed)
	assert.Equal(t, 1, closer.closed)
}

func TestConcurrentAddsLoseNothing(t *testing.T) {
	w, idx, kv := memWriter(MessagePack, 7)
	const workers, per = 8, 50

	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				n := g*per + i
				assert.NoError(t, w.AddIndexEntry("person", "n", fmt.Sprintf("Q%d", n)))
				assert.NoError(t, w.AddRecordEntry(entry(n)))
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Finalize())

	seen := map[string]int{}
	for _, e := range decodeAll(t, MessagePack, bytes.NewReader(kv.Bytes())) {
		seen[e.ID]++
	}
	assert.Len(t, seen, workers*per)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
	rows, err := csv.NewReader(bytes.NewReader(idx.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, workers*per)
	assert.Equal(t, workers*per, w.Stats().IndexEntries["person"])
}

func TestOpenWritesFilesAndManifest(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, []string{"person", "organization"}, JSONLines, 10)
	require.NoError(t, err)
	require.NoError(t, w.AddIndexEntry("person", "Ada", "Q1"))
	require.NoError(t, w.AddRecordEntry(entry(1)))
	require.NoError(t, w.Finalize())

	b, err := os.ReadFile(filepath.Join(dir, "person.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Ada,Q1\n", string(b))

	b, err = os.ReadFile(filepath.Join(dir, "organization.csv"))
	require.NoError(t, err)
	assert.Empty(t, b)

	f, err := os.Open(filepath.Join(dir, "entity_kv_store.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, decodeAll(t, JSONLines, f), 1)

	var man map[string]any
	b, err = os.ReadFile(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &man))
	assert.Equal(t, "JSONLines", man["format"])
	assert.EqualValues(t, 1, man["records"])
	assert.NotEmpty(t, man["run_id"])
	assert.Equal(t, filepath.Join(dir, "entity_kv_store.jsonl"), w.Files()["kv"])
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"JSONLines": JSONLines, "jsonl": JSONLines, "MessagePack": MessagePack, "msgpack": MessagePack} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Equal(t, "jsonl", JSONLines.Ext())
	assert.Equal(t, "msgpack", MessagePack.Ext())
}
