package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/kb-extract/internal/models"
)

type fakeLookup struct {
	mu      sync.Mutex
	labels  map[string]string
	err     error
	batches [][]string
}

func (f *fakeLookup) Labels(_ context.Context, ids []string, lang string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for _, id := range ids {
		if l, ok := f.labels[id]; ok {
			out[id] = lang + ":" + l
		}
	}
	return out, nil
}

func (f *fakeLookup) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestResolveColdThenWarm(t *testing.T) {
	lk := &fakeLookup{labels: map[string]string{"Q145": "United Kingdom", "Q36180": "writer"}}
	c, err := Open(nil, lk, Options{Lang: "en"})
	require.NoError(t, err)

	attrs := c.Resolve(context.Background(), models.Attributes{
		"P27":   "Q145",
		"P106":  "Q36180",
		"P569":  "1815-12-10T00:00:00Z",
		"P625":  map[string]any{"latitude": 1.0},
		"image": "https://example.org/x.jpg",
	})
	assert.Equal(t, "en:United Kingdom", attrs["P27"])
	assert.Equal(t, "en:writer", attrs["P106"])
	assert.Equal(t, "1815-12-10T00:00:00Z", attrs["P569"])
	assert.Equal(t, 1, lk.calls())

	again := c.Resolve(context.Background(), models.Attributes{"P27": "Q145"})
	assert.Equal(t, "en:United Kingdom", again["P27"])
	assert.Equal(t, 1, lk.calls(), "warm cache must not hit the network")
}

func TestResolveLeavesUnresolvedRaw(t *testing.T) {
	lk := &fakeLookup{labels: map[string]string{"Q1": "one"}}
	c, err := Open(nil, lk, Options{Lang: "en"})
	require.NoError(t, err)

	attrs := c.Resolve(context.Background(), models.Attributes{"a": "Q1", "b": "Q2"})
	assert.Equal(t, "en:one", attrs["a"])
	assert.Equal(t, "Q2", attrs["b"])

	failing := &fakeLookup{err: errors.New("timeout")}
	c2, err := Open(nil, failing, Options{Lang: "en"})
	require.NoError(t, err)
	attrs = c2.Resolve(context.Background(), models.Attributes{"a": "Q1"})
	assert.Equal(t, "Q1", attrs["a"])
	assert.Zero(t, c2.Len())
}

func TestResolveRemembersUnlabeledIDs(t *testing.T) {
	lk := &fakeLookup{labels: map[string]string{"Q1": "one"}}
	c, err := Open(nil, lk, Options{Lang: "en"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		attrs := c.Resolve(context.Background(), models.Attributes{"a": "Q1", "b": "Q404"})
		assert.Equal(t, "en:one", attrs["a"])
		assert.Equal(t, "Q404", attrs["b"])
	}
	assert.Equal(t, 1, lk.calls())
	assert.Equal(t, 1, c.Len())
}

func TestResolveRetriesAfterFailedLookup(t *testing.T) {
	lk := &fakeLookup{labels: map[string]string{"Q1": "one"}, err: errors.New("timeout")}
	c, err := Open(nil, lk, Options{Lang: "en"})
	require.NoError(t, err)

	attrs := c.Resolve(context.Background(), models.Attributes{"a": "Q1"})
	assert.Equal(t, "Q1", attrs["a"])

	lk.mu.Lock()
	lk.err = nil
	lk.mu.Unlock()
	attrs = c.Resolve(context.Background(), models.Attributes{"a": "Q1"})
	assert.Equal(t, "en:one", attrs["a"])
	assert.Equal(t, 2, lk.calls())
}

func TestResolveStripsQualifier(t *testing.T) {
	lk := &fakeLookup{labels: map[string]string{"L7": "lexeme"}}
	c, err := Open(nil, lk, Options{Lang: "en"})
	require.NoError(t, err)

	attrs := c.Resolve(context.Background(), models.Attributes{"form": "L7-F1", "lex": "L7"})
	assert.Equal(t, "en:lexeme", attrs["form"])
	assert.Equal(t, "en:lexeme", attrs["lex"])
	require.Len(t, lk.batches, 1)
	assert.Equal(t, []string{"L7"}, lk.batches[0])
}

func TestResolveBatchesRequests(t *testing.T) {
	labels := map[string]string{}
	attrs := models.Attributes{}
	for i := 1; i <= 120; i++ {
		id := fmt.Sprintf("Q%d", i)
		labels[id] = id
		attrs[fmt.Sprintf("k%d", i)] = id
	}
	lk := &fakeLookup{labels: labels}
	c, err := Open(nil, lk, Options{Lang: "en", BatchSize: 500})
	require.NoError(t, err)

	c.Resolve(context.Background(), attrs)
	require.Len(t, lk.batches, 3)
	for _, b := range lk.batches {
		assert.LessOrEqual(t, len(b), MaxBatch)
	}
	assert.Equal(t, 120, c.Len())
}

func TestCacheSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	lk := &fakeLookup{labels: map[string]string{"Q1": "one", "Q2": "two", "Q3": "three"}}
	c, err := Open(store, lk, Options{Lang: "en"})
	require.NoError(t, err)
	c.Resolve(context.Background(), models.Attributes{"a": "Q1", "b": "Q2", "c": "Q3"})
	require.Equal(t, 3, c.Len())
	require.NoError(t, c.Close())

	store, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	offline := &fakeLookup{}
	warm, err := Open(store, offline, Options{Lang: "en"})
	require.NoError(t, err)
	defer warm.Close()

	assert.Equal(t, 3, warm.Len())
	for id, want := range map[string]string{"Q1": "en:one", "Q2": "en:two", "Q3": "en:three"} {
		got, ok := warm.Label(id)
		assert.True(t, ok, id)
		assert.Equal(t, want, got)
	}
	attrs := warm.Resolve(context.Background(), models.Attributes{"a": "Q2"})
	assert.Equal(t, "en:two", attrs["a"])
	assert.Zero(t, offline.calls())
}

func TestStoreSeparatesLanguages(t *testing.T) {
	store, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append("en", map[string]string{"Q1": "one"}))
	require.NoError(t, store.Append("de", map[string]string{"Q1": "eins"}))

	got := map[string]string{}
	require.NoError(t, store.Load("de", func(id, label string) { got[id] = label }))
	assert.Equal(t, map[string]string{"Q1": "eins"}, got)
}

func TestResolveConcurrent(t *testing.T) {
	lk := &fakeLookup{labels: map[string]string{"Q1": "one", "Q2": "two"}}
	c, err := Open(nil, lk, Options{Lang: "en"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attrs := c.Resolve(context.Background(), models.Attributes{"a": "Q1", "b": "Q2"})
			assert.Equal(t, "en:one", attrs["a"])
			assert.Equal(t, "en:two", attrs["b"])
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, c.Len())
}
