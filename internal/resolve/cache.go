// Package resolve replaces foreign identifiers in attribute maps with their
// display labels, using a shared in-memory cache backed by a durable store
// and refilled through batched network lookups.
package resolve

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/yourorg/kb-extract/internal/metrics"
	"github.com/yourorg/kb-extract/internal/models"
	"github.com/yourorg/kb-extract/internal/normalize"
)

// Options configures a Cache.
type Options struct {
	Lang string
	// BatchSize bounds the ids per lookup request; <= 0 or > MaxBatch means MaxBatch.
	BatchSize int
	Logger    *zap.Logger
}

// Cache is shared by all pipeline workers. Concurrent callers missing the
// same ids may both query the network; writes are idempotent so the last
// writer wins.
type Cache struct {
	mu     sync.RWMutex
	labels map[string]string
	// absent holds ids a successful lookup returned no label for. It lives
	// for the cache's lifetime and is never persisted.
	absent map[string]struct{}

	store     Store
	lookup    Lookup
	lang      string
	batchSize int
	log       *zap.Logger
}

// Open creates a cache and replays every label persisted in store for the
// configured language. store and lookup may be nil.
func Open(store Store, lookup Lookup, opts Options) (*Cache, error) {
	c := &Cache{
		labels:    make(map[string]string),
		absent:    make(map[string]struct{}),
		store:     store,
		lookup:    lookup,
		lang:      opts.Lang,
		batchSize: opts.BatchSize,
		log:       opts.Logger,
	}
	if c.lang == "" {
		c.lang = "en"
	}
	if c.batchSize <= 0 || c.batchSize > MaxBatch {
		c.batchSize = MaxBatch
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if store != nil {
		if err := store.Load(c.lang, func(id, label string) { c.labels[id] = label }); err != nil {
			return nil, err
		}
	}
	c.log.Info("label cache loaded", zap.String("lang", c.lang), zap.Int("entries", len(c.labels)))
	return c, nil
}

// Label returns the cached label for id.
func (c *Cache) Label(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.labels[id]
	return l, ok
}

// Len returns the number of cached labels.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.labels)
}

// Close closes the durable store.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Resolve replaces every top-level string attribute that looks like an
// identifier with its label. Identifiers that cannot be resolved keep their
// raw value. attrs is modified in place and returned.
func (c *Cache) Resolve(ctx context.Context, attrs models.Attributes) models.Attributes {
	wanted := make(map[string]struct{})
	for _, v := range attrs {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if id, ok := normalize.Identifier(s); ok {
			wanted[id] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return attrs
	}

	var missing []string
	c.mu.RLock()
	for id := range wanted {
		if _, ok := c.labels[id]; ok {
			continue
		}
		if _, ok := c.absent[id]; ok {
			continue
		}
		missing = append(missing, id)
	}
	c.mu.RUnlock()
	metrics.ResolverLookups.WithLabelValues("hit").Add(float64(len(wanted) - len(missing)))
	metrics.ResolverLookups.WithLabelValues("miss").Add(float64(len(missing)))

	if len(missing) > 0 && c.lookup != nil {
		sort.Strings(missing)
		c.fetch(ctx, missing)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range attrs {
		s, ok := v.(string)
		if !ok {
			continue
		}
		id, ok := normalize.Identifier(s)
		if !ok {
			continue
		}
		if label, ok := c.labels[id]; ok {
			attrs[k] = label
		}
	}
	return attrs
}

func (c *Cache) fetch(ctx context.Context, ids []string) {
	for start := 0; start < len(ids); start += c.batchSize {
		end := min(start+c.batchSize, len(ids))
		batch := ids[start:end]

		got, err := c.lookup.Labels(ctx, batch, c.lang)
		if err != nil {
			c.log.Warn("label lookup failed", zap.Int("ids", len(batch)), zap.Error(err))
		} else {
			c.markAbsent(batch, got)
		}
		if len(got) == 0 {
			continue
		}
		c.insert(got)
	}
}

func (c *Cache) markAbsent(batch []string, got map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range batch {
		if _, ok := got[id]; !ok {
			c.absent[id] = struct{}{}
		}
	}
}

func (c *Cache) insert(got map[string]string) {
	c.mu.Lock()
	for id, label := range got {
		c.labels[id] = label
	}
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.Append(c.lang, got); err != nil {
		c.log.Error("persist labels", zap.Int("count", len(got)), zap.Error(err))
	}
}
