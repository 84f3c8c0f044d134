// Package pipeline reads a record dump, fans lines out to a pool of workers
// and drives extraction, resolution and output for every matching record.
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/kb-extract/internal/metrics"
	"github.com/yourorg/kb-extract/internal/models"
	"github.com/yourorg/kb-extract/internal/normalize"
	"github.com/yourorg/kb-extract/internal/rules"
)

// Extractor builds the attribute map of one record.
type Extractor interface {
	Extract(ctx context.Context, entityType string, claims models.Claims, processImages bool) models.Attributes
}

// Resolver replaces identifier-valued attributes with labels. It blocks the
// calling worker; an asynchronous implementation only needs to honour the
// same contract.
type Resolver interface {
	Resolve(ctx context.Context, attrs models.Attributes) models.Attributes
}

// Sink receives the output of matched records.
type Sink interface {
	AddIndexEntry(typ, name, id string) error
	AddRecordEntry(e models.Entry) error
}

// Config selects what the coordinator extracts.
type Config struct {
	EntityTypes   []string
	Lang          string
	Workers       int
	ProcessImages bool
	// MaxLineSize skips longer lines without buffering them; 0 means unlimited.
	MaxLineSize int
}

// ErrUnknownEntityType is returned by New for types missing from the rule table.
var ErrUnknownEntityType = errors.New("unknown entity type")

// Stats summarises one run. Every non-empty line lands in exactly one of
// Blank, Oversize, Malformed, Incomplete, Unlabeled, Unmatched or Matched.
type Stats struct {
	Lines      int64
	Bytes      int64
	Blank      int64
	Oversize   int64
	Malformed  int64
	Incomplete int64
	Unlabeled  int64
	Unmatched  int64
	Matched    int64
	// Written counts (record, type) pairs; a record matching two types counts twice.
	Written int64
	Elapsed time.Duration
}

type counters struct {
	lines, blank, oversize, malformed, incomplete, unlabeled, unmatched, matched, written atomic.Int64
}

type Coordinator struct {
	cfg       Config
	rules     *rules.Table
	extractor Extractor
	resolver  Resolver
	sink      Sink
	log       *zap.Logger
	hook      func(Report)
}

type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.log = l } }

// WithProgressHook registers fn to be called alongside each progress log line.
func WithProgressHook(fn func(Report)) Option { return func(c *Coordinator) { c.hook = fn } }

// New validates cfg against the rule table. resolver may be nil.
func New(cfg Config, t *rules.Table, ex Extractor, res Resolver, sink Sink, opts ...Option) (*Coordinator, error) {
	for _, typ := range cfg.EntityTypes {
		if !t.Has(typ) {
			return nil, errors.WithHintf(errors.Wrapf(ErrUnknownEntityType, "%q", typ), "known types: %v", t.Types())
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	c := &Coordinator{cfg: cfg, rules: t, extractor: ex, resolver: res, sink: sink, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

// Run processes r to exhaustion. total is the input size in bytes used for
// progress reporting (0 if unknown). Bad lines are skipped; a read failure
// or a sink failure aborts the run.
func (c *Coordinator) Run(ctx context.Context, r io.Reader, total int64) (Stats, error) {
	start := time.Now()
	var ct counters
	progress := NewProgress(total, c.reportProgress)

	g, gctx := errgroup.WithContext(ctx)
	lines := make(chan []byte, c.cfg.Workers*4)

	g.Go(func() error {
		defer close(lines)
		br := bufio.NewReaderSize(r, 1<<20)
		for {
			line, n, oversize, err := readLine(br, c.cfg.MaxLineSize)
			if oversize {
				c.skipOversize(n, progress, &ct)
			} else if len(line) > 0 {
				select {
				case lines <- line:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "read input")
			}
		}
	})

	for i := 0; i < c.cfg.Workers; i++ {
		g.Go(func() error {
			for line := range lines {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := c.processLine(gctx, line, progress, &ct); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	st := Stats{
		Lines:      ct.lines.Load(),
		Bytes:      progress.Consumed(),
		Blank:      ct.blank.Load(),
		Oversize:   ct.oversize.Load(),
		Malformed:  ct.malformed.Load(),
		Incomplete: ct.incomplete.Load(),
		Unlabeled:  ct.unlabeled.Load(),
		Unmatched:  ct.unmatched.Load(),
		Matched:    ct.matched.Load(),
		Written:    ct.written.Load(),
		Elapsed:    time.Since(start),
	}
	if err != nil {
		return st, err
	}
	c.log.Info("extraction complete",
		zap.Duration("elapsed", st.Elapsed),
		zap.Int64("lines", st.Lines),
		zap.Int64("matched", st.Matched),
		zap.Int64("written", st.Written),
		zap.Int64("malformed", st.Malformed),
		zap.String("consumed", humanize.Bytes(uint64(st.Bytes))),
	)
	return st, nil
}

var (
	arrayOpen  = []byte("[")
	arrayClose = []byte("]")
)

// readLine returns the next line including its newline and the number of
// bytes consumed. A line whose content grows past limit bytes is drained
// without being buffered and reported as oversize. limit <= 0 means unlimited.
func readLine(br *bufio.Reader, limit int) (line []byte, n int, oversize bool, err error) {
	for {
		var frag []byte
		frag, err = br.ReadSlice('\n')
		n += len(frag)
		if !oversize {
			if limit > 0 && len(line)+len(bytes.TrimRight(frag, "\r\n")) > limit {
				oversize, line = true, nil
			} else {
				line = append(line, frag...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, n, oversize, err
	}
}

func (c *Coordinator) skipOversize(n int, progress *Progress, ct *counters) {
	progress.Add(n)
	metrics.BytesConsumed.Add(float64(n))
	ct.lines.Add(1)
	ct.oversize.Add(1)
	metrics.LinesSkipped.WithLabelValues("oversize").Inc()
	c.log.Warn("skipping oversized line", zap.String("size", humanize.Bytes(uint64(n))))
}

func (c *Coordinator) processLine(ctx context.Context, line []byte, progress *Progress, ct *counters) error {
	progress.Add(len(line))
	metrics.BytesConsumed.Add(float64(len(line)))
	ct.lines.Add(1)

	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || bytes.Equal(trimmed, arrayOpen) || bytes.Equal(trimmed, arrayClose) {
		ct.blank.Add(1)
		return nil
	}
	trimmed = bytes.TrimSuffix(trimmed, []byte(","))

	var rec models.Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		ct.malformed.Add(1)
		metrics.LinesSkipped.WithLabelValues("malformed").Inc()
		c.log.Debug("skipping malformed line", zap.Error(err))
		return nil
	}
	if !rec.Complete() {
		ct.incomplete.Add(1)
		metrics.LinesSkipped.WithLabelValues("incomplete").Inc()
		return nil
	}
	label, ok := rec.Label(c.cfg.Lang)
	if !ok {
		ct.unlabeled.Add(1)
		metrics.LinesSkipped.WithLabelValues("unlabeled").Inc()
		return nil
	}

	instances := rec.Claims.ReferencedIDs(rules.InstanceOf)
	name := normalize.Label(label)
	matched := false
	for _, typ := range c.cfg.EntityTypes {
		if !c.rules.Matches(typ, instances) {
			continue
		}
		matched = true
		if err := c.emit(ctx, typ, name, &rec); err != nil {
			return err
		}
		ct.written.Add(1)
	}
	if matched {
		ct.matched.Add(1)
	} else {
		ct.unmatched.Add(1)
	}
	return nil
}

// emit runs extraction, then resolution, then output for one (record, type).
func (c *Coordinator) emit(ctx context.Context, typ, name string, rec *models.Record) error {
	attrs := c.extractor.Extract(ctx, typ, rec.Claims, c.cfg.ProcessImages)
	if c.resolver != nil {
		attrs = c.resolver.Resolve(ctx, attrs)
	}
	if err := c.sink.AddIndexEntry(typ, name, rec.ID); err != nil {
		return errors.Wrapf(err, "index entry %s", rec.ID)
	}
	err := c.sink.AddRecordEntry(models.Entry{
		ID:          rec.ID,
		Type:        typ,
		Label:       name,
		Description: rec.Description(c.cfg.Lang),
		Aliases:     rec.AliasValues(c.cfg.Lang),
		Properties:  attrs,
	})
	if err != nil {
		return errors.Wrapf(err, "record entry %s", rec.ID)
	}
	metrics.RecordsWritten.WithLabelValues(typ).Inc()
	return nil
}

func (c *Coordinator) reportProgress(r Report) {
	c.log.Info("progress",
		zap.String("done", fmt.Sprintf("%.1f%%", float64(r.Permille)/10)),
		zap.String("consumed", humanize.Bytes(uint64(r.Consumed))),
		zap.String("total", humanize.Bytes(uint64(r.Total))),
		zap.Duration("elapsed", r.Elapsed.Round(time.Second)),
		zap.Duration("eta", r.ETA.Round(time.Second)),
	)
	if c.hook != nil {
		c.hook(r)
	}
}
