// Package extract turns a record's raw claims into a normalized attribute map
// according to the per-type rules.
package extract

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/yourorg/kb-extract/internal/models"
	"github.com/yourorg/kb-extract/internal/normalize"
	"github.com/yourorg/kb-extract/internal/rules"
)

// Engine applies a rule table to claims. It is safe for concurrent use.
type Engine struct {
	rules  *rules.Table
	images ImageFetcher
	width  int
	log    *zap.Logger
}

type Option func(*Engine)

// WithImageFetcher sets the fetcher used when image processing is requested.
func WithImageFetcher(f ImageFetcher) Option { return func(e *Engine) { e.images = f } }

// WithThumbnailWidth sets the thumbnail width token; <= 0 keeps the default.
func WithThumbnailWidth(w int) Option { return func(e *Engine) { e.width = w } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func NewEngine(t *rules.Table, opts ...Option) *Engine {
	e := &Engine{rules: t, width: DefaultThumbWidth, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// Extract builds the attribute map for a record of entityType. Unknown types
// yield an empty map. Properties that cannot be read are omitted; Extract
// never fails.
func (e *Engine) Extract(ctx context.Context, entityType string, claims models.Claims, processImages bool) models.Attributes {
	out := models.Attributes{}
	for _, r := range e.rules.Rules(entityType) {
		st, ok := claims.First(r.Code)
		if !ok {
			continue
		}
		raw := st.Value()
		if len(raw) == 0 {
			continue
		}
		if v, ok := e.apply(ctx, r, raw, processImages); ok {
			out[r.OutputKey()] = v
		}
	}
	return out
}

func (e *Engine) apply(ctx context.Context, r rules.Rule, raw json.RawMessage, processImages bool) (any, bool) {
	switch r.Kind {
	case rules.Date:
		var v struct {
			Time string `json:"time"`
		}
		if json.Unmarshal(raw, &v) != nil || v.Time == "" {
			return nil, false
		}
		return normalize.Date(v.Time), true

	case rules.Reference:
		st := models.Statement{Mainsnak: models.Snak{Datavalue: &models.DataValue{Value: raw}}}
		return st.EntityID()

	case rules.Image:
		var name string
		if json.Unmarshal(raw, &name) != nil || name == "" {
			return nil, false
		}
		url := ThumbnailURL(name, e.width)
		if !processImages || e.images == nil {
			return url, true
		}
		payload, err := e.images.Fetch(ctx, url)
		if err != nil {
			e.log.Debug("thumbnail fetch failed", zap.String("code", r.Code), zap.String("url", url), zap.Error(err))
			return nil, false
		}
		return payload, true

	case rules.Text:
		var v struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(raw, &v) != nil || v.Text == "" {
			return nil, false
		}
		return v.Text, true

	case rules.URL:
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil, false
		}
		return s, true

	default:
		var v any
		if json.Unmarshal(raw, &v) != nil {
			return nil, false
		}
		return v, true
	}
}
