package resolve

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/yourorg/kb-extract/internal/metrics"
	"github.com/yourorg/kb-extract/internal/models"
)

const (
	// DefaultEndpoint is the public knowledge-base API.
	DefaultEndpoint = "https://www.wikidata.org/w/api.php"
	// MaxBatch is the API's limit on ids per request.
	MaxBatch = 50

	userAgent = "kb-extract/1.0 (https://github.com/yourorg/kb-extract)"
)

var (
	// ErrLookupStatus is returned for non-200 responses.
	ErrLookupStatus = errors.New("label lookup: unexpected status")
	// ErrBatchTooLarge is returned when more than MaxBatch ids are requested.
	ErrBatchTooLarge = errors.New("label lookup: batch too large")
)

// Lookup resolves identifiers to labels in one language. Ids without a
// label are simply absent from the result.
type Lookup interface {
	Labels(ctx context.Context, ids []string, lang string) (map[string]string, error)
}

// WikidataLookup calls the wbgetentities API.
type WikidataLookup struct {
	endpoint   string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

// NewWikidataLookup returns a client for endpoint ("" for DefaultEndpoint).
// rps <= 0 disables rate limiting.
func NewWikidataLookup(endpoint string, timeout time.Duration, rps float64) *WikidataLookup {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &WikidataLookup{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
		limiter:    lim,
		maxRetries: 2,
		backoff:    500 * time.Millisecond,
	}
}

type wbResponse struct {
	Entities map[string]struct {
		ID      string         `json:"id"`
		Missing *string        `json:"missing"`
		Labels  models.LangMap `json:"labels"`
	} `json:"entities"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

func (l *WikidataLookup) Labels(ctx context.Context, ids []string, lang string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	if len(ids) > MaxBatch {
		return nil, errors.Wrapf(ErrBatchTooLarge, "%d ids", len(ids))
	}

	q := url.Values{}
	q.Set("action", "wbgetentities")
	q.Set("ids", strings.Join(ids, "|"))
	q.Set("props", "labels")
	q.Set("languages", lang)
	q.Set("format", "json")
	u := l.endpoint + "?" + q.Encode()

	var body wbResponse
	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, l.delay(attempt-1)); err != nil {
				break
			}
		}
		retry, err := l.get(ctx, u, &body)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if !retry {
			break
		}
	}
	if lastErr != nil {
		metrics.ResolverRequests.WithLabelValues("error").Inc()
		return nil, lastErr
	}
	metrics.ResolverRequests.WithLabelValues("ok").Inc()
	if body.Error != nil {
		return nil, errors.Newf("label lookup: %s: %s", body.Error.Code, body.Error.Info)
	}

	out := make(map[string]string, len(body.Entities))
	for key, ent := range body.Entities {
		if ent.Missing != nil {
			continue
		}
		id := ent.ID
		if id == "" {
			id = key
		}
		if v, ok := ent.Labels[lang]; ok && v.Value != "" {
			out[id] = v.Value
		}
	}
	return out, nil
}

// get performs one request; retry reports whether the failure is transient.
func (l *WikidataLookup) get(ctx context.Context, u string, into *wbResponse) (retry bool, err error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, errors.Wrap(err, "build label request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, err
		}
		return true, errors.Wrap(err, "label request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return transient, errors.Wrapf(ErrLookupStatus, "status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return false, errors.Wrap(err, "decode label response")
	}
	return false, nil
}

func (l *WikidataLookup) delay(attempt int) time.Duration {
	base := float64(l.backoff) * math.Pow(2, float64(attempt))
	jitter := base * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(base + jitter)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
