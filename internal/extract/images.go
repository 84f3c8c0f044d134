package extract

import (
	"context"
	"encoding/base64"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/yourorg/kb-extract/internal/metrics"
)

// ImageFetcher retrieves a thumbnail. Implementations return the base64
// payload on success, the URL itself when the server answers with something
// that is not an image, and an error when the transport fails.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// maxImageBytes caps a single thumbnail download.
const maxImageBytes = 8 << 20

// ErrImageTooLarge is returned when a thumbnail exceeds the size cap.
var ErrImageTooLarge = errors.New("image too large")

var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.3112.101 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.3; rv:122.0) Gecko/20100101 Firefox/122.0",
	}
	acceptLanguages = []string{"en-US,en;q=0.9", "en-GB,en;q=0.9", "en-CA,en;q=0.9", "en-AU,en;q=0.9"}
	referrers       = []string{
		"https://www.google.com/",
		"https://www.bing.com/",
		"https://www.wikipedia.org/",
		"https://www.wikimedia.org/",
	}
)

// HTTPImageFetcher downloads thumbnails over HTTP with browser-like headers.
type HTTPImageFetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	maxBytes int64
}

// NewHTTPImageFetcher returns a fetcher with a per-request timeout. rps <= 0
// disables rate limiting.
func NewHTTPImageFetcher(timeout time.Duration, rps float64) *HTTPImageFetcher {
	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &HTTPImageFetcher{
		client:   &http.Client{Timeout: timeout},
		limiter:  lim,
		maxBytes: maxImageBytes,
	}
}

func (f *HTTPImageFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "build image request")
	}
	setBrowserHeaders(req.Header)

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.ImageFetches.WithLabelValues("error").Inc()
		return "", errors.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		metrics.ImageFetches.WithLabelValues("not_image").Inc()
		return url, nil
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		metrics.ImageFetches.WithLabelValues("error").Inc()
		return "", errors.Wrapf(err, "read %s", url)
	}
	if int64(len(b)) > f.maxBytes {
		metrics.ImageFetches.WithLabelValues("error").Inc()
		return "", errors.Wrapf(ErrImageTooLarge, "%s exceeds %d bytes", url, f.maxBytes)
	}
	metrics.ImageFetches.WithLabelValues("ok").Inc()
	return base64.StdEncoding.EncodeToString(b), nil
}

func setBrowserHeaders(h http.Header) {
	h.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	h.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")
	h.Set("Accept-Language", acceptLanguages[rand.Intn(len(acceptLanguages))])
	// 70% of requests carry a referer
	if rand.Float64() < 0.7 {
		h.Set("Referer", referrers[rand.Intn(len(referrers))])
	}
}
