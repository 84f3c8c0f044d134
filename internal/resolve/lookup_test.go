package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWikidataLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "wbgetentities", q.Get("action"))
		assert.Equal(t, "labels", q.Get("props"))
		assert.Equal(t, "de", q.Get("languages"))
		assert.Equal(t, "Q64|Q183|Q999999999", q.Get("ids"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"entities":{
			"Q64":{"type":"item","id":"Q64","labels":{"de":{"language":"de","value":"Berlin"}}},
			"Q183":{"type":"item","id":"Q183","labels":[]},
			"Q999999999":{"id":"Q999999999","missing":""}}}`))
	}))
	defer srv.Close()

	l := NewWikidataLookup(srv.URL, 5*time.Second, 0)
	got, err := l.Labels(context.Background(), []string{"Q64", "Q183", "Q999999999"}, "de")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Q64": "Berlin"}, got)
}

func TestWikidataLookupRetriesTransient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"entities":{"Q1":{"id":"Q1","labels":{"en":{"language":"en","value":"universe"}}}}}`))
	}))
	defer srv.Close()

	l := NewWikidataLookup(srv.URL, 5*time.Second, 0)
	l.backoff = time.Millisecond
	got, err := l.Labels(context.Background(), []string{"Q1"}, "en")
	require.NoError(t, err)
	assert.Equal(t, "universe", got["Q1"])
	assert.Equal(t, int32(2), hits.Load())
}

func TestWikidataLookupErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if strings.Contains(r.URL.RawQuery, "Q400") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"error":{"code":"no-such-entity","info":"bad id"}}`))
	}))
	defer srv.Close()

	l := NewWikidataLookup(srv.URL, 5*time.Second, 0)
	_, err := l.Labels(context.Background(), []string{"Q400"}, "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLookupStatus)
	assert.Equal(t, int32(1), hits.Load(), "client errors are not retried")

	_, err = l.Labels(context.Background(), []string{"Q1"}, "en")
	assert.ErrorContains(t, err, "no-such-entity")

	ids := make([]string, MaxBatch+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("Q%d", i+1)
	}
	_, err = l.Labels(context.Background(), ids, "en")
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}
