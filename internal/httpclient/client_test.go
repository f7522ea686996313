package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func testClient() *Client {
	c := New(arbor.NewLogger())
	c.limiter = NewHostLimiter(1000, 1000) // keep tests fast
	return c
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	resp, err := testClient().Get(context.Background(), srv.URL, Options{Retries: 3, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	var body struct{ OK bool `json:"ok"` }
	require.NoError(t, resp.JSON(&body))
	assert.True(t, body.OK)
}

func TestFetchSurfacesRateLimitWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resp, err := testClient().Get(context.Background(), srv.URL, Options{Retries: 3, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.False(t, resp.OK())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "429 must not be retried")
}

func TestFetchSurfacesForbiddenWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	resp, err := testClient().Get(context.Background(), srv.URL, Options{Retries: 3, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFetchSendsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "tok-123", r.Header.Get("X-Csrf-Token"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := testClient().Post(context.Background(), srv.URL, []byte(`{}`), Options{
		Headers: map[string]string{"X-Csrf-Token": "tok-123"},
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := 400 * time.Millisecond
	for attempt := 0; attempt < 6; attempt++ {
		d := backoffFor(base, max, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max+max/4) // cap plus jitter headroom
	}
}
