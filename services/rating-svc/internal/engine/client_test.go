package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busbar/pkg/config"
	"busbar/pkg/ratelimit"
	"busbar/services/rating-svc/internal/domain"
	"busbar/services/rating-svc/internal/repository"
)

var testConfig = domain.Configuration{W: 40, T: 10, B: 2, Angle: 90, A: 60, Icc: 50, Force: 8000, Poles: 3}

func engineConfig(url string) *config.EngineConfig {
	return &config.EngineConfig{
		URL:          url,
		UserAgent:    "test-agent",
		Timeout:      time.Second,
		MaxBodyBytes: 1024,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *repository.MemoryRatingRepository) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := repository.NewMemoryRatingRepository()
	c, err := NewClient(engineConfig(srv.URL), store, opts...)
	require.NoError(t, err)
	return c, store
}

func TestClient_SuccessIsPersisted(t *testing.T) {
	var gotQuery, gotAgent, gotMethod string
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAgent = r.UserAgent()
		gotMethod = r.Method
		_, _ = w.Write([]byte("L=123.4"))
	})

	outcome, err := c.Call(context.Background(), testConfig)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, "L=123.4", outcome.Rating)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "test-agent", gotAgent)
	assert.Equal(t, "Angle=90&B=2&Force=8000&Icc=50&NbrePhase=3&T=10&W=40&a=60", gotQuery)

	rating, found, err := store.Lookup(context.Background(), testConfig)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "L=123.4", rating)
}

func TestClient_SendsNormalizedB(t *testing.T) {
	var gotB string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotB = r.URL.Query().Get("B")
		_, _ = w.Write([]byte("1"))
	})

	cfg := testConfig
	cfg.B = 5
	_, err := c.Call(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, "4", gotB)
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   OutcomeKind
	}{
		{http.StatusInternalServerError, OutcomeOverloaded},
		{http.StatusBadRequest, OutcomeRejected},
		{http.StatusServiceUnavailable, OutcomeRejected},
		{http.StatusNotFound, OutcomeRejected},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			outcome, err := c.Call(context.Background(), testConfig)

			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome.Kind)
			assert.Equal(t, tt.status, outcome.StatusCode)
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestClient_TimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.timeout = 20 * time.Millisecond

	outcome, err := c.Call(context.Background(), testConfig)

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnreachable, outcome.Kind)
	assert.Error(t, outcome.Err)
}

func TestClient_TransportFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewClient(engineConfig(srv.URL), repository.NewMemoryRatingRepository())
	require.NoError(t, err)

	outcome, err := c.Call(context.Background(), testConfig)

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnreachable, outcome.Kind)
}

func TestClient_OversizedBodyIsRejected(t *testing.T) {
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	})

	outcome, err := c.Call(context.Background(), testConfig)

	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome.Kind)
	assert.Equal(t, 0, store.Len())
}

type failingWriter struct{}

func (failingWriter) InsertIfAbsent(context.Context, domain.Configuration, string) (bool, error) {
	return false, errors.New("store down")
}

func TestClient_StoreFailureIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("42"))
	}))
	defer srv.Close()

	c, err := NewClient(engineConfig(srv.URL), failingWriter{})
	require.NoError(t, err)

	outcome, err := c.Call(context.Background(), testConfig)

	assert.Error(t, err)
	assert.Equal(t, OutcomeSuccess, outcome.Kind)
}

func TestClient_ThrottleCancellationIsUnreachable(t *testing.T) {
	var calls atomic.Int32
	limiter := ratelimit.NewMemoryLimiter(&ratelimit.Config{
		Requests:        1,
		Window:          time.Hour,
		CleanupInterval: time.Hour,
		RetryInterval:   5 * time.Millisecond,
	})
	defer limiter.Close()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("42"))
	}, WithLimiter(limiter))

	outcome, err := c.Call(context.Background(), testConfig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	outcome, err = c.Call(ctx, testConfig.WithForce(7000))

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnreachable, outcome.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ThrottleWaitIsBoundedByTimeout(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(&ratelimit.Config{
		Requests:        1,
		Window:          time.Hour,
		CleanupInterval: time.Hour,
		RetryInterval:   5 * time.Millisecond,
	})
	defer limiter.Close()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("42"))
	}, WithLimiter(limiter))
	c.timeout = 100 * time.Millisecond

	_, err := c.Call(context.Background(), testConfig)
	require.NoError(t, err)

	start := time.Now()
	outcome, err := c.Call(context.WithoutCancel(context.Background()), testConfig.WithForce(7000))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnreachable, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(engineConfig("://bad"), repository.NewMemoryRatingRepository())
	assert.Error(t, err)
}
