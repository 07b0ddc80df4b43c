package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// readyAfter answers 503 until the n-th request, then 200.
func readyAfter(n int32) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) >= n {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	return srv, &hits
}

func fastProber(interval time.Duration) (*Prober, *int) {
	sleeps := 0
	p := New()
	p.Interval = interval
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return sleepCtx(ctx, d)
	}
	return p, &sleeps
}

func TestEmptyURLIsAvailableImmediately(t *testing.T) {
	p, sleeps := fastProber(time.Millisecond)

	report := p.Probe(context.Background(), "", 10)
	assert.True(t, report.Available)
	assert.True(t, report.Skipped)
	assert.Equal(t, 0, report.Attempts)
	assert.Equal(t, 0, *sleeps)
}

func TestAvailableOnThirdAttempt(t *testing.T) {
	srv, hits := readyAfter(3)
	defer srv.Close()

	p, sleeps := fastProber(10 * time.Millisecond)
	report := p.Probe(context.Background(), srv.URL, 10)

	assert.True(t, report.Available)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, 3, *sleeps)
	assert.GreaterOrEqual(t, report.Elapsed, 30*time.Millisecond)
	assert.Equal(t, http.StatusOK, report.LastStatus)
}

func TestNeverAvailableTimesOut(t *testing.T) {
	srv, hits := readyAfter(1000)
	defer srv.Close()

	p, sleeps := fastProber(10 * time.Millisecond)
	ok := p.WaitUntilAvailable(context.Background(), srv.URL, 2)

	assert.False(t, ok)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 2, *sleeps)
}

func TestTransportErrorsKeepPolling(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, _ := fastProber(time.Millisecond)
	report := p.Probe(context.Background(), url, 3)

	assert.False(t, report.Available)
	assert.Equal(t, 3, report.Attempts)
	assert.NotEmpty(t, report.LastError)
}

func TestNonPositiveTimeoutMakesOneAttempt(t *testing.T) {
	srv, hits := readyAfter(2)
	defer srv.Close()

	p, _ := fastProber(time.Millisecond)
	assert.False(t, p.WaitUntilAvailable(context.Background(), srv.URL, 0))
	assert.Equal(t, int32(1), hits.Load())
}

func TestCancelledContextStopsWaiting(t *testing.T) {
	srv, hits := readyAfter(1000)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := fastProber(time.Hour)
	report := p.Probe(ctx, srv.URL, 60)

	assert.False(t, report.Available)
	assert.Equal(t, 0, report.Attempts)
	assert.Equal(t, int32(0), hits.Load())
	assert.Contains(t, report.LastError, "context canceled")
}
