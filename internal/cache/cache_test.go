package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/pkg/clock"
	"firewatch.io/firewatch/internal/pkg/errors"
	"firewatch.io/firewatch/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

// unit is one abstract time-unit in these tests.
const unit = time.Second

func testConfig() Config {
	return Config{Sliding: 10 * unit, Absolute: 60 * unit}
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int32
	block chan struct{} // optional: hold fetches open
	fail  error
	units map[string]int
}

func (f *countingFetcher) Fetch(ctx context.Context, region string) (domain.ResourceAvailability, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	if f.fail != nil {
		return domain.ResourceAvailability{}, f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.ResourceAvailability{Region: region, Units: f.units}, nil
}

func TestGet_ColdMissPopulates(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	fetcher := &countingFetcher{units: map[string]int{"ambulance": 4}}
	c := New(fetcher, clk, testConfig())

	got, err := c.Get(context.Background(), "us-east")
	require.NoError(t, err)
	assert.Equal(t, "us-east", got.Region)
	assert.Equal(t, 4, got.Units["ambulance"])
	assert.EqualValues(t, 1, atomic.LoadInt32(&fetcher.calls))

	// Second hit within the validity window does not refetch.
	_, err = c.Get(context.Background(), "us-east")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fetcher.calls))
}

func TestGet_SingleFlight(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	fetcher := &countingFetcher{
		units: map[string]int{"crew": 2},
		block: make(chan struct{}),
	}
	c := New(fetcher, clk, testConfig())

	const callers = 8
	results := make(chan domain.ResourceAvailability, callers)
	errs := make(chan error, callers)

	var started sync.WaitGroup
	started.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			started.Done()
			v, err := c.Get(context.Background(), "us-east")
			results <- v
			errs <- err
		}()
	}
	started.Wait()
	// Give the callers a moment to converge on the in-flight fetch,
	// then release it.
	time.Sleep(20 * time.Millisecond)
	close(fetcher.block)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs)
		v := <-results
		assert.Equal(t, 2, v.Units["crew"])
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&fetcher.calls),
		"concurrent cold misses must coalesce into one upstream fetch")
}

func TestGet_SlidingExpiration(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	fetcher := &countingFetcher{units: map[string]int{"crew": 1}}
	c := New(fetcher, clk, testConfig())

	_, err := c.Get(context.Background(), "us-west")
	require.NoError(t, err)

	// Untouched for the full sliding window: expired even though the
	// absolute window has not elapsed.
	clk.Advance(10 * unit)
	_, err = c.Get(context.Background(), "us-west")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fetcher.calls))
}

func TestGet_SlidingResetsOnAccess(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	fetcher := &countingFetcher{units: map[string]int{"crew": 1}}
	c := New(fetcher, clk, testConfig())

	_, err := c.Get(context.Background(), "us-west")
	require.NoError(t, err)

	// Touch every 5 units; sliding deadline keeps moving.
	for i := 0; i < 4; i++ {
		clk.Advance(5 * unit)
		_, err = c.Get(context.Background(), "us-west")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&fetcher.calls))
}

func TestGet_AbsoluteExpirationWins(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	fetcher := &countingFetcher{units: map[string]int{"crew": 1}}
	c := New(fetcher, clk, testConfig())

	_, err := c.Get(context.Background(), "eu-central")
	require.NoError(t, err)

	// Keep the entry warm with accesses every 6 units. At 60 units since
	// creation the absolute deadline invalidates it regardless.
	for i := 0; i < 10; i++ {
		clk.Advance(6 * unit)
		_, err = c.Get(context.Background(), "eu-central")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&fetcher.calls))
}

func TestGet_UpstreamFailureNotCached(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	fetcher := &countingFetcher{fail: errors.Transient("UPSTREAM_DOWN", "lookup refused")}
	c := New(fetcher, clk, testConfig())

	_, err := c.Get(context.Background(), "us-east")
	require.Error(t, err)
	assert.Equal(t, errors.ClassTransient, errors.ClassOf(err))

	// The failure is not cached: the next call fetches again, and a
	// recovered upstream serves normally.
	fetcher.fail = nil
	fetcher.units = map[string]int{"crew": 3}
	got, err := c.Get(context.Background(), "us-east")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Units["crew"])
	assert.EqualValues(t, 2, atomic.LoadInt32(&fetcher.calls))
}

func TestInvalidate(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	fetcher := &countingFetcher{units: map[string]int{"crew": 1}}
	c := New(fetcher, clk, testConfig())

	_, err := c.Get(context.Background(), "us-east")
	require.NoError(t, err)

	c.Invalidate("us-east")

	_, err = c.Get(context.Background(), "us-east")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fetcher.calls))
}
