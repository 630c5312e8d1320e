package memo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheHit(t *testing.T) {
	ctx := context.Background()
	c := New[int]()
	var calls int
	fn := func(context.Context) (int, error) { calls++; return 42, nil }

	v, hit, err := c.Get(ctx, "k", fn)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, v)

	v, hit, err = c.Get(ctx, "k", fn)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Len())
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	ctx := context.Background()
	c := New[int]()
	boom := errors.New("boom")
	var calls int

	_, _, err := c.Get(ctx, "k", func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	v, hit, err := c.Get(ctx, "k", func(context.Context) (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)
}

func TestCacheCollapsesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	c := New[string]()
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	fn := func(context.Context) (string, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.Get(ctx, "k", fn)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	<-started
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "v", r)
	}
	// Late arrivals may hit the stored entry, never a second fn call
	// for the same generation.
	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheResetDropsInFlightResult(t *testing.T) {
	ctx := context.Background()
	c := New[int]()
	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		v, _, err := c.Get(ctx, "k", func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, v)
	}()

	<-started
	c.Reset()
	close(release)
	<-done

	assert.Zero(t, c.Len())
	v, hit, err := c.Get(ctx, "k", func(context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, v)
}

func TestCacheCallerCancelDoesNotFailSharedCall(t *testing.T) {
	c := New[int]()
	release := make(chan struct{})
	started := make(chan struct{})

	first, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, _, err := c.Get(first, "k", func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 5, ctx.Err()
		})
		errs <- err
	}()
	<-started

	second := make(chan int, 1)
	go func() {
		v, _, err := c.Get(context.Background(), "k",
			func(context.Context) (int, error) { return -1, nil })
		assert.NoError(t, err)
		second <- v
	}()

	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)
	close(release)
	assert.Equal(t, 5, <-second)
	assert.Equal(t, 1, c.Len())
}

func TestKey(t *testing.T) {
	type filters struct {
		Departments []string `json:"departments"`
	}
	a := Key("clinical", "kpis", filters{[]string{"A", "B"}})
	b := Key("clinical", "kpis", filters{[]string{"A", "B"}})
	c := Key("clinical", "kpis", filters{[]string{"B", "A"}})
	d := Key("clinical", "kpi", "s", filters{[]string{"A", "B"}})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 64)
}

func TestKeyPanicsOnUnencodable(t *testing.T) {
	assert.Panics(t, func() { Key(make(chan int)) })
}
