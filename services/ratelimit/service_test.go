package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heycarlitos/llm-proxy/internal/observability"
	"github.com/heycarlitos/llm-proxy/models"
	"github.com/heycarlitos/llm-proxy/repositories"
	"github.com/heycarlitos/llm-proxy/repositories/memory"
	"github.com/heycarlitos/llm-proxy/services"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockStore is a mock implementation of repositories.RateLimitStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Update(ctx context.Context, callerID string, fn repositories.UpdateFunc) (*models.RateLimitEntry, error) {
	args := m.Called(ctx, callerID, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RateLimitEntry), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, callerID string) (*models.RateLimitEntry, error) {
	args := m.Called(ctx, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RateLimitEntry), args.Error(1)
}

func (m *MockStore) Sweep(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

func newTestService(t *testing.T, store repositories.RateLimitStore) (*RateLimitService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)}
	svc := NewRateLimitService(store, 20, time.Hour, nil, zap.NewNop())
	svc.now = clock.Now
	return svc, clock
}

func TestNewRateLimitService_Defaults(t *testing.T) {
	svc := NewRateLimitService(memory.NewRateLimitStore(), 0, 0, nil, zap.NewNop())

	assert.Equal(t, DefaultCapacity, svc.Capacity())
	assert.Equal(t, DefaultWindow, svc.Window())
}

func TestRateLimitService_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("twenty allowed then denied", func(t *testing.T) {
		svc, clock := newTestService(t, memory.NewRateLimitStore())
		start := clock.Now()

		for i := 1; i <= 20; i++ {
			res, err := svc.Check(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, res.Allowed, "request %d", i)
			assert.Equal(t, 20-i, res.Remaining, "request %d", i)
			assert.Equal(t, 20, res.Limit)
			assert.Equal(t, start.Add(time.Hour), res.ResetAt)
			clock.Advance(time.Second)
		}

		res, err := svc.Check(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.Equal(t, start.Add(time.Hour), res.ResetAt)
	})

	t.Run("denied request does not increment", func(t *testing.T) {
		store := memory.NewRateLimitStore()
		svc, _ := newTestService(t, store)

		for i := 0; i < 25; i++ {
			_, err := svc.Check(ctx, "u2")
			require.NoError(t, err)
		}

		entry, err := store.Get(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, 20, entry.Count)
	})

	t.Run("callers are independent", func(t *testing.T) {
		svc, _ := newTestService(t, memory.NewRateLimitStore())

		for i := 0; i < 20; i++ {
			_, err := svc.Check(ctx, "busy")
			require.NoError(t, err)
		}

		res, err := svc.Check(ctx, "idle")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 19, res.Remaining)
	})

	t.Run("window resets after expiry", func(t *testing.T) {
		svc, clock := newTestService(t, memory.NewRateLimitStore())

		for i := 0; i < 21; i++ {
			_, err := svc.Check(ctx, "u3")
			require.NoError(t, err)
		}

		// exactly one window later is still the same window
		clock.Advance(time.Hour)
		res, err := svc.Check(ctx, "u3")
		require.NoError(t, err)
		assert.False(t, res.Allowed)

		clock.Advance(time.Millisecond)
		res, err = svc.Check(ctx, "u3")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 19, res.Remaining)
		assert.Equal(t, clock.Now().Add(time.Hour), res.ResetAt)
	})

	t.Run("concurrent checks never exceed capacity", func(t *testing.T) {
		svc, _ := newTestService(t, memory.NewRateLimitStore())

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := svc.Check(ctx, "shared")
				if !assert.NoError(t, err) {
					return
				}
				if res.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 20, allowed)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		store := new(MockStore)
		store.On("Update", mock.Anything, "u4", mock.Anything).
			Return(nil, errors.New("connection refused"))
		svc, _ := newTestService(t, store)

		res, err := svc.Check(ctx, "u4")

		assert.Nil(t, res)
		require.Error(t, err)
		assert.True(t, services.IsInternalError(err))
		store.AssertExpectations(t)
	})

	t.Run("records decisions", func(t *testing.T) {
		metrics := observability.NewMetrics()
		svc := NewRateLimitService(memory.NewRateLimitStore(), 1, time.Hour, metrics, zap.NewNop())

		_, err := svc.Check(ctx, "u5")
		require.NoError(t, err)
		_, err = svc.Check(ctx, "u5")
		require.NoError(t, err)

		expected := `
# HELP llmproxy_ratelimit_decisions_total Rate limit decisions by result.
# TYPE llmproxy_ratelimit_decisions_total counter
llmproxy_ratelimit_decisions_total{decision="allowed"} 1
llmproxy_ratelimit_decisions_total{decision="denied"} 1
`
		assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(),
			strings.NewReader(expected), "llmproxy_ratelimit_decisions_total"))
	})
}

func TestDecide(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		current       *models.RateLimitEntry
		wantWrite     bool
		wantCount     int
		wantAllowed   bool
		wantRemaining int
	}{
		{"no entry", nil, true, 1, true, 19},
		{"mid window", &models.RateLimitEntry{Count: 5, WindowStart: now.Add(-time.Minute)}, true, 6, true, 14},
		{"last slot", &models.RateLimitEntry{Count: 19, WindowStart: now.Add(-time.Minute)}, true, 20, true, 0},
		{"at capacity", &models.RateLimitEntry{Count: 20, WindowStart: now.Add(-time.Minute)}, false, 0, false, 0},
		{"expired at capacity", &models.RateLimitEntry{Count: 20, WindowStart: now.Add(-time.Hour - time.Second)}, true, 1, true, 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, res := decide(tt.current, "caller", now, time.Hour, 20)

			assert.Equal(t, tt.wantAllowed, res.Allowed)
			assert.Equal(t, tt.wantRemaining, res.Remaining)
			if !tt.wantWrite {
				assert.Nil(t, next)
				return
			}
			require.NotNil(t, next)
			assert.Equal(t, tt.wantCount, next.Count)
			assert.Equal(t, "caller", next.CallerID)
		})
	}
}

func TestRateLimitService_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRateLimitStore()
	svc, clock := newTestService(t, store)

	_, err := svc.Check(ctx, "old")
	require.NoError(t, err)
	clock.Advance(90 * time.Minute)
	_, err = svc.Check(ctx, "fresh")
	require.NoError(t, err)

	removed, err := svc.CleanupExpired(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 1, store.Len())
}

func TestRateLimitService_CleanupExpired_StoreError(t *testing.T) {
	store := new(MockStore)
	store.On("Sweep", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(int64(0), errors.New("timeout"))
	svc, _ := newTestService(t, store)

	_, err := svc.CleanupExpired(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to cleanup expired entries")
}

func TestRateLimitService_StartCleanupWorker(t *testing.T) {
	store := new(MockStore)
	swept := make(chan struct{}, 1)
	store.On("Sweep", mock.Anything, mock.AnythingOfType("time.Time")).
		Run(func(mock.Arguments) {
			select {
			case swept <- struct{}{}:
			default:
			}
		}).
		Return(int64(0), nil)
	svc, _ := newTestService(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartCleanupWorker(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup worker never swept")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}

func TestRateLimitService_Ready(t *testing.T) {
	store := new(MockStore)
	store.On("Ping", mock.Anything).Return(errors.New("down")).Once()
	store.On("Ping", mock.Anything).Return(nil).Once()
	svc, _ := newTestService(t, store)

	assert.Error(t, svc.Ready(context.Background()))
	assert.NoError(t, svc.Ready(context.Background()))
}
