package proxypool_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/model"
	"github.com/slok/cartpool/internal/proxypool"
	"github.com/slok/cartpool/internal/storage/memory"
	"github.com/slok/cartpool/internal/storage/storagemock"
)

func newRepo(t *testing.T, proxies ...model.Proxy) *memory.Repository {
	t.Helper()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	for _, p := range proxies {
		require.NoError(t, repo.CreateProxy(context.Background(), p))
	}
	return repo
}

func testProxy(id string, port int, used bool, createdAt time.Time) model.Proxy {
	return model.Proxy{ID: id, Host: "10.0.0.1", Port: port, Username: "u", Password: "p", HasBeenUsed: used, CreatedAt: createdAt}
}

func withScheme(p model.Proxy, scheme model.ProxyScheme) model.Proxy {
	p.Scheme = scheme
	return p
}

func checkerFailing(ids ...string) proxypool.Checker {
	failing := map[string]bool{}
	for _, id := range ids {
		failing[id] = true
	}
	return proxypool.CheckerFunc(func(ctx context.Context, p model.Proxy) (time.Duration, error) {
		if failing[p.ID] {
			return 0, errors.New("dead proxy")
		}
		return time.Millisecond, nil
	})
}

func TestPoolAcquire(t *testing.T) {
	t0 := time.Now()

	tests := map[string]struct {
		proxies       []model.Proxy
		checker       proxypool.Checker
		includeUnused bool
		maxCandidates int
		expProxyID    string
		expUsedIDs    []string
	}{
		"Without candidates there should be no lease.": {
			checker: checkerFailing(),
		},

		"Only previously used proxies should be candidates by default.": {
			proxies: []model.Proxy{
				testProxy("p1", 1, false, t0),
				testProxy("p2", 2, true, t0.Add(time.Second)),
			},
			checker:    checkerFailing(),
			expProxyID: "p2",
			expUsedIDs: []string{"p2"},
		},

		"Including unused proxies should pick the first passing candidate and mark it used.": {
			proxies: []model.Proxy{
				testProxy("p1", 1, false, t0),
				testProxy("p2", 2, true, t0.Add(time.Second)),
			},
			checker:       checkerFailing(),
			includeUnused: true,
			expProxyID:    "p1",
			expUsedIDs:    []string{"p1", "p2"},
		},

		"Failing candidates should be skipped until one passes.": {
			proxies: []model.Proxy{
				testProxy("p1", 1, true, t0),
				testProxy("p2", 2, true, t0.Add(time.Second)),
				testProxy("p3", 3, true, t0.Add(2*time.Second)),
			},
			checker:    checkerFailing("p1", "p2"),
			expProxyID: "p3",
			expUsedIDs: []string{"p1", "p2", "p3"},
		},

		"If every candidate fails there should be no lease.": {
			proxies: []model.Proxy{
				testProxy("p1", 1, true, t0),
				testProxy("p2", 2, true, t0.Add(time.Second)),
			},
			checker:    checkerFailing("p1", "p2"),
			expUsedIDs: []string{"p1", "p2"},
		},

		"Authenticated SOCKS5 proxies should be skipped without marking them used.": {
			proxies: []model.Proxy{
				withScheme(testProxy("p1", 1, false, t0), model.ProxySchemeSOCKS5),
				testProxy("p2", 2, false, t0.Add(time.Second)),
			},
			checker:       checkerFailing(),
			includeUnused: true,
			maxCandidates: 1,
			expProxyID:    "p2",
			expUsedIDs:    []string{"p2"},
		},

		"SOCKS5 proxies without credentials should be usable.": {
			proxies: []model.Proxy{
				withScheme(model.Proxy{ID: "p1", Host: "10.0.0.1", Port: 1080, HasBeenUsed: true, CreatedAt: t0}, model.ProxySchemeSOCKS5),
			},
			checker:    checkerFailing(),
			expProxyID: "p1",
			expUsedIDs: []string{"p1"},
		},

		"Max candidates should limit the checked proxies.": {
			proxies: []model.Proxy{
				testProxy("p1", 1, false, t0),
				testProxy("p2", 2, false, t0.Add(time.Second)),
			},
			checker:       checkerFailing("p1"),
			includeUnused: true,
			maxCandidates: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()

			repo := newRepo(t, test.proxies...)
			pool, err := proxypool.NewPool(proxypool.PoolConfig{
				Repository:    repo,
				Checker:       test.checker,
				IncludeUnused: test.includeUnused,
				MaxCandidates: test.maxCandidates,
				Logger:        log.Noop,
			})
			require.NoError(err)

			lease, err := pool.Acquire(ctx)
			require.NoError(err)

			if test.expProxyID == "" {
				assert.Nil(lease)
				assert.Empty(pool.Claimed())
			} else {
				require.NotNil(lease)
				assert.Equal(test.expProxyID, lease.Proxy().ID)
				assert.True(lease.Proxy().HasBeenUsed)
				assert.Equal([]string{test.expProxyID}, pool.Claimed())
			}

			used := true
			gotUsed, err := repo.ListProxies(ctx, model.ProxyFilter{HasBeenUsed: &used})
			require.NoError(err)
			var gotUsedIDs []string
			for _, p := range gotUsed {
				gotUsedIDs = append(gotUsedIDs, p.ID)
			}
			assert.Equal(test.expUsedIDs, gotUsedIDs)
		})
	}
}

func TestPoolAcquireRepositoryError(t *testing.T) {
	repo := &storagemock.MockRepository{}
	repo.On("ListProxies", mock.Anything, mock.Anything).Once().Return(nil, errors.New("db down"))

	pool, err := proxypool.NewPool(proxypool.PoolConfig{Repository: repo, Checker: checkerFailing()})
	require.NoError(t, err)

	lease, err := pool.Acquire(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, lease)
	repo.AssertExpectations(t)
}

func TestPoolAcquireMarkUsedError(t *testing.T) {
	repo := &storagemock.MockRepository{}
	repo.On("ListProxies", mock.Anything, mock.Anything).Once().Return([]model.Proxy{
		testProxy("p1", 1, true, time.Now()),
		testProxy("p2", 2, true, time.Now()),
	}, nil)
	repo.On("MarkProxyUsed", mock.Anything, "p1").Once().Return(errors.New("db down"))
	repo.On("MarkProxyUsed", mock.Anything, "p2").Once().Return(nil)

	pool, err := proxypool.NewPool(proxypool.PoolConfig{Repository: repo, Checker: checkerFailing()})
	require.NoError(t, err)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "p2", lease.Proxy().ID)
	assert.Equal(t, []string{"p2"}, pool.Claimed())
	repo.AssertExpectations(t)
}

func TestPoolAcquireContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	checker := proxypool.CheckerFunc(func(ctx context.Context, p model.Proxy) (time.Duration, error) {
		cancel()
		return 0, ctx.Err()
	})

	pool, err := proxypool.NewPool(proxypool.PoolConfig{
		Repository: newRepo(t, testProxy("p1", 1, true, time.Now())),
		Checker:    checker,
	})
	require.NoError(t, err)

	lease, err := pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, lease)
	assert.Empty(t, pool.Claimed())
}

func TestPoolAcquireCheckTimeout(t *testing.T) {
	var calls atomic.Int32
	checker := proxypool.CheckerFunc(func(ctx context.Context, p model.Proxy) (time.Duration, error) {
		calls.Add(1)
		if p.ID == "slow" {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return time.Millisecond, nil
	})

	t0 := time.Now()
	pool, err := proxypool.NewPool(proxypool.PoolConfig{
		Repository:   newRepo(t, testProxy("slow", 1, true, t0), testProxy("fast", 2, true, t0.Add(time.Second))),
		Checker:      checker,
		CheckTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "fast", lease.Proxy().ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPoolLeaseRelease(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	pool, err := proxypool.NewPool(proxypool.PoolConfig{
		Repository: newRepo(t, testProxy("p1", 1, true, time.Now())),
		Checker:    checkerFailing(),
	})
	require.NoError(err)

	lease1, err := pool.Acquire(ctx)
	require.NoError(err)
	require.NotNil(lease1)

	// Claimed proxies are not handed twice.
	lease2, err := pool.Acquire(ctx)
	require.NoError(err)
	assert.Nil(lease2)

	lease1.Release()
	lease1.Release()
	assert.Empty(pool.Claimed())

	lease3, err := pool.Acquire(ctx)
	require.NoError(err)
	require.NotNil(lease3)
	assert.Equal("p1", lease3.Proxy().ID)
}

func TestPoolConcurrentAcquireUniqueness(t *testing.T) {
	const (
		proxies = 5
		callers = 12
	)

	t0 := time.Now()
	var ps []model.Proxy
	for i := range proxies {
		ps = append(ps, testProxy(fmt.Sprintf("p%d", i), 1000+i, true, t0.Add(time.Duration(i)*time.Second)))
	}

	// Slow checks widen the race window between callers.
	checker := proxypool.CheckerFunc(func(ctx context.Context, p model.Proxy) (time.Duration, error) {
		time.Sleep(5 * time.Millisecond)
		return 5 * time.Millisecond, nil
	})

	pool, err := proxypool.NewPool(proxypool.PoolConfig{Repository: newRepo(t, ps...), Checker: checker})
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		leased = map[string]int{}
		nils   int
		wg     sync.WaitGroup
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := pool.Acquire(context.Background())
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			if lease == nil {
				nils++
				return
			}
			leased[lease.Proxy().ID]++
		}()
	}
	wg.Wait()

	assert.Len(t, leased, proxies)
	for id, n := range leased {
		assert.Equal(t, 1, n, "proxy %s leased more than once", id)
	}
	assert.Equal(t, callers-proxies, nils)
}

func TestNewPoolInvalidConfig(t *testing.T) {
	tests := map[string]struct {
		cfg proxypool.PoolConfig
	}{
		"Missing repository should fail.": {
			cfg: proxypool.PoolConfig{Checker: checkerFailing()},
		},
		"Missing checker should fail.": {
			cfg: proxypool.PoolConfig{Repository: &storagemock.MockRepository{}},
		},
		"Negative max candidates should fail.": {
			cfg: proxypool.PoolConfig{Repository: &storagemock.MockRepository{}, Checker: checkerFailing(), MaxCandidates: -1},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := proxypool.NewPool(test.cfg)
			assert.Error(t, err)
		})
	}
}
