package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/types"
)

// proxySetup builds cache on Store1, remote on Store2, proxy on Store1
func proxySetup(t *testing.T, k *kernel.Kernel) (*Proxy, *SimpleStorage, *SimpleStorage) {
	t.Helper()
	cache := startStorage(t, k, "cache", "Store1", nil)
	remote := startStorage(t, k, "remote", "Store2", nil)
	p, err := NewProxy(k, "proxy", "Store1", cache, &types.FileLocation{Service: "remote", Mount: "/", Path: "/"}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(false, true))
	return p, cache, remote
}

func TestCachelessProxyRejectedAtConstruction(t *testing.T) {
	k := testKernel(t)
	_, err := NewProxy(k, "proxy", "Store1", nil, nil, nil, nil)
	var ia *failures.InvalidArgument
	assert.ErrorAs(t, err, &ia)
}

func TestProxyReadMissThenHit(t *testing.T) {
	k := testKernel(t)
	_, cache, remote := proxySetup(t, k)
	f := types.File{ID: "big.bin", Size: 1048576}
	require.NoError(t, remote.Stage(types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: f}))

	target := types.ProxyLocation{
		Proxy:  "proxy",
		Target: types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: f},
	}
	var missTime, hitTime float64
	runClient(t, k, func(ctx *kernel.Context) error {
		start := ctx.Now()
		if err := Read(ctx, target); err != nil {
			return err
		}
		missTime = ctx.Now() - start

		start = ctx.Now()
		if err := Read(ctx, target); err != nil {
			return err
		}
		hitTime = ctx.Now() - start
		return nil
	})
	// The miss pays remote->cache plus cache->client; the hit only
	// cache->client. 1 MiB at 1 MB/s is ~1.05 s per hop.
	assert.True(t, cache.Holds(types.FileLocation{Service: "cache", Mount: "/", Path: "/", File: f}))
	assert.Greater(t, missTime, 2.0)
	assert.Less(t, hitTime, 1.5)
	assert.Greater(t, hitTime, 1.0)
}

func TestProxyLookupMissForwardsToRemote(t *testing.T) {
	k := testKernel(t)
	_, _, remote := proxySetup(t, k)
	f := types.File{ID: "data.bin", Size: 1000}
	require.NoError(t, remote.Stage(types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: f}))

	target := types.ProxyLocation{
		Proxy:  "proxy",
		Target: types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: f},
	}
	runClient(t, k, func(ctx *kernel.Context) error {
		present, err := Lookup(ctx, target)
		if err != nil {
			return err
		}
		assert.True(t, present)

		absent, err := Lookup(ctx, types.ProxyLocation{
			Proxy:  "proxy",
			Target: types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: types.File{ID: "ghost", Size: 1}},
		})
		if err != nil {
			return err
		}
		assert.False(t, absent)
		return nil
	})
}

func TestProxyWriteLandsInCacheThenRemote(t *testing.T) {
	k := testKernel(t)
	_, cache, remote := proxySetup(t, k)
	f := types.File{ID: "out.bin", Size: 20000}
	target := types.ProxyLocation{
		Proxy:  "proxy",
		Target: types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: f},
	}
	var ackAt float64
	runClient(t, k, func(ctx *kernel.Context) error {
		if err := Write(ctx, target); err != nil {
			return err
		}
		ackAt = ctx.Now()
		// Cache is durable at acknowledgement time
		assert.True(t, cache.Holds(types.FileLocation{Service: "cache", Mount: "/", Path: "/", File: f}))
		return nil
	})
	// After quiescence the asynchronous write-back has landed
	assert.True(t, remote.Holds(types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: f}))
	assert.Greater(t, k.Now(), ackAt)
}

func TestProxyDeleteSucceedsIfEitherSideHolds(t *testing.T) {
	k := testKernel(t)
	_, _, remote := proxySetup(t, k)
	f := types.File{ID: "data.bin", Size: 1000}
	require.NoError(t, remote.Stage(types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: f}))

	target := types.ProxyLocation{
		Proxy:  "proxy",
		Target: types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: f},
	}
	runClient(t, k, func(ctx *kernel.Context) error {
		if err := Delete(ctx, target); err != nil {
			return err
		}
		// Second delete: neither side holds the file now
		err := Delete(ctx, target)
		var fnf *failures.FileNotFound
		assert.ErrorAs(t, err, &fnf)
		return nil
	})
	assert.False(t, remote.Holds(types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: f}))
}

func TestProxyRejectsCopyRequests(t *testing.T) {
	k := testKernel(t)
	proxySetup(t, k)
	f := types.File{ID: "data.bin", Size: 1000}
	runClient(t, k, func(ctx *kernel.Context) error {
		err := Copy(ctx,
			loc("st1", "data.bin", 1000),
			types.ProxyLocation{Proxy: "proxy", Target: types.FileLocation{Service: "remote", Mount: "/", Path: "/", File: f}})
		var na *failures.NotAllowed
		assert.ErrorAs(t, err, &na)
		return nil
	})
}
