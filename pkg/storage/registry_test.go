package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/types"
)

func TestRegistryAddThenLookup(t *testing.T) {
	k := testKernel(t)
	r, err := NewFileRegistry(k, "registry", "Store1", nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Start(false, true))

	f := types.File{ID: "data.bin", Size: 1000}
	locA := loc("st1", "data.bin", 1000)
	locB := loc("st2", "data.bin", 1000)
	runClient(t, k, func(ctx *kernel.Context) error {
		if err := RegistryAdd(ctx, "registry", locA); err != nil {
			return err
		}
		if err := RegistryAdd(ctx, "registry", locB); err != nil {
			return err
		}
		// Adding the same entry twice is idempotent
		if err := RegistryAdd(ctx, "registry", locA); err != nil {
			return err
		}
		locs, err := RegistryLookup(ctx, "registry", f)
		if err != nil {
			return err
		}
		assert.ElementsMatch(t, []types.FileLocation{locA, locB}, locs)
		return nil
	})
}

func TestRegistryRemoveEntry(t *testing.T) {
	k := testKernel(t)
	r, err := NewFileRegistry(k, "registry", "Store1", nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Start(false, true))

	f := types.File{ID: "data.bin", Size: 1000}
	locA := loc("st1", "data.bin", 1000)
	runClient(t, k, func(ctx *kernel.Context) error {
		if err := RegistryAdd(ctx, "registry", locA); err != nil {
			return err
		}
		if err := RegistryRemove(ctx, "registry", locA); err != nil {
			return err
		}
		locs, err := RegistryLookup(ctx, "registry", f)
		if err != nil {
			return err
		}
		assert.Empty(t, locs)
		return nil
	})
}

func TestRegistryLookupComputeCost(t *testing.T) {
	k := testKernel(t)
	r, err := NewFileRegistry(k, "registry", "Store1", service.Properties{PropLookupComputeCost: "1000"}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Start(false, true))

	var elapsed float64
	runClient(t, k, func(ctx *kernel.Context) error {
		start := ctx.Now()
		_, err := RegistryLookup(ctx, "registry", types.File{ID: "x", Size: 1})
		elapsed = ctx.Now() - start
		return err
	})
	// 1000 flops at 1000 flops/s on Store1, plus message time
	assert.Greater(t, elapsed, 1.0)
}
