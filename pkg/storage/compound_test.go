package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/trace"
	"github.com/cuemby/burrow/pkg/types"
)

// halfAndHalf stripes every file into two equal chunks, one per child
func halfAndHalf(file types.File, children []*SimpleStorage, _, _ map[string][]types.FileLocation) []types.FileLocation {
	half := file.Size / 2
	return []types.FileLocation{
		{Service: children[0].Name(), Mount: "/", Path: "/", File: types.File{ID: file.ID + ".part0", Size: half}},
		{Service: children[1].Name(), Mount: "/", Path: "/", File: types.File{ID: file.ID + ".part1", Size: file.Size - half}},
	}
}

func compoundSetup(t *testing.T, k *kernel.Kernel, strategy SelectionStrategy, props service.Properties) (*Compound, *SimpleStorage, *SimpleStorage) {
	t.Helper()
	s1 := startStorage(t, k, "s1", "Store1", nil)
	s2 := startStorage(t, k, "s2", "Store2", nil)
	c, err := NewCompound(k, "compound", "Client", []*SimpleStorage{s1, s2}, strategy, props, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start(false, true))
	return c, s1, s2
}

func TestCompoundRequiresStrategyOrInternalStriping(t *testing.T) {
	k := testKernel(t)
	s1 := startStorage(t, k, "s1", "Store1", nil)
	_, err := NewCompound(k, "compound", "Client", []*SimpleStorage{s1}, nil, nil, nil)
	var ia *failures.InvalidArgument
	assert.ErrorAs(t, err, &ia)
}

func TestCompoundStripedWriteReadDelete(t *testing.T) {
	k := testKernel(t)
	c, s1, s2 := compoundSetup(t, k, halfAndHalf, nil)
	f := types.File{ID: "striped.bin", Size: 100000}
	target := types.FileLocation{Service: "compound", File: f}

	runClient(t, k, func(ctx *kernel.Context) error {
		if err := Write(ctx, target); err != nil {
			return err
		}
		assert.True(t, s1.Holds(loc("s1", "striped.bin.part0", 50000)))
		assert.True(t, s2.Holds(loc("s2", "striped.bin.part1", 50000)))
		assert.Len(t, c.Mapping(f.ID), 2)

		present, err := Lookup(ctx, target)
		if err != nil {
			return err
		}
		assert.True(t, present)

		if err := Read(ctx, target); err != nil {
			return err
		}
		if err := Delete(ctx, target); err != nil {
			return err
		}
		present, err = Lookup(ctx, target)
		if err != nil {
			return err
		}
		assert.False(t, present)
		return nil
	})
	assert.False(t, s1.Holds(loc("s1", "striped.bin.part0", 50000)))
	assert.False(t, s2.Holds(loc("s2", "striped.bin.part1", 50000)))
	assert.Nil(t, c.Mapping(f.ID))
}

func TestCompoundInternalStriping(t *testing.T) {
	k := testKernel(t)
	c, s1, s2 := compoundSetup(t, k, nil, service.Properties{
		PropInternalStriping:       "true",
		PropMaxAllocationChunkSize: "30000",
	})
	f := types.File{ID: "auto.bin", Size: 100000}
	target := types.FileLocation{Service: "compound", File: f}
	runClient(t, k, func(ctx *kernel.Context) error {
		return Write(ctx, target)
	})
	// 100000 bytes in 30000-byte stripes: 4 chunks round-robin
	chunks := c.Mapping(f.ID)
	require.Len(t, chunks, 4)
	assert.True(t, s1.Holds(loc("s1", "auto.bin.part0", 30000)))
	assert.True(t, s2.Holds(loc("s2", "auto.bin.part1", 30000)))
	assert.True(t, s1.Holds(loc("s1", "auto.bin.part2", 30000)))
	assert.True(t, s2.Holds(loc("s2", "auto.bin.part3", 10000)))
}

func TestCompoundWriteFailureRollsBackMapping(t *testing.T) {
	// One child dies mid-write: the write fails with a network cause, the
	// mapping is rolled back, and a subsequent lookup says not present
	k := testKernel(t)
	c, _, _ := compoundSetup(t, k, halfAndHalf, nil)
	f := types.File{ID: "doomed.bin", Size: 1000000}
	target := types.FileLocation{Service: "compound", File: f}

	_, err := k.Spawn(kernel.SpawnOptions{Name: "breaker", Host: "Client"}, func(ctx *kernel.Context) int {
		require.NoError(t, ctx.Sleep(0.2)) // mid-transfer of the stripes
		require.NoError(t, k.TurnOffHost("Store2"))
		return 0
	})
	require.NoError(t, err)

	runClient(t, k, func(ctx *kernel.Context) error {
		err := Write(ctx, target)
		require.Error(t, err)
		var ne *failures.NetworkError
		assert.ErrorAs(t, err, &ne)

		present, lookupErr := Lookup(ctx, target)
		if lookupErr != nil {
			return lookupErr
		}
		assert.False(t, present)
		return nil
	})
	assert.Nil(t, c.Mapping(f.ID))
}

func TestCompoundTraceIsMonotonic(t *testing.T) {
	k := testKernel(t)
	c, _, _ := compoundSetup(t, k, halfAndHalf, nil)
	f := types.File{ID: "traced.bin", Size: 50000}
	target := types.FileLocation{Service: "compound", File: f}
	runClient(t, k, func(ctx *kernel.Context) error {
		if err := Write(ctx, target); err != nil {
			return err
		}
		if err := Read(ctx, target); err != nil {
			return err
		}
		return Delete(ctx, target)
	})
	entries := c.Trace().Entries()
	require.NotEmpty(t, entries)
	var actions []trace.IOAction
	last := -1.0
	for _, e := range entries {
		assert.GreaterOrEqual(t, e.TS, last)
		last = e.TS
		actions = append(actions, e.Action)
		require.Len(t, e.DiskUsage, 2)
	}
	assert.Equal(t, []trace.IOAction{
		trace.ActionWriteStart, trace.ActionWriteEnd,
		trace.ActionReadStart, trace.ActionReadEnd,
		trace.ActionDeleteStart, trace.ActionDeleteEnd,
	}, actions)
}
