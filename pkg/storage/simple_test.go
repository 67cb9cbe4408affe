package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/types"
)

func testKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	k := kernel.New(kernel.Config{Seed: 1, HostShutdownSimulation: true, LinkShutdownSimulation: true})
	k.AddHost("Client", 4, 1000, 16e9)
	k.AddHost("Store1", 4, 1000, 16e9)
	k.AddHost("Store2", 4, 1000, 16e9)
	require.NoError(t, k.AddDisk("Store1", "/", 1e9, 1e8, 1e8))
	require.NoError(t, k.AddDisk("Store2", "/", 1e9, 1e8, 1e8))
	k.AddLink("l1", 1e6, 0.001)
	k.AddLink("l2", 1e6, 0.001)
	k.AddLink("l3", 1e6, 0.001)
	require.NoError(t, k.AddRoute("Client", "Store1", []string{"l1"}))
	require.NoError(t, k.AddRoute("Client", "Store2", []string{"l2"}))
	require.NoError(t, k.AddRoute("Store1", "Store2", []string{"l3"}))
	return k
}

func startStorage(t *testing.T, k *kernel.Kernel, name, host string, props service.Properties) *SimpleStorage {
	t.Helper()
	s, err := NewSimpleStorage(k, name, host, []string{"/"}, props, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(false, true))
	return s
}

// runClient runs body as a client actor and fails the test on body errors
func runClient(t *testing.T, k *kernel.Kernel, body func(ctx *kernel.Context) error) {
	t.Helper()
	var bodyErr error
	_, err := k.Spawn(kernel.SpawnOptions{Name: "test-client", Host: "Client"}, func(ctx *kernel.Context) int {
		bodyErr = body(ctx)
		return 0
	})
	require.NoError(t, err)
	k.Run()
	require.NoError(t, bodyErr)
}

func loc(svc, fileID string, size int64) types.FileLocation {
	return types.FileLocation{Service: svc, Mount: "/", Path: "/", File: types.File{ID: fileID, Size: size}}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	k := testKernel(t)
	s := startStorage(t, k, "st1", "Store1", nil)
	target := loc("st1", "data.bin", 10000)
	runClient(t, k, func(ctx *kernel.Context) error {
		if err := Write(ctx, target); err != nil {
			return err
		}
		present, err := Lookup(ctx, target)
		if err != nil {
			return err
		}
		assert.True(t, present)
		return Read(ctx, target)
	})
	assert.True(t, s.Holds(target))
	assert.Equal(t, int64(1e9-10000), s.FreeAt("/"))
}

func TestWriteDeleteLookupNotPresent(t *testing.T) {
	k := testKernel(t)
	s := startStorage(t, k, "st1", "Store1", nil)
	target := loc("st1", "data.bin", 10000)
	runClient(t, k, func(ctx *kernel.Context) error {
		if err := Write(ctx, target); err != nil {
			return err
		}
		if err := Delete(ctx, target); err != nil {
			return err
		}
		present, err := Lookup(ctx, target)
		if err != nil {
			return err
		}
		assert.False(t, present)
		return nil
	})
	assert.False(t, s.Holds(target))
	assert.Equal(t, int64(1e9), s.FreeAt("/"))
}

func TestReadMissingFileFails(t *testing.T) {
	k := testKernel(t)
	startStorage(t, k, "st1", "Store1", nil)
	runClient(t, k, func(ctx *kernel.Context) error {
		err := Read(ctx, loc("st1", "ghost.bin", 500))
		var fnf *failures.FileNotFound
		assert.ErrorAs(t, err, &fnf)
		return nil
	})
}

func TestDeleteMissingFileFails(t *testing.T) {
	k := testKernel(t)
	startStorage(t, k, "st1", "Store1", nil)
	runClient(t, k, func(ctx *kernel.Context) error {
		err := Delete(ctx, loc("st1", "ghost.bin", 500))
		var fnf *failures.FileNotFound
		assert.ErrorAs(t, err, &fnf)
		return nil
	})
}

func TestWriteBeyondCapacityFails(t *testing.T) {
	k := testKernel(t)
	s := startStorage(t, k, "st1", "Store1", nil)
	runClient(t, k, func(ctx *kernel.Context) error {
		err := Write(ctx, loc("st1", "huge.bin", 2e9))
		var nes *failures.NotEnoughStorageSpace
		assert.ErrorAs(t, err, &nes)
		return nil
	})
	assert.Equal(t, int64(1e9), s.FreeAt("/"))
}

func TestFreeSpaceQuery(t *testing.T) {
	k := testKernel(t)
	startStorage(t, k, "st1", "Store1", nil)
	runClient(t, k, func(ctx *kernel.Context) error {
		free, err := FreeSpace(ctx, "st1")
		if err != nil {
			return err
		}
		assert.Equal(t, map[string]int64{"/": int64(1e9)}, free)
		return nil
	})
}

func TestCopyBetweenStorageServices(t *testing.T) {
	k := testKernel(t)
	s1 := startStorage(t, k, "st1", "Store1", nil)
	s2 := startStorage(t, k, "st2", "Store2", nil)
	src := loc("st1", "data.bin", 10000)
	dst := loc("st2", "data.bin", 10000)
	require.NoError(t, s1.Stage(src))
	runClient(t, k, func(ctx *kernel.Context) error {
		return Copy(ctx, src, dst)
	})
	assert.True(t, s1.Holds(src))
	assert.True(t, s2.Holds(dst))
}

func TestCopyMissingSourceFails(t *testing.T) {
	k := testKernel(t)
	startStorage(t, k, "st1", "Store1", nil)
	s2 := startStorage(t, k, "st2", "Store2", nil)
	dst := loc("st2", "data.bin", 10000)
	runClient(t, k, func(ctx *kernel.Context) error {
		err := Copy(ctx, loc("st1", "data.bin", 10000), dst)
		var fnf *failures.FileNotFound
		assert.ErrorAs(t, err, &fnf)
		return nil
	})
	assert.False(t, s2.Holds(dst))
	assert.Equal(t, int64(1e9), s2.FreeAt("/"))
}

func TestChunkedTransferMatchesFluidTotal(t *testing.T) {
	// Chunking changes the message count, not the delivered byte total
	k := testKernel(t)
	startStorage(t, k, "fluid", "Store1", service.Properties{PropBufferSize: "0"})
	startStorage(t, k, "chunked", "Store2", service.Properties{PropBufferSize: "1000"})
	fluidLoc := loc("fluid", "a.bin", 10000)
	chunkedLoc := loc("chunked", "a.bin", 10000)
	runClient(t, k, func(ctx *kernel.Context) error {
		if err := Write(ctx, fluidLoc); err != nil {
			return err
		}
		if err := Write(ctx, chunkedLoc); err != nil {
			return err
		}
		if err := Read(ctx, fluidLoc); err != nil {
			return err
		}
		return Read(ctx, chunkedLoc)
	})
}

func TestOverwriteDoesNotLeakSpace(t *testing.T) {
	k := testKernel(t)
	s := startStorage(t, k, "st1", "Store1", nil)
	target := loc("st1", "data.bin", 10000)
	runClient(t, k, func(ctx *kernel.Context) error {
		if err := Write(ctx, target); err != nil {
			return err
		}
		return Write(ctx, target)
	})
	assert.Equal(t, int64(1e9-10000), s.FreeAt("/"))
}

func TestStagePlacesFileWithoutSimulatedTime(t *testing.T) {
	k := testKernel(t)
	s := startStorage(t, k, "st1", "Store1", nil)
	target := loc("st1", "staged.bin", 5000)
	require.NoError(t, s.Stage(target))
	assert.True(t, s.Holds(target))
	assert.Equal(t, int64(1e9-5000), s.FreeAt("/"))

	// Staging over capacity is rejected
	err := s.Stage(loc("st1", "big.bin", 2e9))
	var nes *failures.NotEnoughStorageSpace
	assert.ErrorAs(t, err, &nes)
}
