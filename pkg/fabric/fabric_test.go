package fabric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/kernel"
)

func testKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	k := kernel.New(kernel.Config{Seed: 7, HostShutdownSimulation: true, LinkShutdownSimulation: true})
	k.AddHost("Stable", 2, 1000, 8e9)
	k.AddHost("Victim", 2, 1000, 8e9)
	k.AddLink("wire", 1e6, 0.001)
	require.NoError(t, k.AddRoute("Stable", "Victim", []string{"wire"}))
	return k
}

func TestSwitcherTogglesHost(t *testing.T) {
	k := testKernel(t)
	_, err := StartSwitcher(k, "Stable", 10, 20, ResourceHost, "Victim")
	require.NoError(t, err)

	var during, after bool
	_, err = k.Spawn(kernel.SpawnOptions{Name: "probe", Host: "Stable"}, func(ctx *kernel.Context) int {
		require.NoError(t, ctx.Sleep(15))
		during = k.IsHostOn("Victim")
		require.NoError(t, ctx.Sleep(10))
		after = k.IsHostOn("Victim")
		return 0
	})
	require.NoError(t, err)
	k.Run()
	assert.False(t, during)
	assert.True(t, after)
}

func TestSwitcherTogglesLink(t *testing.T) {
	k := testKernel(t)
	_, err := StartSwitcher(k, "Stable", 5, 8, ResourceLink, "wire")
	require.NoError(t, err)

	var during bool
	_, err = k.Spawn(kernel.SpawnOptions{Name: "probe", Host: "Stable"}, func(ctx *kernel.Context) int {
		require.NoError(t, ctx.Sleep(6))
		during = k.IsLinkOn("wire")
		return 0
	})
	require.NoError(t, err)
	k.Run()
	assert.False(t, during)
	assert.True(t, k.IsLinkOn("wire"))
}

func TestRandomRepeatSwitcherRunsItsRepeats(t *testing.T) {
	k := testKernel(t)
	k.WatchHost("Victim", "transitions")
	_, err := StartRandomRepeatSwitcher(k, "Stable", 1, 5, 1, 5, ResourceHost, "Victim", 3)
	require.NoError(t, err)

	transitions := 0
	_, err = k.Spawn(kernel.SpawnOptions{Name: "observer", Host: "Stable"}, func(ctx *kernel.Context) int {
		for {
			if _, err := ctx.GetWithTimeout("transitions", 100); err != nil {
				return 0
			}
			transitions++
		}
	})
	require.NoError(t, err)
	k.Run()
	// 3 repeats, each an off and an on transition
	assert.Equal(t, 6, transitions)
	assert.True(t, k.IsHostOn("Victim"))
}
