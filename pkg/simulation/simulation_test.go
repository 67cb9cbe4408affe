package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/compute"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/fabric"
	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// failureSim builds a platform with one stable host and two failure-prone
// hosts, storage on the stable host
func failureSim(t *testing.T) (*Simulation, *storage.SimpleStorage) {
	t.Helper()
	sim := New(Config{Seed: 1, HostShutdownSimulation: true, LinkShutdownSimulation: true})
	k := sim.Kernel()
	k.AddHost("StableHost", 4, 1000, 16e9)
	k.AddHost("FailedHost1", 4, 1000, 16e9)
	k.AddHost("FailedHost2", 4, 1000, 16e9)
	require.NoError(t, k.AddDisk("StableHost", "/", 1e9, 1e8, 1e8))
	links := [][2]string{
		{"StableHost", "FailedHost1"},
		{"StableHost", "FailedHost2"},
		{"FailedHost1", "FailedHost2"},
	}
	for i, pair := range links {
		name := string(rune('a' + i))
		k.AddLink(name, 1e6, 0.001)
		require.NoError(t, k.AddRoute(pair[0], pair[1], []string{name}))
	}
	st, err := storage.NewSimpleStorage(k, "store", "StableHost", []string{"/"}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, st.Start(false, true))
	return sim, st
}

func failureJob(st *storage.SimpleStorage) (*types.StandardJob, *types.Task) {
	input := types.File{ID: "f", Size: 10000}
	output := types.File{ID: "o", Size: 20000}
	inLoc := types.FileLocation{Service: "store", Mount: "/", Path: "/", File: input}
	outLoc := types.FileLocation{Service: "store", Mount: "/", Path: "/", File: output}
	task := &types.Task{ID: "t", Flops: 3600000, MinCores: 1, MaxCores: 1, Inputs: []types.File{input}, Outputs: []types.File{output}}
	job := &types.StandardJob{
		ID: "job-1", Name: "job-1", Tasks: []*types.Task{task},
		FileLocations: map[string][]types.Location{"f": {inLoc}, "o": {outLoc}},
	}
	_ = st.Stage(inLoc)
	return job, task
}

func TestJobRestartsOnSameHostAfterRecovery(t *testing.T) {
	// The compute service's only resource dies at t=100 and returns at
	// t=1000; the task re-executes from scratch afterwards
	sim, st := failureSim(t)
	k := sim.Kernel()
	cs, err := compute.NewBareMetal(k, "cs", "StableHost",
		[]types.ComputeResource{{Host: "FailedHost1"}}, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, cs.Start(false, true))
	_, err = fabric.StartSwitcher(k, "StableHost", 100, 1000, fabric.ResourceHost, "FailedHost1")
	require.NoError(t, err)

	job, task := failureJob(st)
	var doneAt float64
	var final any
	_, err = sim.AddController("controller", "StableHost", func(c *Controller) int {
		require.NoError(t, c.SubmitStandardJob(cs, job, nil))
		ev, err := c.WaitForNextEvent()
		require.NoError(t, err)
		final = ev.Content
		doneAt = ev.TS
		return 0
	})
	require.NoError(t, err)
	sim.Launch()

	done, ok := final.(events.StandardJobDone)
	require.True(t, ok, "expected StandardJobDone, got %#v", final)
	assert.Equal(t, "job-1", done.JobID)
	// 3.6e6 flops at 1000 flops/s is 3600 s, restarted after t=1000
	assert.Greater(t, doneAt, 4600.0)
	assert.Equal(t, types.TaskStateCompleted, task.State)
	assert.True(t, st.Holds(types.FileLocation{Service: "store", Mount: "/", Path: "/", File: types.File{ID: "o", Size: 20000}}))
}

func TestPinnedTaskWaitsForItsHost(t *testing.T) {
	// Both hosts are granted but the task is pinned to FailedHost1; even
	// while it is down the pinned spec keeps forcing it
	sim, st := failureSim(t)
	k := sim.Kernel()
	cs, err := compute.NewBareMetal(k, "cs", "StableHost",
		[]types.ComputeResource{{Host: "FailedHost1"}, {Host: "FailedHost2"}}, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, cs.Start(false, true))
	_, err = fabric.StartSwitcher(k, "StableHost", 100, 1000, fabric.ResourceHost, "FailedHost1")
	require.NoError(t, err)

	job, task := failureJob(st)
	var doneAt float64
	var final any
	_, err = sim.AddController("controller", "StableHost", func(c *Controller) int {
		require.NoError(t, c.SubmitStandardJob(cs, job, map[string]string{"t": "FailedHost1"}))
		ev, err := c.WaitForNextEvent()
		require.NoError(t, err)
		final = ev.Content
		doneAt = ev.TS
		return 0
	})
	require.NoError(t, err)
	sim.Launch()

	_, ok := final.(events.StandardJobDone)
	require.True(t, ok, "expected StandardJobDone, got %#v", final)
	assert.Greater(t, doneAt, 4600.0)
	assert.Equal(t, types.TaskStateCompleted, task.State)
}

func TestAllResourcesDownTerminatesService(t *testing.T) {
	sim, st := failureSim(t)
	k := sim.Kernel()
	cs, err := compute.NewBareMetal(k, "cs", "StableHost",
		[]types.ComputeResource{{Host: "FailedHost1"}}, nil,
		service.Properties{compute.PropTerminateWhenAllResourcesDown: "true"}, nil)
	require.NoError(t, err)
	require.NoError(t, cs.Start(false, true))
	_, err = fabric.StartSwitcher(k, "StableHost", 100, 1e8, fabric.ResourceHost, "FailedHost1")
	require.NoError(t, err)

	job, _ := failureJob(st)
	var got []any
	_, err = sim.AddController("controller", "StableHost", func(c *Controller) int {
		require.NoError(t, c.SubmitStandardJob(cs, job, nil))
		_, err := service.StartTerminationDetector(k, "StableHost", "cs", cs.Actor(), c.Mailbox(), true, true)
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			ev, err := c.WaitForNextEvent()
			require.NoError(t, err)
			got = append(got, ev.Content)
		}
		return 0
	})
	require.NoError(t, err)
	sim.Launch()

	require.Len(t, got, 2)
	failed, ok := got[0].(events.StandardJobFailed)
	require.True(t, ok, "expected StandardJobFailed first, got %#v", got[0])
	var he *failures.HostError
	assert.ErrorAs(t, failed.Cause, &he)

	term, ok := got[1].(events.ServiceHasTerminated)
	require.True(t, ok, "expected ServiceHasTerminated, got %#v", got[1])
	assert.Equal(t, 1, term.ReturnCode)
	assert.Equal(t, types.ServiceStateDown, cs.State())
}

func TestAsyncFileCopyEmitsEvents(t *testing.T) {
	sim, st := failureSim(t)
	f := types.File{ID: "f", Size: 10000}
	src := types.FileLocation{Service: "store", Mount: "/", Path: "/", File: f}
	dst := types.FileLocation{Service: "store", Mount: "/", Path: "/copies", File: f}
	require.NoError(t, st.Stage(src))

	var got any
	_, err := sim.AddController("controller", "StableHost", func(c *Controller) int {
		c.CopyFileAsync(src, dst)
		ev, err := c.WaitForNextEvent()
		require.NoError(t, err)
		got = ev.Content
		return 0
	})
	require.NoError(t, err)
	sim.Launch()

	copied, ok := got.(events.FileCopyCompleted)
	require.True(t, ok, "expected FileCopyCompleted, got %#v", got)
	assert.Equal(t, src, copied.Src)
	assert.True(t, st.Holds(dst))
	assert.NotEmpty(t, sim.EventLog())
}

func TestScenarioBuildAndRun(t *testing.T) {
	sim := New(Config{Seed: 1})
	k := sim.Kernel()
	k.AddHost("HostA", 4, 1000, 16e9)
	k.AddHost("HostB", 2, 1000, 8e9)
	require.NoError(t, k.AddDisk("HostB", "/", 1e9, 1e8, 1e8))
	k.AddLink("l", 1e6, 0.001)
	require.NoError(t, k.AddRoute("HostA", "HostB", []string{"l"}))

	sc := &Scenario{
		Files: []FileSpec{
			{ID: "in.dat", Size: "10000B"},
			{ID: "out.dat", Size: "20000B"},
		},
		Storages: []StorageSpec{
			{Name: "st", Host: "HostB", Mounts: []string{"/"}},
		},
		Computes: []ComputeSpec{
			{Name: "cs", Host: "HostA", Resources: []ResourceSpec{{Host: "HostA"}}},
		},
		Staging: []StagingSpec{
			{File: "in.dat", Storage: "st"},
		},
		Jobs: []JobSpec{
			{
				Name:    "job1",
				Compute: "cs",
				Tasks: []TaskSpec{
					{ID: "t", Flops: 3600, MinCores: 1, MaxCores: 1, Inputs: []string{"in.dat"}, Outputs: []string{"out.dat"}},
				},
				FileLocations: map[string][]string{
					"in.dat":  {"st:/"},
					"out.dat": {"st:/"},
				},
			},
		},
		Controller: ControllerSpec{Host: "HostA"},
	}
	require.NoError(t, sim.Build(sc))
	sim.Launch()

	log := sim.EventLog()
	require.Len(t, log, 1)
	assert.Equal(t, "StandardJobDone", log[0].Kind)
	assert.Greater(t, log[0].TS, 3.6)
}
