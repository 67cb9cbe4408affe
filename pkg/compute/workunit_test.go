package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/types"
)

func sampleJob(withPre, withPost bool, numTasks int) *types.StandardJob {
	job := &types.StandardJob{ID: "job-1", Name: "job-1"}
	for i := 0; i < numTasks; i++ {
		job.Tasks = append(job.Tasks, &types.Task{ID: string(rune('a' + i)), Flops: 100, MinCores: 1, MaxCores: 1})
	}
	f := types.File{ID: "f", Size: 100}
	l := types.FileLocation{Service: "st", Mount: "/", Path: "/", File: f}
	if withPre {
		job.PreCopies = []types.FileCopy{{File: f, Src: l, Dst: l}}
	}
	if withPost {
		job.PostCopies = []types.FileCopy{{File: f, Src: l, Dst: l}}
	}
	return job
}

func TestBuildWorkUnitsShapes(t *testing.T) {
	tests := []struct {
		name          string
		withPre       bool
		withPost      bool
		numTasks      int
		expectedUnits int
	}{
		{"tasks only", false, false, 3, 3},
		{"pre plus tasks", true, false, 2, 3},
		{"tasks plus post", false, true, 2, 3},
		{"pre tasks post", true, true, 2, 4},
		{"pre and post no tasks", true, true, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units := BuildWorkUnits(sampleJob(tt.withPre, tt.withPost, tt.numTasks))
			assert.Len(t, units, tt.expectedUnits)

			// Every task appears in exactly one unit
			seen := map[string]int{}
			for _, wu := range units {
				if wu.Task != nil {
					seen[wu.Task.ID]++
				}
			}
			assert.Len(t, seen, tt.numTasks)
			for id, n := range seen {
				assert.Equal(t, 1, n, "task %s in %d units", id, n)
			}
		})
	}
}

func TestBuildWorkUnitsParentCounts(t *testing.T) {
	units := BuildWorkUnits(sampleJob(true, true, 2))
	require.Len(t, units, 4)
	pre, t1, t2, post := units[0], units[1], units[2], units[3]

	assert.Equal(t, 0, pre.NumPendingParents)
	assert.Equal(t, 1, t1.NumPendingParents)
	assert.Equal(t, 1, t2.NumPendingParents)
	assert.Equal(t, 2, post.NumPendingParents)
	assert.Len(t, pre.Children, 2)
	assert.Len(t, post.Parents, 2)
}

func TestBuildWorkUnitsGraphIsAcyclic(t *testing.T) {
	units := BuildWorkUnits(sampleJob(true, true, 3))
	// Kahn's algorithm must consume every unit
	pending := map[*WorkUnit]int{}
	var frontier []*WorkUnit
	for _, wu := range units {
		pending[wu] = wu.NumPendingParents
		if wu.NumPendingParents == 0 {
			frontier = append(frontier, wu)
		}
	}
	visited := 0
	for len(frontier) > 0 {
		wu := frontier[0]
		frontier = frontier[1:]
		visited++
		for _, child := range wu.Children {
			pending[child]--
			if pending[child] == 0 {
				frontier = append(frontier, child)
			}
		}
	}
	assert.Equal(t, len(units), visited)
}

func TestParseRunSpec(t *testing.T) {
	isHost := func(h string) bool { return h == "HostA" || h == "HostB" }
	tests := []struct {
		in       string
		expected RunSpec
		wantErr  bool
	}{
		{"", RunSpec{}, false},
		{"3", RunSpec{Cores: 3}, false},
		{"HostA", RunSpec{Host: "HostA"}, false},
		{"HostB:2", RunSpec{Host: "HostB", Cores: 2}, false},
		{"HostZ", RunSpec{}, true},
		{"HostA:0", RunSpec{}, true},
		{"HostA:x", RunSpec{}, true},
		{"0", RunSpec{}, true},
		{"-2", RunSpec{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRunSpec(tt.in, isHost)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
