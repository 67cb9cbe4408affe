package compute

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/types"
)

// WorkUnit is the atomic unit the compute service schedules. A work unit
// owns optional pre-file-copies, at most one task, optional post-file-copies
// and cleanup deletions. Parent links form an acyclic graph per job;
// NumPendingParents counts down to zero, at which point the unit is ready.
type WorkUnit struct {
	ID         string
	Job        *types.StandardJob
	PreCopies  []types.FileCopy
	Task       *types.Task
	PostCopies []types.FileCopy
	Cleanup    []types.FileDeletion
	Parents    []*WorkUnit
	Children   []*WorkUnit

	NumPendingParents int
}

// BuildWorkUnits turns a standard job into its work-unit graph:
//
//  1. If the job has pre-file-copies, one "pre" unit holds them all.
//  2. Each task gets its own unit, child of the pre unit if one exists.
//  3. If the job has post-file-copies or cleanup deletions, one "post"
//     unit holds them, child of every task unit.
//
// The graph is a series-parallel reduction of the job, and every task
// appears in exactly one unit.
func BuildWorkUnits(job *types.StandardJob) []*WorkUnit {
	var units []*WorkUnit
	var pre *WorkUnit
	if len(job.PreCopies) > 0 {
		pre = &WorkUnit{
			ID:        job.ID + "-pre",
			Job:       job,
			PreCopies: job.PreCopies,
		}
		units = append(units, pre)
	}
	var taskUnits []*WorkUnit
	for _, task := range job.Tasks {
		wu := &WorkUnit{
			ID:   fmt.Sprintf("%s-task-%s", job.ID, task.ID),
			Job:  job,
			Task: task,
		}
		if pre != nil {
			link(pre, wu)
		}
		units = append(units, wu)
		taskUnits = append(taskUnits, wu)
	}
	if len(job.PostCopies) > 0 || len(job.Cleanup) > 0 {
		post := &WorkUnit{
			ID:         job.ID + "-post",
			Job:        job,
			PostCopies: job.PostCopies,
			Cleanup:    job.Cleanup,
		}
		if len(taskUnits) > 0 {
			for _, tu := range taskUnits {
				link(tu, post)
			}
		} else if pre != nil {
			link(pre, post)
		}
		units = append(units, post)
	}
	return units
}

func link(parent, child *WorkUnit) {
	parent.Children = append(parent.Children, child)
	child.Parents = append(child.Parents, parent)
	child.NumPendingParents++
}

// RunSpec is a per-task placement constraint: a required host, a required
// core count, both, or neither
type RunSpec struct {
	Host  string
	Cores int
}

// ParseRunSpec parses the service-args grammar
//
//	spec := "" | cores | host | host ":" cores
//
// isHost decides whether a bare token names one of the service's hosts.
func ParseRunSpec(s string, isHost func(string) bool) (RunSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RunSpec{}, nil
	}
	if host, coresStr, found := strings.Cut(s, ":"); found {
		cores, err := strconv.Atoi(coresStr)
		if err != nil || cores < 1 {
			return RunSpec{}, &failures.InvalidArgument{Message: fmt.Sprintf("bad core count in spec %q", s)}
		}
		if !isHost(host) {
			return RunSpec{}, &failures.InvalidArgument{Message: fmt.Sprintf("unknown host in spec %q", s)}
		}
		return RunSpec{Host: host, Cores: cores}, nil
	}
	if cores, err := strconv.Atoi(s); err == nil {
		if cores < 1 {
			return RunSpec{}, &failures.InvalidArgument{Message: fmt.Sprintf("bad core count in spec %q", s)}
		}
		return RunSpec{Cores: cores}, nil
	}
	if !isHost(s) {
		return RunSpec{}, &failures.InvalidArgument{Message: fmt.Sprintf("unknown host in spec %q", s)}
	}
	return RunSpec{Host: s}, nil
}
