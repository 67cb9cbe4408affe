package storage

import (
	"github.com/cuemby/burrow/pkg/types"
)

// ScratchDir returns the reserved per-job directory on a scratch storage
// service. Files under this prefix are owned by the compute service and
// deleted when the job completes or is terminated.
func ScratchDir(jobName string) string {
	return "/scratch/" + jobName
}

// ScratchLocation places a file in a job's scratch directory
func ScratchLocation(scratch *SimpleStorage, jobName string, f types.File) types.FileLocation {
	return types.FileLocation{
		Service: scratch.Name(),
		Mount:   scratch.Mounts()[0],
		Path:    ScratchDir(jobName),
		File:    f,
	}
}
