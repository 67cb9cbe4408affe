package compute

import (
	"github.com/cuemby/burrow/pkg/types"
)

// Payload kinds used in the compute protocol
const (
	PayloadSubmitAnswer       = "submit_standard_job_answer"
	PayloadTerminateAnswer    = "terminate_standard_job_answer"
	PayloadResourceInfoAnswer = "resource_information_answer"
	PayloadStandardJobDone    = "standard_job_done_message"
	PayloadStandardJobFailed  = "standard_job_failed_message"
)

// SubmitStandardJobRequest submits a standard job for execution.
// ServiceArgs maps task IDs to placement spec strings; empty or absent
// means free choice.
type SubmitStandardJobRequest struct {
	Job         *types.StandardJob
	ServiceArgs map[string]string
	Answer      string
}

// SubmitStandardJobAnswer reports whether the job was admitted
type SubmitStandardJobAnswer struct {
	JobID string
	OK    bool
	Cause error
}

// TerminateStandardJobRequest cancels a running standard job
type TerminateStandardJobRequest struct {
	JobID  string
	Answer string
}

// TerminateStandardJobAnswer reports the outcome of a termination
type TerminateStandardJobAnswer struct {
	JobID string
	OK    bool
	Cause error
}

// ResourceInfoRequest asks the service to describe its resources
type ResourceInfoRequest struct {
	Answer string
}

// HostInfo describes one host of a compute service
type HostInfo struct {
	Cores        int
	IdleCores    int
	FlopRate     float64
	RAMCapacity  int64
	RAMAvailable int64
}

// ResourceInformation describes a compute service's resources
type ResourceInformation struct {
	NumHosts int
	Hosts    map[string]HostInfo
	TTL      float64
}

// ResourceInfoAnswer carries the resource description
type ResourceInfoAnswer struct {
	Info ResourceInformation
}

// executorDone is posted by a work-unit executor on success
type executorDone struct {
	executor       string
	wuID           string
	filesInScratch []types.FileLocation
}

// executorFailed is posted by a work-unit executor on the first failure
type executorFailed struct {
	executor       string
	wuID           string
	cause          error
	filesInScratch []types.FileLocation
}

// SubmitPilotJobRequest submits a pilot job. The bare-metal service does
// not support pilot jobs and answers with JobTypeNotSupported.
type SubmitPilotJobRequest struct {
	PilotJobID string
	Answer     string
}

// SubmitPilotJobAnswer reports the outcome of a pilot job submission
type SubmitPilotJobAnswer struct {
	PilotJobID string
	OK         bool
	Cause      error
}
