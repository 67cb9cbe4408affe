package failures

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// NetworkErrorReason refines a NetworkError
type NetworkErrorReason string

const (
	ReasonLinkFailure    NetworkErrorReason = "link_failure"
	ReasonHostDown       NetworkErrorReason = "host_down"
	ReasonInvalidMailbox NetworkErrorReason = "invalid_mailbox"
	ReasonPeerDied       NetworkErrorReason = "peer_died"
)

// HostError indicates an action against an OFF host, or that the host
// running the acting service died
type HostError struct {
	Host string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host error: host %s is off or died", e.Host)
}

// NetworkError indicates a failed message send or receive
type NetworkError struct {
	Mailbox string
	Reason  NetworkErrorReason
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on mailbox %s: %s", e.Mailbox, e.Reason)
}

// Timeout indicates a blocking receive exceeded its virtual-time budget
type Timeout struct {
	Mailbox string
	Budget  float64
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("timeout after %g s waiting on mailbox %s", e.Budget, e.Mailbox)
}

// ServiceIsDown indicates the target service was in DOWN state at request
// time
type ServiceIsDown struct {
	Service string
}

func (e *ServiceIsDown) Error() string {
	return fmt.Sprintf("service %s is down", e.Service)
}

// JobTypeNotSupported indicates the service does not accept this job
// category
type JobTypeNotSupported struct {
	Service string
	JobType string
}

func (e *JobTypeNotSupported) Error() string {
	return fmt.Sprintf("service %s does not support %s jobs", e.Service, e.JobType)
}

// NotEnoughResources indicates no host can satisfy a task's minimum cores
// and ram requirement
type NotEnoughResources struct {
	Service string
	TaskID  string
}

func (e *NotEnoughResources) Error() string {
	return fmt.Sprintf("service %s has no resources to ever run task %s", e.Service, e.TaskID)
}

// JobKilled indicates a job was cancelled by its compute service or by the
// controller
type JobKilled struct {
	JobID string
}

func (e *JobKilled) Error() string {
	return fmt.Sprintf("job %s was killed", e.JobID)
}

// FileNotFound indicates a storage service does not hold the requested file
type FileNotFound struct {
	Location types.FileLocation
}

func (e *FileNotFound) Error() string {
	return fmt.Sprintf("file not found at %s", e.Location)
}

// NotEnoughStorageSpace indicates a write would exceed a mount point's
// capacity
type NotEnoughStorageSpace struct {
	Service string
	Mount   string
}

func (e *NotEnoughStorageSpace) Error() string {
	return fmt.Sprintf("not enough space on %s:%s", e.Service, e.Mount)
}

// NoStorageServiceForFile indicates the controller provided neither a
// per-file location nor a default for a task file
type NoStorageServiceForFile struct {
	FileID string
}

func (e *NoStorageServiceForFile) Error() string {
	return fmt.Sprintf("no storage service known for file %s", e.FileID)
}

// InvalidArgument indicates caller misuse caught at validation time
type InvalidArgument struct {
	Message string
}

func (e *InvalidArgument) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

// NotAllowed indicates a well-formed request forbidden by current state
type NotAllowed struct {
	Message string
}

func (e *NotAllowed) Error() string {
	return fmt.Sprintf("not allowed: %s", e.Message)
}
