package types

import (
	"fmt"
)

// File represents an immutable simulated file. A file has no content; only
// its size matters, because the simulator models transfer and storage time,
// not data. Many replicas of the same file may exist across storage services.
type File struct {
	ID   string
	Size int64 // Bytes
}

// String returns a human-readable description of the file
func (f File) String() string {
	return fmt.Sprintf("%s (%d B)", f.ID, f.Size)
}

// FileLocation identifies one replica of a file: which storage service holds
// it, on which mount point, and under which directory path. Equality is
// structural, so locations can be used as map keys and compared with ==.
type FileLocation struct {
	Service string // Storage service name
	Mount   string // Mount point (e.g. "/")
	Path    string // Directory within the mount point (e.g. "/scratch/job-1")
	File    File
}

// String returns a human-readable description of the location
func (l FileLocation) String() string {
	return fmt.Sprintf("%s:%s%s/%s", l.Service, l.Mount, l.Path, l.File.ID)
}

// Resolve returns the service the request should be sent to and the
// location the request is about. For a plain location both are local.
func (l FileLocation) Resolve() (string, FileLocation) {
	return l.Service, l
}

// ProxyLocation wraps a file location with an intermediate proxy service:
// "fetch via this proxy from that ultimate destination". Requests carrying a
// proxy location are sent to the proxy, which forwards them to the target.
type ProxyLocation struct {
	Proxy  string // Proxy service name the request is routed through
	Target FileLocation
}

// String returns a human-readable description of the proxied location
func (p ProxyLocation) String() string {
	return fmt.Sprintf("%s->%s", p.Proxy, p.Target)
}

// Resolve returns the proxy as the request destination and the ultimate
// target location.
func (p ProxyLocation) Resolve() (string, FileLocation) {
	return p.Proxy, p.Target
}

// Location is either a FileLocation or a ProxyLocation
type Location interface {
	Resolve() (service string, target FileLocation)
	String() string
}

// TaskState represents the internal state of a task
type TaskState string

const (
	TaskStateNotReady  TaskState = "not_ready"
	TaskStateReady     TaskState = "ready"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

// Task represents a single computational task within a standard job
type Task struct {
	ID       string
	Flops    float64
	MinCores int
	MaxCores int
	RAM      int64 // Bytes required on the execution host
	Inputs   []File
	Outputs  []File
	State    TaskState
}

// JobState represents the lifecycle state of a standard job
type JobState string

const (
	JobStateNotSubmitted JobState = "not_submitted"
	JobStatePending      JobState = "pending"
	JobStateRunning      JobState = "running"
	JobStateCompleted    JobState = "completed"
	JobStateFailed       JobState = "failed"
	JobStateTerminated   JobState = "terminated"
)

// FileCopy describes one file movement between two locations
type FileCopy struct {
	File File
	Src  Location
	Dst  Location
}

// FileDeletion describes one file removal at a location
type FileDeletion struct {
	File File
	Loc  Location
}

// StandardJob is an ordered collection of tasks plus the file staging work
// around them: pre-copies before any task runs, post-copies and deletions
// after all tasks complete. FileLocations resolves where each task input or
// output lives; a task file with no entry and no scratch available fails
// with NoStorageServiceForFile.
type StandardJob struct {
	ID            string
	Name          string
	Tasks         []*Task
	PreCopies     []FileCopy
	PostCopies    []FileCopy
	Cleanup       []FileDeletion
	FileLocations map[string][]Location // File ID -> candidate locations
	Callback      string                // Controller mailbox for completion events
	State         JobState
}

// TaskByID returns the job's task with the given ID, or nil
func (j *StandardJob) TaskByID(id string) *Task {
	for _, t := range j.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ComputeResource is the (cores, ram) quota granted to a compute service on
// one host
type ComputeResource struct {
	Host  string
	Cores int
	RAM   int64
}

// ServiceState represents the lifecycle state of a service
type ServiceState string

const (
	ServiceStateDown      ServiceState = "down"
	ServiceStateUp        ServiceState = "up"
	ServiceStateSuspended ServiceState = "suspended"
)
