package simulation

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/compute"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/fabric"
	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/platform"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// FileSpec declares one simulated file
type FileSpec struct {
	ID   string `yaml:"id"`
	Size string `yaml:"size"`
}

// StorageSpec declares one simple storage service
type StorageSpec struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Mounts     []string          `yaml:"mounts"`
	Properties map[string]string `yaml:"properties"`
}

// ResourceSpec declares one granted host of a compute service
type ResourceSpec struct {
	Host  string `yaml:"host"`
	Cores int    `yaml:"cores"`
	RAM   string `yaml:"ram"`
}

// ComputeSpec declares one bare-metal compute service
type ComputeSpec struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Resources  []ResourceSpec    `yaml:"resources"`
	Scratch    string            `yaml:"scratch"` // name of a storage spec
	Properties map[string]string `yaml:"properties"`
}

// SwitcherSpec declares one resource switcher
type SwitcherSpec struct {
	Host   string  `yaml:"host"` // host the switcher actor runs on
	Kind   string  `yaml:"kind"` // "host" or "link"
	Target string  `yaml:"target"`
	OffAt  float64 `yaml:"off_at"`
	OnAt   float64 `yaml:"on_at"`
}

// StagingSpec pre-places a file on a storage service before launch
type StagingSpec struct {
	File    string `yaml:"file"`
	Storage string `yaml:"storage"`
	Mount   string `yaml:"mount"`
}

// TaskSpec declares one task of a job
type TaskSpec struct {
	ID       string   `yaml:"id"`
	Flops    float64  `yaml:"flops"`
	MinCores int      `yaml:"min_cores"`
	MaxCores int      `yaml:"max_cores"`
	RAM      string   `yaml:"ram"`
	Inputs   []string `yaml:"inputs"`
	Outputs  []string `yaml:"outputs"`
}

// JobSpec declares one standard job
type JobSpec struct {
	Name          string              `yaml:"name"`
	Compute       string              `yaml:"compute"`
	Tasks         []TaskSpec          `yaml:"tasks"`
	FileLocations map[string][]string `yaml:"file_locations"` // file -> "service:mount"
	RunSpecs      map[string]string   `yaml:"run_specs"`
}

// ControllerSpec declares where the scenario's controller runs
type ControllerSpec struct {
	Host string `yaml:"host"`
}

// Scenario is a full workload description: services to bring up, files to
// stage, failures to inject and jobs to run
type Scenario struct {
	Files      []FileSpec     `yaml:"files"`
	Storages   []StorageSpec  `yaml:"storages"`
	Computes   []ComputeSpec  `yaml:"computes"`
	Switchers  []SwitcherSpec `yaml:"switchers"`
	Staging    []StagingSpec  `yaml:"staging"`
	Jobs       []JobSpec      `yaml:"jobs"`
	Controller ControllerSpec `yaml:"controller"`
}

// LoadScenario reads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	return &sc, nil
}

// Build brings a scenario up on the simulation: it creates and starts every
// declared service, stages files, spawns switchers and a controller that
// submits every job and waits for their terminal events
func (s *Simulation) Build(sc *Scenario) error {
	logger := log.ForComponent("scenario", s.k)

	files := make(map[string]types.File, len(sc.Files))
	for _, f := range sc.Files {
		size, err := platform.ParseSize(f.Size)
		if err != nil {
			return err
		}
		files[f.ID] = types.File{ID: f.ID, Size: size}
	}

	storages := make(map[string]*storage.SimpleStorage, len(sc.Storages))
	for _, spec := range sc.Storages {
		st, err := storage.NewSimpleStorage(s.k, spec.Name, spec.Host, spec.Mounts, spec.Properties, nil)
		if err != nil {
			return err
		}
		if err := st.Start(false, true); err != nil {
			return err
		}
		storages[spec.Name] = st
	}

	for _, st := range sc.Staging {
		svc, ok := storages[st.Storage]
		if !ok {
			return &failures.InvalidArgument{Message: fmt.Sprintf("staging references unknown storage %s", st.Storage)}
		}
		f, ok := files[st.File]
		if !ok {
			return &failures.InvalidArgument{Message: fmt.Sprintf("staging references unknown file %s", st.File)}
		}
		mount := st.Mount
		if mount == "" {
			mount = svc.Mounts()[0]
		}
		if err := svc.Stage(types.FileLocation{Service: svc.Name(), Mount: mount, Path: "/", File: f}); err != nil {
			return err
		}
	}

	computes := make(map[string]*compute.BareMetal, len(sc.Computes))
	for _, spec := range sc.Computes {
		var grants []types.ComputeResource
		for _, r := range spec.Resources {
			var ram int64
			if r.RAM != "" {
				var err error
				if ram, err = platform.ParseSize(r.RAM); err != nil {
					return err
				}
			}
			grants = append(grants, types.ComputeResource{Host: r.Host, Cores: r.Cores, RAM: ram})
		}
		var scratch *storage.SimpleStorage
		if spec.Scratch != "" {
			var ok bool
			if scratch, ok = storages[spec.Scratch]; !ok {
				return &failures.InvalidArgument{Message: fmt.Sprintf("compute %s references unknown scratch %s", spec.Name, spec.Scratch)}
			}
		}
		cs, err := compute.NewBareMetal(s.k, spec.Name, spec.Host, grants, scratch, spec.Properties, nil)
		if err != nil {
			return err
		}
		if err := cs.Start(false, true); err != nil {
			return err
		}
		computes[spec.Name] = cs
	}

	for _, sw := range sc.Switchers {
		kind := fabric.ResourceHost
		if sw.Kind == "link" {
			kind = fabric.ResourceLink
		}
		if _, err := fabric.StartSwitcher(s.k, sw.Host, sw.OffAt, sw.OnAt, kind, sw.Target); err != nil {
			return err
		}
	}

	jobs := make([]*types.StandardJob, 0, len(sc.Jobs))
	targets := make(map[string]*compute.BareMetal, len(sc.Jobs))
	args := make(map[string]map[string]string, len(sc.Jobs))
	for _, spec := range sc.Jobs {
		cs, ok := computes[spec.Compute]
		if !ok {
			return &failures.InvalidArgument{Message: fmt.Sprintf("job %s references unknown compute %s", spec.Name, spec.Compute)}
		}
		job := &types.StandardJob{
			ID:            uuid.New().String(),
			Name:          spec.Name,
			FileLocations: make(map[string][]types.Location),
			State:         types.JobStateNotSubmitted,
		}
		for _, ts := range spec.Tasks {
			var ram int64
			if ts.RAM != "" {
				var err error
				if ram, err = platform.ParseSize(ts.RAM); err != nil {
					return err
				}
			}
			task := &types.Task{
				ID:       ts.ID,
				Flops:    ts.Flops,
				MinCores: ts.MinCores,
				MaxCores: ts.MaxCores,
				RAM:      ram,
				State:    types.TaskStateNotReady,
			}
			for _, in := range ts.Inputs {
				f, ok := files[in]
				if !ok {
					return &failures.InvalidArgument{Message: fmt.Sprintf("task %s references unknown file %s", ts.ID, in)}
				}
				task.Inputs = append(task.Inputs, f)
			}
			for _, out := range ts.Outputs {
				f, ok := files[out]
				if !ok {
					return &failures.InvalidArgument{Message: fmt.Sprintf("task %s references unknown file %s", ts.ID, out)}
				}
				task.Outputs = append(task.Outputs, f)
			}
			job.Tasks = append(job.Tasks, task)
		}
		for fileID, locs := range spec.FileLocations {
			f, ok := files[fileID]
			if !ok {
				return &failures.InvalidArgument{Message: fmt.Sprintf("file location for unknown file %s", fileID)}
			}
			for _, ref := range locs {
				loc, err := parseLocationRef(ref, f, storages)
				if err != nil {
					return err
				}
				job.FileLocations[fileID] = append(job.FileLocations[fileID], loc)
			}
		}
		jobs = append(jobs, job)
		targets[job.ID] = cs
		args[job.ID] = spec.RunSpecs
	}

	host := sc.Controller.Host
	if host == "" && len(sc.Computes) > 0 {
		host = sc.Computes[0].Host
	}
	_, err := s.AddController("controller", host, func(c *Controller) int {
		pending := 0
		for _, job := range jobs {
			if err := c.SubmitStandardJob(targets[job.ID], job, args[job.ID]); err != nil {
				logger.Error().Err(err).Str("job", job.Name).Msg("Job submission rejected")
				continue
			}
			pending++
		}
		for pending > 0 {
			ev, err := c.WaitForNextEvent()
			if err != nil {
				logger.Error().Err(err).Msg("Event wait failed")
				continue
			}
			switch ev.Content.(type) {
			case events.StandardJobDone, events.StandardJobFailed:
				pending--
			}
		}
		return 0
	})
	return err
}

// parseLocationRef parses "service:mount" or "service:mount:path" into a
// file location
func parseLocationRef(ref string, f types.File, storages map[string]*storage.SimpleStorage) (types.Location, error) {
	var svcName, mount, path string
	parts := strings.Split(ref, ":")
	switch len(parts) {
	case 1:
		svcName = parts[0]
	case 2:
		svcName, mount = parts[0], parts[1]
	case 3:
		svcName, mount, path = parts[0], parts[1], parts[2]
	default:
		return nil, &failures.InvalidArgument{Message: fmt.Sprintf("bad location reference %q", ref)}
	}
	svc, ok := storages[svcName]
	if !ok {
		return nil, &failures.InvalidArgument{Message: fmt.Sprintf("location references unknown storage %s", svcName)}
	}
	if mount == "" {
		mount = svc.Mounts()[0]
	}
	if path == "" {
		path = "/"
	}
	return types.FileLocation{Service: svcName, Mount: mount, Path: path, File: f}, nil
}
