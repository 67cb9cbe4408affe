package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/kernel"
)

// DiskSpec describes one disk in a platform file
type DiskSpec struct {
	Mount   string `yaml:"mount"`
	Size    string `yaml:"size"`
	ReadBW  string `yaml:"read_bw"`
	WriteBW string `yaml:"write_bw"`
}

// HostSpec describes one host in a platform file
type HostSpec struct {
	Name       string     `yaml:"name"`
	Cores      int        `yaml:"cores"`
	Speed      string     `yaml:"speed"`
	RAM        string     `yaml:"ram"`
	Disks      []DiskSpec `yaml:"disks"`
	StateTrace string     `yaml:"state_trace"`
	// TracePeriods is how many periods of the state trace to replay
	TracePeriods int `yaml:"trace_periods"`
}

// LinkSpec describes one link in a platform file
type LinkSpec struct {
	Name      string `yaml:"name"`
	Bandwidth string `yaml:"bandwidth"`
	Latency   string `yaml:"latency"`
}

// RouteSpec describes the link path between one pair of hosts
type RouteSpec struct {
	Src   string   `yaml:"src"`
	Dst   string   `yaml:"dst"`
	Links []string `yaml:"links"`
}

// Platform is a parsed platform description
type Platform struct {
	Hosts  []HostSpec  `yaml:"hosts"`
	Links  []LinkSpec  `yaml:"links"`
	Routes []RouteSpec `yaml:"routes"`

	// baseDir resolves relative state trace paths
	baseDir string
}

// Load reads and validates a platform description from a YAML file
func Load(path string) (*Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read platform file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	p.baseDir = filepath.Dir(path)
	return p, nil
}

// Parse parses and validates a platform description from YAML bytes
func Parse(data []byte) (*Platform, error) {
	var p Platform
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse platform: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the platform for internal consistency
func (p *Platform) Validate() error {
	if len(p.Hosts) == 0 {
		return &failures.InvalidArgument{Message: "platform has no hosts"}
	}
	hosts := make(map[string]bool)
	for _, h := range p.Hosts {
		if h.Name == "" {
			return &failures.InvalidArgument{Message: "host with empty name"}
		}
		if hosts[h.Name] {
			return &failures.InvalidArgument{Message: fmt.Sprintf("duplicate host %s", h.Name)}
		}
		hosts[h.Name] = true
		if h.Cores < 1 {
			return &failures.InvalidArgument{Message: fmt.Sprintf("host %s needs at least one core", h.Name)}
		}
		if _, err := ParseFlopRate(h.Speed); err != nil {
			return &failures.InvalidArgument{Message: fmt.Sprintf("host %s: %v", h.Name, err)}
		}
		if h.RAM != "" {
			if _, err := ParseSize(h.RAM); err != nil {
				return &failures.InvalidArgument{Message: fmt.Sprintf("host %s: %v", h.Name, err)}
			}
		}
		mounts := make(map[string]bool)
		for _, d := range h.Disks {
			if d.Mount == "" {
				return &failures.InvalidArgument{Message: fmt.Sprintf("host %s: disk with empty mount", h.Name)}
			}
			if mounts[d.Mount] {
				return &failures.InvalidArgument{Message: fmt.Sprintf("host %s: duplicate mount %s", h.Name, d.Mount)}
			}
			mounts[d.Mount] = true
		}
	}
	links := make(map[string]bool)
	for _, l := range p.Links {
		if links[l.Name] {
			return &failures.InvalidArgument{Message: fmt.Sprintf("duplicate link %s", l.Name)}
		}
		links[l.Name] = true
	}
	for _, r := range p.Routes {
		if !hosts[r.Src] || !hosts[r.Dst] {
			return &failures.InvalidArgument{Message: fmt.Sprintf("route %s-%s references unknown host", r.Src, r.Dst)}
		}
		for _, l := range r.Links {
			if !links[l] {
				return &failures.InvalidArgument{Message: fmt.Sprintf("route %s-%s references unknown link %s", r.Src, r.Dst, l)}
			}
		}
	}
	return nil
}

// Apply builds the platform into a kernel: hosts, disks, links, routes, and
// scheduled state-trace transitions
func (p *Platform) Apply(k *kernel.Kernel) error {
	for _, h := range p.Hosts {
		speed, err := ParseFlopRate(h.Speed)
		if err != nil {
			return err
		}
		var ram int64
		if h.RAM != "" {
			if ram, err = ParseSize(h.RAM); err != nil {
				return err
			}
		}
		k.AddHost(h.Name, h.Cores, speed, ram)
		for _, d := range h.Disks {
			size, err := ParseSize(d.Size)
			if err != nil {
				return err
			}
			readBW, err := ParseBandwidth(d.ReadBW)
			if err != nil {
				return err
			}
			writeBW, err := ParseBandwidth(d.WriteBW)
			if err != nil {
				return err
			}
			if err := k.AddDisk(h.Name, d.Mount, size, readBW, writeBW); err != nil {
				return err
			}
		}
		if h.StateTrace != "" {
			path := h.StateTrace
			if !filepath.IsAbs(path) && p.baseDir != "" {
				path = filepath.Join(p.baseDir, path)
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read state trace for host %s: %w", h.Name, err)
			}
			trace, err := ParseStateTrace(string(content))
			if err != nil {
				return fmt.Errorf("state trace for host %s: %w", h.Name, err)
			}
			for _, tr := range trace.Schedule(h.TracePeriods) {
				k.ScheduleHostState(tr.Time, h.Name, tr.On)
			}
		}
	}
	for _, l := range p.Links {
		bw, err := ParseBandwidth(l.Bandwidth)
		if err != nil {
			return err
		}
		var lat float64
		if l.Latency != "" {
			if lat, err = ParseDuration(l.Latency); err != nil {
				return err
			}
		}
		k.AddLink(l.Name, bw, lat)
	}
	for _, r := range p.Routes {
		if err := k.AddRoute(r.Src, r.Dst, r.Links); err != nil {
			return err
		}
	}
	return nil
}
