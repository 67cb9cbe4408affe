package simulation

import (
	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/kernel"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/platform"
	"github.com/cuemby/burrow/pkg/service"
	"github.com/cuemby/burrow/pkg/trace"
)

// Config holds simulation-wide configuration, populated from the runtime
// flags
type Config struct {
	Seed int64
	// HostShutdownSimulation enables host on/off transitions and their
	// failure propagation
	HostShutdownSimulation bool
	// LinkShutdownSimulation enables link on/off transitions
	LinkShutdownSimulation bool
	// DefaultControlMessageSize overrides the fallback payload size used
	// when a service's payload map omits a key; 0 keeps the default
	DefaultControlMessageSize int64
}

// Simulation wires a platform, services and controllers onto a kernel and
// runs the whole thing to quiescence
type Simulation struct {
	k      *kernel.Kernel
	broker *events.Broker
	logger zerolog.Logger

	eventLog []trace.EventRecord
}

// New creates an empty simulation
func New(cfg Config) *Simulation {
	if cfg.DefaultControlMessageSize > 0 {
		service.SetDefaultControlMessageSize(cfg.DefaultControlMessageSize)
	}
	s := &Simulation{
		k: kernel.New(kernel.Config{
			Seed:                   cfg.Seed,
			HostShutdownSimulation: cfg.HostShutdownSimulation,
			LinkShutdownSimulation: cfg.LinkShutdownSimulation,
		}),
		broker: events.NewBroker(),
	}
	s.logger = log.ForComponent("simulation", s.k)
	return s
}

// Kernel returns the simulation's kernel
func (s *Simulation) Kernel() *kernel.Kernel { return s.k }

// Broker returns the simulation's event broker
func (s *Simulation) Broker() *events.Broker { return s.broker }

// ApplyPlatform builds a parsed platform into the kernel
func (s *Simulation) ApplyPlatform(p *platform.Platform) error {
	return p.Apply(s.k)
}

// LoadPlatform reads, validates and applies a platform file
func (s *Simulation) LoadPlatform(path string) error {
	p, err := platform.Load(path)
	if err != nil {
		return err
	}
	return p.Apply(s.k)
}

// AddController spawns a controller actor on a host. The controller's
// callback mailbox carries its events; body runs as the controller's main.
func (s *Simulation) AddController(name, host string, body func(*Controller) int) (*kernel.Actor, error) {
	return s.k.Spawn(kernel.SpawnOptions{Name: name, Host: host}, func(ctx *kernel.Context) int {
		c := &Controller{ctx: ctx, sim: s, mailbox: name + "-events"}
		s.k.RegisterMailbox(c.mailbox, host)
		return body(c)
	})
}

// Launch starts the event broker and runs the kernel until no event
// remains
func (s *Simulation) Launch() {
	s.broker.Start()
	defer s.broker.Stop()
	s.logger.Info().Msg("Simulation launched")
	s.k.Run()
}

// recordEvent appends a controller event to the simulation's event log and
// publishes it to the broker
func (s *Simulation) recordEvent(ts float64, content any) {
	s.eventLog = append(s.eventLog, toRecord(ts, content))
	s.broker.Publish(&events.Event{TS: ts, Content: content})
}

// EventLog returns all controller events observed so far, in order
func (s *Simulation) EventLog() []trace.EventRecord {
	return s.eventLog
}
