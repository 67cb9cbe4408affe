package kernel

import (
	"container/heap"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/failures"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

// Config holds kernel configuration
type Config struct {
	// Seed for the kernel's random source (random-repeat switchers)
	Seed int64
	// HostShutdownSimulation enables host on/off transitions
	HostShutdownSimulation bool
	// LinkShutdownSimulation enables link on/off transitions
	LinkShutdownSimulation bool
}

// Kernel is the discrete-event engine: the virtual clock, the platform
// (hosts, disks, links, routes), the actor scheduler and the mailboxes.
// Exactly one actor runs at any moment; the kernel hands control to an actor
// and waits until it parks on one of the blocking primitives.
type Kernel struct {
	cfg Config

	now   float64
	seq   uint64
	queue eventQueue

	hosts     map[string]*Host
	links     map[string]*Link
	routes    map[string][]*Link
	mailboxes map[string]*Mailbox

	nextActorID uint64
	parkCh      chan struct{}

	rng    *rand.Rand
	logger zerolog.Logger
}

// New creates a kernel with an empty platform
func New(cfg Config) *Kernel {
	k := &Kernel{
		cfg:       cfg,
		hosts:     make(map[string]*Host),
		links:     make(map[string]*Link),
		routes:    make(map[string][]*Link),
		mailboxes: make(map[string]*Mailbox),
		parkCh:    make(chan struct{}),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
	k.logger = log.ForComponent("kernel", k)
	return k
}

// Now returns the current virtual time in seconds
func (k *Kernel) Now() float64 { return k.now }

// Rand returns the kernel's seeded random source
func (k *Kernel) Rand() *rand.Rand { return k.rng }

// at schedules fn at virtual time t and returns a cancellable handle
func (k *Kernel) at(t float64, fn func()) *Event {
	if t < k.now {
		t = k.now
	}
	k.seq++
	ev := &Event{time: t, seq: k.seq, fire: fn}
	heap.Push(&k.queue, ev)
	return ev
}

// handoff gives control to a parked actor and waits until it parks again or
// ends. It may be called from the kernel loop or from another actor's
// goroutine; either way only one execution context is live at a time.
func (k *Kernel) handoff(a *Actor, rm resumeMsg) {
	if a.terminated {
		return
	}
	a.waitSeq++
	// Each hand-off waits on its own park channel, so a nested hand-off is
	// unblocked by the actor it resumed and never by an outer one
	outer := k.parkCh
	parked := make(chan struct{})
	k.parkCh = parked
	a.resume <- rm
	<-parked
	k.parkCh = outer
}

// Run executes the simulation until no scheduled event remains. Actors
// parked on mailboxes at that point are quiescent; daemonized services are
// expected to still be parked when the simulation ends.
func (k *Kernel) Run() {
	for k.queue.Len() > 0 {
		ev := heap.Pop(&k.queue).(*Event)
		if ev.cancelled {
			continue
		}
		k.now = ev.time
		metrics.SimulatedTime.Set(k.now)
		ev.fire()
	}
	k.logger.Info().Msg("Simulation reached quiescence")
}

// AddHost registers a host. Setup-time only.
func (k *Kernel) AddHost(name string, cores int, flopRate float64, ram int64) *Host {
	h := &Host{
		Name:     name,
		Cores:    cores,
		FlopRate: flopRate,
		RAM:      ram,
		Disks:    make(map[string]*Disk),
		on:       true,
		actors:   make(map[*Actor]struct{}),
	}
	k.hosts[name] = h
	metrics.HostsTotal.WithLabelValues("on").Inc()
	return h
}

// AddDisk attaches a disk to a host. Setup-time only.
func (k *Kernel) AddDisk(host, mount string, capacity int64, readBW, writeBW float64) error {
	h := k.hosts[host]
	if h == nil {
		return &failures.InvalidArgument{Message: fmt.Sprintf("unknown host %s", host)}
	}
	h.Disks[mount] = &Disk{Mount: mount, Capacity: capacity, ReadBW: readBW, WriteBW: writeBW}
	return nil
}

// AddLink registers a link. Setup-time only.
func (k *Kernel) AddLink(name string, bandwidth, latency float64) *Link {
	l := &Link{
		Name:      name,
		Bandwidth: bandwidth,
		Latency:   latency,
		on:        true,
		transfers: make(map[*transfer]struct{}),
	}
	k.links[name] = l
	return l
}

// AddRoute declares the link path between a pair of hosts, in either
// direction. Setup-time only.
func (k *Kernel) AddRoute(hostA, hostB string, linkNames []string) error {
	var links []*Link
	for _, n := range linkNames {
		l := k.links[n]
		if l == nil {
			return &failures.InvalidArgument{Message: fmt.Sprintf("unknown link %s", n)}
		}
		links = append(links, l)
	}
	k.routes[routeKey(hostA, hostB)] = links
	return nil
}

func routeKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// route returns the links between two hosts; nil means a zero-cost path
// (same host, or no declared route)
func (k *Kernel) route(src, dst *Host) []*Link {
	if src == nil || dst == nil || src == dst {
		return nil
	}
	return k.routes[routeKey(src.Name, dst.Name)]
}

// Host returns the host with the given name, or nil
func (k *Kernel) Host(name string) *Host { return k.hosts[name] }

// Link returns the link with the given name, or nil
func (k *Kernel) Link(name string) *Link { return k.links[name] }

// IsHostOn reports whether the named host is on
func (k *Kernel) IsHostOn(name string) bool {
	h := k.hosts[name]
	return h != nil && h.on
}

// IsLinkOn reports whether the named link is up
func (k *Kernel) IsLinkOn(name string) bool {
	l := k.links[name]
	return l != nil && l.on
}

// HostFlopRate returns the host's per-core flop rate, or 0 if unknown
func (k *Kernel) HostFlopRate(name string) float64 {
	if h := k.hosts[name]; h != nil {
		return h.FlopRate
	}
	return 0
}

// HostNumCores returns the host's core count, or 0 if unknown
func (k *Kernel) HostNumCores(name string) int {
	if h := k.hosts[name]; h != nil {
		return h.Cores
	}
	return 0
}

// HostMemCapacity returns the host's RAM capacity in bytes, or 0 if unknown
func (k *Kernel) HostMemCapacity(name string) int64 {
	if h := k.hosts[name]; h != nil {
		return h.RAM
	}
	return 0
}

// SpawnOptions configures a new actor
type SpawnOptions struct {
	Name        string
	Host        string
	AutoRestart bool
	Daemon      bool
	Cleanup     CleanupFunc
}

// Spawn creates and starts an actor on a host. The actor begins running at
// the current virtual time, after the caller parks or returns.
func (k *Kernel) Spawn(opts SpawnOptions, body Body) (*Actor, error) {
	h := k.hosts[opts.Host]
	if h == nil {
		return nil, &failures.InvalidArgument{Message: fmt.Sprintf("unknown host %s", opts.Host)}
	}
	if !h.on {
		return nil, &failures.HostError{Host: opts.Host}
	}
	return k.spawnSpec(&actorSpec{
		name:        opts.Name,
		host:        opts.Host,
		autorestart: opts.AutoRestart,
		daemon:      opts.Daemon,
		body:        body,
		cleanup:     opts.Cleanup,
	}, h), nil
}

func (k *Kernel) spawnSpec(spec *actorSpec, h *Host) *Actor {
	k.nextActorID++
	a := &Actor{
		id:     k.nextActorID,
		spec:   *spec,
		host:   h,
		k:      k,
		resume: make(chan resumeMsg),
	}
	h.actors[a] = struct{}{}
	metrics.ActorsTotal.WithLabelValues("live").Inc()
	k.launch(a)
	k.at(k.now, func() {
		if !a.alive() || a.started {
			return
		}
		a.started = true
		k.handoff(a, resumeMsg{kind: resumeStart})
	})
	return a
}

// Kill terminates an actor without warning. Cleanup hooks still run.
func (k *Kernel) Kill(a *Actor) {
	k.killActor(a, nil)
}

// TurnOffHost powers a host down: every actor pinned to it is killed, every
// pending put to a mailbox it owns fails, and autorestart actors are
// remembered for resurrection.
func (k *Kernel) TurnOffHost(name string) error {
	if !k.cfg.HostShutdownSimulation {
		return &failures.NotAllowed{Message: "host shutdown simulation is disabled"}
	}
	h := k.hosts[name]
	if h == nil {
		return &failures.InvalidArgument{Message: fmt.Sprintf("unknown host %s", name)}
	}
	if !h.on {
		return nil
	}
	h.on = false
	metrics.HostFailures.Inc()
	metrics.HostsTotal.WithLabelValues("on").Dec()
	metrics.HostsTotal.WithLabelValues("off").Inc()
	k.logger.Info().Str("host", name).Msg("Host turned off")

	// Senders blocked on mailboxes owned by this host get a network error
	for _, mb := range k.mailboxes {
		if mb.owner != h {
			continue
		}
		for _, pp := range mb.puts {
			if pp.cancelled {
				continue
			}
			pp.cancelled = true
			if pp.actor != nil && pp.actor.alive() && pp.actor.host != h {
				pp.actor.pput = nil
				k.wakeLater(pp.actor, resumeMsg{kind: resumeOpErr, err: &failures.NetworkError{
					Mailbox: mb.name,
					Reason:  failures.ReasonHostDown,
				}})
			}
		}
		mb.puts = nil
	}

	victims := make([]*Actor, 0, len(h.actors))
	for a := range h.actors {
		victims = append(victims, a)
	}
	for _, a := range victims {
		k.killActor(a, &failures.HostError{Host: name})
	}
	k.notifyWatchers(h, false)
	return nil
}

// TurnOnHost powers a host back up and resurrects its autorestart actors
func (k *Kernel) TurnOnHost(name string) error {
	if !k.cfg.HostShutdownSimulation {
		return &failures.NotAllowed{Message: "host shutdown simulation is disabled"}
	}
	h := k.hosts[name]
	if h == nil {
		return &failures.InvalidArgument{Message: fmt.Sprintf("unknown host %s", name)}
	}
	if h.on {
		return nil
	}
	h.on = true
	metrics.HostsTotal.WithLabelValues("off").Dec()
	metrics.HostsTotal.WithLabelValues("on").Inc()
	k.logger.Info().Str("host", name).Msg("Host turned on")

	restarts := h.restarts
	h.restarts = nil
	for _, spec := range restarts {
		k.spawnSpec(spec, h)
	}
	k.notifyWatchers(h, true)
	return nil
}

// TurnOffLink takes a link down, failing every transfer crossing it
func (k *Kernel) TurnOffLink(name string) error {
	if !k.cfg.LinkShutdownSimulation {
		return &failures.NotAllowed{Message: "link shutdown simulation is disabled"}
	}
	l := k.links[name]
	if l == nil {
		return &failures.InvalidArgument{Message: fmt.Sprintf("unknown link %s", name)}
	}
	if !l.on {
		return nil
	}
	l.on = false
	metrics.LinkFailures.Inc()
	k.logger.Info().Str("link", name).Msg("Link turned off")

	inFlight := make([]*transfer, 0, len(l.transfers))
	for t := range l.transfers {
		inFlight = append(inFlight, t)
	}
	for _, t := range inFlight {
		k.failTransfer(t, failures.ReasonLinkFailure)
	}
	return nil
}

// TurnOnLink brings a link back up
func (k *Kernel) TurnOnLink(name string) error {
	if !k.cfg.LinkShutdownSimulation {
		return &failures.NotAllowed{Message: "link shutdown simulation is disabled"}
	}
	l := k.links[name]
	if l == nil {
		return &failures.InvalidArgument{Message: fmt.Sprintf("unknown link %s", name)}
	}
	l.on = true
	k.logger.Info().Str("link", name).Msg("Link turned on")
	return nil
}

// HostStateChange notifies a watcher that a host changed power state. The
// notification is delivered in zero simulated time.
type HostStateChange struct {
	Host string
	On   bool
}

// WatchHost subscribes a mailbox to a host's power transitions
func (k *Kernel) WatchHost(host, mailbox string) {
	if h := k.hosts[host]; h != nil {
		h.watchers = append(h.watchers, mailbox)
	}
}

func (k *Kernel) notifyWatchers(h *Host, on bool) {
	for _, w := range h.watchers {
		k.DetachedPut(w, "", Message{Content: HostStateChange{Host: h.Name, On: on}})
	}
}

// ScheduleHostState schedules a host power transition at a future virtual
// time. Used to replay platform state traces.
func (k *Kernel) ScheduleHostState(t float64, host string, on bool) {
	k.at(t, func() {
		var err error
		if on {
			err = k.TurnOnHost(host)
		} else {
			err = k.TurnOffHost(host)
		}
		if err != nil {
			k.logger.Warn().Err(err).Str("host", host).Msg("State trace transition failed")
		}
	})
}
